package bytecode

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// TestRoundTrip checks that decoding the output of a conforming
// encoder yields the original instruction stream.
func TestRoundTrip(t *testing.T) {
	original := &Image{
		Version: CurrentVersion,
		Funcs: map[string]Function{
			"add": {Name: "add", Params: []string{"a", "b"}, Address: 4},
		},
		Code: []Instruction{
			{Op: OpLoad, Str: "a"},
			{Op: OpLoad, Str: "b"},
			{Op: OpAdd},
			{Op: OpRet},
			{Op: OpPushInt, Int: 2},
			{Op: OpPushInt, Int: 3},
			{Op: OpCall, Str: "add"},
			{Op: OpEmit},
			{Op: OpHalt},
		},
	}

	raw, err := EncodeBytes(original)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	decoded, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	if diff := cmp.Diff(original, decoded); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("NOPE1234")))
	require.Error(t, err)
}

func TestDecodeRejectsVersionMismatch(t *testing.T) {
	img := &Image{Version: CurrentVersion + 1, Funcs: map[string]Function{}}
	raw, err := EncodeBytes(img)
	require.NoError(t, err)
	_, err = Decode(bytes.NewReader(raw))
	require.Error(t, err)
}

// TestDecodeRejectsTruncatedCodeLenWithoutHugeAlloc checks that a
// header claiming a huge code_len over a short, truncated body fails
// on the first missing instruction rather than attempting to reserve
// capacity for the claimed count up front.
func TestDecodeRejectsTruncatedCodeLenWithoutHugeAlloc(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(magic[:])
	require.NoError(t, writeU32(&buf, CurrentVersion))
	require.NoError(t, writeU32(&buf, 0)) // func_count
	require.NoError(t, writeU32(&buf, 0xFFFFFFFF)) // code_len: absurdly large

	_, err := Decode(bytes.NewReader(buf.Bytes()))
	require.Error(t, err)
}

func TestCallBuiltinOperands(t *testing.T) {
	img := &Image{
		Funcs: map[string]Function{},
		Code: []Instruction{
			{Op: OpCallBuiltin, Str: "length", Count: 1},
			{Op: OpHalt},
		},
	}
	raw, err := EncodeBytes(img)
	require.NoError(t, err)
	decoded, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, "length", decoded.Code[0].Str)
	require.Equal(t, uint32(1), decoded.Code[0].Count)
}
