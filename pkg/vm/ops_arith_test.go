package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentrychris/omg/pkg/bytecode"
)

// PushStr "nope"; PushInt 1; Sub; Halt -> TypeError, non-numeric Str operand.
func TestSubRejectsNonNumericStr(t *testing.T) {
	sink := &StringSink{}
	m := New(sink, nil)
	img := &bytecode.Image{Funcs: map[string]bytecode.Function{}, Code: []bytecode.Instruction{
		{Op: bytecode.OpPushStr, Str: "nope"},
		{Op: bytecode.OpPushInt, Int: 1},
		{Op: bytecode.OpSub},
		{Op: bytecode.OpHalt},
	}}
	err := m.Run(img)
	require.NotNil(t, err)
	require.Equal(t, "TypeError: not a number: \"nope\"", err.Error())
}

// MinInt64 * -1 overflows, so it must yield 0, not MinInt64 unchanged.
func TestMulMinInt64ByNegOneYieldsZero(t *testing.T) {
	require.Equal(t, int64(0), mulOverflowsToZero(-9223372036854775808, -1))
}

func TestMulOverflowYieldsZero(t *testing.T) {
	require.Equal(t, int64(0), mulOverflowsToZero(1<<62, 4))
}

func TestMulNoOverflow(t *testing.T) {
	require.Equal(t, int64(12), mulOverflowsToZero(3, 4))
}
