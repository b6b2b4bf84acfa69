package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentrychris/omg/pkg/bytecode"
)

func run(t *testing.T, code []bytecode.Instruction, funcs map[string]bytecode.Function) (*VM, *StringSink) {
	t.Helper()
	sink := &StringSink{}
	m := New(sink, nil)
	if funcs == nil {
		funcs = map[string]bytecode.Function{}
	}
	img := &bytecode.Image{Version: bytecode.CurrentVersion, Funcs: funcs, Code: code}
	_ = m.Run(img)
	return m, sink
}

// PushInt 2; PushInt 3; Add; Emit; Halt -> output "5", exit 0.
func TestEmitSum(t *testing.T) {
	m, sink := run(t, []bytecode.Instruction{
		{Op: bytecode.OpPushInt, Int: 2},
		{Op: bytecode.OpPushInt, Int: 3},
		{Op: bytecode.OpAdd},
		{Op: bytecode.OpEmit},
		{Op: bytecode.OpHalt},
	}, nil)
	require.Equal(t, "5", sink.String())
	require.Empty(t, m.stack)
}

// PushInt 1; PushInt 0; Div; Halt -> ZeroDivisionError, exit 1.
func TestZeroDivision(t *testing.T) {
	sink := &StringSink{}
	m := New(sink, nil)
	img := &bytecode.Image{Funcs: map[string]bytecode.Function{}, Code: []bytecode.Instruction{
		{Op: bytecode.OpPushInt, Int: 1},
		{Op: bytecode.OpPushInt, Int: 0},
		{Op: bytecode.OpDiv},
		{Op: bytecode.OpHalt},
	}}
	err := m.Run(img)
	require.NotNil(t, err)
	require.Equal(t, "ZeroDivisionError: integer division or modulo by zero", err.Error())
}

// BuildDict 0; CallBuiltin "freeze" 1; PushInt 1; StoreAttr "a"; Halt -> FrozenWriteError.
func TestFrozenWriteViaStoreAttr(t *testing.T) {
	sink := &StringSink{}
	m := New(sink, nil)
	img := &bytecode.Image{Funcs: map[string]bytecode.Function{}, Code: []bytecode.Instruction{
		{Op: bytecode.OpBuildDict, Count: 0},
		{Op: bytecode.OpCallBuiltin, Str: "freeze", Count: 1},
		{Op: bytecode.OpPushInt, Int: 1},
		{Op: bytecode.OpStoreAttr, Str: "a"},
		{Op: bytecode.OpHalt},
	}}
	err := m.Run(img)
	require.NotNil(t, err)
	require.Equal(t, "FrozenWriteError: Imported modules are read-only", err.Error())
}

// SetupExcept h; PushStr "boom"; Raise Generic; PopBlock; Jump end; [h] Pop; Halt
// -> exit 0; the handler observes "RuntimeError: boom" on the stack.
func TestExceptionCaught(t *testing.T) {
	code := []bytecode.Instruction{
		{Op: bytecode.OpSetupExcept, Target: 5}, // 0
		{Op: bytecode.OpPushStr, Str: "boom"},   // 1
		{Op: bytecode.OpRaise, Kind: 0},          // 2
		{Op: bytecode.OpPopBlock},                // 3 (unreached on the raising path)
		{Op: bytecode.OpJump, Target: 6},         // 4 (unreached on the raising path)
		{Op: bytecode.OpPop},                     // 5: [handler] observes "RuntimeError: boom"
		{Op: bytecode.OpHalt},                    // 6
	}
	m, _ := run(t, code, nil)
	require.Empty(t, m.stack)
}

// Load "x"; Halt -> UndefinedIdentError: x.
func TestUndefinedIdent(t *testing.T) {
	sink := &StringSink{}
	m := New(sink, nil)
	img := &bytecode.Image{Funcs: map[string]bytecode.Function{}, Code: []bytecode.Instruction{
		{Op: bytecode.OpLoad, Str: "x"},
		{Op: bytecode.OpHalt},
	}}
	err := m.Run(img)
	require.NotNil(t, err)
	require.Equal(t, "UndefinedIdentError: x", err.Error())
}

// a list stored under two globals; Add with itself extends in place
// and both aliases observe the new contents.
func TestListConcatIdentity(t *testing.T) {
	sink := &StringSink{}
	m := New(sink, nil)
	img := &bytecode.Image{Funcs: map[string]bytecode.Function{}, Code: []bytecode.Instruction{
		{Op: bytecode.OpPushInt, Int: 1},
		{Op: bytecode.OpPushInt, Int: 2},
		{Op: bytecode.OpBuildList, Count: 2},
		{Op: bytecode.OpStore, Str: "l1"},
		{Op: bytecode.OpLoad, Str: "l1"},
		{Op: bytecode.OpStore, Str: "l2"},
		{Op: bytecode.OpLoad, Str: "l1"},
		{Op: bytecode.OpLoad, Str: "l2"},
		{Op: bytecode.OpAdd},
		{Op: bytecode.OpPop},
		{Op: bytecode.OpHalt},
	}}
	err := m.Run(img)
	require.Nil(t, err)
	require.Equal(t, "[1, 2, 1, 2]", m.globals["l1"].String())
	require.Equal(t, "[1, 2, 1, 2]", m.globals["l2"].String())
}

// BuildList 0; PushInt 1; PushInt 0; Slice; Halt -> IndexError (start>end).
func TestSliceBounds(t *testing.T) {
	sink := &StringSink{}
	m := New(sink, nil)
	img := &bytecode.Image{Funcs: map[string]bytecode.Function{}, Code: []bytecode.Instruction{
		{Op: bytecode.OpBuildList, Count: 0},
		{Op: bytecode.OpPushInt, Int: 1},
		{Op: bytecode.OpPushInt, Int: 0},
		{Op: bytecode.OpSlice},
		{Op: bytecode.OpHalt},
	}}
	err := m.Run(img)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "IndexError")
}

// Raise on an empty stack is VmInvariant with exact wording.
func TestRaiseOnEmptyStackIsVmInvariant(t *testing.T) {
	sink := &StringSink{}
	m := New(sink, nil)
	img := &bytecode.Image{Funcs: map[string]bytecode.Function{}, Code: []bytecode.Instruction{
		{Op: bytecode.OpRaise, Kind: 0},
	}}
	err := m.Run(img)
	require.NotNil(t, err)
	require.Equal(t, "VmInvariant: stack underflow on RAISE", err.Error())
}

// Call/Ret: the callee's return value comes back to the caller, and
// both call stacks are empty again once it has returned.
func TestCallAndRet(t *testing.T) {
	funcs := map[string]bytecode.Function{
		"inc": {Name: "inc", Params: []string{"n"}, Address: 4},
	}
	code := []bytecode.Instruction{
		{Op: bytecode.OpPushInt, Int: 1},
		{Op: bytecode.OpCall, Str: "inc"},
		{Op: bytecode.OpEmit},
		{Op: bytecode.OpHalt},
		{Op: bytecode.OpLoad, Str: "n"},
		{Op: bytecode.OpPushInt, Int: 1},
		{Op: bytecode.OpAdd},
		{Op: bytecode.OpRet},
	}
	sink := &StringSink{}
	m := New(sink, nil)
	img := &bytecode.Image{Funcs: funcs, Code: code}
	err := m.Run(img)
	require.Nil(t, err)
	require.Equal(t, "2", sink.String())
	require.Equal(t, 0, len(m.envStack))
	require.Equal(t, 0, len(m.retStack))
}

// TestTailCallDoesNotGrowStacks: tail recursion via TailCall keeps
// env_stack/ret_stack at the one frame the initial Call pushed, so both
// are empty again after the single Ret, unlike repeated Calls.
func TestTailCallDoesNotGrowStacks(t *testing.T) {
	funcs := map[string]bytecode.Function{
		"loop": {Name: "loop", Params: []string{"n"}, Address: 3},
	}
	// main occupies addresses 0-2, loop starts at 3.
	code := []bytecode.Instruction{
		{Op: bytecode.OpPushInt, Int: 3},   // 0
		{Op: bytecode.OpCall, Str: "loop"}, // 1
		{Op: bytecode.OpHalt},              // 2
		{Op: bytecode.OpLoad, Str: "n"},    // 3
		{Op: bytecode.OpJumpIfFalse, Target: 11}, // 4
		{Op: bytecode.OpLoad, Str: "n"},    // 5
		{Op: bytecode.OpEmit},              // 6
		{Op: bytecode.OpLoad, Str: "n"},    // 7
		{Op: bytecode.OpPushInt, Int: 1},   // 8
		{Op: bytecode.OpSub},               // 9
		{Op: bytecode.OpTailCall, Str: "loop"}, // 10
		{Op: bytecode.OpPushNone},           // 11
		{Op: bytecode.OpRet},                // 12
	}
	funcs["loop"] = bytecode.Function{Name: "loop", Params: []string{"n"}, Address: 3}

	sink := &StringSink{}
	m := New(sink, nil)
	img := &bytecode.Image{Funcs: funcs, Code: code}
	err := m.Run(img)
	require.Nil(t, err)
	require.Equal(t, "3\n2\n1", sink.String())
	require.Equal(t, 0, len(m.envStack))
	require.Equal(t, 0, len(m.retStack))
}

// Any write to a FrozenDict (index or attribute) yields
// FrozenWriteError.
func TestFrozenWriteViaIndex(t *testing.T) {
	sink := &StringSink{}
	m := New(sink, nil)
	img := &bytecode.Image{Funcs: map[string]bytecode.Function{}, Code: []bytecode.Instruction{
		{Op: bytecode.OpBuildDict, Count: 0},
		{Op: bytecode.OpCallBuiltin, Str: "freeze", Count: 1},
		{Op: bytecode.OpPushStr, Str: "a"},
		{Op: bytecode.OpPushInt, Int: 1},
		{Op: bytecode.OpStoreIndex},
		{Op: bytecode.OpHalt},
	}}
	err := m.Run(img)
	require.NotNil(t, err)
	require.Equal(t, "FrozenWriteError: Imported modules are read-only", err.Error())
}

// After every completed instruction, ret_stack and env_stack stay
// equal in length, including across nested calls.
func TestStackLengthInvariantAcrossNestedCalls(t *testing.T) {
	funcs := map[string]bytecode.Function{
		"a": {Name: "a", Params: nil, Address: 3},
		"b": {Name: "b", Params: nil, Address: 6},
	}
	code := []bytecode.Instruction{
		{Op: bytecode.OpCall, Str: "a"}, // 0
		{Op: bytecode.OpPop},            // 1
		{Op: bytecode.OpHalt},           // 2
		{Op: bytecode.OpCall, Str: "b"}, // 3 (a)
		{Op: bytecode.OpPushInt, Int: 1},// 4
		{Op: bytecode.OpRet},            // 5
		{Op: bytecode.OpPushInt, Int: 2},// 6 (b)
		{Op: bytecode.OpRet},            // 7
	}
	sink := &StringSink{}
	m := New(sink, nil)
	img := &bytecode.Image{Funcs: funcs, Code: code}
	err := m.Run(img)
	require.Nil(t, err)
	require.Equal(t, 0, len(m.envStack))
	require.Equal(t, 0, len(m.retStack))
}
