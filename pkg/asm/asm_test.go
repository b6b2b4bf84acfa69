package asm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentrychris/omg/pkg/bytecode"
)

func TestAssembleTopLevel(t *testing.T) {
	src := `
; push two ints, add, print
push_int 2
push_int 3
add
emit
halt
`
	img, err := Assemble(src)
	require.NoError(t, err)
	require.Len(t, img.Code, 5)
	require.Equal(t, bytecode.OpAdd, img.Code[2].Op)
	require.Equal(t, int64(2), img.Code[0].Int)
}

func TestAssembleFuncAndLabels(t *testing.T) {
	src := `
push_int 1
call inc
emit
halt

func inc(n):
  loop_start:
  load n
  push_int 1
  add
  jump_if_false loop_start
  ret
end
`
	img, err := Assemble(src)
	require.NoError(t, err)
	fn, ok := img.Funcs["inc"]
	require.True(t, ok)
	require.Equal(t, []string{"n"}, fn.Params)
	require.Equal(t, uint32(4), fn.Address)

	jump := img.Code[7]
	require.Equal(t, bytecode.OpJumpIfFalse, jump.Op)
	require.Equal(t, fn.Address, jump.Target)
}

func TestAssembleStringOperand(t *testing.T) {
	src := `push_str "hello world"
store greeting
halt`
	img, err := Assemble(src)
	require.NoError(t, err)
	require.Equal(t, "hello world", img.Code[0].Str)
	require.Equal(t, "greeting", img.Code[1].Str)
}

func TestAssembleUnknownMnemonicErrors(t *testing.T) {
	_, err := Assemble("frobnicate 1\n")
	require.Error(t, err)
}

func TestAssembleUnknownLabelErrors(t *testing.T) {
	_, err := Assemble("jump nowhere\nhalt\n")
	require.Error(t, err)
}
