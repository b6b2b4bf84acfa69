// Package disasm renders a decoded bytecode.Image as human-readable
// text, the mirror image of pkg/asm.
package disasm

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sentrychris/omg/pkg/bytecode"
)

// Disassemble formats an image's function table and flat instruction
// stream for inspection, one instruction per line, addresses on the
// left, function boundaries marked with a "func name(params):" header
// line.
func Disassemble(img *bytecode.Image) string {
	var b strings.Builder

	fmt.Fprintf(&b, "; version %d.%d.%d\n", img.Version>>16, (img.Version>>8)&0xFF, img.Version&0xFF)

	names := make([]string, 0, len(img.Funcs))
	for name := range img.Funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		fmt.Fprintln(&b, "; functions:")
		for _, name := range names {
			fn := img.Funcs[name]
			fmt.Fprintf(&b, ";   %s(%s) @ %d\n", fn.Name, strings.Join(fn.Params, ", "), fn.Address)
		}
	}
	fmt.Fprintln(&b)

	starts := map[uint32]string{}
	for _, name := range names {
		starts[img.Funcs[name].Address] = name
	}

	for addr, ins := range img.Code {
		if name, ok := starts[uint32(addr)]; ok {
			fmt.Fprintf(&b, "func %s(%s):\n", name, strings.Join(img.Funcs[name].Params, ", "))
		}
		fmt.Fprintf(&b, "%6d: %s\n", addr, formatInstruction(ins))
	}

	return b.String()
}

func formatInstruction(ins bytecode.Instruction) string {
	op := ins.Op.String()
	switch ins.Op {
	case bytecode.OpPushInt:
		return fmt.Sprintf("%-14s %d", op, ins.Int)
	case bytecode.OpPushStr, bytecode.OpLoad, bytecode.OpStore, bytecode.OpCall, bytecode.OpTailCall, bytecode.OpAttr, bytecode.OpStoreAttr:
		return fmt.Sprintf("%-14s %q", op, ins.Str)
	case bytecode.OpPushBool:
		return fmt.Sprintf("%-14s %t", op, ins.Bool)
	case bytecode.OpBuildList, bytecode.OpBuildDict:
		return fmt.Sprintf("%-14s %d", op, ins.Count)
	case bytecode.OpJump, bytecode.OpJumpIfFalse, bytecode.OpSetupExcept:
		return fmt.Sprintf("%-14s -> %d", op, ins.Target)
	case bytecode.OpCallBuiltin:
		return fmt.Sprintf("%-14s %q, argc=%d", op, ins.Str, ins.Count)
	case bytecode.OpCallValue:
		return fmt.Sprintf("%-14s argc=%d", op, ins.Count)
	case bytecode.OpRaise:
		return fmt.Sprintf("%-14s kind=%d", op, ins.Kind)
	default:
		return op
	}
}
