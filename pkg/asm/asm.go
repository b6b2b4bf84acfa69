// Package asm is a small mnemonic assembler for pkg/bytecode images.
//
// There is no OMG source compiler in this repository -- the compiler
// producing ".omgb" images is an external collaborator this VM only
// consumes. This package exists so the CLI's REPL and the embedding
// API's RunSource can still produce a *bytecode.Image without faking
// that compiler: it assembles a line-oriented mnemonic text format
// directly into the same Image the binary decoder produces.
//
// Format:
//
//	; a comment
//	push_int 5
//	push_str "hello"
//	label:
//	  jump label
//	func add(a, b):
//	  load a
//	  load b
//	  add
//	  ret
//	end
//
// Function bodies and top-level code share one flat instruction stream
// (a Call/TailCall resolves the callee by name through the function
// table at run time; only Jump/JumpIfFalse/SetupExcept need a resolved
// numeric address, via a label table built in a first pass).
package asm

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/sentrychris/omg/pkg/bytecode"
)

// Assemble parses src and returns a decoded Image equivalent to what a
// conforming compiler's binary output would decode to.
func Assemble(src string) (*bytecode.Image, error) {
	lines, err := tokenizeLines(src)
	if err != nil {
		return nil, err
	}

	labels := map[string]uint32{}
	funcs := map[string]bytecode.Function{}

	var addr uint32
	var curFunc *bytecode.Function
	for _, ln := range lines {
		if ln.label != "" {
			labels[ln.label] = addr
			continue
		}
		if ln.funcName != "" {
			f := bytecode.Function{Name: ln.funcName, Params: ln.funcParams, Address: addr}
			curFunc = &f
			continue
		}
		if ln.isEnd {
			if curFunc == nil {
				return nil, fmt.Errorf("asm: 'end' with no matching 'func'")
			}
			funcs[curFunc.Name] = *curFunc
			curFunc = nil
			continue
		}
		if ln.mnemonic != "" {
			addr++
		}
	}

	code := make([]bytecode.Instruction, 0, addr)
	for _, ln := range lines {
		if ln.mnemonic == "" {
			continue
		}
		ins, err := assembleInstruction(ln, labels)
		if err != nil {
			return nil, err
		}
		code = append(code, ins)
	}

	return &bytecode.Image{Version: bytecode.CurrentVersion, Funcs: funcs, Code: code}, nil
}

type line struct {
	label      string
	funcName   string
	funcParams []string
	isEnd      bool
	mnemonic   string
	operands   []string
}

func tokenizeLines(src string) ([]line, error) {
	var out []line
	scanner := bufio.NewScanner(strings.NewReader(src))
	for scanner.Scan() {
		raw := scanner.Text()
		if idx := strings.IndexByte(raw, ';'); idx >= 0 {
			raw = raw[:idx]
		}
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}

		switch {
		case strings.HasSuffix(text, ":") && !strings.HasPrefix(text, "func "):
			out = append(out, line{label: strings.TrimSuffix(text, ":")})
		case text == "end":
			out = append(out, line{isEnd: true})
		case strings.HasPrefix(text, "func "):
			name, params, err := parseFuncHeader(text)
			if err != nil {
				return nil, err
			}
			out = append(out, line{funcName: name, funcParams: params})
		default:
			fields := splitMnemonicLine(text)
			if len(fields) == 0 {
				continue
			}
			out = append(out, line{mnemonic: strings.ToLower(fields[0]), operands: fields[1:]})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("asm: scan: %w", err)
	}
	return out, nil
}

// parseFuncHeader parses "func name(a, b):" into its name and
// parameter list.
func parseFuncHeader(text string) (string, []string, error) {
	body := strings.TrimPrefix(text, "func ")
	body = strings.TrimSuffix(strings.TrimSpace(body), ":")
	open := strings.IndexByte(body, '(')
	close := strings.IndexByte(body, ')')
	if open < 0 || close < 0 || close < open {
		return "", nil, fmt.Errorf("asm: malformed func header %q", text)
	}
	name := strings.TrimSpace(body[:open])
	paramStr := strings.TrimSpace(body[open+1 : close])
	var params []string
	if paramStr != "" {
		for _, p := range strings.Split(paramStr, ",") {
			params = append(params, strings.TrimSpace(p))
		}
	}
	return name, params, nil
}

// splitMnemonicLine splits "push_str \"hello world\"" respecting a
// single quoted operand (the only kind of operand that may contain
// whitespace). Operands after the quoted one, as in
// `call_builtin "length" 1`, are kept.
func splitMnemonicLine(text string) []string {
	if qi := strings.IndexByte(text, '"'); qi >= 0 {
		head := strings.Fields(text[:qi])
		rest := text[qi:]
		end := strings.LastIndexByte(rest, '"')
		if end > 0 {
			quoted := rest[1:end]
			fields := append(head, quoted)
			return append(fields, strings.Fields(rest[end+1:])...)
		}
	}
	return strings.Fields(text)
}

func assembleInstruction(ln line, labels map[string]uint32) (bytecode.Instruction, error) {
	op, ok := mnemonics[ln.mnemonic]
	if !ok {
		return bytecode.Instruction{}, fmt.Errorf("asm: unknown mnemonic %q", ln.mnemonic)
	}
	ins := bytecode.Instruction{Op: op}

	switch op {
	case bytecode.OpPushInt:
		n, err := strconv.ParseInt(arg(ln, 0), 10, 64)
		if err != nil {
			return ins, fmt.Errorf("asm: %s: bad integer operand: %w", ln.mnemonic, err)
		}
		ins.Int = n
	case bytecode.OpPushStr, bytecode.OpLoad, bytecode.OpStore, bytecode.OpCall, bytecode.OpTailCall, bytecode.OpAttr, bytecode.OpStoreAttr:
		ins.Str = arg(ln, 0)
	case bytecode.OpPushBool:
		ins.Bool = arg(ln, 0) == "true"
	case bytecode.OpBuildList, bytecode.OpBuildDict:
		n, err := strconv.ParseUint(arg(ln, 0), 10, 32)
		if err != nil {
			return ins, fmt.Errorf("asm: %s: bad count operand: %w", ln.mnemonic, err)
		}
		ins.Count = uint32(n)
	case bytecode.OpJump, bytecode.OpJumpIfFalse, bytecode.OpSetupExcept:
		target := arg(ln, 0)
		if addr, ok := labels[target]; ok {
			ins.Target = addr
		} else {
			n, err := strconv.ParseUint(target, 10, 32)
			if err != nil {
				return ins, fmt.Errorf("asm: %s: unknown label or address %q", ln.mnemonic, target)
			}
			ins.Target = uint32(n)
		}
	case bytecode.OpCallBuiltin:
		ins.Str = arg(ln, 0)
		n, err := strconv.ParseUint(arg(ln, 1), 10, 32)
		if err != nil {
			return ins, fmt.Errorf("asm: call_builtin: bad argc operand: %w", err)
		}
		ins.Count = uint32(n)
	case bytecode.OpCallValue:
		n, err := strconv.ParseUint(arg(ln, 0), 10, 32)
		if err != nil {
			return ins, fmt.Errorf("asm: call_value: bad argc operand: %w", err)
		}
		ins.Count = uint32(n)
	case bytecode.OpRaise:
		n, err := strconv.ParseUint(arg(ln, 0), 10, 8)
		if err != nil {
			return ins, fmt.Errorf("asm: raise: bad kind operand: %w", err)
		}
		ins.Kind = byte(n)
	}

	return ins, nil
}

func arg(ln line, i int) string {
	if i < len(ln.operands) {
		return ln.operands[i]
	}
	return ""
}

var mnemonics = map[string]bytecode.Opcode{
	"push_int":             bytecode.OpPushInt,
	"push_str":             bytecode.OpPushStr,
	"push_bool":            bytecode.OpPushBool,
	"build_list":           bytecode.OpBuildList,
	"build_dict":           bytecode.OpBuildDict,
	"load":                 bytecode.OpLoad,
	"store":                bytecode.OpStore,
	"add":                  bytecode.OpAdd,
	"sub":                  bytecode.OpSub,
	"mul":                  bytecode.OpMul,
	"div":                  bytecode.OpDiv,
	"mod":                  bytecode.OpMod,
	"eq":                   bytecode.OpEq,
	"ne":                   bytecode.OpNe,
	"lt":                   bytecode.OpLt,
	"le":                   bytecode.OpLe,
	"gt":                   bytecode.OpGt,
	"ge":                   bytecode.OpGe,
	"band":                 bytecode.OpBAnd,
	"bor":                  bytecode.OpBOr,
	"bxor":                 bytecode.OpBXor,
	"shl":                  bytecode.OpShl,
	"shr":                  bytecode.OpShr,
	"and":                  bytecode.OpAnd,
	"or":                   bytecode.OpOr,
	"not":                  bytecode.OpNot,
	"neg":                  bytecode.OpNeg,
	"index":                bytecode.OpIndex,
	"slice":                bytecode.OpSlice,
	"jump":                 bytecode.OpJump,
	"jump_if_false":        bytecode.OpJumpIfFalse,
	"call":                 bytecode.OpCall,
	"tail_call":            bytecode.OpTailCall,
	"call_builtin":         bytecode.OpCallBuiltin,
	"pop":                  bytecode.OpPop,
	"push_none":            bytecode.OpPushNone,
	"ret":                  bytecode.OpRet,
	"emit":                 bytecode.OpEmit,
	"halt":                 bytecode.OpHalt,
	"store_index":          bytecode.OpStoreIndex,
	"attr":                 bytecode.OpAttr,
	"store_attr":           bytecode.OpStoreAttr,
	"assert":               bytecode.OpAssert,
	"call_value":           bytecode.OpCallValue,
	"setup_except":         bytecode.OpSetupExcept,
	"pop_block":            bytecode.OpPopBlock,
	"raise":                bytecode.OpRaise,
	"raise_syntax":         bytecode.OpRaiseSyntax,
	"raise_type":           bytecode.OpRaiseType,
	"raise_undefined_ident": bytecode.OpRaiseUndefinedIdent,
	"raise_value":          bytecode.OpRaiseValue,
	"raise_module_import":  bytecode.OpRaiseModuleImport,
}
