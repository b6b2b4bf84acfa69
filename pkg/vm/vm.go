// Package vm implements the OMG bytecode virtual machine.
//
// Execution Model:
//
// The VM is a stack machine driven by a single fetch-decode-execute
// loop (Run). Each instruction pops its operands off a value stack and
// pushes its result back. Two companion stacks of always-equal length
// track call frames: envStack holds saved local environments, retStack
// holds saved program counters. A separate block stack records
// protected (try) regions for exception unwinding.
//
//	Source: PushInt 2; PushInt 3; Add; Emit; Halt
//
//	pc=0 PushInt 2  -> stack=[2]
//	pc=1 PushInt 3  -> stack=[2,3]
//	pc=2 Add        -> stack=[5]
//	pc=3 Emit       -> stack=[], sink receives "5"
//	pc=4 Halt       -> run ends cleanly
//
// Error Handling:
//
// Every instruction handler returns a *vmerror.RuntimeError instead of
// panicking. Run observes that error and either unwinds to the nearest
// protected block (§ exception semantics) or, if no block covers the
// current depth, ends the run reporting the error.
package vm

import (
	"fmt"

	"github.com/sentrychris/omg/pkg/bytecode"
	"github.com/sentrychris/omg/pkg/value"
	"github.com/sentrychris/omg/pkg/vmerror"
)

// Logger is the minimal observational hook the VM calls on any error
// that propagates out of Run uncaught. It never affects control flow --
// a nil Logger is always valid and simply means nothing is logged.
type Logger interface {
	Errorf(format string, args ...interface{})
}

// block is a protected (try) region descriptor, captured by
// SetupExcept and consumed on either PopBlock or an unwind.
type block struct {
	handlerPC uint32
	stackSize int
	envDepth  int
	retDepth  int
}

// frame is a saved call context: the caller's local environment. The
// PC execution resumes at when the callee returns is kept separately,
// on retStack.
type frame struct {
	env map[string]value.Value
}

// VM holds all mutable execution state for one run.
type VM struct {
	stack []value.Value

	env     map[string]value.Value
	globals map[string]value.Value

	envStack []frame
	retStack []uint32

	blocks []block

	files *FileTable

	sink   OutputSink
	logger Logger

	img *bytecode.Image
	pc  uint32
}

// New constructs a VM ready to Run a decoded image. sink receives Emit
// output; a nil sink is replaced with a StringSink so Run never needs
// to nil-check it. logger may be nil.
func New(sink OutputSink, logger Logger) *VM {
	if sink == nil {
		sink = &StringSink{}
	}
	return &VM{
		env:     make(map[string]value.Value),
		globals: make(map[string]value.Value),
		files:   NewFileTable(),
		sink:    sink,
		logger:  logger,
	}
}

// Sink returns the VM's output sink, e.g. for an embedding host that
// wants to read back a *StringSink's accumulated text after Run.
func (m *VM) Sink() OutputSink { return m.sink }

// SetFileTable replaces the VM's own file-handle table with t, so that
// several VMs given the same table share one handle space.
func (m *VM) SetFileTable(t *FileTable) { m.files = t }

// Seed populates globals before the first instruction runs, per
// spec.md's driver contract: args, module_file, current_dir.
func (m *VM) Seed(args []string, moduleFile string) {
	items := make([]value.Value, len(args))
	for i, a := range args {
		items[i] = value.Str(a)
	}
	m.globals["args"] = value.NewList(items)

	mf := normalizeSlashes(moduleFile)
	if mf == "" {
		mf = "<stdin>"
	}
	m.globals["module_file"] = value.Str(mf)
	m.globals["current_dir"] = value.Str(parentDir(mf))
}

func normalizeSlashes(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			out[i] = '/'
		} else {
			out[i] = s[i]
		}
	}
	return string(out)
}

func parentDir(moduleFile string) string {
	if moduleFile == "<stdin>" || moduleFile == "" {
		return "."
	}
	idx := -1
	for i := len(moduleFile) - 1; i >= 0; i-- {
		if moduleFile[i] == '/' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "."
	}
	if idx == 0 {
		return "/"
	}
	return moduleFile[:idx]
}

// Run executes img's instruction stream from pc=0 until Halt or an
// uncaught error. It implements the driver loop of spec.md §4.G:
// dispatch, block-unwind on error, conditional PC advance.
func (m *VM) Run(img *bytecode.Image) *vmerror.RuntimeError {
	m.img = img
	m.pc = 0

	for int(m.pc) < len(img.Code) {
		ins := img.Code[m.pc]
		advance := true

		err := m.step(ins, &advance)
		if err != nil {
			if unwound := m.unwind(err); unwound {
				continue
			}
			return err
		}

		if len(m.retStack) != len(m.envStack) {
			return vmerror.VmInvariant("ret_stack/env_stack length mismatch")
		}

		if advance {
			m.pc++
		}
	}
	return nil
}

// step dispatches one instruction. advance is true unless the handler
// itself changed pc (jumps, calls, returns, halt).
func (m *VM) step(ins bytecode.Instruction, advance *bool) *vmerror.RuntimeError {
	switch ins.Op {
	case bytecode.OpPushInt:
		m.push(value.Int(ins.Int))
	case bytecode.OpPushStr:
		m.push(value.Str(ins.Str))
	case bytecode.OpPushBool:
		m.push(value.Bool(ins.Bool))
	case bytecode.OpPushNone:
		m.push(value.None())
	case bytecode.OpPop:
		if _, err := m.pop(); err != nil {
			return err
		}
	case bytecode.OpBuildList:
		return m.opBuildList(ins.Count)
	case bytecode.OpBuildDict:
		return m.opBuildDict(ins.Count)
	case bytecode.OpLoad:
		return m.opLoad(ins.Str)
	case bytecode.OpStore:
		return m.opStore(ins.Str)

	case bytecode.OpAdd:
		return m.opAdd()
	case bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpMod,
		bytecode.OpBAnd, bytecode.OpBOr, bytecode.OpBXor, bytecode.OpShl, bytecode.OpShr:
		return m.opIntBinary(ins.Op)
	case bytecode.OpEq, bytecode.OpNe:
		return m.opEquality(ins.Op)
	case bytecode.OpLt, bytecode.OpLe, bytecode.OpGt, bytecode.OpGe:
		return m.opCompare(ins.Op)
	case bytecode.OpAnd, bytecode.OpOr:
		return m.opBoolBinary(ins.Op)
	case bytecode.OpNot:
		return m.opNot()
	case bytecode.OpNeg:
		return m.opNeg()

	case bytecode.OpIndex:
		return m.opIndex()
	case bytecode.OpSlice:
		return m.opSlice()
	case bytecode.OpStoreIndex:
		return m.opStoreIndex()
	case bytecode.OpAttr:
		return m.opAttr(ins.Str)
	case bytecode.OpStoreAttr:
		return m.opStoreAttr(ins.Str)

	case bytecode.OpJump:
		m.pc = ins.Target
		*advance = false
	case bytecode.OpJumpIfFalse:
		v, err := m.pop()
		if err != nil {
			return err
		}
		if !v.AsBool() {
			m.pc = ins.Target
			*advance = false
		}
	case bytecode.OpCall:
		return m.opCall(ins.Str, advance)
	case bytecode.OpTailCall:
		return m.opTailCall(ins.Str, advance)
	case bytecode.OpCallValue:
		return m.opCallValue(ins.Count, advance)
	case bytecode.OpCallBuiltin:
		return m.opCallBuiltin(ins.Str, ins.Count)
	case bytecode.OpRet:
		return m.opRet(advance)
	case bytecode.OpEmit:
		return m.opEmit()
	case bytecode.OpHalt:
		m.pc = uint32(len(m.img.Code))
		*advance = false
	case bytecode.OpAssert:
		return m.opAssert()

	case bytecode.OpSetupExcept:
		m.blocks = append(m.blocks, block{
			handlerPC: ins.Target,
			stackSize: len(m.stack),
			envDepth:  len(m.envStack),
			retDepth:  len(m.retStack),
		})
	case bytecode.OpPopBlock:
		if len(m.blocks) == 0 {
			return vmerror.VmInvariant("POP_BLOCK with no active block")
		}
		m.blocks = m.blocks[:len(m.blocks)-1]
	case bytecode.OpRaise:
		return m.opRaise(vmerror.ErrorKind(ins.Kind))
	case bytecode.OpRaiseSyntax:
		return m.opRaise(vmerror.KindSyntax)
	case bytecode.OpRaiseType:
		return m.opRaise(vmerror.KindType)
	case bytecode.OpRaiseUndefinedIdent:
		return m.opRaise(vmerror.KindUndefinedIdent)
	case bytecode.OpRaiseValue:
		return m.opRaise(vmerror.KindValue)
	case bytecode.OpRaiseModuleImport:
		return m.opRaise(vmerror.KindModuleImport)

	default:
		return vmerror.VmInvariant(fmt.Sprintf("unimplemented opcode %s", ins.Op))
	}
	return nil
}

// unwind implements the exception semantics of spec.md §4.E: if no
// block covers the current depth, the error propagates out of Run (and
// is logged, if a Logger is attached); otherwise the innermost block is
// popped, all three stacks are truncated to its recorded depths, the
// error's display string is pushed, pc jumps to the handler, and the
// loop must NOT auto-advance past it.
func (m *VM) unwind(err *vmerror.RuntimeError) bool {
	if len(m.blocks) == 0 {
		if m.logger != nil {
			m.logger.Errorf("uncaught %s", err.Error())
		}
		return false
	}
	b := m.blocks[len(m.blocks)-1]
	m.blocks = m.blocks[:len(m.blocks)-1]

	if b.envDepth < len(m.envStack) {
		m.env = m.envStack[b.envDepth].env
	}
	m.envStack = m.envStack[:b.envDepth]
	m.retStack = m.retStack[:b.retDepth]
	if b.stackSize <= len(m.stack) {
		m.stack = m.stack[:b.stackSize]
	}

	m.push(value.Str(err.Error()))
	m.pc = b.handlerPC
	return true
}

func (m *VM) push(v value.Value) { m.stack = append(m.stack, v) }

func (m *VM) pop() (value.Value, *vmerror.RuntimeError) {
	if len(m.stack) == 0 {
		return value.Value{}, vmerror.VmInvariant("stack underflow")
	}
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v, nil
}

func (m *VM) peek() (value.Value, *vmerror.RuntimeError) {
	if len(m.stack) == 0 {
		return value.Value{}, vmerror.VmInvariant("stack underflow")
	}
	return m.stack[len(m.stack)-1], nil
}
