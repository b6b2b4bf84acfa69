package vm

import (
	"fmt"

	"github.com/sentrychris/omg/pkg/value"
	"github.com/sentrychris/omg/pkg/vmerror"
)

// opLoad implements Load resolution: local env first, then globals;
// missing yields UndefinedIdentError.
func (m *VM) opLoad(name string) *vmerror.RuntimeError {
	if v, ok := m.env[name]; ok {
		m.push(v)
		return nil
	}
	if v, ok := m.globals[name]; ok {
		m.push(v)
		return nil
	}
	return vmerror.UndefinedIdentError(name)
}

// opStore implements the Store placement rule: inside a function frame,
// an existing local wins; otherwise an existing global wins; otherwise
// inside a function frame it becomes a new local, and at top level it
// becomes a new global.
func (m *VM) opStore(name string) *vmerror.RuntimeError {
	v, err := m.pop()
	if err != nil {
		return err
	}
	inFunction := len(m.envStack) > 0
	if inFunction {
		if _, ok := m.env[name]; ok {
			m.env[name] = v
			return nil
		}
		if _, ok := m.globals[name]; ok {
			m.globals[name] = v
			return nil
		}
		m.env[name] = v
		return nil
	}
	m.globals[name] = v
	return nil
}

func (m *VM) lookupFunc(name string) (uint32, []string, *vmerror.RuntimeError) {
	fn, ok := m.img.Funcs[name]
	if !ok {
		return 0, nil, vmerror.UndefinedIdentError(name)
	}
	return fn.Address, fn.Params, nil
}

// bindParams pops len(params) arguments in reverse (so left-to-right
// call-site order is restored) and returns a fresh local environment.
func (m *VM) bindParams(params []string) (map[string]value.Value, *vmerror.RuntimeError) {
	args := make([]value.Value, len(params))
	for i := len(params) - 1; i >= 0; i-- {
		v, err := m.pop()
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	env := make(map[string]value.Value, len(params))
	for i, p := range params {
		env[p] = args[i]
	}
	return env, nil
}

// opCall implements Call: push the current frame and return address,
// then transfer control into the callee with a fresh local env.
func (m *VM) opCall(name string, advance *bool) *vmerror.RuntimeError {
	addr, params, err := m.lookupFunc(name)
	if err != nil {
		return err
	}
	env, err := m.bindParams(params)
	if err != nil {
		return err
	}
	m.envStack = append(m.envStack, frame{env: m.env})
	m.retStack = append(m.retStack, m.pc+1)
	m.env = env
	m.pc = addr
	*advance = false
	return nil
}

// opTailCall implements TailCall: same binding as Call, but the current
// frame is reused -- neither stack grows.
func (m *VM) opTailCall(name string, advance *bool) *vmerror.RuntimeError {
	addr, params, err := m.lookupFunc(name)
	if err != nil {
		return err
	}
	env, err := m.bindParams(params)
	if err != nil {
		return err
	}
	m.env = env
	m.pc = addr
	*advance = false
	return nil
}

// opCallValue implements CallValue: the callee is popped from the stack
// itself (after its arguments) and must be a Str function name.
func (m *VM) opCallValue(argc uint32, advance *bool) *vmerror.RuntimeError {
	args := make([]value.Value, argc)
	for i := int(argc) - 1; i >= 0; i-- {
		v, err := m.pop()
		if err != nil {
			return err
		}
		args[i] = v
	}
	callee, err := m.pop()
	if err != nil {
		return err
	}
	if callee.Kind != value.KindStr {
		return vmerror.TypeError("call target must be a function name")
	}
	addr, params, err := m.lookupFunc(callee.Str)
	if err != nil {
		return err
	}
	if len(params) != len(args) {
		return vmerror.TypeError(fmt.Sprintf("%s expects %d arguments, got %d", callee.Str, len(params), len(args)))
	}
	env := make(map[string]value.Value, len(params))
	for i, p := range params {
		env[p] = args[i]
	}
	m.envStack = append(m.envStack, frame{env: m.env})
	m.retStack = append(m.retStack, m.pc+1)
	m.env = env
	m.pc = addr
	*advance = false
	return nil
}

// opRet implements Ret: pop the return value, restore env/pc from the
// call stacks, push the return value back. Per the resolved open
// question, Ret on empty stacks is a VmInvariant, not a graceful halt
// -- it is reachable only by malformed bytecode.
func (m *VM) opRet(advance *bool) *vmerror.RuntimeError {
	rv, err := m.pop()
	if err != nil {
		return err
	}
	if len(m.retStack) == 0 || len(m.envStack) == 0 {
		return vmerror.VmInvariant("RET with empty call stack")
	}
	m.pc = m.retStack[len(m.retStack)-1]
	m.retStack = m.retStack[:len(m.retStack)-1]
	m.env = m.envStack[len(m.envStack)-1].env
	m.envStack = m.envStack[:len(m.envStack)-1]
	m.push(rv)
	*advance = false
	return nil
}

// opEmit implements Emit: pop and deliver one value to the sink.
func (m *VM) opEmit() *vmerror.RuntimeError {
	v, err := m.pop()
	if err != nil {
		return err
	}
	if sinkErr := m.sink.Emit(v.String()); sinkErr != nil {
		return vmerror.VmInvariant(fmt.Sprintf("output sink error: %v", sinkErr))
	}
	return nil
}

// opAssert implements Assert: pop; falsy yields AssertionError.
func (m *VM) opAssert() *vmerror.RuntimeError {
	v, err := m.pop()
	if err != nil {
		return err
	}
	if !v.AsBool() {
		return vmerror.AssertionError()
	}
	return nil
}

// opRaise implements Raise(kind): pop the message, build the
// kind-tagged RuntimeError. An empty stack is a VmInvariant with exact
// wording rather than a generic underflow message.
func (m *VM) opRaise(kind vmerror.ErrorKind) *vmerror.RuntimeError {
	if len(m.stack) == 0 {
		return vmerror.VmInvariant("stack underflow on RAISE")
	}
	v, _ := m.pop()
	return kind.IntoRuntimeError(v.String())
}
