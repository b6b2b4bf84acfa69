package vm

import (
	"fmt"
	"math"

	"github.com/sentrychris/omg/pkg/bytecode"
	"github.com/sentrychris/omg/pkg/value"
	"github.com/sentrychris/omg/pkg/vmerror"
)

// opAdd implements Add. Operand order is pop b, pop a; the operation is
// a op b. Str+Str concatenates; Str+any/any+Str stringifies the other
// side; List+List extends the left list in place and pushes it back,
// preserving its identity; otherwise integer addition.
func (m *VM) opAdd() *vmerror.RuntimeError {
	b, err := m.pop()
	if err != nil {
		return err
	}
	a, err := m.pop()
	if err != nil {
		return err
	}

	switch {
	case a.Kind == value.KindStr && b.Kind == value.KindStr:
		m.push(value.Str(a.Str + b.Str))
	case a.Kind == value.KindStr:
		m.push(value.Str(a.Str + b.String()))
	case b.Kind == value.KindStr:
		m.push(value.Str(a.String() + b.Str))
	case a.Kind == value.KindList && b.Kind == value.KindList:
		a.List.Items = append(a.List.Items, b.List.Items...)
		m.push(a)
	default:
		x, y, terr := bothAsInt(a, b)
		if terr != nil {
			return terr
		}
		m.push(value.Int(x + y))
	}
	return nil
}

// bothAsInt coerces a and b to integers, raising TypeError naming the
// offending value if either is a Str that does not parse as one.
func bothAsInt(a, b value.Value) (int64, int64, *vmerror.RuntimeError) {
	x, ok := a.TryAsInt()
	if !ok {
		return 0, 0, vmerror.TypeError(fmt.Sprintf("not a number: %q", a.Str))
	}
	y, ok := b.TryAsInt()
	if !ok {
		return 0, 0, vmerror.TypeError(fmt.Sprintf("not a number: %q", b.Str))
	}
	return x, y, nil
}

// opIntBinary implements Sub/Mul/Div/Mod/BAnd/BOr/BXor/Shl/Shr, all pure
// integer operations over as_int-coerced operands.
func (m *VM) opIntBinary(op bytecode.Opcode) *vmerror.RuntimeError {
	b, err := m.pop()
	if err != nil {
		return err
	}
	a, err := m.pop()
	if err != nil {
		return err
	}
	x, y, terr := bothAsInt(a, b)
	if terr != nil {
		return terr
	}

	switch op {
	case bytecode.OpSub:
		m.push(value.Int(x - y))
	case bytecode.OpMul:
		m.push(value.Int(mulOverflowsToZero(x, y)))
	case bytecode.OpDiv:
		if y == 0 {
			return vmerror.ZeroDivisionError()
		}
		m.push(value.Int(x / y))
	case bytecode.OpMod:
		if y == 0 {
			return vmerror.ZeroDivisionError()
		}
		m.push(value.Int(x % y))
	case bytecode.OpBAnd:
		m.push(value.Int(x & y))
	case bytecode.OpBOr:
		m.push(value.Int(x | y))
	case bytecode.OpBXor:
		m.push(value.Int(x ^ y))
	case bytecode.OpShl:
		m.push(value.Int(x << uint64(y)))
	case bytecode.OpShr:
		m.push(value.Int(x >> uint64(y)))
	}
	return nil
}

// mulOverflowsToZero implements the spec's documented (if unusual)
// overflow policy: a signed 64-bit multiply that overflows yields 0
// rather than wrapping or saturating, matching the reference
// implementation's checked_mul(..).unwrap_or(0).
func mulOverflowsToZero(x, y int64) int64 {
	if x == 0 || y == 0 {
		return 0
	}
	if x == math.MinInt64 && y == -1 {
		return 0
	}
	r := x * y
	if r/y != x {
		return 0
	}
	return r
}

// opEquality implements Eq/Ne: compare the stringified forms of both
// operands, which is cross-type safe by construction.
func (m *VM) opEquality(op bytecode.Opcode) *vmerror.RuntimeError {
	b, err := m.pop()
	if err != nil {
		return err
	}
	a, err := m.pop()
	if err != nil {
		return err
	}
	eq := a.String() == b.String()
	if op == bytecode.OpNe {
		eq = !eq
	}
	m.push(value.Bool(eq))
	return nil
}

// opCompare implements Lt/Le/Gt/Ge: lexicographic when both operands
// are strings, otherwise integer comparison via as_int.
func (m *VM) opCompare(op bytecode.Opcode) *vmerror.RuntimeError {
	b, err := m.pop()
	if err != nil {
		return err
	}
	a, err := m.pop()
	if err != nil {
		return err
	}

	var result bool
	if a.Kind == value.KindStr && b.Kind == value.KindStr {
		switch op {
		case bytecode.OpLt:
			result = a.Str < b.Str
		case bytecode.OpLe:
			result = a.Str <= b.Str
		case bytecode.OpGt:
			result = a.Str > b.Str
		case bytecode.OpGe:
			result = a.Str >= b.Str
		}
	} else {
		x, y, terr := bothAsInt(a, b)
		if terr != nil {
			return terr
		}
		switch op {
		case bytecode.OpLt:
			result = x < y
		case bytecode.OpLe:
			result = x <= y
		case bytecode.OpGt:
			result = x > y
		case bytecode.OpGe:
			result = x >= y
		}
	}
	m.push(value.Bool(result))
	return nil
}

// opBoolBinary implements And/Or: boolean logic over as_bool. Neither
// is short-circuiting at the bytecode level -- both operands are always
// popped; a compiler lowering short-circuit semantics is responsible
// for emitting JumpIfFalse/Jump instead.
func (m *VM) opBoolBinary(op bytecode.Opcode) *vmerror.RuntimeError {
	b, err := m.pop()
	if err != nil {
		return err
	}
	a, err := m.pop()
	if err != nil {
		return err
	}
	var result bool
	if op == bytecode.OpAnd {
		result = a.AsBool() && b.AsBool()
	} else {
		result = a.AsBool() || b.AsBool()
	}
	m.push(value.Bool(result))
	return nil
}

// opNot implements Not: bitwise complement on the as_int coercion.
func (m *VM) opNot() *vmerror.RuntimeError {
	a, err := m.pop()
	if err != nil {
		return err
	}
	x, ok := a.TryAsInt()
	if !ok {
		return vmerror.TypeError(fmt.Sprintf("not a number: %q", a.Str))
	}
	m.push(value.Int(^x))
	return nil
}

// opNeg implements Neg: integer negation.
func (m *VM) opNeg() *vmerror.RuntimeError {
	a, err := m.pop()
	if err != nil {
		return err
	}
	x, ok := a.TryAsInt()
	if !ok {
		return vmerror.TypeError(fmt.Sprintf("not a number: %q", a.Str))
	}
	m.push(value.Int(-x))
	return nil
}
