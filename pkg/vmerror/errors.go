// Package vmerror defines the OMG VM's runtime error taxonomy: the
// ErrorKind tags carried in bytecode (the Raise opcode's operand) and
// the structured RuntimeError variants the VM's handlers return.
package vmerror

import "fmt"

// ErrorKind is the compact, stable-numbered tag a Raise instruction
// carries. The numbering mirrors the decoder's RAISE_* shorthand
// opcodes (pkg/bytecode) and must not be renumbered independently of
// them.
type ErrorKind byte

const (
	KindGeneric ErrorKind = iota
	KindSyntax
	KindType
	KindUndefinedIdent
	KindValue
	KindModuleImport
)

// IntoRuntimeError builds the RuntimeError a Raise(kind) instruction
// produces from its popped message.
func (k ErrorKind) IntoRuntimeError(msg string) *RuntimeError {
	switch k {
	case KindSyntax:
		return SyntaxError(msg)
	case KindType:
		return TypeError(msg)
	case KindUndefinedIdent:
		return UndefinedIdentError(msg)
	case KindValue:
		return ValueError(msg)
	case KindModuleImport:
		return ModuleImportError(msg)
	default:
		return Raised(msg)
	}
}

// Variant discriminates the RuntimeError cases; Display formatting and
// any future triage (e.g. a type_of-style catch dispatch) switches on
// this rather than on Go's dynamic type.
type Variant int

const (
	VAssertionError Variant = iota
	VFrozenWriteError
	VIndexError
	VKeyError
	VModuleImportError
	VSyntaxError
	VTypeError
	VUndefinedIdentError
	VValueError
	VZeroDivisionError
	VRaised
	VVmInvariant
)

// RuntimeError is the structured error every VM instruction handler and
// built-in returns in place of a Value. It always carries a kind name
// and a message; display is uniformly "KindName: message".
type RuntimeError struct {
	Variant Variant
	Kind    string
	Message string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func AssertionError() *RuntimeError {
	return &RuntimeError{Variant: VAssertionError, Kind: "AssertionError", Message: "assertion failed"}
}

// FrozenWriteErr is the exact wording every write to a FrozenDict
// produces, whether via index or attribute assignment.
func FrozenWriteErr() *RuntimeError {
	return &RuntimeError{
		Variant: VFrozenWriteError,
		Kind:    "FrozenWriteError",
		Message: "Imported modules are read-only",
	}
}

func IndexError(msg string) *RuntimeError {
	return &RuntimeError{Variant: VIndexError, Kind: "IndexError", Message: msg}
}

// KeyError wraps the missing key in quotes per the display contract.
func KeyError(key string) *RuntimeError {
	return &RuntimeError{Variant: VKeyError, Kind: "KeyError", Message: fmt.Sprintf("%q", key)}
}

func ModuleImportError(msg string) *RuntimeError {
	return &RuntimeError{Variant: VModuleImportError, Kind: "ModuleImportError", Message: msg}
}

func SyntaxError(msg string) *RuntimeError {
	return &RuntimeError{Variant: VSyntaxError, Kind: "SyntaxError", Message: msg}
}

func TypeError(msg string) *RuntimeError {
	return &RuntimeError{Variant: VTypeError, Kind: "TypeError", Message: msg}
}

func UndefinedIdentError(name string) *RuntimeError {
	return &RuntimeError{Variant: VUndefinedIdentError, Kind: "UndefinedIdentError", Message: name}
}

func ValueError(msg string) *RuntimeError {
	return &RuntimeError{Variant: VValueError, Kind: "ValueError", Message: msg}
}

func ZeroDivisionError() *RuntimeError {
	return &RuntimeError{
		Variant: VZeroDivisionError,
		Kind:    "ZeroDivisionError",
		Message: "integer division or modulo by zero",
	}
}

// Raised is the generic user-raised error produced by panic()/raise().
func Raised(msg string) *RuntimeError {
	return &RuntimeError{Variant: VRaised, Kind: "RuntimeError", Message: msg}
}

// VmInvariant signals an implementation defect -- stack underflow, a
// malformed call frame, anything that well-formed bytecode should never
// trigger. It must never be silently swallowed by a catch block's own
// bookkeeping; tests pin its exact occurrences.
func VmInvariant(msg string) *RuntimeError {
	return &RuntimeError{Variant: VVmInvariant, Kind: "VmInvariant", Message: msg}
}
