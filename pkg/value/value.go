// Package value implements the OMG VM's dynamic value model: a small
// tagged union plus the coercion and stringification rules every
// instruction handler in pkg/vm builds on.
//
// Shared-mutable aggregates:
//
// The reference implementation models List/Dict/FrozenDict as
// reference-counted cells with interior mutability (Rc<RefCell<...>>).
// Go's garbage collector makes an explicit refcount unnecessary: a
// *ListNode or *DictNode is itself a shared, heap-allocated handle, and
// aliasing two Values that point at the same node gives the same
// observable sharing (including the List+List left-append identity
// behavior) without any manual bookkeeping. Unlike reference counting,
// Go's tracing GC also reclaims cycles once they become unreachable, so
// cyclic Lists/Dicts do not leak here.
package value

import (
	"strconv"
	"strings"
)

// Kind tags which case of the Value union is populated.
type Kind byte

const (
	KindInt Kind = iota
	KindStr
	KindBool
	KindList
	KindDict
	KindFrozenDict
	KindNone
)

// String names a Kind, used by the type_of built-in and diagnostics.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindStr:
		return "str"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	case KindFrozenDict:
		return "frozen_dict"
	case KindNone:
		return "none"
	default:
		return "unknown"
	}
}

// ListNode is the shared, mutable backing store for a List value.
// Holding a *ListNode (rather than a slice) is what lets two Values
// alias the same sequence after an Add that appends in place.
type ListNode struct {
	Items []Value
}

// DictNode is the shared, mutable backing store for a Dict value.
type DictNode struct {
	Entries map[string]Value
	// Order preserves insertion order for deterministic stringification
	// and key enumeration (keys() built-in), matching a dict's observed
	// iteration order in the reference implementation closely enough to
	// be deterministic across runs -- Go maps are not.
	Order []string
	// Frozen marks a DictNode produced by freeze(). The write paths
	// (StoreIndex, StoreAttr) reject the KindFrozenDict value that
	// carries such a node before mutating.
	Frozen bool
}

// Value is the tagged union every VM stack slot, environment slot, and
// container element holds.
type Value struct {
	Kind Kind
	Int  int64
	Str  string
	Bool bool
	List *ListNode
	Dict *DictNode
}

// Int wraps an int64 as an Int value.
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }

// Str wraps a string as a Str value.
func Str(s string) Value { return Value{Kind: KindStr, Str: s} }

// Bool wraps a bool as a Bool value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// None is the sentinel absence-of-value.
func None() Value { return Value{Kind: KindNone} }

// NewList builds a List value over freshly allocated, independently
// owned backing storage.
func NewList(items []Value) Value {
	return Value{Kind: KindList, List: &ListNode{Items: items}}
}

// NewDict builds a Dict value over freshly allocated backing storage.
func NewDict(entries map[string]Value, order []string) Value {
	return Value{Kind: KindDict, Dict: &DictNode{Entries: entries, Order: order}}
}

// Frozen returns a shallow-copied, immutable snapshot of d -- the
// freeze() built-in's job, factored out so vm can call it directly.
func (v Value) Frozen() Value {
	src := v.Dict
	entries := make(map[string]Value, len(src.Entries))
	for k, val := range src.Entries {
		entries[k] = val
	}
	order := append([]string(nil), src.Order...)
	return Value{
		Kind: KindFrozenDict,
		Dict: &DictNode{Entries: entries, Order: order, Frozen: true},
	}
}

// IsDictLike reports whether v is a Dict or FrozenDict -- Attr/StoreAttr
// accept either.
func (v Value) IsDictLike() bool {
	return v.Kind == KindDict || v.Kind == KindFrozenDict
}

// AsInt coerces v per the spec's as_int rule, treating an unparseable
// Str as 0. Arithmetic op handlers that must raise TypeError on a bad
// numeric string use TryAsInt instead.
func (v Value) AsInt() int64 {
	n, _ := v.TryAsInt()
	return n
}

// TryAsInt coerces v per the spec's as_int rule, reporting a Str that
// fails to parse as ok=false rather than silently coercing it to 0.
func (v Value) TryAsInt() (n int64, ok bool) {
	switch v.Kind {
	case KindInt:
		return v.Int, true
	case KindStr:
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	case KindBool:
		if v.Bool {
			return 1, true
		}
		return 0, true
	case KindList:
		return int64(len(v.List.Items)), true
	case KindDict, KindFrozenDict:
		return int64(len(v.Dict.Order)), true
	case KindNone:
		return 0, true
	default:
		return 0, true
	}
}

// AsBool coerces v per the spec's as_bool rule.
func (v Value) AsBool() bool {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindInt:
		return v.Int != 0
	case KindStr:
		return v.Str != ""
	case KindList:
		return len(v.List.Items) > 0
	case KindDict, KindFrozenDict:
		return len(v.Dict.Order) > 0
	case KindNone:
		return false
	default:
		return false
	}
}

// String renders v the way the VM's Emit, Eq/Ne, and error-message
// formatting all expect: None prints as the empty string, and nested
// aggregates are joined the same way on every level of recursion.
func (v Value) String() string {
	seen := make(map[interface{}]bool)
	return stringify(v, seen)
}

func stringify(v Value, seen map[interface{}]bool) string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindStr:
		return v.Str
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNone:
		return ""
	case KindList:
		// Marked seen for the remainder of this top-level String() call,
		// not just the ancestor chain -- matching the reference
		// stringifier, which never un-marks an identity once visited.
		if seen[v.List] {
			return "[...]"
		}
		seen[v.List] = true
		parts := make([]string, len(v.List.Items))
		for i, item := range v.List.Items {
			parts[i] = stringify(item, seen)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindDict, KindFrozenDict:
		if seen[v.Dict] {
			return "{...}"
		}
		seen[v.Dict] = true
		parts := make([]string, 0, len(v.Dict.Order))
		for _, k := range v.Dict.Order {
			parts = append(parts, k+": "+stringify(v.Dict.Entries[k], seen))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return ""
	}
}

// Len reports the element/character count used by the length() builtin.
func (v Value) Len() int64 {
	switch v.Kind {
	case KindList:
		return int64(len(v.List.Items))
	case KindStr:
		return int64(len(v.Str))
	default:
		return 0
	}
}
