package vm

import (
	"fmt"

	"github.com/sentrychris/omg/pkg/value"
	"github.com/sentrychris/omg/pkg/vmerror"
)

// opBuildList implements BuildList(n): pops n values, pushes a new
// shared list preserving source (left-to-right) order.
func (m *VM) opBuildList(n uint32) *vmerror.RuntimeError {
	items := make([]value.Value, n)
	for i := int(n) - 1; i >= 0; i-- {
		v, err := m.pop()
		if err != nil {
			return err
		}
		items[i] = v
	}
	m.push(value.NewList(items))
	return nil
}

// opBuildDict implements BuildDict(n): pops n (key, value) pairs in
// reverse, keys stringified, last write wins on duplicates.
func (m *VM) opBuildDict(n uint32) *vmerror.RuntimeError {
	type pair struct {
		k string
		v value.Value
	}
	pairs := make([]pair, n)
	for i := int(n) - 1; i >= 0; i-- {
		v, err := m.pop()
		if err != nil {
			return err
		}
		k, err := m.pop()
		if err != nil {
			return err
		}
		pairs[i] = pair{k: k.String(), v: v}
	}

	entries := make(map[string]value.Value, n)
	order := make([]string, 0, n)
	for _, p := range pairs {
		if _, exists := entries[p.k]; !exists {
			order = append(order, p.k)
		}
		entries[p.k] = p.v
	}
	m.push(value.NewDict(entries, order))
	return nil
}

// opIndex implements Index: list-by-int, dict-by-string or dict-by-int
// (key stringified), string-by-int (returns a 1-character string).
// Negative and out-of-range indices are IndexError/KeyError.
func (m *VM) opIndex() *vmerror.RuntimeError {
	idx, err := m.pop()
	if err != nil {
		return err
	}
	base, err := m.pop()
	if err != nil {
		return err
	}

	switch base.Kind {
	case value.KindList:
		i := idx.AsInt()
		if i < 0 || int(i) >= len(base.List.Items) {
			return vmerror.IndexError(fmt.Sprintf("list index out of range: %d", i))
		}
		m.push(base.List.Items[i])
	case value.KindStr:
		i := idx.AsInt()
		if i < 0 || int(i) >= len(base.Str) {
			return vmerror.IndexError(fmt.Sprintf("string index out of range: %d", i))
		}
		m.push(value.Str(string(base.Str[i])))
	case value.KindDict, value.KindFrozenDict:
		key := idx.String()
		v, ok := base.Dict.Entries[key]
		if !ok {
			return vmerror.KeyError(key)
		}
		m.push(v)
	default:
		return vmerror.TypeError("value is not indexable")
	}
	return nil
}

// opSlice implements Slice: list/string base[start:end]. end may be
// None meaning "to length". Negative bounds, start>end, or end>len are
// IndexError; when Slice returns normally, 0<=start<=end<=len always holds.
func (m *VM) opSlice() *vmerror.RuntimeError {
	endV, err := m.pop()
	if err != nil {
		return err
	}
	startV, err := m.pop()
	if err != nil {
		return err
	}
	base, err := m.pop()
	if err != nil {
		return err
	}

	var length int
	switch base.Kind {
	case value.KindList:
		length = len(base.List.Items)
	case value.KindStr:
		length = len(base.Str)
	default:
		return vmerror.TypeError("value is not sliceable")
	}

	start := int(startV.AsInt())
	end := length
	if endV.Kind != value.KindNone {
		end = int(endV.AsInt())
	}

	if start < 0 || end < 0 || start > end || end > length {
		return vmerror.IndexError(fmt.Sprintf("slice bounds out of range [%d:%d] of length %d", start, end, length))
	}

	switch base.Kind {
	case value.KindList:
		items := make([]value.Value, end-start)
		copy(items, base.List.Items[start:end])
		m.push(value.NewList(items))
	case value.KindStr:
		m.push(value.Str(base.Str[start:end]))
	}
	return nil
}

// opStoreIndex implements StoreIndex: list auto-grows, padding new
// slots with Int(0); a FrozenDict write is FrozenWriteError.
func (m *VM) opStoreIndex() *vmerror.RuntimeError {
	v, err := m.pop()
	if err != nil {
		return err
	}
	idx, err := m.pop()
	if err != nil {
		return err
	}
	base, err := m.pop()
	if err != nil {
		return err
	}

	switch base.Kind {
	case value.KindList:
		i := int(idx.AsInt())
		if i < 0 {
			return vmerror.IndexError(fmt.Sprintf("list index out of range: %d", i))
		}
		for len(base.List.Items) <= i {
			base.List.Items = append(base.List.Items, value.Int(0))
		}
		base.List.Items[i] = v
	case value.KindFrozenDict:
		return vmerror.FrozenWriteErr()
	case value.KindDict:
		key := idx.String()
		if _, exists := base.Dict.Entries[key]; !exists {
			base.Dict.Order = append(base.Dict.Order, key)
		}
		base.Dict.Entries[key] = v
	default:
		return vmerror.TypeError("value does not support index assignment")
	}
	return nil
}

// opAttr implements Attr: only dict-like bases; missing key is
// KeyError.
func (m *VM) opAttr(name string) *vmerror.RuntimeError {
	base, err := m.pop()
	if err != nil {
		return err
	}
	if !base.IsDictLike() {
		return vmerror.TypeError("attribute access requires a dict")
	}
	v, ok := base.Dict.Entries[name]
	if !ok {
		return vmerror.KeyError(name)
	}
	m.push(v)
	return nil
}

// opStoreAttr implements StoreAttr: only dict-like bases; a frozen base
// yields FrozenWriteError.
func (m *VM) opStoreAttr(name string) *vmerror.RuntimeError {
	v, err := m.pop()
	if err != nil {
		return err
	}
	base, err := m.pop()
	if err != nil {
		return err
	}
	if !base.IsDictLike() {
		return vmerror.TypeError("attribute assignment requires a dict")
	}
	if base.Kind == value.KindFrozenDict {
		return vmerror.FrozenWriteErr()
	}
	if _, exists := base.Dict.Entries[name]; !exists {
		base.Dict.Order = append(base.Dict.Order, name)
	}
	base.Dict.Entries[name] = v
	return nil
}
