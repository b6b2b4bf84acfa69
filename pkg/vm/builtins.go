package vm

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sentrychris/omg/pkg/value"
	"github.com/sentrychris/omg/pkg/vmerror"
)

// builtin is the uniform contract every built-in implements:
// (vm, args) -> Value | RuntimeError; env and globals are reached
// through the VM.
type builtin func(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError)

var builtinTable = map[string]builtin{
	"chr":          biChr,
	"ascii":        biAscii,
	"hex":          biHex,
	"binary":       biBinary,
	"length":       biLength,
	"freeze":       biFreeze,
	"panic":        biPanic,
	"raise":        biRaise,
	"read_file":    biReadFile,
	"file_exists":  biFileExists,
	"file_open":    biFileOpen,
	"file_read":    biFileRead,
	"file_write":   biFileWrite,
	"file_close":   biFileClose,
	"call_builtin": biCallBuiltin,
	"upper":        biUpper,
	"lower":        biLower,
	"split":        biSplit,
	"join":         biJoin,
	"trim":         biTrim,
	"type_of":      biTypeOf,
	"keys":         biKeys,
}

// opCallBuiltin implements CallBuiltin(name, argc): pop argc args in
// reverse (restoring left-to-right order) and dispatch.
func (m *VM) opCallBuiltin(name string, argc uint32) *vmerror.RuntimeError {
	args := make([]value.Value, argc)
	for i := int(argc) - 1; i >= 0; i-- {
		v, err := m.pop()
		if err != nil {
			return err
		}
		args[i] = v
	}
	v, err := m.dispatchBuiltin(name, args)
	if err != nil {
		return err
	}
	m.push(v)
	return nil
}

func (m *VM) dispatchBuiltin(name string, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	fn, ok := builtinTable[name]
	if !ok {
		return value.Value{}, vmerror.UndefinedIdentError(name)
	}
	return fn(m, args)
}

func arity(args []value.Value, n int) *vmerror.RuntimeError {
	if len(args) != n {
		return vmerror.TypeError(fmt.Sprintf("expected %d argument(s), got %d", n, len(args)))
	}
	return nil
}

func biChr(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	b := byte(args[0].AsInt() & 0xFF)
	return value.Str(string(b)), nil
}

func biAscii(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	s := args[0].Str
	if args[0].Kind != value.KindStr || len(s) != 1 {
		return value.Value{}, vmerror.TypeError("ascii() expects a single-character string")
	}
	return value.Int(int64(s[0])), nil
}

func biHex(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	return value.Str(strconv.FormatInt(args[0].AsInt(), 16)), nil
}

func biBinary(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if len(args) != 1 && len(args) != 2 {
		return value.Value{}, vmerror.TypeError("binary() expects 1 or 2 arguments")
	}
	n := args[0].AsInt()
	if len(args) == 1 {
		return value.Str(strconv.FormatInt(n, 2)), nil
	}
	w := args[1].AsInt()
	if w <= 0 {
		return value.Value{}, vmerror.ValueError("binary() width must be positive")
	}
	mask := int64(1)<<uint(w) - 1
	masked := n & mask
	s := strconv.FormatInt(masked, 2)
	if int64(len(s)) < w {
		s = strings.Repeat("0", int(w)-len(s)) + s
	}
	return value.Str(s), nil
}

func biLength(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	if args[0].Kind != value.KindList && args[0].Kind != value.KindStr {
		return value.Value{}, vmerror.TypeError("length() expects a list or string")
	}
	return value.Int(args[0].Len()), nil
}

func biFreeze(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	if !args[0].IsDictLike() {
		return value.Value{}, vmerror.TypeError("freeze() expects a dict")
	}
	return args[0].Frozen(), nil
}

func biPanic(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	return value.Value{}, vmerror.Raised(args[0].String())
}

func biRaise(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	return value.Value{}, vmerror.KindGeneric.IntoRuntimeError(args[0].String())
}

// resolvePath joins a relative path against the VM's current_dir global,
// matching the driver's seeded working directory rather than the
// process's actual cwd.
func (m *VM) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	dir := "."
	if v, ok := m.globals["current_dir"]; ok {
		dir = v.String()
	}
	return filepath.Join(dir, path)
}

func biReadFile(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	path := m.resolvePath(args[0].Str)
	data, ioErr := os.ReadFile(path)
	if ioErr != nil {
		return value.Value{}, vmerror.ModuleImportError(ioErr.Error())
	}
	return value.Str(string(data)), nil
}

func biFileExists(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	_, statErr := os.Stat(m.resolvePath(args[0].Str))
	return value.Bool(statErr == nil), nil
}

func biFileOpen(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 2); err != nil {
		return value.Value{}, err
	}
	handle, err := m.files.open(m.resolvePath(args[0].Str), args[1].Str)
	if err != nil {
		return value.Value{}, err
	}
	return value.Int(handle), nil
}

func biFileRead(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	h, err := m.files.get(args[0].AsInt())
	if err != nil {
		return value.Value{}, err
	}
	data, ioErr := io.ReadAll(h.f)
	if ioErr != nil {
		return value.Value{}, vmerror.ValueError(ioErr.Error())
	}
	if h.mode.isBinary() {
		items := make([]value.Value, len(data))
		for i, b := range data {
			items[i] = value.Int(int64(b))
		}
		return value.NewList(items), nil
	}
	return value.Str(string(data)), nil
}

func biFileWrite(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 2); err != nil {
		return value.Value{}, err
	}
	h, err := m.files.get(args[0].AsInt())
	if err != nil {
		return value.Value{}, err
	}
	if !h.mode.isWrite() {
		return value.Value{}, vmerror.ValueError("file handle is not open for writing")
	}

	var data []byte
	if h.mode.isBinary() {
		if args[1].Kind != value.KindList {
			return value.Value{}, vmerror.TypeError("file_write() expects a list of byte ints for a binary handle")
		}
		data = make([]byte, len(args[1].List.Items))
		for i, v := range args[1].List.Items {
			data[i] = byte(v.AsInt() & 0xFF)
		}
	} else {
		if args[1].Kind != value.KindStr {
			return value.Value{}, vmerror.TypeError("file_write() expects a string for a text handle")
		}
		data = []byte(args[1].Str)
	}

	n, ioErr := h.f.Write(data)
	if ioErr != nil {
		return value.Value{}, vmerror.ValueError(ioErr.Error())
	}
	return value.Int(int64(n)), nil
}

func biFileClose(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	if err := m.files.close(args[0].AsInt()); err != nil {
		return value.Value{}, err
	}
	return value.None(), nil
}

func biCallBuiltin(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 2); err != nil {
		return value.Value{}, err
	}
	if args[0].Kind != value.KindStr || args[1].Kind != value.KindList {
		return value.Value{}, vmerror.TypeError("call_builtin() expects (name: str, args: list)")
	}
	return m.dispatchBuiltin(args[0].Str, args[1].List.Items)
}

func biUpper(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	return value.Str(strings.ToUpper(args[0].Str)), nil
}

func biLower(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	return value.Str(strings.ToLower(args[0].Str)), nil
}

func biSplit(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 2); err != nil {
		return value.Value{}, err
	}
	parts := strings.Split(args[0].Str, args[1].Str)
	items := make([]value.Value, len(parts))
	for i, p := range parts {
		items[i] = value.Str(p)
	}
	return value.NewList(items), nil
}

func biJoin(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 2); err != nil {
		return value.Value{}, err
	}
	if args[0].Kind != value.KindList {
		return value.Value{}, vmerror.TypeError("join() expects a list")
	}
	parts := make([]string, len(args[0].List.Items))
	for i, v := range args[0].List.Items {
		parts[i] = v.String()
	}
	return value.Str(strings.Join(parts, args[1].Str)), nil
}

func biTrim(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	return value.Str(strings.TrimSpace(args[0].Str)), nil
}

func biTypeOf(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	return value.Str(args[0].Kind.String()), nil
}

func biKeys(m *VM, args []value.Value) (value.Value, *vmerror.RuntimeError) {
	if err := arity(args, 1); err != nil {
		return value.Value{}, err
	}
	if !args[0].IsDictLike() {
		return value.Value{}, vmerror.TypeError("keys() expects a dict")
	}
	ks := append([]string(nil), args[0].Dict.Order...)
	sort.Strings(ks)
	items := make([]value.Value, len(ks))
	for i, k := range ks {
		items[i] = value.Str(k)
	}
	return value.NewList(items), nil
}
