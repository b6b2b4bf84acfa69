package vm

import (
	"fmt"
	"os"
	"sync"

	"github.com/sentrychris/omg/pkg/vmerror"
)

// fileMode tags what a file_open handle was opened for, so file_read /
// file_write can enforce that the data type passed matches the mode
// (text modes move Str, binary modes move a List of byte ints).
type fileMode int

const (
	modeReadText fileMode = iota
	modeReadBinary
	modeWriteText
	modeWriteBinary
	modeAppendText
	modeAppendBinary
)

func parseFileMode(mode string) (fileMode, int, error) {
	switch mode {
	case "r":
		return modeReadText, os.O_RDONLY, nil
	case "rb":
		return modeReadBinary, os.O_RDONLY, nil
	case "w":
		return modeWriteText, os.O_WRONLY | os.O_CREATE | os.O_TRUNC, nil
	case "wb":
		return modeWriteBinary, os.O_WRONLY | os.O_CREATE | os.O_TRUNC, nil
	case "a":
		return modeAppendText, os.O_WRONLY | os.O_CREATE | os.O_APPEND, nil
	case "ab":
		return modeAppendBinary, os.O_WRONLY | os.O_CREATE | os.O_APPEND, nil
	default:
		return 0, 0, fmt.Errorf("unknown file mode %q", mode)
	}
}

func (m fileMode) isBinary() bool {
	return m == modeReadBinary || m == modeWriteBinary || m == modeAppendBinary
}

func (m fileMode) isWrite() bool {
	return m != modeReadText && m != modeReadBinary
}

// fileHandle pairs an *os.File with the mode it was opened under.
type fileHandle struct {
	f    *os.File
	mode fileMode
}

// FileTable is a table of open file handles, issued as opaque integers
// from a monotonic counter and guarded by a mutex. Each VM owns its own
// table by default, so handles never cross-talk between independent VM
// instances; a host embedding several VMs that want to share handles
// may construct one FileTable and inject it into each with
// VM.SetFileTable.
type FileTable struct {
	mu      sync.Mutex
	next    int64
	handles map[int64]*fileHandle
}

// NewFileTable constructs an empty table. A VM normally shares one
// FileTable across its lifetime via New's default, but embedding hosts
// running several independent VMs concurrently may construct their own
// and inject it to avoid handle collisions across instances, or may
// share one deliberately -- the table's own locking makes either safe.
func NewFileTable() *FileTable {
	return &FileTable{handles: make(map[int64]*fileHandle)}
}

func (t *FileTable) open(path, mode string) (int64, *vmerror.RuntimeError) {
	fm, flag, err := parseFileMode(mode)
	if err != nil {
		return 0, vmerror.ValueError(err.Error())
	}
	perm := os.FileMode(0o644)
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return 0, vmerror.ValueError(err.Error())
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	h := t.next
	t.handles[h] = &fileHandle{f: f, mode: fm}
	return h, nil
}

func (t *FileTable) get(handle int64) (*fileHandle, *vmerror.RuntimeError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[handle]
	if !ok {
		return nil, vmerror.ValueError(fmt.Sprintf("invalid file handle: %d", handle))
	}
	return h, nil
}

func (t *FileTable) close(handle int64) *vmerror.RuntimeError {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[handle]
	if !ok {
		return vmerror.ValueError(fmt.Sprintf("invalid file handle: %d", handle))
	}
	delete(t.handles, handle)
	if err := h.f.Close(); err != nil {
		return vmerror.ValueError(err.Error())
	}
	return nil
}
