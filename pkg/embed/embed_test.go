package embed

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sentrychris/omg/pkg/asm"
	"github.com/sentrychris/omg/pkg/bytecode"
)

func TestRunSource(t *testing.T) {
	out, err := RunSource(`
push_int 2
push_int 3
add
emit
halt
`)
	require.NoError(t, err)
	require.Equal(t, "5", out)
}

func TestRunSourcePropagatesRuntimeError(t *testing.T) {
	out, err := RunSource(`
push_int 1
push_int 0
div
halt
`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "ZeroDivisionError")
	require.Equal(t, "", out)
}

func TestRunFile(t *testing.T) {
	img, err := asm.Assemble("push_int 9\nemit\nhalt\n")
	require.NoError(t, err)

	path := t.TempDir() + "/prog.omgb"
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, bytecode.Encode(img, f))
	require.NoError(t, f.Close())

	out, runErr := RunFile(path)
	require.NoError(t, runErr)
	require.Equal(t, "9", out)
}

func TestVersion(t *testing.T) {
	require.NotEmpty(t, Version())
}

// RunSource must never leak the embedding host process's own os.Args
// into the VM's args global.
func TestRunSourceDoesNotLeakHostArgs(t *testing.T) {
	out, err := RunSource(`
load args
call_builtin "length" 1
emit
halt
`)
	require.NoError(t, err)
	require.Equal(t, "0", out)
}

// RunFile seeds args with only the path being run, not the host's argv.
func TestRunFileSeedsArgsWithPathOnly(t *testing.T) {
	img, err := asm.Assemble(`
load args
call_builtin "length" 1
emit
halt
`)
	require.NoError(t, err)

	path := t.TempDir() + "/prog.omgb"
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, bytecode.Encode(img, f))
	require.NoError(t, f.Close())

	out, runErr := RunFile(path)
	require.NoError(t, runErr)
	require.Equal(t, "1", out)
}
