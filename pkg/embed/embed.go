// Package embed is the stable entry point for host programs that want
// to run OMG bytecode without shelling out to the CLI.
package embed

import (
	"fmt"
	"os"

	"github.com/sentrychris/omg/pkg/asm"
	"github.com/sentrychris/omg/pkg/bytecode"
	"github.com/sentrychris/omg/pkg/vm"
)

// version is the embedding API's own version, independent of the
// bytecode format version pinned in pkg/bytecode.
const version = "0.1.0"

// Version reports the embedding API's version string.
func Version() string {
	return version
}

// RunFile decodes a ".omgb" binary image from path and runs it to
// completion, returning everything Emit wrote joined by newlines.
func RunFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("embed: %w", err)
	}
	defer f.Close()

	img, err := bytecode.Decode(f)
	if err != nil {
		return "", fmt.Errorf("embed: %w", err)
	}
	return run(img, []string{path}, path)
}

// RunSource assembles mnemonic bytecode text (see pkg/asm) and runs it
// to completion, returning everything Emit wrote joined by newlines.
func RunSource(src string) (string, error) {
	img, err := asm.Assemble(src)
	if err != nil {
		return "", fmt.Errorf("embed: %w", err)
	}
	return run(img, nil, "")
}

// run seeds a fresh VM with args scoped to the program being run, never
// the embedding host process's own os.Args.
func run(img *bytecode.Image, args []string, moduleFile string) (string, error) {
	sink := &vm.StringSink{}
	m := vm.New(sink, nil)
	m.Seed(args, moduleFile)
	if rerr := m.Run(img); rerr != nil {
		return sink.String(), rerr
	}
	return sink.String(), nil
}
