package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/sentrychris/omg/internal/diag"
	"github.com/sentrychris/omg/pkg/asm"
	"github.com/sentrychris/omg/pkg/bytecode"
	"github.com/sentrychris/omg/pkg/disasm"
	"github.com/sentrychris/omg/pkg/vm"
)

const version = "0.1.0"

func main() {
	app := cli.NewApp()
	app.Name = "omg"
	app.Usage = "run, assemble, and disassemble OMG bytecode"
	app.Version = fmt.Sprintf("%s (%s/%s)", version, runtime.GOOS, runtime.GOARCH)
	app.Commands = []cli.Command{
		runCommand,
		asmCommand,
		disasmCommand,
		replCommand,
	}
	app.Action = func(ctx *cli.Context) error {
		if ctx.NArg() > 0 {
			return runFile(ctx.Args().First(), ctx.Args().Tail())
		}
		return startREPL()
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "decode and execute a .omgb bytecode file",
	ArgsUsage: "<file.omgb>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 1 {
			return cli.NewExitError("run: no file specified", 1)
		}
		return runFile(ctx.Args().First(), ctx.Args().Tail())
	},
}

var asmCommand = cli.Command{
	Name:      "asm",
	Usage:     "assemble mnemonic bytecode text into a .omgb binary image",
	ArgsUsage: "<input.asmg> [output.omgb]",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 1 {
			return cli.NewExitError("asm: no input file specified", 1)
		}
		in := ctx.Args().Get(0)
		out := ctx.Args().Get(1)
		if out == "" {
			out = strings.TrimSuffix(in, ".asmg") + ".omgb"
		}
		return assembleFile(in, out)
	},
}

var disasmCommand = cli.Command{
	Name:      "disasm",
	Usage:     "disassemble a .omgb binary image to mnemonic text",
	ArgsUsage: "<file.omgb>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 1 {
			return cli.NewExitError("disasm: no file specified", 1)
		}
		return disassembleFile(ctx.Args().First())
	},
}

var replCommand = cli.Command{
	Name:  "repl",
	Usage: "start an interactive bytecode-assembly session",
	Action: func(ctx *cli.Context) error {
		return startREPL()
	},
}

// runFile decodes and executes a bytecode file, seeding the VM's args
// global with only the arguments that follow the file on the command
// line -- never the CLI's own subcommand name or the file path itself.
func runFile(filename string, trailingArgs []string) error {
	if strings.HasSuffix(filename, ".omg") {
		return fmt.Errorf("run: %s is OMG source; precompile it with the external OMG compiler to .omgb", filename)
	}
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer f.Close()

	img, err := bytecode.Decode(f)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	logger := diag.New(os.Stderr, diag.LevelWarn)
	m := vm.New(vm.NewWriterSink(os.Stdout), logger)
	m.Seed(trailingArgs, filename)
	if rerr := m.Run(img); rerr != nil {
		return fmt.Errorf("run: %s", rerr.Error())
	}
	return nil
}

func assembleFile(in, out string) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("asm: %w", err)
	}
	img, err := asm.Assemble(string(data))
	if err != nil {
		return fmt.Errorf("asm: %w", err)
	}
	outFile, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("asm: %w", err)
	}
	defer outFile.Close()
	if err := bytecode.Encode(img, outFile); err != nil {
		return fmt.Errorf("asm: %w", err)
	}
	fmt.Printf("assembled %s -> %s\n", in, out)
	return nil
}

func disassembleFile(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("disasm: %w", err)
	}
	defer f.Close()

	img, err := bytecode.Decode(f)
	if err != nil {
		return fmt.Errorf("disasm: %w", err)
	}
	fmt.Print(disasm.Disassemble(img))
	return nil
}

// startREPL runs a persistent VM across successive blocks of mnemonic
// assembly, each terminated by a blank line. Locals and globals set by
// one block remain visible to the next, the same persistent-session
// model the teacher's source REPL used for its compiler's symbol
// table.
func startREPL() error {
	fmt.Printf("omg repl v%s\n", version)
	fmt.Println("Enter mnemonic bytecode, blank line to execute. :quit or :exit to leave.")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	logger := diag.New(os.Stderr, diag.LevelWarn)
	m := vm.New(vm.NewWriterSink(os.Stdout), logger)
	m.Seed(nil, "<repl>")

	var buf strings.Builder
	for {
		prompt := "omg> "
		if buf.Len() > 0 {
			prompt = "...> "
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			break
		}
		line.AppendHistory(input)

		trimmed := strings.TrimSpace(input)
		if buf.Len() == 0 {
			switch trimmed {
			case ":quit", ":exit":
				return nil
			case "":
				continue
			}
		}

		if trimmed == "" {
			evalREPL(m, buf.String())
			buf.Reset()
			continue
		}
		buf.WriteString(input)
		buf.WriteByte('\n')
	}
	return nil
}

func evalREPL(m *vm.VM, src string) {
	img, err := asm.Assemble(src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "assemble error: %v\n", err)
		return
	}
	if rerr := m.Run(img); rerr != nil {
		fmt.Fprintf(os.Stderr, "runtime error: %s\n", rerr.Error())
	}
}
