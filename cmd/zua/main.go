// Command zua is the CLI front end for the interpreter core: a file runner
// and a line-at-a-time REPL. It is a thin collaborator over the core —
// I/O glue and flag parsing only.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/songforthemute/zua/chunk"
	"github.com/songforthemute/zua/compiler"
	"github.com/songforthemute/zua/disasm"
	"github.com/songforthemute/zua/internal/logio"
	"github.com/songforthemute/zua/internal/panicerr"
	"github.com/songforthemute/zua/parser"
	"github.com/songforthemute/zua/repl"
	"github.com/songforthemute/zua/scanner"
	"github.com/songforthemute/zua/vm"
)

// maxSourceBytes bounds how much of a file is read before giving up.
const maxSourceBytes = 1 << 20

func main() {
	var (
		trace   bool
		dump    bool
		timeout time.Duration
	)
	flag.BoolVar(&trace, "trace", false, "log one line per executed opcode")
	flag.BoolVar(&dump, "dump", false, "print a disassembly listing before running")
	flag.DurationVar(&timeout, "timeout", 0, "time limit for a REPL session (file runs are not limited)")
	flag.Parse()

	log := logio.Logger{}
	log.SetOutput(os.Stderr)
	defer os.Exit(log.ExitCode())

	ctx := context.Background()
	if timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	args := flag.Args()
	if len(args) == 0 {
		if err := panicerr.Recover("repl", func() error {
			return repl.Session(ctx, os.Stdin, os.Stdout, os.Stderr)
		}); err != nil {
			log.Errorf("%v", err)
		}
		return
	}

	src, err := readSource(args[0])
	if err != nil {
		log.ErrorIf(err)
		return
	}

	runLevel := func() error {
		return runSource(src, trace, dump, &log)
	}
	if err := panicerr.Recover("zua", runLevel); err != nil {
		log.Errorf("%v", err)
	}
}

func readSource(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lr := io.LimitReader(f, maxSourceBytes+1)
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if len(data) > maxSourceBytes {
		return nil, fmt.Errorf("%s exceeds %d byte limit", path, maxSourceBytes)
	}
	return data, nil
}

func runSource(src []byte, trace, dump bool, log *logio.Logger) error {
	toks, err := scanner.Scan(src)
	if err != nil {
		return err
	}
	block, err := parser.Parse(toks)
	if err != nil {
		return err
	}
	c, err := compiler.Compile(block)
	if err != nil {
		return err
	}

	if dump {
		fmt.Fprint(os.Stderr, disasm.String(c, "zua"))
	}

	machine := vm.New(c)
	if trace {
		lw := &logio.Writer{Logf: log.Leveledf("TRACE")}
		defer lw.Close()
		machine.SetTrace(func(line int, op chunk.Op) {
			fmt.Fprintf(lw, "@%d %s\n", line, op)
		})
	}

	if err := machine.Run(); err != nil {
		return err
	}

	_, err = os.Stdout.Write(machine.Output())
	return err
}
