// Package repl drives a line-at-a-time read-eval-print loop: each line is
// interpreted independently, with no inter-line state, against a fresh VM
// and a fresh globals map.
//
// Reading lines and interpreting them run as two errgroup-coordinated
// stages connected by a channel, so a read error and context cancellation
// both surface through one Wait() call. An interpret error is reported on
// the error writer and the session goes on with the next line.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/songforthemute/zua"
)

// Session runs lines from in through the interpreter, writing print output
// to out (and a brief error line on failure to errOut), until in is exhausted or ctx
// is canceled. It returns the first read error (other than io.EOF) or the
// group context's error.
func Session(ctx context.Context, in io.Reader, out, errOut io.Writer) error {
	lines := make(chan string)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(lines)
		scan := bufio.NewScanner(in)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return scan.Err()
	})

	g.Go(func() error {
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				runLine(line, out, errOut)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	return g.Wait()
}

func runLine(line string, out, errOut io.Writer) {
	output, err := zua.Interpret([]byte(line))
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return
	}
	out.Write(output)
}
