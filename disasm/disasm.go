// Package disasm renders a compiled chunk.Chunk to a human-readable opcode
// listing: offset, mnemonic, decoded operand, and source line. It is an
// external collaborator over the core (scanner/parser/compiler/vm) — a pure
// read-only view used by the CLI's -dump flag and by tests that want to
// assert on emitted bytecode shape without re-deriving opcode offsets.
package disasm

import (
	"fmt"
	"io"

	"github.com/songforthemute/zua/chunk"
)

// Disassemble writes one line per instruction in c to w.
func Disassemble(w io.Writer, c *chunk.Chunk, name string) error {
	if name != "" {
		if _, err := fmt.Fprintf(w, "== %s ==\n", name); err != nil {
			return err
		}
	}
	offset := 0
	for offset < len(c.Code) {
		next, line, err := instruction(w, c, offset)
		if err != nil {
			return err
		}
		_ = line
		offset = next
	}
	return nil
}

// String returns the same listing Disassemble writes, as a string.
func String(c *chunk.Chunk, name string) string {
	var b builderWriter
	_ = Disassemble(&b, c, name)
	return string(b)
}

type builderWriter []byte

func (b *builderWriter) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}

func instruction(w io.Writer, c *chunk.Chunk, offset int) (next int, line int, err error) {
	op := chunk.Op(c.Code[offset])
	line = c.Lines[offset]

	lineCol := fmt.Sprintf("%4d", line)
	if offset > 0 && c.Lines[offset-1] == line {
		lineCol = "   |"
	}

	switch op {
	case chunk.OpPushConstant, chunk.OpGetGlobal, chunk.OpSetGlobal:
		idx := c.ReadU16(offset + 1)
		constStr := "?"
		if int(idx) < len(c.Constants) {
			constStr = c.Constants[idx].Format()
		}
		_, err = fmt.Fprintf(w, "%04d %s %-14s %5d '%s'\n", offset, lineCol, op, idx, constStr)
		return offset + 3, line, err

	case chunk.OpGetLocal, chunk.OpSetLocal:
		slot := c.Code[offset+1]
		_, err = fmt.Fprintf(w, "%04d %s %-14s slot %d\n", offset, lineCol, op, slot)
		return offset + 2, line, err

	case chunk.OpJump, chunk.OpJumpIfFalse, chunk.OpJumpIfTrue:
		off := c.ReadU16(offset + 1)
		_, err = fmt.Fprintf(w, "%04d %s %-14s -> %04d\n", offset, lineCol, op, offset+3+int(off))
		return offset + 3, line, err

	case chunk.OpLoop:
		off := c.ReadU16(offset + 1)
		_, err = fmt.Fprintf(w, "%04d %s %-14s -> %04d\n", offset, lineCol, op, offset+3-int(off))
		return offset + 3, line, err

	case chunk.OpCall, chunk.OpPrint:
		argc := c.Code[offset+1]
		_, err = fmt.Fprintf(w, "%04d %s %-14s argc %d\n", offset, lineCol, op, argc)
		return offset + 2, line, err

	default:
		_, err = fmt.Fprintf(w, "%04d %s %s\n", offset, lineCol, op)
		return offset + 1, line, err
	}
}
