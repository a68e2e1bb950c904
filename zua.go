// Package zua implements the core of a single-pass, stack-based bytecode
// interpreter for a subset of Lua: scanning, parsing, compiling, and
// executing source text into printed output.
package zua

import (
	"github.com/songforthemute/zua/ast"
	"github.com/songforthemute/zua/chunk"
	"github.com/songforthemute/zua/compiler"
	"github.com/songforthemute/zua/parser"
	"github.com/songforthemute/zua/scanner"
	"github.com/songforthemute/zua/token"
	"github.com/songforthemute/zua/vm"
)

// Interpret runs source through the scanner, parser, compiler, and VM in
// turn, returning the concatenated print output or the first error any
// stage produced.
func Interpret(source []byte) ([]byte, error) {
	toks, err := scanner.Scan(source)
	if err != nil {
		return nil, err
	}
	block, err := parser.Parse(toks)
	if err != nil {
		return nil, err
	}
	c, err := compiler.Compile(block)
	if err != nil {
		return nil, err
	}
	return Execute(c)
}

// Execute runs an already-compiled chunk against a fresh VM and returns its
// print output.
func Execute(c *chunk.Chunk) ([]byte, error) {
	machine := vm.New(c)
	if err := machine.Run(); err != nil {
		return nil, err
	}
	return machine.Output(), nil
}

// Tokens exposes the scanner stage standalone, primarily for tests and the
// disassembler's callers.
func Tokens(source []byte) ([]token.Token, error) { return scanner.Scan(source) }

// Parse exposes the parser stage standalone.
func Parse(source []byte) (ast.Block, error) {
	toks, err := scanner.Scan(source)
	if err != nil {
		return ast.Block{}, err
	}
	return parser.Parse(toks)
}

// Compile exposes the compiler stage standalone.
func Compile(source []byte) (*chunk.Chunk, error) {
	block, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(block)
}
