// Package scanner turns Lua source bytes into a flat token stream.
//
// Every lexeme is copied out of the caller's source buffer into its own
// string, so the returned tokens do not reference src after Scan returns.
package scanner

import (
	"fmt"

	"github.com/songforthemute/zua/token"
)

// ErrorKind classifies a scan failure.
type ErrorKind int

const (
	_ ErrorKind = iota
	UnexpectedCharacter
	UnterminatedString
	UnterminatedLongBracket
	InvalidNumber
)

func (k ErrorKind) String() string {
	switch k {
	case UnexpectedCharacter:
		return "UnexpectedCharacter"
	case UnterminatedString:
		return "UnterminatedString"
	case UnterminatedLongBracket:
		return "UnterminatedLongBracket"
	case InvalidNumber:
		return "InvalidNumber"
	default:
		return "UnknownScanError"
	}
}

// Error is returned by Scan on the first lexical failure.
type Error struct {
	Kind   ErrorKind
	Line   int
	Column int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s at %d:%d: %s", e.Kind, e.Line, e.Column, e.Detail)
	}
	return fmt.Sprintf("%s at %d:%d", e.Kind, e.Line, e.Column)
}

// Scan tokenizes src in full, returning an ordered token stream terminated by
// an token.EOF token, or the first lexical error encountered.
func Scan(src []byte) ([]token.Token, error) {
	s := &scanner{src: src, line: 1, column: 1}
	var toks []token.Token
	for {
		tok, err := s.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == token.EOF {
			return toks, nil
		}
	}
}

type scanner struct {
	src    []byte
	pos    int
	line   int
	column int
}

func (s *scanner) atEnd() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() byte {
	if s.atEnd() {
		return 0
	}
	return s.src[s.pos]
}

func (s *scanner) peekAt(off int) byte {
	if s.pos+off >= len(s.src) {
		return 0
	}
	return s.src[s.pos+off]
}

func (s *scanner) advance() byte {
	c := s.src[s.pos]
	s.pos++
	if c == '\n' {
		s.line++
		s.column = 1
	} else {
		s.column++
	}
	return c
}

func (s *scanner) match(c byte) bool {
	if s.peek() != c {
		return false
	}
	s.advance()
	return true
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isHexDigit(c byte) bool   { return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F') }
func isAlpha(c byte) bool      { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isAlphaNumeric(c byte) bool { return isAlpha(c) || isDigit(c) }

func (s *scanner) skipWhitespaceAndComments() error {
	for {
		switch c := s.peek(); c {
		case ' ', '\t', '\r':
			s.advance()
		case '\n':
			s.advance()
		case '-':
			if s.peekAt(1) != '-' {
				return nil
			}
			s.advance()
			s.advance()
			if s.peek() == '[' {
				if level, ok := s.longBracketLevel(); ok {
					if _, err := s.readLongBracket(level); err != nil {
						return err
					}
					continue
				}
			}
			for !s.atEnd() && s.peek() != '\n' {
				s.advance()
			}
		default:
			return nil
		}
	}
}

// longBracketLevel reports whether the scanner is positioned at a long
// bracket opener ('[' '='* '['), consuming it if so, and returns its level
// (the number of '=' characters). It does not consume anything on failure.
func (s *scanner) longBracketLevel() (int, bool) {
	start := s.pos
	startLine, startCol := s.line, s.column
	if s.peek() != '[' {
		return 0, false
	}
	s.advance()
	level := 0
	for s.peek() == '=' {
		s.advance()
		level++
	}
	if s.peek() != '[' {
		s.pos, s.line, s.column = start, startLine, startCol
		return 0, false
	}
	s.advance()
	return level, true
}

// readLongBracket consumes content up to and including the matching closer
// at the given level, returning the content (excluding the delimiters).
func (s *scanner) readLongBracket(level int) (string, error) {
	startLine, startCol := s.line, s.column
	// A leading newline immediately after the opener is skipped, per Lua.
	if s.peek() == '\r' {
		s.advance()
	}
	if s.peek() == '\n' {
		s.advance()
	}
	contentStart := s.pos
	for {
		if s.atEnd() {
			return "", &Error{Kind: UnterminatedLongBracket, Line: startLine, Column: startCol}
		}
		if s.peek() == ']' {
			save := s.pos
			saveLine, saveCol := s.line, s.column
			s.advance()
			n := 0
			for s.peek() == '=' {
				s.advance()
				n++
			}
			if n == level && s.peek() == ']' {
				content := string(s.src[contentStart:save])
				s.advance()
				return content, nil
			}
			s.pos, s.line, s.column = save, saveLine, saveCol
			s.advance()
			continue
		}
		s.advance()
	}
}

func (s *scanner) next() (token.Token, error) {
	if err := s.skipWhitespaceAndComments(); err != nil {
		return token.Token{}, err
	}
	if s.atEnd() {
		return token.Token{Kind: token.EOF, Line: s.line, Column: s.column}, nil
	}

	line, col := s.line, s.column
	c := s.peek()

	switch {
	case isAlpha(c):
		return s.scanIdentifier(line, col), nil
	case isDigit(c):
		return s.scanNumber(line, col)
	case c == '.' && isDigit(s.peekAt(1)):
		return s.scanNumber(line, col)
	case c == '"' || c == '\'':
		return s.scanShortString(line, col)
	case c == '[' && (s.peekAt(1) == '[' || s.peekAt(1) == '='):
		start := s.pos
		if level, ok := s.longBracketLevel(); ok {
			if _, err := s.readLongBracket(level); err != nil {
				return token.Token{}, err
			}
			return token.Token{Kind: token.String, Lexeme: string(s.src[start:s.pos]), Line: line, Column: col}, nil
		}
	}

	return s.scanOperator(line, col)
}

func (s *scanner) scanIdentifier(line, col int) token.Token {
	start := s.pos
	for !s.atEnd() && isAlphaNumeric(s.peek()) {
		s.advance()
	}
	lexeme := string(s.src[start:s.pos])
	kind := token.Ident
	if kw, ok := token.Keyword(lexeme); ok {
		kind = kw
	}
	return token.Token{Kind: kind, Lexeme: lexeme, Line: line, Column: col}
}

func (s *scanner) scanNumber(line, col int) (token.Token, error) {
	start := s.pos
	isFloat := false

	if s.peek() == '0' && (s.peekAt(1) == 'x' || s.peekAt(1) == 'X') {
		s.advance()
		s.advance()
		hexStart := s.pos
		for !s.atEnd() && isHexDigit(s.peek()) {
			s.advance()
		}
		if s.pos == hexStart {
			return token.Token{}, &Error{Kind: InvalidNumber, Line: line, Column: col, Detail: "empty hex literal"}
		}
		return token.Token{Kind: token.Int, Lexeme: string(s.src[start:s.pos]), Line: line, Column: col}, nil
	}

	for !s.atEnd() && isDigit(s.peek()) {
		s.advance()
	}

	// A '.' that is not the start of '..' introduces a fractional part.
	if s.peek() == '.' && s.peekAt(1) != '.' {
		isFloat = true
		s.advance()
		for !s.atEnd() && isDigit(s.peek()) {
			s.advance()
		}
	}

	if c := s.peek(); c == 'e' || c == 'E' {
		save := s.pos
		saveLine, saveCol := s.line, s.column
		s.advance()
		if c2 := s.peek(); c2 == '+' || c2 == '-' {
			s.advance()
		}
		if !isDigit(s.peek()) {
			s.pos, s.line, s.column = save, saveLine, saveCol
		} else {
			isFloat = true
			for !s.atEnd() && isDigit(s.peek()) {
				s.advance()
			}
		}
	}

	kind := token.Int
	if isFloat {
		kind = token.Float
	}
	return token.Token{Kind: kind, Lexeme: string(s.src[start:s.pos]), Line: line, Column: col}, nil
}

func (s *scanner) scanShortString(line, col int) (token.Token, error) {
	start := s.pos
	quote := s.advance()
	for {
		if s.atEnd() {
			return token.Token{}, &Error{Kind: UnterminatedString, Line: line, Column: col}
		}
		c := s.peek()
		if c == '\n' {
			return token.Token{}, &Error{Kind: UnterminatedString, Line: line, Column: col}
		}
		if c == '\\' {
			s.advance()
			if s.atEnd() {
				return token.Token{}, &Error{Kind: UnterminatedString, Line: line, Column: col}
			}
			s.advance()
			continue
		}
		if c == quote {
			s.advance()
			return token.Token{Kind: token.String, Lexeme: string(s.src[start:s.pos]), Line: line, Column: col}, nil
		}
		s.advance()
	}
}

func (s *scanner) scanOperator(line, col int) (token.Token, error) {
	c := s.advance()
	mk := func(k token.Kind, n int) token.Token {
		return token.Token{Kind: k, Lexeme: string(s.src[s.pos-n : s.pos]), Line: line, Column: col}
	}
	switch c {
	case '+':
		return mk(token.Plus, 1), nil
	case '-':
		return mk(token.Minus, 1), nil
	case '*':
		return mk(token.Star, 1), nil
	case '/':
		if s.match('/') {
			return mk(token.DSlash, 2), nil
		}
		return mk(token.Slash, 1), nil
	case '%':
		return mk(token.Percent, 1), nil
	case '^':
		return mk(token.Caret, 1), nil
	case '#':
		return mk(token.Hash, 1), nil
	case '&':
		return mk(token.Amp, 1), nil
	case '|':
		return mk(token.Pipe, 1), nil
	case '~':
		if s.match('=') {
			return mk(token.NotEq, 2), nil
		}
		return mk(token.Tilde, 1), nil
	case '<':
		if s.match('=') {
			return mk(token.LessEq, 2), nil
		}
		if s.match('<') {
			return mk(token.LShift, 2), nil
		}
		return mk(token.Less, 1), nil
	case '>':
		if s.match('=') {
			return mk(token.GreaterEq, 2), nil
		}
		if s.match('>') {
			return mk(token.RShift, 2), nil
		}
		return mk(token.Greater, 1), nil
	case '=':
		if s.match('=') {
			return mk(token.Eq, 2), nil
		}
		return mk(token.Assign, 1), nil
	case '(':
		return mk(token.LParen, 1), nil
	case ')':
		return mk(token.RParen, 1), nil
	case '{':
		return mk(token.LBrace, 1), nil
	case '}':
		return mk(token.RBrace, 1), nil
	case '[':
		return mk(token.LBracket, 1), nil
	case ']':
		return mk(token.RBracket, 1), nil
	case ';':
		return mk(token.Semi, 1), nil
	case ',':
		return mk(token.Comma, 1), nil
	case ':':
		if s.match(':') {
			return mk(token.DColon, 2), nil
		}
		return mk(token.Colon, 1), nil
	case '.':
		if s.match('.') {
			if s.match('.') {
				return mk(token.Ellipsis, 3), nil
			}
			return mk(token.Concat, 2), nil
		}
		return mk(token.Dot, 1), nil
	}
	return token.Token{}, &Error{Kind: UnexpectedCharacter, Line: line, Column: col, Detail: fmt.Sprintf("%q", c)}
}
