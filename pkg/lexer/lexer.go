// Package lexer provides tokenization for BibTeX style (.bst) files.
//
// It performs character-by-character processing to produce tokens for the
// parser.
//
// Token Types:
//
//	IDENTIFIER  - any run of characters that is not whitespace, a brace, % or "
//	STRING      - "text" (no escapes; a string ends at the next double quote)
//	NUMBER      - #12, #-3, #+4
//	QUOTE       - 'name
//	LBRACE      - Left brace {
//	RBRACE      - Right brace }
//
// A % starts a comment that runs to the end of the line.
//
// Output Format (JSON array):
//
//	[{"type": "IDENTIFIER", "value": "FUNCTION", "line": 1, "col": 0}, ...]
package lexer

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"tlog.app/go/errors"
)

// Lexer tokenizes .bst source code.
type Lexer struct {
	input  string // The source code being tokenized
	pos    int    // Current position in input
	line   int    // Current line number (1-indexed)
	col    int    // Current column number (0-indexed)
	tokens []Token
}

// Error is a tokenization failure at a source position.
type Error struct {
	Line   int
	Column int
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
}

// New creates a new Lexer for the given input.
func New(input string) *Lexer {
	return &Lexer{
		input:  input,
		pos:    0,
		line:   1,
		col:    0,
		tokens: make([]Token, 0),
	}
}

// NewFromReader creates a new Lexer from an io.Reader.
func NewFromReader(r io.Reader) (*Lexer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read input")
	}
	return New(string(data)), nil
}

// Tokenize processes the entire input and returns all tokens.
// The final token is always EOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	for !l.isAtEnd() {
		if err := l.scanToken(); err != nil {
			return nil, err
		}
	}
	l.addTokenAt(EOF, "", l.line, l.col)
	return l.tokens, nil
}

// TokenizeJSON processes the input and returns tokens as a JSON array.
func (l *Lexer) TokenizeJSON() (string, error) {
	tokens, err := l.Tokenize()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		return "", errors.Wrap(err, "marshal tokens")
	}
	return string(data), nil
}

// Helper methods for character access and movement

func (l *Lexer) isAtEnd() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.input[l.pos]
}

func (l *Lexer) peekNext() byte {
	if l.pos+1 >= len(l.input) {
		return 0
	}
	return l.input[l.pos+1]
}

func (l *Lexer) advance() byte {
	ch := l.input[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
	return ch
}

func (l *Lexer) addTokenAt(typ TokenType, value string, line, col int) {
	l.tokens = append(l.tokens, NewToken(typ, value, line, col))
}

func (l *Lexer) errorf(line, col int, format string, args ...interface{}) error {
	return &Error{Line: line, Column: col, Msg: fmt.Sprintf(format, args...)}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// isNameChar reports whether c may appear inside a name.
func isNameChar(c byte) bool {
	switch c {
	case '{', '}', '%', '"', '#', '\'':
		return false
	}
	return !isSpace(c) && c != 0
}

// scanToken scans a single token from the current position.
func (l *Lexer) scanToken() error {
	char := l.peek()

	switch {
	case isSpace(char):
		l.advance()
		return nil

	case char == '%':
		for !l.isAtEnd() && l.peek() != '\n' {
			l.advance()
		}
		return nil

	case char == '{':
		startCol := l.col
		l.advance()
		l.addTokenAt(LBRACE, "{", l.line, startCol)
		return nil

	case char == '}':
		startCol := l.col
		l.advance()
		l.addTokenAt(RBRACE, "}", l.line, startCol)
		return nil

	case char == '"':
		return l.scanString()

	case char == '#':
		return l.scanNumber()

	case char == '\'':
		return l.scanQuote()

	default:
		startLine, startCol := l.line, l.col
		l.addTokenAt(IDENTIFIER, l.scanName(), startLine, startCol)
		return nil
	}
}

// scanName consumes a run of name characters.
func (l *Lexer) scanName() string {
	var word strings.Builder
	for !l.isAtEnd() && isNameChar(l.peek()) {
		word.WriteByte(l.advance())
	}
	return word.String()
}

// scanString handles "text". BibTeX strings have no escapes and may not
// span lines.
func (l *Lexer) scanString() error {
	startLine, startCol := l.line, l.col
	l.advance() // opening quote

	var str strings.Builder
	for {
		if l.isAtEnd() || l.peek() == '\n' {
			return l.errorf(startLine, startCol, "unterminated string")
		}
		c := l.advance()
		if c == '"' {
			break
		}
		str.WriteByte(c)
	}

	l.addTokenAt(STRING, str.String(), startLine, startCol)
	return nil
}

// scanNumber handles #123, #-1 and #+1.
func (l *Lexer) scanNumber() error {
	startLine, startCol := l.line, l.col
	l.advance() // #

	var num strings.Builder
	if c := l.peek(); c == '-' || c == '+' {
		if c == '-' {
			num.WriteByte('-')
		}
		l.advance()
	}

	if !isDigit(l.peek()) {
		return l.errorf(startLine, startCol, "integer literal without digits")
	}
	for !l.isAtEnd() && isDigit(l.peek()) {
		num.WriteByte(l.advance())
	}

	l.addTokenAt(NUMBER, num.String(), startLine, startCol)
	return nil
}

// scanQuote handles 'name.
func (l *Lexer) scanQuote() error {
	startLine, startCol := l.line, l.col
	l.advance() // '

	name := l.scanName()
	if name == "" {
		return l.errorf(startLine, startCol, "quote without a name")
	}

	l.addTokenAt(QUOTE, name, startLine, startCol)
	return nil
}

// String returns a string representation of the lexer state (for debugging).
func (l *Lexer) String() string {
	return fmt.Sprintf("Lexer{pos=%d, line=%d, col=%d, tokens=%d}",
		l.pos, l.line, l.col, len(l.tokens))
}
