// Package parser converts .bst token streams into a style AST.
//
// A style file is a flat sequence of commands. Each command is a keyword
// followed by a fixed number of brace groups:
//
//	ENTRY    {fields} {integers} {strings}
//	EXECUTE  {function}
//	FUNCTION {name} {body}
//	INTEGERS {names}
//	ITERATE  {function}
//	MACRO    {name} {"value"}
//	READ
//	REVERSE  {function}
//	SORT
//	STRINGS  {names}
//
// Keywords and names are case-insensitive; names are stored lowercased.
package parser

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"tlog.app/go/errors"

	"github.com/chazu/bst2go/pkg/ast"
	"github.com/chazu/bst2go/pkg/lexer"
)

// SyntaxError is a parse failure at a source position.
type SyntaxError struct {
	Line    int    `json:"line"`
	Column  int    `json:"col"`
	Msg     string `json:"message"`
	Context string `json:"context"` // Command being parsed, if any
}

func (e *SyntaxError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%d:%d: %s (in %s)", e.Line, e.Column, e.Msg, e.Context)
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Msg)
}

// Parser holds the state for parsing a token stream.
type Parser struct {
	tokens  []lexer.Token
	pos     int
	context string
}

// New creates a parser for the given token stream.
func New(tokens []lexer.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse tokenizes and parses src. name is recorded as the style name.
func Parse(name, src string) (*ast.Style, error) {
	tokens, err := lexer.New(src).Tokenize()
	if err != nil {
		var lerr *lexer.Error
		if errors.As(err, &lerr) {
			return nil, &SyntaxError{Line: lerr.Line, Column: lerr.Column, Msg: lerr.Msg}
		}
		return nil, errors.Wrap(err, "tokenize")
	}

	style, err := New(tokens).Parse()
	if err != nil {
		return nil, err
	}
	style.Name = name

	return style, nil
}

// ParseReader reads all of r and parses it.
func ParseReader(name string, r io.Reader) (*ast.Style, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read %v", name)
	}
	return Parse(name, string(data))
}

// Parse parses the whole token stream into a Style.
func (p *Parser) Parse() (*ast.Style, error) {
	style := &ast.Style{Type: "style", Commands: []ast.Command{}}

	for !p.atEnd() {
		cmd, err := p.parseCommand()
		if err != nil {
			return nil, err
		}
		style.Commands = append(style.Commands, cmd)
	}

	return style, nil
}

func (p *Parser) parseCommand() (ast.Command, error) {
	tok := p.advance()
	if tok.Type != lexer.IDENTIFIER {
		return ast.Command{}, p.errorAt(tok, "expected command, got %v", describe(tok))
	}

	kind := ast.CommandKind(strings.ToUpper(tok.Value))
	cmd := ast.Command{Kind: kind, Location: location(tok)}
	p.context = string(kind)
	defer func() { p.context = "" }()

	var err error

	switch kind {
	case ast.CmdRead, ast.CmdSort:
	case ast.CmdExecute, ast.CmdIterate, ast.CmdReverse:
		cmd.Name, err = p.parseSingleName()
	case ast.CmdIntegers, ast.CmdStrings:
		cmd.Names, err = p.parseNameList()
	case ast.CmdEntry:
		if cmd.Fields, err = p.parseNameList(); err != nil {
			break
		}
		if cmd.Integers, err = p.parseNameList(); err != nil {
			break
		}
		cmd.Strings, err = p.parseNameList()
	case ast.CmdFunction:
		if cmd.Name, err = p.parseSingleName(); err != nil {
			break
		}
		p.context = "FUNCTION " + cmd.Name
		cmd.Body, err = p.parseBlock()
	case ast.CmdMacro:
		if cmd.Name, err = p.parseSingleName(); err != nil {
			break
		}
		cmd.Value, err = p.parseMacroValue()
	default:
		return ast.Command{}, p.errorAt(tok, "unknown command %q", tok.Value)
	}

	if err != nil {
		return ast.Command{}, err
	}

	return cmd, nil
}

// parseNameList parses {name name ...}.
func (p *Parser) parseNameList() ([]string, error) {
	if _, err := p.expect(lexer.LBRACE); err != nil {
		return nil, err
	}

	names := []string{}
	for {
		tok := p.advance()
		switch tok.Type {
		case lexer.RBRACE:
			return names, nil
		case lexer.IDENTIFIER:
			names = append(names, strings.ToLower(tok.Value))
		default:
			return nil, p.errorAt(tok, "expected name, got %v", describe(tok))
		}
	}
}

// parseSingleName parses {name}.
func (p *Parser) parseSingleName() (string, error) {
	open := p.peek()

	names, err := p.parseNameList()
	if err != nil {
		return "", err
	}
	if len(names) != 1 {
		return "", p.errorAt(open, "expected exactly one name, got %d", len(names))
	}

	return names[0], nil
}

// parseMacroValue parses {"value"}.
func (p *Parser) parseMacroValue() (string, error) {
	if _, err := p.expect(lexer.LBRACE); err != nil {
		return "", err
	}
	str, err := p.expect(lexer.STRING)
	if err != nil {
		return "", err
	}
	if _, err := p.expect(lexer.RBRACE); err != nil {
		return "", err
	}
	return str.Value, nil
}

// parseBlock parses a brace-delimited instruction sequence, recursing into
// nested blocks.
func (p *Parser) parseBlock() (*ast.Block, error) {
	open, err := p.expect(lexer.LBRACE)
	if err != nil {
		return nil, err
	}

	block := &ast.Block{Instrs: []ast.Instr{}, Location: location(open)}

	for {
		tok := p.peek()
		loc := location(tok)

		switch tok.Type {
		case lexer.RBRACE:
			p.advance()
			return block, nil
		case lexer.EOF:
			return nil, p.errorAt(open, "unclosed block")
		case lexer.LBRACE:
			inner, err := p.parseBlock()
			if err != nil {
				return nil, err
			}
			block.Instrs = append(block.Instrs, ast.Instr{Kind: ast.InstrBlock, Block: inner, Location: loc})
			continue
		}

		p.advance()

		var in ast.Instr

		switch tok.Type {
		case lexer.STRING:
			in = ast.Str(tok.Value)
		case lexer.NUMBER:
			n, err := strconv.Atoi(tok.Value)
			if err != nil {
				return nil, p.errorAt(tok, "bad integer %q", tok.Value)
			}
			in = ast.Int(n)
		case lexer.QUOTE:
			in = ast.Quote(strings.ToLower(tok.Value))
		case lexer.IDENTIFIER:
			in = ast.Name(strings.ToLower(tok.Value))
		default:
			return nil, p.errorAt(tok, "unexpected %v", describe(tok))
		}

		in.Location = loc
		block.Instrs = append(block.Instrs, in)
	}
}

func (p *Parser) expect(typ lexer.TokenType) (lexer.Token, error) {
	tok := p.advance()
	if tok.Type != typ {
		return tok, p.errorAt(tok, "expected %v, got %v", typ, describe(tok))
	}
	return tok, nil
}

func (p *Parser) errorAt(tok lexer.Token, format string, args ...interface{}) error {
	return &SyntaxError{
		Line:    tok.Line,
		Column:  tok.Column,
		Msg:     fmt.Sprintf(format, args...),
		Context: p.context,
	}
}

func (p *Parser) peek() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.eof()
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.eof()
	}
	tok := p.tokens[p.pos]
	p.pos++
	return tok
}

func (p *Parser) atEnd() bool {
	return p.pos >= len(p.tokens) || p.tokens[p.pos].Type == lexer.EOF
}

func (p *Parser) eof() lexer.Token {
	if n := len(p.tokens); n > 0 {
		last := p.tokens[n-1]
		return lexer.Token{Type: lexer.EOF, Line: last.Line, Column: last.Column}
	}
	return lexer.Token{Type: lexer.EOF, Line: 1}
}

func location(tok lexer.Token) ast.Location {
	return ast.Location{Line: tok.Line, Col: tok.Column}
}

func describe(tok lexer.Token) string {
	switch tok.Type {
	case lexer.EOF:
		return "end of file"
	case lexer.LBRACE, lexer.RBRACE:
		return fmt.Sprintf("%q", tok.Value)
	}
	return fmt.Sprintf("%v %q", tok.Type, tok.Value)
}
