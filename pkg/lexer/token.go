// Package lexer provides tokenization for BibTeX style (.bst) files.
package lexer

// TokenType represents the type of a token.
type TokenType string

const (
	IDENTIFIER TokenType = "IDENTIFIER" // Command, function or variable names (e.g., FUNCTION, output.bibitem, write$)
	STRING     TokenType = "STRING"     // Double-quoted strings (e.g., "hello"), value without quotes
	NUMBER     TokenType = "NUMBER"     // Integer literals with # prefix (e.g., #1, #-5), value without #
	QUOTE      TokenType = "QUOTE"      // Quoted names (e.g., 'skip$), value without '
	LBRACE     TokenType = "LBRACE"     // {
	RBRACE     TokenType = "RBRACE"     // }

	ERROR TokenType = "ERROR" // Error token
	EOF   TokenType = "EOF"   // End of file
)

// Token represents a single token from the lexer.
type Token struct {
	Type   TokenType `json:"type"`
	Value  string    `json:"value"`
	Line   int       `json:"line"`
	Column int       `json:"col"`
}

// NewToken creates a new token with the given properties.
func NewToken(typ TokenType, value string, line, col int) Token {
	return Token{
		Type:   typ,
		Value:  value,
		Line:   line,
		Column: col,
	}
}

// IsIdentifier returns true if the token is an identifier.
func (t Token) IsIdentifier() bool {
	return t.Type == IDENTIFIER
}

// IsLiteral returns true if the token pushes a value by itself.
func (t Token) IsLiteral() bool {
	switch t.Type {
	case STRING, NUMBER, QUOTE:
		return true
	}
	return false
}
