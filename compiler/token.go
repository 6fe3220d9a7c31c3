package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	TokenEOF    TokenType = iota
	TokenWord             // any whitespace-delimited run
	TokenString           // "quoted text", escapes already applied
	TokenLParen           // (
	TokenRParen           // )
)

var tokenNames = map[TokenType]string{
	TokenEOF:    "EOF",
	TokenWord:   "WORD",
	TokenString: "STRING",
	TokenLParen: "(",
	TokenRParen: ")",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // word text, or string contents after unescaping
	Raw     string   // exact source text of the token
	Pos     Position // start position
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "EOF"
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Type, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
}
