package compiler

import (
	"strconv"
	"strings"

	"github.com/chazu/nother/vm"
)

// ---------------------------------------------------------------------------
// Lexer: source text to instructions
// ---------------------------------------------------------------------------

// Lexer splits source into tokens. Parentheses are tokens of their own,
// quoted strings keep their inner whitespace, and everything else is
// delimited by whitespace.
type Lexer struct {
	input        string
	pos          int
	line         int
	col          int
	unterminated bool
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1, col: 1}
}

func (l *Lexer) eof() bool { return l.pos >= len(l.input) }

func (l *Lexer) peek(n int) byte {
	if l.pos+n >= len(l.input) {
		return 0
	}
	return l.input[l.pos+n]
}

func (l *Lexer) advance() {
	if l.input[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// Unterminated reports whether the input ended inside a string or a
// block comment.
func (l *Lexer) Unterminated() bool { return l.unterminated }

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()
	pos := l.position()
	if l.eof() {
		return Token{Type: TokenEOF, Pos: pos}
	}

	switch c := l.input[l.pos]; c {
	case '(':
		l.advance()
		return Token{Type: TokenLParen, Literal: "(", Raw: "(", Pos: pos}
	case ')':
		l.advance()
		return Token{Type: TokenRParen, Literal: ")", Raw: ")", Pos: pos}
	case '"':
		return l.readString(pos)
	}

	for !l.eof() && !isDelimiter(l.input[l.pos]) {
		l.advance()
	}
	word := l.input[pos.Offset:l.pos]
	return Token{Type: TokenWord, Literal: word, Raw: word, Pos: pos}
}

// Tokenize returns every token up to, but not including, EOF.
func (l *Lexer) Tokenize() []Token {
	var toks []Token
	for {
		tok := l.NextToken()
		if tok.Type == TokenEOF {
			return toks
		}
		toks = append(toks, tok)
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for !l.eof() {
		c := l.input[l.pos]
		switch {
		case isSpace(c):
			l.advance()
		case c == '/' && l.peek(1) == '/':
			for !l.eof() && l.input[l.pos] != '\n' {
				l.advance()
			}
		case c == '/' && l.peek(1) == '*':
			l.advance()
			l.advance()
			for !l.eof() && !(l.input[l.pos] == '*' && l.peek(1) == '/') {
				l.advance()
			}
			if l.eof() {
				l.unterminated = true
				return
			}
			l.advance()
			l.advance()
		default:
			return
		}
	}
}

// readString reads a quoted string. A string missing its closing quote
// runs to the end of input.
func (l *Lexer) readString(pos Position) Token {
	l.advance() // opening quote
	var sb strings.Builder
	closed := false
	for !l.eof() {
		c := l.input[l.pos]
		if c == '"' {
			l.advance()
			closed = true
			break
		}
		if c == '\\' && l.pos+1 < len(l.input) {
			switch n := l.input[l.pos+1]; n {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '"', '\\':
				sb.WriteByte(n)
			default:
				sb.WriteByte('\\')
				sb.WriteByte(n)
			}
			l.advance()
			l.advance()
			continue
		}
		sb.WriteByte(c)
		l.advance()
	}
	if !closed {
		l.unterminated = true
	}
	return Token{Type: TokenString, Literal: sb.String(), Raw: l.input[pos.Offset:l.pos], Pos: pos}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func isDelimiter(c byte) bool {
	return isSpace(c) || c == '(' || c == ')'
}

// keywords map reserved words to the instruction they lex to.
var keywords = map[string]vm.Instruction{
	"}":       vm.Simple(vm.OpEndDefine),
	"in":      vm.Simple(vm.OpEndDefine),
	"is":      vm.Define(vm.Public),
	"=":       vm.Define(vm.Public),
	"priv":    vm.Define(vm.Private),
	"lambda":  vm.Simple(vm.OpLambda),
	"return":  vm.Simple(vm.OpReturn),
	"jump":    vm.Simple(vm.OpJmp),
	"jump?":   vm.Simple(vm.OpJmpIf),
	"loop?":   vm.Simple(vm.OpLoopIf),
	"not":     vm.Simple(vm.OpNot),
	"and":     vm.Simple(vm.OpAnd),
	"or":      vm.Simple(vm.OpOr),
	"dup":     vm.Simple(vm.OpDup),
	"swap":    vm.Simple(vm.OpSwap),
	"drop":    vm.Simple(vm.OpDrop),
	"pull":    vm.Simple(vm.OpPull),
	"put":     vm.Simple(vm.OpPut),
	"get":     vm.Simple(vm.OpGet),
	"->":      vm.Simple(vm.OpArrowPut),
	"addr":    vm.Simple(vm.OpAddressOf),
	"print":   vm.Simple(vm.OpPrint),
	"include": vm.Simple(vm.OpInclude),
	"STACK":   vm.Simple(vm.OpStackDump),
	"end":     vm.Simple(vm.OpStop),
	"sub":     vm.Simple(vm.OpSubProg),
	"_":       vm.Simple(vm.OpPlaceholder),
	"+":       vm.Simple(vm.OpAdd),
	"-":       vm.Simple(vm.OpSub),
	"*":       vm.Simple(vm.OpMul),
	"/":       vm.Simple(vm.OpDiv),
	"%":       vm.Simple(vm.OpMod),
	"<":       vm.Simple(vm.OpLt),
	"<=":      vm.Simple(vm.OpLe),
	">":       vm.Simple(vm.OpGt),
	">=":      vm.Simple(vm.OpGe),
	"==":      vm.Simple(vm.OpEq),
	"!=":      vm.Simple(vm.OpNe),
}

// Keywords returns the reserved words in no particular order.
func Keywords() []string {
	out := make([]string, 0, len(keywords)+1)
	for k := range keywords {
		out = append(out, k)
	}
	return append(out, "{")
}

// modifiers are the reference suffixes and the instruction each appends.
var modifiers = map[byte]vm.Opcode{
	'!': vm.OpJmp,
	'?': vm.OpJmpIf,
	'$': vm.OpGet,
}

// emitter accumulates instructions and their source references.
type emitter struct {
	file string
	code []vm.Instruction
	refs []vm.SourceRef
}

func (e *emitter) emit(in vm.Instruction, tok Token) {
	e.code = append(e.code, in)
	e.refs = append(e.refs, vm.SourceRef{Token: tok.Raw, File: e.file, Line: tok.Pos.Line, Col: tok.Pos.Column})
}

// token lowers one token outside of an expression.
func (e *emitter) token(tok Token) {
	switch tok.Type {
	case TokenString:
		e.emit(vm.PushText(tok.Literal), tok)
	case TokenRParen:
		e.emit(vm.PushText(tok.Literal), tok)
	case TokenWord:
		e.word(tok)
	}
}

func (e *emitter) word(tok Token) {
	lit := tok.Literal
	if lit == "{" {
		return
	}
	if in, ok := keywords[lit]; ok {
		e.emit(in, tok)
		return
	}
	if e.reference(tok) {
		return
	}
	if n, ok := returnCount(lit); ok {
		for i := 0; i < n; i++ {
			e.emit(vm.Simple(vm.OpReturn), tok)
		}
		return
	}
	if f, ok := parseNumber(lit); ok {
		e.emit(vm.PushNum(f), tok)
		return
	}
	e.emit(vm.PushText(lit), tok)
}

// reference lowers @name with optional trailing modifiers. Modifiers apply
// right to left, so @x?$ is push, get, jump-if. It reports false when the
// token is not a reference.
func (e *emitter) reference(tok Token) bool {
	lit := tok.Literal
	if len(lit) < 2 || lit[0] != '@' {
		return false
	}
	body := lit[1:]
	end := len(body)
	for end > 0 {
		if _, ok := modifiers[body[end-1]]; !ok {
			break
		}
		end--
	}
	name := body[:end]
	if name == "" || name == vm.ScopeSep {
		return false
	}
	e.emit(vm.RefNamed(name, 0), tok)
	for i := len(body) - 1; i >= end; i-- {
		e.emit(vm.Simple(modifiers[body[i]]), tok)
	}
	return true
}

// MaxReturns bounds the _N shorthand. Longer runs lex as text.
const MaxReturns = 1024

// returnCount parses _N.
func returnCount(lit string) (int, bool) {
	if len(lit) < 2 || lit[0] != '_' {
		return 0, false
	}
	n, err := strconv.Atoi(lit[1:])
	if err != nil || n < 0 || n > MaxReturns || strings.ContainsAny(lit[1:], "+-") {
		return 0, false
	}
	return n, true
}

// parseNumber accepts decimal notation only, so words such as "inf" or
// "NaN" stay text.
func parseNumber(lit string) (float64, bool) {
	s := lit
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	if s == "" || !(s[0] == '.' || (s[0] >= '0' && s[0] <= '9')) {
		return 0, false
	}
	f, err := strconv.ParseFloat(lit, 64)
	return f, err == nil
}

// Lex turns source into instructions with one source reference each.
// Unknown words become text pushes; only a malformed parenthesised
// expression fails, with a *SyntaxError.
func Lex(src, file string) ([]vm.Instruction, []vm.SourceRef, error) {
	toks := NewLexer(src).Tokenize()
	e := &emitter{file: file}
	for i := 0; i < len(toks); {
		if toks[i].Type == TokenLParen {
			p := &exprParser{toks: toks, pos: i, e: e}
			if err := p.parseExpression(); err != nil {
				return nil, nil, err
			}
			i = p.pos
			continue
		}
		e.token(toks[i])
		i++
	}
	return e.code, e.refs, nil
}

// Balance returns how many blocks and expressions the source leaves open.
// An unterminated string or comment counts as one more. The REPL keeps
// reading lines while Balance is positive.
func Balance(src string) int {
	l := NewLexer(src)
	depth := 0
	for _, tok := range l.Tokenize() {
		switch tok.Type {
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
		case TokenWord:
			if in, ok := keywords[tok.Literal]; ok {
				switch in.Op {
				case vm.OpBeginDefine, vm.OpLambda:
					depth++
				case vm.OpEndDefine:
					depth--
				}
			}
		}
	}
	if l.Unterminated() {
		depth++
	}
	return depth
}

// Keyword returns the instruction a reserved word lexes to.
func Keyword(word string) (vm.Instruction, bool) {
	in, ok := keywords[word]
	return in, ok
}
