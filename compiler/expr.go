package compiler

import (
	"fmt"

	"github.com/chazu/nother/vm"
)

// ---------------------------------------------------------------------------
// Expression parser: ( a op b ) to postfix
// ---------------------------------------------------------------------------

// SyntaxError reports a malformed parenthesised expression.
type SyntaxError struct {
	File string
	Pos  Position
	Msg  string
}

func (e *SyntaxError) Error() string {
	file := e.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d: syntax error: %s", file, e.Pos.Line, e.Pos.Column, e.Msg)
}

// operators are the infix operators an expression accepts.
var operators = map[string]vm.Opcode{
	"+":   vm.OpAdd,
	"-":   vm.OpSub,
	"*":   vm.OpMul,
	"/":   vm.OpDiv,
	"%":   vm.OpMod,
	"<":   vm.OpLt,
	"<=":  vm.OpLe,
	">":   vm.OpGt,
	">=":  vm.OpGe,
	"==":  vm.OpEq,
	"!=":  vm.OpNe,
	"and": vm.OpAnd,
	"or":  vm.OpOr,
}

// exprParser lowers
//
//	expr := '(' expr op expr { op expr } ')' | value
//
// into postfix. Operators after the first pair apply left to right with no
// precedence: (1 + 2 * 3) is 9.
type exprParser struct {
	toks []Token
	pos  int
	e    *emitter
}

func (p *exprParser) errorf(tok Token, format string, args ...any) *SyntaxError {
	return &SyntaxError{File: p.e.file, Pos: tok.Pos, Msg: fmt.Sprintf(format, args...)}
}

// current returns the token under the cursor, or the last token with EOF
// type once the input is exhausted.
func (p *exprParser) current() Token {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	last := Token{Type: TokenEOF}
	if n := len(p.toks); n > 0 {
		last.Pos = p.toks[n-1].Pos
	}
	return last
}

func (p *exprParser) parseExpression() error {
	if p.current().Type == TokenLParen {
		return p.parseBinary()
	}
	return p.parseValue()
}

func (p *exprParser) parseBinary() error {
	open := p.current()
	if open.Type != TokenLParen {
		return p.errorf(open, "expected '(', found %s", open)
	}
	p.pos++

	if err := p.parseExpression(); err != nil {
		return err
	}
	for first := true; ; first = false {
		tok := p.current()
		switch tok.Type {
		case TokenEOF:
			return p.errorf(open, "unterminated expression")
		case TokenRParen:
			if first {
				return p.errorf(tok, "expected operator, found ')'")
			}
			p.pos++
			return nil
		}
		op, err := p.operator()
		if err != nil {
			return err
		}
		if err := p.parseExpression(); err != nil {
			return err
		}
		p.e.emit(vm.Simple(op), tok)
	}
}

func (p *exprParser) operator() (vm.Opcode, error) {
	tok := p.current()
	op, ok := operators[tok.Literal]
	if tok.Type != TokenWord || !ok {
		return 0, p.errorf(tok, "invalid operator %s", tok)
	}
	p.pos++
	return op, nil
}

func (p *exprParser) parseValue() error {
	tok := p.current()
	switch tok.Type {
	case TokenEOF:
		return p.errorf(tok, "unterminated expression")
	case TokenRParen:
		return p.errorf(tok, "expected value, found ')'")
	case TokenString:
		p.e.emit(vm.PushText(tok.Literal), tok)
	case TokenWord:
		if p.e.reference(tok) {
			break
		}
		if f, ok := parseNumber(tok.Literal); ok {
			p.e.emit(vm.PushNum(f), tok)
		} else {
			p.e.emit(vm.PushText(tok.Literal), tok)
		}
	}
	p.pos++
	return nil
}
