package tool

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// DefaultMaxExpressionLength caps sanitized arithmetic expressions.
const DefaultMaxExpressionLength = 100

// SanitizeExpression strips every character outside the arithmetic
// charset (digits, + - * / ( ) . and spaces) and enforces the length
// cap. An expression that sanitizes to nothing comes back empty with a
// nil error; callers decide whether that drops the task.
func SanitizeExpression(raw string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxExpressionLength
	}
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == '-' || r == '*' || r == '/' || r == '(' || r == ')' || r == '.' || r == ' ':
			b.WriteRune(r)
		}
	}
	expr := strings.TrimSpace(b.String())
	if len(expr) > maxLen {
		return "", fmt.Errorf("expression exceeds %d characters", maxLen)
	}
	return expr, nil
}

// Calculator evaluates basic arithmetic expressions.
type Calculator struct {
	MaxExpressionLength int
}

func (Calculator) Name() string { return "calculator" }

func (c Calculator) Invoke(ctx context.Context, input string) (interface{}, error) {
	expr, err := SanitizeExpression(input, c.MaxExpressionLength)
	if err != nil {
		return nil, err
	}
	if expr == "" {
		return nil, fmt.Errorf("no arithmetic expression in input")
	}
	p := &parser{src: expr}
	v, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("unexpected character %q at position %d", p.src[p.pos], p.pos)
	}
	return v, nil
}

// parser is a recursive-descent evaluator over the sanitized charset.
//
//	expr   = term   {('+' | '-') term}
//	term   = factor {('*' | '/') factor}
//	factor = number | '(' expr ')' | '-' factor
type parser struct {
	src string
	pos int
}

func (p *parser) parseExpr() (float64, error) {
	v, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '+':
			p.pos++
			r, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v += r
		case '-':
			p.pos++
			r, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			v -= r
		default:
			return v, nil
		}
	}
}

func (p *parser) parseTerm() (float64, error) {
	v, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '*':
			p.pos++
			r, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			v *= r
		case '/':
			p.pos++
			r, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			if r == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v /= r
		default:
			return v, nil
		}
	}
}

func (p *parser) parseFactor() (float64, error) {
	p.skipSpace()
	switch {
	case p.peek() == '(':
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return v, nil
	case p.peek() == '-':
		p.pos++
		v, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return -v, nil
	default:
		return p.parseNumber()
	}
}

func (p *parser) parseNumber() (float64, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && (p.src[p.pos] >= '0' && p.src[p.pos] <= '9' || p.src[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		if p.pos < len(p.src) {
			return 0, fmt.Errorf("unexpected character %q at position %d", p.src[p.pos], p.pos)
		}
		return 0, fmt.Errorf("unexpected end of expression")
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.src[start:p.pos])
	}
	return v, nil
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}
