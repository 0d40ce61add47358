package formula

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mailvoucher/mailvoucher/internal/common"
)

// parser is a recursive-descent evaluator for arithmetic expressions over
// exact decimals. The grammar is deliberately tiny:
//
//	expr   = term { ("+" | "-") term }
//	term   = factor { ("*" | "/") factor }
//	factor = number | "(" expr ")" | ("+" | "-") factor
//
// There are no identifiers and no function calls; variable substitution
// happens before parsing, so nothing here can reach outside arithmetic.
type parser struct {
	input string
	pos   int
}

// evalExpression parses and evaluates a pure arithmetic expression.
func evalExpression(input string) (decimal.Decimal, error) {
	p := &parser{input: input}
	result, err := p.expr()
	if err != nil {
		return decimal.Zero, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return decimal.Zero, fmt.Errorf("%w: unexpected %q at position %d",
			common.ErrEvaluationFailed, p.input[p.pos], p.pos)
	}
	return result, nil
}

func (p *parser) expr() (decimal.Decimal, error) {
	result, err := p.term()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		p.skipSpace()
		switch {
		case p.peek() == '+':
			p.pos++
			rhs, err := p.term()
			if err != nil {
				return decimal.Zero, err
			}
			result = result.Add(rhs)
		case p.peek() == '-':
			p.pos++
			rhs, err := p.term()
			if err != nil {
				return decimal.Zero, err
			}
			result = result.Sub(rhs)
		default:
			return result, nil
		}
	}
}

func (p *parser) term() (decimal.Decimal, error) {
	result, err := p.factor()
	if err != nil {
		return decimal.Zero, err
	}
	for {
		p.skipSpace()
		switch {
		case p.peek() == '*':
			p.pos++
			rhs, err := p.factor()
			if err != nil {
				return decimal.Zero, err
			}
			result = result.Mul(rhs)
		case p.peek() == '/':
			p.pos++
			rhs, err := p.factor()
			if err != nil {
				return decimal.Zero, err
			}
			if rhs.IsZero() {
				return decimal.Zero, fmt.Errorf("%w: division by zero", common.ErrEvaluationFailed)
			}
			result = result.Div(rhs)
		default:
			return result, nil
		}
	}
}

func (p *parser) factor() (decimal.Decimal, error) {
	p.skipSpace()
	switch {
	case p.peek() == '(':
		p.pos++
		result, err := p.expr()
		if err != nil {
			return decimal.Zero, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return decimal.Zero, fmt.Errorf("%w: missing closing parenthesis", common.ErrEvaluationFailed)
		}
		p.pos++
		return result, nil
	case p.peek() == '-':
		p.pos++
		result, err := p.factor()
		if err != nil {
			return decimal.Zero, err
		}
		return result.Neg(), nil
	case p.peek() == '+':
		p.pos++
		return p.factor()
	default:
		return p.number()
	}
}

func (p *parser) number() (decimal.Decimal, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && (isDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if p.pos == start {
		return decimal.Zero, fmt.Errorf("%w: expected a number at position %d", common.ErrEvaluationFailed, start)
	}
	lit := p.input[start:p.pos]
	if strings.Count(lit, ".") > 1 {
		return decimal.Zero, fmt.Errorf("%w: malformed number %q", common.ErrEvaluationFailed, lit)
	}
	d, err := decimal.NewFromString(lit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: malformed number %q", common.ErrEvaluationFailed, lit)
	}
	return d, nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n' || p.input[p.pos] == '\r') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
