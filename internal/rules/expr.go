// Package rules provides a restricted expression language for strategy
// conditions. Expressions are a closed set of comparison and boolean
// operators over named numeric inputs, parsed into a small AST and walked
// by a dedicated interpreter. They are never executed as general-purpose
// code, and referencing an input that was not supplied is an error rather
// than a silent zero.
package rules

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a boolean expression node.
type Expr interface {
	// Eval evaluates the expression against named numeric inputs.
	Eval(inputs map[string]float64) (bool, error)
	String() string
}

// Operand is a numeric leaf: a literal or a named input.
type Operand interface {
	value(inputs map[string]float64) (float64, error)
	String() string
}

// Num is a numeric literal.
type Num struct {
	Value float64
}

func (n Num) value(map[string]float64) (float64, error) { return n.Value, nil }

// String renders without exponent notation: the lexer only understands
// digits and a decimal point, so the rendered form must stay parseable.
func (n Num) String() string { return strconv.FormatFloat(n.Value, 'f', -1, 64) }

// Var is a named numeric input, e.g. "close" or "rsi".
type Var struct {
	Name string
}

func (v Var) value(inputs map[string]float64) (float64, error) {
	val, ok := inputs[v.Name]
	if !ok {
		return 0, fmt.Errorf("undefined input %q", v.Name)
	}
	return val, nil
}

func (v Var) String() string { return v.Name }

// CompareOp is a comparison operator.
type CompareOp string

const (
	OpGT CompareOp = ">"
	OpGE CompareOp = ">="
	OpLT CompareOp = "<"
	OpLE CompareOp = "<="
	OpEQ CompareOp = "=="
	OpNE CompareOp = "!="
)

// Compare compares two operands.
type Compare struct {
	Left  Operand
	Op    CompareOp
	Right Operand
}

func (c Compare) Eval(inputs map[string]float64) (bool, error) {
	l, err := c.Left.value(inputs)
	if err != nil {
		return false, err
	}
	r, err := c.Right.value(inputs)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case OpGT:
		return l > r, nil
	case OpGE:
		return l >= r, nil
	case OpLT:
		return l < r, nil
	case OpLE:
		return l <= r, nil
	case OpEQ:
		return l == r, nil
	case OpNE:
		return l != r, nil
	default:
		return false, fmt.Errorf("unknown operator %q", c.Op)
	}
}

func (c Compare) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Op, c.Right)
}

// And is the conjunction of two expressions.
type And struct {
	Left, Right Expr
}

func (a And) Eval(inputs map[string]float64) (bool, error) {
	l, err := a.Left.Eval(inputs)
	if err != nil {
		return false, err
	}
	if !l {
		return false, nil
	}
	return a.Right.Eval(inputs)
}

func (a And) String() string {
	return fmt.Sprintf("(%s and %s)", a.Left, a.Right)
}

// Or is the disjunction of two expressions.
type Or struct {
	Left, Right Expr
}

func (o Or) Eval(inputs map[string]float64) (bool, error) {
	l, err := o.Left.Eval(inputs)
	if err != nil {
		return false, err
	}
	if l {
		return true, nil
	}
	return o.Right.Eval(inputs)
}

func (o Or) String() string {
	return fmt.Sprintf("(%s or %s)", o.Left, o.Right)
}

// Not negates an expression.
type Not struct {
	Inner Expr
}

func (n Not) Eval(inputs map[string]float64) (bool, error) {
	v, err := n.Inner.Eval(inputs)
	if err != nil {
		return false, err
	}
	return !v, nil
}

func (n Not) String() string {
	return fmt.Sprintf("not %s", n.Inner)
}

// Parse parses an expression like "rsi < 30 and close > sma_50".
func Parse(input string) (Expr, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		return nil, fmt.Errorf("unexpected token %q", p.tokens[p.pos])
	}
	return expr, nil
}

func lex(input string) ([]string, error) {
	var tokens []string
	i := 0
	for i < len(input) {
		c := rune(input[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(' || c == ')':
			tokens = append(tokens, string(c))
			i++
		case strings.ContainsRune("<>=!", c):
			j := i + 1
			if j < len(input) && input[j] == '=' {
				j++
			}
			op := input[i:j]
			switch op {
			case ">", ">=", "<", "<=", "==", "!=":
				tokens = append(tokens, op)
			default:
				return nil, fmt.Errorf("invalid operator %q", op)
			}
			i = j
		case unicode.IsDigit(c) || c == '.':
			j := i
			for j < len(input) && (unicode.IsDigit(rune(input[j])) || input[j] == '.') {
				j++
			}
			tokens = append(tokens, input[i:j])
			i = j
		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(input) && (unicode.IsLetter(rune(input[j])) || unicode.IsDigit(rune(input[j])) || input[j] == '_') {
				j++
			}
			tokens = append(tokens, input[i:j])
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q", c)
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return tokens, nil
}

type parser struct {
	tokens []string
	pos    int
}

func (p *parser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *parser) next() string {
	tok := p.peek()
	p.pos++
	return tok
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek() == "or" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek() == "and" {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = And{Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.peek() == "not" {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return Not{Inner: inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	if p.peek() == "(" {
		p.next()
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.next() != ")" {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return expr, nil
	}

	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	op := p.next()
	switch CompareOp(op) {
	case OpGT, OpGE, OpLT, OpLE, OpEQ, OpNE:
	default:
		return nil, fmt.Errorf("expected comparison operator, got %q", op)
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	return Compare{Left: left, Op: CompareOp(op), Right: right}, nil
}

func (p *parser) parseOperand() (Operand, error) {
	tok := p.next()
	if tok == "" {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	if unicode.IsDigit(rune(tok[0])) || tok[0] == '.' {
		val, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", tok)
		}
		return Num{Value: val}, nil
	}
	if tok == "and" || tok == "or" || tok == "not" || tok == "(" || tok == ")" {
		return nil, fmt.Errorf("expected operand, got %q", tok)
	}
	return Var{Name: tok}, nil
}
