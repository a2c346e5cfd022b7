package formula

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

const (
	// MaxExpressionLength bounds the size of an expression accepted by the parser.
	MaxExpressionLength = 4096
	// MaxDepth bounds nesting of parentheses, unary operators and ternaries.
	MaxDepth = 64
	// MaxTokens bounds the number of lexical tokens in one expression.
	MaxTokens = 2048
)

// ErrEvaluation marks every failure to parse or evaluate an expression.
var ErrEvaluation = errors.New("formula: evaluation failed")

// EvalError describes why an expression could not be evaluated.
type EvalError struct {
	Reason string
	// Pos is the byte offset in the substituted expression, or -1 when not applicable.
	Pos int
}

func (e *EvalError) Error() string {
	if e == nil {
		return ""
	}
	if e.Pos >= 0 {
		return fmt.Sprintf("%s: %s at offset %d", ErrEvaluation, e.Reason, e.Pos)
	}
	return fmt.Sprintf("%s: %s", ErrEvaluation, e.Reason)
}

// Unwrap lets errors.Is match ErrEvaluation.
func (e *EvalError) Unwrap() error { return ErrEvaluation }

func evalErr(pos int, format string, args ...any) *EvalError {
	return &EvalError{Reason: fmt.Sprintf(format, args...), Pos: pos}
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokQuestion
	tokColon
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func lex(src string) ([]token, error) {
	tokens := make([]token, 0, 16)
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
			continue
		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			for i < len(src) && (isDigit(src[i]) || src[i] == '.') {
				i++
			}
			if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
				j := i + 1
				if j < len(src) && (src[j] == '+' || src[j] == '-') {
					j++
				}
				if j < len(src) && isDigit(src[j]) {
					for j < len(src) && isDigit(src[j]) {
						j++
					}
					i = j
				}
			}
			text := src[start:i]
			n, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, evalErr(start, "malformed number %q", text)
			}
			tokens = append(tokens, token{kind: tokNumber, text: text, num: n, pos: start})
		case isWordByte(c) || c == '$':
			start := i
			for i < len(src) && (isWordByte(src[i]) || src[i] == '$' || src[i] == '.') {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: src[start:i], pos: start})
		case c == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case c == '?':
			tokens = append(tokens, token{kind: tokQuestion, text: "?", pos: i})
			i++
		case c == ':':
			tokens = append(tokens, token{kind: tokColon, text: ":", pos: i})
			i++
		default:
			op := matchOperator(src[i:])
			if op == "" {
				return nil, evalErr(i, "unexpected character %q", c)
			}
			tokens = append(tokens, token{kind: tokOp, text: op, pos: i})
			i += len(op)
		}
		if len(tokens) > MaxTokens {
			return nil, evalErr(-1, "expression exceeds %d tokens", MaxTokens)
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(src)})
	return tokens, nil
}

var operators = []string{"===", "!==", "==", "!=", "<=", ">=", "&&", "||", "+", "-", "*", "/", "%", "<", ">", "!"}

func matchOperator(s string) string {
	for _, op := range operators {
		if len(s) >= len(op) && s[:len(op)] == op {
			return op
		}
	}
	return ""
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWordByte(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

type node interface {
	eval() float64
}

type numberNode float64

func (n numberNode) eval() float64 { return float64(n) }

type unaryNode struct {
	op      string
	operand node
}

func (n unaryNode) eval() float64 {
	v := n.operand.eval()
	switch n.op {
	case "-":
		return -v
	case "!":
		return boolNum(v == 0)
	default:
		return v
	}
}

type binaryNode struct {
	op          string
	left, right node
}

func (n binaryNode) eval() float64 {
	switch n.op {
	case "&&":
		l := n.left.eval()
		if l == 0 || math.IsNaN(l) {
			return l
		}
		return n.right.eval()
	case "||":
		l := n.left.eval()
		if l != 0 && !math.IsNaN(l) {
			return l
		}
		return n.right.eval()
	}
	l, r := n.left.eval(), n.right.eval()
	switch n.op {
	case "+":
		return l + r
	case "-":
		return l - r
	case "*":
		return l * r
	case "/":
		return l / r
	case "%":
		return math.Mod(l, r)
	case "<":
		return boolNum(l < r)
	case "<=":
		return boolNum(l <= r)
	case ">":
		return boolNum(l > r)
	case ">=":
		return boolNum(l >= r)
	case "==", "===":
		return boolNum(l == r)
	case "!=", "!==":
		return boolNum(l != r)
	}
	return math.NaN()
}

type ternaryNode struct {
	cond, then, otherwise node
}

func (n ternaryNode) eval() float64 {
	c := n.cond.eval()
	if c != 0 && !math.IsNaN(c) {
		return n.then.eval()
	}
	return n.otherwise.eval()
}

func boolNum(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

type parser struct {
	tokens []token
	pos    int
	depth  int
}

// compile parses a fully substituted expression into an evaluable tree.
func compile(src string) (node, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	if p.peek().kind == tokEOF {
		return nil, evalErr(0, "empty expression")
	}
	n, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, evalErr(tok.pos, "unexpected %q", tok.text)
	}
	return n, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > MaxDepth {
		return evalErr(p.peek().pos, "expression nested deeper than %d", MaxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) ternary() (node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	cond, err := p.binary(0)
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokQuestion {
		return cond, nil
	}
	p.next()
	then, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if tok := p.next(); tok.kind != tokColon {
		return nil, evalErr(tok.pos, "expected ':' in conditional")
	}
	otherwise, err := p.ternary()
	if err != nil {
		return nil, err
	}
	return ternaryNode{cond: cond, then: then, otherwise: otherwise}, nil
}

// precedence levels from loosest to tightest binding.
var precedence = [][]string{
	{"||"},
	{"&&"},
	{"==", "!=", "===", "!=="},
	{"<", "<=", ">", ">="},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *parser) binary(level int) (node, error) {
	if level == len(precedence) {
		return p.unary()
	}
	left, err := p.binary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind != tokOp || !contains(precedence[level], tok.text) {
			return left, nil
		}
		p.next()
		right, err := p.binary(level + 1)
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.text, left: left, right: right}
	}
}

func (p *parser) unary() (node, error) {
	tok := p.peek()
	if tok.kind == tokOp && (tok.text == "-" || tok.text == "+" || tok.text == "!") {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		p.next()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: tok.text, operand: operand}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return numberNode(tok.num), nil
	case tokLParen:
		inner, err := p.ternary()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, evalErr(closing.pos, "expected ')'")
		}
		return inner, nil
	case tokIdent:
		return nil, evalErr(tok.pos, "unresolved identifier %q", tok.text)
	case tokEOF:
		return nil, evalErr(tok.pos, "unexpected end of expression")
	default:
		return nil, evalErr(tok.pos, "unexpected %q", tok.text)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
