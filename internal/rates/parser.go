package rates

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseRuleSet parses a rule-set string into ordered assignments. Statements
// are separated by newlines or semicolons; lines starting with # are comments.
func ParseRuleSet(src string) ([]Rule, error) {
	var rules []Rule
	for _, line := range splitStatements(src) {
		idx := strings.Index(line, "=")
		if idx < 0 {
			return nil, fmt.Errorf("rule %q: missing '='", line)
		}
		pair, err := ParsePair(line[:idx])
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", line, err)
		}
		expr, err := parseExpression(line[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", line, err)
		}
		rules = append(rules, Rule{Pair: pair, Expr: expr})
	}
	return rules, nil
}

func splitStatements(src string) []string {
	var out []string
	for _, chunk := range strings.FieldsFunc(src, func(r rune) bool {
		return r == '\n' || r == ';'
	}) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" || strings.HasPrefix(chunk, "#") {
			continue
		}
		out = append(out, chunk)
	}
	return out
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokWord
	tokSymbol
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c >= '0' && c <= '9':
			start := i
			for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.') {
				i++
			}
			toks = append(toks, token{kind: tokNumber, text: src[start:i], pos: start})
		case isWordChar(c):
			start := i
			for i < len(src) && isWordChar(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokWord, text: src[start:i], pos: start})
		case strings.ContainsRune("+-*/(),", rune(c)):
			toks = append(toks, token{kind: tokSymbol, text: string(c), pos: i})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q at %d", c, i)
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

type parser struct {
	toks []token
	pos  int
}

func parseExpression(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected token %q at %d", p.peek().text, p.peek().pos)
	}
	return expr, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) acceptSymbol(symbols string) (byte, bool) {
	t := p.peek()
	if t.kind == tokSymbol && strings.Contains(symbols, t.text) {
		p.next()
		return t.text[0], true
	}
	return 0, false
}

func (p *parser) parseSum() (Expr, error) {
	left, err := p.parseProduct()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptSymbol("+-")
		if !ok {
			return left, nil
		}
		right, err := p.parseProduct()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseProduct() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.acceptSymbol("*/")
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = BinaryOp{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if op, ok := p.acceptSymbol("+-"); ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return UnaryOp{Op: op, Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		value, err := decimal.NewFromString(t.text)
		if err != nil {
			return nil, fmt.Errorf("bad number %q at %d", t.text, t.pos)
		}
		return Literal{Value: value}, nil
	case tokWord:
		// A word followed by '(' is a call, whatever characters it holds;
		// source names like primary_exchange are legal. Anything else must
		// be a pair reference.
		if _, ok := p.acceptSymbol("("); ok {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return Call{Name: strings.ToLower(t.text), Args: args}, nil
		}
		pair, err := ParsePair(t.text)
		if err != nil {
			return nil, fmt.Errorf("bad pair %q at %d", t.text, t.pos)
		}
		return PairRef{Pair: pair}, nil
	case tokSymbol:
		if t.text == "(" {
			expr, err := p.parseSum()
			if err != nil {
				return nil, err
			}
			if _, ok := p.acceptSymbol(")"); !ok {
				return nil, fmt.Errorf("missing ')' at %d", p.peek().pos)
			}
			return expr, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %q at %d", t.text, t.pos)
}

func (p *parser) parseArgs() ([]Expr, error) {
	if _, ok := p.acceptSymbol(")"); ok {
		return nil, nil
	}
	var args []Expr
	for {
		arg, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if _, ok := p.acceptSymbol(","); ok {
			continue
		}
		if _, ok := p.acceptSymbol(")"); ok {
			return args, nil
		}
		return nil, fmt.Errorf("expected ',' or ')' at %d", p.peek().pos)
	}
}
