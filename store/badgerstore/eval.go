package badgerstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// This file evaluates the filter/key-condition expression strings
// reqbuild renders (spec.md §4.E), against one item's attributes. It
// is a small recursive-descent parser over the exact deterministic
// grammar reqbuild produces — AND/OR/NOT, the six comparison
// operators, and begins_with/contains/attribute_exists/
// attribute_not_exists — not a general DynamoDB expression grammar.

type token struct {
	kind string // "ident", "op", "(", ")", ","
	text string
}

func tokenize(s string) []token {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '(':
			toks = append(toks, token{"(", "("})
			i++
		case c == ')':
			toks = append(toks, token{")", ")"})
			i++
		case c == ',':
			toks = append(toks, token{",", ","})
			i++
		case c == '=' || c == '<' || c == '>':
			j := i + 1
			for j < len(s) && (s[j] == '=' || s[j] == '<' || s[j] == '>') {
				j++
			}
			toks = append(toks, token{"op", s[i:j]})
			i = j
		default:
			j := i
			for j < len(s) && s[j] != ' ' && s[j] != '\t' && s[j] != '(' && s[j] != ')' && s[j] != ',' {
				j++
			}
			toks = append(toks, token{"ident", s[i:j]})
			i = j
		}
	}
	return toks
}

type parser struct {
	toks  []token
	pos   int
	names map[string]string
	vals  map[string]types.AttributeValue
	item  map[string]types.AttributeValue
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

// evalFilter evaluates a reqbuild-rendered expression string against
// one item. An empty expression always matches.
func evalFilter(expression string, names map[string]string, vals map[string]types.AttributeValue, item map[string]types.AttributeValue) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}
	p := &parser{toks: tokenize(expression), names: names, vals: vals, item: item}
	result, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if p.pos != len(p.toks) {
		return false, fmt.Errorf("badgerstore: trailing tokens in expression %q", expression)
	}
	return result, nil
}

func (p *parser) parseOr() (bool, error) {
	left, err := p.parseAnd()
	if err != nil {
		return false, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != "ident" || t.text != "OR" {
			return left, nil
		}
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return false, err
		}
		left = left || right
	}
}

func (p *parser) parseAnd() (bool, error) {
	left, err := p.parseUnary()
	if err != nil {
		return false, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != "ident" || t.text != "AND" {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return false, err
		}
		left = left && right
	}
}

func (p *parser) parseUnary() (bool, error) {
	t, ok := p.peek()
	if !ok {
		return false, fmt.Errorf("badgerstore: unexpected end of expression")
	}

	if t.kind == "ident" && t.text == "NOT" {
		p.next()
		if tok, ok := p.next(); !ok || tok.kind != "(" {
			return false, fmt.Errorf("badgerstore: expected '(' after NOT")
		}
		inner, err := p.parseOr()
		if err != nil {
			return false, err
		}
		if tok, ok := p.next(); !ok || tok.kind != ")" {
			return false, fmt.Errorf("badgerstore: expected ')' closing NOT")
		}
		return !inner, nil
	}

	if t.kind == "(" {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return false, err
		}
		if tok, ok := p.next(); !ok || tok.kind != ")" {
			return false, fmt.Errorf("badgerstore: expected closing ')'")
		}
		return inner, nil
	}

	return p.parseAtom()
}

// parseAtom handles the three leaf shapes: `func(#name[, :val])` and
// `#name OP :val`.
func (p *parser) parseAtom() (bool, error) {
	first, ok := p.next()
	if !ok {
		return false, fmt.Errorf("badgerstore: expected leaf expression")
	}

	if first.kind == "ident" && strings.HasPrefix(first.text, "#") {
		return p.parseComparison(first.text)
	}

	if first.kind != "ident" {
		return false, fmt.Errorf("badgerstore: unexpected token %q", first.text)
	}

	// function call: attribute_exists(#x) | begins_with(#x, :v) | contains(#x, :v)
	if tok, ok := p.next(); !ok || tok.kind != "(" {
		return false, fmt.Errorf("badgerstore: expected '(' after %s", first.text)
	}
	nameTok, ok := p.next()
	if !ok || nameTok.kind != "ident" {
		return false, fmt.Errorf("badgerstore: expected attribute name in %s(...)", first.text)
	}
	attr := p.resolveName(nameTok.text)

	switch first.text {
	case "attribute_exists":
		if tok, ok := p.next(); !ok || tok.kind != ")" {
			return false, fmt.Errorf("badgerstore: expected ')' closing attribute_exists")
		}
		_, exists := p.item[attr]
		return exists, nil
	case "attribute_not_exists":
		if tok, ok := p.next(); !ok || tok.kind != ")" {
			return false, fmt.Errorf("badgerstore: expected ')' closing attribute_not_exists")
		}
		_, exists := p.item[attr]
		return !exists, nil
	case "begins_with", "contains":
		if tok, ok := p.next(); !ok || tok.kind != "," {
			return false, fmt.Errorf("badgerstore: expected ',' in %s(...)", first.text)
		}
		valTok, ok := p.next()
		if !ok {
			return false, fmt.Errorf("badgerstore: expected value in %s(...)", first.text)
		}
		val := p.resolveValue(valTok.text)
		if tok, ok := p.next(); !ok || tok.kind != ")" {
			return false, fmt.Errorf("badgerstore: expected ')' closing %s", first.text)
		}
		itemVal, ok := asString(p.item[attr])
		if !ok {
			return false, nil
		}
		needle, _ := asString(val)
		if first.text == "begins_with" {
			return strings.HasPrefix(itemVal, needle), nil
		}
		return strings.Contains(itemVal, needle), nil
	default:
		return false, fmt.Errorf("badgerstore: unknown function %q", first.text)
	}
}

func (p *parser) parseComparison(nameToken string) (bool, error) {
	attr := p.resolveName(nameToken)
	opTok, ok := p.next()
	if !ok || opTok.kind != "op" {
		return false, fmt.Errorf("badgerstore: expected comparison operator after %s", nameToken)
	}
	valTok, ok := p.next()
	if !ok {
		return false, fmt.Errorf("badgerstore: expected value after operator")
	}
	rhs := p.resolveValue(valTok.text)
	lhs, present := p.item[attr]

	cmp, comparable := compareAttributeValues(lhs, rhs)
	switch opTok.text {
	case "=":
		return present && comparable && cmp == 0, nil
	case "<>":
		return !(present && comparable && cmp == 0), nil
	case "<":
		return present && comparable && cmp < 0, nil
	case "<=":
		return present && comparable && cmp <= 0, nil
	case ">":
		return present && comparable && cmp > 0, nil
	case ">=":
		return present && comparable && cmp >= 0, nil
	default:
		return false, fmt.Errorf("badgerstore: unknown operator %q", opTok.text)
	}
}

func (p *parser) resolveName(placeholder string) string {
	if name, ok := p.names[placeholder]; ok {
		return name
	}
	return strings.TrimPrefix(placeholder, "#")
}

func (p *parser) resolveValue(placeholder string) types.AttributeValue {
	return p.vals[placeholder]
}

func asString(v types.AttributeValue) (string, bool) {
	if s, ok := v.(*types.AttributeValueMemberS); ok {
		return s.Value, true
	}
	return "", false
}

// compareAttributeValues orders two AttributeValues of the same
// underlying kind (string lexical, number numeric). The second return
// is false when the values aren't of a comparable, same kind.
func compareAttributeValues(a, b types.AttributeValue) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		if !ok {
			return 0, false
		}
		return strings.Compare(av.Value, bv.Value), true
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return 0, false
		}
		af, errA := strconv.ParseFloat(av.Value, 64)
		bf, errB := strconv.ParseFloat(bv.Value, 64)
		if errA != nil || errB != nil {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		if !ok {
			return 0, false
		}
		if av.Value == bv.Value {
			return 0, true
		}
		return 0, false
	default:
		return 0, false
	}
}
