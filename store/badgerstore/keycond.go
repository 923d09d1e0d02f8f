package badgerstore

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// parseKeyCondition parses a reqbuild-rendered keyConditionExpression
// (spec.md §6: `#pk = :pk_1` optionally `AND <sortOp>(#sk, :sk_1)` or
// `AND #sk <op> :sk_1`) back into its partition and optional sort
// condition. Reused by Query to compute the badger scan prefix.
func parseKeyCondition(expr string, names map[string]string, vals map[string]types.AttributeValue) (pkAttr string, pkVal types.AttributeValue, skAttr, skOp string, skVal types.AttributeValue, err error) {
	toks := tokenize(expr)
	p := &parser{toks: toks, names: names, vals: vals}

	nameTok, ok := p.next()
	if !ok || nameTok.kind != "ident" {
		return "", nil, "", "", nil, fmt.Errorf("badgerstore: malformed key condition %q", expr)
	}
	pkAttr = p.resolveName(nameTok.text)
	if opTok, ok := p.next(); !ok || opTok.kind != "op" || opTok.text != "=" {
		return "", nil, "", "", nil, fmt.Errorf("badgerstore: expected '=' in partition condition %q", expr)
	}
	valTok, ok := p.next()
	if !ok {
		return "", nil, "", "", nil, fmt.Errorf("badgerstore: expected partition value in %q", expr)
	}
	pkVal = p.resolveValue(valTok.text)

	andTok, ok := p.peek()
	if !ok {
		return pkAttr, pkVal, "", "", nil, nil
	}
	if andTok.kind != "ident" || andTok.text != "AND" {
		return "", nil, "", "", nil, fmt.Errorf("badgerstore: unexpected trailing tokens in %q", expr)
	}
	p.next()

	t, ok := p.next()
	if !ok {
		return "", nil, "", "", nil, fmt.Errorf("badgerstore: expected sort condition after AND in %q", expr)
	}
	if t.kind == "ident" && t.text == "begins_with" {
		if tok, ok := p.next(); !ok || tok.kind != "(" {
			return "", nil, "", "", nil, fmt.Errorf("badgerstore: expected '(' after begins_with")
		}
		nameTok, ok := p.next()
		if !ok {
			return "", nil, "", "", nil, fmt.Errorf("badgerstore: expected attribute in begins_with")
		}
		skAttr = p.resolveName(nameTok.text)
		if tok, ok := p.next(); !ok || tok.kind != "," {
			return "", nil, "", "", nil, fmt.Errorf("badgerstore: expected ',' in begins_with")
		}
		valTok, ok := p.next()
		if !ok {
			return "", nil, "", "", nil, fmt.Errorf("badgerstore: expected value in begins_with")
		}
		skVal = p.resolveValue(valTok.text)
		if tok, ok := p.next(); !ok || tok.kind != ")" {
			return "", nil, "", "", nil, fmt.Errorf("badgerstore: expected ')' closing begins_with")
		}
		skOp = "begins_with"
		return pkAttr, pkVal, skAttr, skOp, skVal, nil
	}

	if t.kind != "ident" {
		return "", nil, "", "", nil, fmt.Errorf("badgerstore: expected sort attribute in %q", expr)
	}
	skAttr = p.resolveName(t.text)
	opTok, ok := p.next()
	if !ok || opTok.kind != "op" {
		return "", nil, "", "", nil, fmt.Errorf("badgerstore: expected sort operator in %q", expr)
	}
	skOp = opTok.text
	valTok2, ok := p.next()
	if !ok {
		return "", nil, "", "", nil, fmt.Errorf("badgerstore: expected sort value in %q", expr)
	}
	skVal = p.resolveValue(valTok2.text)
	return pkAttr, pkVal, skAttr, skOp, skVal, nil
}
