// Package dnf normalizes an expr.Expr into disjunctive normal form: a
// set of products, each product a set of binary terms, with negation
// pushed to the leaves. This is the teacher's phase-planning approach
// (datalog/planner/phase_reordering.go, clause_phasing.go) turned
// inside out: instead of reordering clauses for join efficiency, we
// rewrite the boolean structure itself into a canonical, set-based
// form so the planner (package planner) can reason about it term by
// term, exactly as spec.md §4.B prescribes.
package dnf

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lattice-id/dynaquery/expr"
)

// DefaultMaxProducts bounds the cardinality of a normalized DNF before
// Normalize gives up with ErrTooComplex (spec.md §4.B).
const DefaultMaxProducts = 64

// ErrTooComplex is returned (wrapped) when the expression's DNF would
// exceed the configured product-cardinality limit.
var ErrTooComplex = fmt.Errorf("expression too complex")

// Term is a single normalized leaf: an (attribute, operator, value)
// triple, possibly negated. It mirrors expr.BinaryExpr but is kept as
// a distinct type. A Product stores its terms under their key() string
// rather than using a Term itself as a map key, so Value is never
// required to be comparable.
type Term struct {
	Attr     string
	Operator expr.Op
	Value    interface{}
	Negated  bool
}

func (t Term) key() string {
	return fmt.Sprintf("%s\x00%s\x00%v\x00%t", t.Attr, t.Operator, t.Value, t.Negated)
}

func (t Term) String() string {
	b := expr.BinaryExpr{Attr: t.Attr, Operator: t.Operator, Value: t.Value, Negated: t.Negated}
	return b.String()
}

// Product is a conjunction of terms, stored as a set (deduplicated by
// Term.key()). The DNF type stores products as a set too, so two
// expressions that are logically identical up to commutativity,
// associativity, and idempotence of And/Or normalize to equal DNFs
// (spec.md §8 "Canonical equality").
type Product map[string]Term

// Terms returns the product's terms in a deterministic (sorted) order,
// for diagnostics and golden tests.
func (p Product) Terms() []Term {
	out := make([]Term, 0, len(p))
	for _, t := range p {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

func (p Product) String() string {
	terms := p.Terms()
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, " and ")
}

// key returns a canonical identity for the whole product, used for
// deduplicating products within a DNF.
func (p Product) key() string {
	terms := p.Terms()
	keys := make([]string, len(terms))
	for i, t := range terms {
		keys[i] = t.key()
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x01")
}

func (p Product) clone() Product {
	out := make(Product, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func (p Product) add(t Term) Product {
	out := p.clone()
	out[t.key()] = t
	return out
}

func (p Product) merge(o Product) Product {
	out := p.clone()
	for k, v := range o {
		out[k] = v
	}
	return out
}

// contradictory reports whether the product can never be satisfied:
// two Eq terms on the same attribute with different values, or an Eq
// and a Ne term on the same attribute with the same value (spec.md
// §4.B step 4, best-effort pruning).
func (p Product) contradictory() bool {
	eqByAttr := make(map[string]interface{})
	neByAttr := make(map[string][]interface{})
	for _, t := range p {
		switch t.Operator {
		case expr.Eq:
			if existing, ok := eqByAttr[t.Attr]; ok && !valueEqual(existing, t.Value) {
				return true
			}
			eqByAttr[t.Attr] = t.Value
		case expr.Ne:
			neByAttr[t.Attr] = append(neByAttr[t.Attr], t.Value)
		}
	}
	for attr, eqVal := range eqByAttr {
		for _, neVal := range neByAttr[attr] {
			if valueEqual(eqVal, neVal) {
				return true
			}
		}
	}
	return false
}

func valueEqual(a, b interface{}) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// DNF is a disjunction of products, stored as a set keyed by
// Product.key() so that duplicate products collapse (spec.md §3
// invariant).
type DNF map[string]Product

// Products returns the DNF's products in a deterministic order.
func (d DNF) Products() []Product {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Product, len(keys))
	for i, k := range keys {
		out[i] = d[k]
	}
	return out
}

func (d DNF) String() string {
	prods := d.Products()
	parts := make([]string, len(prods))
	for i, p := range prods {
		parts[i] = "(" + p.String() + ")"
	}
	if len(parts) == 0 {
		return "<false>"
	}
	return strings.Join(parts, " or ")
}

// Equal reports whether two DNFs are canonically identical — the
// "canonical equality" property from spec.md §8.
func (d DNF) Equal(o DNF) bool {
	if len(d) != len(o) {
		return false
	}
	for k := range d {
		if _, ok := o[k]; !ok {
			return false
		}
	}
	return true
}

func singleton(p Product) DNF {
	return DNF{p.key(): p}
}

func unionDNF(a, b DNF) DNF {
	out := make(DNF, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// crossDNF distributes And over Or: every product in a combined with
// every product in b.
func crossDNF(a, b DNF) DNF {
	out := make(DNF, len(a)*len(b))
	for _, pa := range a {
		for _, pb := range b {
			merged := pa.merge(pb)
			out[merged.key()] = merged
		}
	}
	return out
}

// Normalize rewrites e into disjunctive normal form: negation pushed
// to leaves, And distributed over Or, terms and products deduplicated
// via set semantics, and contradictory products pruned. It returns
// ErrTooComplex if the resulting DNF would exceed maxProducts.
//
// Normalize never fails for any other reason: every expression
// normalizes (spec.md §4.B "Failure: none").
func Normalize(e expr.Expr, maxProducts int) (DNF, error) {
	if maxProducts <= 0 {
		maxProducts = DefaultMaxProducts
	}
	pushed := pushNegations(e, false)
	d := toDNF(pushed)
	if len(d) > maxProducts {
		return nil, fmt.Errorf("%w: %d products exceeds limit %d", ErrTooComplex, len(d), maxProducts)
	}
	return pruneContradictions(d), nil
}

// pushNegations walks the tree applying De Morgan's laws and
// complementing binary operators, so that by the time toDNF runs no
// NotExpr node remains: a negated Sw/Co/Pr leaf (which has no direct
// complement) comes back as a BinaryExpr with Negated set — spec.md
// §4.A/§4.B step 1.
func pushNegations(e expr.Expr, negate bool) expr.Expr {
	switch v := e.(type) {
	case expr.BinaryExpr:
		if !negate {
			return v
		}
		if c, ok := v.Operator.Complement(); ok {
			v.Operator = c
			return v
		}
		v.Negated = !v.Negated
		return v
	case expr.AndExpr:
		l := pushNegations(v.Left, negate)
		r := pushNegations(v.Right, negate)
		if negate {
			return expr.Or(l, r)
		}
		return expr.And(l, r)
	case expr.OrExpr:
		l := pushNegations(v.Left, negate)
		r := pushNegations(v.Right, negate)
		if negate {
			return expr.And(l, r)
		}
		return expr.Or(l, r)
	case expr.NotExpr:
		// Double negation collapses (spec.md §4.B step 1).
		return pushNegations(v.Inner, !negate)
	default:
		panic(fmt.Sprintf("dnf: unknown expr type %T", e))
	}
}

// toDNF distributes And over Or on an expression already free of
// non-leaf negation (spec.md §4.B step 2).
func toDNF(e expr.Expr) DNF {
	switch v := e.(type) {
	case expr.BinaryExpr:
		t := Term{Attr: v.Attr, Operator: v.Operator, Value: v.Value, Negated: v.Negated}
		return singleton(Product{}.add(t))
	case expr.AndExpr:
		return crossDNF(toDNF(v.Left), toDNF(v.Right))
	case expr.OrExpr:
		return unionDNF(toDNF(v.Left), toDNF(v.Right))
	case expr.NotExpr:
		panic("dnf: toDNF called with unpushed negation")
	default:
		panic(fmt.Sprintf("dnf: unknown expr type %T", e))
	}
}

func pruneContradictions(d DNF) DNF {
	out := make(DNF, len(d))
	for k, p := range d {
		if p.contradictory() {
			continue
		}
		out[k] = p
	}
	return out
}
