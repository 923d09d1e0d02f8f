// Package expr implements the algebraic expression model for attribute
// filters: binary comparisons over a named attribute plus the boolean
// connectives And/Or/Not.
//
// Adapted from the teacher's datalog/query predicate/pattern model
// (datalog/query/predicate.go, datalog/query/types.go): the same
// "comparison op + term" shape, but specialized to SCIM-style filters
// instead of Datalog tuple patterns, and immutable so structural
// equality and hashing (needed for canonical DNF, see package dnf) are
// well-defined.
package expr

import (
	"fmt"
	"sort"
	"strings"
)

// Op is a comparison operator usable in a Binary expression.
type Op string

const (
	Eq Op = "eq" // equal
	Ne Op = "ne" // not equal
	Lt Op = "lt" // less than
	Le Op = "le" // less than or equal
	Gt Op = "gt" // greater than
	Ge Op = "ge" // greater than or equal
	Sw Op = "sw" // starts-with
	Co Op = "co" // contains
	Pr Op = "pr" // present (no value)
)

// complement maps an operator to its logical negation, used by
// negation pushdown (package dnf) for the operators the store can
// represent directly without a wrapping NOT.
var complement = map[Op]Op{
	Eq: Ne,
	Ne: Eq,
	Lt: Ge,
	Ge: Lt,
	Le: Gt,
	Gt: Le,
}

// Complement returns the operator's logical negation and true, or
// ("", false) if the operator has no direct complement (Sw, Co, Pr —
// these remain as a negated unary mark on a leaf instead, per spec.md
// §4.A).
func (o Op) Complement() (Op, bool) {
	c, ok := complement[o]
	return c, ok
}

// String implements fmt.Stringer.
func (o Op) String() string { return string(o) }

// IsComparison reports whether o is one of the totally-ordered
// comparison operators (Lt/Le/Gt/Ge/Eq/Ne), as opposed to the
// string-only (Sw/Co) or value-less (Pr) operators.
func (o Op) IsComparison() bool {
	switch o {
	case Eq, Ne, Lt, Le, Gt, Ge:
		return true
	default:
		return false
	}
}

// Expr is the sum type for filter expressions. Implementations are
// BinaryExpr, AndExpr, OrExpr, NotExpr. The set is closed: callers
// switch on the concrete type rather than growing an open interface
// hierarchy.
type Expr interface {
	// Attributes returns the set of attribute names referenced by the
	// expression, deduplicated.
	Attributes() map[string]struct{}
	// String renders the expression for diagnostics and golden tests.
	String() string
	isExpr()
}

// BinaryExpr is a single comparison: Attr Op Value. Pr carries no
// value; Sw/Co only accept string values; the other operators accept
// any totally ordered primitive. Negated is set when this leaf
// represents Not(Sw)/Not(Co)/Not(Pr) — operators with no direct
// complement (see Op.Complement) — and renders as the store's
// "attribute_not_exists" / "NOT begins_with(...)" construct.
type BinaryExpr struct {
	Attr     string
	Operator Op
	Value    interface{}
	Negated  bool
}

func (BinaryExpr) isExpr() {}

// Attributes implements Expr.
func (b BinaryExpr) Attributes() map[string]struct{} {
	return map[string]struct{}{b.Attr: {}}
}

func (b BinaryExpr) String() string {
	if b.Operator == Pr {
		if b.Negated {
			return fmt.Sprintf("not(%s pr)", b.Attr)
		}
		return fmt.Sprintf("%s pr", b.Attr)
	}
	prefix := ""
	if b.Negated {
		prefix = "not "
	}
	return fmt.Sprintf("%s%s %s %v", prefix, b.Attr, b.Operator, b.Value)
}

// key returns a canonical, order-independent identity for this leaf,
// used by dnf's set-based term/product deduplication.
func (b BinaryExpr) key() string {
	return fmt.Sprintf("%s\x00%s\x00%v\x00%t", b.Attr, b.Operator, b.Value, b.Negated)
}

// Equal reports structural equality between two binary terms.
func (b BinaryExpr) Equal(o BinaryExpr) bool {
	return b.key() == o.key()
}

// AndExpr is the conjunction of two expressions.
type AndExpr struct {
	Left, Right Expr
}

func (AndExpr) isExpr() {}

func (a AndExpr) Attributes() map[string]struct{} {
	return union(a.Left.Attributes(), a.Right.Attributes())
}

func (a AndExpr) String() string {
	return fmt.Sprintf("(%s and %s)", a.Left, a.Right)
}

// OrExpr is the disjunction of two expressions.
type OrExpr struct {
	Left, Right Expr
}

func (OrExpr) isExpr() {}

func (o OrExpr) Attributes() map[string]struct{} {
	return union(o.Left.Attributes(), o.Right.Attributes())
}

func (o OrExpr) String() string {
	return fmt.Sprintf("(%s or %s)", o.Left, o.Right)
}

// NotExpr is the negation of an expression.
type NotExpr struct {
	Inner Expr
}

func (NotExpr) isExpr() {}

func (n NotExpr) Attributes() map[string]struct{} {
	return n.Inner.Attributes()
}

func (n NotExpr) String() string {
	return fmt.Sprintf("not(%s)", n.Inner)
}

// And builds a conjunction, constant-folding nils.
func And(a, b Expr) Expr {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return AndExpr{Left: a, Right: b}
}

// Or builds a disjunction.
func Or(a, b Expr) Expr {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return OrExpr{Left: a, Right: b}
}

// Not builds a negation.
func Not(e Expr) Expr {
	return NotExpr{Inner: e}
}

// Binary builds a comparison leaf. It panics on malformed invocations
// (Pr with a value, Sw/Co with a non-string value) since these are
// constructor-time programmer errors, not runtime data errors.
func Binary(attr string, op Op, value interface{}) Expr {
	switch op {
	case Pr:
		if value != nil {
			panic(fmt.Sprintf("expr: Pr takes no value, got %v", value))
		}
	case Sw, Co:
		if _, ok := value.(string); !ok {
			panic(fmt.Sprintf("expr: %s requires a string value, got %T", op, value))
		}
	}
	return BinaryExpr{Attr: attr, Operator: op, Value: value}
}

func union(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

// SortedAttributes returns Attributes() as a deterministically ordered
// slice, convenient for diagnostics and golden-output tests.
func SortedAttributes(e Expr) []string {
	attrs := e.Attributes()
	out := make([]string, 0, len(attrs))
	for a := range attrs {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Describe renders a one-line, indentation-free description of an
// expression tree; used by diagnostics and the CLI.
func Describe(e Expr) string {
	var sb strings.Builder
	sb.WriteString(e.String())
	return sb.String()
}
