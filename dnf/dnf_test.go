package dnf_test

import (
	"errors"
	"testing"

	"github.com/lattice-id/dynaquery/dnf"
	"github.com/lattice-id/dynaquery/expr"
	"github.com/stretchr/testify/require"
)

func normalize(t *testing.T, e expr.Expr) dnf.DNF {
	t.Helper()
	d, err := dnf.Normalize(e, 0)
	require.NoError(t, err)
	return d
}

func TestNormalizeIsDeterministic(t *testing.T) {
	e := expr.And(
		expr.Binary("userName", expr.Eq, "janedoe"),
		expr.Binary("email", expr.Eq, "jane@example.com"),
	)
	d1 := normalize(t, e)
	// Re-normalizing the same expression (not the DNF) must agree.
	d2 := normalize(t, e)
	require.True(t, d1.Equal(d2))
}

func TestDoubleNegation(t *testing.T) {
	e := expr.Binary("status", expr.Eq, "active")
	a := normalize(t, e)
	b := normalize(t, expr.Not(expr.Not(e)))
	require.True(t, a.Equal(b))
}

func TestDeMorgan(t *testing.T) {
	a := expr.Binary("status", expr.Eq, "expired")
	b := expr.Binary("status", expr.Eq, "revoked")

	left := normalize(t, expr.Not(expr.And(a, b)))
	right := normalize(t, expr.Or(expr.Not(a), expr.Not(b)))
	require.True(t, left.Equal(right))
}

func TestDistributivity(t *testing.T) {
	a := expr.Binary("userName", expr.Eq, "janedoe")
	b := expr.Binary("status", expr.Eq, "active")
	c := expr.Binary("status", expr.Eq, "pending")

	left := normalize(t, expr.And(a, expr.Or(b, c)))
	right := normalize(t, expr.Or(expr.And(a, b), expr.And(a, c)))
	require.True(t, left.Equal(right))
}

func TestCommutativityAssociativityIdempotenceCanonicalize(t *testing.T) {
	a := expr.Binary("x", expr.Eq, 1)
	b := expr.Binary("y", expr.Eq, 2)

	ab := normalize(t, expr.And(a, b))
	ba := normalize(t, expr.And(b, a))
	require.True(t, ab.Equal(ba))

	dup := normalize(t, expr.And(a, expr.And(a, b)))
	require.True(t, ab.Equal(dup))
}

func TestContradictionPruning(t *testing.T) {
	e := expr.And(
		expr.Binary("status", expr.Eq, "active"),
		expr.Binary("status", expr.Eq, "expired"),
	)
	d := normalize(t, e)
	require.Empty(t, d)

	e2 := expr.And(
		expr.Binary("status", expr.Eq, "active"),
		expr.Binary("status", expr.Ne, "active"),
	)
	d2 := normalize(t, e2)
	require.Empty(t, d2)
}

func TestComplexDNFScenario(t *testing.T) {
	// (A||B) && !(C||D) from spec.md §8 scenario 4.
	a := expr.Binary("email", expr.Eq, "alice@gmail.com")
	b := expr.Binary("userName", expr.Eq, "alice")
	c := expr.Binary("status", expr.Eq, "expired")
	d := expr.Binary("status", expr.Eq, "revoked")

	e := expr.And(expr.Or(a, b), expr.Not(expr.Or(c, d)))
	got := normalize(t, e)
	require.Len(t, got, 2)

	for _, p := range got.Products() {
		terms := p.Terms()
		require.Len(t, terms, 3)
		var hasAOrB, hasNeC, hasNeD bool
		for _, term := range terms {
			switch {
			case term.Attr == "email" && term.Operator == expr.Eq:
				hasAOrB = true
			case term.Attr == "userName" && term.Operator == expr.Eq:
				hasAOrB = true
			case term.Attr == "status" && term.Operator == expr.Ne && term.Value == "expired":
				hasNeC = true
			case term.Attr == "status" && term.Operator == expr.Ne && term.Value == "revoked":
				hasNeD = true
			}
		}
		require.True(t, hasAOrB)
		require.True(t, hasNeC)
		require.True(t, hasNeD)
	}
}

func TestTooComplexRejected(t *testing.T) {
	e := expr.Binary("a", expr.Eq, 1)
	for i := 0; i < 10; i++ {
		e = expr.Or(e, expr.Binary("a", expr.Eq, i+2))
	}
	_, err := dnf.Normalize(e, 4)
	require.Error(t, err)
	require.True(t, errors.Is(err, dnf.ErrTooComplex))
}

func TestPrAndStartsWithSurviveNegation(t *testing.T) {
	e := expr.Not(expr.Binary("nickName", expr.Pr, nil))
	d := normalize(t, e)
	require.Len(t, d, 1)
	terms := d.Products()[0].Terms()
	require.Len(t, terms, 1)
	require.Equal(t, expr.Pr, terms[0].Operator)
	require.True(t, terms[0].Negated)

	sw := normalize(t, expr.Not(expr.Binary("userName", expr.Sw, "ja")))
	require.Len(t, sw, 1)
	swTerms := sw.Products()[0].Terms()
	require.Len(t, swTerms, 1)
	require.Equal(t, expr.Sw, swTerms[0].Operator)
	require.True(t, swTerms[0].Negated)
}
