package planner_test

import (
	"strings"
	"testing"

	"github.com/lattice-id/dynaquery/catalog"
	"github.com/lattice-id/dynaquery/expr"
	"github.com/lattice-id/dynaquery/planner"
	"github.com/stretchr/testify/require"
)

// accountsCapabilities grounds spec.md §6's composite accounts scheme:
// a single physical partition key `pk` tagged un#/em#/ph#/id#, plus a
// userNameInitial-userName-index for starts-with queries.
func accountsCapabilities(allowScans bool) *catalog.Capabilities {
	return &catalog.Capabilities{
		TableName: "accounts",
		Indexes: []catalog.IndexDescriptor{
			{
				PartitionAttribute: "pk",
				PartitionAliases:   []string{"userName", "email", "emails", "phone", "accountId"},
				Projection:         catalog.ProjectionAll,
			},
			{
				Name:               "userNameInitial-userName-index",
				PartitionAttribute: "userNameInitial",
				SortAttribute:      "userName",
				SortCapability:     catalog.SortRange,
				Projection:         catalog.ProjectionAll,
			},
		},
		AllowTableScans: allowScans,
		CompositeKey: func(attr string, value interface{}) (string, bool) {
			switch attr {
			case "userName":
				return "un#" + value.(string), true
			case "email", "emails":
				return "em#" + value.(string), true
			case "phone":
				return "ph#" + value.(string), true
			case "accountId":
				return "id#" + value.(string), true
			case "pk":
				return value.(string), true
			case "userNameInitial":
				return strings.ToLower(value.(string)), true
			default:
				return "", false
			}
		},
	}
}

func TestScenario1_AndOfUserNameAndEmail(t *testing.T) {
	caps := accountsCapabilities(false)
	p := planner.New(caps, planner.Options{})

	e := expr.And(
		expr.Binary("userName", expr.Eq, "janedoe"),
		expr.Binary("emails", expr.Eq, "jane.doe@example.com"),
	)
	plan, err := p.Plan(e)
	require.NoError(t, err)
	require.False(t, plan.IsUsingScan())
	require.Len(t, plan.Queries, 1)

	q := plan.SortedQueries()[0]
	require.Equal(t, "", q.Key.Index)
	require.Equal(t, "un#janedoe", q.Key.PartitionValue)
	require.False(t, q.Residual.Empty())
	terms := q.Residual.Disjuncts[0].Terms()
	require.Len(t, terms, 1)
	require.Equal(t, "emails", terms[0].Attr)
	require.Equal(t, "jane.doe@example.com", terms[0].Value)
}

func TestScenario2_OrOfUserNameAndEmail(t *testing.T) {
	caps := accountsCapabilities(false)
	p := planner.New(caps, planner.Options{})

	e := expr.Or(
		expr.Binary("userName", expr.Eq, "janedoe"),
		expr.Binary("emails", expr.Eq, "jane.doe@example.com"),
	)
	plan, err := p.Plan(e)
	require.NoError(t, err)
	require.Len(t, plan.Queries, 2)

	seen := map[interface{}]bool{}
	for _, q := range plan.SortedQueries() {
		require.Equal(t, "", q.Key.Index)
		require.True(t, q.Residual.Empty())
		seen[q.Key.PartitionValue] = true
	}
	require.True(t, seen["un#janedoe"])
	require.True(t, seen["em#jane.doe@example.com"])
}

func TestScenario3_StartsWithUserName(t *testing.T) {
	caps := accountsCapabilities(false)
	p := planner.New(caps, planner.Options{})

	e := expr.Binary("userName", expr.Sw, "test")
	// The userNameInitial value would, in the real façade, be derived
	// from the userName prefix by the caller before reaching the
	// planner (spec.md §6); here we plan the already-decomposed form.
	e = expr.And(expr.Binary("userNameInitial", expr.Eq, "t"), e)

	plan, err := p.Plan(e)
	require.NoError(t, err)
	require.Len(t, plan.Queries, 1)

	q := plan.SortedQueries()[0]
	require.Equal(t, "userNameInitial-userName-index", q.Key.Index)
	require.Equal(t, "t", q.Key.PartitionValue)
	require.True(t, q.Key.HasSort)
	require.Equal(t, expr.Sw, q.Key.SortOperator)
	require.Equal(t, "test", q.Key.SortValue)
	require.True(t, q.Residual.Empty())
}

func TestScenario4_ComplexDNF(t *testing.T) {
	caps := accountsCapabilities(false)
	p := planner.New(caps, planner.Options{})

	a := expr.Binary("emails", expr.Eq, "alice@gmail.com")
	b := expr.Binary("userName", expr.Eq, "alice")
	c := expr.Binary("status", expr.Eq, "expired")
	d := expr.Binary("status", expr.Eq, "revoked")

	e := expr.And(expr.Or(a, b), expr.Not(expr.Or(c, d)))
	plan, err := p.Plan(e)
	require.NoError(t, err)
	require.Len(t, plan.Queries, 2)

	for _, q := range plan.SortedQueries() {
		require.Equal(t, "", q.Key.Index)
		require.False(t, q.Residual.Empty())
		terms := q.Residual.Disjuncts[0].Terms()
		require.Len(t, terms, 2)
		for _, term := range terms {
			require.Equal(t, "status", term.Attr)
			require.Equal(t, expr.Ne, term.Operator)
		}
	}
}

func TestScenario5_UnindexableRejected(t *testing.T) {
	caps := accountsCapabilities(false)
	p := planner.New(caps, planner.Options{})

	e := expr.Binary("firstName", expr.Eq, "Jane")
	_, err := p.Plan(e)
	require.Error(t, err)

	var rejected *planner.RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, "firstName", rejected.Attribute)
}

func TestScenario5b_ScanAllowedInstead(t *testing.T) {
	caps := accountsCapabilities(true)
	p := planner.New(caps, planner.Options{})

	e := expr.Binary("firstName", expr.Eq, "Jane")
	plan, err := p.Plan(e)
	require.NoError(t, err)
	require.True(t, plan.IsUsingScan())
}

func TestMinimality_MergesSharedIndexQueryKey(t *testing.T) {
	caps := accountsCapabilities(false)
	p := planner.New(caps, planner.Options{})

	e := expr.Or(
		expr.And(expr.Binary("userName", expr.Eq, "janedoe"), expr.Binary("status", expr.Eq, "active")),
		expr.And(expr.Binary("userName", expr.Eq, "janedoe"), expr.Binary("status", expr.Eq, "pending")),
	)
	plan, err := p.Plan(e)
	require.NoError(t, err)
	require.Len(t, plan.Queries, 1, "two products sharing an IndexQueryKey must be merged")

	q := plan.SortedQueries()[0]
	require.Len(t, q.Residual.Disjuncts, 2)
}

func TestEmptyDNFYieldsEmptyPlan(t *testing.T) {
	caps := accountsCapabilities(false)
	p := planner.New(caps, planner.Options{})

	e := expr.And(expr.Binary("status", expr.Eq, "a"), expr.Binary("status", expr.Eq, "b"))
	plan, err := p.Plan(e)
	require.NoError(t, err)
	require.False(t, plan.IsUsingScan())
	require.Empty(t, plan.Queries)
}

func TestCachePreventsReplanning(t *testing.T) {
	caps := accountsCapabilities(false)
	cache := planner.NewCache(10, 0)
	p := planner.New(caps, planner.Options{Cache: cache})

	e := expr.Binary("userName", expr.Eq, "janedoe")
	_, err := p.Plan(e)
	require.NoError(t, err)
	_, err = p.Plan(e)
	require.NoError(t, err)

	hits, misses := cache.Stats()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(1), misses)
}
