package kvexec_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/lattice-id/dynaquery/catalog"
	"github.com/lattice-id/dynaquery/expr"
	"github.com/lattice-id/dynaquery/kvexec"
	"github.com/lattice-id/dynaquery/planner"
	"github.com/lattice-id/dynaquery/store/badgerstore"
)

func testCapabilities() *catalog.Capabilities {
	return &catalog.Capabilities{
		TableName: "accounts",
		Indexes: []catalog.IndexDescriptor{
			{PartitionAttribute: "pk", PartitionAliases: []string{"userName", "emails"}, Projection: catalog.ProjectionAll},
			{
				Name:               "userNameInitial-userName-index",
				PartitionAttribute: "userNameInitial",
				SortAttribute:      "userName",
				SortCapability:     catalog.SortRange,
				Projection:         catalog.ProjectionAll,
			},
		},
		CompositeKey: func(attr string, value interface{}) (string, bool) {
			switch attr {
			case "userName":
				return "un#" + value.(string), true
			case "emails":
				return "em#" + value.(string), true
			default:
				return "", false
			}
		},
	}
}

func seedAccounts(t *testing.T, s *badgerstore.Store, caps *catalog.Capabilities) {
	t.Helper()
	items := []map[string]types.AttributeValue{
		{
			"pk":              &types.AttributeValueMemberS{Value: "un#janedoe"},
			"userName":        &types.AttributeValueMemberS{Value: "janedoe"},
			"userNameInitial": &types.AttributeValueMemberS{Value: "j"},
			"emails":          &types.AttributeValueMemberS{Value: "jane.doe@example.com"},
			"status":          &types.AttributeValueMemberS{Value: "active"},
		},
		{
			"pk":              &types.AttributeValueMemberS{Value: "un#johndoe"},
			"userName":        &types.AttributeValueMemberS{Value: "johndoe"},
			"userNameInitial": &types.AttributeValueMemberS{Value: "j"},
			"emails":          &types.AttributeValueMemberS{Value: "john.doe@example.com"},
			"status":          &types.AttributeValueMemberS{Value: "active"},
		},
	}
	for _, item := range items {
		require.NoError(t, s.PutItem(caps, item))
	}
}

func userNames(items []map[string]types.AttributeValue) []string {
	out := make([]string, len(items))
	for i, item := range items {
		s, _ := item["userName"].(*types.AttributeValueMemberS)
		out[i] = s.Value
	}
	return out
}

func TestExecuteDeterministicOrder(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()
	caps := testCapabilities()
	seedAccounts(t, s, caps)

	p := planner.New(caps, planner.Options{})
	e := expr.And(expr.Binary("userNameInitial", expr.Eq, "j"), expr.Binary("userName", expr.Sw, "j"))
	plan, err := p.Plan(e)
	require.NoError(t, err)

	exec := kvexec.New(s, caps, kvexec.DefaultOptions())

	page1, err := exec.Execute(context.Background(), plan, 25, "")
	require.NoError(t, err)
	page2, err := exec.Execute(context.Background(), plan, 25, "")
	require.NoError(t, err)
	require.Equal(t, userNames(page1.Items), userNames(page2.Items))
	require.Equal(t, []string{"janedoe", "johndoe"}, userNames(page1.Items))
}

func TestExecuteDedupesAcrossOverlappingSubQueries(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()
	caps := testCapabilities()
	seedAccounts(t, s, caps)

	p := planner.New(caps, planner.Options{})
	byUserName := expr.Binary("userName", expr.Eq, "johndoe")
	bySecondary := expr.And(expr.Binary("userNameInitial", expr.Eq, "j"), expr.Binary("userName", expr.Sw, "john"))
	plan, err := p.Plan(expr.Or(byUserName, bySecondary))
	require.NoError(t, err)
	require.Len(t, plan.Queries, 2, "the OR should bind to two distinct sub-queries, both matching johndoe")

	exec := kvexec.New(s, caps, kvexec.DefaultOptions())
	page, err := exec.Execute(context.Background(), plan, 25, "")
	require.NoError(t, err)
	require.Equal(t, []string{"johndoe"}, userNames(page.Items))
}

func TestExecutePaginatesAcrossCalls(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()
	caps := testCapabilities()
	seedAccounts(t, s, caps)

	p := planner.New(caps, planner.Options{})
	e := expr.And(expr.Binary("userNameInitial", expr.Eq, "j"), expr.Binary("userName", expr.Sw, "j"))
	plan, err := p.Plan(e)
	require.NoError(t, err)

	exec := kvexec.New(s, caps, kvexec.DefaultOptions())

	page1, err := exec.Execute(context.Background(), plan, 1, "")
	require.NoError(t, err)
	require.Equal(t, []string{"janedoe"}, userNames(page1.Items))
	require.NotEmpty(t, page1.Cursor)

	page2, err := exec.Execute(context.Background(), plan, 1, page1.Cursor)
	require.NoError(t, err)
	require.Equal(t, []string{"johndoe"}, userNames(page2.Items))

	page3, err := exec.Execute(context.Background(), plan, 1, page2.Cursor)
	require.NoError(t, err)
	require.Empty(t, page3.Items)
}

func TestCountSumsMatches(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()
	caps := testCapabilities()
	seedAccounts(t, s, caps)

	p := planner.New(caps, planner.Options{})
	e := expr.And(expr.Binary("userNameInitial", expr.Eq, "j"), expr.Binary("userName", expr.Sw, "j"))
	plan, err := p.Plan(e)
	require.NoError(t, err)

	exec := kvexec.New(s, caps, kvexec.DefaultOptions())
	result, err := exec.Count(context.Background(), plan)
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)
	require.False(t, result.Approximate)
}

func TestCountApproximateFallsBackPastThreshold(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()
	caps := testCapabilities()
	seedAccounts(t, s, caps)

	p := planner.New(caps, planner.Options{})
	byUserName := expr.Binary("userName", expr.Eq, "johndoe")
	bySecondary := expr.And(expr.Binary("userNameInitial", expr.Eq, "j"), expr.Binary("userName", expr.Sw, "jane"))
	plan, err := p.Plan(expr.Or(byUserName, bySecondary))
	require.NoError(t, err)
	require.Len(t, plan.Queries, 2)

	opts := kvexec.DefaultOptions()
	opts.CountExactThreshold = 1
	exec := kvexec.New(s, caps, opts)

	result, err := exec.Count(context.Background(), plan)
	require.NoError(t, err)
	require.True(t, result.Approximate)
	require.Equal(t, 2, result.Count, "both sub-queries must still be summed in full even past the threshold")
}

func TestExecuteFailsFastOnUnsupportedIndex(t *testing.T) {
	s, err := badgerstore.Open("", map[string]bool{})
	require.NoError(t, err)
	defer s.Close()
	caps := testCapabilities()
	seedAccounts(t, s, caps)

	p := planner.New(caps, planner.Options{})
	e := expr.And(expr.Binary("userNameInitial", expr.Eq, "j"), expr.Binary("userName", expr.Sw, "j"))
	plan, err := p.Plan(e)
	require.NoError(t, err)

	exec := kvexec.New(s, caps, kvexec.DefaultOptions())
	_, err = exec.Execute(context.Background(), plan, 25, "")
	require.ErrorIs(t, err, kvexec.ErrUnsupportedOperation)

	_, err = exec.Count(context.Background(), plan)
	require.ErrorIs(t, err, kvexec.ErrUnsupportedOperation)
}

func TestExecuteCancellationPropagates(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()
	caps := testCapabilities()
	seedAccounts(t, s, caps)

	p := planner.New(caps, planner.Options{})
	plan, err := p.Plan(expr.Binary("userName", expr.Eq, "janedoe"))
	require.NoError(t, err)

	exec := kvexec.New(s, caps, kvexec.DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = exec.Execute(ctx, plan, 25, "")
	require.Error(t, err)
	require.ErrorIs(t, err, kvexec.ErrCancelled)
}
