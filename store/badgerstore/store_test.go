package badgerstore_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/lattice-id/dynaquery/catalog"
	"github.com/lattice-id/dynaquery/expr"
	"github.com/lattice-id/dynaquery/planner"
	"github.com/lattice-id/dynaquery/reqbuild"
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

func seed(t *testing.T, s *badgerstore.Store, caps *catalog.Capabilities) {
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

func TestQueryByPrimaryKey(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()

	caps := testCapabilities()
	seed(t, s, caps)

	p := planner.New(caps, planner.Options{})
	plan, err := p.Plan(expr.Binary("userName", expr.Eq, "janedoe"))
	require.NoError(t, err)

	reqs := reqbuild.Queries(plan, caps, reqbuild.Options{})
	require.Len(t, reqs, 1)

	result, err := s.Query(context.Background(), reqs[0].Query)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	got, _ := result.Items[0]["userName"].(*types.AttributeValueMemberS)
	require.Equal(t, "janedoe", got.Value)
}

func TestQueryStartsWithUsesSecondaryIndex(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()

	caps := testCapabilities()
	seed(t, s, caps)

	p := planner.New(caps, planner.Options{})
	e := expr.And(expr.Binary("userNameInitial", expr.Eq, "j"), expr.Binary("userName", expr.Sw, "john"))
	plan, err := p.Plan(e)
	require.NoError(t, err)

	reqs := reqbuild.Queries(plan, caps, reqbuild.Options{})
	require.Len(t, reqs, 1)

	result, err := s.Query(context.Background(), reqs[0].Query)
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	got, _ := result.Items[0]["userName"].(*types.AttributeValueMemberS)
	require.Equal(t, "johndoe", got.Value)
}

func TestQueryAppliesResidualFilter(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()

	caps := testCapabilities()
	seed(t, s, caps)

	p := planner.New(caps, planner.Options{})
	e := expr.And(expr.Binary("userNameInitial", expr.Eq, "j"), expr.Binary("userName", expr.Sw, "j"))
	e = expr.And(e, expr.Binary("status", expr.Eq, "inactive"))
	plan, err := p.Plan(e)
	require.NoError(t, err)

	reqs := reqbuild.Queries(plan, caps, reqbuild.Options{})
	result, err := s.Query(context.Background(), reqs[0].Query)
	require.NoError(t, err)
	require.Empty(t, result.Items)
}

func TestCountSelectOmitsItems(t *testing.T) {
	s, err := badgerstore.Open("", nil)
	require.NoError(t, err)
	defer s.Close()

	caps := testCapabilities()
	seed(t, s, caps)

	p := planner.New(caps, planner.Options{})
	e := expr.And(expr.Binary("userNameInitial", expr.Eq, "j"), expr.Binary("userName", expr.Sw, "j"))
	plan, err := p.Plan(e)
	require.NoError(t, err)

	reqs := reqbuild.Queries(plan, caps, reqbuild.Options{Count: true})
	result, err := s.Query(context.Background(), reqs[0].Query)
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)
	require.Empty(t, result.Items)
}
