package reqbuild_test

import (
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/require"

	"github.com/lattice-id/dynaquery/catalog"
	"github.com/lattice-id/dynaquery/expr"
	"github.com/lattice-id/dynaquery/planner"
	"github.com/lattice-id/dynaquery/reqbuild"
)

func accountsCapabilities() *catalog.Capabilities {
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
		CompositeKey: func(attr string, value interface{}) (string, bool) {
			switch attr {
			case "userName":
				return "un#" + value.(string), true
			case "email", "emails":
				return "em#" + value.(string), true
			default:
				return "", false
			}
		},
	}
}

func TestScenario1_KeyAndFilterExpression(t *testing.T) {
	caps := accountsCapabilities()
	p := planner.New(caps, planner.Options{})

	e := expr.And(
		expr.Binary("userName", expr.Eq, "janedoe"),
		expr.Binary("emails", expr.Eq, "jane.doe@example.com"),
	)
	plan, err := p.Plan(e)
	require.NoError(t, err)

	reqs := reqbuild.Queries(plan, caps, reqbuild.Options{})
	require.Len(t, reqs, 1)
	q := reqs[0].Query
	require.Nil(t, q.IndexName)
	require.Equal(t, "#pk = :pk_1", *q.KeyConditionExpression)
	require.Equal(t, "#emails = :emails_1", *q.FilterExpression)
	require.Equal(t, "pk", q.ExpressionAttributeNames["#pk"])
	require.Equal(t, &types.AttributeValueMemberS{Value: "un#janedoe"}, q.ExpressionAttributeValues[":pk_1"])
	require.Equal(t, &types.AttributeValueMemberS{Value: "jane.doe@example.com"}, q.ExpressionAttributeValues[":emails_1"])
}

func TestScenario3_StartsWithRendersBeginsWith(t *testing.T) {
	caps := accountsCapabilities()
	p := planner.New(caps, planner.Options{})

	e := expr.And(
		expr.Binary("userNameInitial", expr.Eq, "t"),
		expr.Binary("userName", expr.Sw, "test"),
	)
	plan, err := p.Plan(e)
	require.NoError(t, err)

	reqs := reqbuild.Queries(plan, caps, reqbuild.Options{PageSize: 25})
	require.Len(t, reqs, 1)
	q := reqs[0].Query
	require.Equal(t, "userNameInitial-userName-index", *q.IndexName)
	require.Equal(t, "#userNameInitial = :userNameInitial_1 AND begins_with(#userName, :userName_1)", *q.KeyConditionExpression)
	require.Equal(t, int32(25), *q.Limit)
}

func TestCountModeSetsSelect(t *testing.T) {
	caps := accountsCapabilities()
	p := planner.New(caps, planner.Options{})
	e := expr.Binary("userName", expr.Eq, "janedoe")
	plan, err := p.Plan(e)
	require.NoError(t, err)

	reqs := reqbuild.Queries(plan, caps, reqbuild.Options{Count: true})
	require.Equal(t, types.SelectCount, reqs[0].Query.Select)
}

func TestTableNamePrefix(t *testing.T) {
	caps := accountsCapabilities()
	p := planner.New(caps, planner.Options{})
	e := expr.Binary("userName", expr.Eq, "janedoe")
	plan, err := p.Plan(e)
	require.NoError(t, err)

	reqs := reqbuild.Queries(plan, caps, reqbuild.Options{TableNamePrefix: "staging-"})
	require.True(t, strings.HasPrefix(*reqs[0].Query.TableName, "staging-"))
}

func TestScanRendersFilterFromOriginalExpression(t *testing.T) {
	caps := accountsCapabilities()
	caps.AllowTableScans = true
	p := planner.New(caps, planner.Options{})

	e := expr.Binary("firstName", expr.Eq, "Jane")
	plan, err := p.Plan(e)
	require.NoError(t, err)
	require.True(t, plan.IsUsingScan())

	req := reqbuild.Scan(plan.Scan, caps.TableName, reqbuild.Options{})
	require.Equal(t, "#firstName = :firstName_1", *req.Scan.FilterExpression)
}
