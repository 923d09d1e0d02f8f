package catalog_test

import (
	"testing"

	"github.com/lattice-id/dynaquery/catalog"
	"github.com/lattice-id/dynaquery/expr"
	"github.com/stretchr/testify/assert"
)

func accountsCapabilities() *catalog.Capabilities {
	return &catalog.Capabilities{
		TableName: "accounts",
		Indexes: []catalog.IndexDescriptor{
			{PartitionAttribute: "pk", Projection: catalog.ProjectionAll},
			{
				Name:               "userNameInitial-userName-index",
				PartitionAttribute: "userNameInitial",
				SortAttribute:      "userName",
				SortCapability:     catalog.SortRange,
				Projection:         catalog.ProjectionAll,
			},
		},
		NeverFilterable: map[string]struct{}{"auditTrail": {}},
	}
}

func TestClassifyPartitionEq(t *testing.T) {
	c := accountsCapabilities()
	primary := c.Primary()
	assert.Equal(t, catalog.KeyEq, c.Classify(primary, "pk", expr.Eq))
	assert.Equal(t, catalog.Filter, c.Classify(primary, "pk", expr.Ne))
}

func TestClassifySortRange(t *testing.T) {
	c := accountsCapabilities()
	idx := c.Secondary()[0]
	assert.Equal(t, catalog.KeyEq, c.Classify(idx, "userNameInitial", expr.Eq))
	assert.Equal(t, catalog.KeySort, c.Classify(idx, "userName", expr.Sw))
	assert.Equal(t, catalog.KeySort, c.Classify(idx, "userName", expr.Eq))
	assert.Equal(t, catalog.Filter, c.Classify(idx, "email", expr.Eq))
}

func TestPresentNeverBindsPartition(t *testing.T) {
	c := accountsCapabilities()
	primary := c.Primary()
	assert.Equal(t, catalog.Filter, c.Classify(primary, "pk", expr.Pr))
}

func TestNeverFilterable(t *testing.T) {
	c := accountsCapabilities()
	assert.False(t, c.Filterable("auditTrail"))
	assert.True(t, c.Filterable("userName"))
}

func TestForbiddenOnKeysOnlyIndex(t *testing.T) {
	c := &catalog.Capabilities{
		TableName: "sessions",
		Indexes: []catalog.IndexDescriptor{
			{PartitionAttribute: "pk", Projection: catalog.ProjectionAll},
			{
				Name:               "status-index",
				PartitionAttribute: "status",
				Projection:         catalog.ProjectionKeysOnly,
			},
		},
	}
	idx := c.Secondary()[0]
	assert.Equal(t, catalog.Forbidden, c.Classify(idx, "deviceId", expr.Eq))
}
