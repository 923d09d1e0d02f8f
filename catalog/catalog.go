// Package catalog declares a table's indexing capabilities: its
// primary key, its secondary indexes, and which (attribute, operator)
// pairs each index can absorb as a key condition versus only as a
// post-query filter.
//
// This is the Go-native analogue of the teacher's index-type model
// (datalog/planner/types.go's IndexType/BoundMask and
// datalog/storage/types.go's per-index key layout): there, a fixed set
// of five orderings (EAVT/AEVT/AVET/VAET/TAEV) over one fixed datom
// shape; here, an open, declarative set of named indexes over
// arbitrary named attributes, since the DynamoDB-shaped store the
// planner targets lets every table declare its own partition/sort
// keys (spec.md §4.C, §6).
package catalog

import (
	"fmt"
	"sort"

	"github.com/lattice-id/dynaquery/expr"
)

// Projection describes which item attributes an index makes available
// without a follow-up primary-key fetch (spec.md §3 IndexDescriptor).
type Projection int

const (
	// ProjectionAll means the index carries every item attribute, so
	// any non-key term can be evaluated as a residual filter directly
	// against the index.
	ProjectionAll Projection = iota
	// ProjectionInclude means the index carries a declared subset of
	// attributes (Included) plus its own keys.
	ProjectionInclude
	// ProjectionKeysOnly means the index carries only its own
	// partition/sort key attributes.
	ProjectionKeysOnly
)

// SortCapability describes which operators are legal against an
// index's sort key.
type SortCapability int

const (
	// SortNone means the index has no sort key.
	SortNone SortCapability = iota
	// SortRange means the sort key supports Eq/Lt/Le/Gt/Ge/Sw and
	// between-style ranges.
	SortRange
)

// IndexDescriptor describes one index of a table: the primary key
// (Name == "") or a named secondary index.
type IndexDescriptor struct {
	// Name is empty for the table's primary key.
	Name string
	// PartitionAttribute is the attribute usable as this index's
	// partition key; it is only queryable with Eq on a concrete value.
	PartitionAttribute string
	// PartitionAliases lists additional logical attributes that also
	// select this index's partition when tested with Eq, by way of the
	// table's CompositeKeyEncoder — e.g. the accounts table's single
	// physical `pk` partition stands in for userName/email/phone/
	// accountId lookups via the un#/em#/ph#/id# tag scheme (spec.md §6).
	PartitionAliases []string
	// SortAttribute is optional; when present, SortCapability says
	// which operators it supports.
	SortAttribute  string
	SortCapability SortCapability
	// Projection controls whether non-key terms can be evaluated at
	// this index or require a follow-up fetch (not modeled further
	// here since the planner only needs to know whether Filter terms
	// are legal at all — spec.md §4.C).
	Projection Projection
	// Included lists the attributes available when Projection ==
	// ProjectionInclude. Ignored otherwise.
	Included []string
}

// IsPrimary reports whether this descriptor is the table's primary
// key (as opposed to a secondary index).
func (d IndexDescriptor) IsPrimary() bool { return d.Name == "" }

func (d IndexDescriptor) projects(attr string) bool {
	switch d.Projection {
	case ProjectionAll:
		return true
	case ProjectionKeysOnly:
		return attr == d.PartitionAttribute || attr == d.SortAttribute
	case ProjectionInclude:
		if attr == d.PartitionAttribute || attr == d.SortAttribute {
			return true
		}
		for _, a := range d.Included {
			if a == attr {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Classification is the result of testing one (attribute, operator)
// pair against one index (spec.md §4.C).
type Classification int

const (
	// Forbidden means the attribute is neither a key of this index
	// nor projected by it: no legal use at all.
	Forbidden Classification = iota
	// Filter means the term can only be applied as a post-query
	// filter (the index projects the attribute but it isn't a key).
	Filter
	// KeySort means the term can be used as this index's sort-key
	// condition.
	KeySort
	// KeyEq means the term can select this index's partition (an Eq
	// test against the partition attribute with a concrete value).
	KeyEq
)

// CompositeKeyEncoder maps a logical attribute and value onto the
// single physical partition-key string a table actually stores, per
// spec.md §6's accounts composite-key scheme (un#/em#/ph#/id#). A
// table without a composite partition key (the common case) has a
// nil encoder and the attribute's value is used as the partition value
// verbatim.
type CompositeKeyEncoder func(attr string, value interface{}) (string, bool)

// Capabilities bundles every IndexDescriptor for one table plus the
// attributes that may never be used as filters at all (spec.md §3
// QueryCapabilities). One instance is built per table at startup and
// shared read-only thereafter.
type Capabilities struct {
	TableName string
	Indexes   []IndexDescriptor
	// NeverFilterable lists attributes that can never be used in a
	// filter (e.g. write-only audit fields).
	NeverFilterable map[string]struct{}
	// AllowTableScans mirrors spec.md §6's allowTableScans
	// configuration surface: whether the planner may fall back to
	// UsingScan when no product binds to an index.
	AllowTableScans bool
	// CompositeKey, if non-nil, is consulted before using an
	// attribute's raw value as a partition key value.
	CompositeKey CompositeKeyEncoder
}

// Primary returns the table's primary-key descriptor.
func (c *Capabilities) Primary() IndexDescriptor {
	for _, idx := range c.Indexes {
		if idx.IsPrimary() {
			return idx
		}
	}
	panic(fmt.Sprintf("catalog: table %q declares no primary key", c.TableName))
}

// Secondary returns the table's secondary indexes in declaration
// order.
func (c *Capabilities) Secondary() []IndexDescriptor {
	out := make([]IndexDescriptor, 0, len(c.Indexes))
	for _, idx := range c.Indexes {
		if !idx.IsPrimary() {
			out = append(out, idx)
		}
	}
	return out
}

// Filterable reports whether attr may ever be used in a filter.
func (c *Capabilities) Filterable(attr string) bool {
	_, never := c.NeverFilterable[attr]
	return !never
}

func (d IndexDescriptor) isPartitionAlias(attr string) bool {
	for _, a := range d.PartitionAliases {
		if a == attr {
			return true
		}
	}
	return false
}

// Classify tests (attr, op) against a single index, per spec.md §4.C.
func (c *Capabilities) Classify(idx IndexDescriptor, attr string, op expr.Op) Classification {
	if attr == idx.PartitionAttribute || idx.isPartitionAlias(attr) {
		if op == expr.Eq {
			return KeyEq
		}
		// Partition key tested with anything but Eq on a concrete
		// value is not a legal key use (spec.md §4.C); fall through to
		// Filter if projected, else Forbidden.
		if idx.projects(attr) {
			return Filter
		}
		return Forbidden
	}
	if attr == idx.SortAttribute && idx.SortCapability == SortRange {
		switch op {
		case expr.Eq, expr.Lt, expr.Le, expr.Gt, expr.Ge, expr.Sw:
			return KeySort
		}
	}
	if idx.projects(attr) {
		return Filter
	}
	return Forbidden
}

// IndexNamesSorted returns every index name (primary key as "")
// sorted, used by the planner's deterministic tie-break.
func (c *Capabilities) IndexNamesSorted() []string {
	names := make([]string, len(c.Indexes))
	for i, idx := range c.Indexes {
		names[i] = idx.Name
	}
	sort.Strings(names)
	return names
}
