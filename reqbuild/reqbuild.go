// Package reqbuild renders a planner.Plan's bound queries into the
// store's wire request shape: a DynamoDB-style QueryInput or ScanInput
// built from the real AWS SDK types, so the rendered
// expressionAttributeNames/Values maps and key/filter expression
// strings are bit-exact with what a live store would receive (spec.md
// §4.E, §6 "Store request shape").
//
// This has no direct analogue in the teacher, which renders Datalog
// patterns straight into BadgerDB key prefixes (datalog/storage); the
// closest kin is datalog/planner's RealizedPlan -> executor handoff, a
// fully-bound, side-effect-free description of what to run next. The
// placeholder-naming and expression-string conventions follow spec.md
// §4.E/§6 directly.
package reqbuild

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/lattice-id/dynaquery/catalog"
	"github.com/lattice-id/dynaquery/dnf"
	"github.com/lattice-id/dynaquery/expr"
	"github.com/lattice-id/dynaquery/planner"
)

// Options configures rendering that the plan itself doesn't carry.
type Options struct {
	// TableNamePrefix is prepended to the logical table name
	// (spec.md §6 "tableNamePrefix ... prepended by the executor;
	// never affects planning").
	TableNamePrefix string
	// PageSize becomes the request's Limit. Zero leaves Limit unset.
	PageSize int32
	// Count, when true, renders a COUNT-only select instead of an
	// item fetch (spec.md §4.E "COUNT mode").
	Count bool
}

// placeholders accumulates the deterministic #attr/:attr_N tables for
// one rendered request. Suffixes start at 1 and increment per repeat
// of the same attribute name, across both the key and filter
// expressions (spec.md §4.E).
type placeholders struct {
	names  map[string]string
	values map[string]types.AttributeValue
	counts map[string]int
}

func newPlaceholders() *placeholders {
	return &placeholders{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
		counts: map[string]int{},
	}
}

func (p *placeholders) name(attr string) string {
	p.names["#"+attr] = attr
	return "#" + attr
}

func (p *placeholders) value(attr string, v interface{}) string {
	p.counts[attr]++
	placeholder := fmt.Sprintf(":%s_%d", attr, p.counts[attr])
	p.values[placeholder] = attributeValue(v)
	return placeholder
}

func attributeValue(v interface{}) types.AttributeValue {
	switch t := v.(type) {
	case string:
		return &types.AttributeValueMemberS{Value: t}
	case bool:
		return &types.AttributeValueMemberBOOL{Value: t}
	case int:
		return &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", t)}
	case int64:
		return &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", t)}
	case float64:
		return &types.AttributeValueMemberN{Value: fmt.Sprintf("%g", t)}
	default:
		return &types.AttributeValueMemberS{Value: fmt.Sprintf("%v", t)}
	}
}

// Request is one rendered store request, matching spec.md §6's
// bit-exact shape. Query is populated for an index sub-query, Scan for
// a table scan fallback; never both.
type Request struct {
	Query *dynamodb.QueryInput
	Scan  *dynamodb.ScanInput
}

// Queries renders every bound query in plan into Requests, in the
// plan's deterministic SortedQueries() order. caps resolves each
// IndexQueryKey's index name back to the partition/sort attribute
// names the live table actually declares, since a planner.Plan only
// carries resolved key values, not attribute names.
func Queries(plan *planner.Plan, caps *catalog.Capabilities, opts Options) []Request {
	bound := plan.SortedQueries()
	out := make([]Request, 0, len(bound))
	for _, q := range bound {
		out = append(out, Request{Query: buildQuery(q, caps, opts)})
	}
	return out
}

// Scan renders a table-scan fallback plan.
func Scan(plan *planner.ScanPlan, tableName string, opts Options) Request {
	ph := newPlaceholders()
	filterExpr := renderFilterExpr(plan.Filter, ph)

	in := &dynamodb.ScanInput{
		TableName: str(opts.TableNamePrefix + tableName),
	}
	if filterExpr != "" {
		in.FilterExpression = str(filterExpr)
	}
	if len(ph.names) > 0 {
		in.ExpressionAttributeNames = ph.names
	}
	if len(ph.values) > 0 {
		in.ExpressionAttributeValues = ph.values
	}
	applySelect(opts, &in.Limit, &in.Select)
	return Request{Scan: in}
}

func buildQuery(q planner.BoundQuery, caps *catalog.Capabilities, opts Options) *dynamodb.QueryInput {
	idx := descriptorFor(caps, q.Key.Index)
	ph := newPlaceholders()
	keyExpr := renderKeyExpr(q.Key, idx, ph)
	filterExpr := renderResidual(q.Residual, ph)

	in := &dynamodb.QueryInput{
		TableName:              str(opts.TableNamePrefix + caps.TableName),
		KeyConditionExpression: str(keyExpr),
	}
	if q.Key.Index != "" {
		in.IndexName = str(q.Key.Index)
	}
	if filterExpr != "" {
		in.FilterExpression = str(filterExpr)
	}
	if len(ph.names) > 0 {
		in.ExpressionAttributeNames = ph.names
	}
	if len(ph.values) > 0 {
		in.ExpressionAttributeValues = ph.values
	}
	applySelect(opts, &in.Limit, &in.Select)
	return in
}

func descriptorFor(caps *catalog.Capabilities, indexName string) catalog.IndexDescriptor {
	for _, idx := range caps.Indexes {
		if idx.Name == indexName {
			return idx
		}
	}
	return catalog.IndexDescriptor{}
}

func applySelect(opts Options, limit **int32, sel *types.Select) {
	if opts.PageSize > 0 {
		l := opts.PageSize
		*limit = &l
	}
	if opts.Count {
		*sel = types.SelectCount
	}
}

// renderKeyExpr renders spec.md §4.E's keyExpression: `#pk = :pk_1`
// optionally `AND <sortOp>(#sk, :sk_1)`.
func renderKeyExpr(key planner.IndexQueryKey, idx catalog.IndexDescriptor, ph *placeholders) string {
	pkAttr := idx.PartitionAttribute
	if pkAttr == "" {
		pkAttr = "pk"
	}
	clause := fmt.Sprintf("%s = %s", ph.name(pkAttr), ph.value(pkAttr, key.PartitionValue))
	if !key.HasSort {
		return clause
	}
	skAttr := idx.SortAttribute
	skName := ph.name(skAttr)
	skValue := ph.value(skAttr, key.SortValue)
	return clause + " AND " + renderSortCondition(key.SortOperator, skName, skValue)
}

func renderSortCondition(op expr.Op, name, value string) string {
	switch op {
	case expr.Sw:
		return fmt.Sprintf("begins_with(%s, %s)", name, value)
	case expr.Lt:
		return fmt.Sprintf("%s < %s", name, value)
	case expr.Le:
		return fmt.Sprintf("%s <= %s", name, value)
	case expr.Gt:
		return fmt.Sprintf("%s > %s", name, value)
	case expr.Ge:
		return fmt.Sprintf("%s >= %s", name, value)
	default:
		return fmt.Sprintf("%s = %s", name, value)
	}
}

// renderResidual renders a planner.Residual (an OR of AND-only
// conjunctions) into a filterExpression; empty when there is nothing
// to filter (spec.md §4.E).
func renderResidual(r planner.Residual, ph *placeholders) string {
	if r.Empty() {
		return ""
	}
	clauses := make([]string, 0, len(r.Disjuncts))
	for _, product := range r.Disjuncts {
		clause := renderProduct(product, ph)
		if clause != "" {
			clauses = append(clauses, clause)
		}
	}
	if len(clauses) == 0 {
		return ""
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	for i, c := range clauses {
		clauses[i] = "(" + c + ")"
	}
	return join(clauses, " OR ")
}

func renderProduct(product dnf.Product, ph *placeholders) string {
	terms := product.Terms()
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, renderTerm(t, ph))
	}
	return join(parts, " AND ")
}

func renderTerm(t dnf.Term, ph *placeholders) string {
	name := ph.name(t.Attr)
	if t.Operator == expr.Pr {
		if t.Negated {
			return fmt.Sprintf("attribute_not_exists(%s)", name)
		}
		return fmt.Sprintf("attribute_exists(%s)", name)
	}
	var clause string
	switch t.Operator {
	case expr.Sw:
		clause = fmt.Sprintf("begins_with(%s, %s)", name, ph.value(t.Attr, t.Value))
	case expr.Co:
		clause = fmt.Sprintf("contains(%s, %s)", name, ph.value(t.Attr, t.Value))
	case expr.Eq:
		clause = fmt.Sprintf("%s = %s", name, ph.value(t.Attr, t.Value))
	case expr.Ne:
		clause = fmt.Sprintf("%s <> %s", name, ph.value(t.Attr, t.Value))
	case expr.Lt:
		clause = fmt.Sprintf("%s < %s", name, ph.value(t.Attr, t.Value))
	case expr.Le:
		clause = fmt.Sprintf("%s <= %s", name, ph.value(t.Attr, t.Value))
	case expr.Gt:
		clause = fmt.Sprintf("%s > %s", name, ph.value(t.Attr, t.Value))
	case expr.Ge:
		clause = fmt.Sprintf("%s >= %s", name, ph.value(t.Attr, t.Value))
	}
	if t.Negated {
		return "NOT (" + clause + ")"
	}
	return clause
}

// renderFilterExpr renders a raw expression tree (used only for the
// UsingScan fallback, whose Filter is the original un-normalized
// expression rather than a DNF residual).
func renderFilterExpr(e expr.Expr, ph *placeholders) string {
	switch v := e.(type) {
	case expr.BinaryExpr:
		return renderTerm(dnf.Term{Attr: v.Attr, Operator: v.Operator, Value: v.Value, Negated: v.Negated}, ph)
	case expr.NotExpr:
		return "NOT (" + renderFilterExpr(v.Inner, ph) + ")"
	case expr.AndExpr:
		return "(" + renderFilterExpr(v.Left, ph) + ") AND (" + renderFilterExpr(v.Right, ph) + ")"
	case expr.OrExpr:
		return "(" + renderFilterExpr(v.Left, ph) + ") OR (" + renderFilterExpr(v.Right, ph) + ")"
	default:
		return ""
	}
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

func str(s string) *string { return &s }
