// Package planner turns a normalized filter expression into either a
// set of index queries or an explicit rejection, per spec.md §4.D.
//
// Structurally this mirrors the teacher's Planner (datalog/planner
// Planner.Plan/PlanWithBindings): a small struct holding configuration
// and an optional plan cache, with one Plan entry point. The
// algorithm differs — the teacher picks an index ordering per Datalog
// pattern inside a multi-phase join plan; here there is one flat pass
// binding each DNF product to a single table index — but the shape
// (options struct, optional cache, deterministic Plan() call) is kept.
package planner

import (
	"errors"
	"fmt"
	"sort"

	"github.com/lattice-id/dynaquery/catalog"
	"github.com/lattice-id/dynaquery/dnf"
	"github.com/lattice-id/dynaquery/expr"
)

// ErrUnindexableTerm is wrapped into a *RejectedError when a product
// cannot be bound to any index and scans are disallowed.
var ErrUnindexableTerm = errors.New("no legal index for term")

// RejectedError carries the offending attribute for diagnostics
// (spec.md §6 "a rejection carrying the offending subterm").
type RejectedError struct {
	Attribute string
	Reason    error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected: %s on attribute %q", e.Reason, e.Attribute)
}

func (e *RejectedError) Unwrap() error { return e.Reason }

// IndexQueryKey identifies one concrete store sub-query: an index plus
// its partition condition and (optional) sort condition (spec.md §3).
// Two products yielding the same key are merged by the planner.
type IndexQueryKey struct {
	Index          string // "" for the primary key
	PartitionValue interface{}
	HasSort        bool
	SortOperator   expr.Op
	SortValue      interface{}
}

func (k IndexQueryKey) key() string {
	return fmt.Sprintf("%s\x00%v\x00%t\x00%s\x00%v", k.Index, k.PartitionValue, k.HasSort, k.SortOperator, k.SortValue)
}

// Residual is the AND-only filter left over after an index absorbs a
// product's key terms (spec.md §9 "Residual filters are conjunctions").
// It is itself an OR of such conjunctions, since distinct products
// merged into the same IndexQueryKey have their residuals OR-ed
// (spec.md §4.D step 4); each inner conjunction, however, never
// reintroduces disjunction.
type Residual struct {
	Disjuncts []dnf.Product
}

// Empty reports whether this residual has no filtering to do at all —
// either no disjuncts, or exactly one disjunct with zero terms.
func (r Residual) Empty() bool {
	if len(r.Disjuncts) == 0 {
		return true
	}
	if len(r.Disjuncts) == 1 && len(r.Disjuncts[0]) == 0 {
		return true
	}
	return false
}

func (r Residual) or(p dnf.Product) Residual {
	return Residual{Disjuncts: append(append([]dnf.Product{}, r.Disjuncts...), p)}
}

// Plan is the tagged union result of planning: either UsingQueries or
// UsingScan is populated, per spec.md §3 QueryPlan.
type Plan struct {
	// Queries is non-nil for a UsingQueries plan: each entry is one
	// store sub-query and its residual filter.
	Queries map[string]BoundQuery
	// Scan is non-nil for a UsingScan plan (only ever produced when
	// capabilities.AllowTableScans is true).
	Scan *ScanPlan
}

// BoundQuery is one entry of a UsingQueries plan.
type BoundQuery struct {
	Key      IndexQueryKey
	Residual Residual
}

// ScanPlan is produced when no product binds to an index and scans
// are permitted.
type ScanPlan struct {
	Filter expr.Expr
}

// IsUsingScan reports whether this plan is a table scan.
func (p *Plan) IsUsingScan() bool { return p.Scan != nil }

// SortedQueries returns the plan's bound queries in a deterministic
// order (by IndexQueryKey identity), for diagnostics and golden tests.
func (p *Plan) SortedQueries() []BoundQuery {
	keys := make([]string, 0, len(p.Queries))
	for k := range p.Queries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]BoundQuery, len(keys))
	for i, k := range keys {
		out[i] = p.Queries[k]
	}
	return out
}

// Options configures the planner (spec.md §6 "Configuration surface").
type Options struct {
	// MaxDNFProducts bounds DNF cardinality before rejecting with
	// dnf.ErrTooComplex; 0 uses dnf.DefaultMaxProducts.
	MaxDNFProducts int
	// Cache, if set, memoizes Plan() results keyed on the table name plus
	// the expression's String() form as given, before normalization —
	// adapted from the teacher's planner.PlanCache (datalog/planner/cache.go).
	Cache *Cache
}

// Planner binds normalized expressions to a table's index catalogue.
type Planner struct {
	capabilities *catalog.Capabilities
	options      Options
}

// New creates a Planner bound to one table's capabilities.
func New(capabilities *catalog.Capabilities, options Options) *Planner {
	return &Planner{capabilities: capabilities, options: options}
}

// Plan normalizes e and binds every resulting DNF product to an index,
// per spec.md §4.D.
func (p *Planner) Plan(e expr.Expr) (*Plan, error) {
	if p.options.Cache != nil {
		if cached, ok := p.options.Cache.Get(e, p.capabilities); ok {
			return cached, nil
		}
	}

	d, err := dnf.Normalize(e, p.options.MaxDNFProducts)
	if err != nil {
		return nil, err
	}

	plan, err := p.planDNF(d, e)
	if err != nil {
		return nil, err
	}

	if p.options.Cache != nil {
		p.options.Cache.Set(e, p.capabilities, plan)
	}
	return plan, nil
}

func (p *Planner) planDNF(d dnf.DNF, original expr.Expr) (*Plan, error) {
	products := d.Products()
	if len(products) == 0 {
		// Contradiction: spec.md §4.D "An empty DNF ... returns an
		// empty UsingQueries (no results)".
		return &Plan{Queries: map[string]BoundQuery{}}, nil
	}

	queries := make(map[string]BoundQuery)
	for _, product := range products {
		idx, keyTerm, sortTerm, ok := p.bindIndex(product)
		if !ok {
			if p.capabilities.AllowTableScans {
				return &Plan{Scan: &ScanPlan{Filter: original}}, nil
			}
			attr := firstUnindexableAttribute(product, p.capabilities)
			return nil, &RejectedError{Attribute: attr, Reason: ErrUnindexableTerm}
		}

		key := p.buildIndexQueryKey(idx, keyTerm, sortTerm)
		residualTerms := residualOf(product, keyTerm, sortTerm)

		if existing, found := queries[key.key()]; found {
			existing.Residual = existing.Residual.or(residualTerms)
			queries[key.key()] = existing
		} else {
			queries[key.key()] = BoundQuery{
				Key:      key,
				Residual: Residual{Disjuncts: []dnf.Product{residualTerms}},
			}
		}
	}
	return &Plan{Queries: queries}, nil
}

// bindIndex finds an index this product can bind to, per spec.md
// §4.C's bindability rule: at least one KeyEq term for the index (one
// becomes the key condition, any others stay in the residual), and
// every other term is KeySort (at most one) or Filter. Among multiple
// candidate indexes, it prefers the primary key, then the index
// exposing more terms as sort-key/key-eq, then lexicographic name.
func (p *Planner) bindIndex(product dnf.Product) (idx catalog.IndexDescriptor, keyTerm, sortTerm *dnf.Term, ok bool) {
	type candidate struct {
		idx      catalog.IndexDescriptor
		keyTerm  dnf.Term
		sortTerm *dnf.Term
		boundTerms int
	}
	var candidates []candidate

	for _, index := range p.capabilities.Indexes {
		var eqCandidates []dnf.Term
		var sortT *dnf.Term
		legal := true
		for _, term := range product.Terms() {
			if !p.capabilities.Filterable(term.Attr) {
				legal = false
				break
			}
			class := p.capabilities.Classify(index, term.Attr, term.Operator)
			switch class {
			case catalog.KeyEq:
				// A product may contain more than one term that could
				// independently select this index's partition — e.g.
				// the accounts table's composite pk accepts userName,
				// email, phone, or accountId interchangeably (spec.md
				// §6). Exactly one is chosen as the key condition
				// below; any further KeyEq-classified term simply
				// falls through to the residual filter, which is
				// legal here since an attribute classified KeyEq is
				// by definition projected by this index.
				eqCandidates = append(eqCandidates, term)
			case catalog.KeySort:
				if sortT != nil {
					legal = false
				} else {
					t := term
					sortT = &t
				}
			case catalog.Filter:
				// always legal as a residual
			case catalog.Forbidden:
				legal = false
			}
			if !legal {
				break
			}
		}
		if !legal || len(eqCandidates) == 0 {
			continue
		}
		eqTerm := choosePartitionTerm(index, eqCandidates)
		bound := 1
		if sortT != nil {
			bound++
		}
		candidates = append(candidates, candidate{idx: index, keyTerm: eqTerm, sortTerm: sortT, boundTerms: bound})
	}

	if len(candidates) == 0 {
		return catalog.IndexDescriptor{}, nil, nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.idx.IsPrimary() != cj.idx.IsPrimary() {
			return ci.idx.IsPrimary()
		}
		if ci.boundTerms != cj.boundTerms {
			return ci.boundTerms > cj.boundTerms
		}
		return ci.idx.Name < cj.idx.Name
	})

	best := candidates[0]
	return best.idx, &best.keyTerm, best.sortTerm, true
}

// choosePartitionTerm deterministically picks one of several
// Eq-classified candidate terms to serve as an index's partition
// condition: the literal PartitionAttribute is preferred over any
// alias, then ties break by declaration order in PartitionAliases,
// then by attribute name.
func choosePartitionTerm(idx catalog.IndexDescriptor, candidates []dnf.Term) dnf.Term {
	rank := func(attr string) int {
		if attr == idx.PartitionAttribute {
			return -1
		}
		for i, alias := range idx.PartitionAliases {
			if alias == attr {
				return i
			}
		}
		return len(idx.PartitionAliases)
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if rank(c.Attr) < rank(best.Attr) {
			best = c
		}
	}
	return best
}

func (p *Planner) buildIndexQueryKey(idx catalog.IndexDescriptor, keyTerm, sortTerm *dnf.Term) IndexQueryKey {
	k := IndexQueryKey{
		Index:          idx.Name,
		PartitionValue: p.resolvePartitionValue(keyTerm),
	}
	if sortTerm != nil {
		k.HasSort = true
		k.SortOperator = sortTerm.Operator
		k.SortValue = sortTerm.Value
	}
	return k
}

// resolvePartitionValue applies the table's composite-key encoder (if
// any) to the matched attribute and value, per spec.md §6's
// un#/em#/ph#/id# accounts scheme. Attributes the encoder doesn't
// recognize (encoder returns ok=false) use their raw value verbatim.
func (p *Planner) resolvePartitionValue(keyTerm *dnf.Term) interface{} {
	if p.capabilities.CompositeKey == nil {
		return keyTerm.Value
	}
	if encoded, ok := p.capabilities.CompositeKey(keyTerm.Attr, keyTerm.Value); ok {
		return encoded
	}
	return keyTerm.Value
}

func residualOf(product dnf.Product, keyTerm, sortTerm *dnf.Term) dnf.Product {
	out := make(dnf.Product)
	for k, t := range product {
		if keyTerm != nil && t.Attr == keyTerm.Attr && t.Operator == keyTerm.Operator && fmt.Sprint(t.Value) == fmt.Sprint(keyTerm.Value) {
			continue
		}
		if sortTerm != nil && t.Attr == sortTerm.Attr && t.Operator == sortTerm.Operator && fmt.Sprint(t.Value) == fmt.Sprint(sortTerm.Value) {
			continue
		}
		out[k] = t
	}
	return out
}

func firstUnindexableAttribute(product dnf.Product, capabilities *catalog.Capabilities) string {
	terms := product.Terms()
	for _, t := range terms {
		if !capabilities.Filterable(t.Attr) {
			return t.Attr
		}
	}
	// No single attribute is individually forbidden; the product as a
	// whole has no legal binding (e.g. two partition-key-eligible
	// attributes at once). Report the first term's attribute.
	if len(terms) > 0 {
		return terms[0].Attr
	}
	return ""
}
