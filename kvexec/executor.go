// Package kvexec is the executor façade tying planner, reqbuild,
// store, and cursor together: given a planner.Plan and a page size, it
// fans sub-queries out to a store.Store concurrently, merges their
// results into one deterministically ordered page, deduplicates across
// overlapping sub-queries, and hands back an opaque continuation
// cursor (spec.md §4.E "Execution contract", §5 "Concurrency &
// Resource Model").
//
// Structurally this is the Go-native sibling of the teacher's
// datalog/executor package: a small façade over a worker pool
// (pool.go, adapted from executor.WorkerPool) plus retry/cancellation
// policy layered on top, the same division of labor the teacher uses
// between its Executor and its Context/WorkerPool collaborators.
package kvexec

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/lattice-id/dynaquery/catalog"
	"github.com/lattice-id/dynaquery/cursor"
	"github.com/lattice-id/dynaquery/planner"
	"github.com/lattice-id/dynaquery/reqbuild"
	"github.com/lattice-id/dynaquery/store"
)

// Page is one page of executed results plus the cursor to resume from.
// An empty Cursor means the traversal is exhausted. A full page always
// carries a cursor, so the call after the last full page may return no
// items and an empty Cursor.
type Page struct {
	Items  []map[string]types.AttributeValue
	Cursor string
}

// CountApproximate is Count's outcome. Count always sums every
// sub-query's reported count; Approximate is set when the plan had
// more sub-queries than Options.CountExactThreshold, meaning Count may
// overcount items visible to more than one sub-query (spec.md §4.E
// "COUNT mode").
type CountApproximate struct {
	Count       int
	Approximate bool
}

// Executor runs plans against one store.Store and table.
type Executor struct {
	store store.Store
	caps  *catalog.Capabilities
	pool  *workerPool
	opts  Options
	probe *store.FeatureProbe
}

// New creates an Executor bound to a store and the table capabilities
// its plans were built from.
func New(s store.Store, caps *catalog.Capabilities, opts Options) *Executor {
	return &Executor{store: s, caps: caps, pool: newWorkerPool(opts.Concurrency), opts: opts, probe: store.NewFeatureProbe(s)}
}

// requireIndexesSupported fails fast with ErrUnsupportedOperation
// (spec.md §5 "operations that require an absent index fail fast with
// UnsupportedOperation(GETALLBY)") before any sub-query is dispatched,
// rather than letting each one fail independently mid-fan-out. The
// primary key ("" index) always exists; only named secondary indexes
// are probed, and each is probed at most once per call.
func (e *Executor) requireIndexesSupported(ctx context.Context, bound []planner.BoundQuery) error {
	checked := map[string]bool{}
	for _, q := range bound {
		if q.Key.Index == "" || checked[q.Key.Index] {
			continue
		}
		checked[q.Key.Index] = true
		if err := e.probe.RequireFeature(ctx, q.Key.Index); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnsupportedOperation, q.Key.Index, err)
		}
	}
	return nil
}

// Execute runs plan, returning up to pageSize deduplicated items and a
// cursor to pass back for the next page. cursorToken is the empty
// string on the first call. Partial pages are never returned with an
// error: a failure discards the in-flight page and returns a nil Page,
// leaving the caller's own cursorToken valid to retry with (spec.md §7
// "Partial pages are never returned with an error").
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan, pageSize int, cursorToken string) (*Page, error) {
	if e.opts.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.OverallTimeout)
		defer cancel()
	}
	if pageSize <= 0 {
		pageSize = 25
	}

	c, err := cursor.Decode(cursorToken)
	if err != nil {
		return nil, err
	}
	if cursorToken == "" || c.Dedup == nil {
		c.Dedup = cursor.NewDedup(pageSize)
	}

	requestID := uuid.New()
	if plan.IsUsingScan() {
		return e.executeScan(ctx, plan.Scan, pageSize, c, requestID)
	}
	return e.executeQueries(ctx, plan, pageSize, c, requestID)
}

const scanSubQueryKey = "__scan__"

func (e *Executor) executeScan(ctx context.Context, scan *planner.ScanPlan, pageSize int, c *cursor.Cursor, requestID uuid.UUID) (*Page, error) {
	state := c.SubQueries[scanSubQueryKey]
	if state.Exhausted {
		return e.finishPage(nil, c, pageSize, requestID)
	}

	req := reqbuild.Scan(scan, e.caps.TableName, reqbuild.Options{
		TableNamePrefix: e.opts.TableNamePrefix,
		PageSize:        int32(pageSize),
	})
	if len(state.LastKey) > 0 {
		req.Scan.ExclusiveStartKey = state.LastKey
	}

	e.trace().QueryDispatched(requestID, scanSubQueryKey)
	result, err := e.callStore(ctx, func(ctx context.Context) (*store.Result, error) {
		return e.store.Scan(ctx, req.Scan)
	})
	if err == nil {
		e.trace().PageFetched(requestID, scanSubQueryKey, len(result.Items))
	}
	if err != nil {
		return nil, err
	}

	var page []map[string]types.AttributeValue
	for _, item := range result.Items {
		if !e.dedupOne(item, c) {
			page = append(page, item)
		}
	}

	if result.LastEvaluatedKey != nil {
		c.SubQueries[scanSubQueryKey] = cursor.SubQueryState{LastKey: result.LastEvaluatedKey}
	} else {
		c.SubQueries[scanSubQueryKey] = cursor.SubQueryState{Exhausted: true}
	}
	return e.finishPage(page, c, pageSize, requestID)
}

type subQueryResult struct {
	items   []map[string]types.AttributeValue
	lastKey map[string]types.AttributeValue
	skipped bool
}

func (e *Executor) executeQueries(ctx context.Context, plan *planner.Plan, pageSize int, c *cursor.Cursor, requestID uuid.UUID) (*Page, error) {
	bound := plan.SortedQueries()
	if err := e.requireIndexesSupported(ctx, bound); err != nil {
		return nil, err
	}
	reqs := reqbuild.Queries(plan, e.caps, reqbuild.Options{
		TableNamePrefix: e.opts.TableNamePrefix,
		PageSize:        int32(pageSize),
	})

	operation := func(ctx context.Context, i int) (interface{}, error) {
		subKey := subQueryKey(i, bound[i])
		state := c.SubQueries[subKey]
		if state.Exhausted {
			return subQueryResult{skipped: true}, nil
		}
		req := reqs[i].Query
		if len(state.LastKey) > 0 {
			req.ExclusiveStartKey = state.LastKey
		}
		e.trace().QueryDispatched(requestID, subKey)
		result, err := e.callStore(ctx, func(ctx context.Context) (*store.Result, error) {
			return e.store.Query(ctx, req)
		})
		if err != nil {
			return nil, err
		}
		e.trace().PageFetched(requestID, subKey, len(result.Items))
		return subQueryResult{items: result.Items, lastKey: result.LastEvaluatedKey}, nil
	}

	raw, errs := e.pool.run(ctx, len(bound), operation)
	for _, err := range errs {
		if err != nil {
			return nil, classifyContextError(err)
		}
	}

	// Merge in the plan's deterministic sorted-index order (spec.md
	// §4.E "stable interleaving: by index name, then by returned sort
	// key"); within a sub-query, items already arrive sort-key ordered
	// from the store.
	var page []map[string]types.AttributeValue
	for i := range bound {
		if len(page) >= pageSize {
			break
		}
		r, _ := raw[i].(subQueryResult)
		if r.skipped {
			continue
		}

		taken := 0
		for _, item := range r.items {
			if len(page) >= pageSize {
				break
			}
			taken++
			if e.dedupOne(item, c) {
				continue
			}
			page = append(page, item)
		}
		e.advanceSubQuery(c, subQueryKey(i, bound[i]), bound[i], r, taken)
	}

	return e.finishPage(page, c, pageSize, requestID)
}

func subQueryKey(i int, q planner.BoundQuery) string {
	return fmt.Sprintf("%d:%s", i, q.Key.Index)
}

// advanceSubQuery records where sub-query i should resume next. When
// every item the store returned this round was consumed, the next
// start point is whatever the store itself reported (nil meaning
// exhausted). When the page filled up mid-batch, a resume key is
// synthesized from the last item actually emitted, using that index's
// own key attributes — legal since DynamoDB's ExclusiveStartKey only
// needs to name a real key within the index being queried, not the
// exact key the store chose to report as LastEvaluatedKey.
func (e *Executor) advanceSubQuery(c *cursor.Cursor, subKey string, q planner.BoundQuery, r subQueryResult, taken int) {
	if taken == len(r.items) {
		if r.lastKey != nil {
			c.SubQueries[subKey] = cursor.SubQueryState{LastKey: r.lastKey}
		} else {
			c.SubQueries[subKey] = cursor.SubQueryState{Exhausted: true}
		}
		return
	}

	idx := descriptorForIndex(e.caps, q.Key.Index)
	last := r.items[taken-1]
	startKey := map[string]types.AttributeValue{idx.PartitionAttribute: last[idx.PartitionAttribute]}
	if idx.SortAttribute != "" {
		startKey[idx.SortAttribute] = last[idx.SortAttribute]
	}
	c.SubQueries[subKey] = cursor.SubQueryState{LastKey: startKey}
}

func descriptorForIndex(caps *catalog.Capabilities, name string) catalog.IndexDescriptor {
	for _, idx := range caps.Indexes {
		if idx.Name == name {
			return idx
		}
	}
	return catalog.IndexDescriptor{}
}

// dedupOne records item's identity (the table's real primary key, not
// whichever index's sub-query happened to return it) in the cursor's
// Bloom filter, reporting whether it was already seen this traversal
// (spec.md §4.E "Deduplication": overlapping sub-queries, e.g. an OR
// across two indexes, can surface the same underlying item twice).
func (e *Executor) dedupOne(item map[string]types.AttributeValue, c *cursor.Cursor) bool {
	return c.Dedup.Add(itemIdentity(e.caps, item))
}

func itemIdentity(caps *catalog.Capabilities, item map[string]types.AttributeValue) string {
	primary := caps.Primary()
	id := attrToString(item[primary.PartitionAttribute])
	if primary.SortAttribute != "" {
		id += "\x00" + attrToString(item[primary.SortAttribute])
	}
	return id
}

func attrToString(v types.AttributeValue) string {
	switch t := v.(type) {
	case *types.AttributeValueMemberS:
		return t.Value
	case *types.AttributeValueMemberN:
		return t.Value
	case *types.AttributeValueMemberBOOL:
		return fmt.Sprintf("%t", t.Value)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func (e *Executor) finishPage(items []map[string]types.AttributeValue, c *cursor.Cursor, pageSize int, requestID uuid.UUID) (*Page, error) {
	// A short page with every sub-query drained ends the traversal.
	exhausted := len(items) < pageSize
	for _, s := range c.SubQueries {
		exhausted = exhausted && s.Exhausted
	}
	token := ""
	if !exhausted {
		var err error
		if token, err = cursor.Encode(c); err != nil {
			return nil, err
		}
	}
	e.trace().QueryComplete(requestID, len(items), token)
	return &Page{Items: items, Cursor: token}, nil
}

// Count runs plan in COUNT mode, always summing every sub-query's
// reported count in full. Counts are not deduplicated across
// overlapping sub-queries: a COUNT response carries no items to dedup
// against, the same limitation a live DynamoDB COUNT query has (spec.md
// §4.E "COUNT mode may overcount when sub-queries overlap"). Past
// Options.CountExactThreshold sub-queries, the result is flagged
// Approximate to reflect that overcount risk rather than silently
// dropping sub-queries from the total.
func (e *Executor) Count(ctx context.Context, plan *planner.Plan) (CountApproximate, error) {
	if e.opts.OverallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.OverallTimeout)
		defer cancel()
	}
	requestID := uuid.New()

	if plan.IsUsingScan() {
		req := reqbuild.Scan(plan.Scan, e.caps.TableName, reqbuild.Options{
			TableNamePrefix: e.opts.TableNamePrefix,
			Count:           true,
		})
		e.trace().QueryDispatched(requestID, scanSubQueryKey)
		result, err := e.callStore(ctx, func(ctx context.Context) (*store.Result, error) {
			return e.store.Scan(ctx, req.Scan)
		})
		if err != nil {
			return CountApproximate{}, err
		}
		e.trace().QueryComplete(requestID, result.Count, "")
		return CountApproximate{Count: result.Count}, nil
	}

	bound := plan.SortedQueries()
	if err := e.requireIndexesSupported(ctx, bound); err != nil {
		return CountApproximate{}, err
	}
	reqs := reqbuild.Queries(plan, e.caps, reqbuild.Options{
		TableNamePrefix: e.opts.TableNamePrefix,
		Count:           true,
	})

	operation := func(ctx context.Context, i int) (interface{}, error) {
		subKey := subQueryKey(i, bound[i])
		e.trace().QueryDispatched(requestID, subKey)
		result, err := e.callStore(ctx, func(ctx context.Context) (*store.Result, error) {
			return e.store.Query(ctx, reqs[i].Query)
		})
		if err != nil {
			return nil, err
		}
		e.trace().PageFetched(requestID, subKey, result.Count)
		return result.Count, nil
	}

	raw, errs := e.pool.run(ctx, len(bound), operation)
	for _, err := range errs {
		if err != nil {
			return CountApproximate{}, classifyContextError(err)
		}
	}

	total := 0
	for _, r := range raw {
		if r != nil {
			total += r.(int)
		}
	}

	// Every sub-query's count is always summed in full: dropping
	// sub-queries to stay under a threshold would silently undercount.
	// What the threshold bounds instead is confidence in the sum: a
	// COUNT response carries no items to dedup against, so once more
	// sub-queries than Options.CountExactThreshold contribute to the
	// total, an item visible to more than one of them (the same
	// overlap Execute's dedup guards against) would be double-counted,
	// and the result is flagged Approximate rather than claimed exact.
	approximate := e.opts.CountExactThreshold > 0 && len(bound) > e.opts.CountExactThreshold
	e.trace().QueryComplete(requestID, total, "")
	return CountApproximate{Count: total, Approximate: approximate}, nil
}

// callStore runs fn with the executor's per-attempt timeout and
// retries store.ErrThrottled/store.ErrTransient failures with
// exponential backoff, per spec.md §7's retriable/permanent error
// split. A caller-cancelled or caller-deadline-exceeded ctx aborts
// immediately without retrying.
func (e *Executor) callStore(ctx context.Context, fn func(context.Context) (*store.Result, error)) (*store.Result, error) {
	attempts := e.opts.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	backoff := e.opts.InitialBackoff
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		attemptCtx := ctx
		var cancel context.CancelFunc
		if e.opts.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, e.opts.AttemptTimeout)
		}
		result, err := fn(attemptCtx)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, classifyContextError(ctx.Err())
		}
		if !errors.Is(err, store.ErrThrottled) && !errors.Is(err, store.ErrTransient) {
			return nil, classifyContextError(err)
		}
		if attempt == attempts-1 {
			break
		}
		e.sleepBackoff(ctx, backoff)
		backoff *= 2
		if e.opts.MaxBackoff > 0 && backoff > e.opts.MaxBackoff {
			backoff = e.opts.MaxBackoff
		}
	}
	return nil, lastErr
}

func (e *Executor) sleepBackoff(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	timer := time.NewTimer(d/2 + jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
