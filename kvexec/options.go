package kvexec

import "time"

// Options configures one Executor, bundling the concurrency and
// resiliency knobs spec.md §5 ("Concurrency & Resource Model") and §6
// ("Configuration surface") call out. Mirrors the shape of
// reqbuild.Options/planner.Options: a plain struct with documented
// zero-value defaults, no builder.
type Options struct {
	// Concurrency bounds how many sub-queries are in flight at once.
	// Zero uses runtime.NumCPU() (see workerPool).
	Concurrency int
	// TableNamePrefix is forwarded to reqbuild verbatim.
	TableNamePrefix string
	// AttemptTimeout bounds a single store round-trip. Zero disables
	// the per-attempt deadline (the overall context, if any, still
	// applies).
	AttemptTimeout time.Duration
	// OverallTimeout bounds one Execute/Count call end to end. Zero
	// disables it.
	OverallTimeout time.Duration
	// MaxRetries bounds retry attempts for store.ErrThrottled and
	// store.ErrTransient failures, per spec.md §7's retriable/permanent
	// error split.
	MaxRetries int
	// InitialBackoff and MaxBackoff configure the retry schedule's
	// exponential backoff, doubling each attempt up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// CountExactThreshold bounds how many sub-queries' counts Count
	// will sum before it stops claiming the total is exact. Every
	// sub-query is still counted and summed in full regardless; past
	// the threshold the result is only flagged Approximate, since a
	// COUNT response carries no items to dedup overlapping sub-queries
	// against (spec.md §4.E "COUNT mode"). Zero means no threshold:
	// every Count is reported exact.
	CountExactThreshold int
	// Trace, if set, receives dispatch/completion notifications for
	// every call. Nil (the default) means no observation at all.
	Trace Trace
}

// DefaultOptions returns the executor's documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxRetries:     3,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     1 * time.Second,
		AttemptTimeout: 5 * time.Second,
	}
}
