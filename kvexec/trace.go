package kvexec

import "github.com/google/uuid"

// Trace is an optional, injectable observation hook for one Execute or
// Count call, mirroring the teacher's annotation callback
// (datalog/annotations.Handler / executor.Context): the executor never
// logs directly, it only reports through this interface when a caller
// supplies one (spec.md §1 Non-goals excludes logging infrastructure
// as a feature, but the ambient hook for wiring one in is kept, the
// same shape the teacher carries).
type Trace interface {
	// QueryDispatched fires once per sub-query request sent to the
	// store.
	QueryDispatched(requestID uuid.UUID, subQuery string)
	// PageFetched fires once a sub-query's store round-trip returns.
	PageFetched(requestID uuid.UUID, subQuery string, itemCount int)
	// QueryComplete fires once per Execute/Count call, after merging.
	QueryComplete(requestID uuid.UUID, itemCount int, cursor string)
}

type noopTrace struct{}

func (noopTrace) QueryDispatched(uuid.UUID, string)           {}
func (noopTrace) PageFetched(uuid.UUID, string, int)          {}
func (noopTrace) QueryComplete(uuid.UUID, int, string)        {}

func (e *Executor) trace() Trace {
	if e.opts.Trace != nil {
		return e.opts.Trace
	}
	return noopTrace{}
}
