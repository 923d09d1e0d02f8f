package kvexec

import (
	"context"
	"runtime"
	"sync"
)

// workerPool runs one operation over a slice of inputs with bounded
// concurrency, order-preserving results. Adapted from the teacher's
// executor.WorkerPool (datalog/executor/worker_pool.go): same
// job-channel fan-out over a fixed worker count defaulting to
// runtime.NumCPU(), but parameterized over context.Context instead of
// the teacher's annotation-tracing Context, since sub-query dispatch
// here needs real cancellation (spec.md §5), not tracing hooks.
type workerPool struct {
	workerCount int
}

func newWorkerPool(workerCount int) *workerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &workerPool{workerCount: workerCount}
}

// run executes operation(ctx, inputs[i]) for every i, returning
// results in input order. It stops dispatching new work once ctx is
// done, though in-flight operations are not interrupted mid-call —
// callers pass ctx through to their own blocking calls for that.
func (p *workerPool) run(ctx context.Context, n int, operation func(ctx context.Context, i int) (interface{}, error)) ([]interface{}, []error) {
	results := make([]interface{}, n)
	errs := make([]error, n)
	if n == 0 {
		return results, errs
	}

	jobs := make(chan int, n)
	workers := p.workerCount
	if workers > n {
		workers = n
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				select {
				case <-ctx.Done():
					errs[idx] = ctx.Err()
					continue
				default:
				}
				result, err := operation(ctx, idx)
				results[idx] = result
				errs[idx] = err
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results, errs
}
