// Package store declares the collaborator contract kvexec issues
// rendered requests against: a thin seam between reqbuild's
// DynamoDB-shaped requests and whatever backend actually serves them
// (a live DynamoDB table, a local badger-backed stand-in for tests, or
// a mock). This is the Go-native analogue of the teacher's
// executor.PatternMatcher (datalog/executor/interfaces.go): one small
// interface the executor depends on, satisfied by a concrete adapter
// elsewhere in the tree.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Result is one store round-trip's outcome.
type Result struct {
	Items            []map[string]types.AttributeValue
	LastEvaluatedKey map[string]types.AttributeValue
	Count            int
}

// Store is the collaborator contract kvexec depends on (spec.md §4.E,
// §5 "suspension points are the store round-trips").
type Store interface {
	Query(ctx context.Context, in *dynamodb.QueryInput) (*Result, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput) (*Result, error)
	// SupportsFeature reports whether a named capability (typically a
	// GSI) exists on this deployment (spec.md §5 "Feature gating").
	SupportsFeature(ctx context.Context, featureID string) (bool, error)
}

// Sentinel error kinds (spec.md §7 "Error handling design"). Store
// implementations should wrap one of these with fmt.Errorf("%w", ...)
// rather than returning ad-hoc error types, so kvexec's retry and
// cancellation policy can dispatch on errors.Is.
var (
	// ErrThrottled marks a retriable rate-limit rejection from the
	// store (e.g. DynamoDB ProvisionedThroughputExceededException).
	ErrThrottled = errors.New("store: throttled")
	// ErrTransient marks a retriable transport-level failure.
	ErrTransient = errors.New("store: transient error")
	// ErrUnsupportedFeature marks a request against a feature the
	// store deployment doesn't have (spec.md §5 "UnsupportedOperation").
	ErrUnsupportedFeature = errors.New("store: unsupported feature")
)

// FeatureProbe memoizes SupportsFeature results process-wide, adapted
// from the teacher's planner.PlanCache shape (datalog/planner/cache.go):
// a mutex-guarded map, but with no TTL or eviction, since feature
// support is a deployment property that does not change within a
// process lifetime (spec.md §5 "caches the answer process-wide").
type FeatureProbe struct {
	mu      sync.RWMutex
	results map[string]bool
	inner   Store
}

// NewFeatureProbe wraps a Store so repeated SupportsFeature calls for
// the same featureID hit the underlying store only once.
func NewFeatureProbe(inner Store) *FeatureProbe {
	return &FeatureProbe{results: map[string]bool{}, inner: inner}
}

// Supports reports whether featureID is available, consulting the
// underlying store only on first use.
func (f *FeatureProbe) Supports(ctx context.Context, featureID string) (bool, error) {
	f.mu.RLock()
	cached, ok := f.results[featureID]
	f.mu.RUnlock()
	if ok {
		return cached, nil
	}

	supported, err := f.inner.SupportsFeature(ctx, featureID)
	if err != nil {
		return false, err
	}

	f.mu.Lock()
	f.results[featureID] = supported
	f.mu.Unlock()
	return supported, nil
}

// RequireFeature returns ErrUnsupportedFeature (wrapped with the
// feature id) if featureID is not available.
func (f *FeatureProbe) RequireFeature(ctx context.Context, featureID string) error {
	ok, err := f.Supports(ctx, featureID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedFeature, featureID)
	}
	return nil
}
