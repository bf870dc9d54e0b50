// Package remote defines the collaborators that read from and write to the
// authoritative document service.
package remote

import (
	"context"
	"fmt"

	"github.com/jacentio/arbor/operation"
	"github.com/jacentio/arbor/store"
)

// Fetcher loads records from the remote service.
type Fetcher interface {
	// FetchByIDs returns the records addressed by ptrs. Absent records are
	// simply left out of the map.
	FetchByIDs(ctx context.Context, ptrs []store.Pointer) (store.RecordMap, error)

	// QueryChildren returns the non-slot children of parentID, such as the
	// row pages of a collection.
	QueryChildren(ctx context.Context, parentID string, kind store.Kind) (store.RecordMap, error)
}

// Executor flushes an ordered operation batch to the remote service.
type Executor interface {
	Flush(ctx context.Context, ops []operation.Operation, affected []store.Pointer) error
}

// FlushError reports a failed flush. The local store has already applied the
// operations, so it may be ahead of the remote service.
type FlushError struct {
	Operations []operation.Operation
	Affected   []store.Pointer
	Err        error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("arbor: flush of %d operations failed: %v", len(e.Operations), e.Err)
}

func (e *FlushError) Unwrap() error {
	return e.Err
}

// Flush sends ops through ex, wrapping any failure in a *FlushError.
func Flush(ctx context.Context, ex Executor, ops []operation.Operation, affected []store.Pointer) error {
	if len(ops) == 0 {
		return nil
	}
	if err := ex.Flush(ctx, ops, affected); err != nil {
		return &FlushError{Operations: ops, Affected: affected, Err: err}
	}
	return nil
}
