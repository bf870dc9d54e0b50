package txn

import (
	"context"
	"sync"

	"github.com/jacentio/arbor/operation"
	"github.com/jacentio/arbor/remote"
)

// Stack accumulates deferred operations until they are flushed together.
type Stack struct {
	mu  sync.Mutex
	ops []operation.Operation
}

// NewStack creates an empty Stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push appends ops to the stack.
func (s *Stack) Push(ops ...operation.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, ops...)
}

// Len returns the number of pending operations.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ops)
}

// Operations returns a copy of the pending operations.
func (s *Stack) Operations() []operation.Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]operation.Operation, len(s.ops))
	copy(out, s.ops)
	return out
}

// Flush compacts the pending operations and sends them through ex as one
// batch. The stack is emptied only when the flush succeeds.
func (s *Stack) Flush(ctx context.Context, ex remote.Executor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ops := operation.Compact(s.ops)
	if err := remote.Flush(ctx, ex, ops, operation.Affected(ops)); err != nil {
		return err
	}
	s.ops = nil
	return nil
}
