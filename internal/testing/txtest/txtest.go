// Package txtest provides a transactor for in-memory fakes.
package txtest

import (
	"context"
	"sync"
)

type heldKey struct{}

// SerialTx runs every unit of work under one mutex, standing in for the row lock a database
// transaction would take. Nested calls join the outer unit. Calls counts top-level units.
type SerialTx struct {
	mu    sync.Mutex
	calls int
}

// WithinTx runs fn while holding the lock.
func (s *SerialTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(heldKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return fn(context.WithValue(ctx, heldKey{}, struct{}{}))
}

// Calls returns how many top-level units ran.
func (s *SerialTx) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
