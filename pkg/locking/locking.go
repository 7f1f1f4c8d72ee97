// Package locking serializes operations that must not run concurrently
// across admins, such as two cascades of the same business.
package locking

import (
	"context"
	"errors"
	"sync"
)

var ErrLocked = errors.New("operation already in progress")

type Locker interface {
	// WithLock runs fn while holding key, or returns ErrLocked when another
	// holder has it.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Noop runs fn without any exclusion.
type Noop struct{}

func (Noop) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Local excludes holders within one process.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: map[string]struct{}{}}
}

func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if _, ok := l.held[key]; ok {
		l.mu.Unlock()
		return ErrLocked
	}
	l.held[key] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()

	return fn(ctx)
}

func CascadeKey(businessID string) string {
	return "cascade:" + businessID
}

const DuplicateScanKey = "duplicate-scan"
