// Package lock serializes sync runs per source sheet.
//
// Runs for different sheets proceed concurrently; a second run for a sheet
// that is already syncing fails fast with apperrors.ErrLocked rather than
// queueing, so two writers never interleave on the same idempotency keys.
package lock

import (
	"context"
	"sync"

	"github.com/ginjaninja78/sheet-sync/internal/apperrors"
)

// Locker grants exclusive ownership of a key. The returned release func is
// idempotent.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Local is an in-process keyed lock.
type Local struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocal creates an in-process locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]bool)}
}

// Acquire takes the key or returns ErrLocked when it is already held.
func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] {
		return nil, apperrors.ErrLocked
	}
	l.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}
