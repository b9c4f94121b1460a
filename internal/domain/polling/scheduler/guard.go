package scheduler

import (
	"context"
	"sync"
)

// Guard is a per-account mutual exclusion lock. Every operation that uses
// or mutates an account's credentials or cursor holds it.
type Guard struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewGuard creates an empty guard
func NewGuard() *Guard {
	return &Guard{slots: make(map[string]chan struct{})}
}

// slot entries are never removed; the set of tracked accounts is small
func (g *Guard) slot(accountID string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.slots[accountID]
	if !ok {
		ch = make(chan struct{}, 1)
		g.slots[accountID] = ch
	}
	return ch
}

// TryAcquire takes the lock without waiting
func (g *Guard) TryAcquire(accountID string) bool {
	select {
	case g.slot(accountID) <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire waits for the lock until ctx is done
func (g *Guard) Acquire(ctx context.Context, accountID string) error {
	select {
	case g.slot(accountID) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release unlocks the account. Releasing an unlocked account is a no-op.
func (g *Guard) Release(accountID string) {
	select {
	case <-g.slot(accountID):
	default:
	}
}
