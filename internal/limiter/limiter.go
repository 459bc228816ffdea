// Package limiter defines login attempt throttling used by the session layer.
package limiter

import (
	"context"
	"sync"
	"time"
)

// Limiter controls login attempts and temporary lockouts per account.
type Limiter interface {
	// Allow reports whether login is currently allowed and optional retry-after.
	Allow(ctx context.Context, account string) (bool, time.Duration, error)
	// Success resets counters after a successful login.
	Success(ctx context.Context, account string) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, account string) (bool, time.Duration, error)
}

type counter struct {
	fails        int
	blockedUntil time.Time
	updatedAt    time.Time
}

// Memory is an in-process limiter with sliding window and lockout,
// sized for a single-device session.
type Memory struct {
	window   time.Duration
	maxFails int
	blockFor time.Duration

	mu  sync.Mutex
	acc map[string]*counter
	now func() time.Time
}

// NewMemory constructs an in-process limiter.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	return &Memory{
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		acc:      make(map[string]*counter),
		now:      time.Now,
	}
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *Memory) Allow(_ context.Context, account string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.acc[account]
	if !ok {
		return true, 0, nil
	}
	now := l.now()
	if c.blockedUntil.After(now) {
		return false, c.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success resets counters for the account.
func (l *Memory) Success(_ context.Context, account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.acc, account)
	return nil
}

// Failure records a failed attempt; may set a block until a future time.
func (l *Memory) Failure(_ context.Context, account string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	c, ok := l.acc[account]
	if !ok || now.Sub(c.updatedAt) > l.window {
		c = &counter{}
		l.acc[account] = c
	}
	c.fails++
	c.updatedAt = now
	if c.fails >= l.maxFails {
		c.blockedUntil = now.Add(l.blockFor)
		return true, l.blockFor, nil
	}
	return false, 0, nil
}
