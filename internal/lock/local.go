package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalLocker is the in-process fallback used when the shared store is
// unreachable. It excludes goroutines within one process only; two
// processes using LocalLocker can both hold the "same" lock. Callers
// must treat its guarantees as strictly weaker than SQLLocker's, which
// is why Mode() reports "local".
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]localEntry
}

type localEntry struct {
	owner     string
	expiresAt time.Time
}

// NewLocalLocker creates an empty process-scoped locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]localEntry)}
}

// Mode implements Locker.
func (l *LocalLocker) Mode() string { return "local" }

// Acquire implements Locker.
func (l *LocalLocker) Acquire(_ context.Context, name string, ttl time.Duration) (AcquireResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if entry, ok := l.locks[name]; ok && entry.expiresAt.After(now) {
		return AcquireResult{Reason: ReasonBusy}, nil
	}
	token := uuid.New().String()
	l.locks[name] = localEntry{owner: token, expiresAt: now.Add(ttl)}
	return AcquireResult{Granted: true, Token: token}, nil
}

// Extend implements Locker.
func (l *LocalLocker) Extend(_ context.Context, name, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[name]
	if !ok || entry.owner != token || !entry.expiresAt.After(time.Now()) {
		return false, nil
	}
	entry.expiresAt = time.Now().Add(ttl)
	l.locks[name] = entry
	return true, nil
}

// Release implements Locker.
func (l *LocalLocker) Release(_ context.Context, name, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.locks[name]; ok && entry.owner == token {
		delete(l.locks, name)
	}
	return nil
}
