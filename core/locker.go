package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const defaultLockTTL = 2 * time.Minute

type MemoryIntegrationLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	nowFn func() time.Time
}

func NewMemoryIntegrationLocker() *MemoryIntegrationLocker {
	return &MemoryIntegrationLocker{
		locks: make(map[string]time.Time),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryIntegrationLocker) Acquire(_ context.Context, integrationID string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: integration locker is not configured")
	}
	integrationID = strings.TrimSpace(integrationID)
	if integrationID == "" {
		return nil, fmt.Errorf("core: integration id is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.locks[integrationID]; ok && now.Before(until) {
		return nil, fmt.Errorf("core: lock already held for integration %q: %w", integrationID, ErrSyncInFlight)
	}
	l.locks[integrationID] = now.Add(ttl)
	return &memoryLockHandle{locker: l, integrationID: integrationID}, nil
}

type memoryLockHandle struct {
	locker        *MemoryIntegrationLocker
	integrationID string
	once          sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		delete(h.locker.locks, h.integrationID)
		h.locker.mu.Unlock()
	})
	return nil
}
