package memory

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/finbrain/finbrain/internal/metrics"
)

// lockStripes is the number of session locks shared by all sessions.
const lockStripes = 64

// Registry hands out one Manager per session, sharing the configured
// stores between them. A manager unused for SessionTTL is evicted, matching
// the expiry of the session's short-term turns.
type Registry struct {
	cfg    Config
	stores Stores

	// mu makes get-or-create atomic.
	mu       sync.Mutex
	managers *cache.Cache
	locks    [lockStripes]sessionLock
	// evicting tracks background writes of evicted managers.
	evicting sync.WaitGroup
}

// NewRegistry fails with ErrStoreNotInitialized when a required store is
// missing.
func NewRegistry(cfg Config, stores Stores) (*Registry, error) {
	if stores.Turns == nil || stores.Vectors == nil {
		return nil, ErrStoreNotInitialized
	}

	idle, cleanup := cfg.SessionTTL, cfg.SessionTTL/4
	if idle <= 0 {
		idle, cleanup = cache.NoExpiration, 0
	}
	r := &Registry{cfg: cfg, stores: stores, managers: cache.New(idle, cleanup)}
	r.managers.OnEvicted(r.evicted)
	return r, nil
}

// Get returns the session's manager, creating it on first use. Every call
// restarts the manager's idle timer.
func (r *Registry) Get(sessionID string) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.managers.Get(sessionID); ok {
		m := v.(*Manager)
		r.managers.SetDefault(sessionID, m)
		return m, nil
	}

	// An expired entry the janitor has not swept yet is evicted first.
	r.managers.Delete(sessionID)

	m, err := newManager(sessionID, r.cfg, r.stores, r.lockFor(sessionID))
	if err != nil {
		return nil, err
	}
	r.managers.SetDefault(sessionID, m)
	metrics.ActiveSessions.Inc()
	return m, nil
}

// Forget clears the session's stored memory and drops its manager.
func (r *Registry) Forget(ctx context.Context, sessionID string) error {
	m, err := r.Get(sessionID)
	if err != nil {
		return err
	}
	if err := m.Clear(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.managers.Delete(sessionID)
	r.mu.Unlock()
	return nil
}

// Len returns the number of live managers, including expired ones not yet
// swept.
func (r *Registry) Len() int {
	return r.managers.ItemCount()
}

// Wait blocks until every manager's background writes finish, including
// managers evicted meanwhile.
func (r *Registry) Wait() {
	r.managers.DeleteExpired()
	for _, item := range r.managers.Items() {
		item.Object.(*Manager).Wait()
	}
	r.evicting.Wait()
}

func (r *Registry) evicted(sessionID string, v any) {
	metrics.ActiveSessions.Dec()
	m := v.(*Manager)

	r.evicting.Add(1)
	go func() {
		defer r.evicting.Done()
		m.Wait()
	}()
}

// lockFor maps a session to its stripe, so every manager of a session
// shares one lock.
func (r *Registry) lockFor(sessionID string) *sessionLock {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &r.locks[h.Sum32()%lockStripes]
}
