package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/finbrain/finbrain/internal/metrics"
)

// longTermWriteTimeout bounds one background write to the long-term blocks.
const longTermWriteTimeout = 2 * time.Minute

// Stores are the backends a Manager reads and writes. Turns and Vectors are
// required; Facts may be nil.
type Stores struct {
	Turns   TurnStore
	Facts   Block
	Vectors Block
}

// Manager is the conversational memory of one session: a token-bounded
// short-term history in front of long-term fact and vector blocks.
type Manager struct {
	sessionID string
	cfg       Config
	turns     TurnStore
	vectors   Block
	blocks    []Block

	// lock is shared by every Manager a Registry creates for the session, so
	// a manager replaced after eviction still writes in turn.
	lock *sessionLock
	wg   sync.WaitGroup
	now  func() time.Time
}

// sessionLock serializes the writes of one session.
type sessionLock struct {
	// record makes each user/assistant pair written and flushed as one unit.
	record   sync.Mutex
	// longTerm keeps background long-term writes in order.
	longTerm sync.Mutex
}

// NewManager returns ErrStoreNotInitialized when the short-term or vector
// store is missing.
func NewManager(sessionID string, cfg Config, stores Stores) (*Manager, error) {
	return newManager(sessionID, cfg, stores, &sessionLock{})
}

func newManager(sessionID string, cfg Config, stores Stores, lock *sessionLock) (*Manager, error) {
	if stores.Turns == nil || stores.Vectors == nil {
		return nil, ErrStoreNotInitialized
	}

	blocks := []Block{stores.Vectors}
	if stores.Facts != nil {
		blocks = append(blocks, stores.Facts)
	}
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Priority() < blocks[j].Priority() })

	return &Manager{
		sessionID: sessionID,
		cfg:       cfg,
		turns:     stores.Turns,
		vectors:   stores.Vectors,
		blocks:    blocks,
		lock:      lock,
		now:       time.Now,
	}, nil
}

func (m *Manager) SessionID() string { return m.sessionID }

// GetContext renders memory using the latest user turn as the recall query.
func (m *Manager) GetContext(ctx context.Context) string {
	turns, err := m.turns.List(ctx, m.sessionID)
	if err != nil {
		slog.Warn("reading short-term memory", "session_id", m.sessionID, "error", err)
		return ""
	}
	query := ""
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			query = turns[i].Content
			break
		}
	}
	return m.render(ctx, turns, query)
}

// ContextFor renders memory recalled for query. It never fails: any error
// is logged and yields an empty string.
func (m *Manager) ContextFor(ctx context.Context, query string) string {
	turns, err := m.turns.List(ctx, m.sessionID)
	if err != nil {
		slog.Warn("reading short-term memory", "session_id", m.sessionID, "error", err)
		return ""
	}
	return m.render(ctx, turns, query)
}

func (m *Manager) render(ctx context.Context, turns []Turn, query string) string {
	var sections []string
	for _, b := range m.blocks {
		content, err := b.Get(ctx, m.sessionID, query)
		if err != nil {
			slog.Warn("reading memory block", "session_id", m.sessionID, "block", b.Name(), "error", err)
			return ""
		}
		if content = strings.TrimSpace(content); content != "" {
			sections = append(sections, fmt.Sprintf("<%s>\n%s\n</%s>", b.Name(), content, b.Name()))
		}
	}

	var parts []string
	if len(sections) > 0 {
		parts = append(parts, "<memory>\n"+strings.Join(sections, "\n")+"\n</memory>")
	}
	if len(turns) > 0 {
		parts = append(parts, formatTurns(turns))
	}
	return strings.Join(parts, "\n\n")
}

// Record appends one user/assistant pair to short-term memory, flushing the
// oldest pairs when the short-term budget is exceeded. Long-term writes run
// in the background; Wait blocks until they finish.
func (m *Manager) Record(ctx context.Context, user, assistant string) error {
	now := m.now()
	pair := []Turn{
		{Role: RoleUser, Content: user, Timestamp: now},
		{Role: RoleAssistant, Content: assistant, Timestamp: now},
	}

	m.lock.record.Lock()
	defer m.lock.record.Unlock()

	if err := m.turns.Append(ctx, m.sessionID, pair, m.cfg.SessionTTL); err != nil {
		return fmt.Errorf("appending turns: %w", err)
	}

	flushed, err := m.flush(ctx)
	if err != nil {
		slog.Warn("flushing short-term memory", "session_id", m.sessionID, "error", err)
	}

	m.writeLongTerm(ctx, pair, flushed)
	return nil
}

// flush drops the oldest whole pairs once short-term turns exceed the
// budget. It stops when at least TokenFlushSize tokens are gone and the rest
// fits the budget, or when only the newest pair remains. The dropped turns
// are returned.
func (m *Manager) flush(ctx context.Context) ([]Turn, error) {
	turns, err := m.turns.List(ctx, m.sessionID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, t := range turns {
		total += t.tokens()
	}
	if total <= m.cfg.ShortTermBudget() {
		return nil, nil
	}

	n, removed := 0, 0
	for len(turns)-n > 2 {
		removed += turns[n].tokens() + turns[n+1].tokens()
		n += 2
		if removed >= m.cfg.TokenFlushSize && total-removed <= m.cfg.ShortTermBudget() {
			break
		}
	}
	if n == 0 {
		return nil, nil
	}

	if err := m.turns.DropOldest(ctx, m.sessionID, n); err != nil {
		return nil, err
	}
	slog.Debug("flushed short-term memory", "session_id", m.sessionID, "turns", n, "tokens", removed)
	return turns[:n], nil
}

func (m *Manager) writeLongTerm(ctx context.Context, pair, flushed []Turn) {
	bg := context.WithoutCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.lock.longTerm.Lock()
		defer m.lock.longTerm.Unlock()

		wctx, cancel := context.WithTimeout(bg, longTermWriteTimeout)
		defer cancel()

		m.put(wctx, m.vectors, pair)
		if len(flushed) == 0 {
			return
		}
		for _, b := range m.blocks {
			if b == m.vectors {
				continue
			}
			m.put(wctx, b, flushed)
		}
	}()
}

func (m *Manager) put(ctx context.Context, b Block, turns []Turn) {
	if err := b.Put(ctx, m.sessionID, turns); err != nil {
		metrics.MemoryWritesTotal.WithLabelValues(b.Name(), "error").Inc()
		slog.Error("writing long-term memory", "session_id", m.sessionID, "block", b.Name(), "error", err)
		return
	}
	metrics.MemoryWritesTotal.WithLabelValues(b.Name(), "success").Inc()
}

// Snapshot returns the session's short-term turns and rendered context.
func (m *Manager) Snapshot(ctx context.Context) (Snapshot, error) {
	turns, err := m.turns.List(ctx, m.sessionID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("reading short-term memory: %w", err)
	}
	tokens := 0
	for _, t := range turns {
		tokens += t.tokens()
	}
	return Snapshot{
		SessionID: m.sessionID,
		Turns:     turns,
		Tokens:    tokens,
		Context:   m.GetContext(ctx),
	}, nil
}

// Clear forgets everything stored for the session.
func (m *Manager) Clear(ctx context.Context) error {
	m.Wait()

	m.lock.record.Lock()
	defer m.lock.record.Unlock()

	if err := m.turns.Clear(ctx, m.sessionID); err != nil {
		return fmt.Errorf("clearing short-term memory: %w", err)
	}
	for _, b := range m.blocks {
		if err := b.Clear(ctx, m.sessionID); err != nil {
			return fmt.Errorf("clearing %s: %w", b.Name(), err)
		}
	}
	return nil
}

// Wait blocks until pending long-term writes finish.
func (m *Manager) Wait() {
	m.wg.Wait()
}
