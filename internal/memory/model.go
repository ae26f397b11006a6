package memory

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrStoreNotInitialized is returned when a Manager is built without its
// durable stores.
var ErrStoreNotInitialized = errors.New("memory store not initialized")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single message in the short-term conversation history.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (t Turn) tokens() int {
	return EstimateTokens(t.Content)
}

// Fact is one extracted long-term fact.
type Fact struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// VectorEntry is one embedded piece of past conversation.
type VectorEntry struct {
	ID        string
	SessionID string
	Content   string
	Embedding []float32
}

// Snapshot is a read-only view of a session's memory.
type Snapshot struct {
	SessionID string `json:"session_id"`
	Turns     []Turn `json:"turns"`
	Tokens    int    `json:"tokens"`
	Context   string `json:"context"`
}

// formatTurns renders turns one per line as "role: content".
func formatTurns(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", t.Role, t.Content)
	}
	return b.String()
}
