package memory

import "context"

// Block is a long-term memory store fed with turns flushed out of the
// short-term history.
type Block interface {
	// Name tags the block's section in rendered context.
	Name() string
	// Priority orders blocks in rendered context, lowest first.
	Priority() int
	Put(ctx context.Context, sessionID string, turns []Turn) error
	// Get renders the block's content relevant to query. An empty result
	// means the block has nothing to add.
	Get(ctx context.Context, sessionID, query string) (string, error)
	Clear(ctx context.Context, sessionID string) error
}
