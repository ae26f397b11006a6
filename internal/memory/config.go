package memory

import "time"

// Config holds the token budget and long-term limits shared by all sessions.
type Config struct {
	// TokenLimit is the overall memory budget in tokens.
	TokenLimit int
	// ChatHistoryTokenRatio is the share of TokenLimit kept as short-term turns.
	ChatHistoryTokenRatio float64
	// TokenFlushSize is the minimum number of tokens moved to long-term
	// memory in one flush.
	TokenFlushSize int
	MaxFacts       int
	SessionTTL     time.Duration
	VectorTopK     int
}

func DefaultConfig() Config {
	return Config{
		TokenLimit:            30000,
		ChatHistoryTokenRatio: 0.02,
		TokenFlushSize:        500,
		MaxFacts:              50,
		SessionTTL:            24 * time.Hour,
		VectorTopK:            3,
	}
}

// ShortTermBudget is the number of tokens short-term turns may occupy
// before the oldest are flushed.
func (c Config) ShortTermBudget() int {
	return int(float64(c.TokenLimit) * c.ChatHistoryTokenRatio)
}

// EstimateTokens approximates the token count of s at four characters per
// token, rounding up.
func EstimateTokens(s string) int {
	n := len([]rune(s))
	return (n + 3) / 4
}
