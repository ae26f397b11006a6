// Package llmtest provides scripted model capabilities for tests.
package llmtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// Rule answers prompts that contain Match.
type Rule struct {
	Match    string
	Response string
	Err      error
}

// Completer answers prompts from an ordered rule list and records every
// prompt it receives. Prompts matching no rule get Fallback.
type Completer struct {
	Rules    []Rule
	Fallback string
	// Delay is applied before answering and honours ctx cancellation.
	Delay time.Duration

	mu      sync.Mutex
	prompts []string
}

func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()

	if c.Delay > 0 {
		t := time.NewTimer(c.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}

	for _, r := range c.Rules {
		if strings.Contains(prompt, r.Match) {
			return r.Response, r.Err
		}
	}
	return c.Fallback, nil
}

// Prompts returns a copy of the prompts received so far.
func (c *Completer) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

// Calls returns how many prompts were received.
func (c *Completer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.prompts)
}

// Embedder returns deterministic vectors derived from the text's words, so
// texts sharing words end up closer together.
type Embedder struct {
	Dimensions int
	Err        error

	mu    sync.Mutex
	calls int
}

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}

	dims := e.Dimensions
	if dims == 0 {
		dims = 8
	}
	vec := make([]float32, dims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[int(h.Sum32())%dims]++
	}
	return vec, nil
}

// Calls returns how many texts were embedded.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
