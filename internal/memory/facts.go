package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/finbrain/finbrain/internal/llm"
	"github.com/finbrain/finbrain/internal/textparse"
)

// FactRepository persists extracted facts per session.
type FactRepository interface {
	List(ctx context.Context, sessionID string) ([]Fact, error)
	Add(ctx context.Context, sessionID string, contents []string) error
	Replace(ctx context.Context, sessionID string, contents []string) error
	Clear(ctx context.Context, sessionID string) error
}

const extractFactsPrompt = `You are extracting durable facts about a user from their conversation with a financial research assistant.
Only record facts worth remembering across questions: holdings, interests, preferences, constraints and stated goals.
Do not repeat any fact listed under Known Facts.

Known Facts:
%s

Conversation:
%s

List each new fact on its own line starting with "- ". If there are no new facts, reply with "NONE".`

const condenseFactsPrompt = `The following facts about a user have grown too long.
Merge duplicates and drop the least important so that at most %d facts remain.

Facts:
%s

List each remaining fact on its own line starting with "- ".`

// FactBlock extracts facts from flushed turns with a completer and keeps at
// most maxFacts per session.
type FactBlock struct {
	repo      FactRepository
	completer llm.Completer
	maxFacts  int
}

func NewFactBlock(repo FactRepository, completer llm.Completer, maxFacts int) *FactBlock {
	if maxFacts < 1 {
		maxFacts = 1
	}
	return &FactBlock{repo: repo, completer: completer, maxFacts: maxFacts}
}

func (b *FactBlock) Name() string  { return "extracted_facts" }
func (b *FactBlock) Priority() int { return 1 }

func (b *FactBlock) Put(ctx context.Context, sessionID string, turns []Turn) error {
	if len(turns) == 0 {
		return nil
	}

	known, err := b.repo.List(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("listing facts: %w", err)
	}

	resp, err := b.completer.Complete(ctx, fmt.Sprintf(extractFactsPrompt, bulletList(known), formatTurns(turns)))
	if err != nil {
		return fmt.Errorf("extracting facts: %w", err)
	}
	extracted := textparse.BulletItems(resp)
	if len(extracted) == 0 {
		return nil
	}
	if err := b.repo.Add(ctx, sessionID, extracted); err != nil {
		return fmt.Errorf("storing facts: %w", err)
	}

	if len(known)+len(extracted) <= b.maxFacts {
		return nil
	}
	return b.condense(ctx, sessionID)
}

// condense asks the model to shrink the fact list. Whatever the model
// returns, only the newest maxFacts entries are kept.
func (b *FactBlock) condense(ctx context.Context, sessionID string) error {
	all, err := b.repo.List(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("listing facts: %w", err)
	}

	contents := factContents(all)
	resp, err := b.completer.Complete(ctx, fmt.Sprintf(condenseFactsPrompt, b.maxFacts, bulletList(all)))
	if err != nil {
		slog.Warn("condensing facts failed, dropping oldest", "session_id", sessionID, "error", err)
	} else if condensed := textparse.BulletItems(resp); len(condensed) > 0 {
		contents = condensed
	}

	if len(contents) > b.maxFacts {
		contents = contents[len(contents)-b.maxFacts:]
	}
	if err := b.repo.Replace(ctx, sessionID, contents); err != nil {
		return fmt.Errorf("replacing facts: %w", err)
	}
	return nil
}

func (b *FactBlock) Get(ctx context.Context, sessionID, _ string) (string, error) {
	facts, err := b.repo.List(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("listing facts: %w", err)
	}
	if len(facts) == 0 {
		return "", nil
	}
	return bulletList(facts), nil
}

func (b *FactBlock) Clear(ctx context.Context, sessionID string) error {
	return b.repo.Clear(ctx, sessionID)
}

func factContents(facts []Fact) []string {
	out := make([]string, len(facts))
	for i, f := range facts {
		out[i] = f.Content
	}
	return out
}

func bulletList(facts []Fact) string {
	if len(facts) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, f := range facts {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(f.Content)
	}
	return b.String()
}
