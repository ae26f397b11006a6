package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	inats "github.com/finbrain/finbrain/internal/nats"
	"github.com/finbrain/finbrain/internal/workflow"
)

const (
	consumerName = "orchestrator"

	publishAttempts = 3
	publishTimeout  = 5 * time.Second
)

// Runner runs research for a session. *workflow.Service implements it.
type Runner interface {
	Run(ctx context.Context, sessionID, query string) (*workflow.Result, error)
}

// AnswerPublisher publishes query outcomes.
type AnswerPublisher interface {
	PublishAnswer(ctx context.Context, msg inats.AnswerMessage) error
}

// Options tunes the consumer loop.
type Options struct {
	// Concurrency is the number of queries researched at once.
	Concurrency int
	// AckWait must exceed the run timeout, or JetStream redelivers
	// queries that are still being researched.
	AckWait time.Duration
}

// Orchestrator consumes inbound queries, validates their session, runs the
// research workflow and publishes the answers.
type Orchestrator struct {
	publisher   AnswerPublisher
	consumerMgr *inats.ConsumerManager
	validator   *Validator
	runner      Runner
	opts        Options

	// settled holds answers of researched queries by session and query ID,
	// so a redelivered query is answered again without another run.
	settled        *cache.Cache
	publishBackoff time.Duration
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	publisher AnswerPublisher,
	consumerMgr *inats.ConsumerManager,
	validator *Validator,
	runner Runner,
	opts Options,
) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	settledTTL := opts.AckWait * inats.MaxDeliver
	if settledTTL <= 0 {
		settledTTL = 10 * time.Minute
	}
	return &Orchestrator{
		publisher:      publisher,
		consumerMgr:    consumerMgr,
		validator:      validator,
		runner:         runner,
		opts:           opts,
		settled:        cache.New(settledTTL, 0),
		publishBackoff: 250 * time.Millisecond,
	}
}

// Start begins the orchestrator event loop. It returns once ctx is done and
// in-flight queries have finished.
func (o *Orchestrator) Start(ctx context.Context) error {
	consumer, err := o.consumerMgr.EnsureConsumer(ctx, inats.StreamQueries, consumerName, inats.SubjectInboundQuery, o.opts.AckWait)
	if err != nil {
		return err
	}

	slog.Info("orchestrator started", "consumer", consumerName, "concurrency", o.opts.Concurrency)

	for {
		msgs, err := consumer.Fetch(o.opts.Concurrency, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("fetching inbound queries", "error", err)
			continue
		}

		var g errgroup.Group
		for msg := range msgs.Messages() {
			g.Go(func() error {
				o.processMessage(ctx, msg)
				return nil
			})
		}
		_ = g.Wait()
		o.settled.DeleteExpired()

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (o *Orchestrator) processMessage(ctx context.Context, msg jetstream.Msg) {
	if o.handle(ctx, msg.Data()) {
		_ = msg.Ack()
		return
	}
	_ = msg.Nak()
}

// handle processes one query and reports whether it is settled. Unsettled
// queries are redelivered.
func (o *Orchestrator) handle(ctx context.Context, data []byte) bool {
	var query inats.QueryMessage
	if err := json.Unmarshal(data, &query); err != nil {
		slog.Error("unmarshaling inbound query", "error", err)
		return false
	}

	slog.Debug("orchestrator processing query", "id", query.ID)

	sessionID, err := o.validator.Validate(&query)
	if err != nil {
		slog.Warn("validation failed", "error", err, "id", query.ID)
		o.sendError(ctx, query, "", "Query not authorized or malformed")
		return true
	}

	key := sessionID + "/" + query.ID
	if cached, ok := o.settled.Get(key); ok {
		slog.Info("query already researched, publishing stored answer", "id", query.ID, "session_id", sessionID)
		return o.publish(ctx, cached.(inats.AnswerMessage))
	}

	result, err := o.runner.Run(ctx, sessionID, query.Query)
	if err != nil {
		// Shutting down: leave the query for another replica.
		if ctx.Err() != nil {
			return false
		}
		slog.Error("research run failed", "error", err, "id", query.ID, "session_id", sessionID)
		msg := "Research failed, please retry"
		if errors.Is(err, workflow.ErrTimeout) {
			msg = "Research timed out, please retry"
		}
		o.sendError(ctx, query, sessionID, msg)
		return true
	}

	answer := inats.AnswerMessage{
		ID:        uuid.New().String(),
		InReplyTo: query.ID,
		SessionID: sessionID,
		Result:    result,
	}
	o.settled.SetDefault(key, answer)
	return o.publish(ctx, answer)
}

// publish retries the answer a few times. The run that produced it has
// already been recorded in session memory, so the answer outlives ctx.
func (o *Orchestrator) publish(ctx context.Context, answer inats.AnswerMessage) bool {
	bg := context.WithoutCancel(ctx)
	for attempt := 1; ; attempt++ {
		pctx, cancel := context.WithTimeout(bg, publishTimeout)
		err := o.publisher.PublishAnswer(pctx, answer)
		cancel()
		if err == nil {
			return true
		}
		if attempt == publishAttempts {
			slog.Error("publishing answer", "error", err, "id", answer.InReplyTo, "attempts", attempt)
			return false
		}
		slog.Warn("publishing answer, retrying", "error", err, "id", answer.InReplyTo, "attempt", attempt)
		time.Sleep(o.publishBackoff * time.Duration(attempt))
	}
}

func (o *Orchestrator) sendError(ctx context.Context, query inats.QueryMessage, sessionID, errMsg string) {
	answer := inats.AnswerMessage{
		ID:        uuid.New().String(),
		InReplyTo: query.ID,
		SessionID: sessionID,
		Error:     errMsg,
	}
	if err := o.publisher.PublishAnswer(ctx, answer); err != nil {
		slog.Error("publishing error answer", "error", err)
	}
}
