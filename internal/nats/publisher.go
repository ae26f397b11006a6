package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishQuery submits a research query for orchestrator processing. The
// query ID is the JetStream message ID, so resubmitting it is a no-op.
func (p *Publisher) PublishQuery(ctx context.Context, msg QueryMessage) error {
	return p.publish(ctx, SubjectInboundQuery, msg, jetstream.WithMsgID(msg.ID))
}

// PublishAnswer publishes the outcome of a query, deduplicated by answer ID.
func (p *Publisher) PublishAnswer(ctx context.Context, msg AnswerMessage) error {
	return p.publish(ctx, SubjectOutboundAnswer, msg, jetstream.WithMsgID(msg.ID))
}

// PublishRunEvent publishes a workflow stage event.
func (p *Publisher) PublishRunEvent(ctx context.Context, event RunEvent) error {
	return p.publish(ctx, SubjectRunEvent, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any, opts ...jetstream.PublishOpt) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload, opts...)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
