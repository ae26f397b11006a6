//go:build integration

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/finbrain/finbrain/internal/config"
	inats "github.com/finbrain/finbrain/internal/nats"
	"github.com/finbrain/finbrain/internal/workflow"
)

func setupNATSContainer(t *testing.T) *inats.Client {
	t.Helper()
	ctx := context.Background()

	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2-alpine",
			ExposedPorts: []string{"4222/tcp"},
			Cmd:          []string{"--jetstream", "--store_dir", "/data"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { natsContainer.Terminate(ctx) })

	host, _ := natsContainer.Host(ctx)
	port, _ := natsContainer.MappedPort(ctx, "4222")

	client, err := inats.NewClient(ctx, config.NATSConfig{
		URL: fmt.Sprintf("nats://%s:%s", host, port.Port()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestOrchestratorFlow(t *testing.T) {
	client := setupNATSContainer(t)
	ctx := context.Background()
	require.True(t, client.Healthy())

	tokens, access := newTokens(t)
	publisher := inats.NewPublisher(client.JetStream())
	consumerMgr := inats.NewConsumerManager(client.JetStream())
	runner := &fakeRunner{result: &workflow.Result{Answer: "Rates rose.", OriginalQuery: "Why did yields climb?"}}

	orch := NewOrchestrator(publisher, consumerMgr, NewValidator(tokens), runner, Options{Concurrency: 2, AckWait: time.Minute})

	orchCtx, orchCancel := context.WithCancel(ctx)
	defer orchCancel()
	orchDone := make(chan error, 1)
	go func() { orchDone <- orch.Start(orchCtx) }()

	answers, err := consumerMgr.EnsureConsumer(ctx, inats.StreamAnswers, "test-answers", inats.SubjectOutboundAnswer, 0)
	require.NoError(t, err)

	require.NoError(t, publisher.PublishQuery(ctx, inats.QueryMessage{
		ID:           "q-1",
		SessionToken: access,
		Query:        "Why did yields climb?",
		ReceivedAt:   time.Now().UTC(),
	}))

	var got struct {
		InReplyTo string          `json:"in_reply_to"`
		SessionID string          `json:"session_id"`
		Result    workflow.Result `json:"result"`
		Error     string          `json:"error"`
	}
	require.Eventually(t, func() bool {
		msgs, err := answers.Fetch(1, jetstream.FetchMaxWait(time.Second))
		if err != nil {
			return false
		}
		for m := range msgs.Messages() {
			_ = m.Ack()
			if json.Unmarshal(m.Data(), &got) == nil {
				return true
			}
		}
		return false
	}, 20*time.Second, 100*time.Millisecond)

	assert.Equal(t, "q-1", got.InReplyTo)
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, "Rates rose.", got.Result.Answer)
	assert.Empty(t, got.Error)

	orchCancel()
	select {
	case err := <-orchDone:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("orchestrator did not stop")
	}
}

func TestRunEvents_PublishesToStream(t *testing.T) {
	client := setupNATSContainer(t)
	ctx := context.Background()

	events := NewRunEvents(inats.NewPublisher(client.JetStream()))
	events.StageFinished(ctx, workflow.RunInfo{RunID: "run-9", SessionID: "sess-9"}, workflow.StageEvent{
		Stage:    workflow.StageSynthesizeAnswer,
		Kind:     workflow.KindAnswer,
		Duration: 40 * time.Millisecond,
	})

	consumer, err := inats.NewConsumerManager(client.JetStream()).EnsureConsumer(ctx, inats.StreamEvents, "test-events", inats.SubjectRunEvent, 0)
	require.NoError(t, err)

	msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
	require.NoError(t, err)

	var received inats.RunEvent
	for m := range msgs.Messages() {
		require.NoError(t, json.Unmarshal(m.Data(), &received))
		_ = m.Ack()
	}
	assert.Equal(t, "run-9", received.RunID)
	assert.Equal(t, "synthesize_answer", received.Stage)
	assert.Equal(t, "ok", received.Status)
}
