//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "hemolink/pkg/platform/audit"
	auditkafka "hemolink/pkg/platform/audit/publishers/kafka"
	"hemolink/pkg/testutil/containers"
)

func TestPublisherProducesToTopic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	redpanda := containers.GetManager().GetRedpanda(t)

	const topic = "hemolink.audit.test"
	pub, err := auditkafka.New(ctx, redpanda.Brokers, topic)
	require.NoError(t, err)

	event := audit.Event{
		Category:  audit.CategoryCompliance,
		Timestamp: time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC),
		Actor:     "staff-1",
		Subject:   "req-42",
		Action:    string(audit.EventRequestFulfilled),
		RequestID: "trace-1",
	}
	require.NoError(t, pub.Emit(ctx, event))
	pub.Close() // flushes

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(fetchCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, "req-42", string(records[0].Key))

	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, event.Action, got.Action)
	require.Equal(t, event.Actor, got.Actor)
	require.Equal(t, audit.CategoryCompliance, got.Category)
}

func TestNewValidatesArguments(t *testing.T) {
	ctx := context.Background()

	_, err := auditkafka.New(ctx, nil, "topic")
	require.Error(t, err)

	_, err = auditkafka.New(ctx, []string{"localhost:9092"}, "")
	require.Error(t, err)
}
