package notify_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkacontainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/dcsp-io/dcsp/internal/notify"
)

func TestProducerIntegration_PublishesToRealBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := kafkacontainer.Run(ctx, "confluentinc/confluent-local:7.6.0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	const topic = "dataset.snapshots"

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	producer := notify.NewProducer(brokers, topic, logger)
	t.Cleanup(func() { _ = producer.Close() })

	producer.PublishSnapshotWritten(ctx, notify.SnapshotWrittenEvent{
		DatasetID:   "ds-integration",
		Version:     1,
		RecordCount: 100,
		SnapshotAt:  time.Now().UTC(),
	})

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  "dcsp-notify-test",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	t.Cleanup(func() { _ = reader.Close() })

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err)
	require.Equal(t, "ds-integration", string(msg.Key))
}
