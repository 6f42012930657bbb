//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
)

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("air-quality-test"),
	)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err, "kafka brokers")
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer func() { _ = conn.Close() }()

	controller, err := conn.Controller()
	require.NoError(t, err, "find controller")

	ctrlConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "dial controller")
	defer func() { _ = ctrlConn.Close() }()

	require.NoError(t, ctrlConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}), "create topic %s", topic)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loadMockData reads the raw sample fixture, one payload per sample.
func loadMockData(t *testing.T) []json.RawMessage {
	t.Helper()

	data, err := os.ReadFile(filepath.Join("..", "..", "data", "mock", "air_quality_samples.json"))
	require.NoError(t, err, "read mock data")

	var samples []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &samples), "decode mock data")
	require.NotEmpty(t, samples)
	return samples
}

// newKafkaConfig starts a broker, creates the source and sink topics, and
// returns a config pointing at them with a unique consumer group.
func newKafkaConfig(ctx context.Context, t *testing.T, group string) *config.Config {
	t.Helper()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	return &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaSourceTopic:   testSourceTopic,
		KafkaSinkTopic:     testSinkTopic,
		KafkaGroupID:       fmt.Sprintf("%s-%d", group, time.Now().UnixNano()),
		BatchFlushInterval: 5 * time.Second,
	}
}

// publish writes msgs to the source topic.
func publish(ctx context.Context, t *testing.T, cfg *config.Config, msgs ...kafkago.Message) {
	t.Helper()

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(cfg.KafkaBrokers...),
		Topic: cfg.KafkaSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx, msgs...), "publish to source topic")
}

// sinkConsumer reads the sink topic from the beginning.
func sinkConsumer(t *testing.T, cfg *config.Config) *kafkago.Reader {
	t.Helper()

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// startPipeline runs p in the background. The returned function stops it and
// reports the error Run returned.
func startPipeline(ctx context.Context, p *pipeline.Pipeline) func() error {
	runCtx, cancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(runCtx) }()

	return func() error {
		cancel()
		return <-errCh
	}
}
