package kafka

import (
	"context"
	"log/slog"
	"sort"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer the Writer depends on.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces report messages to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes reports to the sink topic in a single
// WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, reports []domain.AirQualityReport) error {
	if len(reports) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(reports))
	for i := range reports {
		out, err := domain.SerializeReport(reports[i])
		if err != nil {
			return err
		}
		msgs[i] = toMessage(out)
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}
	w.logger.Debug("reports published", "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// toMessage converts an OutputEvent into a Kafka message with headers in
// key order.
func toMessage(out domain.OutputEvent) kafkago.Message {
	keys := make([]string, 0, len(out.Headers))
	for k := range out.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	headers := make([]kafkago.Header, 0, len(keys))
	for _, k := range keys {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(out.Headers[k])})
	}
	return kafkago.Message{Key: out.Key, Value: out.Value, Headers: headers}
}
