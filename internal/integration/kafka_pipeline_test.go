//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-etl/internal/adapter/kafka"
	"github.com/couchcryptid/air-quality-etl/internal/adapter/store"
	"github.com/couchcryptid/air-quality-etl/internal/aqi"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
	"github.com/couchcryptid/air-quality-etl/internal/pipeline"
)

const (
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"
)

// Kafka timestamp given to every published sample.
var baseDate = time.Date(2024, time.October, 5, 9, 5, 0, 0, time.UTC)

// transformedMessage holds a deserialized message read from the sink topic.
type transformedMessage struct {
	Report  domain.AirQualityReport
	Key     string
	Headers map[string]string
}

// readTransformed reads a single message from the sink consumer and deserializes it.
func readTransformed(ctx context.Context, t *testing.T, consumer *kafkago.Reader) transformedMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var report domain.AirQualityReport
	require.NoError(t, json.Unmarshal(msg.Value, &report), "unmarshal sink message")

	return transformedMessage{
		Report:  report,
		Key:     string(msg.Key),
		Headers: headers,
	}
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (Extractor) and
// kafka.Writer (Loader) correctly round-trip a sample through Kafka.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	cfg := newKafkaConfig(ctx, t, "test-reader")

	samples := loadMockData(t)
	payload := []byte(samples[2]) // Jodhpur: satellite PM2.5 41.2, light rain
	publish(ctx, t, cfg, kafkago.Message{Key: []byte("test-key"), Value: payload, Time: baseDate})

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for len(batch) == 0 {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) == 0 && ctx.Err() != nil {
			t.Fatal("timed out waiting for sample on source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("test-key"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	report, err := pipeline.NewTransformer(nil, discardLogger()).Transform(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.AirQualityReport{report}))

	tm := readTransformed(ctx, t, sinkConsumer(t, cfg))
	assert.Equal(t, report.ID, tm.Key)
	assert.Equal(t, "Unhealthy for Sensitive Groups", tm.Headers[domain.HeaderCategory])
	_, err = time.Parse(time.RFC3339, tm.Headers[domain.HeaderProcessedAt])
	assert.NoError(t, err, "processed_at should be valid RFC3339")

	assert.Equal(t, "Jodhpur", tm.Report.SiteName)
	assert.Equal(t, aqi.Of(115), tm.Report.AQI)
	assert.True(t, tm.Report.Alert)
	assert.Equal(t, aqi.Of(70), tm.Report.Forecast.AQI)
	assert.InDelta(t, 0.7, tm.Report.Forecast.RainFactor, 1e-9)
	require.NotNil(t, tm.Report.Pollutants.PM25)
	assert.InDelta(t, 41.2, *tm.Report.Pollutants.PM25, 1e-9)
}

// TestPipelineEndToEnd runs every mock sample through Reader, Transformer and a
// fan-out to the Kafka writer and the report store.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg := newKafkaConfig(ctx, t, "test-pipeline")

	samples := loadMockData(t)
	msgs := make([]kafkago.Message, 0, len(samples))
	for i, sample := range samples {
		msgs = append(msgs, kafkago.Message{Key: []byte(fmt.Sprintf("sample-%d", i)), Value: sample, Time: baseDate})
	}
	publish(ctx, t, cfg, msgs...)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	// The samples are in the past; without an age limit none are swept on save.
	metrics := observability.NewMetricsForTesting()
	reports := store.NewMemoryStore(10, 0, clockwork.NewRealClock(), metrics, discardLogger())

	loader := pipeline.NewFanOutLoader(discardLogger(), metrics,
		pipeline.Sink{Name: "kafka", Loader: writer, Required: true},
		pipeline.Sink{Name: "store", Loader: reports, Required: true},
	)
	p := pipeline.New(reader, pipeline.NewTransformer(nil, discardLogger()), loader, discardLogger(), metrics, 50)
	stop := startPipeline(ctx, p)

	consumer := sinkConsumer(t, cfg)
	received := make([]transformedMessage, 0, len(samples))
	for len(received) < len(samples) {
		received = append(received, readTransformed(ctx, t, consumer))
	}

	// The store is loaded after Kafka within the same batch.
	require.Eventually(t, func() bool { return reports.Len() == len(samples) }, 10*time.Second, 50*time.Millisecond)
	require.NoError(t, stop())
	assert.True(t, p.Ready())

	categoryCounts := map[string]int{}
	alerts := 0
	for _, tm := range received {
		categoryCounts[string(tm.Report.Category)]++
		if tm.Report.Alert {
			alerts++
		}

		assert.Equal(t, string(tm.Report.Category), tm.Headers[domain.HeaderCategory])
		_, err := time.Parse(time.RFC3339, tm.Headers[domain.HeaderProcessedAt])
		assert.NoError(t, err, "invalid processed_at format")
		assert.Equal(t, time.Date(2024, time.October, 5, 9, 0, 0, 0, time.UTC), tm.Report.TimeBucket)
	}

	assert.Equal(t, map[string]int{
		"Good":                           2,
		"Moderate":                       1,
		"Unhealthy for Sensitive Groups": 1,
		"Unhealthy":                      1,
		"Very Unhealthy":                 1,
		"Hazardous":                      1,
		"N/A":                            2,
	}, categoryCounts)
	assert.Equal(t, 4, alerts, "alert count")

	// Spot-check the ground fallback: Kiruna has no satellite PM2.5.
	var foundGround bool
	for _, tm := range received {
		if tm.Report.SiteName != "Kiruna" {
			continue
		}
		foundGround = true
		assert.Equal(t, domain.PM25FromGround, tm.Report.PM25Source)
		assert.Equal(t, aqi.Of(50), tm.Report.AQI)
		assert.Equal(t, 1, tm.Report.Forecast.GroundSamples)
		assert.Equal(t, 0, tm.Report.Forecast.SatelliteSamples)
		break
	}
	assert.True(t, foundGround, "expected to find the Kiruna ground-only report")

	latest, err := reports.Latest(26.1965, 73.0118)
	require.NoError(t, err)
	assert.Equal(t, "Jodhpur", latest.SiteName)
	assert.Equal(t, aqi.Of(115), latest.AQI)
}

// TestPipelineTransformError verifies that an invalid message (poison pill) is
// skipped and the pipeline continues processing valid samples.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	cfg := newKafkaConfig(ctx, t, "test-poison")

	samples := loadMockData(t)
	publish(ctx, t, cfg,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{"), Time: baseDate},
		kafkago.Message{Key: []byte("good"), Value: samples[1], Time: baseDate},
	)

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, pipeline.NewTransformer(nil, discardLogger()), writer, discardLogger(), metrics, 50)
	stop := startPipeline(ctx, p)

	// Only the valid sample should appear on the sink topic.
	consumer := sinkConsumer(t, cfg)
	tm := readTransformed(ctx, t, consumer)
	assert.Equal(t, "London", tm.Report.SiteName)
	assert.Equal(t, "Moderate", tm.Headers[domain.HeaderCategory])

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no second message on sink topic")

	require.NoError(t, stop())
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.TransformErrors), 1e-9)
}
