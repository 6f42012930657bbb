package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-etl/internal/aqi"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  interface{}
}

type fakePublisher struct {
	messages []published
	err      error
}

func (f *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.messages = append(f.messages, published{topic: topic, qos: qos, retained: retained, payload: payload})
	return &fakeToken{err: f.err}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(f float64) *float64 { return &f }

func TestSink_LoadBatch(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, "air-quality/", discardLogger())

	report := domain.AirQualityReport{
		ID:             "aq-1",
		SiteName:       "Shastri Nagar, Jodhpur",
		SiteNameSource: domain.SiteNameFromSite,
		Geo:            domain.Geo{Lat: 26.1965, Lon: 73.0118},
		Pollutants:     domain.Pollutants{PM25: ptr(41.2)},
		AQI:            aqi.Of(115),
		Category:       aqi.CategoryUnhealthyForSensitiveGroups,
		Alert:          true,
		Forecast:       domain.Forecast{PM25: 21.3024, AQI: aqi.Of(70)},
	}

	require.NoError(t, sink.LoadBatch(context.Background(), []domain.AirQualityReport{report}))
	require.Len(t, pub.messages, 2)

	state := pub.messages[0]
	assert.Equal(t, "air-quality/shastri_nagar_jodhpur/state", state.topic)
	assert.Equal(t, byte(1), state.qos)
	assert.True(t, state.retained)

	payload, ok := state.payload.([]byte)
	require.True(t, ok)
	var decoded State
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "aq-1", decoded.ReportID)
	require.NotNil(t, decoded.AQI)
	assert.Equal(t, 115, *decoded.AQI)
	require.NotNil(t, decoded.ForecastAQI)
	assert.Equal(t, 70, *decoded.ForecastAQI)
	assert.Equal(t, "Unhealthy for Sensitive Groups", decoded.Category)

	alert := pub.messages[1]
	assert.Equal(t, "air-quality/shastri_nagar_jodhpur/alert", alert.topic)
	assert.Equal(t, "ON", alert.payload)
}

func TestSink_LoadBatch_AbsentAQIIsNull(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, "aq", discardLogger())

	require.NoError(t, sink.LoadBatch(context.Background(), []domain.AirQualityReport{{ID: "aq-2", SiteName: "Garbled", Category: aqi.CategoryUnknown}}))

	payload, ok := pub.messages[0].payload.([]byte)
	require.True(t, ok)
	assert.Contains(t, string(payload), `"aqi":null`)
	assert.Equal(t, "OFF", pub.messages[1].payload)
}

func TestSink_LoadBatch_PublishErrorsJoined(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	sink := NewSink(pub, "aq", discardLogger())

	err := sink.LoadBatch(context.Background(), []domain.AirQualityReport{{ID: "a", SiteName: "A"}, {ID: "b", SiteName: "B"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "aq/a/state")
	assert.Contains(t, err.Error(), "aq/b/state")
}

func TestSink_LoadBatch_CancelledContext(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewSink(pub, "aq", discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sink.LoadBatch(ctx, []domain.AirQualityReport{{ID: "a"}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.messages)
	require.NoError(t, sink.Close())
}

func TestTopicSegment(t *testing.T) {
	tests := []struct {
		name     string
		report   domain.AirQualityReport
		expected string
	}{
		{"simple", domain.AirQualityReport{ID: "x", SiteName: "Jodhpur"}, "jodhpur"},
		{"punctuation collapses", domain.AirQualityReport{ID: "x", SiteName: "  São Paulo / #1 + Centro "}, "s_o_paulo_1_centro"},
		{"coordinates", domain.AirQualityReport{ID: "x", SiteName: "26.1965, 73.0118"}, "26_1965_73_0118"},
		{"empty falls back to id", domain.AirQualityReport{ID: "aq-9", SiteName: "!!"}, "aq-9"},
		{"unknown falls back to id", domain.AirQualityReport{ID: "aq-9", SiteName: "Unknown location", SiteNameSource: domain.SiteNameUnknown}, "aq-9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TopicSegment(tt.report))
		})
	}
}
