// Package mqtt publishes report summaries to an MQTT broker as retained
// messages, one topic tree per monitoring site.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

const publishTimeout = 5 * time.Second

// Publisher is the subset of paho.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// Sink publishes each report's state under <prefix>/<site>/state and its
// alert flag under <prefix>/<site>/alert.
// It implements pipeline.BatchLoader.
type Sink struct {
	client     Publisher
	prefix     string
	logger     *slog.Logger
	disconnect func()
}

// State is the retained JSON payload published per site.
type State struct {
	ReportID     string    `json:"report_id"`
	Site         string    `json:"site"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	PM25         *float64  `json:"pm25"`
	AQI          *int      `json:"aqi"`
	Category     string    `json:"category"`
	Alert        bool      `json:"alert"`
	ForecastPM25 float64   `json:"forecast_pm25"`
	ForecastAQI  *int      `json:"forecast_aqi"`
	ObservedAt   time.Time `json:"observed_at"`
}

// Connect dials the configured broker and returns a connected Sink.
func Connect(cfg config.MQTTConfig, logger *slog.Logger) (*Sink, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.BrokerHost, cfg.BrokerPort))
	if cfg.Username != "" && cfg.Password != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.OnConnect = func(c paho.Client) {
		r := c.OptionsReader()
		logger.Info("connected to mqtt broker", "servers", fmt.Sprint(r.Servers()))
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Error("mqtt connection lost", "error", err)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(publishTimeout) {
		return nil, errors.New("mqtt connect: timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	s := NewSink(client, cfg.TopicPrefix, logger)
	s.disconnect = func() { client.Disconnect(250) }
	return s, nil
}

// NewSink wraps an already connected publisher.
func NewSink(client Publisher, prefix string, logger *slog.Logger) *Sink {
	return &Sink{client: client, prefix: strings.TrimSuffix(prefix, "/"), logger: logger}
}

// LoadBatch publishes every report and returns the joined publish errors.
func (s *Sink) LoadBatch(ctx context.Context, reports []domain.AirQualityReport) error {
	var errs []error
	for i := range reports {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.publishReport(reports[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Sink) publishReport(r domain.AirQualityReport) error {
	base := s.prefix + "/" + TopicSegment(r)

	payload, err := json.Marshal(StateOf(r))
	if err != nil {
		return fmt.Errorf("marshal mqtt state: %w", err)
	}
	if err := s.publish(base+"/state", payload); err != nil {
		return err
	}

	alert := "OFF"
	if r.Alert {
		alert = "ON"
	}
	if err := s.publish(base+"/alert", alert); err != nil {
		return err
	}
	s.logger.Debug("report published to mqtt", "topic", base, "report_id", r.ID)
	return nil
}

func (s *Sink) publish(topic string, payload interface{}) error {
	token := s.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker when the sink owns the connection.
func (s *Sink) Close() error {
	if s.disconnect != nil {
		s.disconnect()
	}
	return nil
}

// StateOf builds the retained state payload for a report.
func StateOf(r domain.AirQualityReport) State {
	return State{
		ReportID:     r.ID,
		Site:         r.SiteName,
		Lat:          r.Geo.Lat,
		Lon:          r.Geo.Lon,
		PM25:         r.Pollutants.PM25,
		AQI:          r.AQI.Ptr(),
		Category:     string(r.Category),
		Alert:        r.Alert,
		ForecastPM25: r.Forecast.PM25,
		ForecastAQI:  r.Forecast.AQI.Ptr(),
		ObservedAt:   r.ObservedAt,
	}
}

// TopicSegment turns the report's site label into a single MQTT topic level:
// lower case, with runs of anything other than letters and digits collapsed
// to "_". Reports without a usable label fall back to their ID.
func TopicSegment(r domain.AirQualityReport) string {
	var b strings.Builder
	pendingSep := false
	for _, ch := range strings.ToLower(r.SiteName) {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(ch)
		default:
			pendingSep = true
		}
	}
	if b.Len() == 0 || r.SiteNameSource == domain.SiteNameUnknown {
		return r.ID
	}
	return b.String()
}
