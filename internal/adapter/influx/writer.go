// Package influx writes air quality reports to InfluxDB 1.x as time-series points.
package influx

import (
	"context"
	"fmt"
	"log/slog"

	_ "github.com/influxdata/influxdb1-client" // required by the v2 client
	influxclient "github.com/influxdata/influxdb1-client/v2"

	"github.com/couchcryptid/air-quality-etl/internal/config"
	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// pointWriter is the subset of influxclient.Client used by the writer.
type pointWriter interface {
	Write(bp influxclient.BatchPoints) error
	Close() error
}

// Writer turns each report into one point in the configured measurement.
// It implements pipeline.BatchLoader.
type Writer struct {
	client      pointWriter
	database    string
	measurement string
	logger      *slog.Logger
}

// New creates an HTTP client for the configured InfluxDB server.
func New(cfg config.InfluxConfig, logger *slog.Logger) (*Writer, error) {
	c, err := influxclient.NewHTTPClient(influxclient.HTTPConfig{
		Addr:     fmt.Sprintf("http://%s:%d", cfg.Hostname, cfg.Port),
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create influx client: %w", err)
	}
	return newWriter(c, cfg.Database, cfg.Measurement, logger), nil
}

func newWriter(c pointWriter, database, measurement string, logger *slog.Logger) *Writer {
	return &Writer{client: c, database: database, measurement: measurement, logger: logger}
}

// LoadBatch writes the batch as a single BatchPoints request.
func (w *Writer) LoadBatch(ctx context.Context, reports []domain.AirQualityReport) error {
	if len(reports) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bp, err := influxclient.NewBatchPoints(influxclient.BatchPointsConfig{
		Database:  w.database,
		Precision: "s",
	})
	if err != nil {
		return fmt.Errorf("create batch points: %w", err)
	}

	for i := range reports {
		pt, err := w.point(reports[i])
		if err != nil {
			return err
		}
		bp.AddPoint(pt)
	}

	if err := w.client.Write(bp); err != nil {
		return fmt.Errorf("write influx points: %w", err)
	}
	w.logger.Debug("reports written to influx", "count", len(reports), "database", w.database)
	return nil
}

func (w *Writer) point(r domain.AirQualityReport) (*influxclient.Point, error) {
	tags := map[string]string{
		"site":     r.SiteName,
		"category": string(r.Category),
	}
	if r.PM25Source != "" {
		tags["pm25_source"] = r.PM25Source
	}

	fields := map[string]interface{}{
		"forecast_pm25": r.Forecast.PM25,
		"alert":         r.Alert,
		"lat":           r.Geo.Lat,
		"lon":           r.Geo.Lon,
	}
	if r.Pollutants.PM25 != nil {
		fields["pm25"] = *r.Pollutants.PM25
	}
	if v, ok := r.AQI.Int(); ok {
		fields["aqi"] = v
	}
	if v, ok := r.Forecast.AQI.Int(); ok {
		fields["forecast_aqi"] = v
	}

	ts := r.ObservedAt
	if ts.IsZero() {
		ts = r.ProcessedAt
	}

	pt, err := influxclient.NewPoint(w.measurement, tags, fields, ts)
	if err != nil {
		return nil, fmt.Errorf("build point for %s: %w", r.ID, err)
	}
	return pt, nil
}

// Close releases the underlying HTTP client.
func (w *Writer) Close() error {
	return w.client.Close()
}
