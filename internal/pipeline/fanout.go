package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
)

// Sink is a named destination for reports. A failing required sink fails the
// whole batch so offsets stay uncommitted; optional sink failures are logged
// and counted only.
type Sink struct {
	Name     string
	Loader   BatchLoader
	Required bool
}

// FanOutLoader loads every batch into each configured sink in order.
type FanOutLoader struct {
	sinks   []Sink
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewFanOutLoader creates a FanOutLoader over sinks.
func NewFanOutLoader(logger *slog.Logger, metrics *observability.Metrics, sinks ...Sink) *FanOutLoader {
	return &FanOutLoader{sinks: sinks, logger: logger, metrics: metrics}
}

// Sinks returns the configured sink names.
func (f *FanOutLoader) Sinks() []string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name)
	}
	return names
}

// LoadBatch writes reports to every sink and returns the joined errors of the
// required sinks that failed.
func (f *FanOutLoader) LoadBatch(ctx context.Context, reports []domain.AirQualityReport) error {
	var errs []error
	for _, s := range f.sinks {
		err := s.Loader.LoadBatch(ctx, reports)
		if err == nil {
			continue
		}
		f.metrics.SinkErrors.WithLabelValues(s.Name).Inc()
		if s.Required {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name, err))
			continue
		}
		f.logger.Warn("optional sink failed", "sink", s.Name, "error", err, "batch_size", len(reports))
	}
	return errors.Join(errs...)
}
