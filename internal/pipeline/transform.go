package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
)

// ReportTransformer implements Transformer using the domain parse and enrich
// functions with optional geocoding enrichment.
type ReportTransformer struct {
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewTransformer creates a ReportTransformer. Pass a nil geocoder to disable
// geocoding enrichment.
func NewTransformer(geocoder domain.Geocoder, logger *slog.Logger) *ReportTransformer {
	return &ReportTransformer{
		geocoder: geocoder,
		logger:   logger,
	}
}

func (t *ReportTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.AirQualityReport, error) {
	report, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.AirQualityReport{}, err
	}

	report = domain.EnrichWithGeocoding(ctx, report, t.geocoder, t.logger)
	report = domain.EnrichReport(report)

	return report, nil
}
