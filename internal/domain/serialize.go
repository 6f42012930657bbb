package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Output header keys.
const (
	HeaderCategory    = "aqi_category"
	HeaderProcessedAt = "processed_at"
)

// SerializeReport marshals a report into its sink representation, keyed by
// report ID.
func SerializeReport(report AirQualityReport) (OutputEvent, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize air quality report: %w", err)
	}
	return OutputEvent{
		Key:   []byte(report.ID),
		Value: data,
		Headers: map[string]string{
			HeaderCategory:    string(report.Category),
			HeaderProcessedAt: report.ProcessedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}
