// Package store keeps recent air quality reports in memory, keyed by location,
// so the HTTP API can serve the latest report for a site.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
)

var (
	// ErrNotFound is returned when no report is stored for a given location.
	ErrNotFound = errors.New("no air quality report for location")
)

// history holds the reports for one location, oldest first.
type history struct {
	reports []domain.AirQualityReport
}

// MemoryStore is a concurrency-safe in-memory report store.
// It implements pipeline.BatchLoader.
type MemoryStore struct {
	mu sync.RWMutex

	// key: rounded coordinates, value: history
	data map[string]*history

	maxHistory int           // max reports per location, <= 0 is unlimited
	maxAge     time.Duration // max report age, <= 0 is unlimited
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewMemoryStore creates a MemoryStore with the given retention limits.
func NewMemoryStore(maxHistory int, maxAge time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		data:       make(map[string]*history),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
	}
}

// Key rounds a coordinate pair to four decimal places (about 11 m).
func Key(lat, lon float64) string {
	return fmt.Sprintf("%.4f,%.4f", lat, lon)
}

// Save appends a report for its location and enforces retention. Reports are
// kept ordered by observation time so redelivered or late messages do not
// replace a newer reading. It returns false when the report is already past
// the maximum age and was not stored.
func (s *MemoryStore) Save(report domain.AirQualityReport) bool {
	key := Key(report.Geo.Lat, report.Geo.Lon)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.expired(report, s.cutoff()) {
		return false
	}

	h, ok := s.data[key]
	if !ok {
		h = &history{}
		s.data[key] = h
	}

	for i := range h.reports {
		if h.reports[i].ID == report.ID {
			h.reports[i] = report
			s.trim(key, h)
			return true
		}
	}

	i := len(h.reports)
	for i > 0 && timestamp(h.reports[i-1]).After(timestamp(report)) {
		i--
	}
	h.reports = append(h.reports, domain.AirQualityReport{})
	copy(h.reports[i+1:], h.reports[i:])
	h.reports[i] = report

	s.trim(key, h)
	return true
}

// LoadBatch saves every report in the batch. Reports older than the maximum
// age are counted and logged, not stored.
func (s *MemoryStore) LoadBatch(_ context.Context, reports []domain.AirQualityReport) error {
	expired := 0
	var oldest time.Time
	for i := range reports {
		if s.Save(reports[i]) {
			continue
		}
		expired++
		if ts := timestamp(reports[i]); oldest.IsZero() || ts.Before(oldest) {
			oldest = ts
		}
	}

	if expired > 0 {
		s.metrics.StoreExpired.Add(float64(expired))
		s.logger.Warn("reports older than store retention were not stored",
			"expired", expired,
			"batch_size", len(reports),
			"max_age", s.maxAge,
			"oldest", oldest,
		)
	}
	return nil
}

// Latest returns the most recent report for the location.
func (s *MemoryStore) Latest(lat, lon float64) (domain.AirQualityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data[Key(lat, lon)]
	if !ok || len(h.reports) == 0 {
		return domain.AirQualityReport{}, ErrNotFound
	}
	return h.reports[len(h.reports)-1], nil
}

// Range returns the reports for a location observed between from and to (inclusive).
func (s *MemoryStore) Range(lat, lon float64, from, to time.Time) ([]domain.AirQualityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data[Key(lat, lon)]
	if !ok || len(h.reports) == 0 {
		return nil, ErrNotFound
	}

	var result []domain.AirQualityReport
	for _, r := range h.reports {
		ts := timestamp(r)
		if !ts.Before(from) && !ts.After(to) {
			result = append(result, r)
		}
	}
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// Sweep drops reports older than the maximum age and forgets locations left
// empty. It returns the number of reports removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, h := range s.data {
		before := len(h.reports)
		s.trim(key, h)
		removed += before - len(h.reports)
	}
	return removed
}

// Len returns the number of locations with at least one report.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// trim enforces retention on h. Callers hold the write lock.
func (s *MemoryStore) trim(key string, h *history) {
	if s.maxHistory > 0 && len(h.reports) > s.maxHistory {
		over := len(h.reports) - s.maxHistory
		h.reports = append([]domain.AirQualityReport(nil), h.reports[over:]...)
	}

	if cutoff := s.cutoff(); !cutoff.IsZero() {
		i := 0
		for i < len(h.reports) && s.expired(h.reports[i], cutoff) {
			i++
		}
		h.reports = h.reports[i:]
	}

	if len(h.reports) == 0 {
		delete(s.data, key)
	}
}

// cutoff is the oldest report time still retained, zero when age is unlimited.
func (s *MemoryStore) cutoff() time.Time {
	if s.maxAge <= 0 {
		return time.Time{}
	}
	return s.clock.Now().Add(-s.maxAge)
}

func (s *MemoryStore) expired(r domain.AirQualityReport, cutoff time.Time) bool {
	return !cutoff.IsZero() && timestamp(r).Before(cutoff)
}

// timestamp is the time a report is ordered and aged by.
func timestamp(r domain.AirQualityReport) time.Time {
	if !r.ObservedAt.IsZero() {
		return r.ObservedAt
	}
	return r.ProcessedAt
}
