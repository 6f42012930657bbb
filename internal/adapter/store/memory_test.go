package store

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
)

var base = time.Date(2024, time.October, 5, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func report(id string, lat, lon float64, observed time.Time) domain.AirQualityReport {
	return domain.AirQualityReport{ID: id, Geo: domain.Geo{Lat: lat, Lon: lon}, ObservedAt: observed}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "26.1965,73.0118", Key(26.19651, 73.01179))
	assert.Equal(t, Key(51.50720001, -0.1276), Key(51.5072, -0.12760004))
}

func TestMemoryStore_LatestNotFound(t *testing.T) {
	s := NewMemoryStore(0, 0, clockwork.NewFakeClockAt(base), observability.NewMetricsForTesting(), discardLogger())

	_, err := s.Latest(1, 2)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_LatestByObservationTime(t *testing.T) {
	s := NewMemoryStore(0, 0, clockwork.NewFakeClockAt(base), observability.NewMetricsForTesting(), discardLogger())

	require.NoError(t, s.LoadBatch(context.Background(), []domain.AirQualityReport{
		report("b", 26.1965, 73.0118, base),
		report("a", 26.1965, 73.0118, base.Add(-time.Hour)),
		report("other", 51.5072, -0.1276, base),
	}))

	latest, err := s.Latest(26.19651, 73.01179)
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID, "a late message does not replace a newer reading")
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStore_DuplicateIDReplaces(t *testing.T) {
	s := NewMemoryStore(0, 0, clockwork.NewFakeClockAt(base), observability.NewMetricsForTesting(), discardLogger())

	first := report("a", 1, 1, base)
	second := first
	second.SiteName = "Redelivered"
	s.Save(first)
	s.Save(second)

	got, err := s.Range(1, 1, base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Redelivered", got[0].SiteName)
}

func TestMemoryStore_MaxHistory(t *testing.T) {
	s := NewMemoryStore(2, 0, clockwork.NewFakeClockAt(base), observability.NewMetricsForTesting(), discardLogger())

	for i := 0; i < 4; i++ {
		s.Save(report(string(rune('a'+i)), 1, 1, base.Add(time.Duration(i)*time.Hour)))
	}

	got, err := s.Range(1, 1, base, base.Add(10*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "d", got[1].ID)
}

func TestMemoryStore_Range(t *testing.T) {
	s := NewMemoryStore(0, 0, clockwork.NewFakeClockAt(base), observability.NewMetricsForTesting(), discardLogger())
	for i := 0; i < 3; i++ {
		s.Save(report(string(rune('a'+i)), 1, 1, base.Add(time.Duration(i)*time.Hour)))
	}

	got, err := s.Range(1, 1, base.Add(time.Hour), base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)

	_, err = s.Range(1, 1, base.Add(5*time.Hour), base.Add(6*time.Hour))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SweepByAge(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	s := NewMemoryStore(0, 3*time.Hour, clock, observability.NewMetricsForTesting(), discardLogger())

	s.Save(report("old", 1, 1, base.Add(-2*time.Hour)))
	s.Save(report("new", 1, 1, base))
	s.Save(report("gone", 2, 2, base.Add(-time.Hour)))

	clock.Advance(90 * time.Minute)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 2, s.Len())

	clock.Advance(time.Hour)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())

	_, err := s.Latest(2, 2)
	require.ErrorIs(t, err, ErrNotFound)
	latest, err := s.Latest(1, 1)
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID)
}

func TestMemoryStore_SaveDropsExpiredReport(t *testing.T) {
	s := NewMemoryStore(0, time.Hour, clockwork.NewFakeClockAt(base), observability.NewMetricsForTesting(), discardLogger())

	assert.False(t, s.Save(report("ancient", 1, 1, base.Add(-48*time.Hour))))
	assert.True(t, s.Save(report("fresh", 2, 2, base.Add(-time.Minute))))

	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_LoadBatchCountsExpired(t *testing.T) {
	var logs bytes.Buffer
	metrics := observability.NewMetricsForTesting()
	s := NewMemoryStore(0, 24*time.Hour, clockwork.NewFakeClockAt(base.Add(365*24*time.Hour)), metrics, slog.New(slog.NewTextHandler(&logs, nil)))

	// A replayed sample from a year ago.
	require.NoError(t, s.LoadBatch(context.Background(), []domain.AirQualityReport{
		report("replayed", 26.1965, 73.0118, base),
	}))

	_, err := s.Latest(26.1965, 73.0118)
	require.ErrorIs(t, err, ErrNotFound)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.StoreExpired), 1e-9)
	assert.Contains(t, logs.String(), "reports older than store retention were not stored")
	assert.Contains(t, logs.String(), "expired=1")
}

func TestMemoryStore_ProcessedAtFallback(t *testing.T) {
	s := NewMemoryStore(0, 0, clockwork.NewFakeClockAt(base), observability.NewMetricsForTesting(), discardLogger())

	s.Save(domain.AirQualityReport{ID: "a", ProcessedAt: base.Add(time.Hour)})
	s.Save(domain.AirQualityReport{ID: "b", ProcessedAt: base})

	latest, err := s.Latest(0, 0)
	require.NoError(t, err)
	assert.Equal(t, "a", latest.ID)
}

func TestSweeper_Run(t *testing.T) {
	clock := clockwork.NewFakeClockAt(base)
	s := NewMemoryStore(0, time.Hour, clock, observability.NewMetricsForTesting(), discardLogger())
	s.Save(report("a", 1, 1, base))
	s.Save(report("b", 2, 2, base.Add(-30*time.Minute)))

	metrics := observability.NewMetricsForTesting()
	sweeper := NewSweeper(s, time.Minute, metrics, discardLogger())

	sweeper.Run()
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.StoredLocations), 1e-9)

	clock.Advance(45 * time.Minute)
	sweeper.Run()
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.StoredLocations), 1e-9)
}

func TestSweeper_StartStop(t *testing.T) {
	s := NewMemoryStore(0, 0, clockwork.NewRealClock(), observability.NewMetricsForTesting(), discardLogger())
	s.Save(report("a", 1, 1, time.Now()))
	metrics := observability.NewMetricsForTesting()
	sweeper := NewSweeper(s, 10*time.Millisecond, metrics, discardLogger())

	require.NoError(t, sweeper.Start())
	t.Cleanup(sweeper.Stop)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.StoredLocations) == 1
	}, time.Second, 10*time.Millisecond)
}
