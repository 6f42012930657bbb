package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/air-quality-etl/internal/domain"
	"github.com/couchcryptid/air-quality-etl/internal/observability"
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw sample into an enriched report.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.AirQualityReport, error)
}

// BatchLoader writes multiple reports to a destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, reports []domain.AirQualityReport) error
}

// Retry delays after a failed extract or load: 200ms doubling up to 5s.
const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Pipeline orchestrates the extract-transform-load loop.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// Ready reports whether at least one batch has been loaded.
func (p *Pipeline) Ready() bool {
	return p.ready.Load()
}

// CheckReadiness returns nil once a batch of reports has been loaded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not loaded any reports yet")
	}
	return nil
}

// Run executes the batch ETL loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	r := &retry{delay: initialBackoff}
	for ctx.Err() == nil {
		if !p.step(ctx, r) {
			break
		}
	}
	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// step runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) step(ctx context.Context, r *retry) bool {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return r.wait(ctx)
	}
	if len(rawBatch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))
	r.reset()

	b := p.transform(ctx, rawBatch)
	if len(b.reports) == 0 {
		return true
	}

	if !p.load(ctx, r, b.reports) {
		// Offsets stay uncommitted; a restarted consumer resumes from them.
		return false
	}

	p.metrics.MessagesProduced.Add(float64(len(b.reports)))
	for _, raw := range b.sources {
		p.commitOffset(ctx, raw)
	}

	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	p.ready.Store(true)
	p.logger.Debug("batch loaded",
		"reports", len(b.reports),
		"skipped", b.skipped,
		"alerts", b.alerts,
		"duration", time.Since(start),
	)
	return true
}

// load sends reports to the loader, retrying the same batch with backoff
// until it succeeds. Returns false if ctx ends first.
func (p *Pipeline) load(ctx context.Context, r *retry, reports []domain.AirQualityReport) bool {
	for attempt := 1; ; attempt++ {
		err := p.loader.LoadBatch(ctx, reports)
		if err == nil {
			r.reset()
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("load batch failed, retrying",
			"error", err,
			"batch_size", len(reports),
			"attempt", attempt,
			"backoff", r.delay,
		)
		if !r.wait(ctx) {
			return false
		}
	}
}

// batch is the transform result for one extracted batch. sources holds the
// raw event behind each report, in the same order.
type batch struct {
	reports []domain.AirQualityReport
	sources []domain.RawEvent
	skipped int
	alerts  int
}

// transform enriches every sample in rawBatch. Samples that fail to transform
// are committed immediately so a poison message cannot stall the partition.
func (p *Pipeline) transform(ctx context.Context, rawBatch []domain.RawEvent) batch {
	b := batch{
		reports: make([]domain.AirQualityReport, 0, len(rawBatch)),
		sources: make([]domain.RawEvent, 0, len(rawBatch)),
	}

	for _, raw := range rawBatch {
		report, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			p.logger.Warn("transform failed, skipping sample",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			p.commitOffset(ctx, raw)
			b.skipped++
			continue
		}

		p.metrics.ReportsByCategory.WithLabelValues(string(report.Category)).Inc()
		p.metrics.ForecastPM25.Observe(report.Forecast.PM25)
		if report.Alert {
			b.alerts++
			p.logger.Info("air quality alert",
				"site", report.SiteName,
				"aqi", report.AQI.String(),
				"category", report.Category,
				"report_id", report.ID,
			)
		}

		b.reports = append(b.reports, report)
		b.sources = append(b.sources, raw)
	}
	return b
}

// commitOffset commits the message offset if a commit function is available.
func (p *Pipeline) commitOffset(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}

// retry is the exponential delay between failed cycles.
type retry struct {
	delay time.Duration
}

func (r *retry) reset() { r.delay = initialBackoff }

// wait sleeps for the current delay and doubles it, capped at maxBackoff.
// Returns false if ctx ends first.
func (r *retry) wait(ctx context.Context) bool {
	timer := time.NewTimer(r.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	}
	r.delay = min(r.delay*2, maxBackoff)
	return true
}
