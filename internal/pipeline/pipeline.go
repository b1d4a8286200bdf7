package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/fireweather-etl/internal/domain"
	"github.com/couchcryptid/fireweather-etl/internal/observability"
	"golang.org/x/sync/errgroup"
)

// ArchiveStore loads and rewrites the whole archive in long form.
type ArchiveStore interface {
	Load(ctx context.Context) ([]domain.Reading, error)
	Save(ctx context.Context, readings []domain.Reading) (int, error)
}

// Options tunes a run.
type Options struct {
	// Location decides which calendar day "today" is.
	Location *time.Location
	// Workers bounds how many days are aggregated at once.
	Workers int
	// BootstrapDate stands in for the last archived day when the archive
	// file does not exist yet.
	BootstrapDate *time.Time
}

// Summary reports what a run did.
type Summary struct {
	LastArchived time.Time
	Dates        []time.Time
	Readings     int
	Rows         int
}

// Pipeline orchestrates scan, aggregate, merge and persist.
type Pipeline struct {
	aggregator *Aggregator
	store      ArchiveStore
	logger     *slog.Logger
	metrics    *observability.Metrics
	opts       Options
}

// New creates a Pipeline with the given stages and observability.
func New(aggregator *Aggregator, store ArchiveStore, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Pipeline{
		aggregator: aggregator,
		store:      store,
		logger:     logger,
		metrics:    metrics,
		opts:       opts,
	}
}

// Run brings the archive up to today: it aggregates every day after the
// latest archived one, merges the new readings and rewrites the archive.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	existing, last, err := p.loadArchive(ctx)
	if err != nil {
		return Summary{}, err
	}

	today := domain.Today(p.opts.Location)
	dates := domain.DateRange(last, today)
	p.logger.Info("archive loaded",
		"readings", len(existing),
		"last_date", domain.FormatDate(last),
		"today", domain.FormatDate(today),
		"pending_dates", len(dates),
	)

	fresh, err := p.aggregate(ctx, dates)
	if err != nil {
		return Summary{}, err
	}

	merged := domain.MergeReadings(existing, fresh)
	rows, err := p.store.Save(ctx, merged)
	if err != nil {
		return Summary{}, fmt.Errorf("save archive: %w", err)
	}

	summary := Summary{Dates: dates, Readings: len(fresh), Rows: rows, LastArchived: last}
	if latest, ok, err := domain.LatestDate(merged); err == nil && ok {
		summary.LastArchived = latest
	}

	p.metrics.ArchiveRows.Set(float64(rows))
	p.metrics.LastArchivedDate.Set(float64(summary.LastArchived.Unix()))
	p.metrics.RunDuration.Observe(time.Since(start).Seconds())
	p.logger.Info("archive updated",
		"dates", len(dates),
		"new_readings", len(fresh),
		"rows", rows,
		"last_date", domain.FormatDate(summary.LastArchived),
		"duration", time.Since(start),
	)
	return summary, nil
}

// loadArchive returns the archived readings and the last archived day.
func (p *Pipeline) loadArchive(ctx context.Context) ([]domain.Reading, time.Time, error) {
	existing, err := p.store.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrArchiveNotFound) && p.opts.BootstrapDate != nil:
		p.logger.Warn("archive not found, bootstrapping", "bootstrap_date", domain.FormatDate(*p.opts.BootstrapDate))
		return nil, *p.opts.BootstrapDate, nil
	case err != nil:
		return nil, time.Time{}, fmt.Errorf("load archive: %w", err)
	}

	last, ok, err := domain.LatestDate(existing)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load archive: %w", err)
	}
	if !ok {
		if p.opts.BootstrapDate == nil {
			return nil, time.Time{}, errors.New("archive is empty and no bootstrap date is set")
		}
		last = *p.opts.BootstrapDate
	}
	return existing, last, nil
}

// aggregate processes dates with at most Workers in flight and returns the
// readings in date order.
func (p *Pipeline) aggregate(ctx context.Context, dates []time.Time) ([]domain.Reading, error) {
	perDate := make([][]domain.Reading, len(dates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, date := range dates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			readings, err := p.aggregator.AggregateDate(gctx, date)
			if err != nil {
				return err
			}
			perDate[i] = readings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.Reading
	for _, readings := range perDate {
		out = append(out, readings...)
	}
	return out, nil
}
