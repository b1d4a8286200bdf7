package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/fireweather-etl/internal/config"
	"github.com/couchcryptid/fireweather-etl/internal/domain"
	"github.com/couchcryptid/fireweather-etl/internal/observability"
	"github.com/couchcryptid/fireweather-etl/internal/pipeline"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeSource struct {
	mu      sync.Mutex
	rasters map[string]*domain.Raster // key: index + YYYYMMDD
	err     error
	calls   int
}

func (f *fakeSource) Raster(_ context.Context, index string, date time.Time) (*domain.Raster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.rasters[index+domain.FormatDate(date)]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", domain.RasterFileName(index, date), fs.ErrNotExist)
	}
	return r, nil
}

type fakeStore struct {
	existing []domain.Reading
	loadErr  error
	saved    []domain.Reading
	saves    int
}

func (f *fakeStore) Load(context.Context) ([]domain.Reading, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return append([]domain.Reading(nil), f.existing...), nil
}

func (f *fakeStore) Save(_ context.Context, readings []domain.Reading) (int, error) {
	f.saves++
	f.saved = readings
	return len(readings), nil
}

// --- fixtures ---

// grid4 is a 4x4 raster with values 1..16, row-major.
func grid4() *domain.Raster {
	r := domain.NewRaster(4, 4, domain.GeoTransform{PixelWidth: 1, OriginY: 4, PixelHeight: -1})
	for i := range r.Values {
		r.Values[i] = float64(i + 1)
	}
	return r
}

// quadrantMasks returns region "a" on the top-left 2x2 and "b" on the
// bottom-right 2x2.
func quadrantMasks() map[string]domain.Mask {
	a, b := domain.NewMask(4, 4), domain.NewMask(4, 4)
	for _, p := range [][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
		a.Set(p[0], p[1])
		b.Set(p[0]+2, p[1]+2)
	}
	return map[string]domain.Mask{"b": b, "a": a}
}

func day(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func freezeToday(t *testing.T, date string) {
	t.Helper()
	d := day(date)
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(d.Year(), d.Month(), d.Day(), 10, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { domain.SetClock(nil) })
}

func newAggregator(src pipeline.RasterSource, metrics *observability.Metrics) *pipeline.Aggregator {
	return pipeline.NewAggregator(src, quadrantMasks(), slog.Default(), metrics)
}

// --- aggregator ---

func TestAggregateDate_MeansAndMissingRasters(t *testing.T) {
	src := &fakeSource{rasters: map[string]*domain.Raster{
		"temperature20240115": grid4(),
		"fwi20240115":         grid4(),
	}}
	metrics := observability.NewMetricsForTesting()

	readings, err := newAggregator(src, metrics).AggregateDate(context.Background(), day("20240115"))
	require.NoError(t, err)
	require.Len(t, readings, 2*domain.NumIndices)

	// Region "a" comes first, in index column order.
	assert.Equal(t, domain.Reading{Date: "20240115", RegionID: "a", Index: "temperature", Value: domain.Float(3.5)}, readings[0])
	assert.Equal(t, "bui", readings[1].Index)
	assert.True(t, readings[1].Missing())

	b := readings[domain.NumIndices:]
	assert.Equal(t, "b", b[0].RegionID)
	require.NotNil(t, b[0].Value)
	assert.InDelta(t, 13.5, *b[0].Value, 1e-9)
	assert.InDelta(t, 13.5, *b[6].Value, 1e-9, "fwi")

	assert.InDelta(t, 1, testutil.ToFloat64(metrics.RastersMissing.WithLabelValues("bui")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(metrics.RastersRead), 0)
	assert.InDelta(t, 28, testutil.ToFloat64(metrics.ReadingsMissing), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.DatesProcessed), 0)
}

func TestAggregateDate_EmptyMaskIsMissing(t *testing.T) {
	src := &fakeSource{rasters: map[string]*domain.Raster{"dc20240115": grid4()}}
	masks := map[string]domain.Mask{"empty": domain.NewMask(4, 4)}

	agg := pipeline.NewAggregator(src, masks, slog.Default(), observability.NewMetricsForTesting())
	readings, err := agg.AggregateDate(context.Background(), day("20240115"))
	require.NoError(t, err)
	for _, r := range readings {
		assert.True(t, r.Missing(), r.Index)
	}
}

func TestAggregateDate_GridMismatchAborts(t *testing.T) {
	small := domain.NewRaster(3, 3, domain.GeoTransform{PixelWidth: 1, PixelHeight: -1})
	src := &fakeSource{rasters: map[string]*domain.Raster{"isi20240115": small}}

	_, err := newAggregator(src, observability.NewMetricsForTesting()).AggregateDate(context.Background(), day("20240115"))
	require.ErrorIs(t, err, domain.ErrGridMismatch)
	assert.Contains(t, err.Error(), "isi")
}

func TestAggregateDate_ReadErrorAborts(t *testing.T) {
	src := &fakeSource{err: errors.New("corrupt strip")}

	_, err := newAggregator(src, observability.NewMetricsForTesting()).AggregateDate(context.Background(), day("20240115"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt strip")
	assert.Equal(t, 1, src.calls)
}

// --- pipeline ---

func TestPipeline_Run_AppendsPendingDates(t *testing.T) {
	freezeToday(t, "20240302")

	existing := []domain.Reading{
		{Date: "20240228", RegionID: "a", Index: "fwi", Value: domain.Float(1)},
	}
	src := &fakeSource{rasters: map[string]*domain.Raster{
		"fwi20240229": grid4(),
		"fwi20240301": grid4(),
		"fwi20240302": grid4(),
	}}
	store := &fakeStore{existing: existing}
	metrics := observability.NewMetricsForTesting()

	p := pipeline.New(newAggregator(src, metrics), store, slog.Default(), metrics, pipeline.Options{Location: time.UTC, Workers: 2})
	summary, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []time.Time{day("20240229"), day("20240301"), day("20240302")}, summary.Dates)
	assert.Equal(t, 3*2*domain.NumIndices, summary.Readings)
	assert.Equal(t, 1+summary.Readings, summary.Rows)
	assert.Equal(t, day("20240302"), summary.LastArchived)

	require.Equal(t, 1, store.saves)
	assert.True(t, domain.IsSorted(store.saved))
	assert.Equal(t, existing[0], store.saved[0])
	assert.InDelta(t, float64(day("20240302").Unix()), testutil.ToFloat64(metrics.LastArchivedDate), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.PipelineRunning), 0)
}

func TestPipeline_Run_UpToDateRewritesArchive(t *testing.T) {
	freezeToday(t, "20240228")

	existing := []domain.Reading{
		{Date: "20240228", RegionID: "b", Index: "fwi", Value: domain.Float(2)},
		{Date: "20240228", RegionID: "a", Index: "fwi", Value: domain.Float(1)},
	}
	store := &fakeStore{existing: existing}
	src := &fakeSource{}
	metrics := observability.NewMetricsForTesting()

	summary, err := pipeline.New(newAggregator(src, metrics), store, slog.Default(), metrics, pipeline.Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, summary.Dates)
	assert.Zero(t, src.calls)
	assert.Equal(t, []string{"a", "b"}, []string{store.saved[0].RegionID, store.saved[1].RegionID})
}

func TestPipeline_Run_ComputesPendingDay(t *testing.T) {
	freezeToday(t, "20240301")

	store := &fakeStore{existing: []domain.Reading{
		{Date: "20240229", RegionID: "a", Index: "temperature", Value: domain.Float(1)},
	}}
	src := &fakeSource{rasters: map[string]*domain.Raster{"temperature20240301": grid4()}}
	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(newAggregator(src, metrics), store, slog.Default(), metrics, pipeline.Options{Location: time.UTC})

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	got := map[domain.ReadingKey]domain.Reading{}
	for _, r := range store.saved {
		got[r.Key()] = r
	}
	want := domain.Reading{Date: "20240301", RegionID: "a", Index: "temperature", Value: domain.Float(3.5)}
	if diff := cmp.Diff(want, got[want.Key()]); diff != "" {
		t.Errorf("merged reading mismatch (-want +got):\n%s", diff)
	}
}

func TestPipeline_Run_MissingArchive(t *testing.T) {
	freezeToday(t, "20240102")
	metrics := observability.NewMetricsForTesting()
	notFound := fmt.Errorf("%w: archive.parquet", domain.ErrArchiveNotFound)

	t.Run("without bootstrap", func(t *testing.T) {
		store := &fakeStore{loadErr: notFound}
		p := pipeline.New(newAggregator(&fakeSource{}, metrics), store, slog.Default(), metrics, pipeline.Options{})

		_, err := p.Run(context.Background())
		require.ErrorIs(t, err, domain.ErrArchiveNotFound)
		assert.Zero(t, store.saves)
	})

	t.Run("with bootstrap", func(t *testing.T) {
		boot := day("20231231")
		store := &fakeStore{loadErr: notFound}
		p := pipeline.New(newAggregator(&fakeSource{}, metrics), store, slog.Default(), metrics, pipeline.Options{BootstrapDate: &boot})

		summary, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []time.Time{day("20240101"), day("20240102")}, summary.Dates)
		assert.Len(t, store.saved, 2*2*domain.NumIndices)
	})
}

func TestPipeline_Run_EmptyArchiveNeedsBootstrap(t *testing.T) {
	freezeToday(t, "20240102")
	metrics := observability.NewMetricsForTesting()

	_, err := pipeline.New(newAggregator(&fakeSource{}, metrics), &fakeStore{}, slog.Default(), metrics, pipeline.Options{}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bootstrap")
}

func TestPipeline_Run_AggregateErrorSkipsSave(t *testing.T) {
	freezeToday(t, "20240102")
	metrics := observability.NewMetricsForTesting()
	store := &fakeStore{existing: []domain.Reading{{Date: "20240101", RegionID: "a", Index: "dc"}}}
	src := &fakeSource{err: errors.New("permission denied")}

	_, err := pipeline.New(newAggregator(src, metrics), store, slog.Default(), metrics, pipeline.Options{Workers: 4}).Run(context.Background())
	require.Error(t, err)
	assert.Zero(t, store.saves)
}

// --- masks ---

func forestRaster() *domain.Raster {
	r := domain.NewRaster(4, 4, domain.GeoTransform{PixelWidth: 1, OriginY: 4, PixelHeight: -1})
	for i := range r.Values {
		r.Values[i] = 1
	}
	return r
}

func rect(x0, y0, x1, y1 float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}}
}

func TestPrepareMasks_OverlapPolicy(t *testing.T) {
	regions := []domain.Region{
		{ID: "west", Geometry: rect(0, 0, 2, 4)},
		{ID: "north", Geometry: rect(0, 2, 4, 4)},
	}

	for _, policy := range []string{config.OverlapAllow, config.OverlapWarn} {
		masks, err := pipeline.PrepareMasks(forestRaster(), regions, policy, slog.Default())
		require.NoError(t, err, policy)
		assert.Len(t, masks, 2)
		assert.Equal(t, 8, masks["west"].Count())
	}

	_, err := pipeline.PrepareMasks(forestRaster(), regions, config.OverlapError, slog.Default())
	assert.ErrorIs(t, err, domain.ErrRegionOverlap)
}

func TestPrepareMasks_DisjointRegionsPassErrorPolicy(t *testing.T) {
	regions := []domain.Region{
		{ID: "west", Geometry: rect(0, 0, 2, 4)},
		{ID: "east", Geometry: rect(2, 0, 4, 4)},
	}
	masks, err := pipeline.PrepareMasks(forestRaster(), regions, config.OverlapError, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, 8, masks["east"].Count())
}
