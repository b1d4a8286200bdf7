package parquet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/fireweather-etl/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullDay returns sorted readings for every index of each region on date,
// with fwi missing for every region.
func fullDay(date string, regions ...string) []domain.Reading {
	var out []domain.Reading
	for _, region := range regions {
		for i, index := range domain.IndexNames {
			r := domain.Reading{Date: date, RegionID: region, Index: index}
			if index != "fwi" {
				r.Value = domain.Float(float64(i) + 0.5)
			}
			out = append(out, r)
		}
	}
	domain.SortReadings(out)
	return out
}

func TestStore_WideRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.parquet")
	store := NewStore(path, "", LayoutWide, 0)
	readings := fullDay("20240301", "10", "11")

	n, err := store.Save(context.Background(), readings)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one row per date and region")

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	domain.SortReadings(got)
	if diff := cmp.Diff(readings, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_LongRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.parquet")
	store := NewStore(path, path, LayoutLong, 0)
	readings := fullDay("20240301", "10")

	n, err := store.Save(context.Background(), readings)
	require.NoError(t, err)
	assert.Equal(t, len(readings), n)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(readings, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_LoadDetectsLayout(t *testing.T) {
	dir := t.TempDir()
	widePath := filepath.Join(dir, "wide.parquet")
	readings := fullDay("20240302", "7")

	_, err := NewStore(widePath, "", LayoutWide, 0).Save(context.Background(), readings)
	require.NoError(t, err)

	// A long-layout store still reads a wide file, and can convert it.
	longPath := filepath.Join(dir, "long.parquet")
	converter := NewStore(widePath, longPath, LayoutLong, 0)
	got, err := converter.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, got, domain.NumIndices)

	_, err = converter.Save(context.Background(), got)
	require.NoError(t, err)

	again, err := NewStore(longPath, "", LayoutWide, 0).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestStore_RowGroups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.parquet")
	var readings []domain.Reading
	for day := 1; day <= 5; day++ {
		readings = append(readings, fullDay(fmt.Sprintf("202403%02d", day), "1", "2")...)
	}
	domain.SortReadings(readings)

	_, err := NewStore(path, "", LayoutWide, 4).Save(context.Background(), readings)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)

	pf, err := parquet.OpenFile(f, info.Size())
	require.NoError(t, err)
	assert.Equal(t, int64(10), pf.NumRows())
	require.Len(t, pf.RowGroups(), 3)
	assert.Equal(t, int64(4), pf.RowGroups()[0].NumRows())
	assert.Equal(t, int64(2), pf.RowGroups()[2].NumRows())
}

func TestStore_MissingArchive(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "none.parquet"), "", LayoutWide, 0)
	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrArchiveNotFound)
}

func TestStore_SaveEmptyArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.parquet")
	store := NewStore(path, "", LayoutWide, 0)

	n, err := store.Save(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.parquet")
	_, err := NewStore(path, "", LayoutLong, 0).Save(context.Background(), fullDay("20240303", "1"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "archive.parquet", entries[0].Name())
}

// integerLongRow mirrors archives written with an INT64 region_id column.
type integerLongRow struct {
	Date      string   `parquet:"date"`
	RegionID  int64    `parquet:"region_id"`
	IndexName string   `parquet:"index_name"`
	Value     *float64 `parquet:"value,optional"`
}

func regionIDKind(t *testing.T, path string) parquet.Kind {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)

	pf, err := parquet.OpenFile(f, info.Size())
	require.NoError(t, err)
	leaf, ok := pf.Schema().Lookup("region_id")
	require.True(t, ok)
	return leaf.Node.Type().Kind()
}

func TestStore_KeepsIntegerRegionColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.parquet")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[integerLongRow](f)
	_, err = w.Write([]integerLongRow{
		{Date: "20240301", RegionID: 2, IndexName: "fwi", Value: domain.Float(1.5)},
		{Date: "20240301", RegionID: 10, IndexName: "fwi", Value: domain.Float(2.5)},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	store := NewStore(path, "", LayoutLong, 0)
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].RegionID)
	assert.Equal(t, "10", got[1].RegionID)
	assert.True(t, domain.IsSorted(got))

	merged := domain.MergeReadings(got, []domain.Reading{
		{Date: "20240302", RegionID: "3", Index: "fwi", Value: domain.Float(0.5)},
	})
	_, err = store.Save(context.Background(), merged)
	require.NoError(t, err)
	assert.Equal(t, parquet.Int64, regionIDKind(t, path))

	again, err := NewStore(path, "", LayoutLong, 0).Load(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(merged, again); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_IntegerRegionColumnRejectsTextID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.parquet")
	_, err := NewStore(path, "", LayoutWide, 0).Save(context.Background(), fullDay("20240301", "1"))
	require.NoError(t, err)

	store := NewStore(path, "", LayoutWide, 0)
	existing, err := store.Load(context.Background())
	require.NoError(t, err)

	_, err = store.Save(context.Background(), domain.MergeReadings(existing, fullDay("20240302", "R1")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `region id "R1"`)
	assert.Equal(t, parquet.Int64, regionIDKind(t, path), "failed save leaves the archive untouched")
}

func TestStore_NewArchiveRegionColumnType(t *testing.T) {
	dir := t.TempDir()

	numeric := filepath.Join(dir, "numeric.parquet")
	_, err := NewStore(numeric, "", LayoutWide, 0).Save(context.Background(), fullDay("20240301", "2", "10"))
	require.NoError(t, err)
	assert.Equal(t, parquet.Int64, regionIDKind(t, numeric))

	text := filepath.Join(dir, "text.parquet")
	_, err = NewStore(text, "", LayoutLong, 0).Save(context.Background(), fullDay("20240301", "2", "AB"))
	require.NoError(t, err)
	assert.Equal(t, parquet.ByteArray, regionIDKind(t, text))
}

func TestStore_SaveKeepsFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.parquet")
	store := NewStore(path, "", LayoutWide, 0)

	_, err := store.Save(context.Background(), fullDay("20240301", "1"))
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm(), "new archives are world readable")

	require.NoError(t, os.Chmod(path, 0o640))
	_, err = store.Save(context.Background(), fullDay("20240302", "1"))
	require.NoError(t, err)
	info, err = os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}
