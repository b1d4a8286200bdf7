// Package parquet persists the fire-weather archive as a Parquet file in
// either long (one row per reading) or wide (one row per date and region)
// layout.
package parquet

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/couchcryptid/fireweather-etl/internal/domain"
	"github.com/parquet-go/parquet-go"
)

// Layout names an on-disk archive shape.
type Layout string

const (
	LayoutWide Layout = "wide"
	LayoutLong Layout = "long"
)

// DefaultRowGroupSize matches the historical archive: 143 regions x 64 days.
const DefaultRowGroupSize = 143 * 64

// Store reads the archive from one path and writes it to another, which may
// be the same file.
type Store struct {
	inPath       string
	outPath      string
	layout       Layout
	rowGroupSize int

	// regionColumn is the region_id type seen by the last Load, kept so a
	// rewrite does not change the column type.
	regionColumn regionColumn
}

// regionColumn is the physical type of the region_id column.
type regionColumn int

const (
	regionAuto regionColumn = iota
	regionText
	regionInteger
)

// defaultArchiveMode applies when Save creates the archive.
const defaultArchiveMode fs.FileMode = 0o644

// NewStore creates a Store. Empty outPath means write back to inPath.
func NewStore(inPath, outPath string, layout Layout, rowGroupSize int) *Store {
	if outPath == "" {
		outPath = inPath
	}
	if rowGroupSize <= 0 {
		rowGroupSize = DefaultRowGroupSize
	}
	return &Store{inPath: inPath, outPath: outPath, layout: layout, rowGroupSize: rowGroupSize}
}

// Load reads the whole archive into long form, whatever layout it was written
// in. A missing file yields domain.ErrArchiveNotFound.
func (s *Store) Load(ctx context.Context) ([]domain.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(s.inPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrArchiveNotFound, s.inPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	layout, column, err := detectLayout(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", s.inPath, err)
	}
	s.regionColumn = column

	switch {
	case layout == LayoutLong && column == regionInteger:
		return readLong[int64](f, info.Size())
	case layout == LayoutLong:
		return readLong[string](f, info.Size())
	case column == regionInteger:
		return readWide[int64](f, info.Size())
	default:
		return readWide[string](f, info.Size())
	}
}

func readLong[ID regionKey](f *os.File, size int64) ([]domain.Reading, error) {
	rows, err := parquet.Read[longRow[ID]](f, size)
	if err != nil {
		return nil, fmt.Errorf("read long archive: %w", err)
	}
	out := make([]domain.Reading, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func readWide[ID regionKey](f *os.File, size int64) ([]domain.Reading, error) {
	rows, err := parquet.Read[wideRow[ID]](f, size)
	if err != nil {
		return nil, fmt.Errorf("read wide archive: %w", err)
	}
	wide := make([]domain.WideRow, len(rows))
	for i, r := range rows {
		wide[i] = r.toDomain()
	}
	return domain.Unpivot(wide), nil
}

// Save rewrites the archive from sorted long-form readings in the configured
// layout and returns the number of rows written. The file is replaced
// atomically.
func (s *Store) Save(ctx context.Context, readings []domain.Reading) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	dir := filepath.Dir(s.outPath)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.outPath)+".*")
	if err != nil {
		return 0, fmt.Errorf("create temp archive: %w", err)
	}
	defer os.Remove(tmp.Name())

	column := s.regionColumn
	if column == regionAuto {
		column = columnFor(readings)
	}

	var n int
	if column == regionInteger {
		n, err = encode[int64](tmp, s.layout, readings, s.rowGroupSize)
	} else {
		n, err = encode[string](tmp, s.layout, readings, s.rowGroupSize)
	}
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write archive: %w", err)
	}

	mode := defaultArchiveMode
	if info, err := os.Stat(s.outPath); err == nil {
		mode = info.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("chmod archive: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.outPath); err != nil {
		return 0, fmt.Errorf("replace archive: %w", err)
	}
	return n, nil
}

// columnFor picks the region_id type for a new archive: INT64 when every id
// is an integer, text otherwise.
func columnFor(readings []domain.Reading) regionColumn {
	if len(readings) == 0 {
		return regionText
	}
	for _, r := range readings {
		if _, err := strconv.ParseInt(r.RegionID, 10, 64); err != nil {
			return regionText
		}
	}
	return regionInteger
}

// encode converts readings to the layout's row type and writes them.
func encode[ID regionKey](f *os.File, layout Layout, readings []domain.Reading, groupSize int) (int, error) {
	if layout == LayoutLong {
		rows := make([]longRow[ID], len(readings))
		for i, r := range readings {
			row, err := toLongRow[ID](r)
			if err != nil {
				return 0, err
			}
			rows[i] = row
		}
		return writeRows(f, rows, groupSize)
	}

	wide, err := domain.Pivot(readings)
	if err != nil {
		return 0, err
	}
	rows := make([]wideRow[ID], len(wide))
	for i, w := range wide {
		row, err := toWideRow[ID](w)
		if err != nil {
			return 0, err
		}
		rows[i] = row
	}
	return writeRows(f, rows, groupSize)
}

// writeRows writes snappy-compressed rows, cutting a row group every
// groupSize rows.
func writeRows[T any](f *os.File, rows []T, groupSize int) (int, error) {
	w := parquet.NewGenericWriter[T](f, parquet.Compression(&parquet.Snappy))

	written := 0
	for start := 0; start < len(rows); start += groupSize {
		end := min(start+groupSize, len(rows))
		n, err := w.Write(rows[start:end])
		written += n
		if err != nil {
			return written, err
		}
		if err := w.Flush(); err != nil {
			return written, err
		}
	}
	if err := w.Close(); err != nil {
		return written, err
	}
	return written, nil
}

// detectLayout inspects the schema: long archives carry an index_name column,
// wide ones carry index columns directly. It also reports the region_id type.
func detectLayout(f *os.File, size int64) (Layout, regionColumn, error) {
	pf, err := parquet.OpenFile(f, size)
	if err != nil {
		return "", regionAuto, err
	}
	schema := pf.Schema()

	column := regionText
	if leaf, ok := schema.Lookup("region_id"); ok {
		switch leaf.Node.Type().Kind() {
		case parquet.Int64, parquet.Int32:
			column = regionInteger
		}
	}

	if _, ok := schema.Lookup("index_name"); ok {
		return LayoutLong, column, nil
	}
	for _, name := range domain.IndexNames {
		if _, ok := schema.Lookup(name); ok {
			return LayoutWide, column, nil
		}
	}
	if _, ok := schema.Lookup("date"); ok {
		return LayoutWide, column, nil
	}
	return "", regionAuto, errors.New("unrecognised archive schema: no date column")
}
