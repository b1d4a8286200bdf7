package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/couchcryptid/fireweather-etl/internal/domain"
	"github.com/klauspost/compress/zlib"
)

// Options controls how a raster is encoded.
type Options struct {
	DataType DataType
	// Deflate compresses each strip with zlib.
	Deflate bool
	// RowsPerStrip defaults to a strip of roughly 8 KiB.
	RowsPerStrip int
}

// DefaultOptions writes deflate-compressed float32, as GDAL does for the
// forecast layers.
var DefaultOptions = Options{DataType: Float32, Deflate: true}

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// Write encodes r as a little-endian stripped GeoTIFF at path. The file is
// written to a temporary name in the same directory and renamed into place.
func Write(path string, r *domain.Raster, opts Options) error {
	data, err := Encode(r, opts)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.tif")
	if err != nil {
		return fmt.Errorf("create temp raster: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}

// Encode returns r as an in-memory GeoTIFF.
func Encode(r *domain.Raster, opts Options) ([]byte, error) {
	if r.Width <= 0 || r.Height <= 0 || len(r.Values) != r.Width*r.Height {
		return nil, fmt.Errorf("invalid raster %dx%d with %d values", r.Width, r.Height, len(r.Values))
	}
	if r.Transform.Rotated() {
		return nil, domain.ErrRotatedGrid
	}

	format, bits := opts.DataType.layout()
	bps := bits / 8
	rowBytes := r.Width * bps

	rowsPerStrip := opts.RowsPerStrip
	if rowsPerStrip <= 0 {
		rowsPerStrip = max(1, 8192/rowBytes)
	}
	rowsPerStrip = min(rowsPerStrip, r.Height)
	strips := (r.Height + rowsPerStrip - 1) / rowsPerStrip

	order := binary.LittleEndian
	var body bytes.Buffer
	offsets := make([]uint32, strips)
	counts := make([]uint32, strips)

	// Header is 8 bytes; strip data follows directly.
	const headerSize = 8
	for s := 0; s < strips; s++ {
		first := s * rowsPerStrip
		last := min(first+rowsPerStrip, r.Height)
		raw := make([]byte, (last-first)*rowBytes)
		for i, v := range r.Values[first*r.Width : last*r.Width] {
			putSample(raw[i*bps:], v, opts.DataType, order)
		}

		chunk := raw
		if opts.Deflate {
			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			if _, err := zw.Write(raw); err != nil {
				return nil, fmt.Errorf("deflate strip %d: %w", s, err)
			}
			if err := zw.Close(); err != nil {
				return nil, fmt.Errorf("deflate strip %d: %w", s, err)
			}
			chunk = buf.Bytes()
		}

		offsets[s] = uint32(headerSize + body.Len())
		counts[s] = uint32(len(chunk))
		body.Write(chunk)
		if body.Len()%2 == 1 {
			body.WriteByte(0)
		}
	}

	compression := uint16(compressionNone)
	if opts.Deflate {
		compression = compressionDeflate
	}

	entries := []entry{
		shortEntry(tagImageWidth, uint16(r.Width)),
		longEntry(tagImageLength, uint32(r.Height)),
		shortEntry(tagBitsPerSample, uint16(bits)),
		shortEntry(tagCompression, compression),
		shortEntry(tagPhotometric, 1),
		longsEntry(tagStripOffsets, offsets),
		shortEntry(tagSamplesPerPixel, 1),
		longEntry(tagRowsPerStrip, uint32(rowsPerStrip)),
		longsEntry(tagStripByteCounts, counts),
		shortEntry(tagPlanarConfig, 1),
		shortEntry(tagSampleFormat, format),
	}
	if r.Width > math.MaxUint16 {
		entries[0] = longEntry(tagImageWidth, uint32(r.Width))
	}

	t := r.Transform
	entries = append(entries,
		doublesEntry(tagModelPixelScale, []float64{t.PixelWidth, -t.PixelHeight, 0}),
		doublesEntry(tagModelTiepoint, []float64{0, 0, 0, t.OriginX, t.OriginY, 0}),
	)

	keys := areaKeyDirectory(r.GeoRef.KeyDirectory)
	if len(keys) > 0 {
		entries = append(entries, shortsEntry(tagGeoKeyDirectory, keys))
	}
	if len(r.GeoRef.DoubleParams) > 0 {
		entries = append(entries, doublesEntry(tagGeoDoubleParams, r.GeoRef.DoubleParams))
	}
	if r.GeoRef.ASCIIParams != "" {
		entries = append(entries, asciiEntry(tagGeoASCIIParams, r.GeoRef.ASCIIParams))
	}
	if r.NoData != nil {
		entries = append(entries, asciiEntry(tagGDALNoData, strconv.FormatFloat(*r.NoData, 'g', -1, 64)))
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	ifdOffset := headerSize + body.Len()
	ifdSize := 2 + 12*len(entries) + 4
	extraOffset := ifdOffset + ifdSize

	var out bytes.Buffer
	out.WriteString("II")
	_ = binary.Write(&out, order, uint16(42))
	_ = binary.Write(&out, order, uint32(ifdOffset))
	out.Write(body.Bytes())

	var extra bytes.Buffer
	_ = binary.Write(&out, order, uint16(len(entries)))
	for _, e := range entries {
		_ = binary.Write(&out, order, e.tag)
		_ = binary.Write(&out, order, e.typ)
		_ = binary.Write(&out, order, e.count)
		if len(e.data) <= 4 {
			var inline [4]byte
			copy(inline[:], e.data)
			out.Write(inline[:])
			continue
		}
		_ = binary.Write(&out, order, uint32(extraOffset+extra.Len()))
		extra.Write(e.data)
		if extra.Len()%2 == 1 {
			extra.WriteByte(0)
		}
	}
	_ = binary.Write(&out, order, uint32(0))
	out.Write(extra.Bytes())
	return out.Bytes(), nil
}

// areaKeyDirectory drops a PixelIsPoint raster type, since the writer always
// stores the transform as PixelIsArea.
func areaKeyDirectory(keys []uint16) []uint16 {
	if rasterType(keys) != pixelIsPoint {
		return keys
	}
	out := append([]uint16(nil), keys...)
	n := int(out[3])
	for k := 0; k < n && 4+4*k+3 < len(out); k++ {
		if out[4+4*k] == rasterTypeGeoKey {
			out[4+4*k+3] = 1
		}
	}
	return out
}

func putSample(b []byte, v float64, dt DataType, order binary.ByteOrder) {
	switch dt {
	case Float64:
		order.PutUint64(b, math.Float64bits(v))
	case Uint8:
		b[0] = uint8(clampInt(v, 0, math.MaxUint8))
	case Uint16:
		order.PutUint16(b, uint16(clampInt(v, 0, math.MaxUint16)))
	case Int16:
		order.PutUint16(b, uint16(int16(clampInt(v, math.MinInt16, math.MaxInt16))))
	case Int32:
		order.PutUint32(b, uint32(int32(clampInt(v, math.MinInt32, math.MaxInt32))))
	default:
		order.PutUint32(b, math.Float32bits(float32(v)))
	}
}

func clampInt(v, lo, hi float64) int64 {
	if math.IsNaN(v) {
		return 0
	}
	return int64(math.Round(math.Max(lo, math.Min(hi, v))))
}

func shortEntry(tag uint16, v uint16) entry {
	return shortsEntry(tag, []uint16{v})
}

func shortsEntry(tag uint16, vs []uint16) entry {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return entry{tag: tag, typ: typeShort, count: uint32(len(vs)), data: b}
}

func longEntry(tag uint16, v uint32) entry {
	return longsEntry(tag, []uint32{v})
}

func longsEntry(tag uint16, vs []uint32) entry {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return entry{tag: tag, typ: typeLong, count: uint32(len(vs)), data: b}
}

func doublesEntry(tag uint16, vs []float64) entry {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return entry{tag: tag, typ: typeDouble, count: uint32(len(vs)), data: b}
}

func asciiEntry(tag uint16, s string) entry {
	b := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}
