package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/fireweather-etl/internal/domain"
	"github.com/klauspost/compress/zlib"
	"golang.org/x/image/tiff/lzw"
)

// field is one decoded IFD entry.
type field struct {
	typ    uint16
	count  uint32
	ints   []uint64
	floats []float64
	ascii  string
}

// Read decodes band 1 of the GeoTIFF at path. A missing file yields an error
// wrapping fs.ErrNotExist.
func Read(path string) (*domain.Raster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return r, nil
}

// Decode parses band 1 of an in-memory GeoTIFF.
func Decode(data []byte) (*domain.Raster, error) {
	if len(data) < 8 {
		return nil, ErrNotTIFF
	}

	var order binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, ErrNotTIFF
	}
	switch order.Uint16(data[2:4]) {
	case 42:
	case 43:
		return nil, fmt.Errorf("%w: BigTIFF", ErrUnsupported)
	default:
		return nil, ErrNotTIFF
	}

	fields, err := readIFD(data, order, order.Uint32(data[4:8]))
	if err != nil {
		return nil, err
	}

	img, err := newImageLayout(fields)
	if err != nil {
		return nil, err
	}

	raster := domain.NewRaster(img.width, img.height, domain.GeoTransform{PixelWidth: 1, PixelHeight: -1})
	if err := img.decodeBand(data, order, raster.Values); err != nil {
		return nil, err
	}

	if err := applyGeoreference(raster, fields); err != nil {
		return nil, err
	}
	if f, ok := fields[tagGDALNoData]; ok {
		s := strings.TrimSpace(strings.TrimRight(f.ascii, "\x00"))
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			raster.NoData = &v
		}
	}
	return raster, nil
}

func readIFD(data []byte, order binary.ByteOrder, offset uint32) (map[uint16]field, error) {
	if int(offset)+2 > len(data) {
		return nil, fmt.Errorf("IFD offset %d out of range", offset)
	}
	n := int(order.Uint16(data[offset:]))
	base := int(offset) + 2
	if base+12*n > len(data) {
		return nil, fmt.Errorf("IFD with %d entries truncated", n)
	}

	fields := make(map[uint16]field, n)
	for i := 0; i < n; i++ {
		entry := data[base+12*i : base+12*(i+1)]
		tag := order.Uint16(entry[0:2])
		typ := order.Uint16(entry[2:4])
		count := order.Uint32(entry[4:8])

		size, ok := typeSizes[typ]
		if !ok {
			continue
		}
		total := size * int(count)
		raw := entry[8:12]
		if total > 4 {
			off := int(order.Uint32(entry[8:12]))
			if off+total > len(data) {
				return nil, fmt.Errorf("tag %d data out of range", tag)
			}
			raw = data[off : off+total]
		}
		fields[tag] = decodeField(typ, count, raw[:total], order)
	}
	return fields, nil
}

func decodeField(typ uint16, count uint32, raw []byte, order binary.ByteOrder) field {
	f := field{typ: typ, count: count}
	switch typ {
	case typeASCII:
		f.ascii = string(raw)
	case typeByte, typeUndefined:
		for _, b := range raw {
			f.ints = append(f.ints, uint64(b))
		}
	case typeSByte:
		for _, b := range raw {
			f.ints = append(f.ints, uint64(int8(b)))
		}
	case typeShort, typeSShort:
		for i := 0; i+2 <= len(raw); i += 2 {
			v := order.Uint16(raw[i:])
			if typ == typeSShort {
				f.ints = append(f.ints, uint64(int16(v)))
				continue
			}
			f.ints = append(f.ints, uint64(v))
		}
	case typeLong, typeSLong:
		for i := 0; i+4 <= len(raw); i += 4 {
			v := order.Uint32(raw[i:])
			if typ == typeSLong {
				f.ints = append(f.ints, uint64(int32(v)))
				continue
			}
			f.ints = append(f.ints, uint64(v))
		}
	case typeRational, typeSRational:
		for i := 0; i+8 <= len(raw); i += 8 {
			num, den := order.Uint32(raw[i:]), order.Uint32(raw[i+4:])
			if typ == typeSRational {
				f.floats = append(f.floats, float64(int32(num))/float64(int32(den)))
				continue
			}
			f.floats = append(f.floats, float64(num)/float64(den))
		}
	case typeFloat:
		for i := 0; i+4 <= len(raw); i += 4 {
			f.floats = append(f.floats, float64(math.Float32frombits(order.Uint32(raw[i:]))))
		}
	case typeDouble:
		for i := 0; i+8 <= len(raw); i += 8 {
			f.floats = append(f.floats, math.Float64frombits(order.Uint64(raw[i:])))
		}
	}
	return f
}

func (f field) first(def uint64) uint64 {
	if len(f.ints) == 0 {
		return def
	}
	return f.ints[0]
}

// imageLayout describes how band 1 is chunked and encoded.
type imageLayout struct {
	width, height   int
	bytesPerSample  int
	samplesPerPixel int
	planar          int
	format          uint16
	compression     uint64
	predictor       uint64

	chunkWidth, chunkHeight int
	tiled                   bool
	offsets, counts         []uint64
}

func newImageLayout(fields map[uint16]field) (*imageLayout, error) {
	img := &imageLayout{
		width:           int(fields[tagImageWidth].first(0)),
		height:          int(fields[tagImageLength].first(0)),
		samplesPerPixel: int(fields[tagSamplesPerPixel].first(1)),
		planar:          int(fields[tagPlanarConfig].first(1)),
		format:          uint16(fields[tagSampleFormat].first(sampleUint)),
		compression:     fields[tagCompression].first(compressionNone),
		predictor:       fields[tagPredictor].first(predictorNone),
	}
	if img.width <= 0 || img.height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", img.width, img.height)
	}

	bits := int(fields[tagBitsPerSample].first(1))
	switch bits {
	case 8, 16, 32, 64:
		img.bytesPerSample = bits / 8
	default:
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupported, bits)
	}
	if img.format == sampleFloat && bits < 32 {
		return nil, fmt.Errorf("%w: %d-bit floats", ErrUnsupported, bits)
	}

	switch img.compression {
	case compressionNone, compressionLZW, compressionDeflate, compressionDeflateOld:
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, img.compression)
	}

	if _, ok := fields[tagTileWidth]; ok {
		img.tiled = true
		img.chunkWidth = int(fields[tagTileWidth].first(0))
		img.chunkHeight = int(fields[tagTileLength].first(0))
		img.offsets = fields[tagTileOffsets].ints
		img.counts = fields[tagTileByteCounts].ints
	} else {
		img.chunkWidth = img.width
		img.chunkHeight = int(fields[tagRowsPerStrip].first(uint64(img.height)))
		if img.chunkHeight > img.height {
			img.chunkHeight = img.height
		}
		img.offsets = fields[tagStripOffsets].ints
		img.counts = fields[tagStripByteCounts].ints
	}
	if img.chunkWidth <= 0 || img.chunkHeight <= 0 {
		return nil, fmt.Errorf("invalid chunk size %dx%d", img.chunkWidth, img.chunkHeight)
	}
	if len(img.offsets) == 0 || len(img.offsets) != len(img.counts) {
		return nil, fmt.Errorf("missing or inconsistent chunk offsets")
	}
	return img, nil
}

// pixelStride is the byte distance between consecutive band-1 samples.
func (img *imageLayout) pixelStride() int {
	if img.planar == 2 {
		return img.bytesPerSample
	}
	return img.bytesPerSample * img.samplesPerPixel
}

func (img *imageLayout) decodeBand(data []byte, order binary.ByteOrder, out []float64) error {
	across := (img.width + img.chunkWidth - 1) / img.chunkWidth
	down := (img.height + img.chunkHeight - 1) / img.chunkHeight
	if across*down > len(img.offsets) {
		return fmt.Errorf("expected %d chunks, found %d", across*down, len(img.offsets))
	}

	stride := img.pixelStride()
	rowBytes := img.chunkWidth * stride

	for cy := 0; cy < down; cy++ {
		for cx := 0; cx < across; cx++ {
			i := cy*across + cx
			off, n := img.offsets[i], img.counts[i]
			if off+n > uint64(len(data)) {
				return fmt.Errorf("chunk %d out of range", i)
			}

			rows := img.chunkHeight
			if !img.tiled && (cy+1)*img.chunkHeight > img.height {
				rows = img.height - cy*img.chunkHeight
			}

			chunk, err := img.decompress(data[off:off+n], rows*rowBytes)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			chunkOrder, err := img.unpredict(chunk, rows, order)
			if err != nil {
				return err
			}

			for r := 0; r < rows; r++ {
				y := cy*img.chunkHeight + r
				if y >= img.height {
					break
				}
				for c := 0; c < img.chunkWidth; c++ {
					x := cx*img.chunkWidth + c
					if x >= img.width {
						break
					}
					p := r*rowBytes + c*stride
					out[y*img.width+x] = img.sample(chunk[p:p+img.bytesPerSample], chunkOrder)
				}
			}
		}
	}
	return nil
}

func (img *imageLayout) decompress(src []byte, want int) ([]byte, error) {
	var r io.Reader
	switch img.compression {
	case compressionNone:
		if len(src) < want {
			return nil, fmt.Errorf("short chunk: %d of %d bytes", len(src), want)
		}
		return src[:want], nil
	case compressionLZW:
		lr := lzw.NewReader(bytes.NewReader(src), lzw.MSB, 8)
		defer lr.Close()
		r = lr
	default:
		zr, err := zlib.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	out := make([]byte, want)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	return out, nil
}

// unpredict reverses the TIFF predictor in place and returns the byte order
// of the resulting samples.
func (img *imageLayout) unpredict(chunk []byte, rows int, order binary.ByteOrder) (binary.ByteOrder, error) {
	spp := img.samplesPerPixel
	if img.planar == 2 {
		spp = 1
	}
	bps := img.bytesPerSample
	rowBytes := img.chunkWidth * spp * bps

	switch img.predictor {
	case predictorNone:
		return order, nil

	case predictorHorizontal:
		if img.format == sampleFloat {
			return nil, fmt.Errorf("%w: horizontal predictor on floats", ErrUnsupported)
		}
		for r := 0; r < rows; r++ {
			row := chunk[r*rowBytes : (r+1)*rowBytes]
			for i := spp * bps; i < len(row); i += bps {
				prev := row[i-spp*bps : i-spp*bps+bps]
				cur := row[i : i+bps]
				switch bps {
				case 1:
					cur[0] += prev[0]
				case 2:
					order.PutUint16(cur, order.Uint16(cur)+order.Uint16(prev))
				case 4:
					order.PutUint32(cur, order.Uint32(cur)+order.Uint32(prev))
				case 8:
					order.PutUint64(cur, order.Uint64(cur)+order.Uint64(prev))
				}
			}
		}
		return order, nil

	case predictorFloatingPoint:
		tmp := make([]byte, rowBytes)
		n := img.chunkWidth * spp
		for r := 0; r < rows; r++ {
			row := chunk[r*rowBytes : (r+1)*rowBytes]
			for i := spp; i < len(row); i++ {
				row[i] += row[i-spp]
			}
			// Bytes are stored as planes, most significant first.
			for i := 0; i < n; i++ {
				for b := 0; b < bps; b++ {
					tmp[i*bps+b] = row[b*n+i]
				}
			}
			copy(row, tmp)
		}
		return binary.BigEndian, nil

	default:
		return nil, fmt.Errorf("%w: predictor %d", ErrUnsupported, img.predictor)
	}
}

func (img *imageLayout) sample(b []byte, order binary.ByteOrder) float64 {
	switch img.format {
	case sampleFloat:
		if img.bytesPerSample == 4 {
			return float64(math.Float32frombits(order.Uint32(b)))
		}
		return math.Float64frombits(order.Uint64(b))
	case sampleInt:
		switch img.bytesPerSample {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(order.Uint16(b)))
		case 4:
			return float64(int32(order.Uint32(b)))
		default:
			return float64(int64(order.Uint64(b)))
		}
	default:
		switch img.bytesPerSample {
		case 1:
			return float64(b[0])
		case 2:
			return float64(order.Uint16(b))
		case 4:
			return float64(order.Uint32(b))
		default:
			return float64(order.Uint64(b))
		}
	}
}

// applyGeoreference sets the raster transform from ModelTransformation or
// ModelPixelScale + ModelTiepoint and keeps the GeoKey tags for rewriting.
func applyGeoreference(r *domain.Raster, fields map[uint16]field) error {
	if f, ok := fields[tagGeoKeyDirectory]; ok {
		keys := make([]uint16, len(f.ints))
		for i, v := range f.ints {
			keys[i] = uint16(v)
		}
		r.GeoRef.KeyDirectory = keys
	}
	if f, ok := fields[tagGeoDoubleParams]; ok {
		r.GeoRef.DoubleParams = f.floats
	}
	if f, ok := fields[tagGeoASCIIParams]; ok {
		r.GeoRef.ASCIIParams = f.ascii
	}

	if f, ok := fields[tagModelTransformation]; ok {
		m := f.floats
		if len(m) < 16 {
			return fmt.Errorf("model transformation has %d values, want 16", len(m))
		}
		r.Transform = domain.GeoTransform{
			OriginX: m[3], PixelWidth: m[0], RotX: m[1],
			OriginY: m[7], RotY: m[4], PixelHeight: m[5],
		}
	} else {
		scale, hasScale := fields[tagModelPixelScale]
		tie, hasTie := fields[tagModelTiepoint]
		if !hasScale || !hasTie {
			return nil
		}
		if len(scale.floats) < 2 || len(tie.floats) < 6 {
			return fmt.Errorf("malformed pixel scale or tiepoint")
		}
		sx, sy := scale.floats[0], scale.floats[1]
		i, j, x, y := tie.floats[0], tie.floats[1], tie.floats[3], tie.floats[4]
		r.Transform = domain.GeoTransform{
			OriginX: x - i*sx, PixelWidth: sx,
			OriginY: y + j*sy, PixelHeight: -sy,
		}
	}

	if rasterType(r.GeoRef.KeyDirectory) == pixelIsPoint {
		r.Transform.OriginX -= 0.5 * r.Transform.PixelWidth
		r.Transform.OriginY -= 0.5 * r.Transform.PixelHeight
	}
	return nil
}

func rasterType(keys []uint16) uint16 {
	if len(keys) < 4 {
		return 0
	}
	n := int(keys[3])
	for k := 0; k < n && 4+4*k+3 < len(keys); k++ {
		entry := keys[4+4*k : 4+4*k+4]
		if entry[0] == rasterTypeGeoKey && entry[1] == 0 {
			return entry[3]
		}
	}
	return 0
}
