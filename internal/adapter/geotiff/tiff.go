// Package geotiff reads and writes single-band GeoTIFF rasters.
//
// Only the subset produced by GDAL-based forecasting jobs is supported:
// classic (non-Big) TIFF in either byte order, stripped or tiled layout,
// no/LZW/deflate compression, integer or floating point samples. Band 1 is
// the only band ever decoded.
package geotiff

import "errors"

// Baseline and GeoTIFF tag ids.
const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfig        = 284
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGeoDoubleParams     = 34736
	tagGeoASCIIParams      = 34737
	tagGDALNoData          = 42113
)

// Field types.
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
)

var typeSizes = map[uint16]int{
	typeByte:      1,
	typeASCII:     1,
	typeShort:     2,
	typeLong:      4,
	typeRational:  8,
	typeSByte:     1,
	typeUndefined: 1,
	typeSShort:    2,
	typeSLong:     4,
	typeSRational: 8,
	typeFloat:     4,
	typeDouble:    8,
}

// Compression schemes.
const (
	compressionNone        = 1
	compressionLZW         = 5
	compressionDeflate     = 8
	compressionDeflateOld  = 32946
	predictorNone          = 1
	predictorHorizontal    = 2
	predictorFloatingPoint = 3
)

// Sample formats.
const (
	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

// rasterTypeGeoKey selects PixelIsArea (1) or PixelIsPoint (2).
const (
	rasterTypeGeoKey = 1025
	pixelIsPoint     = 2
)

// DataType is the on-disk sample type of a written raster.
type DataType int

const (
	Float32 DataType = iota
	Float64
	Uint8
	Uint16
	Int16
	Int32
)

func (d DataType) layout() (format uint16, bits int) {
	switch d {
	case Float64:
		return sampleFloat, 64
	case Uint8:
		return sampleUint, 8
	case Uint16:
		return sampleUint, 16
	case Int16:
		return sampleInt, 16
	case Int32:
		return sampleInt, 32
	default:
		return sampleFloat, 32
	}
}

var (
	// ErrNotTIFF is returned for files without a TIFF header.
	ErrNotTIFF = errors.New("not a TIFF file")

	// ErrUnsupported is returned for valid TIFF features outside the supported subset.
	ErrUnsupported = errors.New("unsupported TIFF feature")
)
