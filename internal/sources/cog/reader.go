package cog

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/google/tiff"
	"golang.org/x/image/tiff/lzw"

	"tileserver/entities"
)

// Reader provides tile-level, concurrency-safe read access to a single
// COG/GeoTIFF file. Per §4.6's concurrency note, the underlying *os.File is
// safe for concurrent ReadAt calls, so readers never serialize on a mutex —
// only the source-level dataset handle (below, in source.go) enforces the
// "one critical section per dataset" rule for the higher-level warp/encode
// work.
type Reader struct {
	file   *os.File
	levels []level
	geo    GeoInfo
	nodata *float64
	bounds entities.BoundingBox
}

// OpenDataset parses path as a GeoTIFF: band count (erroring if zero),
// geotransform and EPSG, and the WGS84 bounds of the four corners (§4.6
// open-time step).
func OpenDataset(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cog: opening %s: %w", path, err)
	}

	parsed, err := tiff.Parse(f, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cog: parsing %s: %w", path, err)
	}

	levels, first, err := parseIFDs(parsed.IFDs())
	if err != nil {
		f.Close()
		return nil, err
	}
	geo, err := parseGeoInfo(first)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("cog: %s: %w", path, err)
	}

	r := &Reader{file: f, levels: levels, geo: geo}

	if nd := strings.TrimSpace(first.GDALNoData); nd != "" {
		if v, err := strconv.ParseFloat(nd, 64); err == nil {
			r.nodata = &v
		}
	}

	minX, minY, maxX, maxY := r.boundsInCRS()
	corners := [4][2]float64{{minX, minY}, {minX, maxY}, {maxX, minY}, {maxX, maxY}}
	west, south := math.Inf(1), math.Inf(1)
	east, north := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		lon, lat := toWGS84(geo.EPSG, c[0], c[1])
		west = math.Min(west, lon)
		east = math.Max(east, lon)
		south = math.Min(south, lat)
		north = math.Max(north, lat)
	}
	r.bounds = entities.BoundingBox{West: west, South: south, East: east, North: north}

	return r, nil
}

func (r *Reader) Close() error { return r.file.Close() }

// Bands reports the source band count (from the first/full-resolution IFD).
func (r *Reader) Bands() int { return r.levels[0].samplesPerPixel }

// IsFloat reports whether pixel samples are IEEE floating point.
func (r *Reader) IsFloat() bool { return r.levels[0].sampleFormat == 3 }

// Bounds returns the dataset's WGS84 bounding box computed at open time.
func (r *Reader) Bounds() entities.BoundingBox { return r.bounds }

// NoData returns the configured GDAL nodata value and whether one is set.
func (r *Reader) NoData() (float64, bool) {
	if r.nodata == nil {
		return 0, false
	}
	return *r.nodata, true
}

func (r *Reader) boundsInCRS() (minX, minY, maxX, maxY float64) {
	l := r.levels[0]
	minX = r.geo.OriginX
	maxY = r.geo.OriginY
	maxX = minX + float64(l.width)*r.geo.PixelSizeX
	minY = maxY - float64(l.height)*r.geo.PixelSizeY
	return
}

// EPSG returns the dataset's detected spatial reference EPSG code, or 0 if
// it could not be determined from the GeoKey directory.
func (r *Reader) EPSG() int { return r.geo.EPSG }

// OverviewForLevel picks the IFD level whose resolution in CRS units is
// closest to outputPixelSizeCRS, matching fd0601e3's OverviewForZoom.
func (r *Reader) OverviewForLevel(outputPixelSizeCRS float64) int {
	full := float64(r.levels[0].width)
	best, bestRatio := 0, math.Inf(1)
	for i, l := range r.levels {
		levelPixelSize := r.geo.PixelSizeX * full / float64(l.width)
		ratio := math.Abs(levelPixelSize/outputPixelSizeCRS - 1)
		if ratio < bestRatio {
			bestRatio = ratio
			best = i
		}
	}
	return best
}

// LevelPixelSize returns the per-pixel CRS size at the given overview level.
func (r *Reader) LevelPixelSize(level int) float64 {
	return r.geo.PixelSizeX * float64(r.levels[0].width) / float64(r.levels[level].width)
}

// LevelSize returns the pixel dimensions of the given overview level.
func (r *Reader) LevelSize(level int) (w, h int) {
	l := r.levels[level]
	return l.width, l.height
}

// Origin returns the dataset's CRS origin (top-left corner).
func (r *Reader) Origin() (x, y float64) { return r.geo.OriginX, r.geo.OriginY }

// SampleRGBA reads the RGBA value of a single pixel at (px, py) in the given
// overview level's pixel space, replicating single-band data to grayscale
// and treating the nodata value (if any) as alpha=0, per §4.6 step 4.
func (r *Reader) SampleRGBA(level, px, py int) (color.RGBA, error) {
	l := r.levels[level]
	if px < 0 || px >= l.width || py < 0 || py >= l.height {
		return color.RGBA{}, fmt.Errorf("cog: pixel (%d,%d) out of range", px, py)
	}
	col := px / l.tileWidth
	row := py / l.tileHeight
	tile, err := r.readTile(level, col, row)
	if err != nil {
		return color.RGBA{}, err
	}
	localX := px % l.tileWidth
	localY := py % l.tileHeight
	if tile == nil {
		return color.RGBA{}, nil
	}
	return tile.RGBAAt(localX, localY), nil
}

// SampleFloat reads a single-band float32 pixel value at (px, py), returning
// math.NaN() for pixels in an empty (unwritten) tile.
func (r *Reader) SampleFloat(level, px, py int) (float64, error) {
	l := r.levels[level]
	if px < 0 || px >= l.width || py < 0 || py >= l.height {
		return math.NaN(), fmt.Errorf("cog: pixel (%d,%d) out of range", px, py)
	}
	col := px / l.tileWidth
	row := py / l.tileHeight
	data, err := r.readRawTile(level, col, row)
	if err != nil {
		return math.NaN(), err
	}
	if data == nil {
		return math.NaN(), nil
	}
	localX := px % l.tileWidth
	localY := py % l.tileHeight
	idx := localY*l.tileWidth + localX
	bytesPerSample := l.bitsPerSample / 8
	off := idx * l.samplesPerPixel * bytesPerSample
	if off+4 > len(data) {
		return math.NaN(), nil
	}
	bits := uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24
	return float64(math.Float32frombits(bits)), nil
}

// readTile returns a tile decoded into an RGBA image, or nil for an empty
// (zero-length) tile.
func (r *Reader) readTile(lvl, col, row int) (*image.RGBA, error) {
	l := r.levels[lvl]
	data, err := r.readRawTile(lvl, col, row)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	if l.compression == 7 { // JPEG
		img, err := decodeJPEGTile(l, data)
		if err != nil {
			return nil, err
		}
		return toRGBA(img), nil
	}
	return decodeRawTile(l, data, r.nodata), nil
}

// readRawTile reads and decompresses the raw bytes of tile (col,row),
// applying the horizontal-differencing predictor if configured. JPEG tiles
// are returned compressed (the caller decodes them directly).
func (r *Reader) readRawTile(lvl, col, row int) ([]byte, error) {
	l := r.levels[lvl]
	if col < 0 || col >= l.tilesAcross || row < 0 || row >= l.tilesDown {
		return nil, fmt.Errorf("cog: tile (%d,%d) out of range", col, row)
	}
	idx := row*l.tilesAcross + col
	if idx >= len(l.tileOffsets) || idx >= len(l.tileByteCounts) {
		return nil, fmt.Errorf("cog: tile index %d out of range", idx)
	}
	size := l.tileByteCounts[idx]
	if size == 0 {
		return nil, nil
	}
	raw := make([]byte, size)
	if _, err := r.file.ReadAt(raw, int64(l.tileOffsets[idx])); err != nil {
		return nil, fmt.Errorf("cog: reading tile (%d,%d): %w", col, row, err)
	}

	if l.compression == 7 {
		return raw, nil
	}

	var decompressed []byte
	switch l.compression {
	case 1:
		decompressed = raw
	case 8, 32946:
		dec, err := decompressDeflate(raw)
		if err != nil {
			return nil, fmt.Errorf("cog: deflate tile (%d,%d): %w", col, row, err)
		}
		decompressed = dec
	case 5:
		dec, err := decompressLZW(raw)
		if err != nil {
			return nil, fmt.Errorf("cog: LZW tile (%d,%d): %w", col, row, err)
		}
		decompressed = dec
	default:
		return nil, fmt.Errorf("cog: unsupported compression %d", l.compression)
	}

	if l.predictor == 2 {
		undoHorizontalDifferencing(decompressed, l.tileWidth, l.samplesPerPixel, l.bitsPerSample)
	}
	return decompressed, nil
}

func decompressDeflate(data []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

func decompressLZW(data []byte) ([]byte, error) {
	lr := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	defer lr.Close()
	return io.ReadAll(lr)
}

// undoHorizontalDifferencing reverses TIFF predictor=2, accumulating the
// per-row deltas stored by the writer back into absolute sample values.
func undoHorizontalDifferencing(data []byte, width, samplesPerPixel, bitsPerSample int) {
	if bitsPerSample != 8 {
		return // only byte samples need manual undoing here; float data uses predictor=1
	}
	rowBytes := width * samplesPerPixel
	for off := 0; off+rowBytes <= len(data); off += rowBytes {
		row := data[off : off+rowBytes]
		for x := samplesPerPixel; x < rowBytes; x++ {
			row[x] += row[x-samplesPerPixel]
		}
	}
}

func decodeJPEGTile(l level, data []byte) (image.Image, error) {
	jpegData := data
	if len(l.jpegTables) > 0 {
		tables := l.jpegTables
		if len(tables) >= 2 && tables[len(tables)-2] == 0xFF && tables[len(tables)-1] == 0xD9 {
			tables = tables[:len(tables)-2]
		}
		tileData := data
		if len(tileData) >= 2 && tileData[0] == 0xFF && tileData[1] == 0xD8 {
			tileData = tileData[2:]
		}
		jpegData = append(append([]byte{}, tables...), tileData...)
	}
	return jpeg.Decode(bytes.NewReader(jpegData))
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(x, y, img.At(x, y))
		}
	}
	return dst
}

// decodeRawTile decodes uncompressed band bytes into RGBA per §4.6 step 4:
// single band replicated to grayscale (alpha 255, or 0 at the nodata
// value), two bands treated as grayscale+alpha, three as RGB (alpha 255),
// four or more as RGBA directly.
func decodeRawTile(l level, data []byte, nodata *float64) *image.RGBA {
	w, h, spp := l.tileWidth, l.tileHeight, l.samplesPerPixel
	img := image.NewRGBA(image.Rect(0, 0, w, h))

	var hasNodata bool
	var nodataVal uint8
	if nodata != nil && *nodata >= 0 && *nodata <= 255 && *nodata == math.Floor(*nodata) {
		nodataVal = uint8(*nodata)
		hasNodata = true
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := (y*w + x) * spp
			if idx+spp > len(data) {
				break
			}
			var c color.RGBA
			switch spp {
			case 1:
				v := data[idx]
				c.R, c.G, c.B = v, v, v
				c.A = 255
				if hasNodata && v == nodataVal {
					c.A = 0
				}
			case 2:
				v := data[idx]
				c.R, c.G, c.B = v, v, v
				c.A = data[idx+1]
				if hasNodata && v == nodataVal {
					c.A = 0
				}
			case 3:
				c.R, c.G, c.B = data[idx], data[idx+1], data[idx+2]
				c.A = 255
			default:
				c.R, c.G, c.B, c.A = data[idx], data[idx+1], data[idx+2], data[idx+3]
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}
