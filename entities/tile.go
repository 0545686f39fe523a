// Package entities holds the plain data types shared by every tile source
// backend: coordinates, formats, compression, payloads and metadata. None of
// these types carry behavior beyond simple projections (MIME type, file
// extension) — the backends and the coordinator own the logic.
package entities

import "fmt"

// TileCoordinates is a slippy-map (z, x, y) triple using the XYZ convention
// (y=0 at the top). 0 <= z <= 30 and 0 <= x,y < 2^z.
type TileCoordinates struct {
	Z, X, Y int
}

// Valid reports whether c is a well-formed XYZ coordinate: x and y must sit
// inside [0, 2^z). It knows nothing about a particular source's zoom range —
// that clamping happens at the source, per §4.1.
func (c TileCoordinates) Valid() bool {
	if c.Z < 0 || c.Z > 30 {
		return false
	}
	n := 1 << uint(c.Z)
	return c.X >= 0 && c.X < n && c.Y >= 0 && c.Y < n
}

// String renders the coordinate as "z/x/y", used in cache keys and logs.
func (c TileCoordinates) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Z, c.X, c.Y)
}

// FlipY converts between the XYZ and TMS y addressing at a fixed zoom.
// It is its own inverse: FlipY(FlipY(y, z), z) == y.
func FlipY(y, z int) int {
	return (1 << uint(z)) - 1 - y
}

// TileFormat is the payload's encoding.
type TileFormat int

const (
	FormatUnknown TileFormat = iota
	FormatMVT                // Mapbox Vector Tile (protobuf)
	FormatPNG
	FormatJPEG
	FormatWebP
	FormatAVIF
)

// MIME returns the Content-Type for the format. Extension (not MIME) is the
// inverse of ParseFormat for every non-Unknown format; ParseFormat does not
// accept MIME strings.
func (f TileFormat) MIME() string {
	switch f {
	case FormatMVT:
		return "application/x-protobuf"
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	case FormatAVIF:
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the canonical file extension for the format.
func (f TileFormat) Extension() string {
	switch f {
	case FormatMVT:
		return "pbf"
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpg"
	case FormatWebP:
		return "webp"
	case FormatAVIF:
		return "avif"
	default:
		return "bin"
	}
}

func (f TileFormat) String() string {
	switch f {
	case FormatMVT:
		return "mvt"
	case FormatPNG:
		return "png"
	case FormatJPEG:
		return "jpeg"
	case FormatWebP:
		return "webp"
	case FormatAVIF:
		return "avif"
	default:
		return "unknown"
	}
}

// ParseFormat maps an extension or MBTiles "format" metadata value
// (pbf|mvt|png|jpg|jpeg|webp|avif) to a TileFormat.
func ParseFormat(s string) TileFormat {
	switch s {
	case "pbf", "mvt":
		return FormatMVT
	case "png":
		return FormatPNG
	case "jpg", "jpeg":
		return FormatJPEG
	case "webp":
		return FormatWebP
	case "avif":
		return FormatAVIF
	default:
		return FormatUnknown
	}
}

// TileCompression is the payload's outer content-encoding.
type TileCompression int

const (
	CompressionNone TileCompression = iota
	CompressionGzip
	CompressionZstd
	CompressionBrotli
)

// ContentEncoding returns the HTTP Content-Encoding token, or "" for None.
func (c TileCompression) ContentEncoding() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionBrotli:
		return "br"
	default:
		return ""
	}
}

// gzipMagic is the two leading bytes of a gzip stream (RFC 1952 §2.3.1).
var gzipMagic = [2]byte{0x1F, 0x8B}

// SniffCompression detects gzip framing from the payload's leading bytes.
// MBTiles and PostGIS payloads are tagged this way; PMTiles declares its
// compression in the archive header instead (§3).
func SniffCompression(data []byte) TileCompression {
	if len(data) >= 2 && data[0] == gzipMagic[0] && data[1] == gzipMagic[1] {
		return CompressionGzip
	}
	return CompressionNone
}

// TilePayload is the immutable result of a successful tile fetch.
type TilePayload struct {
	Data        []byte
	Format      TileFormat
	Compression TileCompression
}

// Weight returns the cache weight of the payload: its byte length.
func (p TilePayload) Weight() int64 {
	return int64(len(p.Data))
}

// BoundingBox is a geographic extent in WGS84 degrees.
type BoundingBox struct {
	West, South, East, North float64
}

// Center is a map center with an associated display zoom.
type Center struct {
	Lon, Lat float64
	Zoom     float64
}
