// Package pmtiles implements the PMTiles v3 archive format described in
// §4.2: header parsing, directory encode/decode, and local (ReaderAt-based)
// and HTTP (range-request) backends sharing the same resolution algorithm.
package pmtiles

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	headerSize = 127
	magic      = "PMTiles"
	version    = 3

	compressionUnknown = 0
	compressionNone     = 1
	compressionGzip     = 2
	compressionBrotli   = 3
	compressionZstd     = 4

	tileTypeUnknown = 0
	tileTypeMVT     = 1
	tileTypePNG     = 2
	tileTypeJPEG    = 3
	tileTypeWebP    = 4
)

// Header is the 127-byte PMTiles v3 header.
type Header struct {
	RootDirOffset       uint64
	RootDirLength       uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirOffset       uint64
	LeafDirLength       uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	NumAddressedTiles   uint64
	NumTileEntries      uint64
	NumTileContents     uint64
	Clustered           bool
	InternalCompression uint8
	TileCompression     uint8
	TileType            uint8
	MinZoom             uint8
	MaxZoom             uint8
	MinLon, MinLat      float32
	MaxLon, MaxLat      float32
	CenterZoom          uint8
	CenterLon, CenterLat float32
}

// parseHeader decodes a 127-byte PMTiles v3 header.
func parseHeader(buf []byte) (Header, error) {
	if len(buf) < headerSize {
		return Header{}, fmt.Errorf("pmtiles: header too short: %d bytes", len(buf))
	}
	if string(buf[0:7]) != magic {
		return Header{}, fmt.Errorf("pmtiles: bad magic %q", buf[0:7])
	}
	if buf[7] != version {
		return Header{}, fmt.Errorf("pmtiles: unsupported version %d", buf[7])
	}

	h := Header{
		RootDirOffset:       binary.LittleEndian.Uint64(buf[8:16]),
		RootDirLength:       binary.LittleEndian.Uint64(buf[16:24]),
		MetadataOffset:      binary.LittleEndian.Uint64(buf[24:32]),
		MetadataLength:      binary.LittleEndian.Uint64(buf[32:40]),
		LeafDirOffset:       binary.LittleEndian.Uint64(buf[40:48]),
		LeafDirLength:       binary.LittleEndian.Uint64(buf[48:56]),
		TileDataOffset:      binary.LittleEndian.Uint64(buf[56:64]),
		TileDataLength:      binary.LittleEndian.Uint64(buf[64:72]),
		NumAddressedTiles:   binary.LittleEndian.Uint64(buf[72:80]),
		NumTileEntries:      binary.LittleEndian.Uint64(buf[80:88]),
		NumTileContents:     binary.LittleEndian.Uint64(buf[88:96]),
		Clustered:           buf[96] == 1,
		InternalCompression: buf[97],
		TileCompression:     buf[98],
		TileType:            buf[99],
		MinZoom:             buf[100],
		MaxZoom:             buf[101],
		MinLon:              e7ToDeg(binary.LittleEndian.Uint32(buf[102:106])),
		MinLat:              e7ToDeg(binary.LittleEndian.Uint32(buf[106:110])),
		MaxLon:              e7ToDeg(binary.LittleEndian.Uint32(buf[110:114])),
		MaxLat:              e7ToDeg(binary.LittleEndian.Uint32(buf[114:118])),
		CenterZoom:          buf[118],
		CenterLon:           e7ToDeg(binary.LittleEndian.Uint32(buf[119:123])),
		CenterLat:           e7ToDeg(binary.LittleEndian.Uint32(buf[123:127])),
	}
	return h, nil
}

// serialize encodes h back to its 127-byte wire form, used by tests and by
// anything that needs to round-trip a header.
func (h Header) serialize() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:7], magic)
	buf[7] = version

	binary.LittleEndian.PutUint64(buf[8:16], h.RootDirOffset)
	binary.LittleEndian.PutUint64(buf[16:24], h.RootDirLength)
	binary.LittleEndian.PutUint64(buf[24:32], h.MetadataOffset)
	binary.LittleEndian.PutUint64(buf[32:40], h.MetadataLength)
	binary.LittleEndian.PutUint64(buf[40:48], h.LeafDirOffset)
	binary.LittleEndian.PutUint64(buf[48:56], h.LeafDirLength)
	binary.LittleEndian.PutUint64(buf[56:64], h.TileDataOffset)
	binary.LittleEndian.PutUint64(buf[64:72], h.TileDataLength)
	binary.LittleEndian.PutUint64(buf[72:80], h.NumAddressedTiles)
	binary.LittleEndian.PutUint64(buf[80:88], h.NumTileEntries)
	binary.LittleEndian.PutUint64(buf[88:96], h.NumTileContents)

	if h.Clustered {
		buf[96] = 1
	}
	buf[97] = h.InternalCompression
	buf[98] = h.TileCompression
	buf[99] = h.TileType
	buf[100] = h.MinZoom
	buf[101] = h.MaxZoom

	binary.LittleEndian.PutUint32(buf[102:106], degToE7(h.MinLon))
	binary.LittleEndian.PutUint32(buf[106:110], degToE7(h.MinLat))
	binary.LittleEndian.PutUint32(buf[110:114], degToE7(h.MaxLon))
	binary.LittleEndian.PutUint32(buf[114:118], degToE7(h.MaxLat))

	buf[118] = h.CenterZoom
	binary.LittleEndian.PutUint32(buf[119:123], degToE7(h.CenterLon))
	binary.LittleEndian.PutUint32(buf[123:127], degToE7(h.CenterLat))
	return buf
}

func degToE7(v float32) uint32 {
	return uint32(int32(math.Round(float64(v) * 1e7)))
}

func e7ToDeg(v uint32) float32 {
	return float32(float64(int32(v)) / 1e7)
}

// tileTypeFormat maps the header's TileType byte to whether the tiles are
// MVT and to a format name that entities.ParseFormat accepts.
func tileTypeFormat(t uint8) (mvt bool, ext string) {
	switch t {
	case tileTypeMVT:
		return true, "mvt"
	case tileTypePNG:
		return false, "png"
	case tileTypeJPEG:
		return false, "jpeg"
	case tileTypeWebP:
		return false, "webp"
	default:
		return false, "unknown"
	}
}
