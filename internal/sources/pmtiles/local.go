package pmtiles

import (
	"context"
	"fmt"
	"os"

	"tileserver/entities"
	"tileserver/internal/geo"
	"tileserver/internal/tileerr"
)

// LocalSource reads a PMTiles archive straight off disk via ReaderAt. No
// library in the retrieved corpus wraps a memory-mapped file, so reads go
// through the file's ReadAt rather than a mmap region, and each read copies
// the requested byte range into a freshly allocated buffer.
type LocalSource struct {
	id     string
	file   *os.File
	header Header
	dir    *directorySource
	meta   entities.SourceMetadata
}

// OpenLocal opens the PMTiles archive at path.
func OpenLocal(id, path string, leafCacheSize int) (*LocalSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindBackendError, "opening pmtiles archive", err)
	}

	headerBuf := make([]byte, headerSize)
	if _, err := f.ReadAt(headerBuf, 0); err != nil {
		f.Close()
		return nil, tileerr.Wrap(tileerr.KindMetadataError, "reading pmtiles header", err)
	}
	h, err := parseHeader(headerBuf)
	if err != nil {
		f.Close()
		return nil, tileerr.Wrap(tileerr.KindMetadataError, "parsing pmtiles header", err)
	}

	s := &LocalSource{id: id, file: f, header: h}

	rootRaw := make([]byte, h.RootDirLength)
	if _, err := f.ReadAt(rootRaw, int64(h.RootDirOffset)); err != nil {
		f.Close()
		return nil, tileerr.Wrap(tileerr.KindMetadataError, "reading pmtiles root directory", err)
	}
	root, err := decodeCompressedDirectory(rootRaw, h.InternalCompression)
	if err != nil {
		f.Close()
		return nil, tileerr.Wrap(tileerr.KindMetadataError, "parsing pmtiles root directory", err)
	}

	s.dir = &directorySource{header: h, root: root, fetch: s, leaves: newLeafCache(leafCacheSize)}

	var metaJSON []byte
	if h.MetadataLength > 0 {
		raw := make([]byte, h.MetadataLength)
		if _, err := f.ReadAt(raw, int64(h.MetadataOffset)); err == nil {
			if dec, derr := gzipDecompress(raw); derr == nil {
				metaJSON = dec
			} else {
				metaJSON = raw
			}
		}
	}
	s.meta = buildMetadata(id, h, metaJSON)

	return s, nil
}

func (s *LocalSource) fetchRange(_ context.Context, offset, length uint64) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := s.file.ReadAt(buf, int64(offset)); err != nil {
		return nil, err
	}
	return buf, nil
}

// GetTile implements interfaces.TileSource.
func (s *LocalSource) GetTile(ctx context.Context, c entities.TileCoordinates) (*entities.TilePayload, error) {
	if !c.Valid() {
		return nil, tileerr.New(tileerr.KindInvalidCoordinates, fmt.Sprintf("invalid tile coordinate %s", c))
	}
	if c.Z < s.meta.MinZoom || c.Z > s.meta.MaxZoom {
		return nil, nil
	}

	tileID := geo.ZXYToTileID(c.Z, c.X, c.Y)
	e, err := s.dir.resolve(ctx, tileID)
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindBackendError, "resolving pmtiles directory", err)
	}
	if e == nil {
		return nil, nil
	}

	data, err := s.fetchRange(ctx, s.header.TileDataOffset+e.offset, uint64(e.length))
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindBackendError, "reading pmtiles tile data", err)
	}

	return &entities.TilePayload{
		Data:        data,
		Format:      s.meta.Format,
		Compression: archiveCompression(s.header.TileCompression),
	}, nil
}

func (s *LocalSource) Metadata() entities.SourceMetadata { return s.meta }

func (s *LocalSource) Close() error { return s.file.Close() }

func archiveCompression(c uint8) entities.TileCompression {
	switch c {
	case compressionGzip:
		return entities.CompressionGzip
	case compressionBrotli:
		return entities.CompressionBrotli
	case compressionZstd:
		return entities.CompressionZstd
	default:
		return entities.CompressionNone
	}
}
