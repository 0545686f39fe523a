package pmtiles

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"tileserver/entities"
	"tileserver/internal/geo"
	"tileserver/internal/tileerr"
)

// HTTPSource reads a remote PMTiles archive through byte-range requests
// against a single long-lived client, caching leaf directory pages in a
// bounded LRU (§4.2).
type HTTPSource struct {
	id     string
	url    string
	client *http.Client
	header Header
	dir    *directorySource
	meta   entities.SourceMetadata
}

// OpenHTTP opens a remote PMTiles archive. client may be shared across
// sources; a nil client gets http.DefaultClient.
func OpenHTTP(ctx context.Context, id, url string, client *http.Client, leafCacheSize int) (*HTTPSource, error) {
	if client == nil {
		client = http.DefaultClient
	}
	s := &HTTPSource{id: id, url: url, client: client}

	headerBuf, err := s.fetchRange(ctx, 0, headerSize)
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindBackendError, "fetching pmtiles header", err)
	}
	h, err := parseHeader(headerBuf)
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindMetadataError, "parsing pmtiles header", err)
	}
	s.header = h

	rootRaw, err := s.fetchRange(ctx, h.RootDirOffset, h.RootDirLength)
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindBackendError, "fetching pmtiles root directory", err)
	}
	root, err := decodeCompressedDirectory(rootRaw, h.InternalCompression)
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindMetadataError, "parsing pmtiles root directory", err)
	}
	s.dir = &directorySource{header: h, root: root, fetch: s, leaves: newLeafCache(leafCacheSize)}

	var metaJSON []byte
	if h.MetadataLength > 0 {
		if raw, err := s.fetchRange(ctx, h.MetadataOffset, h.MetadataLength); err == nil {
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

// fetchRange issues a Range request for [offset, offset+length). Some
// servers legally degrade to a full 200 response instead of a 206 partial
// one (§4.2); when that happens the requested window is sliced out of the
// full body instead of being treated as an error.
func (s *HTTPSource) fetchRange(ctx context.Context, offset, length uint64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pmtiles: unexpected status %d fetching range", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusOK {
		end := offset + length
		if end > uint64(len(body)) {
			end = uint64(len(body))
		}
		if offset > uint64(len(body)) {
			return nil, fmt.Errorf("pmtiles: server returned %d bytes, want range starting at %d", len(body), offset)
		}
		return body[offset:end], nil
	}
	return body, nil
}

// GetTile implements interfaces.TileSource.
func (s *HTTPSource) GetTile(ctx context.Context, c entities.TileCoordinates) (*entities.TilePayload, error) {
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
		return nil, tileerr.Wrap(tileerr.KindBackendError, "fetching pmtiles tile data", err)
	}

	return &entities.TilePayload{
		Data:        data,
		Format:      s.meta.Format,
		Compression: archiveCompression(s.header.TileCompression),
	}, nil
}

func (s *HTTPSource) Metadata() entities.SourceMetadata { return s.meta }

func (s *HTTPSource) Close() error { return nil }
