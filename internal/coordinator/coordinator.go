// Package coordinator implements the tile request coordinator (§4.11): the
// thin integration layer between the HTTP surface and the source manager.
// It resolves a source id, honors per-request raster overrides, serves
// through the tile cache, and attaches the response metadata (MIME type,
// Content-Encoding, Cache-Control) the HTTP layer needs.
package coordinator

import (
	"context"
	"fmt"

	"tileserver/entities"
	"tileserver/interfaces"
	"tileserver/internal/cache"
	"tileserver/internal/sources"
	"tileserver/internal/tileerr"
)

// TileCacheControl is the Cache-Control value every tile response carries:
// cacheable for a day, with a week-long stale-while-revalidate window so a
// client can keep showing a tile while the cache refills in the background.
const TileCacheControl = "public, max-age=86400, stale-while-revalidate=604800"

// StaticCacheControl is the Cache-Control value for long-lived static
// assets served alongside tiles (style documents, sprites, fonts) that are
// versioned by URL rather than by freshness window.
const StaticCacheControl = "public, max-age=31536000"

// Coordinator wires the source manager and the tile cache together.
type Coordinator struct {
	sources *sources.Manager
	cache   *cache.Cache
}

// New builds a Coordinator over mgr and an optional cache. A nil cache
// disables caching — every request is served directly from the source.
func New(mgr *sources.Manager, c *cache.Cache) *Coordinator {
	return &Coordinator{sources: mgr, cache: c}
}

// Response is a served tile plus the headers the HTTP layer should set.
type Response struct {
	Payload      entities.TilePayload
	CacheControl string
}

// RasterRequest carries the per-request raster overrides §4.6 allows: an
// explicit resampling filter and/or dynamic colormap rescale bounds.
type RasterRequest struct {
	Resampling string
	RescaleMin *float64
	RescaleMax *float64
}

func (r RasterRequest) toOptions() interfaces.RasterOptions {
	return interfaces.RasterOptions{
		Resampling: r.Resampling,
		RescaleMin: r.RescaleMin,
		RescaleMax: r.RescaleMax,
		HasRescale: r.RescaleMin != nil && r.RescaleMax != nil,
	}
}

// GetTile resolves sourceID and returns its tile at c, going through the
// cache when one is configured. Absence (tile not present, or zoom outside
// the source's range) is reported as (Response{}, nil); coordinate
// validation and source lookup failures are typed *tileerr.Error.
func (co *Coordinator) GetTile(ctx context.Context, sourceID string, c entities.TileCoordinates) (Response, error) {
	if !c.Valid() {
		return Response{}, tileerr.New(tileerr.KindInvalidCoordinates, fmt.Sprintf("invalid coordinates %s", c))
	}
	src, ok := co.sources.Get(sourceID)
	if !ok {
		return Response{}, tileerr.New(tileerr.KindSourceNotFound, fmt.Sprintf("unknown source %q", sourceID))
	}

	key := sourceID + "/" + c.String()
	load := func(ctx context.Context) (entities.TilePayload, error) {
		tile, err := src.GetTile(ctx, c)
		if err != nil {
			return entities.TilePayload{}, err
		}
		if tile == nil {
			return entities.TilePayload{}, tileerr.New(tileerr.KindTileNotFound, fmt.Sprintf("tile not found: %s/%s", sourceID, c))
		}
		return *tile, nil
	}

	var payload entities.TilePayload
	var err error
	if co.cache != nil {
		payload, err = co.cache.Fetch(ctx, key, load)
	} else {
		payload, err = load(ctx)
	}
	if err != nil {
		if tileerr.KindOf(err) == tileerr.KindTileNotFound {
			return Response{}, nil
		}
		return Response{}, err
	}
	return Response{Payload: payload, CacheControl: TileCacheControl}, nil
}

// GetRasterTile is GetTile's raster-specialized counterpart: it requires
// sourceID to resolve to a raster-capable source and applies req's
// per-request resampling/rescale overrides. Raster requests bypass the
// shared tile cache because their output varies with req, not just (z,x,y).
func (co *Coordinator) GetRasterTile(ctx context.Context, sourceID string, c entities.TileCoordinates, tileSize int, req RasterRequest) (Response, error) {
	if !c.Valid() {
		return Response{}, tileerr.New(tileerr.KindInvalidCoordinates, fmt.Sprintf("invalid coordinates %s", c))
	}
	rs, ok := co.sources.GetRaster(sourceID)
	if !ok {
		return Response{}, tileerr.New(tileerr.KindSourceNotFound, fmt.Sprintf("unknown raster source %q", sourceID))
	}
	tile, err := rs.GetRasterTile(ctx, c, tileSize, req.toOptions())
	if err != nil {
		return Response{}, err
	}
	if tile == nil {
		return Response{}, nil
	}
	return Response{Payload: *tile, CacheControl: TileCacheControl}, nil
}

// Metadata returns sourceID's metadata, or a *tileerr.Error of
// KindSourceNotFound.
func (co *Coordinator) Metadata(sourceID string) (entities.SourceMetadata, error) {
	src, ok := co.sources.Get(sourceID)
	if !ok {
		return entities.SourceMetadata{}, tileerr.New(tileerr.KindSourceNotFound, fmt.Sprintf("unknown source %q", sourceID))
	}
	return src.Metadata(), nil
}

// AllMetadata returns every registered source's metadata.
func (co *Coordinator) AllMetadata() []entities.SourceMetadata {
	return co.sources.AllMetadata()
}
