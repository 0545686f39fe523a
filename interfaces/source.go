// Package interfaces defines the capability contracts every tile source
// backend and the tile cache implement, per §4.1 and §4.7.
package interfaces

import (
	"context"

	"tileserver/entities"
)

// TileSource is the uniform contract every backend (PMTiles, MBTiles,
// PostGIS table/function, COG) implements (§4.1). Implementations must be
// safe for concurrent use — backends own their internal synchronization.
type TileSource interface {
	// GetTile returns the tile's bytes, the absence sentinel (nil, nil)
	// when the tile is not present, or a typed *tileerr.Error. It must
	// reject (x,y) outside [0, 2^z) with KindInvalidCoordinates, and must
	// return absence (not an error) when z falls outside the source's
	// declared (minzoom, maxzoom).
	GetTile(ctx context.Context, c entities.TileCoordinates) (*entities.TilePayload, error)

	// Metadata is stable, cheap and infallible once the source has opened.
	Metadata() entities.SourceMetadata

	// Close releases the backend's file handles, memory maps or
	// connection pools.
	Close() error
}

// RasterSource is the downcast hatch (§4.9 design notes) used by the raster
// request path for per-request resampling/rescale overrides that don't fit
// the uniform TileSource contract.
type RasterSource interface {
	TileSource

	// GetRasterTile renders a tile at an explicit pixel size with an
	// optional resampling override and dynamic colormap rescale bounds
	// (§4.6, §4.8).
	GetRasterTile(ctx context.Context, c entities.TileCoordinates, tileSize int, opts RasterOptions) (*entities.TilePayload, error)
}

// RasterOptions carries the per-request overrides §4.6's rescale_mode and
// resampling knobs need.
type RasterOptions struct {
	Resampling   string // "", or one of nearest|bilinear|cubic|cubicspline|lanczos|average|mode
	RescaleMin   *float64
	RescaleMax   *float64
	HasRescale   bool
}
