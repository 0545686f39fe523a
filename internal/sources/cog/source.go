package cog

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"image/png"
	"sync"

	"tileserver/entities"
	"tileserver/interfaces"
	"tileserver/internal/tileerr"
)

// ColormapStopConfig is the config-file shape of one colormap stop.
type ColormapStopConfig struct {
	Value float64
	Color [4]uint8
}

// ColormapConfig is the config-file shape of §4.6's Colormap section.
type ColormapConfig struct {
	Mode        string // "continuous" | "discrete"
	Stops       []ColormapStopConfig
	RescaleMode string // "none" | "static" | "dynamic"
	NodataColor *[4]uint8
}

func (cc *ColormapConfig) build() *Colormap {
	if cc == nil {
		return nil
	}
	stops := make([]ColormapStop, len(cc.Stops))
	for i, s := range cc.Stops {
		stops[i] = ColormapStop{Value: s.Value, Color: color.RGBA{R: s.Color[0], G: s.Color[1], B: s.Color[2], A: s.Color[3]}}
	}
	mode := ColormapContinuous
	if cc.Mode == "discrete" {
		mode = ColormapDiscrete
	}
	rescale := RescaleNone
	switch cc.RescaleMode {
	case "static":
		rescale = RescaleStatic
	case "dynamic":
		rescale = RescaleDynamic
	}
	nodataColor := color.RGBA{} // transparent by default, per §4.6
	if cc.NodataColor != nil {
		c := *cc.NodataColor
		nodataColor = color.RGBA{R: c[0], G: c[1], B: c[2], A: c[3]}
	}
	return &Colormap{Mode: mode, Stops: stops, Rescale: rescale, NodataColor: nodataColor}
}

// Config describes a raster source's open-time parameters (§4.6).
type Config struct {
	ID          string
	Path        string
	Name        string
	Description string
	Attribution string
	MinZoom     int
	MaxZoom     int
	TileSize    int
	Resampling  string
	Colormap    *ColormapConfig
}

// Source serves PNG raster tiles from a single COG dataset. Per §4.6's
// concurrency note, a dataset handle is not safe for concurrent reprojection
// work, so every render call is serialized through mu while the reader's
// underlying file handle itself still allows concurrent ReadAt (reader.go).
type Source struct {
	cfg      Config
	reader   *Reader
	meta     entities.SourceMetadata
	colormap *Colormap
	mu       sync.Mutex
}

// Open opens the dataset and builds its metadata (§4.6 open-time step).
func Open(cfg Config) (*Source, error) {
	r, err := OpenDataset(cfg.Path)
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindBackendError, "opening raster dataset", err)
	}
	if r.Bands() == 0 {
		r.Close()
		return nil, tileerr.New(tileerr.KindConfigError, fmt.Sprintf("raster dataset %s has zero bands", cfg.Path))
	}

	bounds := r.Bounds()
	s := &Source{
		cfg:      cfg,
		reader:   r,
		colormap: cfg.Colormap.build(),
		meta: entities.SourceMetadata{
			ID:          cfg.ID,
			Name:        cfg.Name,
			Description: cfg.Description,
			Attribution: cfg.Attribution,
			Format:      entities.FormatPNG,
			MinZoom:     cfg.MinZoom,
			MaxZoom:     cfg.MaxZoom,
			Bounds:      &bounds,
			Center: &entities.Center{
				Lon:  (bounds.West + bounds.East) / 2,
				Lat:  (bounds.South + bounds.North) / 2,
				Zoom: float64((cfg.MinZoom + cfg.MaxZoom) / 2),
			},
		},
	}
	return s, nil
}

func (s *Source) Metadata() entities.SourceMetadata { return s.meta }

func (s *Source) Close() error {
	return s.reader.Close()
}

// GetTile renders at the source's default tile size and resampling, per the
// uniform TileSource contract.
func (s *Source) GetTile(ctx context.Context, c entities.TileCoordinates) (*entities.TilePayload, error) {
	return s.GetRasterTile(ctx, c, s.defaultTileSize(), interfaces.RasterOptions{})
}

func (s *Source) defaultTileSize() int {
	if s.cfg.TileSize > 0 {
		return s.cfg.TileSize
	}
	return 256
}

// GetRasterTile implements interfaces.RasterSource (§4.6, §4.8): validates
// the coordinate, checks the declared zoom range, renders and PNG-encodes.
func (s *Source) GetRasterTile(ctx context.Context, c entities.TileCoordinates, tileSize int, opts interfaces.RasterOptions) (*entities.TilePayload, error) {
	if !c.Valid() {
		return nil, tileerr.New(tileerr.KindInvalidCoordinates, fmt.Sprintf("invalid tile coordinate %s", c))
	}
	if c.Z < s.meta.MinZoom || c.Z > s.meta.MaxZoom {
		return nil, nil
	}
	if tileSize <= 0 {
		tileSize = s.defaultTileSize()
	}

	resampling := Resampling(opts.Resampling)
	if resampling == "cubicspline" {
		resampling = ResamplingCubicSpline
	}
	if resampling == "" {
		resampling = Resampling(s.cfg.Resampling)
	}
	if resampling == "" {
		resampling = ResamplingBilinear
	}

	renderOpts := RenderOptions{
		TileSize:   tileSize,
		Resampling: resampling,
		Colormap:   s.colormap,
	}
	if opts.HasRescale && opts.RescaleMin != nil && opts.RescaleMax != nil {
		renderOpts.RescaleMin = *opts.RescaleMin
		renderOpts.RescaleMax = *opts.RescaleMax
		renderOpts.HasRescale = true
	}

	s.mu.Lock()
	img, err := RenderTile(s.reader, c, renderOpts)
	s.mu.Unlock()
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindBackendError, "rendering raster tile", err)
	}
	if img == nil {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, tileerr.Wrap(tileerr.KindBackendError, "encoding raster tile as PNG", err)
	}

	return &entities.TilePayload{
		Data:        buf.Bytes(),
		Format:      entities.FormatPNG,
		Compression: entities.CompressionNone,
	}, nil
}
