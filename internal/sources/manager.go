// Package sources implements the source manager (§4.8): a registry that
// loads every configured tile source once at startup, tolerating individual
// source failures, and dispatches lookups by id to the backend that opened
// successfully.
package sources

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"tileserver/entities"
	"tileserver/interfaces"
	"tileserver/internal/config"
	"tileserver/internal/sources/cog"
	"tileserver/internal/sources/mbtiles"
	"tileserver/internal/sources/pmtiles"
	"tileserver/internal/sources/postgis"
	"tileserver/internal/tileerr"
)

const defaultLeafCacheSize = 64

// Manager holds every successfully opened tile source, keyed by id. A
// source's failure to open is logged and the source skipped — one bad
// config entry never keeps the rest of the server from starting.
type Manager struct {
	sources map[string]interfaces.TileSource
	ids     []string
	pool    *postgis.Pool
}

// New returns an empty Manager. Sources are added with load during
// FromConfigs, or directly with Register; it is built once at startup and
// read concurrently from then on.
func New() *Manager {
	return &Manager{sources: make(map[string]interfaces.TileSource)}
}

// FromConfigs opens every configured source, continuing past individual
// failures, and returns the resulting Manager. A shared PostgreSQL pool is
// opened lazily the first time a postgres-table, postgres-function or
// postgres-outdb-raster source is encountered.
func FromConfigs(ctx context.Context, cfgs []config.SourceConfig, pgCfg config.PostgresConfig) (*Manager, error) {
	m := New()
	for _, cfg := range cfgs {
		src, err := m.load(ctx, cfg, pgCfg)
		if err != nil {
			log.Printf("source manager: skipping source %q: %v", cfg.ID, err)
			continue
		}
		if _, exists := m.sources[cfg.ID]; exists {
			log.Printf("source manager: duplicate source id %q, overwriting", cfg.ID)
		} else {
			m.ids = append(m.ids, cfg.ID)
		}
		m.sources[cfg.ID] = src
	}
	return m, nil
}

func (m *Manager) load(ctx context.Context, cfg config.SourceConfig, pgCfg config.PostgresConfig) (interfaces.TileSource, error) {
	switch cfg.Type {
	case "pmtiles-local":
		return pmtiles.OpenLocal(cfg.ID, cfg.Path, defaultLeafCacheSize)
	case "pmtiles-http":
		return pmtiles.OpenHTTP(ctx, cfg.ID, cfg.URL, http.DefaultClient, defaultLeafCacheSize)
	case "pmtiles":
		// Dispatch on URL shape when the config doesn't separate local from
		// HTTP explicitly, the way the original manager keys off a URL
		// prefix rather than a second source type.
		if strings.HasPrefix(cfg.URL, "http://") || strings.HasPrefix(cfg.URL, "https://") {
			return pmtiles.OpenHTTP(ctx, cfg.ID, cfg.URL, http.DefaultClient, defaultLeafCacheSize)
		}
		return pmtiles.OpenLocal(cfg.ID, cfg.Path, defaultLeafCacheSize)
	case "mbtiles":
		return mbtiles.Open(ctx, cfg.ID, cfg.Path)
	case "postgres-table":
		pool, err := m.postgresPool(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		return postgis.OpenTable(ctx, pool, tableConfigFrom(cfg))
	case "postgres-function":
		pool, err := m.postgresPool(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		return postgis.OpenFunction(ctx, pool, functionConfigFrom(cfg))
	case "cog":
		return cog.Open(cogConfigFrom(cfg))
	case "postgres-outdb-raster":
		pool, err := m.postgresPool(ctx, pgCfg)
		if err != nil {
			return nil, err
		}
		return cog.OpenOutDB(pool, outDBConfigFrom(cfg))
	default:
		return nil, tileerr.New(tileerr.KindConfigError, fmt.Sprintf("unknown source type %q", cfg.Type))
	}
}

// postgresPool opens the shared pool on first use and reuses it for every
// subsequent postgres-table/postgres-function/postgres-outdb-raster source.
func (m *Manager) postgresPool(ctx context.Context, pgCfg config.PostgresConfig) (*postgis.Pool, error) {
	if m.pool != nil {
		return m.pool, nil
	}
	if pgCfg.DSN == "" {
		return nil, tileerr.New(tileerr.KindConfigError, "no postgres DSN configured")
	}
	pool, err := postgis.Open(ctx, "default", pgCfg.DSN, postgis.PoolSettings{
		MaxOpenConns:   pgCfg.MaxOpenConns,
		MaxIdleConns:   pgCfg.MaxIdleConns,
		ConnMaxLife:    pgCfg.ConnMaxLife,
		ConnectTimeout: pgCfg.ConnectTimeout,
	})
	if err != nil {
		return nil, err
	}
	m.pool = pool
	return pool, nil
}

func boundsFrom(b *config.BoundsYAML) *entities.BoundingBox {
	if b == nil {
		return nil
	}
	return &entities.BoundingBox{West: b.West, South: b.South, East: b.East, North: b.North}
}

func tableConfigFrom(cfg config.SourceConfig) postgis.TableConfig {
	return postgis.TableConfig{
		ID:             cfg.ID,
		Schema:         cfg.Schema,
		Table:          cfg.Table,
		GeometryColumn: cfg.GeometryColumn,
		IDColumn:       cfg.IDColumn,
		Properties:     cfg.Properties,
		Name:           cfg.Name,
		Description:    cfg.Description,
		Attribution:    cfg.Attribution,
		MinZoom:        cfg.MinZoom,
		MaxZoom:        cfg.MaxZoom,
		Bounds:         boundsFrom(cfg.Bounds),
		Extent:         cfg.Extent,
		Buffer:         cfg.Buffer,
		MaxFeatures:    cfg.MaxFeatures,
	}
}

func functionConfigFrom(cfg config.SourceConfig) postgis.FunctionConfig {
	return postgis.FunctionConfig{
		ID:          cfg.ID,
		Schema:      cfg.Schema,
		Function:    cfg.Function,
		Name:        cfg.Name,
		Description: cfg.Description,
		Attribution: cfg.Attribution,
		MinZoom:     cfg.MinZoom,
		MaxZoom:     cfg.MaxZoom,
		Bounds:      boundsFrom(cfg.Bounds),
	}
}

func cogConfigFrom(cfg config.SourceConfig) cog.Config {
	var cm *cog.ColormapConfig
	if cfg.Colormap != nil {
		stops := make([]cog.ColormapStopConfig, len(cfg.Colormap.Stops))
		for i, s := range cfg.Colormap.Stops {
			stops[i] = cog.ColormapStopConfig{Value: s.Value, Color: s.Color}
		}
		cm = &cog.ColormapConfig{
			Mode:        cfg.Colormap.Mode,
			Stops:       stops,
			RescaleMode: cfg.Colormap.RescaleMode,
			NodataColor: cfg.Colormap.NodataColor,
		}
	}
	return cog.Config{
		ID:          cfg.ID,
		Path:        cfg.Path,
		Name:        cfg.Name,
		Description: cfg.Description,
		Attribution: cfg.Attribution,
		MinZoom:     cfg.MinZoom,
		MaxZoom:     cfg.MaxZoom,
		TileSize:    cfg.TileSize,
		Resampling:  cfg.Resampling,
		Colormap:    cm,
	}
}

func outDBConfigFrom(cfg config.SourceConfig) cog.OutDBConfig {
	var cm *cog.ColormapConfig
	if cfg.Colormap != nil {
		stops := make([]cog.ColormapStopConfig, len(cfg.Colormap.Stops))
		for i, s := range cfg.Colormap.Stops {
			stops[i] = cog.ColormapStopConfig{Value: s.Value, Color: s.Color}
		}
		cm = &cog.ColormapConfig{
			Mode:        cfg.Colormap.Mode,
			Stops:       stops,
			RescaleMode: cfg.Colormap.RescaleMode,
			NodataColor: cfg.Colormap.NodataColor,
		}
	}
	return cog.OutDBConfig{
		ID:          cfg.ID,
		Schema:      cfg.Schema,
		Function:    cfg.Function,
		Name:        cfg.Name,
		Description: cfg.Description,
		Attribution: cfg.Attribution,
		MinZoom:     cfg.MinZoom,
		MaxZoom:     cfg.MaxZoom,
		TileSize:    cfg.TileSize,
		Resampling:  cfg.Resampling,
		Colormap:    cm,
		Bounds:      boundsFrom(cfg.Bounds),
	}
}

// Register adds src under id directly, bypassing config-driven loading.
// Used by tests that need a Manager over a fake source.
func (m *Manager) Register(id string, src interfaces.TileSource) {
	if _, exists := m.sources[id]; !exists {
		m.ids = append(m.ids, id)
	}
	m.sources[id] = src
}

// Get returns the source registered under id.
func (m *Manager) Get(id string) (interfaces.TileSource, bool) {
	s, ok := m.sources[id]
	return s, ok
}

// GetRaster returns id's source downcast to interfaces.RasterSource, for the
// raster-specific request path (per-request resampling and colormap rescale
// overrides). ok is false both when the id is unknown and when the source
// isn't raster-capable.
func (m *Manager) GetRaster(id string) (interfaces.RasterSource, bool) {
	s, ok := m.sources[id]
	if !ok {
		return nil, false
	}
	rs, ok := s.(interfaces.RasterSource)
	return rs, ok
}

// IDs returns every registered source id, in load order.
func (m *Manager) IDs() []string {
	out := make([]string, len(m.ids))
	copy(out, m.ids)
	return out
}

// AllMetadata returns every registered source's metadata, in load order.
func (m *Manager) AllMetadata() []entities.SourceMetadata {
	out := make([]entities.SourceMetadata, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, m.sources[id].Metadata())
	}
	return out
}

// Len reports the number of registered sources.
func (m *Manager) Len() int { return len(m.sources) }

// IsEmpty reports whether no source loaded successfully.
func (m *Manager) IsEmpty() bool { return len(m.sources) == 0 }

// Close releases every source's resources and the shared postgres pool, if
// one was opened.
func (m *Manager) Close() error {
	for _, id := range m.ids {
		if err := m.sources[id].Close(); err != nil {
			log.Printf("source manager: error closing source %q: %v", id, err)
		}
	}
	if m.pool != nil {
		return m.pool.Close()
	}
	return nil
}
