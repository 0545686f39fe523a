// Package config loads the server's YAML configuration document: listen
// address and CORS origins, the list of tile sources and styles to serve,
// and the fonts directory, with environment-variable overrides for values
// operators don't want committed to a config file (database credentials).
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"tileserver/internal/tileerr"
)

// Config is the top-level document.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Cache    CacheConfig    `yaml:"cache"`
	Postgres PostgresConfig `yaml:"postgres"`
	Sources  []SourceConfig `yaml:"sources"`
	Styles   []StyleConfig  `yaml:"styles"`
	Fonts    string         `yaml:"fonts"`
}

// ServerConfig holds the listen address and CORS policy.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	BaseURL     string   `yaml:"base_url"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// CacheConfig carries the tile cache's sizing knobs (§4.7).
type CacheConfig struct {
	MaxBytes int64         `yaml:"max_bytes"`
	TTL      time.Duration `yaml:"ttl"`
}

// PostgresConfig carries the shared connection pool's settings (§4.10). DSN
// may be overridden wholesale by the POSTGRES_DSN environment variable so
// credentials never need to live in the config file.
type PostgresConfig struct {
	DSN            string        `yaml:"dsn"`
	MaxOpenConns   int           `yaml:"max_open_conns"`
	MaxIdleConns   int           `yaml:"max_idle_conns"`
	ConnMaxLife    time.Duration `yaml:"conn_max_life"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// SourceConfig describes one tile source. Type selects which backend-specific
// fields below apply; unused fields for a given type are ignored.
type SourceConfig struct {
	ID          string `yaml:"id"`
	Type        string `yaml:"type"` // pmtiles|pmtiles-local|pmtiles-http|mbtiles|postgres-table|postgres-function|cog|postgres-outdb-raster
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Attribution string `yaml:"attribution"`

	// pmtiles-local, pmtiles-http, mbtiles, cog
	Path string `yaml:"path"`
	URL  string `yaml:"url"`

	// postgres-table
	Schema         string   `yaml:"schema"`
	Table          string   `yaml:"table"`
	GeometryColumn string   `yaml:"geometry_column"`
	IDColumn       string   `yaml:"id_column"`
	Properties     []string `yaml:"properties"`
	Extent         int      `yaml:"extent"`
	Buffer         int      `yaml:"buffer"`
	MaxFeatures    int      `yaml:"max_features"`

	// postgres-function
	Function string `yaml:"function"`

	// shared bounds/zoom
	MinZoom int        `yaml:"minzoom"`
	MaxZoom int        `yaml:"maxzoom"`
	Bounds  *BoundsYAML `yaml:"bounds"`

	// cog-specific
	TileSize   int             `yaml:"tile_size"`
	Resampling string          `yaml:"resampling"`
	Colormap   *ColormapConfig `yaml:"colormap"`
}

// BoundsYAML is the config-file shape of a geographic bounding box.
type BoundsYAML struct {
	West  float64 `yaml:"west"`
	South float64 `yaml:"south"`
	East  float64 `yaml:"east"`
	North float64 `yaml:"north"`
}

// ColormapStopConfig is one value/color stop in a raster colormap.
type ColormapStopConfig struct {
	Value float64    `yaml:"value"`
	Color [4]uint8   `yaml:"color"`
}

// ColormapConfig is the config-file shape of a raster source's colormap.
type ColormapConfig struct {
	Mode        string               `yaml:"mode"` // continuous|discrete
	Stops       []ColormapStopConfig `yaml:"stops"`
	RescaleMode string               `yaml:"rescale_mode"` // none|static|dynamic
	NodataColor *[4]uint8            `yaml:"nodata_color"`
}

// StyleConfig names a MapLibre style document to serve.
type StyleConfig struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
	Name string `yaml:"name"`
}

// Default returns the zero-source configuration a bare `serve` with no
// config file falls back to: a server that answers /health and nothing else.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        getEnv("TILESERVER_HOST", "0.0.0.0"),
			Port:        getEnvInt("TILESERVER_PORT", 8080),
			CORSOrigins: []string{"*"},
		},
		Cache: CacheConfig{
			MaxBytes: 256 << 20,
			TTL:      time.Hour,
		},
	}
}

// Load reads and parses the YAML document at path, applying environment
// overrides for secrets afterwards. An empty path returns Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindConfigError, fmt.Sprintf("reading config %s", path), err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, tileerr.Wrap(tileerr.KindConfigError, fmt.Sprintf("parsing config %s", path), err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets operators keep credentials out of the config file.
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		c.Postgres.DSN = dsn
	}
	if host := os.Getenv("TILESERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("TILESERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		} else {
			log.Printf("config: invalid TILESERVER_PORT %q, keeping %d", port, c.Server.Port)
		}
	}
	if baseURL := os.Getenv("TILESERVER_BASE_URL"); baseURL != "" {
		c.Server.BaseURL = baseURL
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Printf("config: invalid integer value for %s: %s, using default %d", key, value, defaultValue)
	}
	return defaultValue
}
