// Command tileserver serves vector and raster map tiles from PMTiles,
// MBTiles, PostGIS and Cloud-Optimized GeoTIFF sources, plus the style and
// WMTS capabilities documents built on top of them.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"

	"tileserver/internal/cache"
	"tileserver/internal/config"
	"tileserver/internal/coordinator"
	"tileserver/internal/httpapi"
	"tileserver/internal/sources"
	"tileserver/internal/style"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tileserver",
		Short: "Serve vector and raster map tiles",
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tile server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(context.Background(), configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the YAML config file")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	mgr, err := sources.FromConfigs(ctx, cfg.Sources, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("loading sources: %w", err)
	}
	defer mgr.Close()
	log.Printf("tileserver: loaded %d of %d configured sources", mgr.Len(), len(cfg.Sources))

	styleMgr, err := style.ManagerFromConfigs(cfg.Styles)
	if err != nil {
		return fmt.Errorf("loading styles: %w", err)
	}
	log.Printf("tileserver: loaded %d of %d configured styles", styleMgr.Len(), len(cfg.Styles))

	var tileCache *cache.Cache
	if cfg.Cache.MaxBytes > 0 {
		tileCache, err = cache.New(cache.Config{MaxBytes: cfg.Cache.MaxBytes, TTL: cfg.Cache.TTL}, 0)
		if err != nil {
			return fmt.Errorf("building tile cache: %w", err)
		}
	}

	coord := coordinator.New(mgr, tileCache)
	baseURL := cfg.Server.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	e := echo.New()
	e.Use(httpapi.RequestID())
	e.Use(corsMiddleware(cfg.Server.CORSOrigins))
	httpapi.New(coord, styleMgr, baseURL).Register(e)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("tileserver: listening on %s", addr)
	return e.Start(addr)
}

// corsMiddleware mirrors the teacher's hand-rolled CORS middleware, widened
// to honor a configured origin allowlist instead of always answering "*".
func corsMiddleware(origins []string) echo.MiddlewareFunc {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			origin := c.Request().Header.Get("Origin")
			switch {
			case allowAll:
				c.Response().Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				c.Response().Header().Set("Access-Control-Allow-Origin", origin)
			}
			c.Response().Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			c.Response().Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if c.Request().Method == http.MethodOptions {
				return c.NoContent(204)
			}
			return next(c)
		}
	}
}
