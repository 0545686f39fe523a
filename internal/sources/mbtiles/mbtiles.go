// Package mbtiles implements the MBTiles source of §4.3: a read-only SQLite
// database with a tiles table keyed by TMS (zoom_level, tile_column,
// tile_row) and a metadata key-value table.
package mbtiles

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"tileserver/entities"
	"tileserver/internal/tileerr"
)

// Source reads tiles and metadata from an MBTiles file. Safe for concurrent
// use — database/sql pools connections internally and every query here runs
// on whatever goroutine calls it, matching §4.3's "allowed to block" note.
type Source struct {
	id   string
	db   *sql.DB
	meta entities.SourceMetadata
}

// Open opens path read-only and validates it has the tiles/metadata tables.
func Open(ctx context.Context, id, path string) (*Source, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&immutable=1")
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindBackendError, "opening mbtiles database", err)
	}
	db.SetMaxOpenConns(4)

	var tableCount int
	row := db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE name IN ('tiles','metadata')`)
	if err := row.Scan(&tableCount); err != nil {
		db.Close()
		return nil, tileerr.Wrap(tileerr.KindBackendError, "validating mbtiles schema", err)
	}
	if tableCount < 2 {
		db.Close()
		return nil, tileerr.New(tileerr.KindMetadataError, "mbtiles file missing tiles or metadata table")
	}

	s := &Source{id: id, db: db}
	meta, err := s.readMetadata(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.meta = meta
	return s, nil
}

// readMetadata implements §4.3's metadata parsing rules.
func (s *Source) readMetadata(ctx context.Context) (entities.SourceMetadata, error) {
	m := entities.SourceMetadata{ID: s.id, Format: entities.FormatMVT}

	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM metadata WHERE value IS NOT ''`)
	if err != nil {
		return m, tileerr.Wrap(tileerr.KindBackendError, "reading mbtiles metadata", err)
	}
	defer rows.Close()

	var (
		boundsRaw string
		centerRaw string
		jsonRaw   string
		haveMin   bool
		haveMax   bool
	)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return m, tileerr.Wrap(tileerr.KindBackendError, "scanning mbtiles metadata row", err)
		}
		switch key {
		case "name":
			m.Name = value
		case "description":
			m.Description = value
		case "attribution":
			m.Attribution = value
		case "format":
			m.Format = entities.ParseFormat(value)
		case "minzoom":
			if v, err := strconv.Atoi(value); err == nil {
				m.MinZoom = v
				haveMin = true
			}
		case "maxzoom":
			if v, err := strconv.Atoi(value); err == nil {
				m.MaxZoom = v
				haveMax = true
			}
		case "bounds":
			boundsRaw = value
		case "center":
			centerRaw = value
		case "json":
			jsonRaw = value
		}
	}
	if err := rows.Err(); err != nil {
		return m, tileerr.Wrap(tileerr.KindBackendError, "iterating mbtiles metadata", err)
	}

	if !haveMin || !haveMax {
		row := s.db.QueryRowContext(ctx, `SELECT min(zoom_level), max(zoom_level) FROM tiles`)
		var lo, hi sql.NullInt64
		if err := row.Scan(&lo, &hi); err == nil {
			if !haveMin {
				m.MinZoom = int(lo.Int64)
			}
			if !haveMax {
				m.MaxZoom = int(hi.Int64)
			}
		}
	}

	if boundsRaw != "" {
		if vals, ok := parseFloats(boundsRaw); ok && len(vals) == 4 {
			m.Bounds = &entities.BoundingBox{West: vals[0], South: vals[1], East: vals[2], North: vals[3]}
		}
	}
	if centerRaw != "" {
		if vals, ok := parseFloats(centerRaw); ok && len(vals) >= 2 {
			z := math.Floor(float64(m.MinZoom+m.MaxZoom) / 2)
			if len(vals) == 3 {
				z = vals[2]
			}
			m.Center = &entities.Center{Lon: vals[0], Lat: vals[1], Zoom: z}
		}
	} else if m.Bounds != nil {
		m.Center = &entities.Center{
			Lon:  (m.Bounds.West + m.Bounds.East) / 2,
			Lat:  (m.Bounds.South + m.Bounds.North) / 2,
			Zoom: math.Floor(float64(m.MinZoom+m.MaxZoom) / 2),
		}
	}

	if jsonRaw != "" {
		var payload struct {
			VectorLayers []entities.VectorLayer `json:"vector_layers"`
		}
		if err := json.Unmarshal([]byte(jsonRaw), &payload); err == nil {
			m.VectorLayers = payload.VectorLayers
		}
	}

	return m, nil
}

// GetTile implements interfaces.TileSource.
func (s *Source) GetTile(ctx context.Context, c entities.TileCoordinates) (*entities.TilePayload, error) {
	if !c.Valid() {
		return nil, tileerr.New(tileerr.KindInvalidCoordinates, fmt.Sprintf("invalid tile coordinate %s", c))
	}
	if c.Z < s.meta.MinZoom || c.Z > s.meta.MaxZoom {
		return nil, nil
	}

	tmsY := entities.FlipY(c.Y, c.Z)

	var data []byte
	row := s.db.QueryRowContext(ctx,
		`SELECT tile_data FROM tiles WHERE zoom_level = ? AND tile_column = ? AND tile_row = ?`,
		c.Z, c.X, tmsY)
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, tileerr.Wrap(tileerr.KindBackendError, "reading mbtiles tile", err)
	}

	return &entities.TilePayload{
		Data:        data,
		Format:      s.meta.Format,
		Compression: entities.SniffCompression(data),
	}, nil
}

func (s *Source) Metadata() entities.SourceMetadata { return s.meta }

func (s *Source) Close() error { return s.db.Close() }

func parseFloats(s string) ([]float64, bool) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}
