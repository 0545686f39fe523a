package postgis

import (
	"context"
	"fmt"
	"strings"

	"tileserver/entities"
	"tileserver/internal/tileerr"
)

// TableConfig describes the spatial table to serve, per §4.4.
type TableConfig struct {
	ID             string
	Schema         string
	Table          string
	GeometryColumn string // empty: discovered from geometry_columns
	IDColumn       string // empty: no id_expr projected
	Properties     []string // nil: discovered from information_schema.columns
	Name           string
	Description    string
	Attribution    string
	MinZoom        int
	MaxZoom        int
	Bounds         *entities.BoundingBox
	Extent         int // default 4096
	Buffer         int // 0: no margin; negative values are treated as 0
	MaxFeatures    int // 0: no LIMIT
}

type tableInfo struct {
	schema, table, geometryColumn string
	srid                          int
	idColumn                      string
	properties                    []string
	hasSpatialIndex               bool
}

// TableSource serves MVT tiles from a spatial table by executing a query
// synthesized once at open time (§4.4).
type TableSource struct {
	pool      *Pool
	meta      entities.SourceMetadata
	info      tableInfo
	tileQuery string
}

// OpenTable discovers the table's schema and builds the per-request tile
// query (§4.4's schema discovery and query synthesis steps).
func OpenTable(ctx context.Context, pool *Pool, cfg TableConfig) (*TableSource, error) {
	if cfg.Extent <= 0 {
		cfg.Extent = 4096
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}

	info, err := discoverTable(ctx, pool, cfg)
	if err != nil {
		return nil, err
	}

	bounds := cfg.Bounds
	if bounds == nil {
		if b, err := estimateBounds(ctx, pool, info); err == nil {
			bounds = b
		}
	}

	var center *entities.Center
	if bounds != nil {
		center = &entities.Center{
			Lon:  (bounds.West + bounds.East) / 2,
			Lat:  (bounds.South + bounds.North) / 2,
			Zoom: float64((cfg.MinZoom + cfg.MaxZoom) / 2),
		}
	}

	query := buildTileQuery(cfg, info, pool.SupportsTileMargin())

	return &TableSource{
		pool: pool,
		info: info,
		meta: entities.SourceMetadata{
			ID:          cfg.ID,
			Name:        firstNonEmpty(cfg.Name, cfg.Table),
			Description: cfg.Description,
			Attribution: cfg.Attribution,
			Format:      entities.FormatMVT,
			MinZoom:     cfg.MinZoom,
			MaxZoom:     cfg.MaxZoom,
			Bounds:      bounds,
			Center:      center,
		},
		tileQuery: query,
	}, nil
}

func discoverTable(ctx context.Context, pool *Pool, cfg TableConfig) (tableInfo, error) {
	info := tableInfo{schema: cfg.Schema, table: cfg.Table, idColumn: cfg.IDColumn, properties: cfg.Properties}

	geomCol := cfg.GeometryColumn
	if geomCol == "" {
		row := pool.DB().QueryRowContext(ctx,
			`SELECT f_geometry_column::text FROM geometry_columns WHERE f_table_schema = $1 AND f_table_name = $2 LIMIT 1`,
			cfg.Schema, cfg.Table)
		if err := row.Scan(&geomCol); err != nil {
			return info, tileerr.Wrap(tileerr.KindConfigError, "finding geometry column", err)
		}
	}
	info.geometryColumn = geomCol

	row := pool.DB().QueryRowContext(ctx,
		`SELECT srid FROM geometry_columns WHERE f_table_schema = $1 AND f_table_name = $2 AND f_geometry_column = $3`,
		cfg.Schema, cfg.Table, geomCol)
	if err := row.Scan(&info.srid); err != nil {
		return info, tileerr.Wrap(tileerr.KindConfigError, "reading geometry SRID", err)
	}

	if info.properties == nil {
		rows, err := pool.DB().QueryContext(ctx, `
			SELECT column_name::text FROM information_schema.columns
			WHERE table_schema = $1 AND table_name = $2 AND column_name != $3
			  AND data_type IN ('integer','bigint','smallint','real','double precision','numeric',
			                     'text','character varying','character','boolean','json','jsonb')
			ORDER BY ordinal_position`,
			cfg.Schema, cfg.Table, geomCol)
		if err != nil {
			return info, tileerr.Wrap(tileerr.KindConfigError, "discovering table properties", err)
		}
		defer rows.Close()
		for rows.Next() {
			var col string
			if err := rows.Scan(&col); err != nil {
				return info, tileerr.Wrap(tileerr.KindConfigError, "scanning table property", err)
			}
			info.properties = append(info.properties, col)
		}
	}

	row = pool.DB().QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_index i
			JOIN pg_class c ON c.oid = i.indexrelid
			JOIN pg_class t ON t.oid = i.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(i.indkey)
			JOIN pg_opclass oc ON oc.oid = i.indclass[0]
			WHERE n.nspname = $1 AND t.relname = $2 AND a.attname = $3
			  AND oc.opcname IN ('gist_geometry_ops_2d','gist_geometry_ops_nd',
			                     'spgist_geometry_ops_2d','spgist_geometry_ops_nd',
			                     'brin_geometry_inclusion_ops_2d','brin_geometry_inclusion_ops_nd')
		)`, cfg.Schema, cfg.Table, geomCol)
	_ = row.Scan(&info.hasSpatialIndex)

	return info, nil
}

func estimateBounds(ctx context.Context, pool *Pool, info tableInfo) (*entities.BoundingBox, error) {
	var query string
	if info.srid == 4326 {
		query = fmt.Sprintf(`
			SELECT ST_XMin(ext)::float8, ST_YMin(ext)::float8, ST_XMax(ext)::float8, ST_YMax(ext)::float8
			FROM (SELECT ST_EstimatedExtent('%s', '%s', '%s') AS ext) sub`,
			info.schema, info.table, info.geometryColumn)
	} else {
		query = fmt.Sprintf(`
			SELECT ST_XMin(ext)::float8, ST_YMin(ext)::float8, ST_XMax(ext)::float8, ST_YMax(ext)::float8
			FROM (SELECT ST_Transform(ST_EstimatedExtent('%s', '%s', '%s'), 4326) AS ext) sub`,
			info.schema, info.table, info.geometryColumn)
	}
	var b entities.BoundingBox
	row := pool.DB().QueryRowContext(ctx, query)
	if err := row.Scan(&b.West, &b.South, &b.East, &b.North); err != nil {
		return nil, err
	}
	return &b, nil
}

// buildTileQuery synthesizes the per-request MVT query (§4.4). Identifiers
// are quoted inline; the only substitution points left as placeholders are
// the z/x/y parameters themselves.
func buildTileQuery(cfg TableConfig, info tableInfo, supportsTileMargin bool) string {
	margin := float64(cfg.Buffer) / float64(cfg.Extent)

	tileEnvelope := "ST_TileEnvelope($1, $2, $3)"
	if supportsTileMargin {
		tileEnvelope = fmt.Sprintf("ST_TileEnvelope($1, $2, $3, margin => %v)", margin)
	}

	whereClause := fmt.Sprintf(`"%s" && %s`, info.geometryColumn, tileEnvelope)
	if info.srid != 3857 {
		whereClause = fmt.Sprintf(`"%s" && ST_Transform(%s, %d)`, info.geometryColumn, tileEnvelope, info.srid)
	}

	var idExpr string
	if info.idColumn != "" {
		idExpr = fmt.Sprintf(`"%s"::bigint`, info.idColumn)
	}
	var propsExpr string
	if len(info.properties) > 0 {
		quoted := make([]string, len(info.properties))
		for i, p := range info.properties {
			quoted[i] = fmt.Sprintf(`"%s"`, p)
		}
		propsExpr = strings.Join(quoted, ", ")
	}

	var selectCols string
	switch {
	case idExpr == "" && propsExpr == "":
		selectCols = ""
	case idExpr == "":
		selectCols = ", " + propsExpr
	case propsExpr == "":
		selectCols = ", " + idExpr
	default:
		selectCols = ", " + idExpr + ", " + propsExpr
	}

	limitClause := ""
	if cfg.MaxFeatures > 0 {
		limitClause = fmt.Sprintf(" LIMIT %d", cfg.MaxFeatures)
	}

	return fmt.Sprintf(`
		SELECT ST_AsMVT(tile, '%s', %d, 'geom') FROM (
			SELECT
				ST_AsMVTGeom(
					ST_Transform("%s"::geometry, 3857),
					%s,
					%d,
					%d,
					true
				) AS geom%s
			FROM "%s"."%s"
			WHERE %s%s
		) AS tile
		WHERE geom IS NOT NULL`,
		cfg.ID, cfg.Extent,
		info.geometryColumn,
		tileEnvelope, cfg.Extent, cfg.Buffer,
		selectCols,
		info.schema, info.table,
		whereClause, limitClause,
	)
}

// GetTile implements interfaces.TileSource.
func (s *TableSource) GetTile(ctx context.Context, c entities.TileCoordinates) (*entities.TilePayload, error) {
	if !c.Valid() {
		return nil, tileerr.New(tileerr.KindInvalidCoordinates, fmt.Sprintf("invalid tile coordinate %s", c))
	}
	if c.Z < s.meta.MinZoom || c.Z > s.meta.MaxZoom {
		return nil, nil
	}

	var data []byte
	row := s.pool.DB().QueryRowContext(ctx, s.tileQuery, c.Z, c.X, c.Y)
	if err := row.Scan(&data); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, tileerr.Wrap(tileerr.KindBackendError, "executing table tile query", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	return &entities.TilePayload{
		Data:        data,
		Format:      entities.FormatMVT,
		Compression: entities.SniffCompression(data),
	}, nil
}

func (s *TableSource) Metadata() entities.SourceMetadata { return s.meta }

func (s *TableSource) Close() error { return nil }

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
