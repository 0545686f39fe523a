package postgis

import (
	"context"
	"fmt"

	"tileserver/entities"
	"tileserver/internal/tileerr"
)

// FunctionConfig describes a user PostgreSQL function to serve tiles from,
// per §4.5.
type FunctionConfig struct {
	ID          string
	Schema      string
	Function    string
	Name        string
	Description string
	Attribution string
	MinZoom     int
	MaxZoom     int
	Bounds      *entities.BoundingBox
}

// FunctionSource calls a user-defined SQL function of signature
// f(integer, integer, integer) or f(integer, integer, integer, json).
type FunctionSource struct {
	pool       *Pool
	meta       entities.SourceMetadata
	tileQuery  string
	hasJSONArg bool
}

// OpenFunction verifies the function's signature and synthesizes its call
// (§4.5).
func OpenFunction(ctx context.Context, pool *Pool, cfg FunctionConfig) (*FunctionSource, error) {
	hasJSONArg, err := detectJSONArg(ctx, pool, cfg.Schema, cfg.Function)
	if err != nil {
		return nil, err
	}

	query := functionCallQuery(cfg.Schema, cfg.Function, hasJSONArg)

	return &FunctionSource{
		pool:       pool,
		hasJSONArg: hasJSONArg,
		tileQuery:  query,
		meta: entities.SourceMetadata{
			ID:          cfg.ID,
			Name:        firstNonEmpty(cfg.Name, cfg.Function),
			Description: cfg.Description,
			Attribution: cfg.Attribution,
			Format:      entities.FormatMVT,
			MinZoom:     cfg.MinZoom,
			MaxZoom:     cfg.MaxZoom,
			Bounds:      cfg.Bounds,
		},
	}, nil
}

// functionCallQuery builds the call for the 3-arg signature, or for the
// 4-arg (json) signature when hasJSONArg is set.
func functionCallQuery(schema, function string, hasJSONArg bool) string {
	query := fmt.Sprintf(`SELECT "%s"."%s"($1::integer, $2::integer, $3::integer`, schema, function)
	if hasJSONArg {
		query += `, $4::json)`
	} else {
		query += `)`
	}
	return query
}

// detectJSONArg introspects the function's parameter types to decide
// between the 3-arg and 4-arg (integer, integer, integer, json) signatures
// (§4.5). It picks the candidate with the most parameters when the function
// is overloaded, matching a writer who synthesized both and wants the
// richer one used.
func detectJSONArg(ctx context.Context, pool *Pool, schema, function string) (bool, error) {
	rows, err := pool.DB().QueryContext(ctx, `
		SELECT pg_catalog.pg_get_function_arguments(p.oid)
		FROM pg_catalog.pg_proc p
		JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
		WHERE n.nspname = $1 AND p.proname = $2`,
		schema, function)
	if err != nil {
		return false, tileerr.Wrap(tileerr.KindConfigError, "introspecting function signature", err)
	}
	defer rows.Close()

	found := false
	hasJSON := false
	for rows.Next() {
		var args string
		if err := rows.Scan(&args); err != nil {
			return false, tileerr.Wrap(tileerr.KindConfigError, "scanning function signature", err)
		}
		found = true
		if containsJSONArg(args) {
			hasJSON = true
		}
	}
	if !found {
		return false, tileerr.New(tileerr.KindConfigError,
			fmt.Sprintf("no function %s.%s(integer, integer, integer[, json]) found", schema, function))
	}
	return hasJSON, nil
}

func containsJSONArg(argList string) bool {
	for _, token := range []string{"json", "jsonb"} {
		if len(argList) >= len(token) {
			for i := 0; i+len(token) <= len(argList); i++ {
				if argList[i:i+len(token)] == token {
					return true
				}
			}
		}
	}
	return false
}

// GetTile implements interfaces.TileSource. When the function takes a json
// parameter and the caller supplies none, {} is passed per §4.5.
func (s *FunctionSource) GetTile(ctx context.Context, c entities.TileCoordinates) (*entities.TilePayload, error) {
	return s.getTile(ctx, c, nil)
}

// GetTileWithParams is the richer entry point the request coordinator uses
// when it has a caller-supplied JSON parameter object for this function.
func (s *FunctionSource) GetTileWithParams(ctx context.Context, c entities.TileCoordinates, params []byte) (*entities.TilePayload, error) {
	return s.getTile(ctx, c, params)
}

func (s *FunctionSource) getTile(ctx context.Context, c entities.TileCoordinates, params []byte) (*entities.TilePayload, error) {
	if !c.Valid() {
		return nil, tileerr.New(tileerr.KindInvalidCoordinates, fmt.Sprintf("invalid tile coordinate %s", c))
	}
	if c.Z < s.meta.MinZoom || c.Z > s.meta.MaxZoom {
		return nil, nil
	}

	var data []byte
	var row interface {
		Scan(dest ...any) error
	}
	if s.hasJSONArg {
		if params == nil {
			params = []byte("{}")
		}
		row = s.pool.DB().QueryRowContext(ctx, s.tileQuery, c.Z, c.X, c.Y, string(params))
	} else {
		// Callers that don't use the json-parameterized signature pass any
		// payload silently discarded, per §4.5 boundary scenario 4.
		row = s.pool.DB().QueryRowContext(ctx, s.tileQuery, c.Z, c.X, c.Y)
	}

	if err := row.Scan(&data); err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, tileerr.Wrap(tileerr.KindBackendError, "executing function tile query", err)
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

func (s *FunctionSource) Metadata() entities.SourceMetadata { return s.meta }

func (s *FunctionSource) Close() error { return nil }
