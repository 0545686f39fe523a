// Package postgis implements the PostGIS table and function sources
// (§4.4, §4.5) and the shared PostgreSQL connection pool (§4.10).
package postgis

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"
	_ "github.com/lib/pq"

	"tileserver/internal/tileerr"
)

var (
	minPostgresVersion        = semver.MustParse("11.0.0")
	minPostGISVersion         = semver.MustParse("3.0.0")
	tileMarginVersion         = semver.MustParse("3.1.0")
	serverVersionPattern      = regexp.MustCompile(`^(\d+)\.(\d+)`)
	postgisVersionPattern     = regexp.MustCompile(`^(\d+\.\d+\.\d+)`)
)

// PoolSettings carries the connection pool sizing §4.10 names.
type PoolSettings struct {
	MaxOpenConns  int
	MaxIdleConns  int
	ConnMaxLife   time.Duration
	ConnectTimeout time.Duration
}

// Pool wraps a database/sql pool with the version-gating logic §4.10
// requires: a minimum PostgreSQL and PostGIS version, and a supported-margin
// flag table sources use to decide whether ST_TileEnvelope takes a margin
// argument.
type Pool struct {
	id                 string
	db                 *sql.DB
	postgresVersion    *semver.Version
	postgisVersion     *semver.Version
	supportsTileMargin bool
}

// Open connects to dsn, applies settings and validates the server meets the
// minimum PostgreSQL/PostGIS versions (§4.10).
func Open(ctx context.Context, id, dsn string, settings PoolSettings) (*Pool, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindConfigError, "opening postgres pool", err)
	}
	if settings.MaxOpenConns > 0 {
		db.SetMaxOpenConns(settings.MaxOpenConns)
	}
	if settings.MaxIdleConns > 0 {
		db.SetMaxIdleConns(settings.MaxIdleConns)
	}
	if settings.ConnMaxLife > 0 {
		db.SetConnMaxLifetime(settings.ConnMaxLife)
	}

	p := &Pool{id: id, db: db}

	pgVersion, err := p.queryPostgresVersion(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if pgVersion.LessThan(minPostgresVersion) {
		db.Close()
		return nil, tileerr.New(tileerr.KindConfigError,
			fmt.Sprintf("postgres %s is older than minimum required %s", pgVersion, minPostgresVersion))
	}

	postgisVersion, err := p.queryPostGISVersion(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if postgisVersion.LessThan(minPostGISVersion) {
		db.Close()
		return nil, tileerr.New(tileerr.KindConfigError,
			fmt.Sprintf("postgis %s is older than minimum required %s", postgisVersion, minPostGISVersion))
	}

	p.postgresVersion = pgVersion
	p.postgisVersion = postgisVersion
	p.supportsTileMargin = !postgisVersion.LessThan(tileMarginVersion)

	return p, nil
}

func (p *Pool) queryPostgresVersion(ctx context.Context) (*semver.Version, error) {
	var raw string
	row := p.db.QueryRowContext(ctx, `SELECT current_setting('server_version')`)
	if err := row.Scan(&raw); err != nil {
		return nil, tileerr.Wrap(tileerr.KindBackendError, "querying postgres server_version", err)
	}
	m := serverVersionPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, tileerr.New(tileerr.KindMetadataError, fmt.Sprintf("unparseable server_version %q", raw))
	}
	v, err := semver.NewVersion(m[1] + "." + m[2] + ".0")
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindMetadataError, "parsing postgres version", err)
	}
	return v, nil
}

func (p *Pool) queryPostGISVersion(ctx context.Context) (*semver.Version, error) {
	var raw string
	row := p.db.QueryRowContext(ctx, `SELECT PostGIS_Lib_Version()`)
	if err := row.Scan(&raw); err != nil {
		return nil, tileerr.Wrap(tileerr.KindBackendError, "querying PostGIS_Lib_Version", err)
	}
	m := postgisVersionPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, tileerr.New(tileerr.KindMetadataError, fmt.Sprintf("unparseable PostGIS_Lib_Version %q", raw))
	}
	v, err := semver.NewVersion(m[1])
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindMetadataError, "parsing postgis version", err)
	}
	return v, nil
}

// DB returns the underlying pool for source construction.
func (p *Pool) DB() *sql.DB { return p.db }

// ID returns the pool's identifying label (database name or config id).
func (p *Pool) ID() string { return p.id }

// SupportsTileMargin reports whether ST_TileEnvelope's margin parameter is
// available (PostGIS >= 3.1).
func (p *Pool) SupportsTileMargin() bool { return p.supportsTileMargin }

// PostgresVersion returns the detected PostgreSQL server version.
func (p *Pool) PostgresVersion() *semver.Version { return p.postgresVersion }

// PostGISVersion returns the detected PostGIS library version.
func (p *Pool) PostGISVersion() *semver.Version { return p.postgisVersion }

// Close releases the pool's connections.
func (p *Pool) Close() error { return p.db.Close() }
