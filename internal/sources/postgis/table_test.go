package postgis

import "testing"

func testTableInfo() tableInfo {
	return tableInfo{
		schema: "public", table: "points", geometryColumn: "geom",
		srid: 4326, idColumn: "id", properties: []string{"name", "category"},
	}
}

func testTableConfig() TableConfig {
	return TableConfig{
		ID: "points", Schema: "public", Table: "points",
		MinZoom: 0, MaxZoom: 14, Extent: 4096, Buffer: 64,
	}
}

func TestBuildTileQuerySRID4326WithMargin(t *testing.T) {
	q := buildTileQuery(testTableConfig(), testTableInfo(), true)

	if !contains(q, "ST_TileEnvelope($1, $2, $3, margin => 0.015625)") {
		t.Errorf("expected margin clause with value 0.015625, got: %s", q)
	}
	if !contains(q, `"geom" && ST_Transform(ST_TileEnvelope($1, $2, $3, margin => 0.015625), 4326)`) {
		t.Errorf("expected transformed spatial filter, got: %s", q)
	}
}

func TestBuildTileQuerySRID4326NoMargin(t *testing.T) {
	q := buildTileQuery(testTableConfig(), testTableInfo(), false)

	if !contains(q, "ST_Transform(ST_TileEnvelope($1, $2, $3), 4326)") {
		t.Errorf("expected transformed envelope without margin, got: %s", q)
	}
	if contains(q, "margin =>") {
		t.Errorf("did not expect margin clause when PostGIS doesn't support it: %s", q)
	}
}

func TestBuildTileQuerySRID3857ElidesTransform(t *testing.T) {
	info := testTableInfo()
	info.srid = 3857
	q := buildTileQuery(testTableConfig(), info, false)

	if !contains(q, `"geom" && ST_TileEnvelope($1, $2, $3)`) {
		t.Errorf("expected direct envelope comparison for SRID 3857, got: %s", q)
	}
	if contains(q, "ST_Transform(ST_TileEnvelope") {
		t.Errorf("did not expect ST_Transform on the envelope side for SRID 3857: %s", q)
	}
}

func TestBuildTileQueryProjectsIDAndProperties(t *testing.T) {
	q := buildTileQuery(testTableConfig(), testTableInfo(), false)

	if !contains(q, `"id"::bigint`) {
		t.Errorf("expected id column projected, got: %s", q)
	}
	if !contains(q, `"name"`) || !contains(q, `"category"`) {
		t.Errorf("expected properties projected, got: %s", q)
	}
}

func TestBuildTileQueryNoIDOrProperties(t *testing.T) {
	info := testTableInfo()
	info.idColumn = ""
	info.properties = nil
	q := buildTileQuery(testTableConfig(), info, false)

	if contains(q, `"id"::bigint`) || contains(q, `"name"`) {
		t.Errorf("did not expect id/property projection, got: %s", q)
	}
}

func TestBuildTileQueryWithLimit(t *testing.T) {
	cfg := testTableConfig()
	cfg.MaxFeatures = 1000
	q := buildTileQuery(cfg, testTableInfo(), false)

	if !contains(q, "LIMIT 1000") {
		t.Errorf("expected LIMIT clause, got: %s", q)
	}
}

func TestBuildTileQueryLayerNameAndExtent(t *testing.T) {
	q := buildTileQuery(testTableConfig(), testTableInfo(), false)
	if !contains(q, `ST_AsMVT(tile, 'points', 4096, 'geom')`) {
		t.Errorf("expected layer name and extent in ST_AsMVT call, got: %s", q)
	}
}

func contains(haystack, needle string) bool {
	return indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	if m == 0 {
		return 0
	}
	for i := 0; i+m <= n; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}
