package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"

	"tileserver/entities"
	"tileserver/internal/coordinator"
	"tileserver/internal/sources"
	"tileserver/internal/style"
)

type stubSource struct {
	meta entities.SourceMetadata
}

func (s *stubSource) GetTile(ctx context.Context, c entities.TileCoordinates) (*entities.TilePayload, error) {
	if c.Z == 20 {
		return nil, nil
	}
	return &entities.TilePayload{Data: []byte("tile-bytes"), Format: entities.FormatMVT}, nil
}
func (s *stubSource) Metadata() entities.SourceMetadata { return s.meta }
func (s *stubSource) Close() error                      { return nil }

func newTestHandler() *Handler {
	mgr := sources.New()
	mgr.Register("roads", &stubSource{meta: entities.SourceMetadata{
		ID: "roads", Name: "Roads", Format: entities.FormatMVT, MinZoom: 0, MaxZoom: 14,
	}})
	coord := coordinator.New(mgr, nil)
	styleMgr := style.NewManager()
	return New(coord, styleMgr, "http://tiles.example.com")
}

func TestHealthReturns200(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.health(c); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestTileServesKnownCoordinate(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/data/roads/1/0/0.pbf", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "z", "x", "y")
	c.SetParamValues("roads", "1", "0", "0.pbf")

	if err := h.tile(c); err != nil {
		t.Fatalf("tile: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "tile-bytes" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "tile-bytes")
	}
	if got := rec.Header().Get(echo.HeaderCacheControl); got != coordinator.TileCacheControl {
		t.Errorf("Cache-Control = %q, want %q", got, coordinator.TileCacheControl)
	}
}

func TestTileReturns404WhenAbsent(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/data/roads/20/0/0.pbf", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "z", "x", "y")
	c.SetParamValues("roads", "20", "0", "0.pbf")

	if err := h.tile(c); err != nil {
		t.Fatalf("tile: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestTileRejectsNonIntegerCoordinate(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/data/roads/x/0/0.pbf", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id", "z", "x", "y")
	c.SetParamValues("roads", "x", "0", "0.pbf")

	if err := h.tile(c); err != nil {
		t.Fatalf("tile: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSourceTileJSONTrimsJSONSuffix(t *testing.T) {
	h := newTestHandler()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/data/roads.json", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("roads.json")

	if err := h.sourceTileJSON(c); err != nil {
		t.Fatalf("sourceTileJSON: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"roads"`) {
		t.Errorf("body = %s, want it to mention source id roads", rec.Body.String())
	}
}
