package coordinator

import (
	"context"
	"testing"

	"tileserver/entities"
	"tileserver/interfaces"
	"tileserver/internal/cache"
	"tileserver/internal/sources"
	"tileserver/internal/tileerr"
)

type fakeVectorSource struct {
	meta  entities.SourceMetadata
	calls int
}

func (f *fakeVectorSource) GetTile(ctx context.Context, c entities.TileCoordinates) (*entities.TilePayload, error) {
	f.calls++
	if c.Z == 20 {
		return nil, nil
	}
	return &entities.TilePayload{Data: []byte("tile-data"), Format: entities.FormatMVT}, nil
}
func (f *fakeVectorSource) Metadata() entities.SourceMetadata { return f.meta }
func (f *fakeVectorSource) Close() error                      { return nil }

type fakeRasterSource struct {
	fakeVectorSource
	lastOpts interfaces.RasterOptions
}

func (f *fakeRasterSource) GetRasterTile(ctx context.Context, c entities.TileCoordinates, tileSize int, opts interfaces.RasterOptions) (*entities.TilePayload, error) {
	f.lastOpts = opts
	if c.Z == 99 {
		return nil, nil
	}
	return &entities.TilePayload{Data: []byte("raster-data"), Format: entities.FormatPNG}, nil
}

func TestGetTileInvalidCoordinates(t *testing.T) {
	mgr := sources.New()
	co := New(mgr, nil)
	_, err := co.GetTile(context.Background(), "roads", entities.TileCoordinates{Z: -1, X: 0, Y: 0})
	if tileerr.KindOf(err) != tileerr.KindInvalidCoordinates {
		t.Errorf("GetTile with invalid coordinates: err = %v, want KindInvalidCoordinates", err)
	}
}

func TestGetTileUnknownSource(t *testing.T) {
	mgr := sources.New()
	co := New(mgr, nil)
	_, err := co.GetTile(context.Background(), "missing", entities.TileCoordinates{Z: 1, X: 0, Y: 0})
	if tileerr.KindOf(err) != tileerr.KindSourceNotFound {
		t.Errorf("GetTile with unknown source: err = %v, want KindSourceNotFound", err)
	}
}

func TestGetTileAbsenceIsNotAnError(t *testing.T) {
	mgr := sources.New()
	mgr.Register("roads", &fakeVectorSource{})
	co := New(mgr, nil)
	resp, err := co.GetTile(context.Background(), "roads", entities.TileCoordinates{Z: 20, X: 0, Y: 0})
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if resp.Payload.Data != nil {
		t.Errorf("absent tile: Payload = %+v, want zero value", resp.Payload)
	}
}

func TestGetTileServesAndSetsCacheControl(t *testing.T) {
	mgr := sources.New()
	mgr.Register("roads", &fakeVectorSource{})
	co := New(mgr, nil)
	resp, err := co.GetTile(context.Background(), "roads", entities.TileCoordinates{Z: 1, X: 0, Y: 0})
	if err != nil {
		t.Fatalf("GetTile: %v", err)
	}
	if string(resp.Payload.Data) != "tile-data" {
		t.Errorf("Payload.Data = %q, want %q", resp.Payload.Data, "tile-data")
	}
	if resp.CacheControl != TileCacheControl {
		t.Errorf("CacheControl = %q, want %q", resp.CacheControl, TileCacheControl)
	}
}

func TestGetTileGoesThroughCacheOnRepeatedRequests(t *testing.T) {
	mgr := sources.New()
	src := &fakeVectorSource{}
	mgr.Register("roads", src)
	c, err := cache.New(cache.Config{MaxBytes: 1 << 20}, 0)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	co := New(mgr, c)
	coord := entities.TileCoordinates{Z: 1, X: 0, Y: 0}
	for i := 0; i < 3; i++ {
		if _, err := co.GetTile(context.Background(), "roads", coord); err != nil {
			t.Fatalf("GetTile iteration %d: %v", i, err)
		}
	}
	if src.calls != 1 {
		t.Errorf("backend GetTile called %d times, want 1 (cache should dedup)", src.calls)
	}
}

func TestGetRasterTileRequiresRasterSource(t *testing.T) {
	mgr := sources.New()
	mgr.Register("roads", &fakeVectorSource{})
	co := New(mgr, nil)
	_, err := co.GetRasterTile(context.Background(), "roads", entities.TileCoordinates{Z: 1, X: 0, Y: 0}, 256, RasterRequest{})
	if tileerr.KindOf(err) != tileerr.KindSourceNotFound {
		t.Errorf("GetRasterTile over a non-raster source: err = %v, want KindSourceNotFound", err)
	}
}

func TestGetRasterTilePassesThroughOverridesAndBypassesCache(t *testing.T) {
	mgr := sources.New()
	raster := &fakeRasterSource{}
	mgr.Register("elev", raster)
	c, err := cache.New(cache.Config{MaxBytes: 1 << 20}, 0)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	co := New(mgr, c)

	min, max := 0.0, 100.0
	req := RasterRequest{Resampling: "cubic", RescaleMin: &min, RescaleMax: &max}
	resp, err := co.GetRasterTile(context.Background(), "elev", entities.TileCoordinates{Z: 1, X: 0, Y: 0}, 512, req)
	if err != nil {
		t.Fatalf("GetRasterTile: %v", err)
	}
	if string(resp.Payload.Data) != "raster-data" {
		t.Errorf("Payload.Data = %q, want %q", resp.Payload.Data, "raster-data")
	}
	if !raster.lastOpts.HasRescale || *raster.lastOpts.RescaleMin != min || *raster.lastOpts.RescaleMax != max {
		t.Errorf("rescale override not passed through: %+v", raster.lastOpts)
	}
	if raster.lastOpts.Resampling != "cubic" {
		t.Errorf("resampling override not passed through: %+v", raster.lastOpts)
	}
}

func TestMetadataUnknownSource(t *testing.T) {
	mgr := sources.New()
	co := New(mgr, nil)
	_, err := co.Metadata("missing")
	if tileerr.KindOf(err) != tileerr.KindSourceNotFound {
		t.Errorf("Metadata for unknown source: err = %v, want KindSourceNotFound", err)
	}
}
