package sources

import (
	"context"
	"testing"

	"tileserver/entities"
	"tileserver/internal/config"
)

type stubSource struct {
	meta   entities.SourceMetadata
	closed bool
}

func (s *stubSource) GetTile(ctx context.Context, c entities.TileCoordinates) (*entities.TilePayload, error) {
	return nil, nil
}
func (s *stubSource) Metadata() entities.SourceMetadata { return s.meta }
func (s *stubSource) Close() error                      { s.closed = true; return nil }

func TestFromConfigsSkipsUnknownSourceTypeAndContinues(t *testing.T) {
	cfgs := []config.SourceConfig{
		{ID: "bad", Type: "not-a-real-type"},
		{ID: "also-bad", Type: "pmtiles-local", Path: "/does/not/exist.pmtiles"},
	}
	mgr, err := FromConfigs(context.Background(), cfgs, config.PostgresConfig{})
	if err != nil {
		t.Fatalf("FromConfigs: %v", err)
	}
	if !mgr.IsEmpty() {
		t.Errorf("Manager should be empty when every configured source fails to open, got %d", mgr.Len())
	}
}

func TestManagerRegisterGetAndIDs(t *testing.T) {
	mgr := New()
	mgr.Register("roads", &stubSource{meta: entities.SourceMetadata{ID: "roads"}})
	mgr.Register("water", &stubSource{meta: entities.SourceMetadata{ID: "water"}})

	if mgr.Len() != 2 {
		t.Errorf("Len() = %d, want 2", mgr.Len())
	}
	if _, ok := mgr.Get("roads"); !ok {
		t.Error("Get(\"roads\") not found")
	}
	if _, ok := mgr.Get("missing"); ok {
		t.Error("Get(\"missing\") unexpectedly found")
	}
	ids := mgr.IDs()
	if len(ids) != 2 || ids[0] != "roads" || ids[1] != "water" {
		t.Errorf("IDs() = %v, want [roads water] (load order preserved)", ids)
	}
}

func TestManagerGetRasterRejectsNonRasterSource(t *testing.T) {
	mgr := New()
	mgr.Register("roads", &stubSource{meta: entities.SourceMetadata{ID: "roads"}})
	if _, ok := mgr.GetRaster("roads"); ok {
		t.Error("GetRaster should reject a source that doesn't implement RasterSource")
	}
}

func TestManagerAllMetadataPreservesLoadOrder(t *testing.T) {
	mgr := New()
	mgr.Register("b", &stubSource{meta: entities.SourceMetadata{ID: "b"}})
	mgr.Register("a", &stubSource{meta: entities.SourceMetadata{ID: "a"}})
	metas := mgr.AllMetadata()
	if len(metas) != 2 || metas[0].ID != "b" || metas[1].ID != "a" {
		t.Errorf("AllMetadata() = %v, want [b a]", metas)
	}
}

func TestManagerCloseClosesEverySource(t *testing.T) {
	mgr := New()
	s1 := &stubSource{meta: entities.SourceMetadata{ID: "a"}}
	s2 := &stubSource{meta: entities.SourceMetadata{ID: "b"}}
	mgr.Register("a", s1)
	mgr.Register("b", s2)
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !s1.closed || !s2.closed {
		t.Error("Close did not close every registered source")
	}
}
