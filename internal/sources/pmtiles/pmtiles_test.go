package pmtiles

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"tileserver/entities"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		RootDirOffset:   headerSize,
		RootDirLength:   42,
		MinZoom:         0,
		MaxZoom:         14,
		TileType:        tileTypeMVT,
		TileCompression: compressionGzip,
		MinLon:          -180, MinLat: -85, MaxLon: 180, MaxLat: 85,
	}
	got, err := parseHeader(h.serialize())
	if err != nil {
		t.Fatal(err)
	}
	if got.RootDirOffset != h.RootDirOffset || got.RootDirLength != h.RootDirLength {
		t.Errorf("root dir fields not preserved: %+v", got)
	}
	if got.MinZoom != h.MinZoom || got.MaxZoom != h.MaxZoom {
		t.Errorf("zoom fields not preserved: %+v", got)
	}
	if got.MinLon != h.MinLon || got.MaxLat != h.MaxLat {
		t.Errorf("bounds not preserved (E7 round trip): %+v", got)
	}
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, headerSize)
	copy(buf, "NOTPMTIL")
	if _, err := parseHeader(buf); err == nil {
		t.Error("expected error for bad magic")
	}
}

func TestDirectoryEncodeDecodeRoundTrip(t *testing.T) {
	entries := []entry{
		{tileID: 0, offset: 0, length: 100, runLength: 1},
		{tileID: 1, offset: 100, length: 50, runLength: 1},
		{tileID: 5, offset: 9999, length: 10, runLength: 3},
	}
	raw := encodeDirectory(entries)
	got, err := decodeDirectory(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if got[i] != e {
			t.Errorf("entry %d: got %+v, want %+v", i, got[i], e)
		}
	}
}

func TestFindEntryCoversRunLength(t *testing.T) {
	dir := []entry{
		{tileID: 10, offset: 0, length: 5, runLength: 3},
		{tileID: 20, offset: 5, length: 5, runLength: 1},
	}
	if e, ok := findEntry(dir, 11); !ok || e.tileID != 10 {
		t.Errorf("expected id 11 to resolve into run starting at 10, got %+v ok=%v", e, ok)
	}
	if _, ok := findEntry(dir, 13); ok {
		t.Error("expected id 13 (just past the run) to miss")
	}
	if _, ok := findEntry(dir, 9); ok {
		t.Error("expected id below the first entry to miss")
	}
}

// writeTestArchive builds a minimal single-level-directory PMTiles archive
// with one tile at (0,0,0), matching boundary scenario 1 (§8): a world tile
// at maxzoom=0, no leaf directories.
func writeTestArchive(t *testing.T, tileBytes []byte) string {
	t.Helper()

	rootEntries := []entry{{tileID: 0, offset: 0, length: uint32(len(tileBytes)), runLength: 1}}
	rootDir := encodeDirectory(rootEntries)

	h := Header{
		RootDirOffset:       headerSize,
		RootDirLength:       uint64(len(rootDir)),
		MetadataOffset:      headerSize + uint64(len(rootDir)),
		MetadataLength:      0,
		TileDataOffset:      headerSize + uint64(len(rootDir)),
		TileDataLength:      uint64(len(tileBytes)),
		NumAddressedTiles:   1,
		NumTileEntries:      1,
		NumTileContents:     1,
		InternalCompression: compressionNone,
		TileCompression:     compressionNone,
		TileType:            tileTypeMVT,
		MinZoom:             0,
		MaxZoom:             0,
	}

	path := filepath.Join(t.TempDir(), "test.pmtiles")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := f.Write(h.serialize()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(rootDir); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write(tileBytes); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLocalSourceWorldTile(t *testing.T) {
	want := []byte("fake-mvt-bytes")
	path := writeTestArchive(t, want)

	src, err := OpenLocal("world", path, 0)
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	defer src.Close()

	payload, err := src.GetTile(context.Background(), entities.TileCoordinates{Z: 0, X: 0, Y: 0})
	if err != nil {
		t.Fatalf("GetTile(0,0,0): %v", err)
	}
	if payload == nil {
		t.Fatal("expected a tile at 0/0/0")
	}
	if string(payload.Data) != string(want) {
		t.Errorf("got %q, want %q", payload.Data, want)
	}
}

func TestLocalSourceAboveMaxZoomIsAbsence(t *testing.T) {
	path := writeTestArchive(t, []byte("x"))
	src, err := OpenLocal("world", path, 0)
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	defer src.Close()

	payload, err := src.GetTile(context.Background(), entities.TileCoordinates{Z: 1, X: 0, Y: 0})
	if err != nil {
		t.Fatalf("GetTile(1,0,0): %v", err)
	}
	if payload != nil {
		t.Error("expected absence above maxzoom, got a payload")
	}
}

func TestLocalSourceInvalidCoordinatesIsError(t *testing.T) {
	path := writeTestArchive(t, []byte("x"))
	src, err := OpenLocal("world", path, 0)
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	defer src.Close()

	if _, err := src.GetTile(context.Background(), entities.TileCoordinates{Z: 0, X: 5, Y: 5}); err == nil {
		t.Error("expected error for out-of-range x/y at z=0")
	}
}
