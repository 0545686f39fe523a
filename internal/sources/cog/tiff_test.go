package cog

import "testing"

func TestBuildLevelTiledLayout(t *testing.T) {
	tags := &ifdTags{
		ImageWidth:      1000,
		ImageLength:     1000,
		TileWidth:       256,
		TileLength:      256,
		TileOffsets:     []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		TileByteCounts:  []uint64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100},
		SamplesPerPixel: 3,
		BitsPerSample:   []uint16{8, 8, 8},
		Compression:     5,
	}
	lvl, err := buildLevel(tags)
	if err != nil {
		t.Fatal(err)
	}
	if lvl.tileWidth != 256 || lvl.tileHeight != 256 {
		t.Errorf("tile size = (%d,%d), want (256,256)", lvl.tileWidth, lvl.tileHeight)
	}
	// ceil(1000/256) = 4
	if lvl.tilesAcross != 4 || lvl.tilesDown != 4 {
		t.Errorf("tile grid = (%d,%d), want (4,4)", lvl.tilesAcross, lvl.tilesDown)
	}
	if lvl.samplesPerPixel != 3 {
		t.Errorf("samplesPerPixel = %d, want 3", lvl.samplesPerPixel)
	}
	if lvl.compression != 5 {
		t.Errorf("compression = %d, want 5", lvl.compression)
	}
}

func TestBuildLevelStripedLayoutPromotesToVirtualTiles(t *testing.T) {
	tags := &ifdTags{
		ImageWidth:      512,
		ImageLength:     300,
		RowsPerStrip:    100,
		StripOffsets:    []uint64{10, 20, 30},
		StripByteCounts: []uint64{1000, 1000, 1000},
	}
	lvl, err := buildLevel(tags)
	if err != nil {
		t.Fatal(err)
	}
	if lvl.tileWidth != 512 {
		t.Errorf("tileWidth = %d, want image width 512", lvl.tileWidth)
	}
	if lvl.tileHeight != 100 {
		t.Errorf("tileHeight = %d, want RowsPerStrip 100", lvl.tileHeight)
	}
	if lvl.tilesAcross != 1 {
		t.Errorf("tilesAcross = %d, want 1", lvl.tilesAcross)
	}
	if lvl.tilesDown != 3 {
		t.Errorf("tilesDown = %d, want 3 (one per strip)", lvl.tilesDown)
	}
	if lvl.samplesPerPixel != 1 {
		t.Errorf("samplesPerPixel defaulted = %d, want 1", lvl.samplesPerPixel)
	}
	if lvl.bitsPerSample != 8 {
		t.Errorf("bitsPerSample defaulted = %d, want 8", lvl.bitsPerSample)
	}
	if lvl.compression != 1 {
		t.Errorf("compression defaulted = %d, want 1 (uncompressed)", lvl.compression)
	}
}

func TestBuildLevelStripedWithoutRowsPerStripUsesWholeImage(t *testing.T) {
	tags := &ifdTags{
		ImageWidth:   64,
		ImageLength:  64,
		StripOffsets: []uint64{0},
	}
	lvl, err := buildLevel(tags)
	if err != nil {
		t.Fatal(err)
	}
	if lvl.tileHeight != 64 {
		t.Errorf("tileHeight = %d, want 64 (single strip covering whole image)", lvl.tileHeight)
	}
	if lvl.tilesDown != 1 {
		t.Errorf("tilesDown = %d, want 1", lvl.tilesDown)
	}
}

func TestBuildLevelErrorsWithoutTileOrStripLayout(t *testing.T) {
	tags := &ifdTags{ImageWidth: 10, ImageLength: 10}
	if _, err := buildLevel(tags); err == nil {
		t.Error("expected error when neither tile nor strip layout is present")
	}
}

func TestParseIFDsErrorsOnEmptyInput(t *testing.T) {
	if _, _, err := parseIFDs(nil); err == nil {
		t.Error("expected error for no IFDs")
	}
}
