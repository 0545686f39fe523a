package cog

import (
	"image/color"
	"testing"
)

func TestUndoHorizontalDifferencingSingleBand(t *testing.T) {
	// Row of deltas [10, 1, 1, 1] should decode to absolute values
	// [10, 11, 12, 13].
	data := []byte{10, 1, 1, 1}
	undoHorizontalDifferencing(data, 4, 1, 8)
	want := []byte{10, 11, 12, 13}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("data[%d] = %d, want %d", i, data[i], want[i])
		}
	}
}

func TestUndoHorizontalDifferencingMultiBand(t *testing.T) {
	// Two pixels, 3 samples per pixel (RGB); predictor deltas per-band.
	data := []byte{
		100, 50, 0, // pixel 0: R=100 G=50 B=0
		5, 5, 5, // pixel 1 delta: R+=5 G+=5 B+=5
	}
	undoHorizontalDifferencing(data, 2, 3, 8)
	want := []byte{100, 50, 0, 105, 55, 5}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("data[%d] = %d, want %d", i, data[i], want[i])
		}
	}
}

func TestUndoHorizontalDifferencingSkipsNonByteSamples(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	orig := append([]byte{}, data...)
	undoHorizontalDifferencing(data, 4, 1, 32)
	for i := range orig {
		if data[i] != orig[i] {
			t.Errorf("16/32-bit samples should be left untouched, data[%d] = %d, want %d", i, data[i], orig[i])
		}
	}
}

func TestDecodeRawTileSingleBandGrayscaleWithNodata(t *testing.T) {
	l := level{tileWidth: 2, tileHeight: 1, samplesPerPixel: 1}
	data := []byte{100, 0} // second pixel is the nodata sentinel
	nodata := 0.0
	img := decodeRawTile(l, data, &nodata)

	c0 := img.RGBAAt(0, 0)
	want0 := color.RGBA{R: 100, G: 100, B: 100, A: 255}
	if c0 != want0 {
		t.Errorf("pixel 0 = %+v, want %+v", c0, want0)
	}
	c1 := img.RGBAAt(1, 0)
	if c1.A != 0 {
		t.Errorf("pixel 1 alpha = %d, want 0 (nodata)", c1.A)
	}
}

func TestDecodeRawTileThreeBandRGB(t *testing.T) {
	l := level{tileWidth: 1, tileHeight: 1, samplesPerPixel: 3}
	data := []byte{10, 20, 30}
	img := decodeRawTile(l, data, nil)
	got := img.RGBAAt(0, 0)
	want := color.RGBA{R: 10, G: 20, B: 30, A: 255}
	if got != want {
		t.Errorf("pixel = %+v, want %+v", got, want)
	}
}

func TestDecodeRawTileFourBandRGBA(t *testing.T) {
	l := level{tileWidth: 1, tileHeight: 1, samplesPerPixel: 4}
	data := []byte{10, 20, 30, 128}
	img := decodeRawTile(l, data, nil)
	got := img.RGBAAt(0, 0)
	want := color.RGBA{R: 10, G: 20, B: 30, A: 128}
	if got != want {
		t.Errorf("pixel = %+v, want %+v", got, want)
	}
}

func TestDecodeRawTileTwoBandGrayscaleAlpha(t *testing.T) {
	l := level{tileWidth: 1, tileHeight: 1, samplesPerPixel: 2}
	data := []byte{200, 64}
	img := decodeRawTile(l, data, nil)
	got := img.RGBAAt(0, 0)
	want := color.RGBA{R: 200, G: 200, B: 200, A: 64}
	if got != want {
		t.Errorf("pixel = %+v, want %+v", got, want)
	}
}
