package cog

import (
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func smallReader() *Reader {
	return &Reader{
		levels: []level{
			{width: 4, height: 4, tileWidth: 4, tileHeight: 4, tilesAcross: 1, tilesDown: 1, samplesPerPixel: 1, bitsPerSample: 8},
		},
		geo: GeoInfo{PixelSizeX: 1, PixelSizeY: 1},
	}
}

func solidTile(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestRenderCacheRGBAAtOutOfRange(t *testing.T) {
	r := smallReader()
	c := newRenderCache(r, 0)
	c.rgba[[2]int{0, 0}] = solidTile(4, 4, color.RGBA{R: 1, G: 2, B: 3, A: 4})

	if _, ok := c.rgbaAt(-1, 0); ok {
		t.Error("expected out-of-range pixel to report !ok")
	}
	if _, ok := c.rgbaAt(4, 4); ok {
		t.Error("expected out-of-range pixel to report !ok")
	}
	got, ok := c.rgbaAt(2, 2)
	if !ok {
		t.Fatal("expected in-range pixel to report ok")
	}
	want := color.RGBA{R: 1, G: 2, B: 3, A: 4}
	if got != want {
		t.Errorf("rgbaAt(2,2) = %+v, want %+v", got, want)
	}
}

func TestKernelSampleRGBAAveragesNeighborhood(t *testing.T) {
	r := smallReader()
	c := newRenderCache(r, 0)
	// Half the tile is black, half is white — sampling exactly at the seam
	// with a box filter should land near the midpoint.
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			v := uint8(0)
			if x >= 2 {
				v = 255
			}
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	c.rgba[[2]int{0, 0}] = img

	got, ok := kernelSampleRGBA(c, 1.5, 1.5, imaging.Box)
	if !ok {
		t.Fatal("expected a sampled value")
	}
	if got.R == 0 || got.R == 255 {
		t.Errorf("expected an averaged value strictly between black and white, got R=%d", got.R)
	}
}

func TestKernelSampleRGBAReturnsFalseWhenNoDataInSupport(t *testing.T) {
	r := smallReader()
	c := newRenderCache(r, 0)
	// No tiles populated in the cache — every rgbaAt call misses.
	if _, ok := kernelSampleRGBA(c, 1.5, 1.5, imaging.Linear); ok {
		t.Error("expected no data to sample")
	}
}

func TestSampleModeRGBAPicksMostFrequentNeighbor(t *testing.T) {
	r := smallReader()
	c := newRenderCache(r, 0)
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	majority := color.RGBA{R: 10, G: 10, B: 10, A: 255}
	minority := color.RGBA{R: 200, G: 200, B: 200, A: 255}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, majority)
		}
	}
	img.SetRGBA(1, 1, minority)
	c.rgba[[2]int{0, 0}] = img

	got, ok := sampleModeRGBA(c, 1, 1)
	if !ok {
		t.Fatal("expected a sampled value")
	}
	if got != majority {
		t.Errorf("sampleModeRGBA = %+v, want majority color %+v", got, majority)
	}
}

func TestFilterForKnownAndUnknownResampling(t *testing.T) {
	tests := []struct {
		mode   Resampling
		hasKnownFilter bool
	}{
		{ResamplingBilinear, true},
		{ResamplingCubic, true},
		{ResamplingCubicSpline, true},
		{ResamplingLanczos, true},
		{ResamplingAverage, true},
		{ResamplingNearest, false},
		{ResamplingMode, false},
		{"", false},
	}
	for _, tt := range tests {
		_, ok := filterFor(tt.mode)
		if ok != tt.hasKnownFilter {
			t.Errorf("filterFor(%q) ok = %v, want %v", tt.mode, ok, tt.hasKnownFilter)
		}
	}
}
