package cog

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"tileserver/entities"
	"tileserver/internal/geo"
)

// Resampling names the warp kernel a render call uses, matching the
// vocabulary in §4.6: nearest, bilinear, cubic, cubic-spline, lanczos,
// average, mode.
type Resampling string

const (
	ResamplingNearest     Resampling = "nearest"
	ResamplingBilinear    Resampling = "bilinear"
	ResamplingCubic       Resampling = "cubic"
	ResamplingCubicSpline Resampling = "cubic-spline"
	ResamplingLanczos     Resampling = "lanczos"
	ResamplingAverage     Resampling = "average"
	ResamplingMode        Resampling = "mode"
)

// filterFor maps a resampling name onto one of imaging's exported kernels.
// "mode" has no equivalent kernel in the library (it picks the most common
// neighborhood value, not a weighted blend) and is handled separately in
// sampleModeRGBA and sampleModeFloat.
func filterFor(r Resampling) (imaging.ResampleFilter, bool) {
	switch r {
	case ResamplingBilinear:
		return imaging.Linear, true
	case ResamplingCubic:
		return imaging.CatmullRom, true
	case ResamplingCubicSpline:
		return imaging.BSpline, true
	case ResamplingLanczos:
		return imaging.Lanczos, true
	case ResamplingAverage:
		return imaging.Box, true
	default:
		return imaging.ResampleFilter{}, false
	}
}

// RenderOptions configures a single tile render, per §4.6.
type RenderOptions struct {
	TileSize   int
	Resampling Resampling
	Colormap   *Colormap
	RescaleMin float64
	RescaleMax float64
	HasRescale bool
}

// renderCache memoizes decoded tiles within a single render call — a warp
// samples the same source tile from many neighboring destination pixels,
// and decompressing it again each time would be wasteful (§4.6 concurrency
// note: per-dataset work runs on one worker, so no locking is needed here).
type renderCache struct {
	r     *Reader
	level int
	rgba  map[[2]int]*image.RGBA
	raw   map[[2]int][]byte
}

func newRenderCache(r *Reader, level int) *renderCache {
	return &renderCache{r: r, level: level, rgba: map[[2]int]*image.RGBA{}, raw: map[[2]int][]byte{}}
}

func (c *renderCache) rgbaAt(px, py int) (color.RGBA, bool) {
	l := c.r.levels[c.level]
	if px < 0 || px >= l.width || py < 0 || py >= l.height {
		return color.RGBA{}, false
	}
	col, row := px/l.tileWidth, py/l.tileHeight
	key := [2]int{col, row}
	tile, ok := c.rgba[key]
	if !ok {
		t, err := c.r.readTile(c.level, col, row)
		if err != nil {
			return color.RGBA{}, false
		}
		c.rgba[key] = t
		tile = t
	}
	if tile == nil {
		return color.RGBA{}, false
	}
	return tile.RGBAAt(px%l.tileWidth, py%l.tileHeight), true
}

func (c *renderCache) floatAt(px, py int) (float64, bool) {
	l := c.r.levels[c.level]
	if px < 0 || px >= l.width || py < 0 || py >= l.height {
		return 0, false
	}
	col, row := px/l.tileWidth, py/l.tileHeight
	key := [2]int{col, row}
	data, ok := c.raw[key]
	if !ok {
		d, err := c.r.readRawTile(c.level, col, row)
		if err != nil {
			return 0, false
		}
		c.raw[key] = d
		data = d
	}
	if data == nil {
		return 0, false
	}
	localX, localY := px%l.tileWidth, py%l.tileHeight
	idx := localY*l.tileWidth + localX
	bytesPerSample := l.bitsPerSample / 8
	off := idx * l.samplesPerPixel * bytesPerSample
	if off+bytesPerSample > len(data) {
		return 0, false
	}
	switch l.bitsPerSample {
	case 32:
		bits := uint32(data[off]) | uint32(data[off+1])<<8 | uint32(data[off+2])<<16 | uint32(data[off+3])<<24
		return float64(math.Float32frombits(bits)), true
	default:
		return float64(data[off]), true
	}
}

// RenderTile implements §4.6's per-tile rendering pipeline: Web Mercator
// footprint, destination allocation, warp with the configured resampling
// kernel, band-to-RGBA conversion (direct or via colormap), returned as an
// RGBA image ready for PNG encoding.
func RenderTile(r *Reader, c entities.TileCoordinates, opts RenderOptions) (*image.RGBA, error) {
	if opts.TileSize <= 0 {
		return nil, fmt.Errorf("cog: tile size must be positive")
	}
	env := geo.TileEnvelope3857(c.Z, c.X, c.Y)
	outputResCRS := (env.MaxX - env.MinX) / float64(opts.TileSize)
	if r.geo.EPSG != 3857 {
		// Approximate the output resolution in the source CRS by reprojecting
		// the tile's own width, since a general-CRS scale factor is not
		// globally constant.
		lon0, lat0 := toWGS84(3857, env.MinX, env.MinY)
		lon1, _ := toWGS84(3857, env.MaxX, env.MinY)
		x0, y0 := fromWGS84(r.geo.EPSG, lon0, lat0)
		x1, _ := fromWGS84(r.geo.EPSG, lon1, lat0)
		outputResCRS = math.Abs(x1-x0) / float64(opts.TileSize)
		_ = y0
	}
	level := r.OverviewForLevel(outputResCRS)
	cache := newRenderCache(r, level)

	img := image.NewRGBA(image.Rect(0, 0, opts.TileSize, opts.TileSize))
	filter, hasFilter := filterFor(opts.Resampling)
	hasData := false

	for py := 0; py < opts.TileSize; py++ {
		for px := 0; px < opts.TileSize; px++ {
			ex := env.MinX + (float64(px)+0.5)/float64(opts.TileSize)*(env.MaxX-env.MinX)
			ey := env.MaxY - (float64(py)+0.5)/float64(opts.TileSize)*(env.MaxY-env.MinY)
			lon, lat := toWGS84(3857, ex, ey)
			srcX, srcY := fromWGS84(r.geo.EPSG, lon, lat)

			fx := (srcX - r.geo.OriginX) / r.LevelPixelSize(level)
			fy := (r.geo.OriginY - srcY) / r.LevelPixelSize(level)

			lw, lh := r.LevelSize(level)
			if fx < 0 || fx >= float64(lw) || fy < 0 || fy >= float64(lh) {
				continue
			}

			col, ok := sampleAt(r, cache, opts, fx, fy, filter, hasFilter)
			if !ok {
				continue
			}
			img.SetRGBA(px, py, col)
			hasData = true
		}
	}

	if !hasData {
		return nil, nil
	}
	return img, nil
}

// sampleAt dispatches a single destination pixel to the configured
// resampling kernel and, when a colormap is active, converts the sampled
// band value to a color.
func sampleAt(r *Reader, cache *renderCache, opts RenderOptions, fx, fy float64, filter imaging.ResampleFilter, hasFilter bool) (color.RGBA, bool) {
	useColormap := opts.Colormap != nil && r.Bands() == 1

	if useColormap {
		v, ok := sampleFloatKernel(cache, fx, fy, opts.Resampling, filter, hasFilter)
		if !ok {
			return color.RGBA{}, false
		}
		if nd, has := r.NoData(); IsNodata(v, nd, has) {
			return opts.Colormap.NodataColor, true
		}
		return opts.Colormap.Apply(v, opts.RescaleMin, opts.RescaleMax), true
	}

	return sampleRGBAKernel(cache, fx, fy, opts.Resampling, filter, hasFilter)
}

func sampleRGBAKernel(cache *renderCache, fx, fy float64, mode Resampling, filter imaging.ResampleFilter, hasFilter bool) (color.RGBA, bool) {
	switch mode {
	case ResamplingMode:
		return sampleModeRGBA(cache, fx, fy)
	case "", ResamplingNearest:
		return cache.rgbaAt(int(math.Floor(fx+0.5)), int(math.Floor(fy+0.5)))
	default:
		if !hasFilter {
			return cache.rgbaAt(int(math.Floor(fx+0.5)), int(math.Floor(fy+0.5)))
		}
		return kernelSampleRGBA(cache, fx, fy, filter)
	}
}

func sampleFloatKernel(cache *renderCache, fx, fy float64, mode Resampling, filter imaging.ResampleFilter, hasFilter bool) (float64, bool) {
	switch mode {
	case ResamplingMode:
		return sampleModeFloat(cache, fx, fy)
	case "", ResamplingNearest:
		return cache.floatAt(int(math.Floor(fx+0.5)), int(math.Floor(fy+0.5)))
	default:
		if !hasFilter {
			return cache.floatAt(int(math.Floor(fx+0.5)), int(math.Floor(fy+0.5)))
		}
		return kernelSampleFloat(cache, fx, fy, filter)
	}
}

// kernelSampleRGBA gathers every integer source pixel within the filter's
// support radius of (fx, fy) and combines them with its separable kernel —
// the same weighting imaging.Resize uses internally, applied here per
// destination pixel instead of across a whole image.
func kernelSampleRGBA(cache *renderCache, fx, fy float64, filter imaging.ResampleFilter) (color.RGBA, bool) {
	x0 := int(math.Floor(fx - filter.Support))
	x1 := int(math.Ceil(fx + filter.Support))
	y0 := int(math.Floor(fy - filter.Support))
	y1 := int(math.Ceil(fy + filter.Support))

	var r, g, b, a, weight float64
	for y := y0; y <= y1; y++ {
		wy := filter.Kernel(fy - float64(y))
		for x := x0; x <= x1; x++ {
			wx := filter.Kernel(fx - float64(x))
			w := wx * wy
			if w == 0 {
				continue
			}
			c, ok := cache.rgbaAt(x, y)
			if !ok {
				continue
			}
			r += float64(c.R) * w
			g += float64(c.G) * w
			b += float64(c.B) * w
			a += float64(c.A) * w
			weight += w
		}
	}
	if weight == 0 {
		return color.RGBA{}, false
	}
	clamp := func(v float64) uint8 {
		if v < 0 {
			return 0
		}
		if v > 255 {
			return 255
		}
		return uint8(math.Round(v))
	}
	return color.RGBA{R: clamp(r / weight), G: clamp(g / weight), B: clamp(b / weight), A: clamp(a / weight)}, true
}

func kernelSampleFloat(cache *renderCache, fx, fy float64, filter imaging.ResampleFilter) (float64, bool) {
	x0 := int(math.Floor(fx - filter.Support))
	x1 := int(math.Ceil(fx + filter.Support))
	y0 := int(math.Floor(fy - filter.Support))
	y1 := int(math.Ceil(fy + filter.Support))

	var sum, weight float64
	for y := y0; y <= y1; y++ {
		wy := filter.Kernel(fy - float64(y))
		for x := x0; x <= x1; x++ {
			wx := filter.Kernel(fx - float64(x))
			w := wx * wy
			if w == 0 {
				continue
			}
			v, ok := cache.floatAt(x, y)
			if !ok {
				continue
			}
			sum += v * w
			weight += w
		}
	}
	if weight == 0 {
		return 0, false
	}
	return sum / weight, true
}

// sampleModeRGBA and sampleModeFloat implement the "mode" resampling method
// by taking the most frequent value in the surrounding 3x3 neighborhood —
// imaging has no statistical-mode kernel, so this part of the warp is
// hand-written rather than grounded on the library.
func sampleModeRGBA(cache *renderCache, fx, fy float64) (color.RGBA, bool) {
	cx, cy := int(math.Floor(fx+0.5)), int(math.Floor(fy+0.5))
	counts := map[color.RGBA]int{}
	best, bestCount := color.RGBA{}, 0
	found := false
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			c, ok := cache.rgbaAt(cx+dx, cy+dy)
			if !ok {
				continue
			}
			found = true
			counts[c]++
			if counts[c] > bestCount {
				best, bestCount = c, counts[c]
			}
		}
	}
	return best, found
}

func sampleModeFloat(cache *renderCache, fx, fy float64) (float64, bool) {
	cx, cy := int(math.Floor(fx+0.5)), int(math.Floor(fy+0.5))
	counts := map[float64]int{}
	best, bestCount := 0.0, 0
	found := false
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			v, ok := cache.floatAt(cx+dx, cy+dy)
			if !ok {
				continue
			}
			found = true
			counts[v]++
			if counts[v] > bestCount {
				best, bestCount = v, counts[v]
			}
		}
	}
	return best, found
}
