package cog

import (
	"image/color"
	"math"
)

// ColormapMode selects how stops are interpolated between.
type ColormapMode int

const (
	ColormapContinuous ColormapMode = iota
	ColormapDiscrete
)

// RescaleMode controls how raw band values are normalized before the
// colormap stops are applied (§4.6 Colormap).
type RescaleMode int

const (
	RescaleNone RescaleMode = iota
	RescaleStatic
	RescaleDynamic
)

// ColormapStop is one (value, color) pair.
type ColormapStop struct {
	Value float64
	Color color.RGBA
}

// Colormap maps a single band's f64 values to RGBA, per §4.6.
type Colormap struct {
	Mode        ColormapMode
	Stops       []ColormapStop // sorted ascending by Value
	Rescale     RescaleMode
	NodataColor color.RGBA // default: transparent
}

// Apply maps v to a color. static rescale (and none) compare v directly
// against the configured stops; only dynamic rescale normalizes v to [0,1]
// first, using caller-supplied rescaleMin/rescaleMax — the stop list is then
// expected to be authored in [0,1] rather than raw band values.
func (c Colormap) Apply(v float64, rescaleMin, rescaleMax float64) color.RGBA {
	if len(c.Stops) == 0 {
		return c.NodataColor
	}

	if c.Rescale == RescaleDynamic && rescaleMax > rescaleMin {
		v = (v - rescaleMin) / (rescaleMax - rescaleMin)
	}

	if c.Mode == ColormapDiscrete {
		return c.applyDiscrete(v)
	}
	return c.applyContinuous(v)
}

// applyDiscrete returns the first stop whose value is >= v (§4.6: "first
// stop whose value >= input wins"), falling back to the last stop.
func (c Colormap) applyDiscrete(v float64) color.RGBA {
	for _, s := range c.Stops {
		if s.Value >= v {
			return s.Color
		}
	}
	return c.Stops[len(c.Stops)-1].Color
}

// applyContinuous linearly interpolates between the stops bracketing v,
// clamping to the endpoints outside the stop range.
func (c Colormap) applyContinuous(v float64) color.RGBA {
	if v <= c.Stops[0].Value {
		return c.Stops[0].Color
	}
	last := len(c.Stops) - 1
	if v >= c.Stops[last].Value {
		return c.Stops[last].Color
	}
	for i := 0; i < last; i++ {
		a, b := c.Stops[i], c.Stops[i+1]
		if v >= a.Value && v <= b.Value {
			t := (v - a.Value) / (b.Value - a.Value)
			return lerpRGBA(a.Color, b.Color, t)
		}
	}
	return c.Stops[last].Color
}

func lerpRGBA(a, b color.RGBA, t float64) color.RGBA {
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x)*(1-t) + float64(y)*t))
	}
	return color.RGBA{R: lerp(a.R, b.R), G: lerp(a.G, b.G), B: lerp(a.B, b.B), A: lerp(a.A, b.A)}
}

// IsNodata reports whether v equals the dataset's nodata value within a
// small f64 epsilon, per §4.6.
func IsNodata(v float64, nodata float64, hasNodata bool) bool {
	if !hasNodata {
		return false
	}
	const epsilon = 1e-9
	return math.Abs(v-nodata) < epsilon
}
