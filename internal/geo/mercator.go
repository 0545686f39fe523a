// Package geo holds the Web Mercator and tile-envelope math shared by the
// PostGIS, COG and style components, grounded on the formulas in spec §4.4
// and §4.6.
package geo

import "math"

// WebMercatorExtent is the half-extent of EPSG:3857 in meters: ±E on both
// axes (§4.6, GLOSSARY).
const WebMercatorExtent = 20037508.342789244

// Envelope is an axis-aligned bounding box.
type Envelope struct {
	MinX, MinY, MaxX, MaxY float64
}

// TileEnvelope3857 computes the Web Mercator bounding box of tile (z, x, y),
// matching PostGIS's ST_TileEnvelope and the COG renderer's per-tile
// destination bounds (§4.4 step 1, §4.6 step 1).
func TileEnvelope3857(z, x, y int) Envelope {
	span := 2 * WebMercatorExtent / float64(uint64(1)<<uint(z))
	minX := -WebMercatorExtent + float64(x)*span
	maxY := WebMercatorExtent - float64(y)*span
	return Envelope{
		MinX: minX,
		MinY: maxY - span,
		MaxX: minX + span,
		MaxY: maxY,
	}
}

// LonLatToTile converts a WGS84 coordinate to the tile containing it at the
// given zoom, using the standard spherical Mercator formula. Latitude is
// clamped to the Web Mercator valid range (±85.0511).
func LonLatToTile(lon, lat float64, z int) (x, y int) {
	if lat > 85.0511 {
		lat = 85.0511
	}
	if lat < -85.0511 {
		lat = -85.0511
	}
	n := math.Pow(2, float64(z))
	latRad := lat * math.Pi / 180
	x = int((lon + 180) / 360 * n)
	y = int((1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * n)

	max := int(n) - 1
	if x < 0 {
		x = 0
	} else if x > max {
		x = max
	}
	if y < 0 {
		y = 0
	} else if y > max {
		y = max
	}
	return x, y
}

// BoundsToTileRange returns the inclusive tile coordinate range covering a
// WGS84 bounding box at zoom z. An empty/degenerate box yields a range with
// minX > maxX, signalling callers to skip it.
func BoundsToTileRange(b [4]float64, z int) (minX, minY, maxX, maxY int) {
	west, south, east, north := b[0], b[1], b[2], b[3]
	if east <= west || north <= south {
		return 0, 0, -1, -1
	}
	minX, maxY = LonLatToTile(west, south, z)
	maxX, minY = LonLatToTile(east, north, z)
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return minX, minY, maxX, maxY
}
