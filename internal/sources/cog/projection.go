package cog

import (
	"math"

	"tileserver/internal/geo"
)

// toWGS84 converts a coordinate in the given EPSG's CRS to WGS84 lon/lat.
// Only EPSG:4326 (identity) and EPSG:3857 (Web Mercator) are implemented —
// the pure-Go reader has no general PROJ-style reprojection engine, so a
// dataset in any other CRS is treated as already WGS84, matching the
// Go-fit tradeoff noted for this backend.
func toWGS84(epsg int, x, y float64) (lon, lat float64) {
	switch epsg {
	case 3857:
		lon = x * 180 / geo.WebMercatorExtent
		lat = math.Atan(math.Exp(y*math.Pi/geo.WebMercatorExtent))*360/math.Pi - 90
		return lon, lat
	default:
		return x, y
	}
}

// fromWGS84 is the inverse of toWGS84.
func fromWGS84(epsg int, lon, lat float64) (x, y float64) {
	switch epsg {
	case 3857:
		x = lon * geo.WebMercatorExtent / 180
		latRad := lat * math.Pi / 180
		y = math.Log(math.Tan(math.Pi/4+latRad/2)) * geo.WebMercatorExtent / math.Pi
		return x, y
	default:
		return lon, lat
	}
}
