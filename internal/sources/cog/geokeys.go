package cog

import "fmt"

// GeoInfo is the georeferencing a dataset is opened with: a north-up affine
// transform (origin plus per-pixel size, no rotation) and an EPSG code.
type GeoInfo struct {
	OriginX, OriginY       float64
	PixelSizeX, PixelSizeY float64
	EPSG                   int
}

const (
	geoKeyGeographicType = 2048
	geoKeyProjectedCSType = 3072
)

// parseGeoInfo derives the geotransform from ModelPixelScaleTag (33550) and
// ModelTiepointTag (33922) — the common COG case of an axis-aligned raster
// tied down at pixel (0,0) — and the EPSG code from the GeoKey directory
// (34735), reading GeographicTypeGeoKey/ProjectedCSTypeGeoKey directly since
// their TIFFTagLocation is always 0 (the value is the key's own
// Value_Offset slot).
func parseGeoInfo(t *ifdTags) (GeoInfo, error) {
	var g GeoInfo

	if len(t.ModelPixelScaleTag) < 2 || len(t.ModelTiepointTag) < 6 {
		return g, fmt.Errorf("missing ModelPixelScaleTag/ModelTiepointTag")
	}
	g.PixelSizeX = t.ModelPixelScaleTag[0]
	g.PixelSizeY = t.ModelPixelScaleTag[1]

	i, j := t.ModelTiepointTag[0], t.ModelTiepointTag[1]
	x, y := t.ModelTiepointTag[3], t.ModelTiepointTag[4]
	g.OriginX = x - i*g.PixelSizeX
	g.OriginY = y + j*g.PixelSizeY

	g.EPSG = parseEPSG(t.GeoKeyDirectoryTag)
	return g, nil
}

// parseEPSG walks the packed GeoKey directory: a 4-uint16 header
// (KeyDirectoryVersion, KeyRevision, MinorRevision, NumberOfKeys) followed
// by NumberOfKeys entries of (KeyID, TIFFTagLocation, Count, ValueOffset).
func parseEPSG(dir []uint16) int {
	if len(dir) < 4 {
		return 0
	}
	numKeys := int(dir[3])
	for i := 0; i < numKeys; i++ {
		off := 4 + i*4
		if off+4 > len(dir) {
			break
		}
		keyID := dir[off]
		tagLoc := dir[off+1]
		valueOffset := dir[off+3]
		if tagLoc != 0 {
			continue // value stored in GeoDoubleParamsTag/GeoASCIIParamsTag, not needed for EPSG
		}
		if keyID == geoKeyProjectedCSType || keyID == geoKeyGeographicType {
			if valueOffset != 0 && valueOffset != 32767 {
				return int(valueOffset)
			}
		}
	}
	return 0
}
