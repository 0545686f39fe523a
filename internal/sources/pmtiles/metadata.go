package pmtiles

import (
	"encoding/json"
	"strconv"
	"strings"

	"tileserver/entities"
)

// archiveMetadata is the subset of the archive's JSON metadata blob (§4.2)
// the server cares about. PMTiles archives commonly mirror TileJSON/MBTiles
// conventions here: numeric fields may arrive as either JSON numbers or
// stringified numbers depending on which writer produced the archive.
type archiveMetadata struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Attribution  string          `json:"attribution"`
	VectorLayers []vectorLayerJS `json:"vector_layers"`
}

type vectorLayerJS struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Fields      map[string]any `json:"fields"`
	MinZoom     *int           `json:"minzoom"`
	MaxZoom     *int           `json:"maxzoom"`
}

// buildMetadata merges the archive's header fields (which are authoritative
// for zoom range, bounds, tile type) with whatever the JSON metadata blob
// adds (name, description, attribution, vector layer schema).
func buildMetadata(id string, h Header, rawJSON []byte) entities.SourceMetadata {
	_, ext := tileTypeFormat(h.TileType)
	format := entities.ParseFormat(ext)

	m := entities.SourceMetadata{
		ID:      id,
		Format:  format,
		MinZoom: int(h.MinZoom),
		MaxZoom: int(h.MaxZoom),
		Bounds: &entities.BoundingBox{
			West: float64(h.MinLon), South: float64(h.MinLat),
			East: float64(h.MaxLon), North: float64(h.MaxLat),
		},
		Center: &entities.Center{
			Lon: float64(h.CenterLon), Lat: float64(h.CenterLat),
			Zoom: float64(h.CenterZoom),
		},
	}

	if len(rawJSON) == 0 {
		return m
	}
	var am archiveMetadata
	if err := json.Unmarshal(rawJSON, &am); err != nil {
		return m
	}
	m.Name = am.Name
	m.Description = am.Description
	m.Attribution = am.Attribution
	for _, vl := range am.VectorLayers {
		m.VectorLayers = append(m.VectorLayers, entities.VectorLayer{
			ID:          vl.ID,
			Description: vl.Description,
			Fields:      vl.Fields,
			MinZoom:     vl.MinZoom,
			MaxZoom:     vl.MaxZoom,
		})
	}
	return m
}

// parseCSVFloats parses PMTiles/MBTiles-style "a,b,c,d" metadata strings,
// tolerating surrounding whitespace.
func parseCSVFloats(s string) ([]float64, bool) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}
