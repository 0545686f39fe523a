package entities

// VectorLayer describes one layer advertised by a vector tile source, as
// read from PMTiles/MBTiles metadata JSON or synthesized for PostGIS
// sources from the table/function being served.
type VectorLayer struct {
	ID          string         `json:"id"`
	Description string         `json:"description,omitempty"`
	Fields      map[string]any `json:"fields,omitempty"`
	MinZoom     *int           `json:"minzoom,omitempty"`
	MaxZoom     *int           `json:"maxzoom,omitempty"`
}

// SourceMetadata is populated once at source-open time and never mutated
// afterwards (§3). Every backend produces one of these regardless of how it
// discovers the underlying values (archive header, SQLite metadata table,
// PostgreSQL catalog introspection, GeoTIFF tags).
type SourceMetadata struct {
	ID           string
	Name         string
	Description  string
	Attribution  string
	Format       TileFormat
	MinZoom      int
	MaxZoom      int
	Bounds       *BoundingBox
	Center       *Center
	VectorLayers []VectorLayer
}

// TileJSON is the TileJSON 3.0.0 projection of a SourceMetadata, described
// in §3. The `tiles` template is composed by the caller (coordinator/style
// rewriter) from a base URL, the source id and the format extension.
type TileJSON struct {
	TileJSON     string        `json:"tilejson"`
	ID           string        `json:"id"`
	Tiles        []string      `json:"tiles"`
	Name         string        `json:"name,omitempty"`
	Description  string        `json:"description,omitempty"`
	Attribution  string        `json:"attribution,omitempty"`
	MinZoom      int           `json:"minzoom"`
	MaxZoom      int           `json:"maxzoom"`
	Bounds       []float64     `json:"bounds,omitempty"`
	Center       []float64     `json:"center,omitempty"`
	VectorLayers []VectorLayer `json:"vector_layers,omitempty"`
}

// ToTileJSON projects m into a public TileJSON document. tileURL must already
// contain the {z}/{x}/{y} template and any key-forwarding query string.
func (m SourceMetadata) ToTileJSON(tileURL string) TileJSON {
	tj := TileJSON{
		TileJSON:     "3.0.0",
		ID:           m.ID,
		Tiles:        []string{tileURL},
		Name:         m.Name,
		Description:  m.Description,
		Attribution:  m.Attribution,
		MinZoom:      m.MinZoom,
		MaxZoom:      m.MaxZoom,
		VectorLayers: m.VectorLayers,
	}
	if m.Bounds != nil {
		tj.Bounds = []float64{m.Bounds.West, m.Bounds.South, m.Bounds.East, m.Bounds.North}
	}
	if m.Center != nil {
		tj.Center = []float64{m.Center.Lon, m.Center.Lat, m.Center.Zoom}
	}
	return tj
}
