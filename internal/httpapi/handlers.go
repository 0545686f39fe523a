// Package httpapi wires the tile request coordinator and style manager to
// an echo/v5 router, implementing the server's external interface (§6):
// tile and TileJSON endpoints, style and WMTS capabilities endpoints, and a
// health check.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v5"

	"tileserver/entities"
	"tileserver/internal/coordinator"
	"tileserver/internal/style"
	"tileserver/internal/tileerr"
	"tileserver/internal/wmts"
)

// Handler binds the coordinator and style manager to HTTP routes.
type Handler struct {
	coord   *coordinator.Coordinator
	styles  *style.Manager
	baseURL string
}

// New builds a Handler. baseURL is prefixed onto every absolute URL the
// handler generates (tile templates, style URLs, WMTS capabilities URLs).
func New(coord *coordinator.Coordinator, styles *style.Manager, baseURL string) *Handler {
	return &Handler{coord: coord, styles: styles, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Register mounts every route on e.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/health", h.health)
	e.GET("/data.json", h.allTileJSON)
	e.GET("/data/:id", h.sourceTileJSON)
	e.GET("/data/:id/:z/:x/:y", h.tile)
	e.GET("/styles.json", h.allStyles)
	e.GET("/styles/:id/style.json", h.style)
	e.GET("/styles/:id/wmts.xml", h.wmtsCapabilities)
}

func (h *Handler) health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) allTileJSON(c echo.Context) error {
	metas := h.coord.AllMetadata()
	out := make([]entities.TileJSON, 0, len(metas))
	for _, m := range metas {
		out = append(out, m.ToTileJSON(h.tileURLTemplate(m)))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) sourceTileJSON(c echo.Context) error {
	id := strings.TrimSuffix(c.Param("id"), ".json")
	meta, err := h.coord.Metadata(id)
	if err != nil {
		return writeErr(c, err)
	}
	return c.JSON(http.StatusOK, meta.ToTileJSON(h.tileURLTemplate(meta)))
}

func (h *Handler) tileURLTemplate(m entities.SourceMetadata) string {
	return h.baseURL + "/data/" + m.ID + "/{z}/{x}/{y}." + m.Format.Extension()
}

func (h *Handler) tile(c echo.Context) error {
	id := c.Param("id")
	z, err := strconv.Atoi(c.Param("z"))
	if err != nil {
		return writeErr(c, tileerr.New(tileerr.KindInvalidCoordinates, "non-integer z"))
	}
	x, err := strconv.Atoi(c.Param("x"))
	if err != nil {
		return writeErr(c, tileerr.New(tileerr.KindInvalidCoordinates, "non-integer x"))
	}
	yRaw := c.Param("y")
	ext := ""
	if idx := strings.LastIndex(yRaw, "."); idx >= 0 {
		ext = yRaw[idx+1:]
		yRaw = yRaw[:idx]
	}
	y, err := strconv.Atoi(yRaw)
	if err != nil {
		return writeErr(c, tileerr.New(tileerr.KindInvalidCoordinates, "non-integer y"))
	}
	coord := entities.TileCoordinates{Z: z, X: x, Y: y}

	var resp coordinator.Response
	if rasterExt(ext) {
		req := coordinator.RasterRequest{Resampling: c.QueryParam("resampling")}
		if rescaleMin, rescaleMax, ok := parseRescale(c); ok {
			req.RescaleMin = &rescaleMin
			req.RescaleMax = &rescaleMax
		}
		tileSize := 256
		if ts := c.QueryParam("tile_size"); ts != "" {
			if n, err := strconv.Atoi(ts); err == nil {
				tileSize = n
			}
		}
		resp, err = h.coord.GetRasterTile(c.Request().Context(), id, coord, tileSize, req)
	} else {
		resp, err = h.coord.GetTile(c.Request().Context(), id, coord)
	}
	if err != nil {
		return writeErr(c, err)
	}
	if resp.Payload.Data == nil {
		return writeErr(c, tileerr.New(tileerr.KindTileNotFound, "tile not found"))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, resp.CacheControl)
	if enc := resp.Payload.Compression.ContentEncoding(); enc != "" {
		c.Response().Header().Set(echo.HeaderContentEncoding, enc)
	}
	return c.Blob(http.StatusOK, resp.Payload.Format.MIME(), resp.Payload.Data)
}

func rasterExt(ext string) bool {
	switch ext {
	case "png", "jpg", "jpeg", "webp", "avif":
		return true
	default:
		return false
	}
}

func parseRescale(c echo.Context) (min, max float64, ok bool) {
	minRaw, maxRaw := c.QueryParam("rescale_min"), c.QueryParam("rescale_max")
	if minRaw == "" || maxRaw == "" {
		return 0, 0, false
	}
	min, errMin := strconv.ParseFloat(minRaw, 64)
	max, errMax := strconv.ParseFloat(maxRaw, 64)
	if errMin != nil || errMax != nil {
		return 0, 0, false
	}
	return min, max, true
}

func (h *Handler) allStyles(c echo.Context) error {
	q := style.QueryParams{Key: c.QueryParam("key")}
	return c.JSON(http.StatusOK, h.styles.AllInfos(h.baseURL, q))
}

func (h *Handler) style(c echo.Context) error {
	id := c.Param("id")
	s, ok := h.styles.Get(id)
	if !ok {
		return writeErr(c, tileerr.New(tileerr.KindStyleNotFound, "unknown style "+id))
	}
	q := style.QueryParams{Key: c.QueryParam("key")}
	rewritten := style.RewriteForAPI(s.JSON, h.baseURL, q)
	c.Response().Header().Set(echo.HeaderCacheControl, coordinator.StaticCacheControl)
	return c.JSON(http.StatusOK, rewritten)
}

func (h *Handler) wmtsCapabilities(c echo.Context) error {
	id := c.Param("id")
	s, ok := h.styles.Get(id)
	if !ok {
		return writeErr(c, tileerr.New(tileerr.KindStyleNotFound, "unknown style "+id))
	}
	minZoom, maxZoom := 0, 18
	if mz, ok := s.JSON["minzoom"].(float64); ok {
		minZoom = int(mz)
	}
	if mz, ok := s.JSON["maxzoom"].(float64); ok {
		maxZoom = int(mz)
	}
	xml := wmts.GenerateCapabilitiesWithKey(h.baseURL, s.ID, s.Name, minZoom, maxZoom, c.QueryParam("key"))
	return c.Blob(http.StatusOK, "application/xml", []byte(xml))
}

func writeErr(c echo.Context, err error) error {
	kind := tileerr.KindOf(err)
	return c.JSON(kind.HTTPStatus(), echo.Map{"error": err.Error()})
}
