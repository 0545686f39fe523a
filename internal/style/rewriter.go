// Package style loads MapLibre style documents and rewrites them for two
// consumption modes (§4.9): API mode turns the style's relative URLs into
// absolute ones (with API-key forwarding) for browser MapLibre GL clients;
// native mode inlines concrete tile URL templates, resolved against the
// source manager, for MapLibre Native renderers that can't fetch a nested
// TileJSON document themselves.
package style

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"tileserver/entities"
	"tileserver/internal/config"
	"tileserver/internal/sources"
	"tileserver/internal/tileerr"
)

// Style is one loaded MapLibre style document.
type Style struct {
	ID   string
	Name string
	Path string
	JSON map[string]any
}

// Load reads and parses the style document named by cfg. name falls back
// from cfg.Name to the style JSON's own top-level "name" field, and finally
// to the id.
func Load(cfg config.StyleConfig) (*Style, error) {
	data, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, tileerr.Wrap(tileerr.KindConfigError, fmt.Sprintf("reading style %s", cfg.Path), err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, tileerr.Wrap(tileerr.KindConfigError, fmt.Sprintf("parsing style %s", cfg.Path), err)
	}
	name := cfg.Name
	if name == "" {
		if n, ok := doc["name"].(string); ok && n != "" {
			name = n
		}
	}
	if name == "" {
		name = cfg.ID
	}
	return &Style{ID: cfg.ID, Name: name, Path: cfg.Path, JSON: doc}, nil
}

// Info is the style's public listing entry (§6's /styles.json).
type Info struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// Info projects s into its listing entry, with an absolute style.json URL
// carrying the key-forwarding query string q produces.
func (s *Style) Info(baseURL string, q QueryParams) Info {
	return Info{
		ID:   s.ID,
		Name: s.Name,
		URL:  fmt.Sprintf("%s/styles/%s/style.json%s", baseURL, s.ID, q.QueryString()),
	}
}

// QueryParams carries the query string a rewritten URL should forward —
// chiefly the API key, plus any additional caller-supplied pairs.
type QueryParams struct {
	Key   string
	Extra [][2]string
}

// QueryString renders q as "?key=value&k=v&..." with each value
// percent-encoded, or "" if q carries nothing.
func (q QueryParams) QueryString() string {
	var parts []string
	if q.Key != "" {
		parts = append(parts, "key="+url.QueryEscape(q.Key))
	}
	for _, kv := range q.Extra {
		parts = append(parts, url.QueryEscape(kv[0])+"="+url.QueryEscape(kv[1]))
	}
	if len(parts) == 0 {
		return ""
	}
	return "?" + strings.Join(parts, "&")
}

// Manager holds every loaded style, keyed by id.
type Manager struct {
	styles map[string]*Style
	ids    []string
}

// NewManager returns an empty style Manager.
func NewManager() *Manager {
	return &Manager{styles: make(map[string]*Style)}
}

// ManagerFromConfigs loads every configured style, logging and skipping any
// that fail to load rather than failing startup outright.
func ManagerFromConfigs(cfgs []config.StyleConfig) (*Manager, error) {
	m := NewManager()
	for _, cfg := range cfgs {
		s, err := Load(cfg)
		if err != nil {
			log.Printf("style manager: skipping style %q: %v", cfg.ID, err)
			continue
		}
		if _, exists := m.styles[s.ID]; !exists {
			m.ids = append(m.ids, s.ID)
		}
		m.styles[s.ID] = s
	}
	return m, nil
}

// Get returns the style registered under id.
func (m *Manager) Get(id string) (*Style, bool) {
	s, ok := m.styles[id]
	return s, ok
}

// AllInfos returns every registered style's listing entry, in load order.
func (m *Manager) AllInfos(baseURL string, q QueryParams) []Info {
	out := make([]Info, 0, len(m.ids))
	for _, id := range m.ids {
		out = append(out, m.styles[id].Info(baseURL, q))
	}
	return out
}

// Len reports the number of loaded styles.
func (m *Manager) Len() int { return len(m.styles) }

// IsEmpty reports whether no style loaded successfully.
func (m *Manager) IsEmpty() bool { return len(m.styles) == 0 }

// RewriteForAPI rewrites every relative ("/...") URL in styleJSON — source
// urls and tile templates, plus the top-level glyphs and sprite fields —
// into an absolute URL under baseURL, with q's query string appended.
// Already-absolute URLs are left untouched. styleJSON is not mutated; a
// rewritten copy is returned.
func RewriteForAPI(styleJSON map[string]any, baseURL string, q QueryParams) map[string]any {
	out := deepCopy(styleJSON)
	qs := q.QueryString()
	rewriteAbs := func(u string) string {
		if !strings.HasPrefix(u, "/") {
			return u
		}
		return baseURL + u + qs
	}

	if sourcesVal, ok := out["sources"].(map[string]any); ok {
		for id, raw := range sourcesVal {
			src, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if u, ok := src["url"].(string); ok {
				src["url"] = rewriteAbs(u)
			}
			if tiles, ok := src["tiles"].([]any); ok {
				for i, t := range tiles {
					if ts, ok := t.(string); ok {
						tiles[i] = rewriteAbs(ts)
					}
				}
			}
			sourcesVal[id] = src
		}
		out["sources"] = sourcesVal
	}
	if g, ok := out["glyphs"].(string); ok {
		out["glyphs"] = rewriteAbs(g)
	}
	if s, ok := out["sprite"].(string); ok {
		out["sprite"] = rewriteAbs(s)
	}
	return out
}

// RewriteForNative inlines concrete tile URL templates for every style
// source shaped as a reference to a locally served data source (a "/data/"
// style URL), resolved against mgr, and backfills minzoom/maxzoom/bounds/
// attribution from the resolved source's metadata when the style doesn't
// already declare them. Sources that don't resolve are logged and left
// unchanged. styleJSON is not mutated; a rewritten copy is returned.
func RewriteForNative(styleJSON map[string]any, baseURL string, mgr *sources.Manager) map[string]any {
	out := deepCopy(styleJSON)
	if sourcesVal, ok := out["sources"].(map[string]any); ok {
		for id, raw := range sourcesVal {
			src, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			sourcesVal[id] = rewriteSourceNative(src, baseURL, mgr)
		}
		out["sources"] = sourcesVal
	}
	rewriteAbs := func(u string) string {
		if !strings.HasPrefix(u, "/") {
			return u
		}
		return baseURL + u
	}
	if g, ok := out["glyphs"].(string); ok {
		out["glyphs"] = rewriteAbs(g)
	}
	if s, ok := out["sprite"].(string); ok {
		out["sprite"] = rewriteAbs(s)
	}
	return out
}

func rewriteSourceNative(src map[string]any, baseURL string, mgr *sources.Manager) map[string]any {
	u, ok := src["url"].(string)
	if !ok {
		return src
	}
	id, ok := dataSourceID(u)
	if !ok {
		return src
	}
	srcHandle, ok := mgr.Get(id)
	if !ok {
		log.Printf("style rewriter: native mode: source %q references unknown data source %q", u, id)
		return src
	}
	meta := srcHandle.Metadata()
	delete(src, "url")
	src["tiles"] = []any{
		fmt.Sprintf("%s/data/%s/{z}/{x}/{y}.%s", baseURL, id, meta.Format.Extension()),
	}
	if _, present := src["minzoom"]; !present {
		src["minzoom"] = meta.MinZoom
	}
	if _, present := src["maxzoom"]; !present {
		src["maxzoom"] = meta.MaxZoom
	}
	if _, present := src["attribution"]; !present && meta.Attribution != "" {
		src["attribution"] = meta.Attribution
	}
	if _, present := src["bounds"]; !present && meta.Bounds != nil {
		src["bounds"] = boundsArray(meta.Bounds)
	}
	return src
}

func boundsArray(b *entities.BoundingBox) []any {
	return []any{b.West, b.South, b.East, b.North}
}

// dataSourceID extracts the source id from a "/data/{id}.json" style source
// url. It also accepts a trailing-path form "/data/.../{id}.json", taking
// the final path segment as the id.
func dataSourceID(styleURL string) (string, bool) {
	if !strings.HasPrefix(styleURL, "/data/") || !strings.HasSuffix(styleURL, ".json") {
		return "", false
	}
	trimmed := strings.TrimSuffix(strings.TrimPrefix(styleURL, "/data/"), ".json")
	if trimmed == "" {
		return "", false
	}
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	return trimmed, trimmed != ""
}

// deepCopy round-trips v through JSON so callers can rewrite the result
// without mutating the caller's copy of the style document.
func deepCopy(v map[string]any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		// Style documents were parsed from valid JSON already; re-encoding
		// them cannot fail in practice.
		return v
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
