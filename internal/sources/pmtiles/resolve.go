package pmtiles

import (
	"context"
	"fmt"
)

// rangeFetcher abstracts the byte-range read both backends need: the local
// backend satisfies it with os.File.ReadAt, the HTTP backend with a Range
// request (§4.2).
type rangeFetcher interface {
	fetchRange(ctx context.Context, offset, length uint64) ([]byte, error)
}

// directorySource resolves a tile id to its byte range by walking the root
// directory and, when an entry points to a leaf, fetching and caching that
// leaf directory before recursing (§4.2 steps 2-3). Both backends share this
// walk; they differ only in how fetchRange and the leaf cache are wired.
type directorySource struct {
	header Header
	root   []entry
	fetch  rangeFetcher
	leaves leafCache
}

// leafCache caches decoded leaf directories keyed by their byte offset
// within the leaf-directory section, so repeated lookups into a hot leaf
// don't re-fetch or re-parse it (§4.2's "bounded LRU keyed by byte range").
type leafCache interface {
	get(offset uint64) ([]entry, bool)
	put(offset uint64, dir []entry)
}

// resolve implements §4.2's four-step algorithm for a single (z,x,y).
func (d *directorySource) resolve(ctx context.Context, tileID uint64) (*entry, error) {
	dir := d.root
	for {
		e, ok := findEntry(dir, tileID)
		if !ok {
			return nil, nil
		}
		if e.runLength > 0 {
			return &e, nil
		}

		leafOffset := e.offset
		if cached, ok := d.leaves.get(leafOffset); ok {
			dir = cached
			continue
		}

		raw, err := d.fetch.fetchRange(ctx, d.header.LeafDirOffset+e.offset, uint64(e.length))
		if err != nil {
			return nil, fmt.Errorf("pmtiles: fetching leaf directory: %w", err)
		}
		leafEntries, err := decodeCompressedDirectory(raw, d.header.InternalCompression)
		if err != nil {
			return nil, fmt.Errorf("pmtiles: parsing leaf directory: %w", err)
		}
		d.leaves.put(leafOffset, leafEntries)
		dir = leafEntries
	}
}
