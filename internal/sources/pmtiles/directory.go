package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// entry is one (tile_id, offset, length, run_length) directory row. A
// runLength of 0 marks a leaf-directory pointer rather than a tile (§4.2):
// offset/length then address a byte range within the leaf-directory section.
type entry struct {
	tileID    uint64
	offset    uint64
	length    uint32
	runLength uint32
}

// encodeDirectory serializes entries (already sorted by tileID ascending)
// into PMTiles' columnar delta-coded form: a varint entry count, then four
// parallel varint arrays (tile_id deltas, run lengths, lengths, offsets).
// The offset column stores 0 to mean "contiguous with the previous entry"
// and offset+1 otherwise, mirroring the PMTiles v3 encoding.
func encodeDirectory(entries []entry) []byte {
	var buf bytes.Buffer
	putUvarint(&buf, uint64(len(entries)))

	var lastID uint64
	for _, e := range entries {
		putUvarint(&buf, e.tileID-lastID)
		lastID = e.tileID
	}
	for _, e := range entries {
		putUvarint(&buf, uint64(e.runLength))
	}
	for _, e := range entries {
		putUvarint(&buf, uint64(e.length))
	}
	for i, e := range entries {
		if i > 0 && e.offset == entries[i-1].offset+uint64(entries[i-1].length) {
			putUvarint(&buf, 0)
		} else {
			putUvarint(&buf, e.offset+1)
		}
	}
	return buf.Bytes()
}

// decodeDirectory is the inverse of encodeDirectory.
func decodeDirectory(data []byte) ([]entry, error) {
	r := bytes.NewReader(data)
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("pmtiles: directory entry count: %w", err)
	}

	entries := make([]entry, n)
	var lastID uint64
	for i := range entries {
		d, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("pmtiles: tile id delta %d: %w", i, err)
		}
		lastID += d
		entries[i].tileID = lastID
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("pmtiles: run length %d: %w", i, err)
		}
		entries[i].runLength = uint32(v)
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("pmtiles: length %d: %w", i, err)
		}
		entries[i].length = uint32(v)
	}
	for i := range entries {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("pmtiles: offset %d: %w", i, err)
		}
		if v == 0 {
			if i == 0 {
				entries[i].offset = 0
			} else {
				entries[i].offset = entries[i-1].offset + uint64(entries[i-1].length)
			}
		} else {
			entries[i].offset = v - 1
		}
	}
	return entries, nil
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// decodeCompressedDirectory decompresses data per compression (§4.2's
// per-archive internal compression) and decodes it into entries.
func decodeCompressedDirectory(data []byte, compression uint8) ([]entry, error) {
	switch compression {
	case compressionNone, compressionUnknown:
		return decodeDirectory(data)
	case compressionGzip:
		raw, err := gzipDecompress(data)
		if err != nil {
			return nil, fmt.Errorf("pmtiles: decompressing directory: %w", err)
		}
		return decodeDirectory(raw)
	default:
		return nil, fmt.Errorf("pmtiles: unsupported internal compression %d", compression)
	}
}

// findEntry binary searches dir (sorted by tileID) for the entry whose
// [tileID, tileID+runLength) range covers id, matching §4.2 step 2. A
// runLength of 0 (leaf pointer) covers every id from its own tileID up to
// the next entry's tileID, since the leaf it points to holds those tiles.
func findEntry(dir []entry, id uint64) (entry, bool) {
	i := sort.Search(len(dir), func(i int) bool { return dir[i].tileID > id })
	if i == 0 {
		return entry{}, false
	}
	cand := dir[i-1]
	span := uint64(cand.runLength)
	if span == 0 {
		return cand, true
	}
	if id >= cand.tileID && id < cand.tileID+span {
		return cand, true
	}
	return entry{}, false
}
