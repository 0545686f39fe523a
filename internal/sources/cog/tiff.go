// Package cog serves raster tiles from Cloud-Optimized GeoTIFF datasets
// (§4.6): opening a dataset, reprojecting a tile footprint into source pixel
// space, resampling and converting bands to RGBA, and colormap application.
package cog

import (
	"fmt"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
)

// ifdTags mirrors the subset of baseline TIFF and GeoTIFF tags this reader
// understands, unmarshaled via google/tiff's struct-tag reflection the way
// twpayne-go-elevation's geoTIFFIFD does, but covering tiled and striped,
// multi-band and single-band-float layouts instead of one fixed format.
type ifdTags struct {
	ImageWidth                uint32    `tiff:"field,tag=256"`
	ImageLength               uint32    `tiff:"field,tag=257"`
	BitsPerSample             []uint16  `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	RowsPerStrip              uint32    `tiff:"field,tag=278"`
	StripOffsets              []uint64  `tiff:"field,tag=273"`
	StripByteCounts           []uint64  `tiff:"field,tag=279"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	TileWidth                 uint32    `tiff:"field,tag=322"`
	TileLength                uint32    `tiff:"field,tag=323"`
	TileOffsets               []uint64  `tiff:"field,tag=324"`
	TileByteCounts            []uint64  `tiff:"field,tag=325"`
	SampleFormat              []uint16  `tiff:"field,tag=339"`
	JPEGTables                []byte    `tiff:"field,tag=347"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag        []float64 `tiff:"field,tag=34736"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

// level is one IFD (full resolution or an overview) with its layout resolved
// into a uniform tiled grid — striped images are treated as a single column
// of full-width tiles, same as fd0601e3's strip-to-virtual-tile promotion.
type level struct {
	width, height   int
	tileWidth       int
	tileHeight      int
	tilesAcross     int
	tilesDown       int
	tileOffsets     []uint64
	tileByteCounts  []uint64
	compression     uint16
	predictor       uint16
	samplesPerPixel int
	bitsPerSample   int
	sampleFormat    uint16 // 1=uint, 2=int, 3=float
	jpegTables      []byte
}

func parseIFDs(ifds []tiff.IFD) ([]level, *ifdTags, error) {
	if len(ifds) == 0 {
		return nil, nil, fmt.Errorf("cog: no IFDs found")
	}

	levels := make([]level, 0, len(ifds))
	var first *ifdTags
	for i, raw := range ifds {
		var t ifdTags
		if err := tiff.UnmarshalIFD(raw, &t); err != nil {
			return nil, nil, fmt.Errorf("cog: unmarshaling IFD %d: %w", i, err)
		}
		if i == 0 {
			first = &t
		}

		lvl, err := buildLevel(&t)
		if err != nil {
			return nil, nil, fmt.Errorf("cog: IFD %d: %w", i, err)
		}
		levels = append(levels, lvl)
	}
	return levels, first, nil
}

func buildLevel(t *ifdTags) (level, error) {
	spp := int(t.SamplesPerPixel)
	if spp == 0 {
		spp = 1
	}
	bps := 8
	if len(t.BitsPerSample) > 0 {
		bps = int(t.BitsPerSample[0])
	}
	sf := uint16(1)
	if len(t.SampleFormat) > 0 {
		sf = t.SampleFormat[0]
	}

	lvl := level{
		width:           int(t.ImageWidth),
		height:          int(t.ImageLength),
		compression:     t.Compression,
		predictor:       t.Predictor,
		samplesPerPixel: spp,
		bitsPerSample:   bps,
		sampleFormat:    sf,
		jpegTables:      t.JPEGTables,
	}
	if lvl.compression == 0 {
		lvl.compression = 1
	}

	if t.TileWidth > 0 && t.TileLength > 0 {
		lvl.tileWidth = int(t.TileWidth)
		lvl.tileHeight = int(t.TileLength)
		lvl.tilesAcross = (lvl.width + lvl.tileWidth - 1) / lvl.tileWidth
		lvl.tilesDown = (lvl.height + lvl.tileHeight - 1) / lvl.tileHeight
		lvl.tileOffsets = t.TileOffsets
		lvl.tileByteCounts = t.TileByteCounts
		return lvl, nil
	}

	if len(t.StripOffsets) == 0 {
		return level{}, fmt.Errorf("no tile or strip layout present")
	}
	rps := int(t.RowsPerStrip)
	if rps <= 0 {
		rps = lvl.height
	}
	lvl.tileWidth = lvl.width
	lvl.tileHeight = rps
	lvl.tilesAcross = 1
	lvl.tilesDown = len(t.StripOffsets)
	lvl.tileOffsets = t.StripOffsets
	lvl.tileByteCounts = t.StripByteCounts
	return lvl, nil
}
