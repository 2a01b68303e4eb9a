// Package rasterfmt decodes the two elevation-tile container formats named
// in spec §4.5: flat raw binary grids, and a minimal GeoTIFF reader for
// single-band integer/float elevation rasters. Decode failures are reported
// as plain errors; the caller (internal/elevmodel RequestTask) maps them to
// the CorruptData error kind of spec §7.
package rasterfmt

import (
	"fmt"

	"github.com/walkthru-earth/elevationd/internal/elevbuf"
)

// Raster is the decoded shape handed back to the elevation model: width,
// height, and a typed sample buffer. Geographic sector is not carried here;
// the caller already knows the tile's sector from its pyramid position.
type Raster struct {
	Width, Height int
	Buf           *elevbuf.Buffer
}

// DecodeRaw reinterprets data as a flat, row-major width*height grid of the
// given element type and byte order (spec §4.5 "Raw"). It does not copy data.
func DecodeRaw(data []byte, width, height int, typ elevbuf.DataType, order elevbuf.ByteOrder) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("rasterfmt: invalid dimensions %dx%d", width, height)
	}
	buf, err := elevbuf.New(data, typ, order, width*height)
	if err != nil {
		return nil, fmt.Errorf("rasterfmt: raw decode: %w", err)
	}
	return &Raster{Width: width, Height: height, Buf: buf}, nil
}
