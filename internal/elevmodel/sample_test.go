package elevmodel

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/walkthru-earth/elevationd/internal/elevbuf"
	"github.com/walkthru-earth/elevationd/internal/geo"
	"github.com/walkthru-earth/elevationd/internal/tile"
)

// buildSampleTile builds a 2x2 tile covering (0,0)-(10,10) degrees with the
// given row-major corner values: NW, NE, SW, SE.
func buildSampleTile(t *testing.T, nw, ne, sw, se float64) *tile.ElevationTile {
	t.Helper()
	raw := make([]byte, 4*8)
	vals := []float64{nw, ne, sw, se}
	for i, v := range vals {
		binary.BigEndian.PutUint64(raw[i*8:i*8+8], math.Float64bits(v))
	}
	buf, err := elevbuf.New(raw, elevbuf.Float64, elevbuf.BigEndian, 4)
	if err != nil {
		t.Fatal(err)
	}
	return &tile.ElevationTile{
		Tile: tile.Tile{
			Sector:        geo.NewSectorDegrees(0, 10, 0, 10),
			LevelDeltaLat: geo.AngleFromDegrees(10),
			LevelDeltaLon: geo.AngleFromDegrees(10),
			Width:         2,
			Height:        2,
		},
		Buf: buf,
	}
}

func TestBilinearReturnsExactCornerValues(t *testing.T) {
	et := buildSampleTile(t, 1, 2, 3, 4) // NW, NE, SW, SE
	signal := -32768.0

	nw, ok := bilinear(et, geo.NewLatLonDegrees(10, 0), signal)
	assert.True(t, ok)
	assert.Equal(t, 1.0, nw)

	ne, ok := bilinear(et, geo.NewLatLonDegrees(10, 10), signal)
	assert.True(t, ok)
	assert.Equal(t, 2.0, ne)

	sw, ok := bilinear(et, geo.NewLatLonDegrees(0, 0), signal)
	assert.True(t, ok)
	assert.Equal(t, 3.0, sw)

	se, ok := bilinear(et, geo.NewLatLonDegrees(0, 10), signal)
	assert.True(t, ok)
	assert.Equal(t, 4.0, se)
}

func TestBilinearInterpolatesMidpoint(t *testing.T) {
	et := buildSampleTile(t, 0, 10, 0, 10) // east-west gradient only
	v, ok := bilinear(et, geo.NewLatLonDegrees(5, 5), -32768)
	assert.True(t, ok)
	assert.InDelta(t, 5.0, v, 1e-9)
}

func TestBilinearOutsideSectorReturnsFalse(t *testing.T) {
	et := buildSampleTile(t, 1, 2, 3, 4)
	_, ok := bilinear(et, geo.NewLatLonDegrees(50, 50), -32768)
	assert.False(t, ok)
}

func TestBilinearAnySignalNeighbourShortCircuits(t *testing.T) {
	et := buildSampleTile(t, -32768, 2, 3, 4)
	v, ok := bilinear(et, geo.NewLatLonDegrees(5, 5), -32768)
	assert.True(t, ok)
	assert.Equal(t, -32768.0, v)
}
