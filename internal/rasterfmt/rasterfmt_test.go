package rasterfmt

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/walkthru-earth/elevationd/internal/elevbuf"
)

func TestDecodeRawRoundTrip(t *testing.T) {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint16(data[0:2], uint16(int16(-1)))
	binary.LittleEndian.PutUint16(data[2:4], uint16(int16(2)))
	binary.LittleEndian.PutUint16(data[4:6], uint16(int16(3)))
	binary.LittleEndian.PutUint16(data[6:8], uint16(int16(4)))

	r, err := DecodeRaw(data, 2, 2, elevbuf.Int16, elevbuf.LittleEndian)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Width)
	assert.Equal(t, 2, r.Height)
	assert.Equal(t, -1.0, r.Buf.At(0))
	assert.Equal(t, 4.0, r.Buf.At(3))
}

func TestDecodeRawRejectsBadDimensions(t *testing.T) {
	_, err := DecodeRaw([]byte{0, 0}, 0, 1, elevbuf.Int16, elevbuf.LittleEndian)
	assert.Error(t, err)
}

// tiffTag is one IFD entry, built for a minimal single-strip uncompressed
// 2x2 int16 elevation raster, matching the shape DecodeGeoTIFF expects.
type tiffTag struct {
	id, typ uint16
	count   uint32
	value   uint32
}

func buildMinimalGeoTIFF(samples []int16) []byte {
	const (
		shortT = 3
		longT  = 4
	)
	stripBytes := len(samples) * 2

	tags := []tiffTag{
		{256, shortT, 1, 2}, // ImageWidth
		{257, shortT, 1, 2}, // ImageLength
		{258, shortT, 1, 16}, // BitsPerSample
		{259, shortT, 1, 1},  // Compression: none
		{273, longT, 1, 0},   // StripOffsets, patched below
		{277, shortT, 1, 1},  // SamplesPerPixel
		{279, longT, 1, uint32(stripBytes)}, // StripByteCounts
		{339, shortT, 1, 2},  // SampleFormat: signed int
	}

	const ifdOffset = 8
	ifdSize := 2 + len(tags)*12 + 4
	stripOffset := uint32(ifdOffset + ifdSize)

	for i := range tags {
		if tags[i].id == 273 {
			tags[i].value = stripOffset
		}
	}

	buf := make([]byte, int(stripOffset)+stripBytes)
	copy(buf[0:2], []byte("II"))
	binary.LittleEndian.PutUint16(buf[2:4], 42)
	binary.LittleEndian.PutUint32(buf[4:8], ifdOffset)

	binary.LittleEndian.PutUint16(buf[ifdOffset:ifdOffset+2], uint16(len(tags)))
	off := ifdOffset + 2
	for _, tg := range tags {
		binary.LittleEndian.PutUint16(buf[off:off+2], tg.id)
		binary.LittleEndian.PutUint16(buf[off+2:off+4], tg.typ)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], tg.count)
		binary.LittleEndian.PutUint32(buf[off+8:off+12], tg.value)
		off += 12
	}
	binary.LittleEndian.PutUint32(buf[off:off+4], 0) // no next IFD

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[int(stripOffset)+i*2:int(stripOffset)+i*2+2], uint16(s))
	}
	return buf
}

func TestDecodeGeoTIFFMinimalSingleStrip(t *testing.T) {
	data := buildMinimalGeoTIFF([]int16{-1, 2, 3, 4})

	r, err := DecodeGeoTIFF(data)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Width)
	assert.Equal(t, 2, r.Height)
	assert.Equal(t, -1.0, r.Buf.At(0))
	assert.Equal(t, 4.0, r.Buf.At(3))
}

func TestDecodeGeoTIFFRejectsBadMagic(t *testing.T) {
	_, err := DecodeGeoTIFF([]byte("not-a-tiff-file-at-all"))
	assert.Error(t, err)
}
