package elevbuf

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferAtInt16LittleEndian(t *testing.T) {
	raw := make([]byte, 4)
	binary.LittleEndian.PutUint16(raw[0:2], uint16(int16(-5)))
	binary.LittleEndian.PutUint16(raw[2:4], uint16(int16(100)))

	buf, err := New(raw, Int16, LittleEndian, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Len())
	assert.Equal(t, -5.0, buf.At(0))
	assert.Equal(t, 100.0, buf.At(1))
}

func TestBufferAtFloat32BigEndian(t *testing.T) {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint32(raw, math.Float32bits(3.5))

	buf, err := New(raw, Float32, BigEndian, 1)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, buf.At(0), 1e-6)
}

func TestNewRejectsTooSmallBuffer(t *testing.T) {
	_, err := New([]byte{0, 0}, Int32, LittleEndian, 1)
	assert.Error(t, err)
}

func TestAtPanicsOutOfRange(t *testing.T) {
	buf, err := New([]byte{0, 0}, Int16, LittleEndian, 1)
	require.NoError(t, err)
	assert.Panics(t, func() { buf.At(1) })
}

func TestMinMaxSubstitutesSignal(t *testing.T) {
	raw := make([]byte, 6)
	binary.LittleEndian.PutUint16(raw[0:2], uint16(int16(-32768)))
	binary.LittleEndian.PutUint16(raw[2:4], uint16(int16(10)))
	binary.LittleEndian.PutUint16(raw[4:6], uint16(int16(20)))

	buf, err := New(raw, Int16, LittleEndian, 3)
	require.NoError(t, err)

	min, max := buf.MinMax(-32768, 0)
	assert.Equal(t, 0.0, min) // replacement (0) is lower than 10/20
	assert.Equal(t, 20.0, max)
}
