// Package elevbuf provides a typed, zero-copy view over a raw elevation
// buffer. It reinterprets the backing bytes according to a configured
// element type and byte order and always answers samples as float64,
// regardless of the storage type.
package elevbuf

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DataType identifies the element type backing a raster buffer.
type DataType int

const (
	Int8 DataType = iota
	Int16
	Int32
	Float32
	Float64
)

// Size returns the element size in bytes for the data type.
func (d DataType) Size() int {
	switch d {
	case Int8:
		return 1
	case Int16:
		return 2
	case Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// ByteOrder identifies the endianness of a raster buffer.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (b ByteOrder) native() binary.ByteOrder {
	if b == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Buffer is a typed, read-only view over a raw byte slice of elevation
// samples. It does not copy the backing bytes.
type Buffer struct {
	raw    []byte
	typ    DataType
	order  ByteOrder
	length int
}

// New wraps raw bytes as a Buffer of length samples. It returns an error if
// raw is too small for length elements of typ.
func New(raw []byte, typ DataType, order ByteOrder, length int) (*Buffer, error) {
	need := typ.Size() * length
	if need <= 0 {
		return nil, fmt.Errorf("elevbuf: invalid length %d for type %v", length, typ)
	}
	if len(raw) < need {
		return nil, fmt.Errorf("elevbuf: buffer too small: have %d bytes, need %d", len(raw), need)
	}
	return &Buffer{raw: raw, typ: typ, order: order, length: length}, nil
}

// Len returns the number of samples in the buffer.
func (b *Buffer) Len() int { return b.length }

// At returns the sample at index i as a float64, regardless of the
// underlying storage type. It panics if i is out of range, matching slice
// semantics.
func (b *Buffer) At(i int) float64 {
	if i < 0 || i >= b.length {
		panic(fmt.Sprintf("elevbuf: index %d out of range [0,%d)", i, b.length))
	}
	sz := b.typ.Size()
	off := i * sz
	bo := b.order.native()

	switch b.typ {
	case Int8:
		return float64(int8(b.raw[off]))
	case Int16:
		return float64(int16(bo.Uint16(b.raw[off : off+sz])))
	case Int32:
		return float64(int32(bo.Uint32(b.raw[off : off+sz])))
	case Float32:
		return float64(math.Float32frombits(bo.Uint32(b.raw[off : off+sz])))
	case Float64:
		return math.Float64frombits(bo.Uint64(b.raw[off : off+sz]))
	default:
		panic("elevbuf: unknown data type")
	}
}

// MinMax scans the buffer once, substituting replacement for any sample
// equal to signal, and returns the resulting (min, max).
func (b *Buffer) MinMax(signal, replacement float64) (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for i := 0; i < b.length; i++ {
		v := b.At(i)
		if v == signal {
			v = replacement
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}
