package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriter(64)
	w.U8(7)
	w.I16(-3)
	w.U32(0xdeadbeef)
	w.F32(1.5)
	w.Varint(-300)
	w.Uvarint(1 << 20)
	w.String("map.yaml")
	w.Bool(true)

	r := NewReader(w.Bytes())
	assert.Equal(t, uint8(7), r.U8())
	assert.Equal(t, int16(-3), r.I16())
	assert.Equal(t, uint32(0xdeadbeef), r.U32())
	assert.Equal(t, float32(1.5), r.F32())
	assert.Equal(t, int64(-300), r.Varint())
	assert.Equal(t, uint64(1<<20), r.Uvarint())
	assert.Equal(t, "map.yaml", r.String())
	assert.True(t, r.Bool())
	require.NoError(t, r.Err())
	assert.True(t, r.AtEnd())
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader([]byte{1, 2})
	assert.Equal(t, uint32(0), r.U32())
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)

	// После ошибки чтения возвращают нули
	assert.Equal(t, uint8(0), r.U8())
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)
}

func TestReaderTruncatedVarint(t *testing.T) {
	r := NewReader([]byte{0x80, 0x80})
	r.Varint()
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)

	long := make([]byte, 12)
	for i := range long {
		long[i] = 0xff
	}
	r = NewReader(long)
	r.Uvarint()
	assert.ErrorIs(t, r.Err(), ErrVarintOverflow)
}

func TestVarintSize(t *testing.T) {
	assert.Equal(t, 1, VarintSize(0))
	assert.Equal(t, 1, VarintSize(-64))
	assert.Equal(t, 2, VarintSize(64))
}
