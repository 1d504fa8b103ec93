package borsh

import (
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLayout(t *testing.T) {
	w := NewWriter()
	w.WriteU8(7)
	w.WriteBool(true)
	w.WriteU32(0x01020304)
	w.WriteU64(1756385182)
	w.WriteBytes([]byte{0xaa, 0xbb})

	expected := []byte{
		0x07,
		0x01,
		0x04, 0x03, 0x02, 0x01,
		0x9e, 0x4f, 0xb0, 0x68, 0x00, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00, 0xaa, 0xbb,
	}
	assert.Equal(t, expected, w.Bytes())
}

func TestWriterMatchesStructEncoding(t *testing.T) {
	type layout struct {
		Salt     [32]byte
		Source   uint32
		Amount   uint64
		Deadline int64
		Data     []byte
	}
	v := layout{Salt: [32]byte{1, 2, 3}, Source: 8453, Amount: 70000, Deadline: 1756385182, Data: []byte{3, 1, 2}}
	expected, err := bin.MarshalBorsh(&v)
	require.NoError(t, err)

	w := NewWriter()
	w.WriteFixed(v.Salt[:])
	w.WriteU32(v.Source)
	w.WriteU64(v.Amount)
	w.WriteI64(v.Deadline)
	w.WriteBytes(v.Data)
	require.NoError(t, w.Err())
	assert.Equal(t, expected, w.Bytes())
}

func TestReaderRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU64(42)
	w.WriteFixed(make([]byte, 32))
	w.WriteBytes([]byte("hello"))
	w.WriteBool(false)

	r := NewReader(w.Bytes())
	assert.Equal(t, uint64(42), r.ReadU64())
	assert.Len(t, r.ReadFixed(32), 32)
	assert.Equal(t, []byte("hello"), r.ReadBytes())
	assert.False(t, r.ReadBool())
	require.NoError(t, r.Finish())
}

func TestReaderErrors(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02})
	_ = r.ReadU64()
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)
	// sticky error
	assert.Equal(t, uint8(0), r.ReadU8())
	assert.Error(t, r.Finish())

	r = NewReader([]byte{0xff, 0xff, 0x00, 0x00, 0x01})
	_ = r.ReadBytes()
	assert.ErrorIs(t, r.Err(), ErrShortBuffer)

	r = NewReader([]byte{0x02})
	_ = r.ReadBool()
	assert.Error(t, r.Err())

	r = NewReader([]byte{0x01, 0x00})
	_ = r.ReadU8()
	assert.Error(t, r.Finish())
}
