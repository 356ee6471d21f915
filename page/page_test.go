package page

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/t1meshift/ydb/ydberr"
)

func TestAllocateZeroedDefaults(t *testing.T) {
	p := Allocate(128)
	require.Equal(t, 128, p.PayloadSize())
	require.Equal(t, uint8(0), p.Flags())
	require.Equal(t, uint16(0), p.RowCount())
	require.Equal(t, 0, p.Tell())
	for _, b := range p.Payload() {
		require.Zero(t, b)
	}
}

func TestSeekOutOfRange(t *testing.T) {
	p := Allocate(16)
	require.NoError(t, p.Seek(15))
	err := p.Seek(16)
	require.True(t, errors.Is(err, ydberr.ErrPageOutOfRange))
}

func TestReadWriteRoundTrip(t *testing.T) {
	p := Allocate(16)
	require.NoError(t, p.Write([]byte("hello"), 5))
	require.Equal(t, 5, p.Tell())

	require.NoError(t, p.Seek(0))
	dst := make([]byte, 5)
	require.NoError(t, p.Read(dst, 5))
	require.Equal(t, "hello", string(dst))
	require.Equal(t, 5, p.Tell())
}

func TestReadZeroSize(t *testing.T) {
	p := Allocate(16)
	err := p.Read(make([]byte, 1), 0)
	require.True(t, errors.Is(err, ydberr.ErrZeroSizeRW))
}

func TestReadNilDestination(t *testing.T) {
	p := Allocate(16)
	err := p.Read(nil, 1)
	require.True(t, errors.Is(err, ydberr.ErrWriteToNil))
}

func TestReadPastPayloadUses64BitArithmetic(t *testing.T) {
	p := Allocate(16)
	require.NoError(t, p.Seek(10))
	err := p.Read(make([]byte, 10), 10)
	require.True(t, errors.Is(err, ydberr.ErrPageOutOfRange))
}

func TestWriteAtEndFailsExhausted(t *testing.T) {
	p := Allocate(4)
	require.NoError(t, p.Write([]byte("abcd"), 4))
	err := p.Write([]byte("e"), 1)
	require.True(t, errors.Is(err, ydberr.ErrPageExhausted))
}

func TestWriteOverflowFailsOutOfRange(t *testing.T) {
	p := Allocate(4)
	err := p.Write([]byte("abcde"), 5)
	require.True(t, errors.Is(err, ydberr.ErrPageOutOfRange))
}

func TestClonesAreIndependent(t *testing.T) {
	p := Allocate(4)
	require.NoError(t, p.Write([]byte{1, 2, 3, 4}, 4))
	p.SetFlags(0x01)
	p.SetRowCount(7)

	clone := p.Clone()
	clone.Payload()[0] = 0xFF
	clone.SetRowCount(9)

	require.Equal(t, uint8(1), p.Payload()[0])
	require.Equal(t, uint16(7), p.RowCount())
	require.Equal(t, uint16(9), clone.RowCount())
	require.Equal(t, uint8(0x01), clone.Flags())
}
