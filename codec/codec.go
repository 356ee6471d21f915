// Package codec implements little-endian fixed-width integer encoding for
// the on-disk formats used throughout ydb. Every multi-byte field the table
// file and journal file persist passes through these helpers so that the
// byte layout never depends on host endianness.
package codec

import "encoding/binary"

// PutUint16 writes v at buf[off:off+2] in little-endian order.
func PutUint16(buf []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(buf[off:off+2], v)
}

// Uint16 reads a little-endian uint16 from buf[off:off+2].
func Uint16(buf []byte, off int) uint16 {
	return binary.LittleEndian.Uint16(buf[off : off+2])
}

// PutUint32 writes v at buf[off:off+4] in little-endian order.
func PutUint32(buf []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], v)
}

// Uint32 reads a little-endian uint32 from buf[off:off+4].
func Uint32(buf []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(buf[off : off+4])
}

// PutUint64 writes v at buf[off:off+8] in little-endian order.
func PutUint64(buf []byte, off int, v uint64) {
	binary.LittleEndian.PutUint64(buf[off:off+8], v)
}

// Uint64 reads a little-endian uint64 from buf[off:off+8].
func Uint64(buf []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(buf[off : off+8])
}

// PutInt64 writes a signed 64-bit value at buf[off:off+8] in little-endian
// order (two's complement, same bit pattern as the unsigned encoding).
func PutInt64(buf []byte, off int, v int64) {
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(v))
}

// Int64 reads a signed little-endian int64 from buf[off:off+8].
func Int64(buf []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(buf[off : off+8]))
}
