// Package page implements the in-memory Page object: a page's flags and
// row-count fields plus a fixed-size payload buffer with a seekable cursor
// for byte-level read/write, as described in table_page.h/table_page.c of
// the original engine this module generalises.
package page

import (
	"github.com/t1meshift/ydb/ydberr"
)

// Page is the in-memory representation of one table page's payload, flags,
// and row count. It carries no knowledge of its on-disk offset or its
// neighbours in the page list — that bookkeeping belongs to table.Table.
type Page struct {
	flags    uint8
	rowCount uint16
	payload  []byte
	cursor   int
}

// Allocate returns a new Page with a zeroed payload of payloadSize bytes,
// zero flags, zero row count, and the cursor at 0.
func Allocate(payloadSize int) *Page {
	return &Page{payload: make([]byte, payloadSize)}
}

// Wrap builds a Page around an existing payload buffer (taking ownership of
// it), used when a page is read back from the table file. The buffer's
// length is the page's payload size.
func Wrap(payload []byte, flags uint8, rowCount uint16) *Page {
	return &Page{payload: payload, flags: flags, rowCount: rowCount}
}

// PayloadSize returns the fixed payload capacity of the page.
func (p *Page) PayloadSize() int { return len(p.payload) }

// Payload returns the underlying payload buffer. Callers that mutate it
// directly bypass the cursor — prefer Read/Write for row placement.
func (p *Page) Payload() []byte { return p.payload }

// Flags returns the page's flag byte.
func (p *Page) Flags() uint8 { return p.flags }

// SetFlags sets the page's flag byte.
func (p *Page) SetFlags(f uint8) { p.flags = f }

// RowCount returns the page's row-count field.
func (p *Page) RowCount() uint16 { return p.rowCount }

// SetRowCount sets the page's row-count field.
func (p *Page) SetRowCount(n uint16) { p.rowCount = n }

// Seek moves the cursor to an absolute byte offset within the payload.
func (p *Page) Seek(pos int) error {
	if pos < 0 || pos >= len(p.payload) {
		return ydberr.New(ydberr.PageOutOfRange, "seek to %d: payload size is %d", pos, len(p.payload))
	}
	p.cursor = pos
	return nil
}

// Tell returns the cursor's current byte offset.
func (p *Page) Tell() int { return p.cursor }

// Read copies n bytes from the payload at the cursor into dst and advances
// the cursor by n.
func (p *Page) Read(dst []byte, n int) error {
	if n == 0 {
		return ydberr.New(ydberr.ZeroSizeRW, "read of zero bytes")
	}
	if dst == nil {
		return ydberr.New(ydberr.WriteToNil, "read destination is nil")
	}
	// 64-bit arithmetic avoids the 16-bit cursor/payload-size overflow the
	// original C implementation is vulnerable to on large reads.
	if int64(p.cursor)+int64(n) > int64(len(p.payload)) {
		return ydberr.New(ydberr.PageOutOfRange, "read %d bytes at %d: payload size is %d", n, p.cursor, len(p.payload))
	}
	copy(dst[:n], p.payload[p.cursor:p.cursor+n])
	p.cursor += n
	return nil
}

// Write copies n bytes from src into the payload at the cursor and advances
// the cursor by n.
func (p *Page) Write(src []byte, n int) error {
	if n == 0 {
		return ydberr.New(ydberr.ZeroSizeRW, "write of zero bytes")
	}
	if src == nil {
		return ydberr.New(ydberr.WriteToNil, "write source is nil")
	}
	if p.cursor >= len(p.payload) {
		return ydberr.New(ydberr.PageExhausted, "write at %d: payload size is %d", p.cursor, len(p.payload))
	}
	if int64(p.cursor)+int64(n) > int64(len(p.payload)) {
		return ydberr.New(ydberr.PageOutOfRange, "write %d bytes at %d: payload size is %d", n, p.cursor, len(p.payload))
	}
	copy(p.payload[p.cursor:p.cursor+n], src[:n])
	p.cursor += n
	return nil
}

// Clone returns a deep copy of the page, including its payload buffer.
func (p *Page) Clone() *Page {
	cp := &Page{
		flags:    p.flags,
		rowCount: p.rowCount,
		payload:  make([]byte, len(p.payload)),
		cursor:   p.cursor,
	}
	copy(cp.payload, p.payload)
	return cp
}
