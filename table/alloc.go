package table

import (
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/t1meshift/ydb/codec"
	"github.com/t1meshift/ydb/page"
	"github.com/t1meshift/ydb/ydberr"
)

// allocate reserves a page slot, preferring the free list over growing the
// file, and links it onto the tail of the live list. It returns the new
// page's offset; the file position is left at that offset.
//
// spec.md's free-list branch (§4.3 "Allocation") does not itself patch the
// previous tail page's next-offset or the header's last-page offset — only
// the grow branch does. Left as written, a free-list reuse would silently
// orphan the reused page from the live list, which contradicts the
// allocation invariants in §8 (every append must remain reachable via
// next-walk) and the S4 scenario. This implementation hoists that linking
// step out of the grow-only branch so it runs for both sources — see
// DESIGN.md for the full writeup of this resolved inconsistency.
func (t *Table) allocate() (uint64, error) {
	oldLast := t.lastPageOffset

	var target uint64
	if t.lastFreePageOffset != 0 {
		target = t.lastFreePageOffset

		nextFreeBuf := make([]byte, 8)
		if _, err := t.file.ReadAt(nextFreeBuf, int64(target+pageNextOff)); err != nil {
			return 0, ydberr.Wrap(ydberr.TableDataCorrupted, "read free-list link at %d: %w", target, err)
		}
		newFree := codec.Uint64(nextFreeBuf, 0)
		t.lastFreePageOffset = newFree
		if err := t.writeUint64At(headerLastFreeOff, newFree); err != nil {
			return 0, err
		}

		hdr := make([]byte, PageHeaderSize)
		hdr[pageFlagsOff] = 0
		codec.PutUint64(hdr, pageNextOff, 0)
		codec.PutUint64(hdr, pagePrevOff, oldLast)
		codec.PutUint16(hdr, pageRowCountOff, 0)
		if _, err := t.file.WriteAt(hdr, int64(target)); err != nil {
			return 0, ydberr.Wrap(ydberr.Unknown, "reinitialise free page %d: %w", target, err)
		}
	} else {
		end, err := t.file.Seek(0, 2)
		if err != nil {
			return 0, ydberr.Wrap(ydberr.Unknown, "seek table end: %w", err)
		}
		target = uint64(end)

		if _, err := t.file.Write(make([]byte, PageSize)); err != nil {
			return 0, ydberr.Wrap(ydberr.Unknown, "grow table file: %w", err)
		}
		if err := t.writeUint64At(int(target+pagePrevOff), oldLast); err != nil {
			return 0, err
		}

		t.log.WithFields(logrus.Fields{
			"offset":   target,
			"old_last": oldLast,
			"new_size": humanize.Bytes(target + PageSize),
		}).Warn("free list empty, growing table file")
	}

	if err := t.writeUint64At(int(oldLast+pageNextOff), target); err != nil {
		return 0, err
	}
	t.lastPageOffset = target
	if err := t.writeUint64At(headerLastOff, target); err != nil {
		return 0, err
	}

	if _, err := t.file.Seek(int64(target), 0); err != nil {
		return 0, ydberr.Wrap(ydberr.Unknown, "seek to allocated page %d: %w", target, err)
	}
	return target, nil
}

func (t *Table) writeUint64At(off int, v uint64) error {
	buf := make([]byte, 8)
	codec.PutUint64(buf, 0, v)
	if _, err := t.file.WriteAt(buf, int64(off)); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "write offset field at %d: %w", off, err)
	}
	return nil
}

// Append allocates a new page at the tail of the live list, writes p's
// flags/row-count/payload into it, and installs it as the current page.
func (t *Table) Append(p *page.Page) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if p == nil {
		return ydberr.New(ydberr.PageUninitialised, "append: page is nil")
	}
	if p.PayloadSize() != PayloadSize {
		return ydberr.New(ydberr.Unknown, "append: payload size %d, want %d", p.PayloadSize(), PayloadSize)
	}
	wasTail := t.nextPageOffset == 0

	target, err := t.allocate()
	if err != nil {
		return err
	}

	if _, err := t.file.WriteAt([]byte{p.Flags()}, int64(target+pageFlagsOff)); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "write appended page flags: %w", err)
	}
	rc := make([]byte, 2)
	codec.PutUint16(rc, 0, p.RowCount())
	if _, err := t.file.WriteAt(rc, int64(target+pageRowCountOff)); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "write appended page row count: %w", err)
	}
	if _, err := t.file.WriteAt(p.Payload(), int64(target+PageHeaderSize)); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "write appended page payload: %w", err)
	}
	if err := t.file.Sync(); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "flush appended page: %w", err)
	}

	t.currPageOffset = target
	// The new tail's index: one past the old tail, else counted from the head.
	if wasTail {
		t.currentPageIndex++
	} else {
		idx := int64(0)
		link := make([]byte, 8)
		for off := t.firstPageOffset; off != target && off != 0; idx++ {
			if _, err := t.file.ReadAt(link, int64(off+pageNextOff)); err != nil {
				return ydberr.Wrap(ydberr.TableDataCorrupted, "walk to appended page: %w", err)
			}
			off = codec.Uint64(link, 0)
		}
		t.currentPageIndex = idx
	}
	return t.readCurrentPage()
}

// Replace overwrites the current page in place with p, preserving its
// next/prev offsets. Fails with ydberr.ErrPageUninitialised if p is nil and
// ydberr.ErrSamePageAddress if p is already the installed current page.
func (t *Table) Replace(p *page.Page) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if p == nil {
		return ydberr.New(ydberr.PageUninitialised, "replace: page is nil")
	}
	if p == t.currentPage {
		return ydberr.New(ydberr.SamePageAddress, "replace: page is already current")
	}
	if p.PayloadSize() != PayloadSize {
		return ydberr.New(ydberr.Unknown, "replace: payload size %d, want %d", p.PayloadSize(), PayloadSize)
	}

	if _, err := t.file.WriteAt([]byte{p.Flags()}, int64(t.currPageOffset+pageFlagsOff)); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "write replaced page flags: %w", err)
	}
	rc := make([]byte, 2)
	codec.PutUint16(rc, 0, p.RowCount())
	if _, err := t.file.WriteAt(rc, int64(t.currPageOffset+pageRowCountOff)); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "write replaced page row count: %w", err)
	}
	if _, err := t.file.WriteAt(p.Payload(), int64(t.currPageOffset+PageHeaderSize)); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "write replaced page payload: %w", err)
	}
	if err := t.file.Sync(); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "flush replaced page: %w", err)
	}

	t.currentPage = p
	return nil
}

// Delete removes the current page from the live list and splices it onto
// the free list, unless it is the table's sole page, in which case it is
// zeroed in place and the empty-table invariant is preserved.
func (t *Table) Delete() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if t.prevPageOffset == 0 && t.nextPageOffset == 0 {
		if _, err := t.file.WriteAt(make([]byte, PageHeaderSize), int64(t.currPageOffset)); err != nil {
			return ydberr.Wrap(ydberr.Unknown, "zero sole page: %w", err)
		}
		if err := t.file.Sync(); err != nil {
			return ydberr.Wrap(ydberr.Unknown, "flush sole-page delete: %w", err)
		}
		return t.readCurrentPage()
	}

	cur := t.currPageOffset

	if _, err := t.file.WriteAt([]byte{FlagDeleted}, int64(cur+pageFlagsOff)); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "mark page deleted: %w", err)
	}
	if err := t.writeUint64At(int(cur+pageNextOff), t.lastFreePageOffset); err != nil {
		return err
	}

	if t.prevPageOffset == 0 {
		if err := t.writeUint64At(headerFirstOff, t.nextPageOffset); err != nil {
			return err
		}
		t.firstPageOffset = t.nextPageOffset
	} else {
		if err := t.writeUint64At(int(t.prevPageOffset+pageNextOff), t.nextPageOffset); err != nil {
			return err
		}
	}

	if t.nextPageOffset == 0 {
		if err := t.writeUint64At(headerLastOff, t.prevPageOffset); err != nil {
			return err
		}
		t.lastPageOffset = t.prevPageOffset
	} else {
		if err := t.writeUint64At(int(t.nextPageOffset+pagePrevOff), t.prevPageOffset); err != nil {
			return err
		}
	}

	if err := t.writeUint64At(headerLastFreeOff, cur); err != nil {
		return err
	}
	t.lastFreePageOffset = cur

	if err := t.file.Sync(); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "flush delete: %w", err)
	}

	if t.nextPageOffset != 0 {
		t.currPageOffset = t.nextPageOffset
	} else {
		t.currPageOffset = t.prevPageOffset
		t.currentPageIndex--
	}
	return t.readCurrentPage()
}
