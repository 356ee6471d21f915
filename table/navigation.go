package table

import "github.com/t1meshift/ydb/ydberr"

// Next moves to the next page in the live list. Fails with
// ydberr.ErrNoMorePages at the tail.
func (t *Table) Next() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if t.nextPageOffset == 0 {
		return ydberr.New(ydberr.NoMorePages, "no page after index %d", t.currentPageIndex)
	}
	t.currPageOffset = t.nextPageOffset
	t.currentPageIndex++
	return t.readCurrentPage()
}

// Prev moves to the previous page in the live list. Fails with
// ydberr.ErrNoMorePages at the head.
func (t *Table) Prev() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if t.prevPageOffset == 0 {
		return ydberr.New(ydberr.NoMorePages, "no page before index %d", t.currentPageIndex)
	}
	t.currPageOffset = t.prevPageOffset
	t.currentPageIndex--
	return t.readCurrentPage()
}

// SeekToBegin steps one page toward the head: if already at the first page
// it is a no-op, otherwise it moves to the current page's predecessor. This
// is NOT equivalent to SeekIndex(0) — see spec.md §9 design notes, which
// freezes this one-step contract deliberately.
func (t *Table) SeekToBegin() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if t.prevPageOffset == 0 {
		return nil
	}
	t.currPageOffset = t.prevPageOffset
	t.currentPageIndex--
	return t.readCurrentPage()
}

// SeekToEnd steps one page toward the tail: if already at the last page it
// is a no-op, otherwise it moves to the current page's successor.
func (t *Table) SeekToEnd() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if t.nextPageOffset == 0 {
		return nil
	}
	t.currPageOffset = t.nextPageOffset
	t.currentPageIndex++
	return t.readCurrentPage()
}

// SeekIndex moves to the page at absolute index i, counting from the head
// at index 0. On any step failure the table's cursor is restored to
// whatever page it was on before the call.
func (t *Table) SeekIndex(i int64) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if i < 0 {
		return ydberr.New(ydberr.PageOutOfRange, "seek to index %d", i)
	}

	savedPrev := t.prevPageOffset
	savedCurr := t.currPageOffset
	savedNext := t.nextPageOffset
	savedIndex := t.currentPageIndex

	restore := func() error {
		t.prevPageOffset = savedPrev
		t.currPageOffset = savedCurr
		t.nextPageOffset = savedNext
		t.currentPageIndex = savedIndex
		return t.readCurrentPage()
	}

	if i < t.currentPageIndex {
		t.prevPageOffset = 0
		t.currPageOffset = t.firstPageOffset
		t.currentPageIndex = 0
		if err := t.readCurrentPage(); err != nil {
			if rerr := restore(); rerr != nil {
				return rerr
			}
			return err
		}
	}

	for t.currentPageIndex != i {
		if err := t.Next(); err != nil {
			if rerr := restore(); rerr != nil {
				return rerr
			}
			return err
		}
	}

	return nil
}
