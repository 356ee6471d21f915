// Package table implements the table file: the on-disk container of
// fixed-size pages chained into a doubly-linked list, its header, free-list
// allocator, and the current-page cursor. It generalises the teacher's
// internal/storage/pager.Pager/Superblock pair (SimonWaldherr/tinySQL) to
// the byte-for-byte format described in table_page.c/ydb.c of the original
// engine this module reimplements.
package table

import (
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/t1meshift/ydb/codec"
	"github.com/t1meshift/ydb/page"
	"github.com/t1meshift/ydb/ydberr"
)

// On-disk layout constants — see spec §6 "Table file format v1".
const (
	Signature      = "TBL!" // clean shutdown
	signatureDirty = '?'    // 4th byte when a write was in flight at process exit
	signaturePfx   = "TBL"

	headerSigOff      = 0
	headerMajorOff    = 4
	headerMinorOff    = 5
	headerFirstOff    = 6
	headerLastOff     = 14
	headerLastFreeOff = 22
	HeaderSize        = 30

	// PageSize is the fixed on-disk size of every page, header included.
	PageSize = 65536

	pageFlagsOff    = 0
	pageNextOff     = 1
	pagePrevOff     = 9
	pageRowCountOff = 17
	// PageHeaderSize is the size of the per-page on-disk header.
	PageHeaderSize = 19
	// PayloadSize is the number of payload bytes available in every page.
	PayloadSize = PageSize - PageHeaderSize

	// FlagDeleted marks a page as free-listed; its next-offset field is
	// then reused as the free-list forward link.
	FlagDeleted uint8 = 0x01

	majorVersion uint8 = 1
	minorVersion uint8 = 0
)

// Options configures Create/Open. The zero value is valid and uses
// logrus.StandardLogger() for diagnostics.
type Options struct {
	// Logger receives structured diagnostics: an Info summary on open (path,
	// version, first/last page offsets, file size) and a Warn each time an
	// append grows the file because the free list is empty. Page reads,
	// Replace and Delete never log. Defaults to logrus.StandardLogger().
	Logger *logrus.Logger
}

func (o Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

// Table owns the table file handle, its header fields, and the current-page
// cursor (offset + index + neighbour offsets).
type Table struct {
	file      *os.File
	path      string
	log       *logrus.Logger
	wasOpened bool

	majorVersion uint8
	minorVersion uint8

	firstPageOffset    uint64
	lastPageOffset     uint64
	lastFreePageOffset uint64

	prevPageOffset   uint64
	currPageOffset   uint64
	nextPageOffset   uint64
	currentPageIndex int64
	currentPage      *page.Page
}

// Create creates a new table file at path: a header plus a single zeroed
// page, then loads it. Fails with ydberr.ErrTableExist if path already
// exists.
func Create(path string, opts Options) (*Table, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ydberr.New(ydberr.TableExist, "create table %q: already exists", path)
	} else if !os.IsNotExist(err) {
		return nil, ydberr.Wrap(ydberr.Unknown, "stat %q: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, ydberr.Wrap(ydberr.Unknown, "create table %q: %w", path, err)
	}

	hdr := make([]byte, HeaderSize)
	copy(hdr[headerSigOff:], Signature)
	hdr[headerMajorOff] = majorVersion
	hdr[headerMinorOff] = minorVersion
	codec.PutUint64(hdr, headerFirstOff, HeaderSize)
	codec.PutUint64(hdr, headerLastOff, HeaderSize)
	codec.PutUint64(hdr, headerLastFreeOff, 0)

	if _, err := f.Write(hdr); err != nil {
		f.Close()
		return nil, ydberr.Wrap(ydberr.Unknown, "write table header %q: %w", path, err)
	}
	if _, err := f.Write(make([]byte, PageSize)); err != nil {
		f.Close()
		return nil, ydberr.Wrap(ydberr.Unknown, "write seed page %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, ydberr.Wrap(ydberr.Unknown, "close table %q: %w", path, err)
	}

	return Open(path, opts)
}

// Open opens an existing table file, validates its header, and loads the
// first page as current. Fails with ydberr.ErrTableNotExist if path is
// absent, ydberr.ErrTableDataCorrupted on a bad signature or a dirty
// last-unload marker, and ydberr.ErrTableDataVersionMismatch on an
// unsupported major version.
func Open(path string, opts Options) (*Table, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ydberr.New(ydberr.TableNotExist, "open table %q: does not exist", path)
		}
		return nil, ydberr.Wrap(ydberr.Unknown, "stat %q: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, ydberr.Wrap(ydberr.Unknown, "open table %q: %w", path, err)
	}

	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return nil, ydberr.Wrap(ydberr.TableDataCorrupted, "read table header %q: %w", path, err)
	}

	if string(hdr[headerSigOff:headerSigOff+3]) != signaturePfx {
		f.Close()
		return nil, ydberr.New(ydberr.TableDataCorrupted, "table %q: bad signature", path)
	}
	if hdr[headerSigOff+3] == signatureDirty {
		f.Close()
		return nil, ydberr.New(ydberr.TableDataCorrupted, "table %q: unclean last shutdown, consult the journal", path)
	}

	major := hdr[headerMajorOff]
	minor := hdr[headerMinorOff]
	if major != majorVersion {
		f.Close()
		return nil, ydberr.New(ydberr.TableDataVersionMismatch, "table %q: version %d.%d unsupported", path, major, minor)
	}

	t := &Table{
		file:               f,
		path:               path,
		log:                opts.logger(),
		wasOpened:          true,
		majorVersion:       major,
		minorVersion:       minor,
		firstPageOffset:    codec.Uint64(hdr, headerFirstOff),
		lastPageOffset:     codec.Uint64(hdr, headerLastOff),
		lastFreePageOffset: codec.Uint64(hdr, headerLastFreeOff),
	}

	if err := t.markDirty(); err != nil {
		f.Close()
		return nil, err
	}

	t.currPageOffset = t.firstPageOffset
	if err := t.readCurrentPage(); err != nil {
		f.Close()
		return nil, err
	}

	fileSize := uint64(0)
	if fi, err := f.Stat(); err == nil {
		fileSize = uint64(fi.Size())
	}
	t.log.WithFields(logrus.Fields{
		"path":         path,
		"version":      []uint8{major, minor},
		"first_offset": t.firstPageOffset,
		"last_offset":  t.lastPageOffset,
		"size":         humanize.Bytes(fileSize),
	}).Info("table opened")

	return t, nil
}

// markDirty flips the on-disk signature's 4th byte to '?', the marker that
// tells the next Open a write was in flight when this session ends
// abnormally (spec §4.3 step 3). Close() flips it back to '!'.
func (t *Table) markDirty() error {
	if _, err := t.file.WriteAt([]byte{signatureDirty}, headerSigOff+3); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "mark table dirty: %w", err)
	}
	return t.file.Sync()
}

func (t *Table) markClean() error {
	if _, err := t.file.WriteAt([]byte{'!'}, headerSigOff+3); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "mark table clean: %w", err)
	}
	return t.file.Sync()
}

// readCurrentPage seeks to currPageOffset, reads a full page, decodes its
// header, and installs it as the current page. Both neighbour offsets are
// recorded from the on-disk header so navigation always reflects the
// persisted linked-list state (spec §4.3 "Read current page").
func (t *Table) readCurrentPage() error {
	buf := make([]byte, PageSize)
	if _, err := t.file.ReadAt(buf, int64(t.currPageOffset)); err != nil {
		return ydberr.Wrap(ydberr.TableDataCorrupted, "read page at %d: %w", t.currPageOffset, err)
	}

	flags := buf[pageFlagsOff]
	next := codec.Uint64(buf, pageNextOff)
	prev := codec.Uint64(buf, pagePrevOff)
	rowCount := codec.Uint16(buf, pageRowCountOff)

	payload := make([]byte, PayloadSize)
	copy(payload, buf[PageHeaderSize:])

	t.currentPage = page.Wrap(payload, flags, rowCount)
	t.prevPageOffset = prev
	t.nextPageOffset = next
	return nil
}

// CurrentPage returns the engine's current page.
func (t *Table) CurrentPage() *page.Page { return t.currentPage }

// Tell returns the current page's index.
func (t *Table) Tell() int64 { return t.currentPageIndex }

// Version returns the table's major and minor format version.
func (t *Table) Version() (uint8, uint8) { return t.majorVersion, t.minorVersion }

// checkOpen guards every mutating/navigating method against the pre-condition
// violations the original engine checks with THROW_IF_NULL(instance->in_use,
// NOT_IN_USE) at the top of nearly every exported ydb.c function: calling a
// method on a Table value that was never opened, or on one already Close'd.
func (t *Table) checkOpen() error {
	if !t.wasOpened {
		return ydberr.New(ydberr.EngineUninitialised, "table: not created or opened")
	}
	if t.file == nil {
		return ydberr.New(ydberr.EngineIdle, "table: already closed")
	}
	return nil
}

// Close performs a clean unload: marks the signature clean, zeros the
// in-memory header fields, releases the current page, and closes the file
// handle.
func (t *Table) Close() error {
	if t.file == nil {
		return nil
	}
	if err := t.markClean(); err != nil {
		_ = t.file.Close()
		t.file = nil
		return err
	}

	t.majorVersion = 0
	t.minorVersion = 0
	t.firstPageOffset = 0
	t.lastPageOffset = 0
	t.lastFreePageOffset = 0
	t.prevPageOffset = 0
	t.currPageOffset = 0
	t.nextPageOffset = 0
	t.currentPageIndex = 0
	t.currentPage = nil
	t.path = ""

	f := t.file
	t.file = nil
	if err := f.Close(); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "close table: %w", err)
	}
	return nil
}
