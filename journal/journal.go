package journal

import (
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/t1meshift/ydb/codec"
	"github.com/t1meshift/ydb/ydberr"
)

// On-disk layout constants — see spec §6 "Journal file format".
const (
	Signature = "JRNL"

	headerSigOff   = 0
	headerFirstOff = 4
	headerLastOff  = 12
	// HeaderSize is the size of the journal file's header.
	HeaderSize = 20

	recordPrevOff      = 0
	recordNextOff      = 8
	recordTimestampOff = 16
	recordFlagsOff     = 24
	// recordOpsOff is where the first operation begins within a record.
	recordOpsOff = 25

	opCodeSize = 1
	opSizeSize = 4
	opHeadSize = opCodeSize + opSizeSize
)

// Options configures Create/Open. The zero value is valid and uses
// logrus.StandardLogger() for diagnostics.
type Options struct {
	// Logger receives structured diagnostics for recovery-relevant events
	// (tail truncation on open). Defaults to logrus.StandardLogger().
	Logger *logrus.Logger
}

func (o Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

// Journal owns the journal file handle, its header fields, and the
// current-transaction cursor (offset + neighbour offsets + loaded value).
type Journal struct {
	file      *os.File
	path      string
	log       *logrus.Logger
	wasOpened bool

	firstTxOffset uint64
	lastTxOffset  uint64

	prevTxOffset    uint64
	currTxOffset    uint64
	nextTxOffset    uint64
	currentTx       *Transaction
	currentTxLoaded bool
}

// Create creates a new journal file at path: the header with both head
// offsets zero, then loads it. Fails with ydberr.ErrJournalExist if path
// already exists.
func Create(path string, opts Options) (*Journal, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, ydberr.New(ydberr.JournalExist, "create journal %q: already exists", path)
	} else if !os.IsNotExist(err) {
		return nil, ydberr.Wrap(ydberr.Unknown, "stat %q: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, ydberr.Wrap(ydberr.Unknown, "create journal %q: %w", path, err)
	}

	hdr := make([]byte, HeaderSize)
	copy(hdr[headerSigOff:], Signature)
	if _, err := f.Write(hdr); err != nil {
		f.Close()
		return nil, ydberr.Wrap(ydberr.Unknown, "write journal header %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, ydberr.Wrap(ydberr.Unknown, "close journal %q: %w", path, err)
	}

	return Open(path, opts)
}

// Open opens an existing journal file, validates its signature, and runs
// the consistency check, truncating a torn tail if one is found. Fails with
// ydberr.ErrJournalNotExist if path is absent and ydberr.ErrJournalCorrupted
// on a bad signature.
func Open(path string, opts Options) (*Journal, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ydberr.New(ydberr.JournalNotExist, "open journal %q: does not exist", path)
		}
		return nil, ydberr.Wrap(ydberr.Unknown, "stat %q: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, ydberr.Wrap(ydberr.Unknown, "open journal %q: %w", path, err)
	}

	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return nil, ydberr.Wrap(ydberr.JournalCorrupted, "read journal header %q: %w", path, err)
	}
	if string(hdr[headerSigOff:headerSigOff+4]) != Signature {
		f.Close()
		return nil, ydberr.New(ydberr.JournalCorrupted, "journal %q: bad signature", path)
	}

	j := &Journal{
		file:          f,
		path:          path,
		log:           opts.logger(),
		wasOpened:     true,
		firstTxOffset: codec.Uint64(hdr, headerFirstOff),
		lastTxOffset:  codec.Uint64(hdr, headerLastOff),
	}
	j.currTxOffset = j.firstTxOffset

	if err := j.CheckConsistency(); err != nil {
		f.Close()
		return nil, err
	}

	return j, nil
}

func (j *Journal) writeUint64At(off int64, v uint64) error {
	buf := make([]byte, 8)
	codec.PutUint64(buf, 0, v)
	if _, err := j.file.WriteAt(buf, off); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "write journal field at %d: %w", off, err)
	}
	return nil
}

func (j *Journal) readUint64At(off int64) (uint64, error) {
	buf := make([]byte, 8)
	if _, err := j.file.ReadAt(buf, off); err != nil {
		return 0, ydberr.Wrap(ydberr.JournalCorrupted, "read journal field at %d: %w", off, err)
	}
	return codec.Uint64(buf, 0), nil
}

// checkOpen guards every mutating/navigating method against the pre-condition
// violations the original engine checks with THROW_IF_NULL(instance->in_use,
// NOT_IN_USE) at the top of nearly every exported journal.c function: calling
// a method on a Journal value that was never opened, or on one already
// Close'd.
func (j *Journal) checkOpen() error {
	if !j.wasOpened {
		return ydberr.New(ydberr.JournalUninitialised, "journal: not created or opened")
	}
	if j.file == nil {
		return ydberr.New(ydberr.JournalIdle, "journal: already closed")
	}
	return nil
}

// CheckConsistency implements spec §4.5 "Consistency check and tail
// truncation": it scans the record at lastTxOffset for a well-formed tail
// (next-offset = 0, ending with a complete sentinel), and truncates back to
// the last known-good record if it finds a torn write instead. Open runs it
// automatically; callers may re-run it on an already-open journal the way
// the original's ydb_journal_file_check_consistency is called standalone.
func (j *Journal) CheckConsistency() error {
	if err := j.checkOpen(); err != nil {
		return err
	}
	if j.lastTxOffset == 0 {
		return nil
	}

	prev, err := j.readUint64At(int64(j.lastTxOffset) + recordPrevOff)
	if err != nil {
		return ydberr.New(ydberr.JournalInconsistent, "tail record header at %d unreadable: %v", j.lastTxOffset, err)
	}
	next, err := j.readUint64At(int64(j.lastTxOffset) + recordNextOff)
	if err != nil {
		return j.truncateToPredecessor(prev)
	}

	endOffset, ok := j.scanOpsToComplete(int64(j.lastTxOffset) + recordOpsOff)
	if ok && next == 0 {
		_ = endOffset
		return nil
	}

	return j.truncateToPredecessor(prev)
}

// scanOpsToComplete walks the operation list starting at off, returning the
// byte offset one past the complete sentinel and true if one was found
// before the file ended or an I/O error occurred.
func (j *Journal) scanOpsToComplete(off int64) (int64, bool) {
	for {
		head := make([]byte, opHeadSize)
		n, err := j.file.ReadAt(head, off)
		if n < opHeadSize || err != nil {
			return off, false
		}
		code := Opcode(head[0])
		size := codec.Uint32(head, opCodeSize)
		off += int64(opHeadSize) + int64(size)
		if code == opComplete {
			return off, true
		}
		if size > 0 {
			if fi, statErr := j.file.Stat(); statErr == nil && off > fi.Size() {
				return off, false
			}
		}
	}
}

// truncateToPredecessor repairs a torn tail: it rewires the predecessor (or
// resets the header if the tail was the journal's only record) and
// truncates the file to discard everything past the last good record.
func (j *Journal) truncateToPredecessor(prevOfTail uint64) error {
	if prevOfTail == 0 {
		j.firstTxOffset = 0
		j.lastTxOffset = 0
		if err := j.writeUint64At(headerFirstOff, 0); err != nil {
			return err
		}
		if err := j.writeUint64At(headerLastOff, 0); err != nil {
			return err
		}
		if err := j.file.Truncate(HeaderSize); err != nil {
			return ydberr.Wrap(ydberr.Unknown, "truncate journal to header: %w", err)
		}
		j.log.WithField("path", j.path).Info("journal tail truncated: last record discarded")
		return j.file.Sync()
	}

	if err := j.writeUint64At(int64(prevOfTail)+recordNextOff, 0); err != nil {
		return err
	}
	j.lastTxOffset = prevOfTail
	if err := j.writeUint64At(headerLastOff, prevOfTail); err != nil {
		return err
	}

	end, ok := j.scanOpsToComplete(int64(prevOfTail) + recordOpsOff)
	if !ok {
		return ydberr.New(ydberr.JournalInconsistent, "predecessor record at %d is itself malformed", prevOfTail)
	}
	if err := j.file.Truncate(end); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "truncate journal tail: %w", err)
	}

	j.log.WithFields(logrus.Fields{
		"path":        j.path,
		"kept_offset": prevOfTail,
		"new_size":    humanize.Bytes(uint64(end)),
	}).Info("journal tail truncated: torn record discarded")
	return j.file.Sync()
}

// readTransactionAt loads the record at off into memory, discarding the
// trailing complete sentinel from the op list, and returns it along with
// its prev/next offsets.
func (j *Journal) readTransactionAt(off uint64) (*Transaction, uint64, uint64, error) {
	head := make([]byte, recordOpsOff)
	if _, err := j.file.ReadAt(head, int64(off)); err != nil {
		return nil, 0, 0, ydberr.Wrap(ydberr.JournalCorrupted, "read transaction at %d: %w", off, err)
	}

	prev := codec.Uint64(head, recordPrevOff)
	next := codec.Uint64(head, recordNextOff)
	ts := codec.Int64(head, recordTimestampOff)
	flags := head[recordFlagsOff]

	tx := NewTransaction()
	tx.SetTimestamp(ts)
	tx.SetFlags(flags)

	pos := int64(off) + recordOpsOff
	for {
		opHead := make([]byte, opHeadSize)
		if _, err := j.file.ReadAt(opHead, pos); err != nil {
			return nil, 0, 0, ydberr.Wrap(ydberr.JournalCorrupted, "read op header at %d: %w", pos, err)
		}
		code := Opcode(opHead[0])
		size := codec.Uint32(opHead, opCodeSize)
		pos += int64(opHeadSize)

		if code == opComplete {
			break
		}

		data := make([]byte, size)
		if size > 0 {
			if _, err := j.file.ReadAt(data, pos); err != nil {
				return nil, 0, 0, ydberr.Wrap(ydberr.JournalCorrupted, "read op data at %d: %w", pos, err)
			}
		}
		pos += int64(size)
		tx.PushOp(Op{Code: code, Data: data})
	}

	return tx, prev, next, nil
}

func (j *Journal) loadAt(off uint64) error {
	tx, prev, next, err := j.readTransactionAt(off)
	if err != nil {
		return err
	}
	j.currTxOffset = off
	j.prevTxOffset = prev
	j.nextTxOffset = next
	j.currentTx = tx
	j.currentTxLoaded = true
	return nil
}

// SeekToBegin loads the first transaction. Fails with ydberr.ErrJournalEmpty
// if the journal holds no transactions.
func (j *Journal) SeekToBegin() error {
	if err := j.checkOpen(); err != nil {
		return err
	}
	if j.firstTxOffset == 0 {
		return ydberr.New(ydberr.JournalEmpty, "seek-to-begin: journal is empty")
	}
	return j.loadAt(j.firstTxOffset)
}

// SeekToEnd loads the last transaction. Fails with ydberr.ErrJournalEmpty if
// the journal holds no transactions.
func (j *Journal) SeekToEnd() error {
	if err := j.checkOpen(); err != nil {
		return err
	}
	if j.lastTxOffset == 0 {
		return ydberr.New(ydberr.JournalEmpty, "seek-to-end: journal is empty")
	}
	return j.loadAt(j.lastTxOffset)
}

// Next loads the transaction following the current one. Fails with
// ydberr.ErrNoMoreTransactions at the tail.
func (j *Journal) Next() error {
	if err := j.checkOpen(); err != nil {
		return err
	}
	if j.nextTxOffset == 0 {
		return ydberr.New(ydberr.NoMoreTransactions, "no transaction after offset %d", j.currTxOffset)
	}
	return j.loadAt(j.nextTxOffset)
}

// Prev loads the transaction preceding the current one. Fails with
// ydberr.ErrNoMoreTransactions at the head.
func (j *Journal) Prev() error {
	if err := j.checkOpen(); err != nil {
		return err
	}
	if j.prevTxOffset == 0 {
		return ydberr.New(ydberr.NoMoreTransactions, "no transaction before offset %d", j.currTxOffset)
	}
	return j.loadAt(j.prevTxOffset)
}

// Current returns a borrowed reference to the last-read transaction, or nil
// if none has been loaded yet.
func (j *Journal) Current() *Transaction {
	if !j.currentTxLoaded {
		return nil
	}
	return j.currentTx
}

// Append deep-clones tx and writes it as a new record at the end of the
// file, running the three fsync checkpoints described in spec §4.5
// "Append transaction". The freshly written record becomes current.
func (j *Journal) Append(tx *Transaction) error {
	if err := j.checkOpen(); err != nil {
		return err
	}
	clone := tx.Clone()

	end, err := j.file.Seek(0, io.SeekEnd)
	if err != nil {
		return ydberr.Wrap(ydberr.Unknown, "seek journal end: %w", err)
	}
	target := uint64(end)
	oldLast := j.lastTxOffset

	head := make([]byte, recordOpsOff)
	codec.PutUint64(head, recordPrevOff, oldLast)
	codec.PutUint64(head, recordNextOff, 0)
	codec.PutInt64(head, recordTimestampOff, clone.Timestamp())
	head[recordFlagsOff] = clone.Flags()
	if _, err := j.file.Write(head); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "write transaction header: %w", err)
	}

	// Checkpoint A: the record is discoverable via the header even if its
	// op list is later found torn.
	if err := j.writeUint64At(headerLastOff, target); err != nil {
		return err
	}
	if err := j.file.Sync(); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "fsync checkpoint A: %w", err)
	}
	j.lastTxOffset = target

	// Checkpoint B: the record is linked into the list from its
	// predecessor (or becomes the new first record).
	if oldLast == 0 {
		if err := j.writeUint64At(headerFirstOff, target); err != nil {
			return err
		}
		j.firstTxOffset = target
	} else {
		if err := j.writeUint64At(int64(oldLast)+recordNextOff, target); err != nil {
			return err
		}
	}
	if err := j.file.Sync(); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "fsync checkpoint B: %w", err)
	}

	// Checkpoint C: the operation list, terminated by the complete
	// sentinel, makes the record whole.
	for i := 0; i < clone.OpsCount(); i++ {
		op := clone.OpAt(i)
		if err := j.writeOp(op.Code, op.Data); err != nil {
			return err
		}
	}
	if err := j.writeOp(opComplete, nil); err != nil {
		return err
	}
	if err := j.file.Sync(); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "fsync checkpoint C: %w", err)
	}

	return j.loadAt(target)
}

func (j *Journal) writeOp(code Opcode, data []byte) error {
	head := make([]byte, opHeadSize)
	head[0] = byte(code)
	codec.PutUint32(head, opCodeSize, uint32(len(data)))
	if _, err := j.file.Write(head); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "write op header: %w", err)
	}
	if len(data) > 0 {
		if _, err := j.file.Write(data); err != nil {
			return ydberr.Wrap(ydberr.Unknown, "write op data: %w", err)
		}
	}
	return nil
}

// Close zeroes the in-memory cursor and header fields and closes the file
// handle.
func (j *Journal) Close() error {
	if j.file == nil {
		return nil
	}
	j.firstTxOffset = 0
	j.lastTxOffset = 0
	j.prevTxOffset = 0
	j.currTxOffset = 0
	j.nextTxOffset = 0
	j.currentTx = nil
	j.currentTxLoaded = false
	j.path = ""

	f := j.file
	j.file = nil
	if err := f.Close(); err != nil {
		return ydberr.Wrap(ydberr.Unknown, "close journal: %w", err)
	}
	return nil
}
