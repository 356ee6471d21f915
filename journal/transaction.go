// Package journal implements the write-ahead journal: a sibling file to the
// table that records page-level mutations as transactions of typed
// operations, with a crash-consistency protocol that truncates a torn tail
// on open. It generalises the teacher's internal/storage/pager WAL handling
// (SimonWaldherr/tinySQL) to the record layout described in journal.c of the
// original engine this module reimplements.
package journal

import "github.com/t1meshift/ydb/ydberr"

// Opcode identifies the kind of mutation an Op records.
type Opcode uint8

// Opcode values, per spec.md's journal record format.
const (
	OpPageAlloc  Opcode = 0x01
	OpPageModify Opcode = 0x02
	OpPageRemove Opcode = 0x03
	OpRollback   Opcode = 0xFE
	opComplete   Opcode = 0xFF
)

// Op is one typed operation within a transaction: an opcode plus its opaque
// data payload.
type Op struct {
	Code Opcode
	Data []byte
}

// Clone returns a deep copy of the op, including its data buffer.
func (o Op) Clone() Op {
	data := make([]byte, len(o.Data))
	copy(data, o.Data)
	return Op{Code: o.Code, Data: data}
}

// Transaction is a journal record in memory: a timestamp, a flags byte, and
// an ordered list of operations. It carries no knowledge of its on-disk
// offset or its neighbours — that bookkeeping belongs to Journal.
type Transaction struct {
	timestamp int64
	flags     uint8
	ops       []Op
}

// NewTransaction returns an empty transaction: timestamp 0, flags 0, no ops.
func NewTransaction() *Transaction {
	return &Transaction{}
}

// Clone returns a deep copy of the transaction, including every op's data
// buffer. The journal append protocol clones the caller's transaction
// before serialising so later caller mutation cannot affect the record.
func (tx *Transaction) Clone() *Transaction {
	ops := make([]Op, len(tx.ops))
	for i, op := range tx.ops {
		ops[i] = op.Clone()
	}
	return &Transaction{timestamp: tx.timestamp, flags: tx.flags, ops: ops}
}

// Timestamp returns the transaction's timestamp field.
func (tx *Transaction) Timestamp() int64 { return tx.timestamp }

// SetTimestamp sets the transaction's timestamp field.
func (tx *Transaction) SetTimestamp(ts int64) { tx.timestamp = ts }

// Flags returns the transaction's flags byte.
func (tx *Transaction) Flags() uint8 { return tx.flags }

// SetFlags sets the transaction's flags byte.
func (tx *Transaction) SetFlags(f uint8) { tx.flags = f }

// OpsCount returns the number of operations currently pushed.
func (tx *Transaction) OpsCount() int { return len(tx.ops) }

// PushOp deep-clones op and appends it to the transaction's op list.
func (tx *Transaction) PushOp(op Op) {
	tx.ops = append(tx.ops, op.Clone())
}

// PopOp removes and discards the tail operation. Fails with
// ydberr.ErrOpOutOfRange if the op list is empty.
func (tx *Transaction) PopOp() error {
	if len(tx.ops) == 0 {
		return ydberr.New(ydberr.OpOutOfRange, "pop-op: transaction has no operations")
	}
	tx.ops = tx.ops[:len(tx.ops)-1]
	return nil
}

// OpAt returns a borrowed reference to the operation at index i, or nil if
// i is out of range.
func (tx *Transaction) OpAt(i int) *Op {
	if i < 0 || i >= len(tx.ops) {
		return nil
	}
	return &tx.ops[i]
}
