// Package ydberr implements the closed error taxonomy shared by the table
// and journal packages. It follows the teacher's plain fmt.Errorf wrapping
// style (no exceptions, no stack traces) while still letting callers
// discriminate on the kind of failure the way the original YeltsinDB engine's
// error_code.h enum does, via errors.Is.
package ydberr

import (
	"errors"
	"fmt"
)

// Kind names one entry of the engine's error taxonomy. Kind values are
// comparable and are the thing callers should switch on or compare with
// errors.Is — never the formatted message, which may change.
type Kind uint8

const (
	// Unknown is the catch-all kind for failures that don't map onto the
	// taxonomy below (e.g. an unexpected OS error surfaced verbatim).
	Unknown Kind = iota

	// Table file errors.
	TableNotExist
	TableExist
	TableDataCorrupted
	TableDataVersionMismatch

	// Engine/page pre-condition errors.
	EngineUninitialised
	EngineBusy
	EngineIdle
	PageOutOfRange
	PageUninitialised
	PageExhausted
	ZeroSizeRW
	WriteToNil
	NoMorePages
	SamePageAddress

	// Transaction/operation errors.
	TransactionUninitialised
	OpPushFailed
	OpOutOfRange

	// Journal file errors.
	JournalUninitialised
	JournalBusy
	JournalIdle
	JournalNotExist
	JournalExist
	JournalCorrupted
	JournalInconsistent
	JournalEmpty
	NoMoreTransactions
)

var kindNames = map[Kind]string{
	Unknown:                  "unknown error",
	TableNotExist:            "table does not exist",
	TableExist:               "table already exists",
	TableDataCorrupted:       "table data corrupted",
	TableDataVersionMismatch: "table data version mismatch",
	EngineUninitialised:      "engine not initialised",
	EngineBusy:               "engine in use",
	EngineIdle:               "engine not in use",
	PageOutOfRange:           "page index out of range",
	PageUninitialised:        "page not initialised",
	PageExhausted:            "no more room in page",
	ZeroSizeRW:               "zero-size read/write",
	WriteToNil:               "write to nil destination",
	NoMorePages:              "no more pages",
	SamePageAddress:          "same page address",
	TransactionUninitialised: "transaction not initialised",
	OpPushFailed:             "operation push failed",
	OpOutOfRange:             "operation index out of range",
	JournalUninitialised:     "journal not initialised",
	JournalBusy:              "journal in use",
	JournalIdle:              "journal not in use",
	JournalNotExist:          "journal does not exist",
	JournalExist:             "journal already exists",
	JournalCorrupted:         "journal file corrupted",
	JournalInconsistent:      "journal not consistent",
	JournalEmpty:             "journal is empty",
	NoMoreTransactions:       "no more transactions",
}

// String returns the human-readable label for k.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown error"
}

// Error is a ydb error carrying a Kind plus formatted context, the way the
// teacher wraps os errors with fmt.Errorf("...: %w", err) — except the kind
// is always preserved for errors.Is, even once wrapped again by a caller.
type Error struct {
	Kind Kind
	msg  string
	err  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.msg == "" {
		return e.Kind.String()
	}
	return e.msg
}

// Unwrap exposes the wrapped cause (if any) for errors.Is/errors.As chains
// that cross into this package from a lower-level os/io error.
func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is the same Kind sentinel. This lets
// errors.Is(err, ydberr.ErrTableNotExist) work without exposing *Error values
// as comparable sentinels themselves.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindSentinel)
	return ok && e.Kind == Kind(k)
}

// kindSentinel lets a bare Kind value act as an errors.Is target: each Kind
// constant below is exported as a sentinel error of this type, mirroring the
// os.ErrNotExist-style idiom while keeping the Kind enum as the source of
// truth (see error_code.h in the original source for the enumeration this
// mirrors).
type kindSentinel Kind

func (k kindSentinel) Error() string { return Kind(k).String() }

// Sentinel errors usable directly with errors.Is, e.g.:
//
//	if errors.Is(err, ydberr.ErrTableNotExist) { ... }
var (
	ErrUnknown                  = kindSentinel(Unknown)
	ErrTableNotExist            = kindSentinel(TableNotExist)
	ErrTableExist               = kindSentinel(TableExist)
	ErrTableDataCorrupted       = kindSentinel(TableDataCorrupted)
	ErrTableDataVersionMismatch = kindSentinel(TableDataVersionMismatch)
	ErrEngineUninitialised      = kindSentinel(EngineUninitialised)
	ErrEngineBusy               = kindSentinel(EngineBusy)
	ErrEngineIdle               = kindSentinel(EngineIdle)
	ErrPageOutOfRange           = kindSentinel(PageOutOfRange)
	ErrPageUninitialised        = kindSentinel(PageUninitialised)
	ErrPageExhausted            = kindSentinel(PageExhausted)
	ErrZeroSizeRW               = kindSentinel(ZeroSizeRW)
	ErrWriteToNil               = kindSentinel(WriteToNil)
	ErrNoMorePages              = kindSentinel(NoMorePages)
	ErrSamePageAddress          = kindSentinel(SamePageAddress)
	ErrTransactionUninitialised = kindSentinel(TransactionUninitialised)
	ErrOpPushFailed             = kindSentinel(OpPushFailed)
	ErrOpOutOfRange             = kindSentinel(OpOutOfRange)
	ErrJournalUninitialised     = kindSentinel(JournalUninitialised)
	ErrJournalBusy              = kindSentinel(JournalBusy)
	ErrJournalIdle              = kindSentinel(JournalIdle)
	ErrJournalNotExist          = kindSentinel(JournalNotExist)
	ErrJournalExist             = kindSentinel(JournalExist)
	ErrJournalCorrupted         = kindSentinel(JournalCorrupted)
	ErrJournalInconsistent      = kindSentinel(JournalInconsistent)
	ErrJournalEmpty             = kindSentinel(JournalEmpty)
	ErrNoMoreTransactions       = kindSentinel(NoMoreTransactions)
)

// New creates an *Error of the given kind with a formatted message, in the
// same spirit as fmt.Errorf but keeping Kind queryable via errors.Is.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given kind, wrapping cause via %w (exactly
// like fmt.Errorf) so the original error remains reachable through
// errors.Unwrap/errors.As.
func Wrap(k Kind, format string, args ...any) *Error {
	formatted := fmt.Errorf(format, args...)
	return &Error{Kind: k, msg: formatted.Error(), err: errors.Unwrap(formatted)}
}

// Is reports whether err (or any error it wraps) is of the given kind.
func Is(err error, k Kind) bool {
	return errors.Is(err, kindSentinel(k))
}
