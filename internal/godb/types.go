package godb

import "sync/atomic"

// DBType identifies the scalar type carried by a field.
type DBType int

const (
	IntType DBType = iota
	StringType
	UnknownType // used internally during parsing, when a field's type is not yet known
)

func (t DBType) String() string {
	switch t {
	case IntType:
		return "int"
	case StringType:
		return "string"
	}
	return "unknown"
}

// StringLength is the fixed, zero-padded width in bytes of a StringField's
// on-disk representation (excluding its 4-byte length prefix).
const StringLength = 128

// PageSize is the size in bytes of every page read from or written to disk.
// It is a var, not a const, so tests can shrink it to force page splits and
// evictions without maintaining giant fixtures.
var PageSize = 4096

// DefaultBufferPoolSize is the number of pages a BufferPool caches when no
// explicit capacity is requested.
const DefaultBufferPoolSize = 50

// DefaultDeadlockTimeoutMillis bounds how long getPage waits for a
// conflicting lock before aborting the waiting transaction.
const DefaultDeadlockTimeoutMillis = 10000

// TransactionID is an opaque token identifying the set of locks and dirtied
// pages owned by one transaction. Created by NewTID and passed by value
// through every call that touches the buffer pool.
type TransactionID int64

var tidCounter int64

// NewTID allocates a fresh, process-unique transaction id.
func NewTID() TransactionID {
	return TransactionID(atomic.AddInt64(&tidCounter, 1))
}

// orderByState is the three-way result of comparing two field values.
type orderByState int

const (
	OrderedLessThan orderByState = iota
	OrderedEqual
	OrderedGreaterThan
)

// BoolOp is a comparison operator usable in predicates, joins, and orderings.
type BoolOp int

const (
	OpEq BoolOp = iota
	OpNeq
	OpGt
	OpGe
	OpLt
	OpLe
	OpLike
)

func (op BoolOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNeq:
		return "<>"
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpLike:
		return "LIKE"
	}
	return "?"
}
