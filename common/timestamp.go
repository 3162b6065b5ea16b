package common

// Timestamp orders tuple versions. A timestamp with the high bit set is a
// transaction id: the writing transaction has not committed yet. A timestamp
// with the high bit clear is a commit timestamp. Timestamps are shared
// between the storage and transaction packages, so the type lives here.
type Timestamp uint64

const uncommittedBit = Timestamp(1) << 63

// Uncommitted reports whether ts is a transaction id rather than a commit
// timestamp.
func (ts Timestamp) Uncommitted() bool {
	return ts&uncommittedBit != 0
}

// TransactionID returns the timestamp encoding of transaction id n.
func TransactionID(n uint64) Timestamp {
	return Timestamp(n) | uncommittedBit
}

// NewerThan reports whether a is newer than b. Between commit timestamps the
// larger one is newer. A transaction id is newer than every commit timestamp:
// interpreted as signed integers transaction ids are negative, so the signed
// comparison puts them in front.
func NewerThan(a, b Timestamp) bool {
	if a.Uncommitted() || b.Uncommitted() {
		return int64(a) < int64(b)
	}
	return a > b
}
