package storage

import (
	"fmt"
	"sync/atomic"

	"github.com/aaron-tian/terrier/common"
)

// UndoRecord is one link of a tuple's version chain: the before-image of
// the columns touched by a write, plus enough metadata to locate the tuple.
// The chain is newest first; next points further back in time. While the
// writing transaction is in progress the timestamp holds its transaction
// id; commit atomically rewrites it to the commit timestamp.
type UndoRecord struct {
	next      *UndoRecord
	timestamp atomic.Uint64
	table     *DataTable
	slot      TupleSlot
	delta     ProjectedRow
}

func (ur *UndoRecord) Next() *UndoRecord {
	return ur.next
}

func (ur *UndoRecord) Timestamp() common.Timestamp {
	return common.Timestamp(ur.timestamp.Load())
}

// StoreTimestamp atomically rewrites the record's timestamp. The external
// transaction manager uses this to commit: the transaction id is replaced
// with the commit timestamp.
func (ur *UndoRecord) StoreTimestamp(ts common.Timestamp) {
	ur.timestamp.Store(uint64(ts))
}

func (ur *UndoRecord) Table() *DataTable {
	return ur.table
}

func (ur *UndoRecord) Slot() TupleSlot {
	return ur.slot
}

// Delta is the record's before-image payload.
func (ur *UndoRecord) Delta() ProjectedRow {
	return ur.delta
}

// BufferSegmentSize is the size of one pooled undo buffer segment. A
// segment must be able to hold any single projected row payload.
const BufferSegmentSize = 1 << 15

// BufferSegment is a fixed-size chunk of undo payload memory, carved into
// entries front to back and recycled whole.
type BufferSegment struct {
	bytes []byte
	end   uint32
}

func newBufferSegment() *BufferSegment {
	return &BufferSegment{bytes: make([]byte, BufferSegmentSize)}
}

func (seg *BufferSegment) reset() {
	seg.end = 0
}

func (seg *BufferSegment) fits(size uint32) bool {
	return seg.end+size <= BufferSegmentSize
}

func (seg *BufferSegment) reserve(size uint32) []byte {
	buf := seg.bytes[seg.end : seg.end+size]
	seg.end += PadOffset(8, size)
	return buf
}

// NewBufferSegmentPool returns an object pool recycling up to reuseLimit
// undo buffer segments.
func NewBufferSegmentPool(reuseLimit int) *common.ObjectPool[*BufferSegment] {
	return common.NewObjectPool(reuseLimit, newBufferSegment, (*BufferSegment).reset)
}

// UndoBuffer is a transaction-local arena for undo record payloads, drawn
// from a shared segment pool. Entries stay live until Release, which hands
// every segment back to the pool; a buffer must only be released once no
// version chain references its records.
type UndoBuffer struct {
	pool     *common.ObjectPool[*BufferSegment]
	segments []*BufferSegment
}

func NewUndoBuffer(pool *common.ObjectPool[*BufferSegment]) *UndoBuffer {
	return &UndoBuffer{pool: pool}
}

// NewEntry reserves size bytes, 8-byte aligned, in the buffer's last
// segment, fetching a new segment when the current one is full.
func (ub *UndoBuffer) NewEntry(size uint32) []byte {
	if size > BufferSegmentSize {
		panic(fmt.Sprintf("storage: undo entry of %d bytes does not fit a buffer segment", size))
	}
	if len(ub.segments) == 0 || !ub.segments[len(ub.segments)-1].fits(size) {
		ub.segments = append(ub.segments, ub.pool.Get())
	}
	return ub.segments[len(ub.segments)-1].reserve(size)
}

// Release returns every segment to the pool. The buffer is reusable but
// all previously reserved entries become invalid.
func (ub *UndoBuffer) Release() {
	for _, seg := range ub.segments {
		ub.pool.Release(seg)
	}
	ub.segments = nil
}

// NewUndoRecordForInsert initializes an insert undo record: an empty
// before-image over the presence column only, timestamped with the
// inserting transaction's id.
func NewUndoRecordForInsert(ub *UndoBuffer, ts common.Timestamp, table *DataTable,
	slot TupleSlot, init ProjectedRowInitializer) *UndoRecord {

	ur := &UndoRecord{table: table, slot: slot}
	ur.timestamp.Store(uint64(ts))
	ur.delta = init.InitializeRow(ub.NewEntry(init.ProjectedRowSize()))
	return ur
}

// NewUndoRecordForUpdate initializes an update undo record whose payload
// has the same shape as the redo row; the data table fills in the
// before-image values before linking the record into the chain.
func NewUndoRecordForUpdate(ub *UndoBuffer, ts common.Timestamp, table *DataTable,
	slot TupleSlot, redo ProjectedRow) *UndoRecord {

	ur := &UndoRecord{table: table, slot: slot}
	ur.timestamp.Store(uint64(ts))
	ur.delta = CopyProjectedRowLayout(ub.NewEntry(redo.Size()), redo)
	return ur
}
