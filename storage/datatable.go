package storage

import (
	"errors"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/aaron-tian/terrier/common"
)

// ErrWriteWriteConflict is returned by Update when another in-progress
// transaction holds the write lock on the slot.
var ErrWriteWriteConflict = errors.New("storage: write-write conflict")

// Transaction is the view of a running transaction that the data table
// needs: its read timestamp, its id, and the ability to reserve undo
// records from its buffer.
type Transaction interface {
	StartTime() common.Timestamp
	TxnID() common.Timestamp
	UndoRecordForInsert(table *DataTable, slot TupleSlot, init ProjectedRowInitializer) *UndoRecord
	UndoRecordForUpdate(table *DataTable, slot TupleSlot, redo ProjectedRow) *UndoRecord
}

// DataTable drives insert, update, and select over tuple slots, building a
// per-tuple version chain of undo records. The chain head, stored in the
// slot's presence column, is also the write lock: a head whose timestamp is
// another transaction's id rejects writers, and installing a record with
// one's own id takes the lock.
type DataTable struct {
	store    *BlockStore
	layout   BlockLayout
	accessor TupleAccessStrategy
	// Insert undo records carry an empty before-image over the presence
	// column only.
	insertRecord ProjectedRowInitializer

	mutex  sync.RWMutex
	blocks []*RawBlock
}

// NewDataTable creates a table over the given layout, drawing blocks from
// the store. The first block is acquired eagerly.
func NewDataTable(store *BlockStore, layout BlockLayout) (*DataTable, error) {
	dt := &DataTable{
		store:        store,
		layout:       layout,
		accessor:     NewTupleAccessStrategy(layout),
		insertRecord: NewProjectedRowInitializer(layout, []uint16{PresenceColumnID}),
	}
	if _, err := dt.newBlock(); err != nil {
		return nil, err
	}
	return dt, nil
}

func (dt *DataTable) Layout() BlockLayout {
	return dt.layout
}

func (dt *DataTable) versionPtr(slot TupleSlot) *atomic.Pointer[UndoRecord] {
	return &slot.Block().versions[slot.Offset()]
}

// newBlock acquires a block from the store, initializes it for this
// table's layout, and publishes it. Callers must not hold the mutex.
func (dt *DataTable) newBlock() (*RawBlock, error) {
	dt.mutex.Lock()
	defer dt.mutex.Unlock()

	rb, err := dt.store.Get()
	if err != nil {
		return nil, err
	}
	dt.accessor.InitializeRawBlock(rb, 0)
	dt.blocks = append(dt.blocks, rb)
	log.WithField("blocks", len(dt.blocks)).Debug("data table grew by one block")
	return rb, nil
}

// allocateSlot claims a free slot, acquiring a new block when every known
// block is full.
func (dt *DataTable) allocateSlot() (TupleSlot, error) {
	for {
		dt.mutex.RLock()
		blocks := dt.blocks
		dt.mutex.RUnlock()

		for _, rb := range blocks {
			if slot, ok := dt.accessor.Allocate(rb); ok {
				return slot, nil
			}
		}

		rb, err := dt.newBlock()
		if err != nil {
			return TupleSlot{}, err
		}
		if slot, ok := dt.accessor.Allocate(rb); ok {
			return slot, nil
		}
		// Another inserter filled the fresh block first; scan again.
	}
}

// Insert claims a slot, installs an insert undo record as the version
// chain head, and writes the redo row's values into the slot. Returns
// ErrOutOfBlocks if the table cannot grow.
func (dt *DataTable) Insert(txn Transaction, redo ProjectedRow) (TupleSlot, error) {
	slot, err := dt.allocateSlot()
	if err != nil {
		return TupleSlot{}, err
	}

	undo := txn.UndoRecordForInsert(dt, slot, dt.insertRecord)
	dt.versionPtr(slot).Store(undo)

	for i := uint16(0); i < redo.NumColumns(); i++ {
		CopyAttrFromProjection(dt.accessor, slot, redo, i)
	}
	return slot, nil
}

// Update attempts to write the redo row's columns into the slot. The
// before-image of those columns is captured in an undo record, which is
// CASed in front of the existing chain; the CAS doubles as taking the
// write lock. Returns ErrWriteWriteConflict, leaving the tuple untouched,
// if another in-progress transaction holds the lock.
func (dt *DataTable) Update(txn Transaction, slot TupleSlot, redo ProjectedRow) error {
	undo := txn.UndoRecordForUpdate(dt, slot, redo)
	version := dt.versionPtr(slot)
	for {
		head := version.Load()
		if head != nil && head.Timestamp().Uncommitted() && head.Timestamp() != txn.TxnID() {
			return ErrWriteWriteConflict
		}
		for i := uint16(0); i < redo.NumColumns(); i++ {
			CopyAttrIntoProjection(dt.accessor, slot, undo.delta, i)
		}
		undo.next = head
		if version.CompareAndSwap(head, undo) {
			break
		}
		// Lost the race to another writer; re-read the head and try again.
	}

	for i := uint16(0); i < redo.NumColumns(); i++ {
		CopyAttrFromProjection(dt.accessor, slot, redo, i)
	}
	return nil
}

// Select materializes into out the version of the tuple visible to the
// transaction's read timestamp: the slot's current values, with the
// before-images of every newer undo record applied on top, newest first.
func (dt *DataTable) Select(txn Transaction, slot TupleSlot, out ProjectedRow) {
	for i := uint16(0); i < out.NumColumns(); i++ {
		CopyAttrIntoProjection(dt.accessor, slot, out, i)
	}

	version := dt.versionPtr(slot).Load()
	for version != nil && common.NewerThan(version.Timestamp(), txn.StartTime()) {
		ApplyDelta(dt.layout, version.Delta(), out)
		version = version.Next()
	}
}
