package transaction

import (
	"github.com/aaron-tian/terrier/common"
	"github.com/aaron-tian/terrier/storage"
)

// Context holds the state a transaction carries while it runs: its start
// timestamp, its transaction id, and the undo buffer its undo records are
// allocated from. It implements storage.Transaction.
//
// Commit and abort are driven externally: committing a transaction means
// rewriting the timestamps of its undo records from the transaction id to
// the commit timestamp.
type Context struct {
	startTime  common.Timestamp
	txnID      common.Timestamp
	undoBuffer *storage.UndoBuffer
	records    []*storage.UndoRecord
}

// NewContext creates a transaction context. The transaction id must be
// larger than every start and commit timestamp handed out so far.
func NewContext(start common.Timestamp, txnID common.Timestamp,
	pool *common.ObjectPool[*storage.BufferSegment]) *Context {

	return &Context{
		startTime:  start,
		txnID:      txnID,
		undoBuffer: storage.NewUndoBuffer(pool),
	}
}

func (ctx *Context) StartTime() common.Timestamp {
	return ctx.startTime
}

func (ctx *Context) TxnID() common.Timestamp {
	return ctx.txnID
}

// UndoRecordForInsert reserves an insert undo record on this transaction's
// undo buffer.
func (ctx *Context) UndoRecordForInsert(table *storage.DataTable, slot storage.TupleSlot,
	init storage.ProjectedRowInitializer) *storage.UndoRecord {

	ur := storage.NewUndoRecordForInsert(ctx.undoBuffer, ctx.txnID, table, slot, init)
	ctx.records = append(ctx.records, ur)
	return ur
}

// UndoRecordForUpdate reserves an update undo record, shaped like the redo
// row, on this transaction's undo buffer.
func (ctx *Context) UndoRecordForUpdate(table *storage.DataTable, slot storage.TupleSlot,
	redo storage.ProjectedRow) *storage.UndoRecord {

	ur := storage.NewUndoRecordForUpdate(ctx.undoBuffer, ctx.txnID, table, slot, redo)
	ctx.records = append(ctx.records, ur)
	return ur
}

// Commit atomically rewrites the timestamp of every undo record this
// transaction created from the transaction id to the commit timestamp,
// making its writes visible to readers at and after that timestamp.
func (ctx *Context) Commit(commit common.Timestamp) {
	if commit.Uncommitted() {
		panic("transaction: commit timestamp must not be a transaction id")
	}
	for _, ur := range ctx.records {
		ur.StoreTimestamp(commit)
	}
}

// Finish returns the transaction's undo buffer segments to the pool. Only
// the transaction manager may call this, once no version chain references
// the transaction's undo records.
func (ctx *Context) Finish() {
	ctx.undoBuffer.Release()
}
