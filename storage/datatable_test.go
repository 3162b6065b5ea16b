package storage_test

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/aaron-tian/terrier/common"
	"github.com/aaron-tian/terrier/storage"
	"github.com/aaron-tian/terrier/testutil"
	"github.com/aaron-tian/terrier/transaction"
)

// tableVersion pairs a timestamp with the reference row that a correct
// select at that timestamp must produce.
type tableVersion struct {
	ts  common.Timestamp
	row storage.ProjectedRow
}

// tableTestObject drives a data table with random rows and keeps an
// offline replay of every version for comparison. Not safe for concurrent
// use.
type tableTestObject struct {
	t        *testing.T
	r        *rand.Rand
	layout   storage.BlockLayout
	table    *storage.DataTable
	pool     *common.ObjectPool[*storage.BufferSegment]
	nullBias float64

	redoInit storage.ProjectedRowInitializer
	slots    []storage.TupleSlot
	versions map[storage.TupleSlot][]tableVersion
}

func newTableTestObject(t *testing.T, store *storage.BlockStore,
	pool *common.ObjectPool[*storage.BufferSegment], maxCols uint16,
	r *rand.Rand) *tableTestObject {

	layout := testutil.RandomLayout(maxCols, r)
	table, err := storage.NewDataTable(store, layout)
	if err != nil {
		t.Fatalf("NewDataTable() failed with %s", err)
	}
	return &tableTestObject{
		t:        t,
		r:        r,
		layout:   layout,
		table:    table,
		pool:     pool,
		nullBias: r.Float64(),
		redoInit: storage.NewProjectedRowInitializer(layout,
			testutil.ProjectionListAllColumns(layout)),
		versions: map[storage.TupleSlot][]tableVersion{},
	}
}

func (o *tableTestObject) newTxn(ts common.Timestamp) *transaction.Context {
	return transaction.NewContext(ts, ts, o.pool)
}

// insertRandom inserts a random row at the given timestamp and records it
// as the reference version.
func (o *tableTestObject) insertRandom(ts common.Timestamp) storage.TupleSlot {
	redo := o.redoInit.InitializeRow(make([]byte, o.redoInit.ProjectedRowSize()))
	testutil.PopulateRandomRow(redo, o.layout, o.nullBias, o.r)

	slot, err := o.table.Insert(o.newTxn(ts), redo)
	if err != nil {
		o.t.Fatalf("Insert() failed with %s", err)
	}
	o.slots = append(o.slots, slot)
	o.versions[slot] = append(o.versions[slot], tableVersion{ts: ts, row: redo})
	return slot
}

// updateRandom updates a random subset of the tuple's columns at the given
// timestamp. On success the reference version list is extended by replaying
// the delta on the previous version.
func (o *tableTestObject) updateRandom(ts common.Timestamp,
	slot storage.TupleSlot) (*transaction.Context, bool) {

	colIDs := testutil.ProjectionListRandomColumns(o.layout, o.r)
	init := storage.NewProjectedRowInitializer(o.layout, colIDs)
	delta := init.InitializeRow(make([]byte, init.ProjectedRowSize()))
	testutil.PopulateRandomRow(delta, o.layout, o.nullBias, o.r)

	txn := o.newTxn(ts)
	err := o.table.Update(txn, slot, delta)
	if err != nil {
		if !errors.Is(err, storage.ErrWriteWriteConflict) {
			o.t.Fatalf("Update() failed with %s", err)
		}
		return txn, false
	}

	prev := o.versions[slot][len(o.versions[slot])-1].row
	row := storage.ProjectedRow(append([]byte(nil), prev...))
	storage.ApplyDelta(o.layout, delta, row)
	o.versions[slot] = append(o.versions[slot], tableVersion{ts: ts, row: row})
	return txn, true
}

// referenceVersion returns the replayed row visible at the timestamp, or
// nil if no version is visible.
func (o *tableTestObject) referenceVersion(slot storage.TupleSlot,
	ts common.Timestamp) storage.ProjectedRow {

	versions := o.versions[slot]
	for i := len(versions) - 1; i >= 0; i-- {
		if ts == versions[i].ts || common.NewerThan(ts, versions[i].ts) {
			return versions[i].row
		}
	}
	return nil
}

func (o *tableTestObject) selectInto(slot storage.TupleSlot,
	ts common.Timestamp) storage.ProjectedRow {

	out := o.redoInit.InitializeRow(make([]byte, o.redoInit.ProjectedRowSize()))
	o.table.Select(o.newTxn(ts), slot, out)
	return out
}

func (o *tableTestObject) checkVisible(slot storage.TupleSlot, ts common.Timestamp) {
	got := o.selectInto(slot, ts)
	want := o.referenceVersion(slot, ts)
	if want == nil {
		o.t.Fatalf("no reference version at %#x", uint64(ts))
	}
	if !testutil.RowsEqual(o.layout, got, want) {
		o.t.Errorf("select at %#x does not match the replayed version", uint64(ts))
	}
}

func TestSimpleInsertSelect(t *testing.T) {
	const (
		numIterations = 10
		numInserts    = 200
		maxCols       = 100
	)

	r := rand.New(rand.NewSource(42))
	pool := storage.NewBufferSegmentPool(10000)
	for iteration := 0; iteration < numIterations; iteration++ {
		store := storage.NewBlockStore(100, 100)
		tested := newTableTestObject(t, store, pool, maxCols, r)

		for i := 0; i < numInserts; i++ {
			tested.insertRandom(0)
		}
		if len(tested.slots) != numInserts {
			t.Fatalf("inserted %d tuples want %d", len(tested.slots), numInserts)
		}

		for _, slot := range tested.slots {
			tested.checkVisible(slot, 1)
		}
	}
}

func TestVersionChain(t *testing.T) {
	const (
		numIterations = 10
		numUpdates    = 10
		maxCols       = 100
	)

	r := rand.New(rand.NewSource(43))
	pool := storage.NewBufferSegmentPool(10000)
	for iteration := 0; iteration < numIterations; iteration++ {
		store := storage.NewBlockStore(100, 100)
		tested := newTableTestObject(t, store, pool, maxCols, r)

		ts := common.Timestamp(0)
		slot := tested.insertRandom(ts)
		for i := 0; i < numUpdates; i++ {
			ts++
			if _, ok := tested.updateRandom(ts, slot); !ok {
				t.Fatal("Update() conflicted without a concurrent writer")
			}
		}

		// Every timestamp must see exactly the version the replay
		// produced for it.
		for i := uint64(0); i <= numUpdates; i++ {
			tested.checkVisible(slot, common.Timestamp(i))
		}
	}
}

func TestWriteWriteConflict(t *testing.T) {
	const (
		numIterations = 10
		maxCols       = 100
	)

	r := rand.New(rand.NewSource(44))
	pool := storage.NewBufferSegmentPool(10000)
	for iteration := 0; iteration < numIterations; iteration++ {
		store := storage.NewBlockStore(100, 100)
		tested := newTableTestObject(t, store, pool, maxCols, r)
		slot := tested.insertRandom(0)

		// Take the write lock with an uncommitted transaction id.
		u1 := common.Timestamp(math.MaxUint64)
		txn1, ok := tested.updateRandom(u1, slot)
		if !ok {
			t.Fatal("Update() conflicted on a committed tuple")
		}

		// A different transaction must be rejected.
		if _, ok := tested.updateRandom(1, slot); ok {
			t.Fatal("Update() succeeded against a write lock")
		}

		// The writer sees its own write.
		tested.checkVisible(slot, u1)
		// Other readers see the committed version.
		tested.checkVisible(slot, 1)

		// Committing releases the lock and publishes the version.
		txn1.Commit(1)
		versions := tested.versions[slot]
		versions[len(versions)-1].ts = 1

		if _, ok := tested.updateRandom(common.TransactionID(7), slot); !ok {
			t.Fatal("Update() conflicted after commit")
		}
		tested.checkVisible(slot, 1)
	}
}

// Concurrent updates on one slot: exactly one writer wins and the rest
// fail with a write-write conflict, leaving the tuple unchanged for
// readers of the committed version.
func TestConcurrentUpdateConflicts(t *testing.T) {
	const numThreads = 8

	r := rand.New(rand.NewSource(45))
	pool := storage.NewBufferSegmentPool(10000)
	store := storage.NewBlockStore(100, 100)
	tested := newTableTestObject(t, store, pool, 100, r)
	slot := tested.insertRandom(0)

	colIDs := testutil.ProjectionListAllColumns(tested.layout)
	deltas := make([]storage.ProjectedRow, numThreads)
	for i := range deltas {
		init := storage.NewProjectedRowInitializer(tested.layout, colIDs)
		deltas[i] = init.InitializeRow(make([]byte, init.ProjectedRowSize()))
		testutil.PopulateRandomRow(deltas[i], tested.layout, 0.2, r)
	}

	results := make([]error, numThreads)
	var wg sync.WaitGroup
	for thrd := 0; thrd < numThreads; thrd++ {
		wg.Add(1)
		go func(thrd int) {
			defer wg.Done()

			txn := transaction.NewContext(common.TransactionID(uint64(thrd)+1),
				common.TransactionID(uint64(thrd)+1), pool)
			results[thrd] = tested.table.Update(txn, slot, deltas[thrd])
		}(thrd)
	}
	wg.Wait()

	succeeded := 0
	for thrd, err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, storage.ErrWriteWriteConflict) {
			t.Errorf("Update() by %d failed with %s", thrd, err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d updates succeeded want 1", succeeded)
	}

	// The uncommitted write is invisible at the insert timestamp.
	tested.checkVisible(slot, 0)
}

func TestInsertOutOfBlocks(t *testing.T) {
	var attrSizes []uint8
	for i := 0; i < 130; i++ {
		attrSizes = append(attrSizes, 8)
	}
	layout := storage.NewBlockLayout(attrSizes)
	store := storage.NewBlockStore(1, 1)
	table, err := storage.NewDataTable(store, layout)
	if err != nil {
		t.Fatalf("NewDataTable() failed with %s", err)
	}

	pool := storage.NewBufferSegmentPool(100)
	init := storage.NewProjectedRowInitializer(layout, []uint16{1})
	redo := init.InitializeRow(make([]byte, init.ProjectedRowSize()))
	storage.WriteBytes(8, 0xdead, redo.AccessForceNotNull(0))

	for i := uint32(0); i < layout.NumSlots(); i++ {
		txn := transaction.NewContext(0, 0, pool)
		if _, err := table.Insert(txn, redo); err != nil {
			t.Fatalf("Insert() failed with %s after %d inserts", err, i)
		}
	}

	txn := transaction.NewContext(0, 0, pool)
	if _, err := table.Insert(txn, redo); !errors.Is(err, storage.ErrOutOfBlocks) {
		t.Errorf("Insert() on a full store got %v want %v", err, storage.ErrOutOfBlocks)
	}
}
