package storage

import (
	"errors"
	"sync/atomic"
	"unsafe"

	log "github.com/sirupsen/logrus"

	"github.com/aaron-tian/terrier/common"
)

// ErrOutOfBlocks is returned when the block store has handed out its entire
// capacity.
var ErrOutOfBlocks = errors.New("storage: block store exhausted")

// RawBlock is one fixed-size chunk of table memory. The payload is a single
// word array; bytes aliases the same region so that null bitmaps can be
// CASed a word at a time while attribute values are read and written as
// plain bytes. No pointers ever live in the payload: version chain heads
// stay in versions, a side array standing in for the presence column's
// values, where the garbage collector can see them.
//
// A block is handed out zero-filled, initialized once per layout by a
// TupleAccessStrategy, and recycled through the BlockStore.
type RawBlock struct {
	words      []uint64
	bytes      []byte
	numRecords atomic.Uint32
	versions   []atomic.Pointer[UndoRecord]
}

func newRawBlock() *RawBlock {
	words := make([]uint64, BlockSize/8)
	return &RawBlock{
		words: words,
		bytes: unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), BlockSize),
	}
}

func (rb *RawBlock) reset() {
	for i := range rb.words {
		rb.words[i] = 0
	}
	rb.numRecords.Store(0)
	rb.versions = nil
}

// Header field offsets within the block. Everything but the record count is
// written once at initialization and read-only afterwards.
const (
	blockLayoutVersionOffset = 0
	blockNumRecordsOffset    = 4 // kept in numRecords; the header slot stays zero
	blockNumSlotsOffset      = 8
	blockAttrOffsetsOffset   = 12
)

func (rb *RawBlock) LayoutVersion() uint32 {
	return endian.Uint32(rb.bytes[blockLayoutVersionOffset:])
}

func (rb *RawBlock) NumRecords() uint32 {
	return rb.numRecords.Load()
}

func (rb *RawBlock) NumSlots() uint32 {
	return endian.Uint32(rb.bytes[blockNumSlotsOffset:])
}

// TupleSlot names one tuple's position: the block it lives in and the slot
// offset within that block.
type TupleSlot struct {
	block  *RawBlock
	offset uint32
}

func NewTupleSlot(block *RawBlock, offset uint32) TupleSlot {
	return TupleSlot{block: block, offset: offset}
}

func (ts TupleSlot) Block() *RawBlock {
	return ts.block
}

func (ts TupleSlot) Offset() uint32 {
	return ts.offset
}

// BlockStore hands out zero-initialized raw blocks and reclaims them. At
// most capacity blocks are outstanding at a time; released blocks are
// recycled through an object pool up to its reuse limit.
type BlockStore struct {
	pool        *common.ObjectPool[*RawBlock]
	capacity    int64
	outstanding atomic.Int64
}

func NewBlockStore(capacity int, reuseLimit int) *BlockStore {
	if capacity < 1 {
		panic("storage: block store capacity must be positive")
	}
	return &BlockStore{
		pool:     common.NewObjectPool(reuseLimit, newRawBlock, (*RawBlock).reset),
		capacity: int64(capacity),
	}
}

// Get returns a zero-filled block, or ErrOutOfBlocks if the store's entire
// capacity is outstanding.
func (bs *BlockStore) Get() (*RawBlock, error) {
	for {
		n := bs.outstanding.Load()
		if n >= bs.capacity {
			log.WithField("capacity", bs.capacity).Warn("block store exhausted")
			return nil, ErrOutOfBlocks
		}
		if bs.outstanding.CompareAndSwap(n, n+1) {
			return bs.pool.Get(), nil
		}
	}
}

// Release hands a block back to the store. The block must no longer be
// referenced by any table or slot.
func (bs *BlockStore) Release(rb *RawBlock) {
	bs.pool.Release(rb)
	bs.outstanding.Add(-1)
}
