package storage

import (
	"fmt"
	"sync/atomic"

	"github.com/aaron-tian/terrier/common"
)

// TupleAccessStrategy interprets a raw block as a sequence of mini blocks,
// one per column, each holding a null bitmap followed by that column's
// values for every slot. It allocates slots and performs typed access to
// individual attributes. The strategy is stateless apart from the layout
// and the offsets derived from it, so one value serves any number of
// blocks.
type TupleAccessStrategy struct {
	layout BlockLayout
	// Start of each mini block, as an offset from the start of the block.
	columnOffsets []uint32
}

func NewTupleAccessStrategy(layout BlockLayout) TupleAccessStrategy {
	offsets, size := layout.columnOffsets(layout.NumSlots())
	if size > BlockSize {
		panic("storage: layout overflows a block")
	}
	return TupleAccessStrategy{layout: layout, columnOffsets: offsets}
}

func (sa TupleAccessStrategy) Layout() BlockLayout {
	return sa.layout
}

// InitializeRawBlock writes the block header and carves the zero-filled
// block into mini blocks. All presence bitmaps start out clear, so every
// slot is free.
func (sa TupleAccessStrategy) InitializeRawBlock(rb *RawBlock, layoutVersion uint32) {
	numSlots := sa.layout.NumSlots()
	endian.PutUint32(rb.bytes[blockLayoutVersionOffset:], layoutVersion)
	endian.PutUint32(rb.bytes[blockNumSlotsOffset:], numSlots)
	off := blockAttrOffsetsOffset
	for _, colOff := range sa.columnOffsets {
		endian.PutUint32(rb.bytes[off:], colOff)
		off += 4
	}
	endian.PutUint16(rb.bytes[off:], sa.layout.NumCols())
	off += 2
	for col := uint16(0); col < sa.layout.NumCols(); col++ {
		rb.bytes[off] = sa.layout.AttrSize(col)
		off++
	}
	rb.numRecords.Store(0)
	rb.versions = make([]atomic.Pointer[UndoRecord], numSlots)
}

// ColumnNullBitmap returns the null bitmap of the given column, which for
// the presence column is also the slot allocation bitmap.
func (sa TupleAccessStrategy) ColumnNullBitmap(rb *RawBlock, col uint16) common.ConcurrentBitmap {
	start := sa.columnOffsets[col] / 8
	return common.ConcurrentBitmap(rb.words[start : start+uint32(common.ConcurrentBitmapSizeInWords(sa.layout.NumSlots()))])
}

// ColumnStart returns the column's value array: NumSlots values of
// AttrSize(col) bytes each.
func (sa TupleAccessStrategy) ColumnStart(rb *RawBlock, col uint16) []byte {
	start := sa.columnOffsets[col] + sa.layout.bitmapReserved(col, sa.layout.NumSlots())
	return rb.bytes[start : start+sa.layout.NumSlots()*uint32(sa.layout.AttrSize(col))]
}

func (sa TupleAccessStrategy) value(slot TupleSlot, col uint16) []byte {
	sa.checkSlot(slot)
	size := uint32(sa.layout.AttrSize(col))
	values := sa.ColumnStart(slot.Block(), col)
	return values[slot.Offset()*size : (slot.Offset()+1)*size]
}

// AccessWithNullCheck returns the attribute's bytes, or nil if the
// attribute is null.
func (sa TupleAccessStrategy) AccessWithNullCheck(slot TupleSlot, col uint16) []byte {
	if !sa.ColumnNullBitmap(slot.Block(), col).Test(slot.Offset()) {
		return nil
	}
	return sa.value(slot, col)
}

// AccessForceNotNull marks the attribute present if it was null and returns
// its bytes.
func (sa TupleAccessStrategy) AccessForceNotNull(slot TupleSlot, col uint16) []byte {
	bitmap := sa.ColumnNullBitmap(slot.Block(), col)
	if !bitmap.Test(slot.Offset()) {
		bitmap.Flip(slot.Offset(), false)
	}
	return sa.value(slot, col)
}

// SetNull marks the attribute null. On the presence column this frees the
// slot and drops the block's record count.
func (sa TupleAccessStrategy) SetNull(slot TupleSlot, col uint16) {
	if sa.ColumnNullBitmap(slot.Block(), col).Flip(slot.Offset(), true) &&
		col == PresenceColumnID {
		slot.Block().numRecords.Add(^uint32(0))
	}
}

// Allocate claims a free slot in the block by flipping its presence bit.
// Returns false if the block is full.
func (sa TupleAccessStrategy) Allocate(rb *RawBlock) (TupleSlot, bool) {
	if rb.versions == nil {
		panic("storage: block has not been initialized")
	}
	bitmap := sa.ColumnNullBitmap(rb, PresenceColumnID)
	for i := uint32(0); i < sa.layout.NumSlots(); i++ {
		if bitmap.Flip(i, false) {
			rb.numRecords.Add(1)
			return TupleSlot{block: rb, offset: i}, true
		}
	}
	return TupleSlot{}, false
}

func (sa TupleAccessStrategy) checkSlot(slot TupleSlot) {
	if slot.block == nil || slot.offset >= sa.layout.NumSlots() {
		panic(fmt.Sprintf("storage: invalid tuple slot offset %d", slot.offset))
	}
}
