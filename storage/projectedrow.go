package storage

import (
	"fmt"
	"sort"

	"github.com/aaron-tian/terrier/common"
)

// ProjectedRow is a packed, self-describing record over a subset of a
// layout's columns, used both as the input to inserts and updates and as
// the before-image payload of undo records. It is a typed view over a byte
// buffer:
//
//	| size (u32) | num_cols (u16) | col_ids [n]u16 | pad | offsets [n]u32 |
//	| pad | null bitmap | pad | values ... |
//
// col_ids are sorted ascending; offsets[i] is the byte offset of column
// col_ids[i]'s value within the record. Because ascending column id means
// non-increasing attribute size, every value is aligned to its size and the
// packing is dense. A set bitmap bit means the value is present.
type ProjectedRow []byte

const (
	rowNumColsOffset = 4
	rowColIDsOffset  = 6
)

func rowOffsetsOffset(numCols uint16) uint32 {
	return PadOffset(4, rowColIDsOffset+2*uint32(numCols))
}

func rowBitmapOffset(numCols uint16) uint32 {
	return PadOffset(8, rowOffsetsOffset(numCols)+4*uint32(numCols))
}

func (pr ProjectedRow) Size() uint32 {
	return endian.Uint32(pr)
}

func (pr ProjectedRow) NumColumns() uint16 {
	return endian.Uint16(pr[rowNumColsOffset:])
}

func (pr ProjectedRow) checkIndex(i uint16) {
	if i >= pr.NumColumns() {
		panic(fmt.Sprintf("storage: projection index %d out of range", i))
	}
}

// ColumnID returns the id of the i-th projected column.
func (pr ProjectedRow) ColumnID(i uint16) uint16 {
	pr.checkIndex(i)
	return endian.Uint16(pr[rowColIDsOffset+2*uint32(i):])
}

// AttrValueOffset returns the byte offset of the i-th value within the
// record.
func (pr ProjectedRow) AttrValueOffset(i uint16) uint32 {
	pr.checkIndex(i)
	return endian.Uint32(pr[rowOffsetsOffset(pr.NumColumns())+4*uint32(i):])
}

// Bitmap returns the row's null bitmap.
func (pr ProjectedRow) Bitmap() common.RawBitmap {
	return common.RawBitmap(pr[rowBitmapOffset(pr.NumColumns()):])
}

// AccessWithNullCheck returns the i-th value's bytes, or nil if the value
// is null.
func (pr ProjectedRow) AccessWithNullCheck(i uint16) []byte {
	pr.checkIndex(i)
	if !pr.Bitmap().Test(uint32(i)) {
		return nil
	}
	return pr[pr.AttrValueOffset(i):]
}

// AccessForceNotNull marks the i-th value present and returns its bytes.
func (pr ProjectedRow) AccessForceNotNull(i uint16) []byte {
	pr.checkIndex(i)
	pr.Bitmap().Set(uint32(i))
	return pr[pr.AttrValueOffset(i):]
}

func (pr ProjectedRow) SetNull(i uint16) {
	pr.checkIndex(i)
	pr.Bitmap().Clear(uint32(i))
}

func (pr ProjectedRow) SetNotNull(i uint16) {
	pr.checkIndex(i)
	pr.Bitmap().Set(uint32(i))
}

func (pr ProjectedRow) IsNull(i uint16) bool {
	pr.checkIndex(i)
	return !pr.Bitmap().Test(uint32(i))
}

// CopyProjectedRowLayout clones the shape of other into buf without its
// values: the header is copied and the bitmap cleared, so every column
// starts out null.
func CopyProjectedRowLayout(buf []byte, other ProjectedRow) ProjectedRow {
	header := rowBitmapOffset(other.NumColumns())
	if uint32(len(buf)) < other.Size() {
		panic("storage: projected row buffer too small")
	}
	copy(buf[:header], other[:header])
	pr := ProjectedRow(buf[:other.Size()])
	pr.Bitmap().ClearAll(uint32(pr.NumColumns()))
	return pr
}

// ProjectedRowInitializer is the compile-once layout plan for projected
// rows over a fixed set of columns: the sorted column ids, each value's
// offset, and the total record size.
type ProjectedRowInitializer struct {
	colIDs  []uint16
	offsets []uint32
	size    uint32
}

// NewProjectedRowInitializer plans a projected row over the given columns
// of the layout. The ids must be distinct and in range; selecting every
// column is allowed. The presence column may only appear in internal
// projections, so most callers pass ids drawn from 1 onwards.
func NewProjectedRowInitializer(layout BlockLayout, colIDs []uint16) ProjectedRowInitializer {
	if len(colIDs) == 0 {
		panic("storage: cannot initialize an empty projected row")
	}
	if len(colIDs) > int(layout.NumCols()) {
		panic("storage: more projected columns than the layout has")
	}
	ids := append([]uint16(nil), colIDs...)
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	for i, id := range ids {
		if id >= layout.NumCols() {
			panic(fmt.Sprintf("storage: column %d out of range", id))
		}
		if i > 0 && ids[i-1] == id {
			panic(fmt.Sprintf("storage: duplicate column %d in projection", id))
		}
	}

	init := ProjectedRowInitializer{
		colIDs:  ids,
		offsets: make([]uint32, len(ids)),
	}
	n := uint16(len(ids))
	size := rowOffsetsOffset(n) + 4*uint32(n)
	size = PadOffset(8, size)
	size += common.BitmapSizeInBytes(uint32(n))
	size = PadOffset(uint32(layout.AttrSize(ids[0])), size)
	for i, id := range ids {
		init.offsets[i] = size
		size += uint32(layout.AttrSize(id))
		// Pad to the next value's size, or to 8 bytes at the end so
		// records can be laid out back to back.
		next := uint32(8)
		if i+1 < len(ids) {
			next = uint32(layout.AttrSize(ids[i+1]))
		}
		size = PadOffset(next, size)
	}
	init.size = size
	return init
}

// ProjectedRowSize is the total size in bytes of a row laid out by this
// initializer.
func (init ProjectedRowInitializer) ProjectedRowSize() uint32 {
	return init.size
}

func (init ProjectedRowInitializer) NumColumns() uint16 {
	return uint16(len(init.colIDs))
}

func (init ProjectedRowInitializer) ColumnID(i uint16) uint16 {
	return init.colIDs[i]
}

// InitializeRow writes the projected row header into buf and clears the
// bitmap, leaving every column null. The values are not touched.
func (init ProjectedRowInitializer) InitializeRow(buf []byte) ProjectedRow {
	if uint32(len(buf)) < init.size {
		panic("storage: projected row buffer too small")
	}
	pr := ProjectedRow(buf[:init.size])
	endian.PutUint32(pr, init.size)
	n := uint16(len(init.colIDs))
	endian.PutUint16(pr[rowNumColsOffset:], n)
	for i, id := range init.colIDs {
		endian.PutUint16(pr[rowColIDsOffset+2*uint32(i):], id)
	}
	offsetsStart := rowOffsetsOffset(n)
	for i, off := range init.offsets {
		endian.PutUint32(pr[offsetsStart+4*uint32(i):], off)
	}
	pr.Bitmap().ClearAll(uint32(n))
	return pr
}
