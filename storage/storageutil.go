package storage

import (
	"encoding/binary"
	"fmt"
)

var endian = binary.LittleEndian

// PadOffset rounds offset up to a multiple of wordSize.
func PadOffset(wordSize uint32, offset uint32) uint32 {
	remainder := offset % wordSize
	if remainder == 0 {
		return offset
	}
	return offset + wordSize - remainder
}

// WriteBytes writes the low attrSize bytes of val to pos. attrSize must be
// one of 1, 2, 4, or 8; wider attributes are copied as two words.
func WriteBytes(attrSize uint8, val uint64, pos []byte) {
	switch attrSize {
	case 1:
		pos[0] = byte(val)
	case 2:
		endian.PutUint16(pos, uint16(val))
	case 4:
		endian.PutUint32(pos, uint32(val))
	case 8:
		endian.PutUint64(pos, val)
	default:
		panic(fmt.Sprintf("storage: invalid attribute size %d", attrSize))
	}
}

// ReadBytes reads attrSize bytes from pos, zero extended to 8 bytes.
func ReadBytes(attrSize uint8, pos []byte) uint64 {
	switch attrSize {
	case 1:
		return uint64(pos[0])
	case 2:
		return uint64(endian.Uint16(pos))
	case 4:
		return uint64(endian.Uint32(pos))
	case 8:
		return endian.Uint64(pos)
	default:
		panic(fmt.Sprintf("storage: invalid attribute size %d", attrSize))
	}
}

// copyAttr copies one attribute value of attrSize bytes. Sizes past 8 are
// copied 8 bytes at a time.
func copyAttr(attrSize uint8, from []byte, to []byte) {
	for attrSize > 8 {
		WriteBytes(8, ReadBytes(8, from), to)
		from = from[8:]
		to = to[8:]
		attrSize -= 8
	}
	WriteBytes(attrSize, ReadBytes(attrSize, from), to)
}

// CopyWithNullCheck copies an attribute from a source location into
// projection index i of the row. A nil source marks the column null.
func CopyWithNullCheck(from []byte, to ProjectedRow, attrSize uint8, i uint16) {
	if from == nil {
		to.SetNull(i)
		return
	}
	copyAttr(attrSize, from, to.AccessForceNotNull(i))
}

// CopyWithNullCheckToSlot copies an attribute from a source location into
// the given column of a tuple slot. A nil source marks the column null.
func CopyWithNullCheckToSlot(from []byte, sa TupleAccessStrategy, to TupleSlot, col uint16) {
	if from == nil {
		sa.SetNull(to, col)
		return
	}
	copyAttr(sa.Layout().AttrSize(col), from, sa.AccessForceNotNull(to, col))
}

// CopyAttrIntoProjection copies projection index i's column from a tuple
// slot into the row, nulls included.
func CopyAttrIntoProjection(sa TupleAccessStrategy, from TupleSlot, to ProjectedRow, i uint16) {
	col := to.ColumnID(i)
	CopyWithNullCheck(sa.AccessWithNullCheck(from, col), to, sa.Layout().AttrSize(col), i)
}

// CopyAttrFromProjection copies projection index i's column from the row
// into a tuple slot, nulls included.
func CopyAttrFromProjection(sa TupleAccessStrategy, to TupleSlot, from ProjectedRow, i uint16) {
	CopyWithNullCheckToSlot(from.AccessWithNullCheck(i), sa, to, from.ColumnID(i))
}

// ApplyDelta applies the delta's columns into buffer: each column named by
// the delta has its value, or its nullness, copied into the same column of
// buffer. Columns of buffer the delta does not name are left untouched.
// Both column id lists are sorted, so a single merge pass locates every
// column; delta columns absent from buffer are skipped.
func ApplyDelta(layout BlockLayout, delta ProjectedRow, buffer ProjectedRow) {
	deltaCols := delta.NumColumns()
	bufferCols := buffer.NumColumns()
	var j uint16
	for i := uint16(0); i < deltaCols; i++ {
		col := delta.ColumnID(i)
		for j < bufferCols && buffer.ColumnID(j) < col {
			j++
		}
		if j == bufferCols {
			break
		}
		if buffer.ColumnID(j) == col {
			CopyWithNullCheck(delta.AccessWithNullCheck(i), buffer, layout.AttrSize(col), j)
		}
	}
}
