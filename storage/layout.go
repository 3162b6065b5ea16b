package storage

import (
	"fmt"

	"github.com/aaron-tian/terrier/common"
)

const (
	// BlockSize is the fixed size of a raw block.
	BlockSize = 1 << 20

	// PresenceColumnID is the column whose null bitmap doubles as the
	// per-slot presence bit: a tuple with this column null does not exist,
	// and the slot is free to be handed out. Its value slot holds the
	// version chain head.
	PresenceColumnID = uint16(0)
)

// BlockLayout describes the schema of one block: the number of columns and
// each column's attribute size in bytes. Column ids are assigned so that
// ascending id means non-increasing attribute size, which keeps projected
// rows dense. Immutable after construction.
type BlockLayout struct {
	numCols    uint16
	attrSizes  []uint8
	tupleSize  uint32
	headerSize uint32
	numSlots   uint32
}

func validAttrSize(size uint8) bool {
	switch size {
	case 1, 2, 4, 8, 16:
		return true
	}
	return false
}

// NewBlockLayout builds the layout for a block with the given attribute
// sizes, one per column in id order. Column 0 is the presence column and
// must be at least pointer sized.
func NewBlockLayout(attrSizes []uint8) BlockLayout {
	if len(attrSizes) < 2 {
		panic("storage: a layout needs the presence column and at least one attribute")
	}
	if attrSizes[0] < 8 {
		panic("storage: the presence column must hold a version pointer")
	}
	for i, size := range attrSizes {
		if !validAttrSize(size) {
			panic(fmt.Sprintf("storage: invalid attribute size %d for column %d", size, i))
		}
		if i > 0 && size > attrSizes[i-1] {
			panic(fmt.Sprintf("storage: attribute sizes must not increase with column id; column %d", i))
		}
	}

	bl := BlockLayout{
		numCols:   uint16(len(attrSizes)),
		attrSizes: append([]uint8(nil), attrSizes...),
	}
	for _, size := range bl.attrSizes {
		bl.tupleSize += uint32(size)
	}
	// layout_version, num_records, num_slots, attr_offsets, num_attrs,
	// attr_sizes; padded so the first mini block starts 8-byte aligned.
	bl.headerSize = PadOffset(8, 4+4+4+4*uint32(bl.numCols)+2+uint32(bl.numCols))
	bl.numSlots = bl.computeNumSlots()
	return bl
}

func (bl BlockLayout) NumCols() uint16 {
	return bl.numCols
}

func (bl BlockLayout) AttrSize(col uint16) uint8 {
	if col >= bl.numCols {
		panic(fmt.Sprintf("storage: column %d out of range", col))
	}
	return bl.attrSizes[col]
}

// NumSlots is the number of tuples one block holds under this layout.
func (bl BlockLayout) NumSlots() uint32 {
	return bl.numSlots
}

func (bl BlockLayout) HeaderSize() uint32 {
	return bl.headerSize
}

// bitmapReserved is the number of bytes set aside for a mini block's null
// bitmap: enough for numSlots bits, padded so the values that follow are
// aligned and so that bitmap CAS words never overlap value bytes.
func (bl BlockLayout) bitmapReserved(col uint16, numSlots uint32) uint32 {
	align := uint32(bl.attrSizes[col])
	if align < 8 {
		align = 8
	}
	return PadOffset(align, common.BitmapSizeInBytes(numSlots))
}

// columnOffsets walks the columns in id order placing each mini block at the
// next 8-byte aligned offset: null bitmap first, then numSlots values.
// Returns the mini block offsets and the total footprint in bytes.
func (bl BlockLayout) columnOffsets(numSlots uint32) ([]uint32, uint32) {
	offsets := make([]uint32, bl.numCols)
	off := bl.headerSize
	for i := uint16(0); i < bl.numCols; i++ {
		off = PadOffset(8, off)
		offsets[i] = off
		off += bl.bitmapReserved(i, numSlots)
		off += numSlots * uint32(bl.attrSizes[i])
	}
	return offsets, off
}

// computeNumSlots finds the largest slot count whose footprint fits in a
// block. Each slot costs one bit per column plus its value bytes, which
// gives the starting estimate; padding is accounted for by walking the
// actual layout.
func (bl BlockLayout) computeNumSlots() uint32 {
	numSlots := (BlockSize - bl.headerSize) * 8 / (bl.tupleSize*8 + uint32(bl.numCols))
	for numSlots > 0 {
		if _, size := bl.columnOffsets(numSlots); size <= BlockSize {
			break
		}
		numSlots--
	}
	if numSlots == 0 {
		panic("storage: layout does not fit a single tuple in a block")
	}
	return numSlots
}
