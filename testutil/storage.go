package testutil

import (
	"bytes"
	"math/rand"
	"sort"

	"github.com/aaron-tian/terrier/storage"
)

// RandomLayout returns a layout with between 2 and maxCols columns, column
// 0 pointer sized and the rest random sizes in non-increasing order.
func RandomLayout(maxCols uint16, r *rand.Rand) storage.BlockLayout {
	numCols := 2 + r.Intn(int(maxCols)-1)
	sizes := make([]uint8, numCols)
	sizes[0] = 8
	candidates := []uint8{8, 4, 2, 1}
	for i := 1; i < numCols; i++ {
		sizes[i] = candidates[r.Intn(len(candidates))]
	}
	sort.Slice(sizes[1:], func(i, j int) bool {
		return sizes[1+i] > sizes[1+j]
	})
	return storage.NewBlockLayout(sizes)
}

// ProjectionListAllColumns returns every column id except the presence
// column.
func ProjectionListAllColumns(layout storage.BlockLayout) []uint16 {
	ids := make([]uint16, 0, layout.NumCols()-1)
	for col := uint16(1); col < layout.NumCols(); col++ {
		ids = append(ids, col)
	}
	return ids
}

// ProjectionListRandomColumns returns a random non-empty subset of the
// layout's columns, the presence column excluded.
func ProjectionListRandomColumns(layout storage.BlockLayout, r *rand.Rand) []uint16 {
	n := int(layout.NumCols()) - 1
	k := 1 + r.Intn(n)
	ids := make([]uint16, 0, k)
	for _, i := range r.Perm(n)[:k] {
		ids = append(ids, uint16(i+1))
	}
	return ids
}

// FillWithRandomBytes overwrites the first size bytes of buf.
func FillWithRandomBytes(size uint8, buf []byte, r *rand.Rand) {
	for i := uint8(0); i < size; i++ {
		buf[i] = byte(r.Intn(256))
	}
}

// PopulateRandomRow fills every column of the row with random bytes, or
// null with probability nullBias.
func PopulateRandomRow(row storage.ProjectedRow, layout storage.BlockLayout,
	nullBias float64, r *rand.Rand) {

	for i := uint16(0); i < row.NumColumns(); i++ {
		if r.Float64() < nullBias {
			row.SetNull(i)
		} else {
			FillWithRandomBytes(layout.AttrSize(row.ColumnID(i)), row.AccessForceNotNull(i), r)
		}
	}
}

// RowsEqual reports whether two projected rows over the same column list
// hold identical values and nulls.
func RowsEqual(layout storage.BlockLayout, a storage.ProjectedRow, b storage.ProjectedRow) bool {
	if a.NumColumns() != b.NumColumns() {
		return false
	}
	for i := uint16(0); i < a.NumColumns(); i++ {
		if a.ColumnID(i) != b.ColumnID(i) {
			return false
		}
		av := a.AccessWithNullCheck(i)
		bv := b.AccessWithNullCheck(i)
		if (av == nil) != (bv == nil) {
			return false
		}
		if av != nil {
			size := layout.AttrSize(a.ColumnID(i))
			if !bytes.Equal(av[:size], bv[:size]) {
				return false
			}
		}
	}
	return true
}
