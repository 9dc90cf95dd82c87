package conv

import (
	"gonum.org/v1/gonum/mat"

	"github.com/kkoreilly/mazenet"
)

// NewMap returns a map with the given rows, which must all have the same non-zero length
func NewMap(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, mazenet.NewArgumentError("conv.map", "map", "map is empty")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, mazenet.NewArgumentError("conv.map", "map", "row %d has %d values, row 0 has %d", i, len(row), cols)
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// Flatten returns the values of the maps in order: each map in turn, row by row.
// This order is part of the serialization format of trained networks and must not change.
func Flatten(maps []*mat.Dense) []float64 {
	n := 0
	for _, m := range maps {
		r, c := m.Dims()
		n += r * c
	}
	flat := make([]float64, 0, n)
	for _, m := range maps {
		r, c := m.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				flat = append(flat, m.At(i, j))
			}
		}
	}
	return flat
}

// outputDim returns the size along one axis of the result of sliding a window of size k with
// the given stride over an axis of size in: 1 + (in - k) / stride. It is an error if that is
// not a positive integer.
func outputDim(op, what string, in, k, stride int) (int, error) {
	if stride < 1 {
		return 0, mazenet.NewConfigurationError(op, "stride %d for %s must be at least 1", stride, what)
	}
	if k < 1 {
		return 0, mazenet.NewConfigurationError(op, "%s has size %d", what, k)
	}
	d := in - k
	if d < 0 || d%stride != 0 {
		return 0, mazenet.NewConfigurationError(op, "stride %d with %s of size %d does not fit an input of size %d: 1 + (%d - %d) / %d is not a positive integer",
			stride, what, k, in, in, k, stride)
	}
	return 1 + d/stride, nil
}

func cloneMaps(maps []*mat.Dense) []*mat.Dense {
	res := make([]*mat.Dense, len(maps))
	for i, m := range maps {
		res[i] = mat.DenseCopyOf(m)
	}
	return res
}
