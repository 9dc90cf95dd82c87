package conv

import (
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/kkoreilly/mazenet"
	"github.com/kkoreilly/mazenet/internal/textfmt"
)

// Filter is a fixed, named, square convolution kernel. Filters are not learned and cannot be
// changed once created.
type Filter struct {
	name    string
	dim     int
	weights *mat.Dense
	flat    []float64 // the weights, row by row
}

// NewFilter returns a filter with a copy of the weights of m, which must be square.
// If name is empty, the name is the concatenation of the weights row by row
// (a filter with weights [[1,0],[0,1]] is named "1001").
func NewFilter(m mat.Matrix, name string) (*Filter, error) {
	r, c := m.Dims()
	if r != c || r == 0 {
		return nil, mazenet.NewArgumentError("conv.filter", "filter", "filter must be square, got %dx%d", r, c)
	}
	f := &Filter{dim: r, weights: mat.DenseCopyOf(m)}
	f.flat = Flatten([]*mat.Dense{f.weights})
	if name == "" {
		var b strings.Builder
		for _, w := range f.flat {
			b.WriteString(textfmt.FormatFloat(w))
		}
		name = b.String()
	}
	if strings.ContainsAny(name, ",;:\n") {
		return nil, mazenet.NewArgumentError("conv.filter", "filter name", "%q contains a reserved character", name)
	}
	f.name = name
	return f, nil
}

// Name returns the name of the filter
func (f *Filter) Name() string {
	return f.name
}

// Dim returns the number of rows (and columns) of the filter
func (f *Filter) Dim() int {
	return f.dim
}

// At returns the weight at row i and column j
func (f *Filter) At(i, j int) float64 {
	return f.weights.At(i, j)
}

// Weights returns a copy of the weights
func (f *Filter) Weights() *mat.Dense {
	return mat.DenseCopyOf(f.weights)
}
