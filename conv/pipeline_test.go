package conv

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/kkoreilly/mazenet"
)

// filled returns an r x c map with every cell set to v
func filled(r, c int, v float64) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = v
	}
	return mat.NewDense(r, c, data)
}

// sequence returns an r x c map holding 1, 2, 3, ... row by row
func sequence(r, c int) *mat.Dense {
	data := make([]float64, r*c)
	for i := range data {
		data[i] = float64(i + 1)
	}
	return mat.NewDense(r, c, data)
}

func TestConvolutionSingleCell(t *testing.T) {
	p := New()
	require.NoError(t, p.AddFilter(filled(3, 3, 1), "ones"))
	require.NoError(t, p.Convolution(filled(3, 3, 1), 1))

	maps := p.GeneratedMaps()
	require.Len(t, maps, 1)
	r, c := maps[0].Dims()
	assert.Equal(t, 1, r)
	assert.Equal(t, 1, c)
	// 9 ones times 9 ones
	assert.Equal(t, 9.0, maps[0].At(0, 0))
}

func TestConvolutionValues(t *testing.T) {
	p := New()
	require.NoError(t, p.AddFilter(mat.NewDense(2, 2, []float64{1, 0, 0, 2}), ""))
	require.NoError(t, p.Convolution(sequence(3, 3), 1))
	// windows of [[1,2,3],[4,5,6],[7,8,9]]: 1*a + 2*d
	want := mat.NewDense(2, 2, []float64{1 + 2*5, 2 + 2*6, 4 + 2*8, 5 + 2*9})
	assert.True(t, mat.Equal(want, p.GeneratedMaps()[0]), "got %v", mat.Formatted(p.GeneratedMaps()[0]))
}

func TestConvolutionStride(t *testing.T) {
	p := New()
	require.NoError(t, p.AddFilter(filled(1, 1, 1), "id"))
	require.NoError(t, p.Convolution(sequence(5, 5), 2))
	want := mat.NewDense(3, 3, []float64{1, 3, 5, 11, 13, 15, 21, 23, 25})
	assert.True(t, mat.Equal(want, p.GeneratedMaps()[0]))
}

func TestConvolutionOnePerFilter(t *testing.T) {
	p := New()
	require.NoError(t, p.AddFilter(filled(1, 1, 1), "a"))
	require.NoError(t, p.AddFilter(filled(1, 1, 2), "b"))
	require.NoError(t, p.AddFilter(filled(3, 3, 1), "c"))
	require.NoError(t, p.Convolution(filled(3, 3, 1), 1))
	maps := p.GeneratedMaps()
	require.Len(t, maps, 3)
	assert.Equal(t, 1.0, maps[0].At(2, 2))
	assert.Equal(t, 2.0, maps[1].At(2, 2))
	assert.Equal(t, 9.0, maps[2].At(0, 0))

	// the maps accumulate until they are reset
	require.NoError(t, p.Convolution(filled(3, 3, 1), 1))
	assert.Len(t, p.GeneratedMaps(), 6)
	p.ResetMaps()
	assert.Empty(t, p.GeneratedMaps())
}

func TestPoolingMax(t *testing.T) {
	p := New()
	// a 1x1 identity filter copies the input into the generated maps
	require.NoError(t, p.AddFilter(filled(1, 1, 1), "id"))
	require.NoError(t, p.Convolution(sequence(4, 4), 1))
	require.NoError(t, p.Pooling(2, 2))

	pooled := p.PooledMaps()
	require.Len(t, pooled, 1)
	// [[1,2,3,4],      -> [[6,8],
	//  [5,6,7,8],         [14,16]]
	//  [9,10,11,12],
	//  [13,14,15,16]]
	want := mat.NewDense(2, 2, []float64{6, 8, 14, 16})
	assert.True(t, mat.Equal(want, pooled[0]), "got %v", mat.Formatted(pooled[0]))
}

func TestPoolingOverlapping(t *testing.T) {
	p := New()
	require.NoError(t, p.AddFilter(filled(1, 1, 1), "id"))
	require.NoError(t, p.Convolution(mat.NewDense(3, 3, []float64{9, 1, 1, 1, 1, 1, 1, 1, 7}), 1))
	require.NoError(t, p.Pooling(2, 1))
	want := mat.NewDense(2, 2, []float64{9, 1, 1, 7})
	assert.True(t, mat.Equal(want, p.PooledMaps()[0]))
}

func TestDimensionErrorsDoNotMutate(t *testing.T) {
	for in := 1; in <= 7; in++ {
		for k := 1; k <= in+1; k++ {
			for stride := 1; stride <= 4; stride++ {
				fits := k <= in && (in-k)%stride == 0

				p := New()
				require.NoError(t, p.AddFilter(filled(k, k, 1), "k"))
				err := p.Convolution(filled(in, in, 1), stride)
				if fits {
					assert.NoError(t, err, "in=%d k=%d stride=%d", in, k, stride)
					continue
				}
				var ce *mazenet.ConfigurationError
				assert.True(t, errors.As(err, &ce), "in=%d k=%d stride=%d: got %v", in, k, stride, err)
				assert.Empty(t, p.GeneratedMaps(), "in=%d k=%d stride=%d", in, k, stride)

				q := New()
				require.NoError(t, q.AddFilter(filled(1, 1, 1), "id"))
				require.NoError(t, q.Convolution(filled(in, in, 1), 1))
				err = q.Pooling(k, stride)
				assert.True(t, errors.As(err, &ce), "pool in=%d k=%d stride=%d: got %v", in, k, stride, err)
				assert.Empty(t, q.PooledMaps(), "pool in=%d k=%d stride=%d", in, k, stride)
			}
		}
	}
}

func TestConvolutionFailureAppendsNothing(t *testing.T) {
	p := New()
	require.NoError(t, p.AddFilter(filled(1, 1, 1), "id"))
	require.NoError(t, p.AddFilter(filled(3, 3, 1), "big"))
	err := p.Convolution(filled(2, 2, 1), 1)
	var ce *mazenet.ConfigurationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Contains(t, err.Error(), "filter big")
	assert.Empty(t, p.GeneratedMaps(), "the map of the filter that fit must not be kept")
}

func TestRunPoolingFailureKeepsMaps(t *testing.T) {
	for _, accumulate := range []bool{false, true} {
		p := New(WithAccumulate(accumulate))
		require.NoError(t, p.AddFilter(filled(1, 1, 1), "id"))
		_, err := p.Run(sequence(4, 4))
		require.NoError(t, err)
		outputs := p.Outputs()

		// a 3x3 map convolves fine but cannot be pooled with a 2x2 kernel and stride 2
		_, err = p.Run(sequence(3, 3))
		var ce *mazenet.ConfigurationError
		require.True(t, errors.As(err, &ce), "accumulate=%v: got %v", accumulate, err)
		_, err = p.Train(sequence(3, 3), []float64{1, 0, 0})
		require.True(t, errors.As(err, &ce), "accumulate=%v: got %v", accumulate, err)

		gen, pooled := p.GeneratedMaps(), p.PooledMaps()
		require.Len(t, gen, 1, "accumulate=%v", accumulate)
		require.Len(t, pooled, 1, "accumulate=%v", accumulate)
		assert.True(t, mat.Equal(sequence(4, 4), gen[0]), "accumulate=%v", accumulate)
		assert.True(t, mat.Equal(mat.NewDense(2, 2, []float64{6, 8, 14, 16}), pooled[0]), "accumulate=%v", accumulate)
		assert.Equal(t, outputs, p.Outputs(), "accumulate=%v", accumulate)
	}
}

func TestZeroStride(t *testing.T) {
	p := New()
	require.NoError(t, p.AddFilter(filled(1, 1, 1), "id"))
	var ce *mazenet.ConfigurationError
	assert.True(t, errors.As(p.Convolution(filled(2, 2, 1), 0), &ce))
	require.NoError(t, p.Convolution(filled(2, 2, 1), 1))
	assert.True(t, errors.As(p.Pooling(1, 0), &ce))
	assert.True(t, errors.As(p.Pooling(0, 1), &ce))
}

func TestAddFilterDuplicateName(t *testing.T) {
	p := New()
	require.NoError(t, p.AddFilter(filled(2, 2, 1), "edge"))
	require.NoError(t, p.AddFilter(filled(3, 3, 5), "edge"))
	filters := p.Filters()
	require.Len(t, filters, 1)
	// the first filter is kept
	assert.Equal(t, 2, filters[0].Dim())
	assert.Equal(t, 1.0, filters[0].At(1, 1))
}

func TestAddFilterNonSquare(t *testing.T) {
	p := New()
	err := p.AddFilter(mat.NewDense(2, 3, nil), "wide")
	var ae *mazenet.ArgumentError
	require.True(t, errors.As(err, &ae), "got %v", err)
	assert.Empty(t, p.Filters())
}

func TestFilterName(t *testing.T) {
	f, err := NewFilter(mat.NewDense(2, 2, []float64{1, 0, 0, 1}), "")
	require.NoError(t, err)
	assert.Equal(t, "1001", f.Name())

	_, err = NewFilter(filled(1, 1, 1), "a,b")
	var ae *mazenet.ArgumentError
	assert.True(t, errors.As(err, &ae))

	// the filter keeps its own copy of the weights
	m := filled(2, 2, 3)
	f, err = NewFilter(m, "threes")
	require.NoError(t, err)
	m.Set(0, 0, 8)
	assert.Equal(t, 3.0, f.At(0, 0))
	w := f.Weights()
	w.Set(0, 0, 8)
	assert.Equal(t, 3.0, f.At(0, 0))
}

func TestFlattenOrder(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(2, 2, []float64{5, 6, 7, 8})
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, Flatten([]*mat.Dense{a, b}))
}

func TestFullyConnectedBuildsNetwork(t *testing.T) {
	p := New()
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(2, 2, []float64{5, 6, 7, 8})
	out, err := p.FullyConnected(3, []*mat.Dense{a, b}, nil)
	require.NoError(t, err)
	assert.Len(t, out, 3)

	n := p.Network()
	require.NotNil(t, n)
	assert.Equal(t, 8, n.NumInputs())
	assert.Equal(t, 3, n.NumOutputs())
	require.Len(t, n.Layers, 2, "no hidden layers")
	assert.Equal(t, mazenet.ReLU, n.Layers[1].Neurons[0].Activation)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, n.Layers[1].Neurons[0].Inputs)
	assert.Equal(t, out, p.Outputs())

	// the network is kept, so a different input size is now an error
	_, err = p.FullyConnected(3, []*mat.Dense{a}, nil)
	var ae *mazenet.ArgumentError
	assert.True(t, errors.As(err, &ae), "got %v", err)
}

// decisionNetwork has 4 inputs and 3 ReLU outputs: the first input, the sum of the inputs, and 0
func decisionNetwork(t *testing.T) *mazenet.Network {
	t.Helper()
	in := make([]mazenet.Neuron, 4)
	for i := range in {
		in[i] = mazenet.NewInputNeuron(mazenet.ReLU)
	}
	n, err := mazenet.NewNetworkFromLayers([]mazenet.Layer{
		{Neurons: in},
		{Neurons: []mazenet.Neuron{
			{Weights: []float64{1, 0, 0, 0}, Activation: mazenet.ReLU},
			{Weights: []float64{1, 1, 1, 1}, Activation: mazenet.ReLU},
			{Weights: []float64{0, 0, 0, 0}, Activation: mazenet.ReLU},
		}},
	}, 1, 0.1)
	require.NoError(t, err)
	return n
}

func TestRunReturnsMaxValue(t *testing.T) {
	p := New()
	require.NoError(t, p.AddFilter(filled(2, 2, 1), "box"))
	_, err := p.FullyConnected(DecisionOutputs, []*mat.Dense{filled(2, 2, 0)}, decisionNetwork(t))
	require.NoError(t, err)

	// 5x5 ones -> 4x4 fours -> 2x2 fours -> [4, 4, 4, 4]
	decision, err := p.Run(filled(5, 5, 1))
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 16, 0}, p.Outputs())
	// the decision is the largest value, not its position
	assert.Equal(t, 16, decision)
	assert.Equal(t, 1, p.Action())
	v := p.Scores()
	assert.Equal(t, float32(4), v.X)
	assert.Equal(t, float32(16), v.Y)
	assert.Equal(t, float32(0), v.Z)

	// maps are reset at the start of every run
	again, err := p.Run(filled(5, 5, 1))
	require.NoError(t, err)
	assert.Equal(t, decision, again)
	assert.Len(t, p.GeneratedMaps(), 1)
	assert.Len(t, p.PooledMaps(), 1)
}

func TestRunAccumulate(t *testing.T) {
	p := New(WithAccumulate(true))
	require.NoError(t, p.AddFilter(filled(2, 2, 1), "box"))
	_, err := p.Run(filled(5, 5, 1))
	require.NoError(t, err)
	assert.Equal(t, 4, p.Network().NumInputs())

	// the second run sees the pooled maps of both runs, which no longer fit the network
	_, err = p.Run(filled(5, 5, 1))
	var ae *mazenet.ArgumentError
	assert.True(t, errors.As(err, &ae), "got %v", err)
	// pooling runs over every generated map again: 1 from the first run, 2 from the second
	assert.Len(t, p.GeneratedMaps(), 2)
	assert.Len(t, p.PooledMaps(), 3)
}

func TestRunWithoutFilters(t *testing.T) {
	_, err := New().Run(filled(4, 4, 1))
	var ce *mazenet.ConfigurationError
	assert.True(t, errors.As(err, &ce), "got %v", err)
}

func TestTrain(t *testing.T) {
	p := New(WithTraining(3, 0.2), WithSeed(5))
	require.NoError(t, p.AddFilter(filled(2, 2, 1), "box"))
	out, err := p.Train(filled(5, 5, 1), []float64{1, 0})
	require.NoError(t, err)
	assert.Equal(t, out, p.Outputs())

	n := p.Network()
	require.NotNil(t, n)
	assert.Equal(t, 4, n.NumInputs())
	assert.Equal(t, 2, n.NumOutputs())

	// the same as training a network of the same shape directly on the flattened pooled maps
	direct, err := mazenet.NewNetwork(mazenet.Config{
		NumInputs: 4, NumOutputs: 2, HiddenActivation: mazenet.ReLU, OutputActivation: mazenet.ReLU,
		Epochs: 3, LearningRate: 0.2, Seed: 5,
	})
	require.NoError(t, err)
	want, err := direct.Train([]float64{4, 4, 4, 4}, []float64{1, 0})
	require.NoError(t, err)
	assert.Equal(t, want, out)
	assert.Equal(t, direct.Serialize(), n.Serialize())
}

func TestClear(t *testing.T) {
	p := New()
	require.NoError(t, p.AddFilter(filled(2, 2, 1), "box"))
	_, err := p.Run(filled(5, 5, 1))
	require.NoError(t, err)

	p.Clear(ClearOptions{Outputs: true})
	assert.Empty(t, p.Outputs())
	assert.Len(t, p.GeneratedMaps(), 1)
	assert.NotNil(t, p.Network())

	p.Clear(ClearOptions{Maps: true})
	assert.Empty(t, p.GeneratedMaps())
	assert.Empty(t, p.PooledMaps())
	assert.Len(t, p.Filters(), 1)

	p.Clear(ClearOptions{Network: true})
	assert.Nil(t, p.Network())
	assert.Len(t, p.Filters(), 1)

	p.Clear(ClearAll)
	assert.Empty(t, p.Filters())
}

func TestArgmax(t *testing.T) {
	assert.Equal(t, -1, Argmax(nil))
	assert.Equal(t, 2, Argmax([]float64{0.1, 0.2, 0.9}))
	assert.Equal(t, 0, Argmax([]float64{3, 3, 1}))
	assert.Equal(t, -1, New().Action())
}

func TestNewMap(t *testing.T) {
	m, err := NewMap([][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	r, c := m.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 6.0, m.At(2, 1))

	var ae *mazenet.ArgumentError
	_, err = NewMap([][]float64{{1, 2}, {3}})
	assert.True(t, errors.As(err, &ae))
	_, err = NewMap(nil)
	assert.True(t, errors.As(err, &ae))
}
