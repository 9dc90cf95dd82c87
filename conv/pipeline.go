// Package conv implements the convolutional front end of the maze agents: a set of fixed
// filters is convolved over a sensory map, the results are max-pooled and flattened, and
// the flattened values are fed into a mazenet.Network that makes the decision.
package conv

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kkoreilly/mazenet"
	"github.com/kkoreilly/mazenet/instrument"
)

// DecisionOutputs is the number of network outputs used by Run
const DecisionOutputs = 3

// Defaults for the networks a pipeline builds
const (
	DefaultEpochs = 1
	DefaultAlpha  = 0.1
)

const (
	runStride  = 1
	poolKernel = 2
	poolStride = 2
)

// Pipeline is a convolution -> pooling -> flatten -> network pipeline.
//
// Convolution and Pooling append to the generated and pooled maps; they are only cleared by
// ResetMaps or Clear. Run and Train replace the maps with those of their input unless the
// pipeline was created with WithAccumulate(true), and leave them unchanged if either stage fails.
//
// A Pipeline is not safe for concurrent use.
type Pipeline struct {
	filters   []*Filter
	generated []*mat.Dense
	pooled    []*mat.Dense
	network   *mazenet.Network
	outputs   []float64

	accumulate bool
	epochs     int
	alpha      float64
	seed       int64
	tracer     instrument.Tracer
}

// Option configures a pipeline
type Option func(p *Pipeline)

// WithTracer attaches a tracer to the pipeline and to the networks it builds
func WithTracer(t instrument.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithTraining sets the epochs and learning rate of the networks the pipeline builds
func WithTraining(epochs int, alpha float64) Option {
	return func(p *Pipeline) {
		p.epochs = epochs
		p.alpha = alpha
	}
}

// WithSeed sets the seed for the initial weights of the networks the pipeline builds
func WithSeed(seed int64) Option {
	return func(p *Pipeline) {
		p.seed = seed
	}
}

// WithAccumulate makes Run and Train keep the maps of earlier calls instead of resetting them
func WithAccumulate(on bool) Option {
	return func(p *Pipeline) {
		p.accumulate = on
	}
}

// New returns an empty pipeline
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		epochs: DefaultEpochs,
		alpha:  DefaultAlpha,
		tracer: instrument.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddFilter registers a filter with a copy of the weights of m, which must be square.
// If a filter with the same name is already registered, AddFilter does nothing.
func (p *Pipeline) AddFilter(m mat.Matrix, name string) error {
	f, err := NewFilter(m, name)
	if err != nil {
		return err
	}
	p.addFilter(f)
	return nil
}

func (p *Pipeline) addFilter(f *Filter) {
	for _, g := range p.filters {
		if g.name == f.name {
			p.tracer.Op("conv.addFilter.duplicate", zap.String("name", f.name))
			return
		}
	}
	p.filters = append(p.filters, f)
	p.tracer.Op("conv.addFilter", zap.String("name", f.name), zap.Int("dim", f.dim))
}

// Filters returns the registered filters in registration order
func (p *Pipeline) Filters() []*Filter {
	return append([]*Filter(nil), p.filters...)
}

// GeneratedMaps returns copies of the maps produced by Convolution
func (p *Pipeline) GeneratedMaps() []*mat.Dense {
	return cloneMaps(p.generated)
}

// PooledMaps returns copies of the maps produced by Pooling
func (p *Pipeline) PooledMaps() []*mat.Dense {
	return cloneMaps(p.pooled)
}

// Network returns the network of the pipeline, which is nil until it is built or set
func (p *Pipeline) Network() *mazenet.Network {
	return p.network
}

// Outputs returns a copy of the outputs of the last FullyConnected, Run, or Train
func (p *Pipeline) Outputs() []float64 {
	return append([]float64(nil), p.outputs...)
}

// Convolution slides every filter, in registration order, over input with the given stride
// and appends one map per filter to the generated maps. Each cell is the dot product of the
// filter and the window under it. If any filter does not fit, nothing is appended.
func (p *Pipeline) Convolution(input mat.Matrix, stride int) error {
	maps, err := p.convolve(input, stride)
	if err != nil {
		return err
	}
	p.generated = append(p.generated, maps...)
	return nil
}

func (p *Pipeline) convolve(input mat.Matrix, stride int) ([]*mat.Dense, error) {
	defer p.tracer.Time("conv.convolution", zap.Int("filters", len(p.filters)), zap.Int("stride", stride))()
	r, c := input.Dims()
	maps := make([]*mat.Dense, 0, len(p.filters))
	for _, f := range p.filters {
		what := "filter " + f.name
		outR, err := outputDim("conv.convolution", what, r, f.dim, stride)
		if err != nil {
			return nil, err
		}
		outC, err := outputDim("conv.convolution", what, c, f.dim, stride)
		if err != nil {
			return nil, err
		}
		out := mat.NewDense(outR, outC, nil)
		window := make([]float64, f.dim*f.dim)
		for i := 0; i < outR; i++ {
			for j := 0; j < outC; j++ {
				for a := 0; a < f.dim; a++ {
					for b := 0; b < f.dim; b++ {
						window[a*f.dim+b] = input.At(i*stride+a, j*stride+b)
					}
				}
				out.Set(i, j, floats.Dot(f.flat, window))
			}
		}
		maps = append(maps, out)
	}
	return maps, nil
}

// Pooling max-pools every generated map with a kernel x kernel window and the given stride
// and appends the results to the pooled maps. If any map does not fit, nothing is appended.
func (p *Pipeline) Pooling(kernel, stride int) error {
	maps, err := p.pool(p.generated, kernel, stride)
	if err != nil {
		return err
	}
	p.pooled = append(p.pooled, maps...)
	return nil
}

func (p *Pipeline) pool(generated []*mat.Dense, kernel, stride int) ([]*mat.Dense, error) {
	defer p.tracer.Time("conv.pooling", zap.Int("maps", len(generated)), zap.Int("kernel", kernel), zap.Int("stride", stride))()
	maps := make([]*mat.Dense, 0, len(generated))
	var window []float64
	for mi, m := range generated {
		r, c := m.Dims()
		outR, err := outputDim("conv.pooling", "pooling kernel", r, kernel, stride)
		if err != nil {
			return nil, errors.WithMessagef(err, "generated map %d", mi)
		}
		outC, err := outputDim("conv.pooling", "pooling kernel", c, kernel, stride)
		if err != nil {
			return nil, errors.WithMessagef(err, "generated map %d", mi)
		}
		out := mat.NewDense(outR, outC, nil)
		for i := 0; i < outR; i++ {
			for j := 0; j < outC; j++ {
				window = window[:0]
				for a := 0; a < kernel; a++ {
					for b := 0; b < kernel; b++ {
						window = append(window, m.At(i*stride+a, j*stride+b))
					}
				}
				out.Set(i, j, floats.Max(window))
			}
		}
		maps = append(maps, out)
	}
	return maps, nil
}

// FullyConnected flattens maps and runs (without training) a network on the result, storing
// and returning the outputs. If network is not nil it becomes the network of the pipeline;
// otherwise, if the pipeline has no network yet, one is built with the flattened length as
// inputs, no hidden layers, nOutputs outputs, and ReLU activations.
func (p *Pipeline) FullyConnected(nOutputs int, maps []*mat.Dense, network *mazenet.Network) ([]float64, error) {
	flat := Flatten(maps)
	if network != nil {
		p.network = network
	}
	if err := p.ensureNetwork(len(flat), nOutputs); err != nil {
		return nil, err
	}
	out, err := p.network.Run(flat)
	if err != nil {
		return nil, err
	}
	p.outputs = out
	return out, nil
}

// ensureNetwork builds the network if the pipeline does not have one yet
func (p *Pipeline) ensureNetwork(numInputs, numOutputs int) error {
	if p.network != nil {
		return nil
	}
	n, err := mazenet.NewNetwork(mazenet.Config{
		NumInputs:        numInputs,
		NumOutputs:       numOutputs,
		HiddenActivation: mazenet.ReLU,
		OutputActivation: mazenet.ReLU,
		Epochs:           p.epochs,
		LearningRate:     p.alpha,
		Seed:             p.seed,
	}, mazenet.WithTracer(p.tracer))
	if err != nil {
		return err
	}
	p.network = n
	p.tracer.Op("conv.buildNetwork", zap.Int("inputs", numInputs), zap.Int("outputs", numOutputs))
	return nil
}

// features runs the convolution and pooling stages used by Run and Train. The maps of the
// pipeline are only replaced (or, when accumulating, extended) once both stages succeed.
func (p *Pipeline) features(input mat.Matrix) error {
	if len(p.filters) == 0 {
		return mazenet.NewConfigurationError("conv.run", "no filters registered")
	}
	var generated, pooled []*mat.Dense
	if p.accumulate {
		generated = append(generated, p.generated...)
		pooled = append(pooled, p.pooled...)
	}
	maps, err := p.convolve(input, runStride)
	if err != nil {
		return err
	}
	generated = append(generated, maps...)
	maps, err = p.pool(generated, poolKernel, poolStride)
	if err != nil {
		return err
	}
	p.generated = generated
	p.pooled = append(pooled, maps...)
	return nil
}

// Run convolves, pools, and runs the network on input with DecisionOutputs outputs, and
// returns the largest output value truncated to an int. Note that this is the value itself,
// not its position; use Argmax on Outputs to get the position.
func (p *Pipeline) Run(input mat.Matrix) (int, error) {
	defer p.tracer.Time("conv.run")()
	if err := p.features(input); err != nil {
		return 0, err
	}
	out, err := p.FullyConnected(DecisionOutputs, p.pooled, nil)
	if err != nil {
		return 0, err
	}
	return int(floats.Max(out)), nil
}

// Train convolves and pools input and trains the network on the flattened pooled maps with
// the desired outputs, building the network with len(desired) outputs if there is none.
// It stores and returns the outputs of the last training epoch.
func (p *Pipeline) Train(input mat.Matrix, desired []float64) ([]float64, error) {
	return p.TrainContext(context.Background(), input, desired)
}

// TrainContext is Train with a cancellation check before every epoch
func (p *Pipeline) TrainContext(ctx context.Context, input mat.Matrix, desired []float64) ([]float64, error) {
	defer p.tracer.Time("conv.train", zap.Int("outputs", len(desired)))()
	if err := p.features(input); err != nil {
		return nil, err
	}
	flat := Flatten(p.pooled)
	if err := p.ensureNetwork(len(flat), len(desired)); err != nil {
		return nil, err
	}
	out, err := p.network.TrainContext(ctx, flat, desired)
	if err != nil {
		return nil, err
	}
	p.outputs = out
	return out, nil
}

// ClearOptions selects what Clear resets
type ClearOptions struct {
	Outputs bool // the stored outputs
	Maps    bool // the generated and pooled maps
	Filters bool // the registered filters
	Network bool // the network, which will be rebuilt on the next use
}

// ClearAll resets everything
var ClearAll = ClearOptions{Outputs: true, Maps: true, Filters: true, Network: true}

// Clear resets the selected parts of the pipeline
func (p *Pipeline) Clear(opts ClearOptions) {
	if opts.Outputs {
		p.outputs = nil
	}
	if opts.Maps {
		p.ResetMaps()
	}
	if opts.Filters {
		p.filters = nil
	}
	if opts.Network {
		p.network = nil
	}
	p.tracer.Op("conv.clear", zap.Bool("outputs", opts.Outputs), zap.Bool("maps", opts.Maps),
		zap.Bool("filters", opts.Filters), zap.Bool("network", opts.Network))
}

// ResetMaps discards the generated and pooled maps
func (p *Pipeline) ResetMaps() {
	p.generated = nil
	p.pooled = nil
}
