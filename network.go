// Package mazenet implements a feedforward neural network with the backpropagation rule
// used by the maze agents, and a text format that round-trips a live network.
package mazenet

import (
	"math/rand"

	"go.uber.org/zap"

	"github.com/kkoreilly/mazenet/instrument"
)

// Network is a feedforward neural network
type Network struct {
	Layers       []Layer // the layers of the network; the first is the input layer and the last is the output layer
	Epochs       int     // the number of training iterations run on each sample
	LearningRate float64 // the rate at which the network learns (alpha)

	tracer instrument.Tracer
}

// Config contains the information needed to build a new network
type Config struct {
	NumInputs        int            `yaml:"inputs"`           // the number of inputs
	NumHiddenLayers  int            `yaml:"hiddenLayers"`     // the number of hidden layers
	NumHiddenUnits   int            `yaml:"hiddenUnits"`      // the number of units per hidden layer
	NumOutputs       int            `yaml:"outputs"`          // the number of outputs
	HiddenActivation ActivationFunc `yaml:"hiddenActivation"` // the activation function of the hidden layers
	OutputActivation ActivationFunc `yaml:"outputActivation"` // the activation function of the output layer
	Epochs           int            `yaml:"epochs"`           // the number of training iterations per sample
	LearningRate     float64        `yaml:"alpha"`            // the learning rate
	Seed             int64          `yaml:"seed"`             // the seed for the initial weights
}

// Validate returns a *ConfigurationError describing the first problem with c, if any
func (c Config) Validate() error {
	switch {
	case c.NumInputs < 1:
		return NewConfigurationError("network.config", "need at least one input, got %d", c.NumInputs)
	case c.NumOutputs < 1:
		return NewConfigurationError("network.config", "need at least one output, got %d", c.NumOutputs)
	case c.NumHiddenLayers < 0:
		return NewConfigurationError("network.config", "negative number of hidden layers %d", c.NumHiddenLayers)
	case c.NumHiddenLayers > 0 && c.NumHiddenUnits < 1:
		return NewConfigurationError("network.config", "%d hidden layers with %d units each", c.NumHiddenLayers, c.NumHiddenUnits)
	case c.Epochs < 0:
		return NewConfigurationError("network.config", "negative number of epochs %d", c.Epochs)
	}
	if err := c.HiddenActivation.Validate(); err != nil {
		return err
	}
	return c.OutputActivation.Validate()
}

// Option configures a network when it is built
type Option func(n *Network)

// WithTracer attaches a tracer to the network instead of instrument.Default()
func WithTracer(t instrument.Tracer) Option {
	return func(n *Network) {
		if t != nil {
			n.tracer = t
		}
	}
}

// NewNetwork creates and returns a new network with the given configuration.
// Weights are drawn uniformly from [-1, 1) with c.Seed, and biases start at 0.
func NewNetwork(c Config, opts ...Option) (*Network, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(c.Seed))
	// we add two to account for the input and output layers
	layers := make([]Layer, c.NumHiddenLayers+2)
	layers[0].Neurons = make([]Neuron, c.NumInputs)
	for i := range layers[0].Neurons {
		layers[0].Neurons[i] = NewInputNeuron(c.HiddenActivation)
	}
	for li := 1; li < len(layers); li++ {
		numUnits, af := c.NumHiddenUnits, c.HiddenActivation
		if li == len(layers)-1 {
			numUnits, af = c.NumOutputs, c.OutputActivation
		}
		// each unit has one weight per unit on the layer below
		numBelow := len(layers[li-1].Neurons)
		layers[li].Neurons = make([]Neuron, numUnits)
		for ui := range layers[li].Neurons {
			weights := make([]float64, numBelow)
			for wi := range weights {
				weights[wi] = rng.Float64()*2 - 1
			}
			layers[li].Neurons[ui] = Neuron{Weights: weights, Activation: af}
		}
	}
	return NewNetworkFromLayers(layers, c.Epochs, c.LearningRate, opts...)
}

// NewNetworkFromLayers returns a network made of the given layers, which it takes ownership of.
// It returns a *ConfigurationError if the layers do not form a valid network.
func NewNetworkFromLayers(layers []Layer, epochs int, learningRate float64, opts ...Option) (*Network, error) {
	n := &Network{
		Layers:       layers,
		Epochs:       epochs,
		LearningRate: learningRate,
		tracer:       instrument.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// Validate checks the structural invariants of the network
func (n *Network) Validate() error {
	if len(n.Layers) < 2 {
		return NewConfigurationError("network", "need at least 2 layers, got %d", len(n.Layers))
	}
	if n.Epochs < 0 {
		return NewConfigurationError("network", "negative number of epochs %d", n.Epochs)
	}
	for li := range n.Layers {
		l := &n.Layers[li]
		if l.Len() == 0 {
			return NewConfigurationError("network", "layer %d has no neurons", li)
		}
		for ui := range l.Neurons {
			u := &l.Neurons[ui]
			if err := u.Activation.Validate(); err != nil {
				return err
			}
			if li == 0 {
				if !u.IsInput || len(u.Weights) != 0 {
					return NewConfigurationError("network", "neuron %d of the input layer must be an input neuron without weights", ui)
				}
				continue
			}
			if u.IsInput {
				return NewConfigurationError("network", "input neuron %d on layer %d", ui, li)
			}
			if len(u.Weights) != n.Layers[li-1].Len() {
				return NewConfigurationError("network", "neuron %d on layer %d has %d weights, but the layer below has %d neurons",
					ui, li, len(u.Weights), n.Layers[li-1].Len())
			}
			if len(u.Inputs) != 0 && len(u.Inputs) != len(u.Weights) {
				return NewConfigurationError("network", "neuron %d on layer %d has %d cached inputs for %d weights",
					ui, li, len(u.Inputs), len(u.Weights))
			}
		}
		if li > 0 {
			for ui := 1; ui < l.Len(); ui++ {
				if l.Neurons[ui].Activation != l.Neurons[0].Activation {
					return NewConfigurationError("network", "layer %d mixes activation functions %v and %v",
						li, l.Neurons[0].Activation, l.Neurons[ui].Activation)
				}
			}
		}
	}
	return nil
}

// NumInputs returns the number of inputs of the network
func (n *Network) NumInputs() int {
	return n.Layers[0].Len()
}

// NumOutputs returns the number of outputs of the network
func (n *Network) NumOutputs() int {
	return n.Layers[len(n.Layers)-1].Len()
}

// Outputs returns the output values computed by the last forward pass
func (n *Network) Outputs() []float64 {
	return n.Layers[len(n.Layers)-1].Outputs()
}

// Tracer returns the tracer attached to the network
func (n *Network) Tracer() instrument.Tracer {
	return n.tracer
}

// Run computes the forward propagation pass for the given inputs and returns the outputs
func (n *Network) Run(inputs []float64) ([]float64, error) {
	if len(inputs) != n.NumInputs() {
		return nil, NewSizeError("network.run", "inputs", n.NumInputs(), len(inputs))
	}
	defer n.tracer.Time("network.run", zap.Int("inputs", len(inputs)))()
	n.forward(inputs)
	return n.Outputs(), nil
}

// forward sets the inputs and evaluates every layer in order
func (n *Network) forward(inputs []float64) {
	in := n.Layers[0].Neurons
	for i := range in {
		in[i].InputValue = inputs[i]
		in[i].OutputValue = inputs[i]
	}
	for li := 1; li < len(n.Layers); li++ {
		below := n.Layers[li-1].Neurons
		for ui := range n.Layers[li].Neurons {
			n.Layers[li].Neurons[ui].forward(below)
		}
	}
}

// Clone returns a deep copy of the network that shares its tracer
func (n *Network) Clone() *Network {
	c := &Network{
		Layers:       make([]Layer, len(n.Layers)),
		Epochs:       n.Epochs,
		LearningRate: n.LearningRate,
		tracer:       n.tracer,
	}
	for li, l := range n.Layers {
		c.Layers[li].Neurons = make([]Neuron, len(l.Neurons))
		for ui, u := range l.Neurons {
			c.Layers[li].Neurons[ui] = u.clone()
		}
	}
	return c
}
