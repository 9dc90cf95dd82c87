package mazenet

// Neuron is a single unit of a network layer
type Neuron struct {
	IsInput       bool           // whether this neuron is on the input layer
	InputValue    float64        // the value given to an input neuron; also the scalar input term of the training rule
	Bias          float64        // subtracted from the weighted sum of the inputs
	OutputValue   float64        // the activation value computed on the last forward pass
	ErrorGradient float64        // the gradient stored by the last training epoch
	Weights       []float64      // one weight per neuron on the previous layer; empty for input neurons
	Inputs        []float64      // the outputs of the previous layer seen on the last forward pass
	Activation    ActivationFunc // the activation function of the neuron
}

// NewInputNeuron returns a neuron for the input layer
func NewInputNeuron(af ActivationFunc) Neuron {
	return Neuron{IsInput: true, Activation: af}
}

// forward computes the output value of the neuron from the layer below it.
// A weight count that does not match the layer below is a construction bug and panics.
func (n *Neuron) forward(below []Neuron) {
	if n.IsInput {
		n.OutputValue = n.InputValue
		return
	}
	if len(below) != len(n.Weights) {
		panic(NewConfigurationError("neuron.forward", "%d weights for %d inputs", len(n.Weights), len(below)))
	}
	if cap(n.Inputs) < len(below) {
		n.Inputs = make([]float64, len(below))
	}
	n.Inputs = n.Inputs[:len(below)]
	// summed left to right so that identical weights always give bit-identical outputs
	var sum float64
	for i := range below {
		n.Inputs[i] = below[i].OutputValue
		sum += n.Inputs[i] * n.Weights[i]
	}
	sum -= n.Bias
	n.OutputValue = n.Activation.Activate(sum)
}

func (n Neuron) clone() Neuron {
	c := n
	c.Weights = append([]float64(nil), n.Weights...)
	c.Inputs = append([]float64(nil), n.Inputs...)
	return c
}

// Layer represents one layer (input, hidden, or output) of a neural network
type Layer struct {
	Neurons []Neuron // the neurons on this layer, in order
}

// Len returns the number of neurons on the layer
func (l *Layer) Len() int {
	return len(l.Neurons)
}

// Outputs returns a copy of the output values of the neurons on the layer
func (l *Layer) Outputs() []float64 {
	res := make([]float64, len(l.Neurons))
	for i := range l.Neurons {
		res[i] = l.Neurons[i].OutputValue
	}
	return res
}

// gradientSum returns the sum of the error gradients stored on the layer
func (l *Layer) gradientSum() float64 {
	var sum float64
	for i := range l.Neurons {
		sum += l.Neurons[i].ErrorGradient
	}
	return sum
}
