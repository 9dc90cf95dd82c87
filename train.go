package mazenet

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Sample is one training example: the inputs and the outputs the network should produce for them
type Sample struct {
	Inputs  []float64 `yaml:"inputs"`
	Desired []float64 `yaml:"desired"`
}

// Train trains the network on a single sample for Epochs iterations and returns the outputs
// of the last forward pass
func (n *Network) Train(inputs, desired []float64) ([]float64, error) {
	return n.TrainContext(context.Background(), inputs, desired)
}

// TrainContext is Train with a cancellation check before every epoch
func (n *Network) TrainContext(ctx context.Context, inputs, desired []float64) ([]float64, error) {
	if len(inputs) != n.NumInputs() {
		return nil, NewSizeError("network.train", "inputs", n.NumInputs(), len(inputs))
	}
	if len(desired) != n.NumOutputs() {
		return nil, NewSizeError("network.train", "desired outputs", n.NumOutputs(), len(desired))
	}
	defer n.tracer.Time("network.train", zap.Int("epochs", n.Epochs), zap.Float64("alpha", n.LearningRate))()
	var outputs []float64
	for epoch := 0; epoch < n.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrapf(err, "network.train: stopped before epoch %d", epoch)
		}
		n.forward(inputs)
		outputs = n.Outputs()
		n.back(desired)
	}
	return outputs, nil
}

// TrainBatch trains the network on each sample in turn, running all of the epochs on one
// sample before moving on to the next. It returns the final outputs for each sample.
func (n *Network) TrainBatch(samples []Sample) ([][]float64, error) {
	return n.TrainBatchContext(context.Background(), samples)
}

// TrainBatchContext is TrainBatch with a cancellation check before every epoch
func (n *Network) TrainBatchContext(ctx context.Context, samples []Sample) ([][]float64, error) {
	defer n.tracer.Time("network.trainBatch", zap.Int("samples", len(samples)))()
	res := make([][]float64, len(samples))
	for i, s := range samples {
		out, err := n.TrainContext(ctx, s.Inputs, s.Desired)
		if err != nil {
			return res[:i], errors.WithMessagef(err, "sample %d", i)
		}
		res[i] = out
	}
	return res, nil
}

// back computes the backward error propagation pass for the desired outputs.
//
// The update rule is the one existing trained models were produced with, and is kept exactly:
// weights move by alpha * InputValue * error, the output gradient is the derivative taken at
// output*error, hidden gradients take the derivative at the index of the output layer, and
// biases are replaced rather than accumulated.
func (n *Network) back(desired []float64) {
	alpha := n.LearningRate
	outIdx := len(n.Layers) - 1

	out := n.Layers[outIdx].Neurons
	for i := range out {
		u := &out[i]
		err := desired[i] - u.OutputValue
		grad := u.Activation.Derivative(u.OutputValue * err)
		for j := range u.Weights {
			u.Weights[j] += alpha * u.InputValue * err
		}
		u.Bias = alpha * -1 * grad
		u.ErrorGradient = grad
	}

	// hidden layers, from the one nearest the output down to the one above the input layer
	for li := outIdx - 1; li > 0; li-- {
		sum := n.Layers[li+1].gradientSum()
		units := n.Layers[li].Neurons
		for i := range units {
			u := &units[i]
			grad := u.Activation.Derivative(float64(outIdx)) * sum
			for j := range u.Weights {
				u.Weights[j] += alpha * u.InputValue * grad
			}
			u.Bias = alpha * -1 * u.ErrorGradient
			u.ErrorGradient = grad
		}
	}
	n.tracer.Op("network.back", zap.Float64s("desired", desired))
}
