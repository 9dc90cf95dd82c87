package mazenet

import (
	"github.com/kkoreilly/mazenet/internal/textfmt"
)

// Serialize returns the complete state of the network (topology, weights, biases, and the
// values cached by the last forward and backward passes) as text:
//
//	epochs:<int>;alpha:<float>;layers:
//	neurons:
//	AF:<name>;isInput:<bool>;inputValue:<f>;bias:<f>;outputValue:<f>;errorGradient:<f>;weights:<list|none>;inputs:<list|none>;,
//	...;
//
// Deserialize reverses it exactly: a deserialized network gives bit-identical outputs.
func (n *Network) Serialize() string {
	var w textfmt.Writer
	n.Encode(&w)
	return w.String()
}

// Encode writes the network to w; it is used to nest a network inside another record.
func (n *Network) Encode(w *textfmt.Writer) {
	w.Int("epochs", n.Epochs)
	w.Float("alpha", n.LearningRate)
	w.Items("layers", len(n.Layers), func(li int) {
		l := &n.Layers[li]
		w.Items("neurons", l.Len(), func(ui int) {
			u := &l.Neurons[ui]
			w.Field("AF", u.Activation.String())
			w.Bool("isInput", u.IsInput)
			w.Float("inputValue", u.InputValue)
			w.Float("bias", u.Bias)
			w.Float("outputValue", u.OutputValue)
			w.Float("errorGradient", u.ErrorGradient)
			w.Floats("weights", u.Weights)
			w.Floats("inputs", u.Inputs)
		})
	})
	w.End()
	n.tracer.Op("network.serialize")
}

// Deserialize parses text written by Serialize into a new network.
// Malformed text returns a *ParseError.
func Deserialize(text string, opts ...Option) (*Network, error) {
	sc := textfmt.NewScanner(text)
	n, err := Decode(sc, opts...)
	if err != nil {
		return nil, err
	}
	if !sc.Done() {
		return nil, NewParseError("", sc.Errorf("unexpected text after network"))
	}
	return n, nil
}

// neuronKeys are the fields of a serialized neuron
var neuronKeys = map[string]bool{
	"AF": true, "isInput": true, "inputValue": true, "bias": true,
	"outputValue": true, "errorGradient": true, "weights": true, "inputs": true,
}

// Decode reads one network record from sc, leaving sc after its final field.
func Decode(sc *textfmt.Scanner, opts ...Option) (*Network, error) {
	var (
		epochs int
		alpha  float64
		layers []Layer
	)
	err := sc.Record(map[string]func() error{
		"epochs": func() (err error) {
			epochs, err = sc.Int()
			return err
		},
		"alpha": func() (err error) {
			alpha, err = sc.Float()
			return err
		},
		"layers": func() error {
			isLayer := func(key string) bool { return key == "neurons" }
			err := sc.Items(isLayer, func() error {
				l, err := decodeLayer(sc)
				layers = append(layers, l)
				return err
			})
			if err != nil {
				return err
			}
			return sc.Expect(";")
		},
	})
	if err != nil {
		return nil, NewParseError("", err)
	}
	n, err := NewNetworkFromLayers(layers, epochs, alpha, opts...)
	if err != nil {
		return nil, NewParseError("layers", err)
	}
	n.tracer.Op("network.deserialize")
	return n, nil
}

func decodeLayer(sc *textfmt.Scanner) (Layer, error) {
	var l Layer
	if err := sc.Expect("neurons:"); err != nil {
		return l, err
	}
	isNeuron := func(key string) bool { return neuronKeys[key] }
	err := sc.Items(isNeuron, func() error {
		u, err := decodeNeuron(sc)
		l.Neurons = append(l.Neurons, u)
		return err
	})
	return l, err
}

func decodeNeuron(sc *textfmt.Scanner) (Neuron, error) {
	var u Neuron
	err := sc.Record(map[string]func() error{
		"AF": func() error {
			start := sc.Offset()
			name, err := sc.Value()
			if err != nil {
				return err
			}
			u.Activation, err = ParseActivationFunc(name)
			if err != nil {
				return &textfmt.SyntaxError{Offset: start, Msg: err.Error()}
			}
			return nil
		},
		"isInput": func() (err error) {
			u.IsInput, err = sc.Bool()
			return err
		},
		"inputValue": func() (err error) {
			u.InputValue, err = sc.Float()
			return err
		},
		"bias": func() (err error) {
			u.Bias, err = sc.Float()
			return err
		},
		"outputValue": func() (err error) {
			u.OutputValue, err = sc.Float()
			return err
		},
		"errorGradient": func() (err error) {
			u.ErrorGradient, err = sc.Float()
			return err
		},
		"weights": func() (err error) {
			u.Weights, err = sc.Floats()
			return err
		},
		"inputs": func() (err error) {
			u.Inputs, err = sc.Floats()
			return err
		},
	})
	return u, err
}
