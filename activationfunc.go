package mazenet

import (
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// ActivationFunc is a function that turns a neuron's net input into its output value.
// The set of activation functions is closed: ReLU, Sigmoid, and TanH.
type ActivationFunc int

const (
	// ReLU is the rectifier activation function that returns x if x > 0 and 0 otherwise
	ReLU ActivationFunc = iota
	// Sigmoid is the standard logistic activation function (e^x / (1 + e^x))
	Sigmoid
	// TanH is the hyperbolic tangent activation function (2 / (1 + e^-2x) - 1)
	TanH
)

// String returns the serialized name of the activation function
func (af ActivationFunc) String() string {
	switch af {
	case ReLU:
		return "ReLU"
	case Sigmoid:
		return "Sigmoid"
	case TanH:
		return "TanH"
	}
	return "ActivationFunc(" + strconv.Itoa(int(af)) + ")"
}

// ParseActivationFunc returns the activation function with the given serialized name.
// Any name other than "ReLU", "Sigmoid", or "TanH" is an error.
func ParseActivationFunc(name string) (ActivationFunc, error) {
	switch name {
	case "ReLU":
		return ReLU, nil
	case "Sigmoid":
		return Sigmoid, nil
	case "TanH":
		return TanH, nil
	}
	return 0, errors.Errorf("unknown activation function %q", name)
}

// Validate returns a *ConfigurationError if af is not one of the known activation functions
func (af ActivationFunc) Validate() error {
	switch af {
	case ReLU, Sigmoid, TanH:
		return nil
	}
	return NewConfigurationError("activation", "unknown activation function %d", int(af))
}

// MarshalText implements encoding.TextMarshaler so that configuration files can name the function
func (af ActivationFunc) MarshalText() ([]byte, error) {
	if err := af.Validate(); err != nil {
		return nil, err
	}
	return []byte(af.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (af *ActivationFunc) UnmarshalText(text []byte) error {
	v, err := ParseActivationFunc(string(text))
	if err != nil {
		return err
	}
	*af = v
	return nil
}

// Activate returns the value of the activation function at x.
// It panics with a *ConfigurationError if af is unknown; networks are validated when they
// are built or parsed, so this only happens if a neuron was modified directly.
func (af ActivationFunc) Activate(x float64) float64 {
	switch af {
	case ReLU:
		if x > 0 {
			return x
		}
		return 0
	case Sigmoid:
		e := math.Exp(x)
		return e / (1 + e)
	case TanH:
		return 2/(1+math.Exp(-2*x)) - 1
	}
	panic(af.Validate())
}

// Derivative returns the derivative of the activation function expressed in terms of the
// already activated value y, not the net input.
func (af ActivationFunc) Derivative(y float64) float64 {
	switch af {
	case ReLU:
		if y > 0 {
			return y
		}
		return 0
	case Sigmoid:
		return y * (1 - y)
	case TanH:
		return 1 - y*y
	}
	panic(af.Validate())
}
