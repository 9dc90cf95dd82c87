// Package config loads network and pipeline descriptions from YAML files.
//
// A file may contain any of the sections below:
//
//	network:
//	  inputs: 4
//	  hiddenLayers: 1
//	  hiddenUnits: 6
//	  outputs: 3
//	  hiddenActivation: TanH
//	  outputActivation: Sigmoid
//	  epochs: 10
//	  alpha: 0.05
//	  seed: 1
//	pipeline:
//	  epochs: 1
//	  alpha: 0.1
//	  filters:
//	    - name: vertical
//	      weights: [[0, 1, 0], [0, 1, 0], [0, 1, 0]]
//	samples:
//	  - inputs: [0, 1, 0, 1]
//	    desired: [1, 0, 0]
//	input: [[0, 1], [1, 0]]
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/kkoreilly/mazenet"
	"github.com/kkoreilly/mazenet/conv"
	"github.com/kkoreilly/mazenet/instrument"
)

// File is the content of a configuration file
type File struct {
	Network  *mazenet.Config  `yaml:"network"`
	Pipeline *Pipeline        `yaml:"pipeline"`
	Samples  []mazenet.Sample `yaml:"samples"`
	Input    [][]float64      `yaml:"input"` // a sensory map for the pipeline
}

// Pipeline describes a convolution pipeline
type Pipeline struct {
	Epochs     int      `yaml:"epochs"`
	Alpha      float64  `yaml:"alpha"`
	Seed       int64    `yaml:"seed"`
	Accumulate bool     `yaml:"accumulate"`
	Filters    []Filter `yaml:"filters"`
}

// Filter is a named square kernel
type Filter struct {
	Name    string      `yaml:"name"`
	Weights [][]float64 `yaml:"weights"`
}

// Load reads and validates the configuration file at path
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return f, nil
}

// Parse decodes and validates a configuration. Unknown keys are errors.
func Parse(data []byte) (*File, error) {
	f := &File{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decoding yaml")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks every section that is present
func (f *File) Validate() error {
	if f.Network != nil {
		if err := f.Network.Validate(); err != nil {
			return errors.WithMessage(err, "network")
		}
	}
	if f.Pipeline != nil {
		if f.Pipeline.Epochs < 0 {
			return mazenet.NewConfigurationError("config.pipeline", "negative number of epochs %d", f.Pipeline.Epochs)
		}
		for i, flt := range f.Pipeline.Filters {
			if _, err := conv.NewMap(flt.Weights); err != nil {
				return errors.WithMessagef(err, "pipeline filter %d", i)
			}
		}
	}
	for i, s := range f.Samples {
		if f.Network == nil {
			break
		}
		if len(s.Inputs) != f.Network.NumInputs {
			return errors.WithMessagef(mazenet.NewSizeError("config.samples", "inputs", f.Network.NumInputs, len(s.Inputs)), "sample %d", i)
		}
		if len(s.Desired) != f.Network.NumOutputs {
			return errors.WithMessagef(mazenet.NewSizeError("config.samples", "desired outputs", f.Network.NumOutputs, len(s.Desired)), "sample %d", i)
		}
	}
	if f.Input != nil {
		if _, err := conv.NewMap(f.Input); err != nil {
			return errors.WithMessage(err, "input")
		}
	}
	return nil
}

// BuildNetwork returns a new network for the network section
func (f *File) BuildNetwork(tracer instrument.Tracer) (*mazenet.Network, error) {
	if f.Network == nil {
		return nil, errors.New("config has no network section")
	}
	return mazenet.NewNetwork(*f.Network, mazenet.WithTracer(tracer))
}

// BuildPipeline returns a new pipeline with the filters of the pipeline section registered in order
func (f *File) BuildPipeline(tracer instrument.Tracer) (*conv.Pipeline, error) {
	if f.Pipeline == nil {
		return nil, errors.New("config has no pipeline section")
	}
	pc := f.Pipeline
	epochs, alpha := pc.Epochs, pc.Alpha
	if epochs == 0 {
		epochs = conv.DefaultEpochs
	}
	if alpha == 0 {
		alpha = conv.DefaultAlpha
	}
	p := conv.New(
		conv.WithTracer(tracer),
		conv.WithTraining(epochs, alpha),
		conv.WithSeed(pc.Seed),
		conv.WithAccumulate(pc.Accumulate),
	)
	for _, flt := range pc.Filters {
		m, err := conv.NewMap(flt.Weights)
		if err != nil {
			return nil, err
		}
		if err := p.AddFilter(m, flt.Name); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// InputMap returns the input section as a map, or nil if there is none
func (f *File) InputMap() (*mat.Dense, error) {
	if f.Input == nil {
		return nil, nil
	}
	return conv.NewMap(f.Input)
}
