// Command mazenet builds, trains, and runs the networks and convolution pipelines used by
// the maze agents, stored in their text format.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goki/mat32"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kkoreilly/mazenet"
	"github.com/kkoreilly/mazenet/config"
	"github.com/kkoreilly/mazenet/conv"
	"github.com/kkoreilly/mazenet/instrument"
)

const version = "v0.1.0"

const usage = `usage: mazenet [-v] <command> [flags]

Commands:
  version    show the version
  new        create a network from the network section of a config file
  run        run a network on one input
  train      train a network on the samples of a config file
  conv       run or train a convolution pipeline on the input map of a config file
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "mazenet:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	global := flag.NewFlagSet("mazenet", flag.ContinueOnError)
	verbose := global.Bool("v", false, "log operation traces and timings to stderr")
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("no command given")
	}
	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return errors.Wrap(err, "creating logger")
		}
		defer logger.Sync() //nolint:errcheck
		instrument.SetDefault(instrument.New(logger))
		defer instrument.SetDefault(nil)
	}

	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "mazenet %s\n", version)
		return nil
	case "new":
		return cmdNew(rest, stdout)
	case "run":
		return cmdRun(rest, stdout)
	case "train":
		return cmdTrain(rest, stdout)
	case "conv":
		return cmdConv(rest, stdout)
	}
	global.Usage()
	return errors.Errorf("unknown command %q", cmd)
}

func cmdNew(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("new", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file with a network section")
	out := fs.String("out", "", "file to write the network to (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	n, err := cfg.BuildNetwork(instrument.Default())
	if err != nil {
		return err
	}
	return write(*out, stdout, n.Serialize())
}

func cmdRun(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	modelPath := fs.String("model", "", "network file")
	input := fs.String("input", "", "comma-separated input values")
	if err := fs.Parse(args); err != nil {
		return err
	}
	n, err := loadNetwork(*modelPath)
	if err != nil {
		return err
	}
	v, err := parseFloats(*input)
	if err != nil {
		return err
	}
	out, err := n.Run(v)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "outputs: %s\naction: %d\n", formatFloats(out), conv.Argmax(out))
	return nil
}

func cmdTrain(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	modelPath := fs.String("model", "", "network file")
	cfgPath := fs.String("config", "", "config file with a samples section")
	out := fs.String("out", "", "file to write the trained network to (default: overwrite -model)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	n, err := loadNetwork(*modelPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if len(cfg.Samples) == 0 {
		return errors.Errorf("%s has no samples", *cfgPath)
	}
	results, err := n.TrainBatch(cfg.Samples)
	if err != nil {
		return err
	}
	for i, r := range results {
		fmt.Fprintf(stdout, "sample %d: %s\n", i, formatFloats(r))
	}
	if *out == "" {
		*out = *modelPath
	}
	return write(*out, stdout, n.Serialize())
}

func cmdConv(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("conv", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file with an input section, and a pipeline section unless -model is given")
	modelPath := fs.String("model", "", "serialized pipeline to load instead of building one from the config")
	desired := fs.String("train", "", "comma-separated desired outputs; trains instead of running")
	out := fs.String("out", "", "file to write the pipeline to after the maps are cleared")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	input, err := cfg.InputMap()
	if err != nil {
		return err
	}
	if input == nil {
		return errors.Errorf("%s has no input section", *cfgPath)
	}

	var p *conv.Pipeline
	if *modelPath != "" {
		text, err := readText(*modelPath, "pipeline")
		if err != nil {
			return err
		}
		p, err = conv.Deserialize(text)
		if err != nil {
			return errors.WithMessagef(err, "pipeline %s", *modelPath)
		}
	} else {
		p, err = cfg.BuildPipeline(instrument.Default())
		if err != nil {
			return err
		}
	}

	if *desired != "" {
		d, err := parseFloats(*desired)
		if err != nil {
			return err
		}
		res, err := p.Train(input, d)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "outputs: %s\n", formatFloats(res))
	} else {
		decision, err := p.Run(input)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "decision: %d\naction: %d\noutputs: %s\nscores: %s\n",
			decision, p.Action(), formatFloats(p.Outputs()), formatScores(p.Scores()))
	}

	if *out == "" {
		return nil
	}
	// feature maps rarely hold single digits, so they are not saved
	p.ResetMaps()
	text, err := p.Serialize()
	if err != nil {
		return err
	}
	return write(*out, stdout, text)
}

// readText reads a serialized network or pipeline, dropping the newline that write adds
// when printing to stdout
func readText(path, what string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s %s", what, path)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

func loadNetwork(path string) (*mazenet.Network, error) {
	text, err := readText(path, "network")
	if err != nil {
		return nil, err
	}
	n, err := mazenet.Deserialize(text)
	if err != nil {
		return nil, errors.WithMessagef(err, "network %s", path)
	}
	return n, nil
}

func write(path string, stdout io.Writer, text string) error {
	if path == "" {
		_, err := fmt.Fprintln(stdout, text)
		return err
	}
	return errors.Wrapf(os.WriteFile(path, []byte(text), 0o644), "writing %s", path)
}

func parseFloats(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("no values given")
	}
	parts := strings.Split(s, ",")
	vs := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "value %d", i)
		}
		vs[i] = v
	}
	return vs, nil
}

// formatScores formats the float32 decision scores of a pipeline
func formatScores(v mat32.Vec3) string {
	return formatFloats([]float64{float64(v.X), float64(v.Y), float64(v.Z)})
}

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'g', 6, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
