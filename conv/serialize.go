package conv

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/kkoreilly/mazenet"
	"github.com/kkoreilly/mazenet/internal/textfmt"
)

// Serialize returns the filters, maps, outputs, and network of the pipeline as text:
//
//	filters:<name>,<digits>,<dim>,...;generatedMaps:<rows>,<cols>,<digits>,...;
//	pooledMaps:<rows>,<cols>,<digits>,...;outputs:<list>;ANN:<network>;
//
// Every filter weight and map cell is written as a single decimal digit, so only values that
// are integers from 0 to 9 can be serialized; anything else returns an *ArgumentError.
// Empty sections are written as "none".
func (p *Pipeline) Serialize() (string, error) {
	var w textfmt.Writer

	var tuples []string
	for _, f := range p.filters {
		digits, err := textfmt.EncodeDigits(f.flat)
		if err != nil {
			return "", mazenet.NewArgumentError("conv.serialize", "filter "+f.name, "%v", err)
		}
		tuples = append(tuples, f.name, digits, strconv.Itoa(f.dim))
	}
	w.Field("filters", joinTuples(tuples))

	for _, section := range []struct {
		key  string
		maps []*mat.Dense
	}{{"generatedMaps", p.generated}, {"pooledMaps", p.pooled}} {
		tuples = tuples[:0]
		for i, m := range section.maps {
			r, c := m.Dims()
			digits, err := textfmt.EncodeDigits(Flatten([]*mat.Dense{m}))
			if err != nil {
				return "", mazenet.NewArgumentError("conv.serialize", section.key+" "+strconv.Itoa(i), "%v", err)
			}
			tuples = append(tuples, strconv.Itoa(r), strconv.Itoa(c), digits)
		}
		w.Field(section.key, joinTuples(tuples))
	}

	w.Floats("outputs", p.outputs)

	w.Key("ANN")
	if p.network == nil {
		w.Raw(textfmt.None)
	} else {
		p.network.Encode(&w)
	}
	w.End()
	p.tracer.Op("conv.serialize")
	return w.String(), nil
}

func joinTuples(parts []string) string {
	if len(parts) == 0 {
		return textfmt.None
	}
	return strings.Join(parts, ",")
}

// Deserialize parses text written by Serialize into a new pipeline configured with opts.
// Malformed text returns a *mazenet.ParseError.
func Deserialize(text string, opts ...Option) (*Pipeline, error) {
	p := New(opts...)
	sc := textfmt.NewScanner(text)
	err := sc.Record(map[string]func() error{
		"filters": func() error {
			return scanTuples(sc, func(t [3]string) error {
				dim, err := strconv.Atoi(t[2])
				if err != nil || dim < 1 {
					return sc.Errorf("filter %q has bad size %q", t[0], t[2])
				}
				vals, err := decodeCells(sc, t[1], dim, dim)
				if err != nil {
					return err
				}
				f, err := NewFilter(mat.NewDense(dim, dim, vals), t[0])
				if err != nil {
					return sc.Errorf("%v", err)
				}
				p.addFilter(f)
				return nil
			})
		},
		"generatedMaps": func() error {
			return scanMaps(sc, &p.generated)
		},
		"pooledMaps": func() error {
			return scanMaps(sc, &p.pooled)
		},
		"outputs": func() (err error) {
			p.outputs, err = sc.Floats()
			return err
		},
		"ANN": func() error {
			if sc.Accept(textfmt.None + ";") {
				return nil
			}
			n, err := mazenet.Decode(sc, mazenet.WithTracer(p.tracer))
			if err != nil {
				return err
			}
			p.network = n
			return sc.Expect(";")
		},
	})
	if err == nil && !sc.Done() {
		err = sc.Errorf("unexpected text after pipeline")
	}
	if err != nil {
		return nil, mazenet.NewParseError("", err)
	}
	p.tracer.Op("conv.deserialize", zap.Int("filters", len(p.filters)))
	return p, nil
}

// scanTuples reads a comma list value in groups of three
func scanTuples(sc *textfmt.Scanner, fn func(t [3]string) error) error {
	v, err := sc.Value()
	if err != nil {
		return err
	}
	parts := textfmt.SplitList(v)
	if len(parts)%3 != 0 {
		return sc.Errorf("%d values do not form groups of three", len(parts))
	}
	for i := 0; i < len(parts); i += 3 {
		if err := fn([3]string{parts[i], parts[i+1], parts[i+2]}); err != nil {
			return err
		}
	}
	return nil
}

func scanMaps(sc *textfmt.Scanner, dst *[]*mat.Dense) error {
	return scanTuples(sc, func(t [3]string) error {
		r, err1 := strconv.Atoi(t[0])
		c, err2 := strconv.Atoi(t[1])
		if err1 != nil || err2 != nil || r < 1 || c < 1 {
			return sc.Errorf("bad map size %sx%s", t[0], t[1])
		}
		vals, err := decodeCells(sc, t[2], r, c)
		if err != nil {
			return err
		}
		*dst = append(*dst, mat.NewDense(r, c, vals))
		return nil
	})
}

func decodeCells(sc *textfmt.Scanner, digits string, r, c int) ([]float64, error) {
	if len(digits) != r*c {
		return nil, sc.Errorf("%d digits for a %dx%d matrix", len(digits), r, c)
	}
	vals, err := textfmt.DecodeDigits(digits)
	if err != nil {
		return nil, sc.Errorf("%v", err)
	}
	return vals, nil
}
