package conv

import (
	"github.com/goki/mat32"
	"gonum.org/v1/gonum/floats"
)

// Argmax returns the position of the largest output, which is the action the outputs choose,
// or -1 if there are no outputs. Ties go to the first position.
func Argmax(outputs []float64) int {
	if len(outputs) == 0 {
		return -1
	}
	return floats.MaxIdx(outputs)
}

// Scores returns the first three outputs of the last run as a float32 vector for hosts that
// work in float32. Missing outputs are 0.
func (p *Pipeline) Scores() mat32.Vec3 {
	var v [3]float32
	for i := 0; i < len(v) && i < len(p.outputs); i++ {
		v[i] = float32(p.outputs[i])
	}
	return mat32.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

// Action returns the position of the largest output of the last run, or -1 before any run
func (p *Pipeline) Action() int {
	return Argmax(p.outputs)
}
