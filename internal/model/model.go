// Package model holds the fixed-weight feed-forward classifier: its
// deterministic weight generator, the float64 reference forward pass and
// the decision rule shared by every backend.
package model

import "math"

// DefaultSeed seeds the weight generator.
const DefaultSeed = 12345

// NumClasses is the number of output classes, including the no-gesture class.
const NumClasses = 5

// Sizes are the layer widths from input to output.
var Sizes = [...]int{256, 128, 64, 32, NumClasses}

// InputSize is the length of the feature vector the network consumes.
const InputSize = 256

// Class ids.
const (
	None     = 0
	OpenPalm = 1
	Fist     = 2
	Point    = 3
	Victory  = 4
)

// Labels maps class ids to gesture labels. Both the network and the rule
// fallback report labels from this table.
var Labels = [NumClasses]string{
	None:     "none-detected",
	OpenPalm: "open-palm",
	Fist:     "fist",
	Point:    "point",
	Victory:  "victory",
}

// Label returns the label for id, or the no-gesture label for an unknown id.
func Label(id int) string {
	if id < 0 || id >= NumClasses {
		return Labels[None]
	}
	return Labels[id]
}

// Layer is one fully connected layer. Weights[j*Out+i] connects input j
// to output i.
type Layer struct {
	In      int
	Out     int
	Weights []float64
	Biases  []float64
}

// Weights is the full set of layers, input first.
type Weights []Layer

// lcg is the linear congruential generator behind the weights. Values are
// uniform in [-1, 1).
type lcg struct {
	state int64
}

func (g *lcg) next() float64 {
	g.state = (g.state*9301 + 49297) % 233280
	return float64(g.state)/233280.0*2 - 1
}

// GenerateLayer produces the weights and biases of an in×out layer. The
// generator starts from seed, draws every weight scaled by sqrt(2/in), then
// every bias scaled by 0.1.
func GenerateLayer(seed int64, in, out int) Layer {
	g := lcg{state: seed}
	scale := math.Sqrt(2.0 / float64(in))

	l := Layer{
		In:      in,
		Out:     out,
		Weights: make([]float64, in*out),
		Biases:  make([]float64, out),
	}
	for i := range l.Weights {
		l.Weights[i] = g.next() * scale
	}
	for i := range l.Biases {
		l.Biases[i] = g.next() * 0.1
	}
	return l
}

// Generate produces every layer of the network. Each layer restarts the
// generator from seed.
func Generate(seed int64) Weights {
	w := make(Weights, 0, len(Sizes)-1)
	for i := 0; i < len(Sizes)-1; i++ {
		w = append(w, GenerateLayer(seed, Sizes[i], Sizes[i+1]))
	}
	return w
}

// Float32 narrows the layer for single-precision backends.
func (l Layer) Float32() (weights, biases []float32) {
	weights = make([]float32, len(l.Weights))
	for i, v := range l.Weights {
		weights[i] = float32(v)
	}
	biases = make([]float32, len(l.Biases))
	for i, v := range l.Biases {
		biases[i] = float32(v)
	}
	return weights, biases
}
