package model

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Network runs the forward pass in float64. It is immutable after
// construction and safe for concurrent use.
type Network struct {
	layers []denseLayer
}

type denseLayer struct {
	rows   [][]float64 // rows[i] holds the weights feeding output i
	biases []float64
}

// NewNetwork builds a network from generated weights.
func NewNetwork(w Weights) *Network {
	n := &Network{layers: make([]denseLayer, len(w))}
	for k, l := range w {
		rows := make([][]float64, l.Out)
		for i := range rows {
			rows[i] = make([]float64, l.In)
			for j := 0; j < l.In; j++ {
				rows[i][j] = l.Weights[j*l.Out+i]
			}
		}
		n.layers[k] = denseLayer{rows: rows, biases: l.Biases}
	}
	return n
}

// Infer returns the raw output scores for features. Input is zero padded
// or truncated to InputSize. Hidden layers use ReLU; the output is linear.
func (n *Network) Infer(features []float64) []float64 {
	x := make([]float64, InputSize)
	copy(x, features)

	for k, l := range n.layers {
		y := make([]float64, len(l.rows))
		for i, row := range l.rows {
			y[i] = floats.Dot(x, row) + l.biases[i]
		}
		if k < len(n.layers)-1 {
			for i := range y {
				y[i] = math.Max(0, y[i])
			}
		}
		x = y
	}
	return x
}

// Softmax returns the probabilities of scores. The maximum is subtracted
// before exponentiation.
func Softmax(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	peak := floats.Max(scores)
	probs := make([]float64, len(scores))
	for i, s := range scores {
		probs[i] = math.Exp(s - peak)
	}
	floats.Scale(1/floats.Sum(probs), probs)
	return probs
}

// Decide picks the highest raw score and reports its softmax probability
// as the confidence. Ties go to the lowest id.
func Decide(scores []float64) (id int, confidence float64) {
	if len(scores) == 0 {
		return None, 0
	}
	id = floats.MaxIdx(scores)
	return id, Softmax(scores)[id]
}
