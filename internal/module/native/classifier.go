package native

import (
	"math"

	"github.com/ayusman/mudra/internal/model"
)

// The compiled build works in single precision and ignores depth, so it
// carries its own copy of the feature pipeline and forward pass.

const numLandmarks = 21

type point struct {
	x, y float32
}

type layer32 struct {
	in, out int
	weights []float32
	biases  []float32
}

func buildLayers(seed int64) []layer32 {
	w := model.Generate(seed)
	layers := make([]layer32, len(w))
	for i, l := range w {
		weights, biases := l.Float32()
		layers[i] = layer32{in: l.In, out: l.Out, weights: weights, biases: biases}
	}
	return layers
}

func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}

func angle32(a, b, c point) float32 {
	bax, bay := a.x-b.x, a.y-b.y
	bcx, bcy := c.x-b.x, c.y-b.y

	magBA := sqrt32(bax*bax + bay*bay)
	magBC := sqrt32(bcx*bcx + bcy*bcy)
	if magBA == 0 || magBC == 0 {
		return 0
	}
	cos := (bax*bcx + bay*bcy) / (magBA * magBC)
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return float32(math.Acos(float64(cos)) * 180 / math.Pi)
}

var (
	fingerTips = [5]int{4, 8, 12, 16, 20}
	fingerPIPs = [5]int{3, 6, 10, 14, 18}
	fingerMCPs = [5]int{2, 5, 9, 13, 17}
	palmBase   = [5]int{1, 5, 9, 13, 17}
)

func extract32(pts []point) []float32 {
	f := make([]float32, 0, 256)

	for i := 0; i < numLandmarks; i++ {
		for j := i + 1; j < numLandmarks; j++ {
			dx, dy := pts[i].x-pts[j].x, pts[i].y-pts[j].y
			f = append(f, sqrt32(dx*dx+dy*dy))
		}
	}
	for i := 1; i < numLandmarks; i++ {
		dx, dy := pts[i].x-pts[0].x, pts[i].y-pts[0].y
		f = append(f, sqrt32(dx*dx+dy*dy))
	}
	for i := range fingerTips {
		f = append(f, angle32(pts[fingerTips[i]], pts[fingerPIPs[i]], pts[fingerMCPs[i]]))
	}
	var px, py float32
	for _, idx := range palmBase {
		px += pts[idx].x
		py += pts[idx].y
	}
	f = append(f, px/5, py/5)
	for i := 1; i < numLandmarks-1; i++ {
		f = append(f, angle32(pts[i-1], pts[i], pts[i+1]))
	}

	var mean float32
	for _, v := range f {
		mean += v
	}
	mean /= float32(len(f))
	var variance float32
	for _, v := range f {
		variance += (v - mean) * (v - mean)
	}
	stddev := sqrt32(variance / float32(len(f)))
	if stddev > 1e-6 {
		for i := range f {
			f[i] = (f[i] - mean) / stddev
		}
	}
	return f
}

func infer32(layers []layer32, features []float32) []float32 {
	x := make([]float32, model.InputSize)
	copy(x, features)

	for k, l := range layers {
		y := make([]float32, l.out)
		for i := 0; i < l.out; i++ {
			sum := l.biases[i]
			for j := 0; j < l.in; j++ {
				sum += x[j] * l.weights[j*l.out+i]
			}
			if k < len(layers)-1 && sum < 0 {
				sum = 0
			}
			y[i] = sum
		}
		x = y
	}
	return x
}

// decide32 returns the argmax and its softmax probability.
func decide32(scores []float32) (int, float32) {
	best := 0
	for i := range scores {
		if scores[i] > scores[best] {
			best = i
		}
	}
	var sum float64
	for _, s := range scores {
		sum += math.Exp(float64(s - scores[best]))
	}
	return best, float32(1 / sum)
}

// inFrame returns the fraction of points inside the unit frame.
func inFrame(pts []point) float32 {
	inside := 0
	for _, p := range pts {
		if p.x >= 0 && p.x <= 1 && p.y >= 0 && p.y <= 1 {
			inside++
		}
	}
	return float32(inside) / float32(len(pts))
}
