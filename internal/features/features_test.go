package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/detector"
)

func TestLength(t *testing.T) {
	assert.Equal(t, 210, NumPairwise)
	assert.Equal(t, 256, Length)
}

func TestExtract_InvalidHand(t *testing.T) {
	for _, n := range []int{0, 1, 20, 22, 42} {
		_, err := Extract(make(detector.Hand, n))
		require.ErrorIs(t, err, ErrInvalidHand, "length %d", n)
	}
	_, err := Extract(nil)
	require.ErrorIs(t, err, ErrInvalidHand)
}

func TestExtract_Deterministic(t *testing.T) {
	hand := detector.OpenPalmLandmarks().Hand()

	first, err := Extract(hand)
	require.NoError(t, err)
	require.Len(t, first, Length)

	for i := 0; i < 5; i++ {
		again, err := Extract(hand)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestExtract_Normalized(t *testing.T) {
	v, err := Extract(detector.VictoryLandmarks().Hand())
	require.NoError(t, err)

	var sum, sq float64
	for _, x := range v {
		sum += x
	}
	mean := sum / float64(len(v))
	for _, x := range v {
		sq += (x - mean) * (x - mean)
	}
	assert.InDelta(t, 0, mean, 1e-9)
	assert.InDelta(t, 1, math.Sqrt(sq/float64(len(v))), 1e-9)
}

func TestExtract_DegenerateHandSkipsNormalization(t *testing.T) {
	// Every landmark at the origin: every feature is 0 and the standard
	// deviation with it.
	hand := make(detector.Hand, detector.NumLandmarks)
	v, err := Extract(hand)
	require.NoError(t, err)

	for i, x := range v {
		assert.False(t, math.IsNaN(x), "feature %d is NaN", i)
		assert.Zero(t, x, "feature %d", i)
	}
}

func TestExtract_Layout(t *testing.T) {
	hand := detector.DiagonalHand()
	raw := rawFeatures(t, hand)

	// Consecutive diagonal points are 0.04*sqrt(2) apart.
	assert.InDelta(t, 0.04*math.Sqrt2, raw[0], 1e-12)
	// Last pairwise entry is the distance between landmarks 19 and 20.
	assert.InDelta(t, 0.04*math.Sqrt2, raw[NumPairwise-1], 1e-12)
	// Wrist distance of landmark 20.
	assert.InDelta(t, 0.8*math.Sqrt2, raw[NumPairwise+NumWrist-1], 1e-12)

	// Collinear points bend by 180 degrees.
	for i := 0; i < NumAngles; i++ {
		assert.InDelta(t, 180, raw[NumPairwise+NumWrist+i], 1e-4)
	}

	cx := raw[NumPairwise+NumWrist+NumAngles]
	cy := raw[NumPairwise+NumWrist+NumAngles+1]
	want := 0.1 + 0.04*float64(1+5+9+13+17)/5
	assert.InDelta(t, want, cx, 1e-12)
	assert.InDelta(t, want, cy, 1e-12)
}

// rawFeatures undoes the z-score so layout positions can be checked.
func rawFeatures(t *testing.T, hand detector.Hand) Vector {
	t.Helper()

	v, err := Extract(hand)
	require.NoError(t, err)

	// Recompute the raw vector independently through the exported pieces.
	raw := make(Vector, 0, Length)
	for i := 0; i < len(hand); i++ {
		for j := i + 1; j < len(hand); j++ {
			raw = append(raw, dist(hand[i], hand[j]))
		}
	}
	for i := 1; i < len(hand); i++ {
		raw = append(raw, dist(hand[i], hand[0]))
	}
	for _, f := range FingerJoints {
		raw = append(raw, Angle2D(hand[f[0]], hand[f[1]], hand[f[2]]))
	}
	var cx, cy float64
	for _, idx := range PalmBase {
		cx += hand[idx].X
		cy += hand[idx].Y
	}
	raw = append(raw, cx/5, cy/5)
	for i := 1; i < len(hand)-1; i++ {
		raw = append(raw, Angle2D(hand[i-1], hand[i], hand[i+1]))
	}
	require.Len(t, raw, Length)

	normalized := append(Vector(nil), raw...)
	normalize(normalized)
	for i := range v {
		require.InDelta(t, normalized[i], v[i], 1e-12, "feature %d", i)
	}
	return raw
}

func dist(a, b detector.Point3D) float64 {
	return math.Sqrt((a.X-b.X)*(a.X-b.X) + (a.Y-b.Y)*(a.Y-b.Y) + (a.Z-b.Z)*(a.Z-b.Z))
}

func TestAngle2D(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c detector.Point3D
		want    float64
	}{
		{"right angle", detector.Point3D{X: 1}, detector.Point3D{}, detector.Point3D{Y: 1}, 90},
		{"straight", detector.Point3D{X: -1}, detector.Point3D{}, detector.Point3D{X: 1}, 180},
		{"folded", detector.Point3D{X: 1}, detector.Point3D{}, detector.Point3D{X: 2}, 0},
		{"zero leg", detector.Point3D{}, detector.Point3D{}, detector.Point3D{X: 1}, 0},
		{"depth ignored", detector.Point3D{X: 1, Z: 5}, detector.Point3D{}, detector.Point3D{Y: 1, Z: -3}, 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Angle2D(tt.a, tt.b, tt.c)
			assert.False(t, math.IsNaN(got))
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}
