// Package features turns a hand's landmarks into the fixed-length feature
// vector consumed by the inference model.
package features

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/ayusman/mudra/internal/detector"
)

// Layout of the feature vector.
const (
	NumPairwise  = detector.NumLandmarks * (detector.NumLandmarks - 1) / 2 // 210
	NumWrist     = detector.NumLandmarks - 1                               // 20
	NumAngles    = 5
	NumCentroid  = 2
	NumCurvature = detector.NumLandmarks - 2 // 19

	Length = NumPairwise + NumWrist + NumAngles + NumCentroid + NumCurvature // 256
)

// Epsilon is the standard deviation below which a vector is left
// unnormalized.
const Epsilon = 1e-6

// ErrInvalidHand is returned for landmark sequences that are not a hand.
var ErrInvalidHand = errors.New("hand must have exactly 21 landmarks")

// Vector is a feature vector of Length values.
type Vector []float64

// FingerJoints lists the (tip, PIP, MCP) triples whose bend angle is
// measured at the PIP joint, thumb first.
var FingerJoints = [NumAngles][3]int{
	{detector.ThumbTip, detector.ThumbIP, detector.ThumbMCP},
	{detector.IndexTip, detector.IndexPIP, detector.IndexMCP},
	{detector.MiddleTip, detector.MiddlePIP, detector.MiddleMCP},
	{detector.RingTip, detector.RingPIP, detector.RingMCP},
	{detector.PinkyTip, detector.PinkyPIP, detector.PinkyMCP},
}

// PalmBase lists the finger-base landmarks averaged into the palm centroid.
var PalmBase = [5]int{
	detector.ThumbCMC,
	detector.IndexMCP,
	detector.MiddleMCP,
	detector.RingMCP,
	detector.PinkyMCP,
}

// Extract computes the feature vector of hand. It is deterministic: the
// same landmarks always produce the same vector.
func Extract(hand detector.Hand) (Vector, error) {
	if !hand.Valid() {
		return nil, errors.Wrapf(ErrInvalidHand, "got %d", len(hand))
	}

	pts := make([]r3.Vector, len(hand))
	for i, p := range hand {
		pts[i] = r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
	}

	v := make(Vector, 0, Length)

	// Pairwise distances.
	for i := 0; i < len(pts); i++ {
		for j := i + 1; j < len(pts); j++ {
			v = append(v, pts[i].Sub(pts[j]).Norm())
		}
	}

	// Distance of every other landmark to the wrist.
	for i := 1; i < len(pts); i++ {
		v = append(v, pts[i].Sub(pts[detector.Wrist]).Norm())
	}

	// Finger bend angles, measured in the image plane.
	for _, f := range FingerJoints {
		v = append(v, Angle2D(hand[f[0]], hand[f[1]], hand[f[2]]))
	}

	// Palm centroid.
	var cx, cy float64
	for _, idx := range PalmBase {
		cx += hand[idx].X
		cy += hand[idx].Y
	}
	v = append(v, cx/float64(len(PalmBase)), cy/float64(len(PalmBase)))

	// Curvature along the landmark sequence.
	for i := 1; i < len(hand)-1; i++ {
		v = append(v, Angle2D(hand[i-1], hand[i], hand[i+1]))
	}

	normalize(v)
	return v, nil
}

// Angle2D returns the angle at b between the legs b→a and b→c in degrees,
// ignoring depth. A zero-length leg yields 0.
func Angle2D(a, b, c detector.Point3D) float64 {
	ax, ay := a.X-b.X, a.Y-b.Y
	cx, cy := c.X-b.X, c.Y-b.Y

	magA := math.Hypot(ax, ay)
	magC := math.Hypot(cx, cy)
	if magA == 0 || magC == 0 {
		return 0
	}

	cos := (ax*cx + ay*cy) / (magA * magC)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// normalize z-scores v in place using the population standard deviation.
func normalize(v Vector) {
	data := stats.Float64Data(v)
	mean, err := stats.Mean(data)
	if err != nil {
		return
	}
	sd, err := stats.StandardDeviationPopulation(data)
	if err != nil || sd <= Epsilon {
		return
	}
	for i := range v {
		v[i] = (v[i] - mean) / sd
	}
}
