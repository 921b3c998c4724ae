package backend

import (
	"math"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/model"
)

// Rules classifies from raw landmark geometry. It needs no model and is
// always available.
type Rules struct{}

// NewRules returns the rule-based backend.
func NewRules() *Rules {
	return &Rules{}
}

// Method returns MethodRules.
func (r *Rules) Method() Method {
	return MethodRules
}

// Confidences reported by the rules.
const (
	pointConfidence    = 0.85
	openPalmConfidence = 0.80
	fistConfidence     = 0.75
	victoryConfidence  = 0.70
)

// Fingers records which fingers are extended, thumb first.
type Fingers [5]bool

// ExtendedFingers evaluates every finger of a valid hand. Image Y grows
// downward, so a finger is extended when its tip is above its PIP joint
// and the PIP joint above the MCP. The thumb is extended when its tip is
// farther from the wrist horizontally than its IP joint.
func ExtendedFingers(hand detector.Hand) Fingers {
	wrist := hand[detector.Wrist]
	f := Fingers{
		math.Abs(hand[detector.ThumbTip].X-wrist.X) > math.Abs(hand[detector.ThumbIP].X-wrist.X),
	}
	joints := [4][3]int{
		{detector.IndexTip, detector.IndexPIP, detector.IndexMCP},
		{detector.MiddleTip, detector.MiddlePIP, detector.MiddleMCP},
		{detector.RingTip, detector.RingPIP, detector.RingMCP},
		{detector.PinkyTip, detector.PinkyPIP, detector.PinkyMCP},
	}
	for i, j := range joints {
		tip, pip, mcp := hand[j[0]], hand[j[1]], hand[j[2]]
		f[i+1] = tip.Y < pip.Y && pip.Y < mcp.Y
	}
	return f
}

// Classify maps the extended-finger pattern to a gesture.
func (r *Rules) Classify(hand detector.Hand) (Result, error) {
	if !hand.Valid() {
		return None(0), nil
	}

	f := ExtendedFingers(hand)
	thumb, index, middle, ring, pinky := f[0], f[1], f[2], f[3], f[4]

	switch {
	case index && !thumb && !middle && !ring && !pinky:
		return Result{Gesture: model.Label(model.Point), Confidence: pointConfidence, ID: model.Point}, nil
	case thumb && index && middle && ring && pinky:
		return Result{Gesture: model.Label(model.OpenPalm), Confidence: openPalmConfidence, ID: model.OpenPalm}, nil
	case !thumb && !index && !middle && !ring && !pinky:
		return Result{Gesture: model.Label(model.Fist), Confidence: fistConfidence, ID: model.Fist}, nil
	case index && middle && !thumb && !ring && !pinky:
		return Result{Gesture: model.Label(model.Victory), Confidence: victoryConfidence, ID: model.Victory}, nil
	}
	return None(0), nil
}
