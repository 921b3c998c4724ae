package backend

import (
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/model"
)

// Interpreted runs the reference network in process. It applies the same
// thresholds as the compiled module, so both compute the same function.
type Interpreted struct {
	net        *model.Network
	thresholds Thresholds
}

// NewInterpreted builds the reference backend from generated weights.
func NewInterpreted(weights model.Weights, thresholds Thresholds) *Interpreted {
	return &Interpreted{net: model.NewNetwork(weights), thresholds: thresholds}
}

// Method returns MethodInterpreted.
func (b *Interpreted) Method() Method {
	return MethodInterpreted
}

// SetThresholds replaces the gating thresholds.
func (b *Interpreted) SetThresholds(t Thresholds) {
	b.thresholds = t
}

// Classify extracts features and runs the forward pass.
func (b *Interpreted) Classify(hand detector.Hand) (Result, error) {
	if !hand.Valid() {
		return None(0), nil
	}
	if hand.InFrame() < b.thresholds.Detection {
		return None(0), nil
	}

	v, err := features.Extract(hand)
	if err != nil {
		return None(0), nil
	}
	id, conf := model.Decide(b.net.Infer(v))
	if id == model.None || conf < b.thresholds.Recognition {
		return None(conf), nil
	}
	return Result{Gesture: model.Label(id), Confidence: conf, ID: id}, nil
}
