// Package backend provides the interchangeable classifiers behind the
// recognizer: the compiled module reached through its memory boundary, the
// in-process reference network and the coordinate rules used as fallback.
package backend

import (
	"github.com/pkg/errors"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/module"
)

// Method names a classification backend.
type Method string

const (
	MethodCompiled    Method = "compiled"
	MethodInterpreted Method = "interpreted"
	MethodRules       Method = "rules"
)

// Status describes the availability of the compiled backend.
type Status string

const (
	StatusLoading     Status = "loading"
	StatusReady       Status = "ready"
	StatusUnavailable Status = "backend unavailable"
)

// Result is a classification outcome. ID 0 is the no-gesture sentinel.
type Result struct {
	Gesture    string  `json:"gesture"`
	Confidence float64 `json:"confidence"`
	ID         int     `json:"id"`
}

// None returns the no-gesture result with the given confidence.
func None(confidence float64) Result {
	return Result{Gesture: model.Label(model.None), Confidence: confidence, ID: model.None}
}

// IsNone reports whether r is the no-gesture sentinel.
func (r Result) IsNone() bool {
	return r.ID == model.None
}

func fromModule(r module.Result) Result {
	if r.ID == model.None {
		return None(r.Confidence)
	}
	return Result{Gesture: r.Gesture, Confidence: r.Confidence, ID: r.ID}
}

// Backend classifies a single hand. A hand that is not exactly 21 points
// yields the sentinel, never an error; errors report backend failures.
type Backend interface {
	Method() Method
	Classify(hand detector.Hand) (Result, error)
}

// Thresholds are the gates applied by the model-based backends.
type Thresholds struct {
	// Detection is the fraction of landmarks that must lie inside the
	// unit frame for the hand to count as present.
	Detection float64 `json:"detection"`

	// Recognition is the minimum confidence of a reported gesture.
	Recognition float64 `json:"recognition"`
}

// DefaultThresholds returns the module defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Detection:   module.DefaultDetectionThreshold,
		Recognition: module.DefaultRecognitionThreshold,
	}
}

// Validate checks that both thresholds lie in [0, 1].
func (t Thresholds) Validate() error {
	if t.Detection < 0 || t.Detection > 1 {
		return errors.Errorf("detection threshold %v outside [0, 1]", t.Detection)
	}
	if t.Recognition < 0 || t.Recognition > 1 {
		return errors.Errorf("recognition threshold %v outside [0, 1]", t.Recognition)
	}
	return nil
}
