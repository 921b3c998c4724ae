package detector

import "gocv.io/x/gocv"

// Detector finds hands in a video frame. Implementations return an empty
// slice when no hand is visible.
type Detector interface {
	Detect(frame *gocv.Mat) ([]HandLandmarks, error)
	Close() error
}

// Config holds the detection options shared by detector implementations.
type Config struct {
	// MaxHands caps the number of reported hands (default: 1).
	MaxHands int

	// MinConfidence drops detections scored below it.
	MinConfidence float64
}

// DefaultConfig returns the detection defaults.
func DefaultConfig() Config {
	return Config{
		MaxHands:      1,
		MinConfidence: 0.5,
	}
}
