// Package detector defines the hand landmark data model and the interface
// implemented by hand-landmark detectors.
package detector

// Landmark indices in MediaPipe order: the wrist, then four joints per
// finger from base to tip.
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D is a landmark in normalized image coordinates. Z is the depth
// estimate and stays 0 when the detector does not provide one.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Hand is an ordered landmark sequence. Only a sequence of exactly
// NumLandmarks points is a hand; anything else is treated as absent.
type Hand []Point3D

// Valid reports whether h has exactly NumLandmarks points.
func (h Hand) Valid() bool {
	return len(h) == NumLandmarks
}

// InFrame returns the fraction of points lying inside the unit frame.
func (h Hand) InFrame() float64 {
	if len(h) == 0 {
		return 0
	}
	inside := 0
	for _, p := range h {
		if p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1 {
			inside++
		}
	}
	return float64(inside) / float64(len(h))
}

// HandLandmarks is a single detection as reported by a Detector.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// Hand returns the detection's points as a Hand.
func (h HandLandmarks) Hand() Hand {
	hand := make(Hand, NumLandmarks)
	copy(hand, h.Points[:])
	return hand
}
