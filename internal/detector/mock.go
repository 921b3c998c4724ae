package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a Detector whose results are set by the caller.
type MockDetector struct {
	mu    sync.Mutex
	hands []HandLandmarks
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect was called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// Fixture hands. Image coordinates grow downward, so an extended finger has
// its tip above (smaller Y than) its PIP joint, which is above its MCP.

// finger returns the MCP, PIP, DIP and tip points of a finger rooted at mcp.
func finger(mcp Point3D, extended bool) [4]Point3D {
	if extended {
		return [4]Point3D{
			mcp,
			{X: mcp.X, Y: mcp.Y - 0.12, Z: mcp.Z},
			{X: mcp.X, Y: mcp.Y - 0.21, Z: mcp.Z},
			{X: mcp.X, Y: mcp.Y - 0.29, Z: mcp.Z},
		}
	}
	return [4]Point3D{
		mcp,
		{X: mcp.X, Y: mcp.Y - 0.03, Z: mcp.Z - 0.04},
		{X: mcp.X - 0.02, Y: mcp.Y, Z: mcp.Z - 0.04},
		{X: mcp.X - 0.03, Y: mcp.Y + 0.03, Z: mcp.Z - 0.02},
	}
}

// buildHand assembles a right hand with the given fingers extended. The
// order of extended is thumb, index, middle, ring, pinky.
func buildHand(extended [5]bool) HandLandmarks {
	lm := HandLandmarks{Handedness: "Right", Score: 0.95}
	lm.Points[Wrist] = Point3D{X: 0.5, Y: 0.8}

	if extended[0] {
		lm.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.02}
		lm.Points[ThumbMCP] = Point3D{X: 0.62, Y: 0.70, Z: 0.03}
		lm.Points[ThumbIP] = Point3D{X: 0.68, Y: 0.65, Z: 0.03}
		lm.Points[ThumbTip] = Point3D{X: 0.73, Y: 0.60, Z: 0.03}
	} else {
		lm.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.76, Z: 0.01}
		lm.Points[ThumbMCP] = Point3D{X: 0.58, Y: 0.71, Z: 0.0}
		lm.Points[ThumbIP] = Point3D{X: 0.56, Y: 0.67, Z: -0.02}
		lm.Points[ThumbTip] = Point3D{X: 0.52, Y: 0.66, Z: -0.03}
	}

	bases := [4]Point3D{
		{X: 0.55, Y: 0.68},
		{X: 0.50, Y: 0.66},
		{X: 0.45, Y: 0.68},
		{X: 0.40, Y: 0.70},
	}
	for f, base := range bases {
		joints := finger(base, extended[f+1])
		copy(lm.Points[IndexMCP+4*f:IndexMCP+4*f+4], joints[:])
	}
	return lm
}

// OpenPalmLandmarks returns a hand with all five fingers extended.
func OpenPalmLandmarks() HandLandmarks {
	return buildHand([5]bool{true, true, true, true, true})
}

// FistLandmarks returns a hand with every finger curled.
func FistLandmarks() HandLandmarks {
	return buildHand([5]bool{})
}

// PointLandmarks returns a hand with only the index finger extended.
func PointLandmarks() HandLandmarks {
	return buildHand([5]bool{false, true, false, false, false})
}

// VictoryLandmarks returns a hand with the index and middle fingers extended.
func VictoryLandmarks() HandLandmarks {
	return buildHand([5]bool{false, true, true, false, false})
}

// ThumbsUpLandmarks returns a hand with only the thumb extended. It matches
// none of the recognized shapes.
func ThumbsUpLandmarks() HandLandmarks {
	return buildHand([5]bool{true, false, false, false, false})
}

// DiagonalHand returns the synthetic hand used by benchmarks: point i lies
// at (0.1+0.04i, 0.1+0.04i).
func DiagonalHand() Hand {
	hand := make(Hand, NumLandmarks)
	for i := range hand {
		v := 0.1 + 0.04*float64(i)
		hand[i] = Point3D{X: v, Y: v}
	}
	return hand
}
