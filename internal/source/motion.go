package source

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Motion detection parameters.
const (
	BlurSize      = 21
	DiffThreshold = 25
)

// MotionGate compares consecutive frames and reports whether enough
// pixels changed to be worth running hand detection.
type MotionGate struct {
	mu          sync.Mutex
	percent     float64
	prev        gocv.Mat
	initialized bool
}

// NewMotionGate returns a gate that opens when more than percent of the
// pixels differ from the previous frame.
func NewMotionGate(percent float64) *MotionGate {
	return &MotionGate{percent: percent, prev: gocv.NewMat()}
}

// Detect reports whether frame moved relative to the previous frame and
// the percentage of pixels that changed. The first frame never moves.
func (m *MotionGate) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: BlurSize, Y: BlurSize}, 0, 0, gocv.BorderDefault)

	if !m.initialized {
		blurred.CopyTo(&m.prev)
		m.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prev, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, DiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols()) * 100
	blurred.CopyTo(&m.prev)
	return changed > m.percent, changed
}

// Reset forgets the baseline frame.
func (m *MotionGate) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

// Close releases the baseline frame.
func (m *MotionGate) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *MotionGate) resetLocked() {
	if !m.prev.Empty() {
		m.prev.Close()
		m.prev = gocv.NewMat()
	}
	m.initialized = false
}
