// Package stability debounces classification results so that each change
// of gesture is reported once.
package stability

import (
	"sync"

	"github.com/ayusman/mudra/internal/backend"
)

// DefaultMinConfidence is the confidence a result must reach to be emitted.
const DefaultMinConfidence = 0.6

// Gate remembers the last emitted gesture. It is safe for concurrent use.
type Gate struct {
	minConfidence float64

	mu   sync.Mutex
	last string
}

// NewGate creates a gate. A non-positive minConfidence uses
// DefaultMinConfidence.
func NewGate(minConfidence float64) *Gate {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return &Gate{minConfidence: minConfidence}
}

// Accept reports whether r should be emitted. A result is suppressed when
// it is the sentinel, when its confidence is below the gate's minimum, or
// when it repeats the last emitted gesture. Suppressed results do not
// change the gate's memory.
func (g *Gate) Accept(r backend.Result) bool {
	if r.IsNone() || r.Confidence < g.minConfidence {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r.Gesture == g.last {
		return false
	}
	g.last = r.Gesture
	return true
}

// Last returns the last emitted gesture, or "" if none.
func (g *Gate) Last() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Reset forgets the last emitted gesture.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.last = ""
	g.mu.Unlock()
}
