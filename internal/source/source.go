// Package source produces hand landmarks frame by frame, from a camera
// through a detector, from a recorded JSON-lines file, or from memory.
package source

import (
	"time"

	"github.com/pkg/errors"

	"github.com/ayusman/mudra/internal/detector"
)

// ErrNotOpen is returned when reading from a source that is not open.
var ErrNotOpen = errors.New("source is not open")

// Frame is one captured frame's detections.
type Frame struct {
	Hands []detector.HandLandmarks
	At    time.Time

	// Still reports that detection was skipped because nothing moved.
	Still bool
}

// Primary returns the first detected hand, or nil when there is none.
func (f Frame) Primary() detector.Hand {
	if len(f.Hands) == 0 {
		return nil
	}
	return f.Hands[0].Hand()
}

// Source yields frames. Next returns io.EOF when a finite source is
// exhausted.
type Source interface {
	Open() error
	Next() (Frame, error)
	Close() error
}
