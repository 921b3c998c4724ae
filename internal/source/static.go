package source

import (
	"io"
	"sync"
	"time"

	"github.com/ayusman/mudra/internal/detector"
)

// Static plays back frames held in memory.
type Static struct {
	mu     sync.Mutex
	frames [][]detector.HandLandmarks
	loop   bool
	index  int
	open   bool
	reads  int
}

// NewStatic returns a source that yields one frame per entry of frames.
func NewStatic(frames [][]detector.HandLandmarks, loop bool) *Static {
	return &Static{frames: frames, loop: loop}
}

// Repeat returns a looping source that always sees hand.
func Repeat(hand detector.HandLandmarks) *Static {
	return NewStatic([][]detector.HandLandmarks{{hand}}, true)
}

func (s *Static) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.index = 0
	return nil
}

func (s *Static) Next() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return Frame{}, ErrNotOpen
	}
	if s.index >= len(s.frames) {
		if !s.loop || len(s.frames) == 0 {
			return Frame{}, io.EOF
		}
		s.index = 0
	}
	hands := s.frames[s.index]
	s.index++
	s.reads++
	return Frame{Hands: hands, At: time.Now()}, nil
}

func (s *Static) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

// SetFrames replaces the frames and restarts playback.
func (s *Static) SetFrames(frames [][]detector.HandLandmarks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = frames
	s.index = 0
}

// Reads returns how many frames have been read.
func (s *Static) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
