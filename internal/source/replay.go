package source

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/ayusman/mudra/internal/detector"
)

const maxLineSize = 1 << 20

// Replay is a Source that reads recorded detector responses, one JSON line
// per frame, in the format detector.DecodeHands accepts. Blank lines are
// skipped.
type Replay struct {
	open func() (io.ReadCloser, error)
	loop bool
	now  func() time.Time

	rc      io.ReadCloser
	scanner *bufio.Scanner
	line    int
	frames  int
}

// NewReplayFile replays the file at path. With loop set, it starts over at
// the end instead of returning io.EOF.
func NewReplayFile(path string, loop bool) *Replay {
	return &Replay{
		open: func() (io.ReadCloser, error) { return os.Open(path) },
		loop: loop,
		now:  time.Now,
	}
}

// NewReplayReader replays r once.
func NewReplayReader(r io.Reader) *Replay {
	return &Replay{
		open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
		now:  time.Now,
	}
}

// Open starts reading from the first frame.
func (r *Replay) Open() error {
	if r.rc != nil {
		return nil
	}
	rc, err := r.open()
	if err != nil {
		return errors.Wrap(err, "open replay")
	}
	r.rc = rc
	r.scanner = bufio.NewScanner(rc)
	r.scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	r.line = 0
	r.frames = 0
	return nil
}

// Next decodes the next frame.
func (r *Replay) Next() (Frame, error) {
	if r.scanner == nil {
		return Frame{}, ErrNotOpen
	}
	for {
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return Frame{}, errors.Wrapf(err, "read replay line %d", r.line+1)
			}
			if !r.loop || r.frames == 0 {
				return Frame{}, io.EOF
			}
			if err := r.rewind(); err != nil {
				return Frame{}, err
			}
			continue
		}
		r.line++

		data := bytes.TrimSpace(r.scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		hands, err := detector.DecodeHands(data)
		if err != nil {
			return Frame{}, errors.Wrapf(err, "replay line %d", r.line)
		}
		r.frames++
		return Frame{Hands: hands, At: r.now()}, nil
	}
}

func (r *Replay) rewind() error {
	if err := r.Close(); err != nil {
		return err
	}
	return r.Open()
}

// Close stops reading.
func (r *Replay) Close() error {
	if r.rc == nil {
		return nil
	}
	err := r.rc.Close()
	r.rc = nil
	r.scanner = nil
	return err
}

// ReadAll opens src and reads frames until io.EOF. src must be finite.
func ReadAll(src Source) ([]Frame, error) {
	if err := src.Open(); err != nil {
		return nil, err
	}
	defer src.Close()

	var frames []Frame
	for {
		f, err := src.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
}
