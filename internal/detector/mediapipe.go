package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// ErrScriptNotFound is returned when the landmark service script cannot be located.
var ErrScriptNotFound = errors.New("mediapipe_service.py not found")

// MediaPipeConfig configures the MediaPipe subprocess detector.
type MediaPipeConfig struct {
	Config

	// ScriptPath overrides the service script lookup.
	ScriptPath string

	// PythonPath overrides the interpreter lookup.
	PythonPath string

	// IdleTimeout stops the subprocess after this long without frames.
	IdleTimeout time.Duration
}

// MediaPipeDetector runs hand-landmark detection in a Python subprocess.
// Frames are written as a 4-byte big-endian length followed by JPEG bytes;
// each frame is answered with one JSON line.
type MediaPipeDetector struct {
	config MediaPipeConfig
	logger *zap.SugaredLogger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	started   bool
	idleTimer *time.Timer
}

// NewMediaPipeDetector creates a detector. The subprocess starts lazily on
// the first frame.
func NewMediaPipeDetector(config MediaPipeConfig, logger *zap.SugaredLogger) (*MediaPipeDetector, error) {
	if config.ScriptPath == "" {
		config.ScriptPath = findFirst(scriptCandidates())
	}
	if config.ScriptPath == "" {
		return nil, ErrScriptNotFound
	}
	if config.PythonPath == "" {
		config.PythonPath = findFirst(venvCandidates())
	}
	if config.PythonPath == "" {
		config.PythonPath = "python3"
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &MediaPipeDetector{config: config, logger: logger}, nil
}

// Detect encodes the frame, sends it to the subprocess and returns the
// hands it reports.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, errors.Wrap(err, "encode frame")
	}
	defer buf.Close()
	data := buf.GetBytes()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := d.stdin.Write(header[:]); err != nil {
		return nil, errors.Wrap(err, "write frame header")
	}
	if _, err := d.stdin.Write(data); err != nil {
		return nil, errors.Wrap(err, "write frame")
	}

	line, err := d.stdout.ReadBytes('\n')
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	hands, err := DecodeHands(line)
	if err != nil {
		return nil, err
	}

	d.resetIdleTimer()
	return d.filter(hands), nil
}

// filter drops detections below the configured confidence and keeps at
// most MaxHands of them.
func (d *MediaPipeDetector) filter(hands []HandLandmarks) []HandLandmarks {
	kept := hands[:0]
	for _, h := range hands {
		if h.Score < d.config.MinConfidence {
			continue
		}
		kept = append(kept, h)
		if d.config.MaxHands > 0 && len(kept) == d.config.MaxHands {
			break
		}
	}
	return kept
}

// Close shuts down the subprocess.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	cmd := exec.Command(d.config.PythonPath, d.config.ScriptPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errors.Wrap(err, "create stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "create stdout pipe")
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "start mediapipe service")
	}
	d.logger.Infow("started landmark service", "script", d.config.ScriptPath, "pid", cmd.Process.Pid)

	d.cmd = cmd
	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	return nil
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	d.logger.Info("stopped landmark service")
	return err
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if err := d.shutdown(); err != nil {
			d.logger.Warnw("landmark service exited", "error", err)
		}
	})
}

// DecodeHands parses one detector response line of the form
// {"hands":[{"points":[...],"handedness":"Right","score":0.9}]}.
// Detections that do not carry exactly NumLandmarks points are dropped.
func DecodeHands(line []byte) ([]HandLandmarks, error) {
	var response struct {
		Hands []struct {
			Points     []Point3D `json:"points"`
			Handedness string    `json:"handedness"`
			Score      float64   `json:"score"`
		} `json:"hands"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, errors.Wrap(err, "parse response")
	}

	hands := make([]HandLandmarks, 0, len(response.Hands))
	for _, h := range response.Hands {
		if !Hand(h.Points).Valid() {
			continue
		}
		lm := HandLandmarks{Handedness: h.Handedness, Score: h.Score}
		copy(lm.Points[:], h.Points)
		hands = append(hands, lm)
	}
	return hands, nil
}

func scriptCandidates() []string {
	candidates := []string{
		"scripts/mediapipe_service.py",
		"../scripts/mediapipe_service.py",
	}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), "scripts/mediapipe_service.py"))
	}
	return append(candidates, filepath.Join(os.Getenv("HOME"), ".mudra/scripts/mediapipe_service.py"))
}

func venvCandidates() []string {
	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
	}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), "venv/bin/python"))
	}
	return append(candidates, filepath.Join(os.Getenv("HOME"), ".mudra/venv/bin/python"))
}

// findFirst returns the absolute path of the first existing candidate.
func findFirst(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return ""
}
