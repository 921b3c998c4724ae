package source

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
)

// Capture resolution.
const (
	DefaultWidth  = 640
	DefaultHeight = 480
)

// Device reads raw frames from a video device.
type Device interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	IsOpen() bool
}

type videoDevice struct {
	id      int
	fps     int
	mu      sync.Mutex
	capture *gocv.VideoCapture
}

// NewDevice returns a Device for the given camera index.
func NewDevice(id, fps int) Device {
	return &videoDevice{id: id, fps: fps}
}

func (d *videoDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capture != nil {
		return nil
	}
	capture, err := gocv.OpenVideoCapture(d.id)
	if err != nil {
		return errors.Wrapf(err, "open camera %d", d.id)
	}
	capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
	capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
	capture.Set(gocv.VideoCaptureFPS, float64(d.fps))
	d.capture = capture
	return nil
}

func (d *videoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capture == nil {
		return nil
	}
	err := d.capture.Close()
	d.capture = nil
	return err
}

// ReadFrame reads one frame. The caller closes the returned Mat.
func (d *videoDevice) ReadFrame() (*gocv.Mat, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.capture == nil {
		return nil, ErrNotOpen
	}
	mat := gocv.NewMat()
	if ok := d.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, errors.Errorf("camera %d returned no frame", d.id)
	}
	return &mat, nil
}

func (d *videoDevice) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.fps = fps
	if d.capture != nil {
		d.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (d *videoDevice) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.capture != nil
}

// Camera is a Source that runs a detector over device frames. When a
// motion gate is set, still frames skip detection unless a hand was seen
// in the previous frame.
type Camera struct {
	device   Device
	detector detector.Detector
	motion   *MotionGate
	now      func() time.Time

	handSeen bool
}

// NewCamera returns a camera source. motion may be nil.
func NewCamera(device Device, det detector.Detector, motion *MotionGate) *Camera {
	return &Camera{device: device, detector: det, motion: motion, now: time.Now}
}

// Open opens the device.
func (c *Camera) Open() error {
	if c.motion != nil {
		c.motion.Reset()
	}
	c.handSeen = false
	return c.device.Open()
}

// Next reads a frame and detects hands in it.
func (c *Camera) Next() (Frame, error) {
	if !c.device.IsOpen() {
		return Frame{}, ErrNotOpen
	}
	mat, err := c.device.ReadFrame()
	if err != nil {
		return Frame{}, err
	}
	defer mat.Close()

	frame := Frame{At: c.now()}
	if c.motion != nil {
		moved, _ := c.motion.Detect(mat)
		if !moved && !c.handSeen {
			frame.Still = true
			return frame, nil
		}
	}

	hands, err := c.detector.Detect(mat)
	if err != nil {
		return Frame{}, errors.Wrap(err, "detect hands")
	}
	frame.Hands = hands
	c.handSeen = len(hands) > 0
	return frame, nil
}

// SetFPS changes the device frame rate.
func (c *Camera) SetFPS(fps int) {
	c.device.SetFPS(fps)
}

// Close closes the device and the motion gate. The detector is owned by
// the caller.
func (c *Camera) Close() error {
	if c.motion != nil {
		c.motion.Close()
	}
	return c.device.Close()
}
