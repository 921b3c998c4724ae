// Package native is the in-process build of the compiled gesture module.
// It keeps its state in a private linear memory and exposes exactly the
// pointer-based surface a WebAssembly build exports, so callers exercise
// the same boundary either way.
package native

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/module"
)

// Version is reported by every recognizer of this build.
const Version = "1.0.0"

// Config configures the native module.
type Config struct {
	// Seed seeds the weight generator.
	Seed int64

	// InitialPages and MaxPages bound the linear memory.
	InitialPages uint32
	MaxPages     uint32
}

// DefaultConfig returns the default native module configuration.
func DefaultConfig() Config {
	return Config{
		Seed:         model.DefaultSeed,
		InitialPages: 1,
		MaxPages:     16,
	}
}

// Module is the native compiled module. It is safe for concurrent use.
type Module struct {
	config Config

	mu     sync.Mutex
	mem    *linearMemory
	heap   *allocator
	closed bool
}

// Load creates a native module.
func Load(ctx context.Context, config Config) (*Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if config.InitialPages == 0 {
		config.InitialPages = 1
	}
	if config.MaxPages < config.InitialPages {
		return nil, errors.Wrapf(module.ErrUnavailable, "max pages %d below initial pages %d", config.MaxPages, config.InitialPages)
	}
	mem := newLinearMemory(config.InitialPages, config.MaxPages)
	return &Module{config: config, mem: mem, heap: newAllocator(mem)}, nil
}

// Loader returns a module.Loader for config.
func Loader(config Config) module.Loader {
	return module.LoaderFunc(func(ctx context.Context) (module.Module, error) {
		return Load(ctx, config)
	})
}

// Memory returns the module's linear memory.
func (m *Module) Memory() module.Memory {
	return lockedMemory{m}
}

// Malloc reserves size bytes.
func (m *Module) Malloc(size uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("module closed")
	}
	return m.heap.malloc(size)
}

// Free releases a block returned by Malloc.
func (m *Module) Free(addr uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("module closed")
	}
	return m.heap.release(addr)
}

// Allocations returns the number of live blocks.
func (m *Module) Allocations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heap.live()
}

// NewRecognizer creates a recognizer instance.
func (m *Module) NewRecognizer() (module.Recognizer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("module closed")
	}
	return &Recognizer{
		mod:         m,
		detection:   module.DefaultDetectionThreshold,
		recognition: module.DefaultRecognitionThreshold,
	}, nil
}

// Close releases the module's memory.
func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.mem.buf = nil
	return nil
}

// readFloats decodes count little-endian float32 values at addr.
func (m *Module) readFloats(addr uint32, count int) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.New("module closed")
	}
	raw, err := m.mem.Read(addr, uint32(count*4))
	if err != nil {
		return nil, err
	}
	out := make([]float32, count)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

type lockedMemory struct {
	m *Module
}

func (l lockedMemory) Write(addr uint32, data []byte) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return l.m.mem.Write(addr, data)
}

func (l lockedMemory) Read(addr, size uint32) ([]byte, error) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return l.m.mem.Read(addr, size)
}

func (l lockedMemory) Size() uint32 {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return l.m.mem.Size()
}

// Recognizer classifies landmark buffers stored in the module's memory.
type Recognizer struct {
	mod *Module

	mu          sync.RWMutex
	layers      []layer32
	detection   float32
	recognition float32
}

// Initialize generates the network weights.
func (r *Recognizer) Initialize() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.layers == nil {
		r.layers = buildLayers(r.mod.config.Seed)
	}
	return true, nil
}

// SetDetectionThreshold sets the minimum fraction of landmarks that must
// lie inside the frame for a hand to count as present.
func (r *Recognizer) SetDetectionThreshold(v float64) error {
	if v < 0 || v > 1 {
		return errors.Errorf("detection threshold %v outside [0, 1]", v)
	}
	r.mu.Lock()
	r.detection = float32(v)
	r.mu.Unlock()
	return nil
}

// SetRecognitionThreshold sets the minimum confidence for reporting a gesture.
func (r *Recognizer) SetRecognitionThreshold(v float64) error {
	if v < 0 || v > 1 {
		return errors.Errorf("recognition threshold %v outside [0, 1]", v)
	}
	r.mu.Lock()
	r.recognition = float32(v)
	r.mu.Unlock()
	return nil
}

// Version returns the build version.
func (r *Recognizer) Version() (string, error) {
	return Version, nil
}

// RecognizeFromPointer classifies one landmark buffer.
func (r *Recognizer) RecognizeFromPointer(addr uint32, count int) (string, error) {
	res, err := r.recognize(addr, count)
	if err != nil {
		return "", err
	}
	return encode(res)
}

// RecognizeBatch classifies frames consecutive landmark buffers.
func (r *Recognizer) RecognizeBatch(addr uint32, frames, perFrame int) (string, error) {
	if frames < 0 {
		return "", errors.Errorf("negative frame count %d", frames)
	}
	batch := module.Batch{Results: make([]module.Result, 0, frames), FrameCount: frames}
	for i := 0; i < frames; i++ {
		res, err := r.recognize(addr+uint32(i*perFrame*4), perFrame)
		if err != nil {
			return "", errors.Wrapf(err, "frame %d", i)
		}
		batch.Results = append(batch.Results, res)
	}
	return encode(batch)
}

func (r *Recognizer) recognize(addr uint32, count int) (module.Result, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.layers == nil {
		return module.Result{}, errors.New("recognizer not initialized")
	}
	if count != module.FloatsPerHand {
		return sentinel(0), nil
	}

	values, err := r.mod.readFloats(addr, count)
	if err != nil {
		return module.Result{}, err
	}
	pts := make([]point, numLandmarks)
	for i := range pts {
		pts[i] = point{x: values[2*i], y: values[2*i+1]}
	}

	if inFrame(pts) < r.detection {
		return sentinel(0), nil
	}

	id, conf := decide32(infer32(r.layers, extract32(pts)))
	if id == model.None || conf < r.recognition {
		return sentinel(conf), nil
	}
	return module.Result{Gesture: model.Label(id), Confidence: float64(conf), ID: id}, nil
}

func sentinel(conf float32) module.Result {
	return module.Result{Gesture: model.Label(model.None), Confidence: float64(conf), ID: model.None}
}

func encode(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "encode result")
	}
	return string(b), nil
}
