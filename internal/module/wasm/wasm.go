// Package wasm loads a WebAssembly build of the gesture module with the
// wazero runtime and adapts its exports to module.Module.
package wasm

import (
	"context"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/ayusman/mudra/internal/module"
)

// Exports every build must provide.
const (
	ExportMemory                  = "memory"
	ExportMalloc                  = "malloc"
	ExportFree                    = "free"
	ExportNew                     = "recognizer_new"
	ExportInitialize              = "recognizer_initialize"
	ExportSetDetectionThreshold   = "recognizer_set_detection_threshold"
	ExportSetRecognitionThreshold = "recognizer_set_recognition_threshold"
	ExportVersion                 = "recognizer_version"
	ExportRecognizeFromPointer    = "recognizer_recognize_from_pointer"
	ExportRecognizeBatch          = "recognizer_recognize_batch"
)

var requiredExports = []string{
	ExportMalloc,
	ExportFree,
	ExportNew,
	ExportInitialize,
	ExportSetDetectionThreshold,
	ExportSetRecognitionThreshold,
	ExportVersion,
	ExportRecognizeFromPointer,
	ExportRecognizeBatch,
}

// maxStringLen bounds strings read back from module memory.
const maxStringLen = 1 << 20

// Config configures the loader.
type Config struct {
	// Path is the .wasm file to load.
	Path string

	// MemoryLimitPages caps linear memory growth (0 keeps the runtime default).
	MemoryLimitPages uint32
}

// Module is a loaded WebAssembly gesture module. Calls are serialized.
type Module struct {
	runtime wazero.Runtime
	mod     api.Module
	mem     api.Memory
	fns     map[string]api.Function

	// ctx is used for calls made through interfaces without a context.
	ctx context.Context

	mu sync.Mutex
}

// Load reads and instantiates the module at config.Path.
func Load(ctx context.Context, config Config) (*Module, error) {
	code, err := os.ReadFile(config.Path)
	if err != nil {
		return nil, errors.Wrapf(module.ErrUnavailable, "read %s: %v", config.Path, err)
	}
	return LoadBytes(ctx, code, config)
}

// LoadBytes instantiates a module from its binary. Every required export
// is resolved up front; a missing one fails the load with
// module.ErrUnavailable.
func LoadBytes(ctx context.Context, code []byte, config Config) (*Module, error) {
	rc := wazero.NewRuntimeConfig()
	if config.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(config.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, rc)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return nil, errors.Wrapf(module.ErrUnavailable, "instantiate wasi: %v", err)
	}

	compiled, err := r.CompileModule(ctx, code)
	if err != nil {
		r.Close(ctx)
		return nil, errors.Wrapf(module.ErrUnavailable, "compile: %v", err)
	}

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("gesture").WithStartFunctions("_initialize"))
	if err != nil {
		r.Close(ctx)
		return nil, errors.Wrapf(module.ErrUnavailable, "instantiate: %v", err)
	}

	// Memory() wraps a nil instance in a non-nil interface when the
	// module declares no memory, so look the export up by name.
	mem := mod.ExportedMemory(ExportMemory)
	m := &Module{
		runtime: r,
		mod:     mod,
		mem:     mem,
		fns:     make(map[string]api.Function, len(requiredExports)),
		ctx:     context.WithoutCancel(ctx),
	}
	if m.mem == nil {
		r.Close(ctx)
		return nil, errors.Wrap(module.ErrUnavailable, "module exports no memory")
	}
	for _, name := range requiredExports {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			r.Close(ctx)
			return nil, errors.Wrapf(module.ErrUnavailable, "failed to get function %q", name)
		}
		m.fns[name] = fn
	}
	return m, nil
}

// Loader returns a module.Loader for config.
func Loader(config Config) module.Loader {
	return module.LoaderFunc(func(ctx context.Context) (module.Module, error) {
		return Load(ctx, config)
	})
}

func (m *Module) call(name string, params ...uint64) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results, err := m.fns[name].Call(m.ctx, params...)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", name)
	}
	return results, nil
}

func (m *Module) call32(name string, params ...uint64) (uint32, error) {
	results, err := m.call(name, params...)
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, errors.Errorf("%s returned no value", name)
	}
	return api.DecodeU32(results[0]), nil
}

// Memory returns the module's linear memory.
func (m *Module) Memory() module.Memory {
	return memory{m}
}

// Malloc calls the module's allocator.
func (m *Module) Malloc(size uint32) (uint32, error) {
	addr, err := m.call32(ExportMalloc, api.EncodeU32(size))
	if err != nil {
		return 0, err
	}
	if addr == 0 {
		return 0, errors.Errorf("malloc of %d bytes failed", size)
	}
	return addr, nil
}

// Free releases a block returned by Malloc.
func (m *Module) Free(addr uint32) error {
	_, err := m.call(ExportFree, api.EncodeU32(addr))
	return err
}

// NewRecognizer creates a recognizer instance inside the module.
func (m *Module) NewRecognizer() (module.Recognizer, error) {
	handle, err := m.call32(ExportNew)
	if err != nil {
		return nil, err
	}
	if handle == 0 {
		return nil, errors.New("module returned a null recognizer")
	}
	return &Recognizer{mod: m, handle: handle}, nil
}

// Close tears down the runtime and every instance in it.
func (m *Module) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

// readString reads a NUL-terminated string at addr.
func (m *Module) readString(addr uint32) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := m.mem.Size()
	if addr == 0 || addr >= size {
		return "", errors.Errorf("string pointer %#x out of bounds", addr)
	}
	limit := size - addr
	if limit > maxStringLen {
		limit = maxStringLen
	}
	buf, ok := m.mem.Read(addr, limit)
	if !ok {
		return "", errors.Errorf("read string at %#x", addr)
	}
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i]), nil
		}
	}
	return "", errors.Errorf("unterminated string at %#x", addr)
}

type memory struct {
	m *Module
}

func (mem memory) Write(addr uint32, data []byte) error {
	mem.m.mu.Lock()
	defer mem.m.mu.Unlock()
	if !mem.m.mem.Write(addr, data) {
		return errors.Errorf("write of %d bytes at %#x out of bounds", len(data), addr)
	}
	return nil
}

func (mem memory) Read(addr, size uint32) ([]byte, error) {
	mem.m.mu.Lock()
	defer mem.m.mu.Unlock()
	buf, ok := mem.m.mem.Read(addr, size)
	if !ok {
		return nil, errors.Errorf("read of %d bytes at %#x out of bounds", size, addr)
	}
	return append([]byte(nil), buf...), nil
}

func (mem memory) Size() uint32 {
	mem.m.mu.Lock()
	defer mem.m.mu.Unlock()
	return mem.m.mem.Size()
}

// Recognizer is a recognizer instance inside a WebAssembly module.
type Recognizer struct {
	mod    *Module
	handle uint32
}

// Initialize prepares the instance.
func (r *Recognizer) Initialize() (bool, error) {
	ok, err := r.mod.call32(ExportInitialize, api.EncodeU32(r.handle))
	if err != nil {
		return false, err
	}
	return ok != 0, nil
}

// SetDetectionThreshold sets the in-frame fraction a hand needs.
func (r *Recognizer) SetDetectionThreshold(v float64) error {
	_, err := r.mod.call(ExportSetDetectionThreshold, api.EncodeU32(r.handle), api.EncodeF32(float32(v)))
	return err
}

// SetRecognitionThreshold sets the minimum reported confidence.
func (r *Recognizer) SetRecognitionThreshold(v float64) error {
	_, err := r.mod.call(ExportSetRecognitionThreshold, api.EncodeU32(r.handle), api.EncodeF32(float32(v)))
	return err
}

// Version returns the module's version string.
func (r *Recognizer) Version() (string, error) {
	addr, err := r.mod.call32(ExportVersion, api.EncodeU32(r.handle))
	if err != nil {
		return "", err
	}
	return r.mod.readString(addr)
}

// RecognizeFromPointer classifies the landmark buffer at addr.
func (r *Recognizer) RecognizeFromPointer(addr uint32, count int) (string, error) {
	out, err := r.mod.call32(ExportRecognizeFromPointer, api.EncodeU32(r.handle), api.EncodeU32(addr), api.EncodeI32(int32(count)))
	if err != nil {
		return "", err
	}
	return r.mod.readString(out)
}

// RecognizeBatch classifies frames consecutive landmark buffers at addr.
func (r *Recognizer) RecognizeBatch(addr uint32, frames, perFrame int) (string, error) {
	out, err := r.mod.call32(ExportRecognizeBatch, api.EncodeU32(r.handle), api.EncodeU32(addr), api.EncodeI32(int32(frames)), api.EncodeI32(int32(perFrame)))
	if err != nil {
		return "", err
	}
	return r.mod.readString(out)
}
