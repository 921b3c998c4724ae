package backend

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/module"
	"github.com/ayusman/mudra/internal/pool"
)

// Compiled classifies through a compiled module. Each call writes the
// landmarks into a pooled buffer inside the module's memory and passes its
// address across the boundary. Compiled is not safe for concurrent use.
type Compiled struct {
	mod     module.Module
	rec     module.Recognizer
	pool    *pool.Pool
	version string

	buf [module.HandBufferSize]byte
}

// NewCompiled creates and configures a recognizer instance in mod.
func NewCompiled(mod module.Module, thresholds Thresholds, poolBound int) (*Compiled, error) {
	rec, err := mod.NewRecognizer()
	if err != nil {
		return nil, errors.Wrap(err, "create recognizer")
	}
	ok, err := rec.Initialize()
	if err != nil {
		return nil, errors.Wrap(err, "initialize recognizer")
	}
	if !ok {
		return nil, errors.Wrap(module.ErrUnavailable, "recognizer refused to initialize")
	}
	if err := setThresholds(rec, thresholds); err != nil {
		return nil, err
	}
	version, err := rec.Version()
	if err != nil {
		return nil, errors.Wrap(err, "read version")
	}

	return &Compiled{
		mod:     mod,
		rec:     rec,
		pool:    pool.New(mod, module.HandBufferSize, poolBound),
		version: version,
	}, nil
}

func setThresholds(rec module.Recognizer, t Thresholds) error {
	if err := rec.SetDetectionThreshold(t.Detection); err != nil {
		return errors.Wrap(err, "set detection threshold")
	}
	if err := rec.SetRecognitionThreshold(t.Recognition); err != nil {
		return errors.Wrap(err, "set recognition threshold")
	}
	return nil
}

// SetThresholds reconfigures the recognizer inside the module.
func (c *Compiled) SetThresholds(t Thresholds) error {
	return setThresholds(c.rec, t)
}

// Method returns MethodCompiled.
func (c *Compiled) Method() Method {
	return MethodCompiled
}

// Version returns the module's version string.
func (c *Compiled) Version() string {
	return c.version
}

// Pool exposes the buffer pool.
func (c *Compiled) Pool() *pool.Pool {
	return c.pool
}

// encode writes the x and y of each landmark as little-endian float32.
// Depth does not cross the boundary.
func encode(dst []byte, hand detector.Hand) {
	for i, p := range hand {
		binary.LittleEndian.PutUint32(dst[i*8:], math.Float32bits(float32(p.X)))
		binary.LittleEndian.PutUint32(dst[i*8+4:], math.Float32bits(float32(p.Y)))
	}
}

// Classify runs one hand through the module.
func (c *Compiled) Classify(hand detector.Hand) (res Result, err error) {
	if !hand.Valid() {
		return None(0), nil
	}
	encode(c.buf[:], hand)

	h, err := c.pool.Acquire()
	if err != nil {
		return Result{}, errors.Wrap(err, "acquire buffer")
	}
	defer func() {
		err = multierr.Append(err, c.pool.Release(h))
	}()

	if err := c.mod.Memory().Write(uint32(h), c.buf[:]); err != nil {
		return Result{}, errors.Wrap(err, "write landmarks")
	}
	out, err := c.rec.RecognizeFromPointer(uint32(h), module.FloatsPerHand)
	if err != nil {
		return Result{}, errors.Wrap(err, "recognize")
	}
	r, err := module.ParseResult(out)
	if err != nil {
		return Result{}, err
	}
	return fromModule(r), nil
}

// ClassifyBatch runs several hands through the module in one call. Hands
// that are not valid yield the sentinel in their slot.
func (c *Compiled) ClassifyBatch(hands []detector.Hand) (results []Result, err error) {
	if len(hands) == 0 {
		return nil, nil
	}

	data := make([]byte, len(hands)*module.HandBufferSize)
	valid := make([]bool, len(hands))
	for i, hand := range hands {
		if hand.Valid() {
			encode(data[i*module.HandBufferSize:], hand)
			valid[i] = true
		}
	}

	addr, err := c.mod.Malloc(uint32(len(data)))
	if err != nil {
		return nil, errors.Wrap(err, "allocate batch")
	}
	defer func() {
		err = multierr.Append(err, c.mod.Free(addr))
	}()

	if err := c.mod.Memory().Write(addr, data); err != nil {
		return nil, errors.Wrap(err, "write batch")
	}
	out, err := c.rec.RecognizeBatch(addr, len(hands), module.FloatsPerHand)
	if err != nil {
		return nil, errors.Wrap(err, "recognize batch")
	}
	batch, err := module.ParseBatch(out)
	if err != nil {
		return nil, err
	}
	if batch.FrameCount != len(hands) {
		return nil, errors.Errorf("batch returned %d frames for %d hands", batch.FrameCount, len(hands))
	}

	results = make([]Result, len(hands))
	for i, r := range batch.Results {
		if !valid[i] {
			results[i] = None(0)
			continue
		}
		results[i] = fromModule(r)
	}
	return results, nil
}

// Close frees pooled buffers and the module.
func (c *Compiled) Close(ctx context.Context) error {
	return multierr.Combine(
		c.pool.DisposeAll(),
		c.mod.Close(ctx),
	)
}
