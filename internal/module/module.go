// Package module defines the contract of a compiled gesture module: a
// self-contained build of the classifier reached through a linear memory
// and a handful of exported entry points.
//
// A loader either returns a Module whose every capability is present or
// fails with ErrUnavailable. Callers never check for individual exports.
package module

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrUnavailable is returned when a compiled module cannot be loaded or
// lacks a required capability.
var ErrUnavailable = errors.New("compiled module unavailable")

// FloatsPerHand is the number of float32 values in one landmark buffer:
// x and y for each of the 21 landmarks.
const FloatsPerHand = 42

// HandBufferSize is the size in bytes of one landmark buffer.
const HandBufferSize = FloatsPerHand * 4

// Default thresholds applied by Recognizer implementations.
const (
	DefaultDetectionThreshold   = 0.5
	DefaultRecognitionThreshold = 0.7
)

// Memory is the module's linear memory.
type Memory interface {
	// Write copies data to addr. It fails if the range is out of bounds.
	Write(addr uint32, data []byte) error

	// Read returns a copy of size bytes at addr.
	Read(addr, size uint32) ([]byte, error)

	// Size returns the current memory size in bytes.
	Size() uint32
}

// Module is a loaded compiled module.
type Module interface {
	// Memory returns the module's linear memory.
	Memory() Memory

	// Malloc reserves size bytes and returns their address.
	Malloc(size uint32) (uint32, error)

	// Free releases a block returned by Malloc.
	Free(addr uint32) error

	// NewRecognizer creates a recognizer instance inside the module.
	NewRecognizer() (Recognizer, error)

	// Close releases the module.
	Close(ctx context.Context) error
}

// Recognizer is a classifier instance living inside a Module.
type Recognizer interface {
	// Initialize prepares the instance and reports success.
	Initialize() (bool, error)

	SetDetectionThreshold(v float64) error
	SetRecognitionThreshold(v float64) error

	// Version returns the module's version string.
	Version() (string, error)

	// RecognizeFromPointer classifies the count float32 values at addr,
	// interpreted as (x, y) pairs, and returns a JSON encoded Result.
	RecognizeFromPointer(addr uint32, count int) (string, error)

	// RecognizeBatch classifies frames consecutive landmark buffers of
	// perFrame float32 values each and returns a JSON encoded Batch.
	RecognizeBatch(addr uint32, frames, perFrame int) (string, error)
}

// Result is the JSON document returned by RecognizeFromPointer.
type Result struct {
	Gesture    string  `json:"gesture"`
	Confidence float64 `json:"confidence"`
	ID         int     `json:"id"`
}

// Batch is the JSON document returned by RecognizeBatch.
type Batch struct {
	Results    []Result `json:"results"`
	FrameCount int      `json:"frameCount"`
}

// ParseResult decodes a RecognizeFromPointer response.
func ParseResult(s string) (Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return Result{}, errors.Wrap(err, "decode recognition result")
	}
	return r, nil
}

// ParseBatch decodes a RecognizeBatch response.
func ParseBatch(s string) (Batch, error) {
	var b Batch
	if err := json.Unmarshal([]byte(s), &b); err != nil {
		return Batch{}, errors.Wrap(err, "decode batch result")
	}
	if b.FrameCount != len(b.Results) {
		return Batch{}, errors.Errorf("batch reports %d frames but has %d results", b.FrameCount, len(b.Results))
	}
	return b, nil
}

// Loader loads a compiled module.
type Loader interface {
	Load(ctx context.Context) (Module, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (Module, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context) (Module, error) {
	return f(ctx)
}
