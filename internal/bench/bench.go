// Package bench measures and compares the per-call latency of the compiled
// and interpreted backends on identical input.
package bench

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"

	"github.com/ayusman/mudra/internal/backend"
	"github.com/ayusman/mudra/internal/detector"
)

// DefaultIterations is the benchmark length when none is given.
const DefaultIterations = 100

// Stats summarizes per-call durations in milliseconds.
type Stats struct {
	Avg   float64 `json:"avgMs"`
	Min   float64 `json:"minMs"`
	Max   float64 `json:"maxMs"`
	P50   float64 `json:"p50Ms"`
	P95   float64 `json:"p95Ms"`
	Count int     `json:"count"`
}

// Report is the outcome of a benchmark run.
type Report struct {
	Iterations  int     `json:"iterations"`
	Compiled    Stats   `json:"compiled"`
	Interpreted Stats   `json:"interpreted"`
	Speedup     float64 `json:"speedup"`

	// CompiledErrors counts compiled calls that failed. Failed calls are
	// still timed, so Compiled.Count always equals Iterations.
	CompiledErrors int `json:"compiledErrors"`

	CompiledSamples    []float64 `json:"compiledSamples,omitempty"`
	InterpretedSamples []float64 `json:"interpretedSamples,omitempty"`
}

// Summarize computes Stats over durations in milliseconds.
func Summarize(samples []float64) Stats {
	if len(samples) == 0 {
		return Stats{}
	}
	data := stats.Float64Data(samples)
	s := Stats{Count: len(samples)}
	s.Avg, _ = data.Mean()
	s.Min, _ = data.Min()
	s.Max, _ = data.Max()
	s.P50, _ = data.Percentile(50)
	s.P95, _ = data.Percentile(95)
	return s
}

// Speedup returns interpreted.Avg / compiled.Avg, or 0 when the compiled
// average is 0.
func Speedup(compiled, interpreted Stats) float64 {
	if compiled.Avg == 0 {
		return 0
	}
	return interpreted.Avg / compiled.Avg
}

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Harness runs both backends against the same hand. It never touches
// stability state.
type Harness struct {
	compiled    backend.Backend
	interpreted backend.Backend
	clock       clock.Clock
}

// New creates a harness. compiled may be nil when the compiled backend is
// unavailable; a nil clock uses the wall clock.
func New(compiled, interpreted backend.Backend, clk clock.Clock) *Harness {
	if clk == nil {
		clk = clock.New()
	}
	return &Harness{compiled: compiled, interpreted: interpreted, clock: clk}
}

// Run calls each backend iterations times with hand. It stops early when
// ctx is done and returns what was measured so far along with ctx's error.
func (h *Harness) Run(ctx context.Context, hand detector.Hand, iterations int) (Report, error) {
	if iterations < 0 {
		iterations = 0
	}
	r := Report{Iterations: iterations}

	if h.compiled != nil {
		for i := 0; i < iterations; i++ {
			if err := ctx.Err(); err != nil {
				return h.finish(r), err
			}
			start := h.clock.Now()
			_, err := h.compiled.Classify(hand)
			r.CompiledSamples = append(r.CompiledSamples, Millis(h.clock.Since(start)))
			if err != nil {
				r.CompiledErrors++
			}
		}
	}

	if h.interpreted != nil {
		for i := 0; i < iterations; i++ {
			if err := ctx.Err(); err != nil {
				return h.finish(r), err
			}
			start := h.clock.Now()
			h.interpreted.Classify(hand)
			r.InterpretedSamples = append(r.InterpretedSamples, Millis(h.clock.Since(start)))
		}
	}

	return h.finish(r), nil
}

func (h *Harness) finish(r Report) Report {
	r.Compiled = Summarize(r.CompiledSamples)
	r.Interpreted = Summarize(r.InterpretedSamples)
	r.Speedup = Speedup(r.Compiled, r.Interpreted)
	return r
}
