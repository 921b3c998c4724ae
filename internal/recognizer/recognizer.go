// Package recognizer is the caller-facing classification API. It owns the
// backends, chooses between them per call, records per-call timings and
// runs benchmarks.
package recognizer

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/backend"
	"github.com/ayusman/mudra/internal/bench"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/module"
)

// Config configures a Recognizer.
type Config struct {
	Seed        int64
	Thresholds  backend.Thresholds
	PoolBound   int
	InitTimeout time.Duration

	// FallbackOnLowConfidence sends a sentinel from the compiled backend
	// to the rules for a second opinion.
	FallbackOnLowConfidence bool

	// ReferenceMode routes every call to the interpreted backend.
	ReferenceMode bool
}

// DefaultConfig returns the recognizer defaults.
func DefaultConfig() Config {
	return Config{
		Seed:                    model.DefaultSeed,
		Thresholds:              backend.DefaultThresholds(),
		PoolBound:               5,
		InitTimeout:             backend.DefaultInitTimeout,
		FallbackOnLowConfidence: true,
	}
}

// Sample is the timing of one classify call.
type Sample struct {
	Total      float64        `json:"totalMs"`
	Backend    float64        `json:"backendMs"`
	Method     backend.Method `json:"method"`
	Iterations int            `json:"iterations"`
	At         time.Time      `json:"at"`
}

// PerformanceStats aggregates recorded samples per backend.
type PerformanceStats struct {
	Compiled    bench.Stats `json:"compiled"`
	Interpreted bench.Stats `json:"interpreted"`
	Rules       bench.Stats `json:"rules"`
	Speedup     float64     `json:"speedup"`
}

// StatusInfo describes the recognizer's backends.
type StatusInfo struct {
	Status          backend.Status `json:"status"`
	Active          backend.Method `json:"active"`
	Version         string         `json:"version,omitempty"`
	Error           string         `json:"error,omitempty"`
	ReferenceMode   bool           `json:"referenceMode"`
	PoolOutstanding int            `json:"poolOutstanding"`
	Samples         int            `json:"samples"`
}

// Recognizer classifies hands. Calls are serialized; it is safe for
// concurrent use.
type Recognizer struct {
	config Config
	logger *zap.SugaredLogger
	clock  clock.Clock

	init *backend.Init

	mu            sync.Mutex
	status        backend.Status
	initErr       error
	compiled      *backend.Compiled
	interpreted   *backend.Interpreted
	rules         *backend.Rules
	referenceMode bool
	thresholds    backend.Thresholds
	samples       []Sample
	disposed      bool
}

// New creates a recognizer and starts loading the compiled module in the
// background. With a nil loader the compiled backend is unavailable and
// the rules serve every call.
func New(ctx context.Context, loader module.Loader, config Config, logger *zap.SugaredLogger, clk clock.Clock) *Recognizer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if clk == nil {
		clk = clock.New()
	}
	r := &Recognizer{
		config:        config,
		logger:        logger,
		clock:         clk,
		interpreted:   backend.NewInterpreted(model.Generate(config.Seed), config.Thresholds),
		rules:         backend.NewRules(),
		referenceMode: config.ReferenceMode,
		thresholds:    config.Thresholds,
	}

	if loader == nil {
		r.status = backend.StatusUnavailable
		r.initErr = module.ErrUnavailable
		return r
	}
	r.status = backend.StatusLoading
	r.init = backend.StartInit(ctx, loader, backend.InitOptions{
		Thresholds: config.Thresholds,
		PoolBound:  config.PoolBound,
		Timeout:    config.InitTimeout,
		Logger:     logger,
	})
	return r
}

// WaitReady blocks until compiled initialization has finished and returns
// its error, if any.
func (r *Recognizer) WaitReady(ctx context.Context) error {
	if r.init == nil {
		return r.initErr
	}
	if _, err := r.init.Wait(ctx); err != nil && ctx.Err() != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveInitLocked()
	return r.initErr
}

// resolveInitLocked adopts the outcome of a finished initialization.
func (r *Recognizer) resolveInitLocked() {
	if r.status != backend.StatusLoading {
		return
	}
	select {
	case <-r.init.Done():
	default:
		return
	}

	compiled, err := r.init.Result()
	if err != nil {
		r.status = backend.StatusUnavailable
		r.initErr = err
		r.logger.Errorw("compiled backend unavailable, using rules", "error", err)
		return
	}
	if r.disposed {
		if err := compiled.Close(context.Background()); err != nil {
			r.logger.Warnw("failed to close compiled backend", "error", err)
		}
		r.status = backend.StatusUnavailable
		r.initErr = module.ErrUnavailable
		return
	}
	if compiled.SetThresholds(r.thresholds) != nil {
		r.logger.Warnw("could not apply thresholds to compiled backend", "thresholds", r.thresholds)
	}
	r.compiled = compiled
	r.status = backend.StatusReady
	r.logger.Infow("compiled backend ready", "version", compiled.Version())
}

// Classify returns the gesture for hand. It never fails: backend errors
// fall back to the rules and invalid hands yield the sentinel.
func (r *Recognizer) Classify(hand detector.Hand) backend.Result {
	res, _ := r.ClassifyWithMethod(hand)
	return res
}

// ClassifyWithMethod is Classify that also reports which backend produced
// the result.
func (r *Recognizer) ClassifyWithMethod(hand detector.Hand) (backend.Result, backend.Method) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveInitLocked()

	start := r.clock.Now()
	res, method, backendTime := r.classifyLocked(hand)
	r.samples = append(r.samples, Sample{
		Total:      bench.Millis(r.clock.Since(start)),
		Backend:    bench.Millis(backendTime),
		Method:     method,
		Iterations: 1,
		At:         start,
	})
	return res, method
}

func (r *Recognizer) classifyLocked(hand detector.Hand) (backend.Result, backend.Method, time.Duration) {
	if r.referenceMode {
		return r.timed(r.interpreted, hand)
	}
	if r.compiled == nil {
		return r.timed(r.rules, hand)
	}

	res, method, elapsed := r.timed(r.compiled, hand)
	if method != backend.MethodCompiled {
		return res, method, elapsed
	}
	if res.IsNone() && r.config.FallbackOnLowConfidence && hand.Valid() {
		if alt, altMethod, altElapsed := r.timed(r.rules, hand); !alt.IsNone() {
			return alt, altMethod, elapsed + altElapsed
		}
	}
	return res, method, elapsed
}

// timed runs b and reports the method that produced the result. A failing
// backend is replaced by the rules for this call.
func (r *Recognizer) timed(b backend.Backend, hand detector.Hand) (backend.Result, backend.Method, time.Duration) {
	start := r.clock.Now()
	res, err := b.Classify(hand)
	elapsed := r.clock.Since(start)
	if err == nil {
		return res, b.Method(), elapsed
	}

	r.logger.Warnw("classification failed, using rules", "backend", b.Method(), "error", err)
	start = r.clock.Now()
	res, _ = r.rules.Classify(hand)
	return res, backend.MethodRules, elapsed + r.clock.Since(start)
}

// ClassifyBatch classifies several hands. With the compiled backend ready
// they cross the boundary in one call.
func (r *Recognizer) ClassifyBatch(hands []detector.Hand) []backend.Result {
	r.mu.Lock()
	r.resolveInitLocked()
	if r.compiled != nil && !r.referenceMode {
		start := r.clock.Now()
		results, err := r.compiled.ClassifyBatch(hands)
		if err == nil {
			elapsed := bench.Millis(r.clock.Since(start))
			r.samples = append(r.samples, Sample{Total: elapsed, Backend: elapsed, Method: backend.MethodCompiled, Iterations: len(hands), At: start})
			r.mu.Unlock()
			return results
		}
		r.logger.Warnw("batch classification failed, classifying frames one by one", "error", err)
	}
	r.mu.Unlock()

	return lo.Map(hands, func(h detector.Hand, _ int) backend.Result {
		return r.Classify(h)
	})
}

// RunBenchmark times iterations calls of each backend on hand. It does
// not record samples or touch stability state.
func (r *Recognizer) RunBenchmark(ctx context.Context, hand detector.Hand, iterations int) (bench.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveInitLocked()

	var compiled backend.Backend
	if r.compiled != nil {
		compiled = r.compiled
	}
	return bench.New(compiled, r.interpreted, r.clock).Run(ctx, hand, iterations)
}

// PerformanceData returns a copy of the recorded samples.
func (r *Recognizer) PerformanceData() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sample(nil), r.samples...)
}

// PerformanceStats aggregates the recorded samples by backend.
func (r *Recognizer) PerformanceStats() PerformanceStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	byMethod := func(m backend.Method) bench.Stats {
		totals := lo.FilterMap(r.samples, func(s Sample, _ int) (float64, bool) {
			return s.Total, s.Method == m
		})
		return bench.Summarize(totals)
	}
	ps := PerformanceStats{
		Compiled:    byMethod(backend.MethodCompiled),
		Interpreted: byMethod(backend.MethodInterpreted),
		Rules:       byMethod(backend.MethodRules),
	}
	ps.Speedup = bench.Speedup(ps.Compiled, ps.Interpreted)
	return ps
}

// ClearPerformanceData drops every recorded sample.
func (r *Recognizer) ClearPerformanceData() {
	r.mu.Lock()
	r.samples = nil
	r.mu.Unlock()
}

// SetReferenceMode routes calls to the interpreted backend when on.
func (r *Recognizer) SetReferenceMode(on bool) {
	r.mu.Lock()
	r.referenceMode = on
	r.mu.Unlock()
}

// ReferenceMode reports whether reference mode is on.
func (r *Recognizer) ReferenceMode() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.referenceMode
}

// SetThresholds changes the gates of both model backends.
func (r *Recognizer) SetThresholds(t backend.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveInitLocked()

	if r.compiled != nil {
		if err := r.compiled.SetThresholds(t); err != nil {
			return err
		}
	}
	r.interpreted.SetThresholds(t)
	r.thresholds = t
	return nil
}

// Thresholds returns the current gates.
func (r *Recognizer) Thresholds() backend.Thresholds {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.thresholds
}

// Version returns the compiled module version, or "" when it is not ready.
func (r *Recognizer) Version() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveInitLocked()
	if r.compiled == nil {
		return ""
	}
	return r.compiled.Version()
}

// Status reports backend availability. An unavailable backend is reported
// as such, distinct from a call that found no gesture.
func (r *Recognizer) Status() StatusInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveInitLocked()

	info := StatusInfo{
		Status:        r.status,
		Active:        backend.MethodRules,
		ReferenceMode: r.referenceMode,
		Samples:       len(r.samples),
	}
	if r.initErr != nil {
		info.Error = r.initErr.Error()
	}
	if r.compiled != nil {
		info.Active = backend.MethodCompiled
		info.Version = r.compiled.Version()
		info.PoolOutstanding = r.compiled.Pool().Outstanding()
	}
	if r.referenceMode {
		info.Active = backend.MethodInterpreted
	}
	return info
}

// Dispose releases the compiled backend. Later calls use the rules.
func (r *Recognizer) Dispose(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil
	}
	r.disposed = true
	r.resolveInitLocked()

	if r.compiled == nil {
		if r.status == backend.StatusLoading {
			r.logger.Info("disposing while compiled backend is still loading")
		}
		return nil
	}
	err := r.compiled.Close(ctx)
	r.compiled = nil
	r.status = backend.StatusUnavailable
	r.initErr = module.ErrUnavailable
	return err
}
