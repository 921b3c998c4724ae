// Package app runs the recognition pipeline: frames from a source are
// classified, debounced by the stability gate and fanned out to the
// emission log, live subscribers and gesture hooks.
package app

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/backend"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/source"
	"github.com/ayusman/mudra/internal/stability"
	"github.com/ayusman/mudra/internal/store"
)

// Pipeline timing constants.
const (
	// IdleFPS is the frame rate while nothing moves in front of a camera.
	IdleFPS = 5
	// ActiveFPS is the default frame rate during detection.
	ActiveFPS = 15
	// IdleTimeoutMs is how long the scene must stay still before the
	// pipeline drops back to IdleFPS.
	IdleTimeoutMs = 2000
)

// Publisher pushes emitted gestures to live subscribers.
type Publisher interface {
	Broadcast(v any) error
}

// Config holds the pipeline's collaborators. Source and Recognizer are
// required.
type Config struct {
	Source     source.Source
	Recognizer *recognizer.Recognizer
	Store      *store.Store
	Publisher  Publisher
	Plugins    *plugin.Manager
	Executor   *plugin.Executor

	// FrameRate is the active frame rate (default: ActiveFPS).
	FrameRate int

	// MinConfidence is the stability gate's minimum.
	MinConfidence float64

	Logger *zap.SugaredLogger
	Clock  clock.Clock
}

// App runs the pipeline and holds its enabled state.
type App struct {
	config Config
	logger *zap.SugaredLogger
	clock  clock.Clock
	gate   *stability.Gate

	mu      sync.RWMutex
	enabled bool
	last    *store.Emission
	onEmit  []func(store.Emission)

	cancel context.CancelFunc
	done   chan struct{}
	hooks  sync.WaitGroup
}

// New creates an App. Detection starts disabled.
func New(config Config) *App {
	if config.FrameRate <= 0 {
		config.FrameRate = ActiveFPS
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.Plugins != nil && config.Executor == nil {
		config.Executor = plugin.NewExecutor(plugin.DefaultTimeout)
	}
	return &App{
		config: config,
		logger: config.Logger,
		clock:  config.Clock,
		gate:   stability.NewGate(config.MinConfidence),
	}
}

// SetEnabled enables or disables gesture detection. Disabling forgets the
// last emitted gesture, so the first gesture after re-enabling is
// reported even if it repeats.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enabled && !enabled {
		a.gate.Reset()
	}
	a.enabled = enabled
}

// IsEnabled returns whether gesture detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// OnEmit registers fn to be called with every emitted gesture.
func (a *App) OnEmit(fn func(store.Emission)) {
	a.mu.Lock()
	a.onEmit = append(a.onEmit, fn)
	a.mu.Unlock()
}

// Last returns the most recent emission, or nil if there has been none.
func (a *App) Last() *store.Emission {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.last == nil {
		return nil
	}
	e := *a.last
	return &e
}

// Recognizer returns the recognizer the pipeline classifies with.
func (a *App) Recognizer() *recognizer.Recognizer {
	return a.config.Recognizer
}

// LoadSettings applies persisted thresholds, reference mode and the
// enabled flag. Without a store it does nothing.
func (a *App) LoadSettings() error {
	if a.config.Store == nil {
		return nil
	}
	settings := a.config.Store.Settings()
	rec := a.config.Recognizer

	current := rec.Thresholds()
	detection, err := settings.Float(store.SettingDetectionThreshold, current.Detection)
	if err != nil {
		return err
	}
	recognition, err := settings.Float(store.SettingRecognitionThreshold, current.Recognition)
	if err != nil {
		return err
	}
	if err := rec.SetThresholds(backend.Thresholds{Detection: detection, Recognition: recognition}); err != nil {
		return err
	}

	reference, err := settings.Bool(store.SettingReferenceMode, rec.ReferenceMode())
	if err != nil {
		return err
	}
	rec.SetReferenceMode(reference)

	enabled, err := settings.Bool(store.SettingEnabled, a.IsEnabled())
	if err != nil {
		return err
	}
	a.SetEnabled(enabled)

	a.logger.Infow("loaded settings", "thresholds", rec.Thresholds(), "referenceMode", reference, "enabled", enabled)
	return nil
}

// DiscoverPlugins scans the plugin directory for gesture hooks.
func (a *App) DiscoverPlugins() error {
	if a.config.Plugins == nil {
		return nil
	}
	return a.config.Plugins.Discover()
}

// Start opens the source and begins the pipeline. Starting a running
// pipeline does nothing.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}
	if err := a.config.Source.Open(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	ticker := a.clock.Ticker(frameInterval(a.config.FrameRate))
	go a.run(ctx, ticker, a.clock.Now(), a.done)

	a.logger.Infow("pipeline started", "fps", a.config.FrameRate)
	return nil
}

// Done is closed when the running pipeline exits, either because it was
// stopped or because a finite source ran out. It is nil before Start.
func (a *App) Done() <-chan struct{} {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.done
}

// Stop halts the pipeline, waits for running hooks and closes the source.
// The stability gate is reset so a restarted pipeline emits its first
// gesture again.
func (a *App) Stop() error {
	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	a.hooks.Wait()
	a.gate.Reset()

	err := a.config.Source.Close()
	a.logger.Info("pipeline stopped")
	return err
}
