package app

import (
	"context"
	"io"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/source"
	"github.com/ayusman/mudra/internal/store"
)

// fpsSetter is implemented by sources whose capture rate can change.
type fpsSetter interface {
	SetFPS(fps int)
}

func frameInterval(fps int) time.Duration {
	return time.Second / time.Duration(fps)
}

// run is the frame loop. It reads one frame per tick while enabled and
// checks for cancellation between frames.
//
// Sources that can change their frame rate drop to IdleFPS once nothing
// has moved for IdleTimeoutMs and return to the configured rate on the
// next moving frame.
func (a *App) run(ctx context.Context, ticker *clock.Ticker, started time.Time, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	active := a.config.FrameRate
	fps := active
	adjustable, _ := a.config.Source.(fpsSetter)
	lastMotion := started
	setRate := func(rate int, mode string) {
		fps = rate
		adjustable.SetFPS(rate)
		ticker.Reset(frameInterval(rate))
		a.logger.Debugw("switched frame rate", "mode", mode, "fps", rate)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !a.IsEnabled() {
			continue
		}

		frame, err := a.config.Source.Next()
		if err == io.EOF {
			a.logger.Info("source exhausted")
			return
		}
		if err != nil {
			a.logger.Warnw("error reading frame", "error", err)
			continue
		}

		if adjustable != nil {
			switch {
			case !frame.Still:
				lastMotion = a.clock.Now()
				if fps != active {
					setRate(active, "active")
				}
			case fps != IdleFPS && a.clock.Since(lastMotion) > IdleTimeoutMs*time.Millisecond:
				setRate(IdleFPS, "idle")
			}
		}

		a.Process(ctx, frame)
	}
}

// Process classifies the primary hand of frame and emits the result when
// it passes the stability gate. Frames without a hand are skipped.
func (a *App) Process(ctx context.Context, frame source.Frame) (*store.Emission, bool) {
	hand := frame.Primary()
	if hand == nil {
		return nil, false
	}

	res, method := a.config.Recognizer.ClassifyWithMethod(hand)
	if !a.gate.Accept(res) {
		return nil, false
	}

	e := &store.Emission{
		Gesture:    res.Gesture,
		GestureID:  res.ID,
		Confidence: res.Confidence,
		Method:     string(method),
		CreatedAt:  a.clock.Now(),
	}
	a.emit(ctx, e)
	return e, true
}

// emit records e and hands it to subscribers and hooks. Delivery failures
// are logged and never stop the pipeline.
func (a *App) emit(ctx context.Context, e *store.Emission) {
	a.logger.Infow("gesture", "gesture", e.Gesture, "confidence", e.Confidence, "method", e.Method)

	if a.config.Store != nil {
		if err := a.config.Store.Emissions().Create(e); err != nil {
			a.logger.Warnw("failed to store emission", "error", err)
		}
	}
	if a.config.Publisher != nil {
		if err := a.config.Publisher.Broadcast(e); err != nil {
			a.logger.Warnw("failed to publish emission", "error", err)
		}
	}

	a.mu.Lock()
	last := *e
	a.last = &last
	callbacks := append([]func(store.Emission){}, a.onEmit...)
	a.mu.Unlock()

	for _, fn := range callbacks {
		fn(last)
	}

	a.runHooks(ctx, last)
}

// runHooks starts every plugin subscribed to the emitted gesture. Each
// runs in its own goroutine under the executor's timeout.
func (a *App) runHooks(ctx context.Context, e store.Emission) {
	if a.config.Plugins == nil {
		return
	}

	req := plugin.Request{
		Gesture:    e.Gesture,
		GestureID:  e.GestureID,
		Confidence: e.Confidence,
		Method:     e.Method,
		Timestamp:  e.CreatedAt.UnixMilli(),
	}
	for _, p := range a.config.Plugins.ForGesture(e.Gesture) {
		a.hooks.Add(1)
		go func() {
			defer a.hooks.Done()

			resp, err := a.config.Executor.Execute(ctx, p, req)
			if err != nil {
				a.logger.Warnw("hook failed", "plugin", p.Manifest.Name, "gesture", e.Gesture, "error", err)
				return
			}
			if !resp.Success {
				a.logger.Warnw("hook reported failure", "plugin", p.Manifest.Name, "gesture", e.Gesture, "error", resp.Error)
				return
			}
			a.logger.Debugw("hook ran", "plugin", p.Manifest.Name, "gesture", e.Gesture)
		}()
	}
}

// WaitHooks blocks until every started hook has finished.
func (a *App) WaitHooks() {
	a.hooks.Wait()
}
