package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/backend"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/source"
	"github.com/ayusman/mudra/internal/stability"
)

// frameResult is one line of classify output.
type frameResult struct {
	Frame      int     `json:"frame"`
	Gesture    string  `json:"gesture"`
	ID         int     `json:"id"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method,omitempty"`
	Emitted    bool    `json:"emitted"`
}

func classify(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, path string, batch bool, out io.Writer) error {
	frames, err := source.ReadAll(source.NewReplayFile(path, false))
	if err != nil {
		return errors.Wrapf(err, "read frames from %s", path)
	}

	rec := recognizer.New(ctx, cfg.Loader(), cfg.Recognizer(), logger.Named("recognizer"), nil)
	defer rec.Dispose(context.Background())
	if err := rec.WaitReady(ctx); err != nil {
		logger.Warnw("compiled backend unavailable", "error", err)
	}
	logger.Infow("classifying", "frames", len(frames), "backend", rec.Status().Status, "batch", batch)

	return writeResults(out, classifyFrames(rec, frames, batch), stability.NewGate(cfg.StabilityMinConfidence))
}

// classifyFrames classifies the primary hand of every frame. Frames
// without a hand are classified too and come back as none-detected.
func classifyFrames(rec *recognizer.Recognizer, frames []source.Frame, batch bool) []frameResult {
	hands := make([]detector.Hand, len(frames))
	for i, f := range frames {
		hands[i] = f.Primary()
	}

	results := make([]frameResult, len(hands))
	if batch {
		for i, res := range rec.ClassifyBatch(hands) {
			results[i] = newFrameResult(i, res, "")
		}
		return results
	}
	for i, hand := range hands {
		res, method := rec.ClassifyWithMethod(hand)
		results[i] = newFrameResult(i, res, method)
	}
	return results
}

func newFrameResult(i int, res backend.Result, method backend.Method) frameResult {
	return frameResult{
		Frame:      i,
		Gesture:    res.Gesture,
		ID:         res.ID,
		Confidence: res.Confidence,
		Method:     string(method),
	}
}

// writeResults marks the results that pass gate and writes them as JSON
// lines.
func writeResults(out io.Writer, results []frameResult, gate *stability.Gate) error {
	enc := json.NewEncoder(out)
	for _, r := range results {
		r.Emitted = gate.Accept(backend.Result{Gesture: r.Gesture, ID: r.ID, Confidence: r.Confidence})
		if err := enc.Encode(r); err != nil {
			return errors.Wrap(err, "write result")
		}
	}
	return nil
}
