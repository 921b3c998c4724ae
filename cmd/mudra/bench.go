package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/bench"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/store"
)

type benchOptions struct {
	iterations int
	chart      string
	save       bool
}

func benchmark(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, opts benchOptions, out io.Writer) error {
	if opts.iterations < 1 {
		return errors.Errorf("iterations must be at least 1, got %d", opts.iterations)
	}

	rec := recognizer.New(ctx, cfg.Loader(), cfg.Recognizer(), logger.Named("recognizer"), nil)
	defer rec.Dispose(context.Background())
	if err := rec.WaitReady(ctx); err != nil {
		logger.Warnw("compiled backend unavailable", "error", err)
	}

	report, err := rec.RunBenchmark(ctx, detector.DiagonalHand(), opts.iterations)
	if err != nil {
		return errors.Wrap(err, "benchmark")
	}
	logger.Infow("benchmark finished", "iterations", report.Iterations, "speedup", report.Speedup)

	if err := writeReport(out, report, opts.chart); err != nil {
		return err
	}
	if !opts.save {
		return nil
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	run := store.NewBenchmarkRun(report, rec.Version())
	if err := st.Benchmarks().Create(run); err != nil {
		return errors.Wrap(err, "save benchmark")
	}
	fmt.Fprintf(out, "saved run %s\n", run.ID)
	return nil
}

// writeReport prints the report table and, when chart is set, writes the
// latency chart there.
func writeReport(out io.Writer, report bench.Report, chart string) error {
	fmt.Fprint(out, bench.Table(report))
	if chart == "" {
		return nil
	}

	f, err := os.Create(chart)
	if err != nil {
		return errors.Wrap(err, "create chart file")
	}
	if err := bench.WriteChart(f, report); err != nil {
		f.Close()
		return errors.Wrap(err, "write chart")
	}
	return f.Close()
}
