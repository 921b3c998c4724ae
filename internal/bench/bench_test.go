package bench

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/backend"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/module/native"
)

// timedBackend advances a mock clock by a fixed step per call.
type timedBackend struct {
	method backend.Method
	clock  *clock.Mock
	step   time.Duration
	calls  int
	failAt int
}

func (b *timedBackend) Method() backend.Method { return b.method }

func (b *timedBackend) Classify(hand detector.Hand) (backend.Result, error) {
	b.calls++
	b.clock.Add(b.step)
	if b.failAt > 0 && b.calls == b.failAt {
		return backend.Result{}, errors.New("call failed")
	}
	return backend.None(0), nil
}

func TestHarness_Timing(t *testing.T) {
	mock := clock.NewMock()
	compiled := &timedBackend{method: backend.MethodCompiled, clock: mock, step: time.Millisecond}
	interpreted := &timedBackend{method: backend.MethodInterpreted, clock: mock, step: 4 * time.Millisecond}

	r, err := New(compiled, interpreted, mock).Run(context.Background(), detector.DiagonalHand(), 100)
	require.NoError(t, err)

	assert.Equal(t, 100, r.Compiled.Count)
	assert.Equal(t, 100, r.Interpreted.Count)
	assert.InDelta(t, 1.0, r.Compiled.Avg, 1e-9)
	assert.InDelta(t, 1.0, r.Compiled.Min, 1e-9)
	assert.InDelta(t, 1.0, r.Compiled.Max, 1e-9)
	assert.InDelta(t, 4.0, r.Interpreted.Avg, 1e-9)
	assert.InDelta(t, 4.0, r.Speedup, 1e-9)
	assert.Equal(t, 100, compiled.calls)
	assert.Equal(t, 100, interpreted.calls)
}

func TestHarness_CompiledUnavailable(t *testing.T) {
	mock := clock.NewMock()
	interpreted := &timedBackend{method: backend.MethodInterpreted, clock: mock, step: time.Millisecond}

	r, err := New(nil, interpreted, mock).Run(context.Background(), detector.DiagonalHand(), 100)
	require.NoError(t, err)

	assert.Equal(t, 0, r.Compiled.Count)
	assert.Equal(t, 100, r.Interpreted.Count)
	assert.Zero(t, r.Speedup)
}

func TestHarness_CompiledErrorsAreTimed(t *testing.T) {
	mock := clock.NewMock()
	compiled := &timedBackend{method: backend.MethodCompiled, clock: mock, step: time.Millisecond, failAt: 3}
	interpreted := &timedBackend{method: backend.MethodInterpreted, clock: mock, step: time.Millisecond}

	r, err := New(compiled, interpreted, mock).Run(context.Background(), detector.DiagonalHand(), 10)
	require.NoError(t, err)
	assert.Equal(t, 10, r.Compiled.Count)
	assert.Equal(t, 1, r.CompiledErrors)
	assert.InDelta(t, 1.0, r.Compiled.Max, 1e-9)
}

func TestHarness_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mock := clock.NewMock()
	interpreted := &timedBackend{method: backend.MethodInterpreted, clock: mock, step: time.Millisecond}
	r, err := New(nil, interpreted, mock).Run(ctx, detector.DiagonalHand(), 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, r.Interpreted.Count)
}

func TestHarness_RealBackends(t *testing.T) {
	mod, err := native.Load(context.Background(), native.DefaultConfig())
	require.NoError(t, err)
	compiled, err := backend.NewCompiled(mod, backend.DefaultThresholds(), 5)
	require.NoError(t, err)
	defer compiled.Close(context.Background())
	interpreted := backend.NewInterpreted(model.Generate(model.DefaultSeed), backend.DefaultThresholds())

	r, err := New(compiled, interpreted, nil).Run(context.Background(), detector.DiagonalHand(), 100)
	require.NoError(t, err)
	assert.Equal(t, 100, r.Compiled.Count)
	assert.Equal(t, 100, r.Interpreted.Count)
	assert.LessOrEqual(t, compiled.Pool().Outstanding(), 5)
	assert.LessOrEqual(t, r.Compiled.Min, r.Compiled.Avg)
	assert.LessOrEqual(t, r.Compiled.Avg, r.Compiled.Max)
}

func TestSummarize(t *testing.T) {
	s := Summarize([]float64{4, 1, 3, 2})
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 2.5, s.Avg, 1e-12)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)

	assert.Equal(t, Stats{}, Summarize(nil))
}

func TestSpeedup(t *testing.T) {
	assert.Zero(t, Speedup(Stats{}, Stats{Avg: 3}))
	assert.InDelta(t, 3.0, Speedup(Stats{Avg: 1}, Stats{Avg: 3}), 1e-12)
}

func TestTable(t *testing.T) {
	out := Table(Report{
		Iterations:  2,
		Compiled:    Stats{Avg: 0.5, Count: 2},
		Interpreted: Stats{Avg: 1.5, Count: 2},
		Speedup:     3,
	})
	assert.Contains(t, out, "compiled")
	assert.Contains(t, out, "interpreted")
	assert.Contains(t, out, "3.00x")

	assert.Contains(t, Table(Report{}), "n/a")
}

func TestWriteChart(t *testing.T) {
	var buf bytes.Buffer
	err := WriteChart(&buf, Report{
		Iterations:         3,
		CompiledSamples:    []float64{0.1, 0.2, 0.1},
		InterpretedSamples: []float64{0.4, 0.5, 0.4},
	})
	require.NoError(t, err)
	assert.True(t, strings.Contains(buf.String(), "echarts"))

	buf.Reset()
	require.NoError(t, WriteTrendChart(&buf, []TrendPoint{{Label: "a", Compiled: 1, Interpreted: 2}}))
	assert.NotEmpty(t, buf.String())
}
