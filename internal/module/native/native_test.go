package native

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/features"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/module"
)

func loadModule(t *testing.T) *Module {
	t.Helper()
	m, err := Load(context.Background(), DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close(context.Background()) })
	return m
}

func encodeHand(hand detector.Hand) []byte {
	buf := make([]byte, 0, len(hand)*8)
	for _, p := range hand {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(p.X)))
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(p.Y)))
	}
	return buf
}

func flatten(hand detector.Hand) detector.Hand {
	out := make(detector.Hand, len(hand))
	for i, p := range hand {
		out[i] = detector.Point3D{X: p.X, Y: p.Y}
	}
	return out
}

func TestAllocator(t *testing.T) {
	t.Run("addresses are aligned and distinct", func(t *testing.T) {
		m := loadModule(t)
		a, err := m.Malloc(module.HandBufferSize)
		require.NoError(t, err)
		b, err := m.Malloc(3)
		require.NoError(t, err)

		assert.NotZero(t, a)
		assert.Zero(t, a%align)
		assert.Zero(t, b%align)
		assert.GreaterOrEqual(t, b, a+module.HandBufferSize)
		assert.Equal(t, 2, m.Allocations())
	})

	t.Run("freed block is reused", func(t *testing.T) {
		m := loadModule(t)
		a, _ := m.Malloc(64)
		_, _ = m.Malloc(64)
		require.NoError(t, m.Free(a))

		c, err := m.Malloc(32)
		require.NoError(t, err)
		assert.Equal(t, a, c)
	})

	t.Run("neighbours coalesce", func(t *testing.T) {
		m := loadModule(t)
		a, _ := m.Malloc(64)
		b, _ := m.Malloc(64)
		_, _ = m.Malloc(64)
		require.NoError(t, m.Free(a))
		require.NoError(t, m.Free(b))

		c, err := m.Malloc(128)
		require.NoError(t, err)
		assert.Equal(t, a, c)
	})

	t.Run("invalid free", func(t *testing.T) {
		m := loadModule(t)
		a, _ := m.Malloc(16)
		require.NoError(t, m.Free(a))
		assert.Error(t, m.Free(a))
		assert.Error(t, m.Free(12345))
	})

	t.Run("zero size", func(t *testing.T) {
		m := loadModule(t)
		_, err := m.Malloc(0)
		assert.Error(t, err)
	})

	t.Run("memory grows up to the limit", func(t *testing.T) {
		m, err := Load(context.Background(), Config{Seed: 1, InitialPages: 1, MaxPages: 2})
		require.NoError(t, err)

		_, err = m.Malloc(PageSize)
		require.NoError(t, err)
		assert.Equal(t, uint32(2*PageSize), m.Memory().Size())

		_, err = m.Malloc(PageSize)
		assert.Error(t, err)
	})
}

func TestMemory_Bounds(t *testing.T) {
	m := loadModule(t)
	mem := m.Memory()

	require.NoError(t, mem.Write(heapBase, []byte{1, 2, 3}))
	got, err := mem.Read(heapBase, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	assert.Error(t, mem.Write(mem.Size()-1, []byte{1, 2}))
	_, err = mem.Read(mem.Size(), 1)
	assert.Error(t, err)
}

func TestLoad_InvalidConfig(t *testing.T) {
	_, err := Load(context.Background(), Config{InitialPages: 4, MaxPages: 2})
	assert.ErrorIs(t, err, module.ErrUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Load(ctx, DefaultConfig())
	assert.ErrorIs(t, err, context.Canceled)
}

func newRecognizer(t *testing.T, m *Module) module.Recognizer {
	t.Helper()
	r, err := m.NewRecognizer()
	require.NoError(t, err)
	ok, err := r.Initialize()
	require.NoError(t, err)
	require.True(t, ok)
	return r
}

func writeHand(t *testing.T, m *Module, hand detector.Hand) uint32 {
	t.Helper()
	addr, err := m.Malloc(module.HandBufferSize)
	require.NoError(t, err)
	require.NoError(t, m.Memory().Write(addr, encodeHand(hand)))
	return addr
}

func TestRecognizer(t *testing.T) {
	t.Run("uninitialized", func(t *testing.T) {
		m := loadModule(t)
		r, err := m.NewRecognizer()
		require.NoError(t, err)
		_, err = r.RecognizeFromPointer(heapBase, module.FloatsPerHand)
		assert.Error(t, err)
	})

	t.Run("version", func(t *testing.T) {
		r := newRecognizer(t, loadModule(t))
		v, err := r.Version()
		require.NoError(t, err)
		assert.Equal(t, "1.0.0", v)
	})

	t.Run("wrong count is not a hand", func(t *testing.T) {
		m := loadModule(t)
		r := newRecognizer(t, m)
		addr := writeHand(t, m, detector.DiagonalHand())

		for _, n := range []int{0, 40, 44} {
			s, err := r.RecognizeFromPointer(addr, n)
			require.NoError(t, err)
			res, err := module.ParseResult(s)
			require.NoError(t, err)
			assert.Equal(t, model.None, res.ID)
			assert.Equal(t, "none-detected", res.Gesture)
			assert.Zero(t, res.Confidence)
		}
	})

	t.Run("hand outside the frame is not present", func(t *testing.T) {
		m := loadModule(t)
		r := newRecognizer(t, m)
		require.NoError(t, r.SetRecognitionThreshold(0))

		hand := detector.DiagonalHand()
		for i := 0; i < 15; i++ {
			hand[i].X += 2
		}
		addr := writeHand(t, m, hand)

		s, err := r.RecognizeFromPointer(addr, module.FloatsPerHand)
		require.NoError(t, err)
		res, _ := module.ParseResult(s)
		assert.Equal(t, model.None, res.ID)
		assert.Zero(t, res.Confidence)
	})

	t.Run("recognition threshold gates the result", func(t *testing.T) {
		m := loadModule(t)
		r := newRecognizer(t, m)
		addr := writeHand(t, m, detector.OpenPalmLandmarks().Hand())

		require.NoError(t, r.SetRecognitionThreshold(0))
		s, err := r.RecognizeFromPointer(addr, module.FloatsPerHand)
		require.NoError(t, err)
		open, _ := module.ParseResult(s)
		require.Greater(t, open.Confidence, 0.0)
		if open.Confidence >= 1 {
			t.Skip("confidence saturated")
		}

		require.NoError(t, r.SetRecognitionThreshold((open.Confidence+1)/2))
		s, err = r.RecognizeFromPointer(addr, module.FloatsPerHand)
		require.NoError(t, err)
		gated, _ := module.ParseResult(s)
		assert.Equal(t, model.None, gated.ID)
		assert.InDelta(t, open.Confidence, gated.Confidence, 1e-6)
	})

	t.Run("thresholds are validated", func(t *testing.T) {
		r := newRecognizer(t, loadModule(t))
		assert.Error(t, r.SetDetectionThreshold(-0.1))
		assert.Error(t, r.SetRecognitionThreshold(1.5))
	})

	t.Run("matches the reference decision", func(t *testing.T) {
		m := loadModule(t)
		r := newRecognizer(t, m)
		require.NoError(t, r.SetRecognitionThreshold(0))

		net := model.NewNetwork(model.Generate(model.DefaultSeed))
		for _, lm := range []detector.HandLandmarks{
			detector.OpenPalmLandmarks(),
			detector.FistLandmarks(),
			detector.PointLandmarks(),
			detector.VictoryLandmarks(),
		} {
			hand := flatten(lm.Hand())
			v, err := features.Extract(hand)
			require.NoError(t, err)
			wantID, wantConf := model.Decide(net.Infer(v))

			addr := writeHand(t, m, hand)
			s, err := r.RecognizeFromPointer(addr, module.FloatsPerHand)
			require.NoError(t, err)
			res, err := module.ParseResult(s)
			require.NoError(t, err)

			assert.Equal(t, wantID, res.ID)
			assert.Equal(t, model.Label(wantID), res.Gesture)
			assert.InDelta(t, wantConf, res.Confidence, 1e-2)
			require.NoError(t, m.Free(addr))
		}
	})
}

func TestRecognizeBatch(t *testing.T) {
	m := loadModule(t)
	r := newRecognizer(t, m)
	require.NoError(t, r.SetRecognitionThreshold(0))

	hands := []detector.Hand{
		detector.OpenPalmLandmarks().Hand(),
		detector.FistLandmarks().Hand(),
		detector.DiagonalHand(),
	}
	var buf []byte
	for _, h := range hands {
		buf = append(buf, encodeHand(h)...)
	}
	addr, err := m.Malloc(uint32(len(buf)))
	require.NoError(t, err)
	require.NoError(t, m.Memory().Write(addr, buf))

	s, err := r.RecognizeBatch(addr, len(hands), module.FloatsPerHand)
	require.NoError(t, err)
	batch, err := module.ParseBatch(s)
	require.NoError(t, err)
	require.Equal(t, len(hands), batch.FrameCount)

	for i, h := range hands {
		single := writeHand(t, m, h)
		s, err := r.RecognizeFromPointer(single, module.FloatsPerHand)
		require.NoError(t, err)
		want, _ := module.ParseResult(s)
		assert.Equal(t, want, batch.Results[i], "frame %d", i)
	}
}

func TestFloat32Parity(t *testing.T) {
	hand := flatten(detector.VictoryLandmarks().Hand())

	want, err := features.Extract(hand)
	require.NoError(t, err)

	pts := make([]point, len(hand))
	for i, p := range hand {
		pts[i] = point{x: float32(p.X), y: float32(p.Y)}
	}
	got := extract32(pts)
	require.Len(t, got, features.Length)
	for i := range want {
		assert.InDelta(t, want[i], float64(got[i]), 5e-3, "feature %d", i)
	}

	wantScores := model.NewNetwork(model.Generate(model.DefaultSeed)).Infer(want)
	gotScores := infer32(buildLayers(model.DefaultSeed), got)
	for i := range wantScores {
		assert.InDelta(t, wantScores[i], float64(gotScores[i]), 5e-2, "score %d", i)
	}
}

func TestClosedModule(t *testing.T) {
	m, err := Load(context.Background(), DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, m.Close(context.Background()))

	_, err = m.Malloc(8)
	assert.Error(t, err)
	_, err = m.NewRecognizer()
	assert.Error(t, err)
}
