package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/source"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func writeReplay(t *testing.T, frames ...[]detector.HandLandmarks) string {
	t.Helper()
	var lines []string
	for _, hands := range frames {
		if hands == nil {
			hands = []detector.HandLandmarks{}
		}
		data, err := json.Marshal(map[string][]detector.HandLandmarks{"hands": hands})
		if err != nil {
			t.Fatalf("failed to encode frame: %v", err)
		}
		lines = append(lines, string(data))
	}
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("failed to write replay: %v", err)
	}
	return path
}

func TestApp_RunReplay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	fist := []detector.HandLandmarks{detector.FistLandmarks()}
	palm := []detector.HandLandmarks{detector.OpenPalmLandmarks()}
	path := writeReplay(t, fist, fist, nil, fist, palm, palm, fist)

	s := newTestStore(t)
	pub := &recordingPublisher{}
	app := New(Config{
		Source:     source.NewReplayFile(path, false),
		Recognizer: newRulesRecognizer(t),
		Store:      s,
		Publisher:  pub,
		FrameRate:  200,
	})
	app.SetEnabled(true)

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case <-app.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not finish the replay")
	}
	if err := app.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}

	want := []string{"fist", "open-palm", "fist"}
	got := pub.gestures()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected emissions %v, got %v", want, got)
	}
	recent, err := s.Emissions().Recent(0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recent) != len(want) {
		t.Errorf("expected %d stored emissions, got %d", len(want), len(recent))
	}
}

func TestApp_StartStop(t *testing.T) {
	src := source.Repeat(detector.FistLandmarks())
	app := New(Config{Source: src, Recognizer: newRulesRecognizer(t), FrameRate: 200})

	if app.Done() != nil {
		t.Error("expected no done channel before Start")
	}
	if err := app.Stop(); err != nil {
		t.Errorf("Stop() before Start error = %v", err)
	}

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	// Disabled: the source is never read.
	time.Sleep(50 * time.Millisecond)
	if src.Reads() != 0 {
		t.Errorf("expected no reads while disabled, got %d", src.Reads())
	}

	app.SetEnabled(true)
	waitFor(t, "a fist emission", func() bool {
		last := app.Last()
		return last != nil && last.Gesture == "fist"
	})

	if err := app.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	select {
	case <-app.Done():
	default:
		t.Error("expected done channel to be closed after Stop")
	}
}

func TestApp_StopResetsGate(t *testing.T) {
	app := New(Config{Source: source.Repeat(detector.FistLandmarks()), Recognizer: newRulesRecognizer(t), FrameRate: 200})

	for i := 0; i < 2; i++ {
		if err := app.Start(context.Background()); err != nil {
			t.Fatalf("Start() #%d error = %v", i, err)
		}
		if _, ok := app.Process(context.Background(), frameOf(detector.FistLandmarks())); !ok {
			t.Errorf("run %d: expected the first fist to be emitted", i)
		}
		if _, ok := app.Process(context.Background(), frameOf(detector.FistLandmarks())); ok {
			t.Errorf("run %d: expected the repeated fist to be suppressed", i)
		}
		if err := app.Stop(); err != nil {
			t.Errorf("Stop() #%d error = %v", i, err)
		}
	}
}

func TestApp_Hooks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	pluginDir := t.TempDir()
	outDir := t.TempDir()
	hookDir := filepath.Join(pluginDir, "recorder")
	os.MkdirAll(hookDir, 0755)
	manifest := `{"name":"recorder","version":"1.0.0","executable":"run.sh","gestures":["victory"]}`
	os.WriteFile(filepath.Join(hookDir, "plugin.json"), []byte(manifest), 0644)
	script := "#!/bin/sh\ncat > " + filepath.Join(outDir, "request.json") + "\necho '{\"success\":true}'\n"
	os.WriteFile(filepath.Join(hookDir, "run.sh"), []byte(script), 0755)

	app := New(Config{
		Recognizer: newRulesRecognizer(t),
		Plugins:    plugin.NewManager(pluginDir, nil),
		Clock:      clock.NewMock(),
	})
	if err := app.DiscoverPlugins(); err != nil {
		t.Fatalf("DiscoverPlugins() error = %v", err)
	}

	app.Process(context.Background(), frameOf(detector.FistLandmarks()))
	app.WaitHooks()
	if _, err := os.Stat(filepath.Join(outDir, "request.json")); !os.IsNotExist(err) {
		t.Fatal("expected no hook for an unsubscribed gesture")
	}

	app.Process(context.Background(), frameOf(detector.VictoryLandmarks()))
	app.WaitHooks()

	data, err := os.ReadFile(filepath.Join(outDir, "request.json"))
	if err != nil {
		t.Fatalf("hook did not run: %v", err)
	}
	var req plugin.Request
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("failed to decode hook request: %v", err)
	}
	if req.Gesture != "victory" || req.Method != "rules" || req.Confidence != 0.7 {
		t.Errorf("unexpected hook request %+v", req)
	}
}

// stillSource yields frames without a hand whose Still flag the test
// controls, and records frame rate changes.
type stillSource struct {
	mu    sync.Mutex
	still bool
	reads int
	rates []int
}

func (s *stillSource) Open() error  { return nil }
func (s *stillSource) Close() error { return nil }

func (s *stillSource) Next() (source.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return source.Frame{Still: s.still}, nil
}

func (s *stillSource) SetFPS(fps int) {
	s.mu.Lock()
	s.rates = append(s.rates, fps)
	s.mu.Unlock()
}

func (s *stillSource) setStill(still bool) {
	s.mu.Lock()
	s.still = still
	s.mu.Unlock()
}

func (s *stillSource) snapshot() (int, []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, append([]int(nil), s.rates...)
}

func TestApp_IdleFrameRate(t *testing.T) {
	mock := clock.NewMock()
	src := &stillSource{still: true}
	app := New(Config{Source: src, Recognizer: newRulesRecognizer(t), Clock: mock})
	app.SetEnabled(true)
	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer app.Stop()

	tick := func() {
		reads, _ := src.snapshot()
		mock.Add(time.Second)
		waitFor(t, "a frame read", func() bool {
			n, _ := src.snapshot()
			return n > reads
		})
	}

	tick()
	if _, rates := src.snapshot(); len(rates) != 0 {
		t.Fatalf("expected no rate change before the idle timeout, got %v", rates)
	}

	tick()
	tick()
	waitFor(t, "a drop to idle fps", func() bool {
		_, rates := src.snapshot()
		return len(rates) == 1 && rates[0] == IdleFPS
	})

	src.setStill(false)
	tick()
	waitFor(t, "a return to active fps", func() bool {
		_, rates := src.snapshot()
		return len(rates) == 2 && rates[1] == ActiveFPS
	})
}
