package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/module/native"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/store"
)

func TestAPI_ClassifyAndBenchmarkWorkflow(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	rec := recognizer.New(context.Background(), native.Loader(native.DefaultConfig()), recognizer.DefaultConfig(), nil, nil)
	defer rec.Dispose(context.Background())
	if err := rec.WaitReady(context.Background()); err != nil {
		t.Fatalf("compiled backend not ready: %v", err)
	}

	ts := httptest.NewServer(New(Config{Recognizer: rec, Store: s}))
	defer ts.Close()
	client := ts.Client()

	// 1. Status reports the compiled backend
	resp, err := client.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status error = %v", err)
	}
	var status recognizer.StatusInfo
	json.NewDecoder(resp.Body).Decode(&status)
	resp.Body.Close()
	if status.Version != native.Version {
		t.Errorf("status version = %q, want %q", status.Version, native.Version)
	}

	// 2. Classify a fist; a sentinel from the model falls back to the rules
	points, _ := json.Marshal(map[string]any{"points": detector.FistLandmarks().Hand()})
	resp, err = client.Post(ts.URL+"/api/classify", "application/json", bytes.NewReader(points))
	if err != nil {
		t.Fatalf("POST /api/classify error = %v", err)
	}
	var result struct {
		Gesture string `json:"gesture"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	resp.Body.Close()
	if result.Gesture == "" {
		t.Error("expected a gesture label")
	}

	// 3. Run a benchmark and find it in the history
	resp, err = client.Post(ts.URL+"/api/benchmark", "application/json", strings.NewReader(`{"iterations":50}`))
	if err != nil {
		t.Fatalf("POST /api/benchmark error = %v", err)
	}
	var run struct {
		ID     string `json:"id"`
		Report struct {
			Compiled    struct{ Count int } `json:"compiled"`
			Interpreted struct{ Count int } `json:"interpreted"`
		} `json:"report"`
	}
	json.NewDecoder(resp.Body).Decode(&run)
	resp.Body.Close()
	if run.Report.Compiled.Count != 50 || run.Report.Interpreted.Count != 50 {
		t.Errorf("benchmark counts = %d/%d, want 50/50", run.Report.Compiled.Count, run.Report.Interpreted.Count)
	}

	resp, _ = client.Get(ts.URL + "/api/benchmarks/" + run.ID)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /api/benchmarks/{id} status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	// 4. The benchmark did not add performance samples
	resp, _ = client.Get(ts.URL + "/api/stats/samples")
	var samples []recognizer.Sample
	json.NewDecoder(resp.Body).Decode(&samples)
	resp.Body.Close()
	if len(samples) != 1 {
		t.Errorf("samples = %d, want 1", len(samples))
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(nil)
	ts := httptest.NewServer(New(Config{Hub: hub}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/gestures/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	event := store.Emission{Gesture: "victory", GestureID: 4, Confidence: 0.9, Method: "compiled"}
	if err := hub.Broadcast(event); err != nil {
		t.Fatalf("Broadcast error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got store.Emission
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read error = %v", err)
	}
	if got.Gesture != "victory" || got.GestureID != 4 {
		t.Errorf("received %+v, want victory/4", got)
	}

	hub.Close()
	if hub.Clients() != 0 {
		t.Errorf("clients after Close = %d, want 0", hub.Clients())
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed")
	}
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	if err := hub.Broadcast(map[string]string{"gesture": "fist"}); err != nil {
		t.Errorf("Broadcast error = %v", err)
	}
	if err := hub.Broadcast(func() {}); err == nil {
		t.Error("expected an error for a value that cannot be encoded")
	}
}
