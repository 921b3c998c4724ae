package api

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ayusman/mudra/internal/bench"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/store"
)

// MaxIterations bounds a benchmark request.
const MaxIterations = 10000

// BenchmarkHandler runs benchmarks and serves their history.
type BenchmarkHandler struct {
	rec    *recognizer.Recognizer
	store  *store.Store
	logger *zap.SugaredLogger
}

// NewBenchmarkHandler creates a BenchmarkHandler. Without a store, runs
// are not kept.
func NewBenchmarkHandler(rec *recognizer.Recognizer, s *store.Store, logger *zap.SugaredLogger) *BenchmarkHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &BenchmarkHandler{rec: rec, store: s, logger: logger}
}

type benchmarkRequest struct {
	Iterations int                `json:"iterations"`
	Points     []detector.Point3D `json:"points,omitempty"`
}

type benchmarkResponse struct {
	ID     string       `json:"id,omitempty"`
	Report bench.Report `json:"report"`
}

// ServeHTTP routes:
//
//	POST   /api/benchmark            run a benchmark
//	GET    /api/benchmarks           list stored runs
//	GET    /api/benchmarks/chart     render the run history
//	GET    /api/benchmarks/{id}      fetch one run
//	DELETE /api/benchmarks/{id}      delete one run
func (h *BenchmarkHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/benchmark" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.run(w, r)
		return
	}

	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "Benchmark history is not stored")
		return
	}

	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/benchmarks"), "/")
	switch {
	case id == "" && r.Method == http.MethodGet:
		h.list(w, r)
	case id == "chart" && r.Method == http.MethodGet:
		h.chart(w, r)
	case id != "" && r.Method == http.MethodGet:
		h.get(w, id)
	case id != "" && r.Method == http.MethodDelete:
		h.delete(w, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *BenchmarkHandler) run(w http.ResponseWriter, r *http.Request) {
	req := benchmarkRequest{Iterations: bench.DefaultIterations}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Iterations <= 0 || req.Iterations > MaxIterations {
		writeError(w, http.StatusBadRequest, "Iterations must be between 1 and 10000")
		return
	}
	hand := detector.DiagonalHand()
	if req.Points != nil {
		hand = detector.Hand(req.Points)
	}

	report, err := h.rec.RunBenchmark(r.Context(), hand, req.Iterations)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Benchmark interrupted")
		return
	}
	report.CompiledSamples = nil
	report.InterpretedSamples = nil

	resp := benchmarkResponse{Report: report}
	if h.store != nil {
		run := store.NewBenchmarkRun(report, h.rec.Version())
		if err := h.store.Benchmarks().Create(run); err != nil {
			h.logger.Warnw("failed to store benchmark run", "error", err)
		} else {
			resp.ID = run.ID
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type listBenchmarksResponse struct {
	Runs []*store.BenchmarkRun `json:"runs"`
}

func (h *BenchmarkHandler) list(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.Benchmarks().List(limitParam(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list benchmark runs")
		return
	}
	if runs == nil {
		runs = []*store.BenchmarkRun{}
	}
	writeJSON(w, http.StatusOK, listBenchmarksResponse{Runs: runs})
}

func (h *BenchmarkHandler) get(w http.ResponseWriter, id string) {
	run, err := h.store.Benchmarks().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Benchmark run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get benchmark run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *BenchmarkHandler) delete(w http.ResponseWriter, id string) {
	if err := h.store.Benchmarks().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Benchmark run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete benchmark run")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BenchmarkHandler) chart(w http.ResponseWriter, r *http.Request) {
	points, err := h.store.Benchmarks().Trend(limitParam(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load benchmark runs")
		return
	}
	var buf bytes.Buffer
	if err := bench.WriteTrendChart(&buf, points); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
