package api

import (
	"net/http"

	"github.com/ayusman/mudra/internal/recognizer"
)

// StatusHandler reports backend availability and performance.
type StatusHandler struct {
	rec *recognizer.Recognizer
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(rec *recognizer.Recognizer) *StatusHandler {
	return &StatusHandler{rec: rec}
}

// ServeHTTP routes:
//
//	GET    /api/status         backend status
//	GET    /api/stats          per-backend timing summary
//	DELETE /api/stats          clear recorded samples
//	GET    /api/stats/samples  recorded samples
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/status" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, h.rec.Status())
	case r.URL.Path == "/api/stats" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, h.rec.PerformanceStats())
	case r.URL.Path == "/api/stats" && r.Method == http.MethodDelete:
		h.rec.ClearPerformanceData()
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/api/stats/samples" && r.Method == http.MethodGet:
		samples := h.rec.PerformanceData()
		if samples == nil {
			samples = []recognizer.Sample{}
		}
		writeJSON(w, http.StatusOK, samples)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
