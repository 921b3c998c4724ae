package api

import (
	"net/http"

	"github.com/ayusman/mudra/internal/backend"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/recognizer"
)

// MaxBatchFrames bounds a batch classification request.
const MaxBatchFrames = 1000

// ClassifyHandler classifies hands posted as landmark lists.
type ClassifyHandler struct {
	rec *recognizer.Recognizer
}

// NewClassifyHandler creates a ClassifyHandler.
func NewClassifyHandler(rec *recognizer.Recognizer) *ClassifyHandler {
	return &ClassifyHandler{rec: rec}
}

type batchRequest struct {
	Frames []handPayload `json:"frames"`
}

type batchResponse struct {
	Results    []backend.Result `json:"results"`
	FrameCount int              `json:"frameCount"`
}

// ServeHTTP handles POST /api/classify and POST /api/classify/batch. A
// hand without exactly 21 points is answered with the no-gesture result.
func (h *ClassifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch r.URL.Path {
	case "/api/classify":
		var req handPayload
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		writeJSON(w, http.StatusOK, h.rec.Classify(req.hand()))

	case "/api/classify/batch":
		var req batchRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if len(req.Frames) > MaxBatchFrames {
			writeError(w, http.StatusRequestEntityTooLarge, "Too many frames")
			return
		}
		hands := make([]detector.Hand, len(req.Frames))
		for i, f := range req.Frames {
			hands[i] = f.hand()
		}
		results := h.rec.ClassifyBatch(hands)
		if results == nil {
			results = []backend.Result{}
		}
		writeJSON(w, http.StatusOK, batchResponse{Results: results, FrameCount: len(results)})

	default:
		http.NotFound(w, r)
	}
}
