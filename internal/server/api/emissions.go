package api

import (
	"net/http"

	"github.com/ayusman/mudra/internal/store"
)

// EmissionsHandler serves the log of emitted gestures.
type EmissionsHandler struct {
	store *store.Store
}

// NewEmissionsHandler creates an EmissionsHandler.
func NewEmissionsHandler(s *store.Store) *EmissionsHandler {
	return &EmissionsHandler{store: s}
}

type listEmissionsResponse struct {
	Emissions []*store.Emission `json:"emissions"`
}

// ServeHTTP handles GET /api/emissions and GET /api/emissions/counts.
func (h *EmissionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch r.URL.Path {
	case "/api/emissions":
		emissions, err := h.store.Emissions().Recent(limitParam(r, 100))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list emissions")
			return
		}
		if emissions == nil {
			emissions = []*store.Emission{}
		}
		writeJSON(w, http.StatusOK, listEmissionsResponse{Emissions: emissions})
	case "/api/emissions/counts":
		counts, err := h.store.Emissions().Counts()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to count emissions")
			return
		}
		writeJSON(w, http.StatusOK, counts)
	default:
		http.NotFound(w, r)
	}
}
