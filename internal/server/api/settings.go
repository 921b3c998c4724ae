package api

import (
	"net/http"

	"go.uber.org/multierr"

	"github.com/ayusman/mudra/internal/backend"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/store"
)

// Toggle switches live recognition on and off.
type Toggle interface {
	SetEnabled(enabled bool)
	IsEnabled() bool
}

// SettingsHandler reads and updates runtime settings, persisting them when
// a store is configured.
type SettingsHandler struct {
	rec    *recognizer.Recognizer
	store  *store.Store
	toggle Toggle
}

// NewSettingsHandler creates a SettingsHandler. s and toggle may be nil.
func NewSettingsHandler(rec *recognizer.Recognizer, s *store.Store, toggle Toggle) *SettingsHandler {
	return &SettingsHandler{rec: rec, store: s, toggle: toggle}
}

type settingsResponse struct {
	DetectionThreshold   float64 `json:"detectionThreshold"`
	RecognitionThreshold float64 `json:"recognitionThreshold"`
	ReferenceMode        bool    `json:"referenceMode"`
	Enabled              *bool   `json:"enabled,omitempty"`
}

type settingsRequest struct {
	DetectionThreshold   *float64 `json:"detectionThreshold"`
	RecognitionThreshold *float64 `json:"recognitionThreshold"`
	ReferenceMode        *bool    `json:"referenceMode"`
	Enabled              *bool    `json:"enabled"`
}

// ServeHTTP handles GET and PUT /api/settings. PUT applies only the fields
// present in the body.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.current())
	case http.MethodPut:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) current() settingsResponse {
	t := h.rec.Thresholds()
	resp := settingsResponse{
		DetectionThreshold:   t.Detection,
		RecognitionThreshold: t.Recognition,
		ReferenceMode:        h.rec.ReferenceMode(),
	}
	if h.toggle != nil {
		enabled := h.toggle.IsEnabled()
		resp.Enabled = &enabled
	}
	return resp
}

func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Enabled != nil && h.toggle == nil {
		writeError(w, http.StatusBadRequest, "Live recognition is not running")
		return
	}

	t := h.rec.Thresholds()
	if req.DetectionThreshold != nil {
		t.Detection = *req.DetectionThreshold
	}
	if req.RecognitionThreshold != nil {
		t.Recognition = *req.RecognitionThreshold
	}
	if err := h.rec.SetThresholds(t); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ReferenceMode != nil {
		h.rec.SetReferenceMode(*req.ReferenceMode)
	}
	if req.Enabled != nil {
		h.toggle.SetEnabled(*req.Enabled)
	}

	if h.store != nil {
		if err := persist(h.store.Settings(), t, req); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save settings")
			return
		}
	}
	writeJSON(w, http.StatusOK, h.current())
}

func persist(repo *store.SettingsRepository, t backend.Thresholds, req settingsRequest) error {
	err := multierr.Combine(
		repo.SetFloat(store.SettingDetectionThreshold, t.Detection),
		repo.SetFloat(store.SettingRecognitionThreshold, t.Recognition),
	)
	if req.ReferenceMode != nil {
		err = multierr.Append(err, repo.SetBool(store.SettingReferenceMode, *req.ReferenceMode))
	}
	if req.Enabled != nil {
		err = multierr.Append(err, repo.SetBool(store.SettingEnabled, *req.Enabled))
	}
	return err
}
