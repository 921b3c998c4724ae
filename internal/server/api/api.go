// Package api provides the HTTP handlers of the mudra REST API.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/ayusman/mudra/internal/detector"
)

const maxBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}

// limitParam parses the "limit" query parameter.
func limitParam(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// handPayload is a single hand in request bodies.
type handPayload struct {
	Points []detector.Point3D `json:"points"`
}

func (p handPayload) hand() detector.Hand {
	return detector.Hand(p.Points)
}
