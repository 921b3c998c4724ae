// Package plugin discovers and runs gesture hooks: external executables
// that are handed each emitted gesture as JSON on stdin.
package plugin

import "encoding/json"

// AnyGesture in a manifest's gesture list subscribes to every gesture.
const AnyGesture = "*"

// Manifest describes a plugin, read from its plugin.json.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Gestures    []string        `json:"gestures"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Handles reports whether the plugin subscribes to gesture.
func (m Manifest) Handles(gesture string) bool {
	for _, g := range m.Gestures {
		if g == gesture || g == AnyGesture {
			return true
		}
	}
	return false
}

// Request is the emission sent to a plugin.
type Request struct {
	Gesture    string          `json:"gesture"`
	GestureID  int             `json:"gestureId"`
	Confidence float64         `json:"confidence"`
	Method     string          `json:"method"`
	Timestamp  int64           `json:"timestamp"`
	Config     json.RawMessage `json:"config,omitempty"`
}

// Response is a plugin's reply on stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
