// Package main is a mudra gesture hook that sends keystrokes on macOS via
// AppleScript. The manifest config binds gestures to keys:
//
//	{"bindings": {"point": {"key": "]", "modifiers": ["command"]}}}
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Request is the emitted gesture sent by mudra.
type Request struct {
	Gesture    string          `json:"gesture"`
	GestureID  int             `json:"gestureId"`
	Confidence float64         `json:"confidence"`
	Method     string          `json:"method"`
	Timestamp  int64           `json:"timestamp"`
	Config     json.RawMessage `json:"config"`
}

// Response is written to stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Keystroke is a key with optional modifiers.
type Keystroke struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"` // command, option, control, shift
}

// Config maps gesture labels to keystrokes.
type Config struct {
	Bindings map[string]Keystroke `json:"bindings"`
}

// modifierMap maps user-friendly modifier names to AppleScript equivalents.
var modifierMap = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	script, err := scriptFor(req)
	if err != nil {
		writeErrorResponse(err.Error())
		return
	}
	if err := runAppleScript(script); err != nil {
		writeErrorResponse(fmt.Sprintf("keystroke for %s failed: %v", req.Gesture, err))
		return
	}

	writeSuccessResponse()
}

// scriptFor returns the AppleScript for the keystroke bound to the
// request's gesture.
func scriptFor(req Request) (string, error) {
	var cfg Config
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return "", fmt.Errorf("failed to parse config: %w", err)
		}
	}
	ks, ok := cfg.Bindings[req.Gesture]
	if !ok {
		return "", fmt.Errorf("no keystroke bound to gesture %s", req.Gesture)
	}
	if ks.Key == "" {
		return "", fmt.Errorf("key is required for gesture %s", req.Gesture)
	}
	return buildKeystrokeScript(ks.Key, ks.Modifiers), nil
}

// buildKeystrokeScript generates an AppleScript for the given key and modifiers.
func buildKeystrokeScript(key string, modifiers []string) string {
	if len(modifiers) == 0 {
		return fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, key)
	}

	// Convert modifiers to AppleScript format
	var appleModifiers []string
	for _, mod := range modifiers {
		if appleMod, ok := modifierMap[strings.ToLower(mod)]; ok {
			appleModifiers = append(appleModifiers, appleMod)
		}
	}

	if len(appleModifiers) == 0 {
		return fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, key)
	}

	modifierList := strings.Join(appleModifiers, ", ")
	return fmt.Sprintf(`tell application "System Events" to keystroke "%s" using {%s}`, key, modifierList)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	resp := Response{
		Success: false,
		Error:   errMsg,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	resp := Response{
		Success: true,
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

// runAppleScript executes an AppleScript command and returns any error.
func runAppleScript(script string) error {
	cmd := exec.Command("osascript", "-e", script)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
