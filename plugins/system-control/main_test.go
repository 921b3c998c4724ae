package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestResolve(t *testing.T) {
	config := json.RawMessage(`{"bindings":{"fist":"volume-mute","point":"warp-speed"}}`)

	tests := []struct {
		name       string
		req        Request
		wantAction string
		wantErr    string
	}{
		{"bound gesture", Request{Gesture: "fist", Config: config}, "volume-mute", ""},
		{"unbound gesture", Request{Gesture: "victory", Config: config}, "", "no action bound"},
		{"unknown action", Request{Gesture: "point", Config: config}, "", "unknown action"},
		{"no config", Request{Gesture: "fist"}, "", "no action bound"},
		{"bad config", Request{Gesture: "fist", Config: json.RawMessage(`[]`)}, "", "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, handler, err := resolve(tt.req)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve() error = %v", err)
			}
			if action != tt.wantAction || handler == nil {
				t.Errorf("expected action %s, got %s", tt.wantAction, action)
			}
		})
	}
}
