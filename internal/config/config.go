// Package config loads the mudra runtime configuration from a JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/mudra/internal/backend"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/module"
	"github.com/ayusman/mudra/internal/module/native"
	"github.com/ayusman/mudra/internal/module/wasm"
	"github.com/ayusman/mudra/internal/pool"
	"github.com/ayusman/mudra/internal/recognizer"
	"github.com/ayusman/mudra/internal/stability"
)

// DefaultPath is where serve looks for a config file when none is given.
const DefaultPath = "mudra.json"

const maxFileSize = 1 * 1024 * 1024

// Module kinds.
const (
	ModuleNative = "native"
	ModuleWasm   = "wasm"
	ModuleNone   = "none"
)

// Duration is a time.Duration that reads and writes as a string like "10s".
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the runtime configuration.
type Config struct {
	Addr      string `json:"addr"`
	DBPath    string `json:"db_path"`
	StaticDir string `json:"static_dir,omitempty"`
	PluginDir string `json:"plugin_dir,omitempty"`
	LogLevel  string `json:"log_level"`
	DevLog    bool   `json:"dev_log"`

	// Capture
	CameraID     int     `json:"camera_id"`
	FrameRate    int     `json:"frame_rate"`
	MotionThresh float64 `json:"motion_threshold"`
	ScriptPath   string  `json:"script_path,omitempty"`

	// ReplayPath replaces the camera with recorded JSON-lines frames.
	ReplayPath string `json:"replay_path,omitempty"`
	ReplayLoop bool   `json:"replay_loop"`

	// Compiled backend
	Module      string   `json:"module"`
	WasmPath    string   `json:"wasm_path,omitempty"`
	InitTimeout Duration `json:"init_timeout"`
	PoolBound   int      `json:"pool_bound"`
	Seed        int64    `json:"seed"`

	// Classification
	DetectionThreshold      float64 `json:"detection_threshold"`
	RecognitionThreshold    float64 `json:"recognition_threshold"`
	StabilityMinConfidence  float64 `json:"stability_min_confidence"`
	ReferenceMode           bool    `json:"reference_mode"`
	FallbackOnLowConfidence bool    `json:"fallback_on_low_confidence"`
}

// Default returns the built-in configuration.
func Default() *Config {
	thresholds := backend.DefaultThresholds()
	return &Config{
		Addr:                    "127.0.0.1:8723",
		DBPath:                  "mudra.db",
		LogLevel:                "info",
		FrameRate:               15,
		MotionThresh:            1.0,
		Module:                  ModuleNative,
		InitTimeout:             Duration(backend.DefaultInitTimeout),
		PoolBound:               pool.DefaultBound,
		Seed:                    model.DefaultSeed,
		DetectionThreshold:      thresholds.Detection,
		RecognitionThreshold:    thresholds.Recognition,
		StabilityMinConfidence:  stability.DefaultMinConfidence,
		FallbackOnLowConfidence: true,
	}
}

// Load reads a JSON config file. Fields omitted from the file keep their
// defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and returns the defaults when it
// does not.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	unit := map[string]float64{
		"detection_threshold":      c.DetectionThreshold,
		"recognition_threshold":    c.RecognitionThreshold,
		"stability_min_confidence": c.StabilityMinConfidence,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, v)
		}
	}

	switch c.Module {
	case ModuleNative, ModuleNone:
	case ModuleWasm:
		if c.WasmPath == "" {
			return fmt.Errorf("wasm_path is required when module is %q", ModuleWasm)
		}
	default:
		return fmt.Errorf("unknown module %q", c.Module)
	}

	if c.PoolBound < 1 {
		return fmt.Errorf("pool_bound must be at least 1, got %d", c.PoolBound)
	}
	if c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %d", c.FrameRate)
	}
	if c.InitTimeout <= 0 {
		return fmt.Errorf("init_timeout must be positive, got %s", time.Duration(c.InitTimeout))
	}
	return nil
}

// Thresholds returns the backend gating thresholds.
func (c *Config) Thresholds() backend.Thresholds {
	return backend.Thresholds{
		Detection:   c.DetectionThreshold,
		Recognition: c.RecognitionThreshold,
	}
}

// Recognizer returns the recognizer configuration.
func (c *Config) Recognizer() recognizer.Config {
	return recognizer.Config{
		Seed:                    c.Seed,
		Thresholds:              c.Thresholds(),
		PoolBound:               c.PoolBound,
		InitTimeout:             time.Duration(c.InitTimeout),
		FallbackOnLowConfidence: c.FallbackOnLowConfidence,
		ReferenceMode:           c.ReferenceMode,
	}
}

// Loader returns the loader for the configured module kind, or nil for
// ModuleNone.
func (c *Config) Loader() module.Loader {
	switch c.Module {
	case ModuleNative:
		nc := native.DefaultConfig()
		nc.Seed = c.Seed
		return native.Loader(nc)
	case ModuleWasm:
		return wasm.Loader(wasm.Config{Path: c.WasmPath})
	}
	return nil
}
