// Package config provides tracer settings and their persistence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"layout-tracer/internal/logging"
	"layout-tracer/internal/metrics"
	"layout-tracer/internal/trace"
)

// ErrInvalidSettings is returned by Validate and Load for out of range values.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings holds the tunables of the tracer and its ambient stack. Files
// ending in .yaml or .yml are read and written as YAML, anything else as
// JSON.
type Settings struct {
	Version int `json:"version" yaml:"version"`

	// Search limits
	MaxShapes int     `json:"max_shapes" yaml:"max_shapes"`
	AreaRatio float64 `json:"area_ratio" yaml:"area_ratio"`

	// Logging
	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"`

	// Metrics backend: "none", "basic" or "prometheus"
	Metrics string `json:"metrics" yaml:"metrics"`

	// Layer names for reporting, keyed by layer number
	LayerNames map[uint32]string `json:"layer_names,omitempty" yaml:"layer_names,omitempty"`
}

// Default returns the default settings.
func Default() *Settings {
	return &Settings{
		Version:   1,
		AreaRatio: trace.DefaultAreaRatio,
		LogLevel:  "info",
		LogFormat: "text",
		Metrics:   "none",
	}
}

// Load reads settings from path. Fields missing from the file keep their
// defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	s := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, s)
	} else {
		err = json.Unmarshal(data, s)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save writes the settings to path.
func (s *Settings) Save(path string) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = yaml.Marshal(s)
	} else {
		data, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks value ranges.
func (s *Settings) Validate() error {
	if s.MaxShapes < 0 {
		return fmt.Errorf("%w: max_shapes %d is negative", ErrInvalidSettings, s.MaxShapes)
	}
	if s.AreaRatio < 1 {
		return fmt.Errorf("%w: area_ratio %g is below 1", ErrInvalidSettings, s.AreaRatio)
	}
	if _, err := s.level(); err != nil {
		return err
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidSettings, s.LogFormat)
	}
	switch s.Metrics {
	case "none", "basic", "prometheus":
	default:
		return fmt.Errorf("%w: metrics %q", ErrInvalidSettings, s.Metrics)
	}
	return nil
}

func (s *Settings) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log_level %q", ErrInvalidSettings, s.LogLevel)
	}
	return l, nil
}

// Logger builds the configured logger.
func (s *Settings) Logger() *logging.Logger {
	level, err := s.level()
	if err != nil {
		level = slog.LevelInfo
	}
	if s.LogFormat == "json" {
		return logging.NewJSONLogger(level)
	}
	return logging.NewTextLogger(level)
}

// Collector builds the configured metrics collector. The Prometheus
// collector registers with the default registerer.
func (s *Settings) Collector() metrics.Collector {
	switch s.Metrics {
	case "basic":
		return &metrics.Basic{}
	case "prometheus":
		return metrics.NewPrometheus(nil)
	default:
		return metrics.Noop{}
	}
}

// TraceOptions converts the settings into tracer options using the given
// logger and collector.
func (s *Settings) TraceOptions(logger *logging.Logger, collector metrics.Collector) []trace.Option {
	return []trace.Option{
		trace.WithMaxShapes(s.MaxShapes),
		trace.WithAreaRatio(s.AreaRatio),
		trace.WithLogger(logger),
		trace.WithMetrics(collector),
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
