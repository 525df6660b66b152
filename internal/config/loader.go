package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known streaming STT provider names.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = []string{"deepgram"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields of cfg with their documented
// defaults. It is idempotent.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.BitDepth == 0 {
		cfg.Audio.BitDepth = 16
	}
	if cfg.Audio.SourceChannels == 0 {
		cfg.Audio.SourceChannels = 1
	}
	if cfg.Audio.MuxChannels == 0 {
		cfg.Audio.MuxChannels = 2
	}
	if cfg.Audio.CadenceMs == 0 {
		cfg.Audio.CadenceMs = 100
	}
	if cfg.Pipeline.BacklogSeconds == 0 {
		cfg.Pipeline.BacklogSeconds = 30
	}
	if cfg.Pipeline.SpeechThreshold == 0 {
		cfg.Pipeline.SpeechThreshold = 0.14
	}
	if cfg.Pipeline.BargeFloor == 0 {
		cfg.Pipeline.BargeFloor = 0.03
	}
	if cfg.Pipeline.BargeRatio == 0 {
		cfg.Pipeline.BargeRatio = 1.15
	}
	if cfg.Pipeline.PriorityWindowMs == 0 {
		cfg.Pipeline.PriorityWindowMs = 1200
	}
	if cfg.Pipeline.HoldWindowMs == 0 {
		cfg.Pipeline.HoldWindowMs = 1000
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must be positive", cfg.Audio.SampleRate))
	}
	if cfg.Audio.BitDepth != 16 {
		errs = append(errs, fmt.Errorf("audio.bit_depth %d is unsupported; only 16 is supported", cfg.Audio.BitDepth))
	}
	if cfg.Audio.SourceChannels != 1 {
		errs = append(errs, fmt.Errorf("audio.source_channels %d is unsupported; capture sources must be mono", cfg.Audio.SourceChannels))
	}
	if cfg.Audio.MuxChannels != 2 {
		errs = append(errs, fmt.Errorf("audio.mux_channels %d is unsupported; the multiplexed stream is always stereo", cfg.Audio.MuxChannels))
	}
	if cfg.Audio.CadenceMs <= 0 {
		errs = append(errs, fmt.Errorf("audio.cadence_ms %d must be positive", cfg.Audio.CadenceMs))
	}

	// Provider
	if cfg.Provider.Name == "" {
		errs = append(errs, errors.New("provider.name is required"))
	} else if !slices.Contains(ValidProviderNames, cfg.Provider.Name) {
		slog.Warn("unknown provider name — may be a typo or third-party provider",
			"name", cfg.Provider.Name,
			"known", ValidProviderNames,
		)
	}
	if cfg.Provider.APIKey == "" {
		errs = append(errs, errors.New("provider.api_key is required"))
	}

	// Pipeline
	if cfg.Pipeline.BacklogSeconds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.backlog_seconds %d must not be negative", cfg.Pipeline.BacklogSeconds))
	}
	if cfg.Pipeline.SpeechThreshold < 0 || cfg.Pipeline.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.speech_threshold %.3f is out of range [0, 1]", cfg.Pipeline.SpeechThreshold))
	}
	if cfg.Pipeline.BargeFloor < 0 || cfg.Pipeline.BargeFloor > 1 {
		errs = append(errs, fmt.Errorf("pipeline.barge_floor %.3f is out of range [0, 1]", cfg.Pipeline.BargeFloor))
	}
	if cfg.Pipeline.BargeRatio < 1 {
		errs = append(errs, fmt.Errorf("pipeline.barge_ratio %.3f must be at least 1", cfg.Pipeline.BargeRatio))
	}
	if cfg.Pipeline.PriorityWindowMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.priority_window_ms %d must not be negative", cfg.Pipeline.PriorityWindowMs))
	}
	if cfg.Pipeline.HoldWindowMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.hold_window_ms %d must not be negative", cfg.Pipeline.HoldWindowMs))
	}

	// Vocabulary
	for i, term := range cfg.Vocabulary {
		if term == "" {
			errs = append(errs, fmt.Errorf("vocabulary[%d] must not be empty", i))
		}
	}

	return errors.Join(errs...)
}
