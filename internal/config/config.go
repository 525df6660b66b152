// Package config provides the configuration schema and loader for the
// duplexscribe transcription pipeline.
package config

import "time"

// LogLevel controls log verbosity for the duplexscribe process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for duplexscribe.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig   `yaml:"server"`
	Audio      AudioConfig    `yaml:"audio"`
	Provider   ProviderConfig `yaml:"provider"`
	Pipeline   PipelineConfig `yaml:"pipeline"`
	Vocabulary []string       `yaml:"vocabulary"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// MetricsAddr is the TCP address the /metrics and health endpoints
	// listen on (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig fixes the PCM format shared by capture and the multiplexed
// stream. These are per-deployment settings, not user-facing knobs.
type AudioConfig struct {
	// SampleRate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// BitDepth in bits per sample. Only 16 is supported.
	BitDepth int `yaml:"bit_depth"`

	// SourceChannels per capture source. Only 1 (mono) is supported.
	SourceChannels int `yaml:"source_channels"`

	// MuxChannels in the multiplexed stream. Always 2.
	MuxChannels int `yaml:"mux_channels"`

	// CadenceMs is the multiplexed frame emission interval in
	// milliseconds. Default: 100.
	CadenceMs int `yaml:"cadence_ms"`
}

// Cadence returns the frame cadence as a duration.
func (a AudioConfig) Cadence() time.Duration {
	return time.Duration(a.CadenceMs) * time.Millisecond
}

// ProviderConfig selects and authenticates the streaming STT backend.
type ProviderConfig struct {
	// Name selects the provider implementation (e.g., "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// Model selects a specific model within the provider (e.g., "nova-3").
	Model string `yaml:"model"`

	// Language is the BCP-47 recognition language tag (e.g., "en-US").
	Language string `yaml:"language"`
}

// PipelineConfig holds the suppression and reconciliation tuning plus the
// reconnect backlog bound.
type PipelineConfig struct {
	// BacklogSeconds bounds audio queued while the transcription
	// connection is being established. Default: 30.
	BacklogSeconds int `yaml:"backlog_seconds"`

	// SpeechThreshold is the remote level above which remote speech is
	// considered active. Default: 0.14.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// BargeFloor is the minimum absolute local level for barge-in.
	// Default: 0.03.
	BargeFloor float64 `yaml:"barge_floor"`

	// BargeRatio is the local/remote level ratio required for barge-in.
	// Default: 1.15.
	BargeRatio float64 `yaml:"barge_ratio"`

	// PriorityWindowMs is how long a fresh remote preview outranks a local
	// one, in milliseconds. Default: 1200.
	PriorityWindowMs int `yaml:"priority_window_ms"`

	// HoldWindowMs is how long the previous preview is held over a
	// micro-gap, in milliseconds. Default: 1000.
	HoldWindowMs int `yaml:"hold_window_ms"`
}

// BacklogLimit returns the backlog bound as a duration.
func (p PipelineConfig) BacklogLimit() time.Duration {
	return time.Duration(p.BacklogSeconds) * time.Second
}

// PriorityWindow returns the remote-priority window as a duration.
func (p PipelineConfig) PriorityWindow() time.Duration {
	return time.Duration(p.PriorityWindowMs) * time.Millisecond
}

// HoldWindow returns the display hold window as a duration.
func (p PipelineConfig) HoldWindow() time.Duration {
	return time.Duration(p.HoldWindowMs) * time.Millisecond
}
