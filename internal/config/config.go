// Package config provides the configuration schema and loader for the parley
// voice client.
package config

import "time"

// LogLevel controls log verbosity for the client.
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

// ProcessingMode selects where captured commands are interpreted.
type ProcessingMode string

const (
	// ModeLLM relays audio to the remote assistant for full interpretation.
	ModeLLM ProcessingMode = "llm"

	// ModeHeuristic resolves commands locally by text similarity against the
	// command history; the remote peer is used for transcription only.
	ModeHeuristic ProcessingMode = "heuristic"
)

// IsValid reports whether m is a recognised processing mode.
func (m ProcessingMode) IsValid() bool {
	return m == ModeLLM || m == ModeHeuristic
}

// HistorySource selects the backing store for the command history.
type HistorySource string

const (
	HistoryYAML     HistorySource = "yaml"
	HistoryPostgres HistorySource = "postgres"
)

// IsValid reports whether s is a recognised history source.
func (s HistorySource) IsValid() bool {
	return s == HistoryYAML || s == HistoryPostgres
}

// Config is the root configuration structure for the client.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Client    ClientConfig    `yaml:"client"`
	VAD       VADConfig       `yaml:"vad"`
	Transport TransportConfig `yaml:"transport"`
	WakeWord  WakeWordConfig  `yaml:"wake_word"`
	Heuristic HeuristicConfig `yaml:"heuristic"`
	History   HistoryConfig   `yaml:"history"`
}

// ClientConfig holds logging and observability settings.
type ClientConfig struct {
	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus /metrics endpoint listens
	// on (e.g., ":9102"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// VADConfig holds the voice-activity detection parameters. It is loaded once
// before the first session and replaced only between sessions; a running
// session never observes a change.
type VADConfig struct {
	// Enabled globally toggles voice-activity detection. When false, every
	// session relies solely on the hard ceiling timer.
	Enabled bool `yaml:"enabled"`

	// Sensitivity is the RMS energy threshold above which a tick counts as
	// voiced.
	Sensitivity float64 `yaml:"sensitivity"`

	// SilenceTimeoutMs is the silence duration that confirms the speaker is
	// done.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`

	// SpeechStartDelayMs is the grace period after recording start during
	// which no stop decision is ever emitted.
	SpeechStartDelayMs int `yaml:"speech_start_delay_ms"`

	// ConsecutiveSilenceThreshold is the number of consecutive silent analysis
	// ticks required before the silence-duration check is evaluated.
	ConsecutiveSilenceThreshold int `yaml:"consecutive_silence_threshold"`

	// CheckIntervalMs is the analysis tick period.
	CheckIntervalMs int `yaml:"check_interval_ms"`

	// DynamicTimeout shrinks the silence-confirmation window for long
	// recordings.
	DynamicTimeout DynamicTimeoutConfig `yaml:"dynamic_timeout"`
}

// DynamicTimeoutConfig controls the adaptive shortening of the silence
// timeout once a recording has run past a trigger point.
type DynamicTimeoutConfig struct {
	Enabled bool `yaml:"enabled"`

	// TriggerAfterMs is the recording age past which the reduced timeout
	// applies.
	TriggerAfterMs int `yaml:"trigger_after_ms"`

	// ReductionFactor scales the silence timeout, in (0, 1].
	ReductionFactor float64 `yaml:"reduction_factor"`

	// MinimumTimeoutMs floors the reduced timeout.
	MinimumTimeoutMs int `yaml:"minimum_timeout_ms"`
}

// Duration accessors. Millisecond integers in YAML keep the file format
// aligned with the thresholds the settings UI persists.

func (v VADConfig) SilenceTimeout() time.Duration { return msDuration(v.SilenceTimeoutMs) }
func (v VADConfig) SpeechStartDelay() time.Duration {
	return msDuration(v.SpeechStartDelayMs)
}
func (v VADConfig) CheckInterval() time.Duration { return msDuration(v.CheckIntervalMs) }
func (d DynamicTimeoutConfig) TriggerAfter() time.Duration {
	return msDuration(d.TriggerAfterMs)
}
func (d DynamicTimeoutConfig) MinimumTimeout() time.Duration {
	return msDuration(d.MinimumTimeoutMs)
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// TransportConfig holds the message-channel settings.
type TransportConfig struct {
	// ServerURL is the WebSocket endpoint of the remote assistant
	// (e.g., "wss://assistant.example.com/ws").
	ServerURL string `yaml:"server_url"`

	// ProcessingMode selects remote or local command interpretation.
	ProcessingMode ProcessingMode `yaml:"processing_mode"`
}

// WakeWordConfig holds the hands-free listening settings.
type WakeWordConfig struct {
	// Phrases is the set of trigger phrases, matched case-insensitively by
	// containment against incoming transcriptions.
	Phrases []string `yaml:"phrases"`

	// SettleDelayMs is the pause before capture restarts after a command
	// round-trip completes.
	SettleDelayMs int `yaml:"settle_delay_ms"`
}

// SettleDelay returns the restart settle delay.
func (w WakeWordConfig) SettleDelay() time.Duration { return msDuration(w.SettleDelayMs) }

// HeuristicConfig holds the local command-matching settings.
type HeuristicConfig struct {
	// CacheSize bounds the match-result cache (FIFO eviction). Zero uses the
	// default of 100.
	CacheSize int `yaml:"cache_size"`
}

// HistoryConfig selects where the command history is loaded from.
type HistoryConfig struct {
	// Source is "yaml" or "postgres".
	Source HistorySource `yaml:"source"`

	// Path is the command-history YAML file, used when Source is "yaml".
	Path string `yaml:"path"`

	// PostgresDSN is the connection string, used when Source is "postgres".
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Default returns the configuration used when a field is absent from the
// YAML file. The VAD numbers mirror the thresholds the client shipped with.
func Default() *Config {
	return &Config{
		Client: ClientConfig{LogLevel: LogInfo},
		VAD: VADConfig{
			Enabled:                     true,
			Sensitivity:                 0.002,
			SilenceTimeoutMs:            800,
			SpeechStartDelayMs:          500,
			ConsecutiveSilenceThreshold: 3,
			CheckIntervalMs:             100,
			DynamicTimeout: DynamicTimeoutConfig{
				Enabled:          true,
				TriggerAfterMs:   8000,
				ReductionFactor:  0.6,
				MinimumTimeoutMs: 400,
			},
		},
		Transport: TransportConfig{ProcessingMode: ModeLLM},
		WakeWord: WakeWordConfig{
			Phrases:       []string{"hey parley", "okay parley"},
			SettleDelayMs: 500,
		},
		Heuristic: HeuristicConfig{CacheSize: 100},
		History:   HistoryConfig{Source: HistoryYAML, Path: "history.yaml"},
	}
}
