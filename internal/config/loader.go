package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
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

// LoadFromReader decodes a YAML config from r, applies defaults for absent
// fields, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Client.LogLevel != "" && !cfg.Client.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("client.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Client.LogLevel))
	}

	// VAD invariants: all durations positive, reduction factor in (0, 1],
	// minimum timeout never above the base timeout.
	v := cfg.VAD
	if v.Sensitivity <= 0 {
		errs = append(errs, fmt.Errorf("vad.sensitivity must be > 0, got %g", v.Sensitivity))
	}
	if v.SilenceTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("vad.silence_timeout_ms must be > 0, got %d", v.SilenceTimeoutMs))
	}
	if v.SpeechStartDelayMs <= 0 {
		errs = append(errs, fmt.Errorf("vad.speech_start_delay_ms must be > 0, got %d", v.SpeechStartDelayMs))
	}
	if v.ConsecutiveSilenceThreshold <= 0 {
		errs = append(errs, fmt.Errorf("vad.consecutive_silence_threshold must be > 0, got %d", v.ConsecutiveSilenceThreshold))
	}
	if v.CheckIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("vad.check_interval_ms must be > 0, got %d", v.CheckIntervalMs))
	}
	if v.DynamicTimeout.Enabled {
		dt := v.DynamicTimeout
		if dt.TriggerAfterMs <= 0 {
			errs = append(errs, fmt.Errorf("vad.dynamic_timeout.trigger_after_ms must be > 0, got %d", dt.TriggerAfterMs))
		}
		if dt.ReductionFactor <= 0 || dt.ReductionFactor > 1 {
			errs = append(errs, fmt.Errorf("vad.dynamic_timeout.reduction_factor %g is out of range (0, 1]", dt.ReductionFactor))
		}
		if dt.MinimumTimeoutMs <= 0 {
			errs = append(errs, fmt.Errorf("vad.dynamic_timeout.minimum_timeout_ms must be > 0, got %d", dt.MinimumTimeoutMs))
		}
		if dt.MinimumTimeoutMs > v.SilenceTimeoutMs {
			errs = append(errs, fmt.Errorf("vad.dynamic_timeout.minimum_timeout_ms %d exceeds vad.silence_timeout_ms %d", dt.MinimumTimeoutMs, v.SilenceTimeoutMs))
		}
	}

	if cfg.Transport.ServerURL == "" {
		errs = append(errs, errors.New("transport.server_url is required"))
	}
	if cfg.Transport.ProcessingMode != "" && !cfg.Transport.ProcessingMode.IsValid() {
		errs = append(errs, fmt.Errorf("transport.processing_mode %q is invalid; valid values: llm, heuristic", cfg.Transport.ProcessingMode))
	}

	if cfg.WakeWord.SettleDelayMs < 0 {
		errs = append(errs, fmt.Errorf("wake_word.settle_delay_ms must be >= 0, got %d", cfg.WakeWord.SettleDelayMs))
	}
	for i, phrase := range cfg.WakeWord.Phrases {
		if phrase == "" {
			errs = append(errs, fmt.Errorf("wake_word.phrases[%d] is empty", i))
		}
	}

	if cfg.Heuristic.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("heuristic.cache_size must be >= 0, got %d", cfg.Heuristic.CacheSize))
	}

	if cfg.History.Source != "" && !cfg.History.Source.IsValid() {
		errs = append(errs, fmt.Errorf("history.source %q is invalid; valid values: yaml, postgres", cfg.History.Source))
	}
	if cfg.History.Source == HistoryYAML && cfg.History.Path == "" {
		errs = append(errs, errors.New("history.path is required when history.source is yaml"))
	}
	if cfg.History.Source == HistoryPostgres && cfg.History.PostgresDSN == "" {
		errs = append(errs, errors.New("history.postgres_dsn is required when history.source is postgres"))
	}

	return errors.Join(errs...)
}
