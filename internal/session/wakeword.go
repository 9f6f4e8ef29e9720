package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/parley-voice/parley/internal/config"
)

// WakeState is the hands-free listening state.
type WakeState int

const (
	// WakeInactive means hands-free mode is off; capture is press-to-talk only.
	WakeInactive WakeState = iota

	// WakeListening means short capture cycles run continuously, watching
	// transcriptions for a trigger phrase.
	WakeListening

	// WakeAwaitingCommand means a trigger phrase was heard and the next
	// utterance is the command.
	WakeAwaitingCommand
)

// String returns the human-readable name of the state.
func (s WakeState) String() string {
	switch s {
	case WakeInactive:
		return "inactive"
	case WakeListening:
		return "listening"
	case WakeAwaitingCommand:
		return "awaiting_command"
	default:
		return "unknown"
	}
}

// WakeWordSupervisor drives hands-free listening: it keeps restarting short
// capture sessions, watches their transcriptions for a trigger phrase, and
// promotes the following utterance to a command.
//
// The supervisor never touches the recorder directly; it calls the injected
// start function, which lets the orchestrator apply its usual gating (no
// overlap with press-to-talk, transport connected). Restarts are scheduled
// with a settle delay and guarded by a generation counter, so Deactivate
// always wins over a restart that is already pending.
//
// All methods are safe for concurrent use.
type WakeWordSupervisor struct {
	cfg     config.WakeWordConfig
	phrases []string
	start   func(ctx context.Context) error

	mu    sync.Mutex
	state WakeState
	gen   uint64

	// pendingRestart is set when a capture cycle ends while a command
	// round-trip is still in flight; the restart is released by
	// CommandCompleted instead.
	pendingRestart bool
}

// NewWakeWordSupervisor creates a supervisor over the given trigger phrases.
// start is called whenever a listening capture cycle should begin.
func NewWakeWordSupervisor(cfg config.WakeWordConfig, start func(ctx context.Context) error) *WakeWordSupervisor {
	phrases := make([]string, 0, len(cfg.Phrases))
	for _, p := range cfg.Phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			phrases = append(phrases, p)
		}
	}
	return &WakeWordSupervisor{cfg: cfg, phrases: phrases, start: start}
}

// State returns the current listening state.
func (w *WakeWordSupervisor) State() WakeState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Active reports whether hands-free mode is on.
func (w *WakeWordSupervisor) Active() bool {
	return w.State() != WakeInactive
}

// Activate turns hands-free listening on and starts the first capture cycle.
// No-op when already active.
func (w *WakeWordSupervisor) Activate(ctx context.Context) {
	w.mu.Lock()
	if w.state != WakeInactive {
		w.mu.Unlock()
		return
	}
	w.state = WakeListening
	w.gen++
	gen := w.gen
	w.mu.Unlock()

	slog.Info("wakeword: activated", "phrases", w.phrases)
	w.launch(ctx, gen)
}

// Deactivate turns hands-free listening off. Any pending restart is
// invalidated; a capture cycle already running is left to the caller to stop.
func (w *WakeWordSupervisor) Deactivate() {
	w.mu.Lock()
	if w.state == WakeInactive {
		w.mu.Unlock()
		return
	}
	w.state = WakeInactive
	w.gen++
	w.pendingRestart = false
	w.mu.Unlock()
	slog.Info("wakeword: deactivated")
}

// HandleTranscription inspects an incoming transcription. The return value
// reports whether text is a command to interpret: true when a trigger phrase
// was already heard, false when the supervisor is inactive or text is the
// trigger utterance itself (which is consumed, promoting the next utterance).
func (w *WakeWordSupervisor) HandleTranscription(text string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case WakeListening:
		if w.matches(text) {
			w.state = WakeAwaitingCommand
			slog.Info("wakeword: trigger phrase heard")
		}
		return false
	case WakeAwaitingCommand:
		return true
	default:
		return false
	}
}

// CommandCompleted reports that the command round-trip finished (response or
// error), returning the supervisor to trigger-phrase listening. A restart
// held back by SessionEnded during the round-trip is scheduled now.
func (w *WakeWordSupervisor) CommandCompleted(ctx context.Context) {
	w.mu.Lock()
	if w.state != WakeAwaitingCommand {
		w.mu.Unlock()
		return
	}
	w.state = WakeListening
	restart := w.pendingRestart
	w.pendingRestart = false
	gen := w.gen
	w.mu.Unlock()

	if restart {
		time.AfterFunc(w.cfg.SettleDelay(), func() {
			w.launch(ctx, gen)
		})
	}
}

// SessionEnded reports that a capture cycle finished. If hands-free mode is
// still on, the next cycle is scheduled after the settle delay. While a
// command round-trip is outstanding the restart is held back until
// CommandCompleted, so ambient speech during the wait is never captured as a
// command.
func (w *WakeWordSupervisor) SessionEnded(ctx context.Context) {
	w.mu.Lock()
	switch w.state {
	case WakeInactive:
		w.mu.Unlock()
		return
	case WakeAwaitingCommand:
		w.pendingRestart = true
		w.mu.Unlock()
		return
	}
	gen := w.gen
	w.mu.Unlock()

	time.AfterFunc(w.cfg.SettleDelay(), func() {
		w.launch(ctx, gen)
	})
}

// launch starts a capture cycle if gen is still current. A start failure is
// absorbed with a delayed retry; hands-free mode must survive transient
// conditions like a reconnecting transport.
func (w *WakeWordSupervisor) launch(ctx context.Context, gen uint64) {
	w.mu.Lock()
	stale := w.state == WakeInactive || w.gen != gen
	w.mu.Unlock()
	if stale || ctx.Err() != nil {
		return
	}

	if err := w.start(ctx); err != nil {
		slog.Warn("wakeword: capture start failed, retrying", "err", err, "retry_in", w.cfg.SettleDelay())
		time.AfterFunc(w.cfg.SettleDelay(), func() {
			w.launch(ctx, gen)
		})
	}
}

// matches reports whether text contains any trigger phrase,
// case-insensitively.
func (w *WakeWordSupervisor) matches(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range w.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
