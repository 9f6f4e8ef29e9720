package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parley-voice/parley/internal/config"
)

func wakeConfig() config.WakeWordConfig {
	return config.WakeWordConfig{
		Phrases:       []string{"Hey Parley", "okay parley"},
		SettleDelayMs: 10,
	}
}

func TestActivate_StartsOneListeningCycle(t *testing.T) {
	var starts atomic.Int32
	w := NewWakeWordSupervisor(wakeConfig(), func(context.Context) error {
		starts.Add(1)
		return nil
	})

	w.Activate(context.Background())
	w.Activate(context.Background()) // no-op

	if got := starts.Load(); got != 1 {
		t.Fatalf("expected 1 capture start, got %d", got)
	}
	if got := w.State(); got != WakeListening {
		t.Errorf("expected listening state, got %v", got)
	}
}

func TestHandleTranscription_TriggerPromotesNextUtterance(t *testing.T) {
	w := NewWakeWordSupervisor(wakeConfig(), func(context.Context) error { return nil })
	w.Activate(context.Background())

	if w.HandleTranscription("well HEY PARLEY please") {
		t.Error("trigger utterance must not be treated as a command")
	}
	if got := w.State(); got != WakeAwaitingCommand {
		t.Fatalf("expected awaiting_command after trigger, got %v", got)
	}

	if !w.HandleTranscription("open settings") {
		t.Error("expected the utterance after the trigger to be a command")
	}

	w.CommandCompleted(context.Background())
	if got := w.State(); got != WakeListening {
		t.Errorf("expected listening after the round-trip, got %v", got)
	}
}

func TestHandleTranscription_NonTriggerChatterIgnored(t *testing.T) {
	w := NewWakeWordSupervisor(wakeConfig(), func(context.Context) error { return nil })
	w.Activate(context.Background())

	if w.HandleTranscription("what a lovely day") {
		t.Error("idle chatter must not become a command")
	}
	if got := w.State(); got != WakeListening {
		t.Errorf("expected state unchanged, got %v", got)
	}
}

func TestHandleTranscription_InactiveIgnoresEverything(t *testing.T) {
	w := NewWakeWordSupervisor(wakeConfig(), func(context.Context) error { return nil })
	if w.HandleTranscription("hey parley open settings") {
		t.Error("inactive supervisor must not produce commands")
	}
	if got := w.State(); got != WakeInactive {
		t.Errorf("expected inactive, got %v", got)
	}
}

func TestSessionEnded_RestartsAfterSettleDelay(t *testing.T) {
	var starts atomic.Int32
	w := NewWakeWordSupervisor(wakeConfig(), func(context.Context) error {
		starts.Add(1)
		return nil
	})
	w.Activate(context.Background())
	w.SessionEnded(context.Background())

	deadline := time.After(time.Second)
	for starts.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected a restart after the settle delay, got %d starts", starts.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSessionEnded_RestartWaitsForCommandRoundTrip(t *testing.T) {
	var starts atomic.Int32
	w := NewWakeWordSupervisor(wakeConfig(), func(context.Context) error {
		starts.Add(1)
		return nil
	})
	w.Activate(context.Background())
	w.HandleTranscription("hey parley")
	// The command capture ends while the server's reply is still outstanding.
	// No new cycle may start until then, or ambient speech during the wait
	// would be uploaded as the next command.
	w.SessionEnded(context.Background())

	time.Sleep(100 * time.Millisecond)
	if got := starts.Load(); got != 1 {
		t.Fatalf("expected no restart while the reply is outstanding, got %d starts", got)
	}

	w.CommandCompleted(context.Background())
	deadline := time.After(time.Second)
	for starts.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected a restart after the round-trip, got %d starts", starts.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if got := w.State(); got != WakeListening {
		t.Errorf("expected listening after the round-trip, got %v", got)
	}
}

func TestDeactivate_ClearsHeldRestart(t *testing.T) {
	var starts atomic.Int32
	w := NewWakeWordSupervisor(wakeConfig(), func(context.Context) error {
		starts.Add(1)
		return nil
	})
	w.Activate(context.Background())
	w.HandleTranscription("hey parley")
	w.SessionEnded(context.Background())
	w.Deactivate()
	w.CommandCompleted(context.Background())

	time.Sleep(100 * time.Millisecond)
	if got := starts.Load(); got != 1 {
		t.Fatalf("expected the held restart to be discarded, got %d starts", got)
	}
}

func TestDeactivate_WinsOverPendingRestart(t *testing.T) {
	var starts atomic.Int32
	w := NewWakeWordSupervisor(wakeConfig(), func(context.Context) error {
		starts.Add(1)
		return nil
	})
	w.Activate(context.Background())
	w.SessionEnded(context.Background())
	w.Deactivate()

	time.Sleep(100 * time.Millisecond)
	if got := starts.Load(); got != 1 {
		t.Fatalf("expected the pending restart to be invalidated, got %d starts", got)
	}
	if got := w.State(); got != WakeInactive {
		t.Errorf("expected inactive, got %v", got)
	}
}

func TestLaunch_RetriesAfterStartFailure(t *testing.T) {
	var starts atomic.Int32
	w := NewWakeWordSupervisor(wakeConfig(), func(context.Context) error {
		if starts.Add(1) == 1 {
			return errors.New("channel reconnecting")
		}
		return nil
	})
	w.Activate(context.Background())

	deadline := time.After(time.Second)
	for starts.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected a retry after a failed start, got %d attempts", starts.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestNewWakeWordSupervisor_DropsBlankPhrases(t *testing.T) {
	cfg := config.WakeWordConfig{Phrases: []string{"  ", "", "Okay Parley"}}
	w := NewWakeWordSupervisor(cfg, func(context.Context) error { return nil })
	w.Activate(context.Background())

	if w.HandleTranscription("okay parley") {
		t.Error("trigger utterance must not be a command")
	}
	if got := w.State(); got != WakeAwaitingCommand {
		t.Errorf("expected the non-blank phrase to match, got %v", got)
	}
	// A blank phrase would otherwise match every utterance by containment.
	w2 := NewWakeWordSupervisor(config.WakeWordConfig{Phrases: []string{""}}, func(context.Context) error { return nil })
	w2.Activate(context.Background())
	w2.HandleTranscription("anything at all")
	if got := w2.State(); got != WakeListening {
		t.Errorf("expected blank phrases to never trigger, got %v", got)
	}
}
