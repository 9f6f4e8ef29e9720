package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/parley-voice/parley/internal/config"
	"github.com/parley-voice/parley/internal/session"
	"github.com/parley-voice/parley/internal/transport"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Transport.ServerURL = "wss://assistant.example.com/ws"
	return cfg
}

// An orchestrator over a channel that was never started: the channel reports
// connecting, never open.
func newIdleOrchestrator() *Orchestrator {
	cfg := testConfig()
	ch := transport.NewChannel(transport.Config{URL: cfg.Transport.ServerURL, ClientID: "test"})
	return New(cfg, ch, nil, nil, nil)
}

func TestPressToTalk_RequiresConnectedChannel(t *testing.T) {
	o := newIdleOrchestrator()
	err := o.PressToTalk(context.Background())
	if !errors.Is(err, session.ErrChannelNotConnected) {
		t.Fatalf("expected ErrChannelNotConnected, got %v", err)
	}
}

func TestSendText_RequiresConnectedChannel(t *testing.T) {
	o := newIdleOrchestrator()
	err := o.SendText(context.Background(), "hello")
	if !errors.Is(err, transport.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSetHandsFree_Toggles(t *testing.T) {
	o := newIdleOrchestrator()

	o.SetHandsFree(context.Background(), true)
	if !o.supervisor.Active() {
		t.Fatal("expected supervisor active after enabling hands-free")
	}

	o.SetHandsFree(context.Background(), false)
	if o.supervisor.Active() {
		t.Fatal("expected supervisor inactive after disabling hands-free")
	}
}

func TestHandleTranscription_WakeCycleConsumesTrigger(t *testing.T) {
	o := newIdleOrchestrator()
	o.SetHandsFree(context.Background(), true)

	o.handleTranscription(context.Background(), transport.Transcription{Text: "hey parley", Confidence: 0.9})
	if got := o.supervisor.State(); got != session.WakeAwaitingCommand {
		t.Fatalf("expected awaiting_command after trigger transcription, got %v", got)
	}
}

func TestHandleChatResponse_CompletesWakeRoundTrip(t *testing.T) {
	o := newIdleOrchestrator()
	o.SetHandsFree(context.Background(), true)
	o.handleTranscription(context.Background(), transport.Transcription{Text: "okay parley"})

	o.handleChatResponse(context.Background(), transport.ChatResponse{
		Response: transport.ChatResponseBody{
			Success:  true,
			Response: transport.ActionResponse{Action: "open_app", Message: "opening"},
		},
	})
	if got := o.supervisor.State(); got != session.WakeListening {
		t.Fatalf("expected listening after the response, got %v", got)
	}
}

func TestHandleEvent_ServerErrorCompletesRoundTrip(t *testing.T) {
	o := newIdleOrchestrator()
	o.SetHandsFree(context.Background(), true)
	o.handleTranscription(context.Background(), transport.Transcription{Text: "hey parley"})

	o.handleEvent(context.Background(), transport.Event{
		Kind:    transport.EventMessage,
		Message: transport.ServerError{Message: "transcription failed"},
	})
	if got := o.supervisor.State(); got != session.WakeListening {
		t.Fatalf("expected listening after a server error, got %v", got)
	}
}

func TestHandleCapture_DropsEmptyAndShutdownCaptures(t *testing.T) {
	o := newIdleOrchestrator()

	// Neither of these may attempt a send on the unconnected channel in a way
	// that breaks the loop; they are discarded before the send.
	o.handleCapture(context.Background(), session.Capture{SessionID: "a", Reason: session.ReasonShutdown})
	o.handleCapture(context.Background(), session.Capture{SessionID: "b", Reason: session.ReasonManual})
}
