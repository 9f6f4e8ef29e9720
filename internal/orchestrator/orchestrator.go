// Package orchestrator ties the client together: it turns user intents
// (press-to-talk, typed text, hands-free toggle) into recording sessions and
// outbound frames, and routes inbound server messages to the wake-word
// supervisor and the local command matcher.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"

	"github.com/parley-voice/parley/internal/config"
	"github.com/parley-voice/parley/internal/heuristic"
	"github.com/parley-voice/parley/internal/observe"
	"github.com/parley-voice/parley/internal/session"
	"github.com/parley-voice/parley/internal/transport"
	"github.com/parley-voice/parley/pkg/audio"
)

// Orchestrator is the client's coordination layer. It owns the recorder and
// the wake-word supervisor and consumes the transport event stream.
//
// All exported methods are safe for concurrent use; the event loop in [Run]
// is the only consumer of the transport channel.
type Orchestrator struct {
	cfg     *config.Config
	channel *transport.Channel
	matcher *heuristic.Matcher
	metrics *observe.Metrics

	recorder   *session.Recorder
	supervisor *session.WakeWordSupervisor

	// captures funnels finished recordings from the session goroutine into
	// the event loop, so sends and supervisor updates stay single-threaded.
	captures chan session.Capture

	mu       sync.Mutex
	awaiting bool
}

// New wires an orchestrator. matcher may be nil when the processing mode is
// remote interpretation; platform may be nil on hosts without capture.
func New(cfg *config.Config, channel *transport.Channel, platform audio.Platform, matcher *heuristic.Matcher, metrics *observe.Metrics) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		channel:  channel,
		matcher:  matcher,
		metrics:  metrics,
		captures: make(chan session.Capture, 4),
	}
	o.recorder = session.NewRecorder(
		cfg.VAD,
		platform,
		func() bool { return channel.State() == transport.StateOpen },
		func(c session.Capture) { o.captures <- c },
		metrics,
	)
	o.supervisor = session.NewWakeWordSupervisor(cfg.WakeWord, func(ctx context.Context) error {
		return o.recorder.Start(ctx, session.StartOptions{})
	})
	return o
}

// SessionState reports the combined session state: the recorder's lifecycle
// while a session exists, awaiting_reply between an upload and the server's
// answer, idle otherwise.
func (o *Orchestrator) SessionState() session.State {
	if st := o.recorder.State(); st != session.StateIdle {
		return st
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.awaiting {
		return session.StateAwaitingReply
	}
	return session.StateIdle
}

func (o *Orchestrator) setAwaiting(v bool) {
	o.mu.Lock()
	o.awaiting = v
	o.mu.Unlock()
}

// PressToTalk toggles a recording session: starts one when idle, stops the
// active one otherwise. Start failures are returned with user guidance
// available via [audio.Guidance].
func (o *Orchestrator) PressToTalk(ctx context.Context) error {
	if o.recorder.Active() {
		o.recorder.Stop(session.ReasonManual)
		return nil
	}
	return o.recorder.Start(ctx, session.StartOptions{})
}

// StartDictation begins a free-form dictation session (no voice detection,
// long ceiling).
func (o *Orchestrator) StartDictation(ctx context.Context) error {
	return o.recorder.Start(ctx, session.StartOptions{Dictation: true})
}

// SetHandsFree turns wake-word listening on or off.
func (o *Orchestrator) SetHandsFree(ctx context.Context, on bool) {
	if on {
		o.supervisor.Activate(ctx)
		return
	}
	o.supervisor.Deactivate()
	if o.recorder.Active() {
		o.recorder.Stop(session.ReasonManual)
	}
}

// SendText sends typed text to the assistant, bypassing capture.
func (o *Orchestrator) SendText(ctx context.Context, text string) error {
	msg := transport.NewChatMessage(text, o.cfg.Transport.ProcessingMode, o.channel.ClientID())
	if err := o.channel.Send(ctx, msg); err != nil {
		return err
	}
	if o.metrics != nil {
		o.metrics.MessagesSent.Add(ctx, 1, observe.MessageType("chat_message"))
	}
	return nil
}

// Run consumes transport events and finished captures until ctx is cancelled
// or the channel's event stream ends. On exit the active session (if any) is
// stopped and drained so its buffer is not lost mid-encode.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer func() {
		o.supervisor.Deactivate()
		o.recorder.Stop(session.ReasonShutdown)
		o.recorder.Wait()
	}()

	events := o.channel.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cap := <-o.captures:
			o.handleCapture(ctx, cap)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			o.handleEvent(ctx, ev)
		}
	}
}

// handleCapture uploads a finished recording and lets the supervisor schedule
// the next listening cycle. An empty capture, or a listening cycle in which
// no speech was ever detected, is discarded without an upload.
func (o *Orchestrator) handleCapture(ctx context.Context, cap session.Capture) {
	defer o.supervisor.SessionEnded(ctx)

	if cap.Reason == session.ReasonShutdown || len(cap.Packets) == 0 {
		return
	}
	listening := o.supervisor.State() == session.WakeListening
	if listening && !cap.SpeechDetected {
		slog.Debug("orchestrator: silent listening cycle discarded", "session_id", cap.SessionID)
		return
	}

	mode := o.cfg.Transport.ProcessingMode
	transcriptionOnly := mode == config.ModeHeuristic || listening

	payload := base64.StdEncoding.EncodeToString(bytes.Join(cap.Packets, nil))
	msg := transport.NewAudioData(payload, mode, transcriptionOnly)
	if err := o.channel.Send(ctx, msg); err != nil {
		// The channel may have dropped mid-session. The buffer is not
		// replayable audio worth queueing; tell the user and move on.
		slog.Error("orchestrator: upload failed, recording lost",
			"session_id", cap.SessionID,
			"duration", cap.Duration,
			"err", err,
		)
		return
	}
	o.setAwaiting(true)
	if o.metrics != nil {
		o.metrics.MessagesSent.Add(ctx, 1, observe.MessageType("audio_data"))
	}
	slog.Info("orchestrator: recording uploaded",
		"session_id", cap.SessionID,
		"duration", cap.Duration,
		"transcription_only", transcriptionOnly,
	)
}

// handleEvent routes one transport event.
func (o *Orchestrator) handleEvent(ctx context.Context, ev transport.Event) {
	if ev.Kind == transport.EventStateChange {
		if ev.State == transport.StateClosed && o.metrics != nil {
			o.metrics.Reconnects.Add(ctx, 1)
		}
		return
	}

	switch msg := ev.Message.(type) {
	case transport.Connection:
		slog.Info("orchestrator: server greeting", "message", msg.Message)
	case transport.Transcription:
		o.handleTranscription(ctx, msg)
	case transport.ChatResponse:
		o.handleChatResponse(ctx, msg)
	case transport.ServerError:
		slog.Error("orchestrator: server error", "message", msg.Message)
		o.setAwaiting(false)
		o.supervisor.CommandCompleted(ctx)
	}
}

// handleTranscription routes returned text: wake-cycle transcriptions feed
// the supervisor, command transcriptions feed the local matcher in heuristic
// mode.
func (o *Orchestrator) handleTranscription(ctx context.Context, t transport.Transcription) {
	slog.Debug("orchestrator: transcription", "text", t.Text, "confidence", t.Confidence)
	o.setAwaiting(false)

	if o.supervisor.Active() && !o.supervisor.HandleTranscription(t.Text) {
		// Trigger utterance or idle chatter; consumed, not a command.
		return
	}

	if o.matcher == nil {
		// Remote interpretation replies with a chat response; a bare
		// transcription here has nothing to drive.
		return
	}

	ctx, span := observe.StartSpan(ctx, "heuristic.match")
	defer span.End()

	res, err := o.matcher.Match(ctx, t.Text)
	switch {
	case err == nil:
		o.recordMatch(ctx, "matched")
		slog.Info("orchestrator: command matched",
			"input", t.Text,
			"command", res.Pair.UserCommand,
			"action", res.Pair.Action.Name,
			"similarity", res.Similarity,
			"result", res.ExecutionResult,
		)
	case errors.Is(err, heuristic.ErrNoSimilarCommand):
		o.recordMatch(ctx, "no_match")
		var nm *heuristic.NoMatchError
		if errors.As(err, &nm) {
			slog.Info("orchestrator: no similar command", "input", t.Text, "best_similarity", nm.BestSimilarity)
		}
	default:
		o.recordMatch(ctx, "error")
		slog.Error("orchestrator: match failed", "input", t.Text, "err", err)
	}
	o.supervisor.CommandCompleted(ctx)
}

// handleChatResponse logs the interpreted action and completes the wake-word
// round-trip.
func (o *Orchestrator) handleChatResponse(ctx context.Context, msg transport.ChatResponse) {
	body := msg.Response
	attrs := []any{
		"success", body.Success,
		"action", body.Response.Action,
		"message", body.Response.Message,
	}
	if body.Response.Coordinates != nil {
		attrs = append(attrs, "x", body.Response.Coordinates.X, "y", body.Response.Coordinates.Y)
	}
	slog.Info("orchestrator: assistant response", attrs...)
	o.setAwaiting(false)
	o.supervisor.CommandCompleted(ctx)
}

func (o *Orchestrator) recordMatch(ctx context.Context, status string) {
	if o.metrics != nil {
		o.metrics.HeuristicMatches.Add(ctx, 1, observe.Status(status))
	}
}
