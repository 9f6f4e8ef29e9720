// Package session implements the recording session lifecycle: device
// acquisition, the capture frame loop, voice-activity supervision, the hard
// ceiling timer, and the single idempotent stop path that hands the encoded
// buffer to its consumer exactly once.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-voice/parley/internal/config"
	"github.com/parley-voice/parley/internal/observe"
	"github.com/parley-voice/parley/internal/vad"
	"github.com/parley-voice/parley/pkg/audio"
)

// Hard recording ceilings. These bound a session even when voice-activity
// detection misbehaves or is switched off.
const (
	// ceilingDefault applies to every session except dictation, including
	// sessions where voice detection is disabled in config or degraded.
	ceilingDefault = 30 * time.Second

	// ceilingDictation applies to dictation sessions only, where longer
	// uninterrupted speech is expected.
	ceilingDictation = 60 * time.Second
)

var (
	// ErrAlreadyRecording is returned by [Recorder.Start] while a session is
	// active. Capture is strictly single-session.
	ErrAlreadyRecording = errors.New("session: a recording is already active")

	// ErrChannelNotConnected is returned by [Recorder.Start] when the message
	// channel is not open. Recording without a connected peer would capture
	// audio with nowhere to send it.
	ErrChannelNotConnected = errors.New("session: message channel is not connected")
)

// State is the recorder's lifecycle state.
type State int

const (
	// StateIdle means no session exists.
	StateIdle State = iota

	// StateAcquiringDevice means device acquisition is in progress.
	StateAcquiringDevice

	// StateRecording means frames are being captured and encoded.
	StateRecording

	// StateFinalizing means a stop was requested and the buffer is draining.
	StateFinalizing

	// StateAwaitingReply means a capture was uploaded and the server's reply
	// is outstanding. The recorder itself is idle in this state; the
	// orchestrator reports it.
	StateAwaitingReply
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringDevice:
		return "acquiring_device"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	case StateAwaitingReply:
		return "awaiting_reply"
	default:
		return "unknown"
	}
}

// StopReason identifies what ended a recording session.
type StopReason string

const (
	// ReasonVAD means the silence detector confirmed the speaker was done.
	ReasonVAD StopReason = "vad"

	// ReasonCeiling means the hard duration ceiling fired.
	ReasonCeiling StopReason = "ceiling"

	// ReasonManual means the user ended the session (press-to-talk release).
	ReasonManual StopReason = "manual"

	// ReasonShutdown means the client is exiting.
	ReasonShutdown StopReason = "shutdown"
)

// Capture is the product of a completed recording session, delivered to the
// sink exactly once.
type Capture struct {
	// SessionID identifies the session in logs and metrics.
	SessionID string

	// Packets is the encoded Opus stream in capture order.
	Packets [][]byte

	// Duration is the wall time from device acquisition to stop.
	Duration time.Duration

	// Reason is what ended the session.
	Reason StopReason

	// Dictation marks a free-form dictation session (VAD off, long ceiling).
	Dictation bool

	// SpeechDetected reports whether the voice detector saw any speech. Always
	// false when VAD did not run.
	SpeechDetected bool
}

// Sink receives the capture when a session ends. It is invoked from the
// session's own goroutine, exactly once per session.
type Sink func(Capture)

// StartOptions modify a single session.
type StartOptions struct {
	// Dictation disables voice-activity detection and raises the ceiling to
	// the dictation limit. The session ends only by ceiling or manual stop.
	Dictation bool
}

// Recorder owns the single-session recording lifecycle. Start rejects
// overlapping sessions; Stop is safe to call at any time from any goroutine.
//
// All methods are safe for concurrent use.
type Recorder struct {
	cfg       config.VADConfig
	platform  audio.Platform
	connected func() bool
	sink      Sink
	metrics   *observe.Metrics

	// Ceiling overrides, settable by tests.
	ceilingDefault   time.Duration
	ceilingDictation time.Duration

	mu      sync.Mutex
	state   State
	current *activeSession
}

// NewRecorder creates a recorder. platform may be nil on hosts without
// capture support, in which case Start returns [audio.ErrUnsupported].
// connected gates Start on transport state. metrics may be nil.
func NewRecorder(cfg config.VADConfig, platform audio.Platform, connected func() bool, sink Sink, metrics *observe.Metrics) *Recorder {
	return &Recorder{
		cfg:              cfg,
		platform:         platform,
		connected:        connected,
		sink:             sink,
		metrics:          metrics,
		ceilingDefault:   ceilingDefault,
		ceilingDictation: ceilingDictation,
	}
}

// activeSession is the state of one in-flight recording. The frame loop
// goroutine owns enc and packets exclusively; the stop path only closes the
// device and lets the loop drain.
type activeSession struct {
	id        string
	dev       audio.Device
	enc       *audio.OpusEncoder
	analyzer  *vad.Analyzer
	ctrl      *vad.Controller
	ceiling   *time.Timer
	start     time.Time
	dictation bool

	stopOnce sync.Once
	reason   StopReason
	done     chan struct{}
}

// Active reports whether a session is currently recording.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != StateIdle
}

// State returns the recorder's lifecycle state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins a recording session. It fails fast with [ErrAlreadyRecording]
// while a session is active, [ErrChannelNotConnected] when the transport is
// down, and a capture classification error (see package audio) when the
// device cannot be acquired. Acquisition is never retried here; the error
// reaches the user with guidance attached.
func (r *Recorder) Start(ctx context.Context, opts StartOptions) error {
	r.mu.Lock()
	if r.state != StateIdle {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	if r.connected != nil && !r.connected() {
		r.mu.Unlock()
		return ErrChannelNotConnected
	}
	if r.platform == nil {
		r.mu.Unlock()
		return audio.ErrUnsupported
	}
	r.state = StateAcquiringDevice
	r.mu.Unlock()

	fail := func(err error) error {
		r.mu.Lock()
		r.state = StateIdle
		r.mu.Unlock()
		return err
	}

	dev, err := audio.AcquireWithFallback(ctx, r.platform)
	if err != nil {
		return fail(err)
	}
	enc, err := audio.NewOpusEncoder()
	if err != nil {
		dev.Close()
		return fail(err)
	}

	s := &activeSession{
		id:        uuid.NewString(),
		dev:       dev,
		enc:       enc,
		analyzer:  vad.NewAnalyzer(),
		start:     time.Now(),
		dictation: opts.Dictation,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.current = s
	r.state = StateRecording
	r.mu.Unlock()

	// Dictation alone earns the long ceiling. A session with detection
	// disabled in config is still command capture and keeps the short bound.
	useVAD := r.cfg.Enabled && !opts.Dictation
	ceiling := r.ceilingDefault
	if opts.Dictation {
		ceiling = r.ceilingDictation
	}
	s.ceiling = time.AfterFunc(ceiling, func() {
		r.requestStop(s, ReasonCeiling)
	})

	if useVAD {
		s.ctrl = vad.NewController(r.cfg, s.analyzer.Level, func() {
			r.requestStop(s, ReasonVAD)
		})
		s.ctrl.Start(ctx)
	} else {
		slog.Info("session: voice detection off, ceiling governs", "ceiling", ceiling)
	}

	if r.metrics != nil {
		r.metrics.ActiveSessions.Add(ctx, 1)
	}
	rate, channels := dev.Format()
	slog.Info("session: recording started",
		"session_id", s.id,
		"sample_rate", rate,
		"channels", channels,
		"dictation", opts.Dictation,
		"vad", useVAD,
	)

	go r.run(s)
	return nil
}

// Stop ends the active session with the given reason. No-op when idle.
// Returns once the stop has been requested; delivery to the sink happens
// asynchronously on the session goroutine.
func (r *Recorder) Stop(reason StopReason) {
	r.mu.Lock()
	s := r.current
	r.mu.Unlock()
	if s == nil {
		return
	}
	r.requestStop(s, reason)
}

// Wait blocks until the active session (if any) has fully delivered its
// capture. Used on shutdown so the final buffer is not lost.
func (r *Recorder) Wait() {
	r.mu.Lock()
	s := r.current
	r.mu.Unlock()
	if s != nil {
		<-s.done
	}
}

// requestStop is the single entry point for ending a session. The first
// caller wins; the ceiling timer, the VAD controller, manual stop and
// shutdown all funnel through here and every later call is a no-op.
//
// It only records the reason and closes the device. Closing the device ends
// the frame stream, which lets the run loop drain, flush the encoder and
// deliver the capture without racing any of these callers.
func (r *Recorder) requestStop(s *activeSession, reason StopReason) {
	s.stopOnce.Do(func() {
		s.reason = reason
		r.mu.Lock()
		if r.current == s {
			r.state = StateFinalizing
		}
		r.mu.Unlock()
		s.ceiling.Stop()
		if s.ctrl != nil {
			s.ctrl.Stop()
		}
		slog.Info("session: stop requested", "session_id", s.id, "reason", reason)
		if err := s.dev.Close(); err != nil {
			slog.Warn("session: device close failed", "session_id", s.id, "err", err)
		}
	})
}

// run is the capture frame loop. It consumes the device stream until it
// closes, then flushes, delivers the capture and clears the active slot.
func (r *Recorder) run(s *activeSession) {
	rate, channels := s.dev.Format()

	var packets [][]byte
	for frame := range s.dev.Frames() {
		if frame.SampleRate == 0 {
			frame.SampleRate, frame.Channels = rate, channels
		}
		norm := audio.Normalize(frame)
		if len(norm.Data) == 0 {
			continue
		}
		s.analyzer.Observe(norm)

		pkts, err := s.enc.Encode(norm.Data)
		if err != nil {
			slog.Error("session: encode failed, dropping frame", "session_id", s.id, "err", err)
			continue
		}
		packets = append(packets, pkts...)
	}

	// The stream can also end because the device disconnected without a stop
	// request. Treat that as a manual-equivalent stop so the reason is set
	// and the controller and timer are torn down.
	r.requestStop(s, ReasonManual)

	if tail, err := s.enc.Flush(); err != nil {
		slog.Warn("session: flush failed", "session_id", s.id, "err", err)
	} else if tail != nil {
		packets = append(packets, tail)
	}

	duration := time.Since(s.start)
	speech := s.ctrl != nil && s.ctrl.SpeechDetected()

	r.mu.Lock()
	if r.current == s {
		r.current = nil
		r.state = StateIdle
	}
	r.mu.Unlock()

	if r.metrics != nil {
		ctx := context.Background()
		r.metrics.ActiveSessions.Add(ctx, -1)
		r.metrics.SessionDuration.Record(ctx, duration.Seconds())
		r.metrics.SessionStops.Add(ctx, 1, observe.Reason(string(s.reason)))
	}
	slog.Info("session: recording finished",
		"session_id", s.id,
		"reason", s.reason,
		"duration", duration,
		"packets", len(packets),
	)

	r.sink(Capture{
		SessionID:      s.id,
		Packets:        packets,
		Duration:       duration,
		Reason:         s.reason,
		Dictation:      s.dictation,
		SpeechDetected: speech,
	})
	close(s.done)
}
