package session

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/parley-voice/parley/internal/config"
	"github.com/parley-voice/parley/pkg/audio"
	"github.com/parley-voice/parley/pkg/audio/mock"
)

// newTestRecorder wires a recorder over a mock device with a buffered capture
// channel as the sink.
func newTestRecorder(cfg config.VADConfig, platform audio.Platform) (*Recorder, chan Capture) {
	captures := make(chan Capture, 1)
	r := NewRecorder(cfg, platform, func() bool { return true }, func(c Capture) {
		captures <- c
	}, nil)
	return r, captures
}

func awaitCapture(t *testing.T, captures chan Capture, timeout time.Duration) Capture {
	t.Helper()
	select {
	case c := <-captures:
		return c
	case <-time.After(timeout):
		t.Fatal("timed out waiting for the capture")
		return Capture{}
	}
}

// pcmFrame builds a mono 16 kHz frame of n samples at the given amplitude.
func pcmFrame(n int, amplitude float64) audio.Frame {
	pcm := make([]int16, n)
	for i := range pcm {
		v := amplitude * math.Sin(2*math.Pi*8*float64(i)/float64(n))
		pcm[i] = int16(v * 32767)
	}
	return audio.Frame{Data: audio.Int16sToBytes(pcm), SampleRate: 16000, Channels: 1}
}

func TestStart_NoPlatform(t *testing.T) {
	r, _ := newTestRecorder(config.Default().VAD, nil)
	if err := r.Start(context.Background(), StartOptions{}); !errors.Is(err, audio.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestStart_RequiresConnectedChannel(t *testing.T) {
	r := NewRecorder(config.Default().VAD, &mock.Platform{}, func() bool { return false }, func(Capture) {}, nil)
	if err := r.Start(context.Background(), StartOptions{}); !errors.Is(err, ErrChannelNotConnected) {
		t.Fatalf("expected ErrChannelNotConnected, got %v", err)
	}
}

func TestStart_AcquireErrorPropagates(t *testing.T) {
	platform := &mock.Platform{AcquireError: audio.ErrPermissionDenied}
	r, _ := newTestRecorder(config.Default().VAD, platform)

	if err := r.Start(context.Background(), StartOptions{}); !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if r.Active() {
		t.Error("expected recorder to stay idle after a failed start")
	}
}

func TestStart_RejectsOverlappingSessions(t *testing.T) {
	dev := mock.NewDevice(16000, 1)
	r, captures := newTestRecorder(config.Default().VAD, &mock.Platform{AcquireResult: dev})

	if err := r.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(context.Background(), StartOptions{}); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("expected ErrAlreadyRecording, got %v", err)
	}

	r.Stop(ReasonManual)
	awaitCapture(t, captures, 2*time.Second)
}

func TestManualStop_DeliversBufferOnce(t *testing.T) {
	dev := mock.NewDevice(16000, 1)
	r, captures := newTestRecorder(config.Default().VAD, &mock.Platform{AcquireResult: dev})

	if err := r.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Three full 20ms opus frames' worth of audio.
	for i := 0; i < 3; i++ {
		dev.Push(pcmFrame(320, 0.5))
	}
	r.Stop(ReasonManual)

	c := awaitCapture(t, captures, 2*time.Second)
	if c.Reason != ReasonManual {
		t.Errorf("expected reason manual, got %q", c.Reason)
	}
	if len(c.Packets) != 3 {
		t.Errorf("expected 3 opus packets, got %d", len(c.Packets))
	}
	if c.SessionID == "" {
		t.Error("expected a session id")
	}
	if !dev.Closed() {
		t.Error("expected the device to be released")
	}
	if r.Active() {
		t.Error("expected recorder to be idle after stop")
	}

	// Stop is idempotent: no second delivery, no panic.
	r.Stop(ReasonManual)
	select {
	case <-captures:
		t.Fatal("capture delivered twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPartialFrameIsFlushed(t *testing.T) {
	dev := mock.NewDevice(16000, 1)
	r, captures := newTestRecorder(config.Default().VAD, &mock.Platform{AcquireResult: dev})

	if err := r.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// 100 samples: less than one 320-sample chunk, delivered via Flush.
	dev.Push(pcmFrame(100, 0.5))
	r.Stop(ReasonManual)

	c := awaitCapture(t, captures, 2*time.Second)
	if len(c.Packets) != 1 {
		t.Errorf("expected 1 zero-padded packet from flush, got %d", len(c.Packets))
	}
}

func TestCeiling_StopsDictation(t *testing.T) {
	cfg := config.Default().VAD
	dev := mock.NewDevice(16000, 1)
	r, captures := newTestRecorder(cfg, &mock.Platform{AcquireResult: dev})
	r.ceilingDictation = 30 * time.Millisecond
	r.ceilingDefault = time.Minute

	if err := r.Start(context.Background(), StartOptions{Dictation: true}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c := awaitCapture(t, captures, 2*time.Second)
	if c.Reason != ReasonCeiling {
		t.Errorf("expected reason ceiling, got %q", c.Reason)
	}
	if !c.Dictation {
		t.Error("expected dictation flag on the capture")
	}
	if c.SpeechDetected {
		t.Error("expected no speech detection without VAD")
	}
}

func TestCeiling_StopsWhenVADDisabled(t *testing.T) {
	cfg := config.Default().VAD
	cfg.Enabled = false
	dev := mock.NewDevice(16000, 1)
	r, captures := newTestRecorder(cfg, &mock.Platform{AcquireResult: dev})
	// Detection off in config is still command capture: the short default
	// ceiling governs, not the dictation one.
	r.ceilingDefault = 30 * time.Millisecond
	r.ceilingDictation = time.Minute

	if err := r.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c := awaitCapture(t, captures, 2*time.Second); c.Reason != ReasonCeiling {
		t.Errorf("expected reason ceiling, got %q", c.Reason)
	}
}

func TestVAD_StopsAfterSpeechThenSilence(t *testing.T) {
	cfg := config.Default().VAD
	cfg.SilenceTimeoutMs = 30
	cfg.SpeechStartDelayMs = 10
	cfg.ConsecutiveSilenceThreshold = 2
	cfg.CheckIntervalMs = 10
	cfg.DynamicTimeout.Enabled = false

	dev := mock.NewDevice(16000, 1)
	r, captures := newTestRecorder(cfg, &mock.Platform{AcquireResult: dev})
	r.ceilingDefault = 5 * time.Second

	if err := r.Start(context.Background(), StartOptions{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Speak for ~60ms, then feed silence until the detector fires. Silent
	// frames keep coming so the analysis window actually empties, the way a
	// live device behaves.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 12; i++ {
			dev.Push(pcmFrame(512, 0.5))
			time.Sleep(5 * time.Millisecond)
		}
		for !dev.Closed() {
			dev.Push(audio.Frame{Data: make([]byte, 1024), SampleRate: 16000, Channels: 1})
			time.Sleep(5 * time.Millisecond)
		}
	}()

	c := awaitCapture(t, captures, 5*time.Second)
	<-done

	if c.Reason != ReasonVAD {
		t.Errorf("expected reason vad, got %q", c.Reason)
	}
	if !c.SpeechDetected {
		t.Error("expected speech to have been detected")
	}
	if len(c.Packets) == 0 {
		t.Error("expected encoded packets")
	}
}
