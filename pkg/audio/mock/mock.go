// Package mock provides in-memory mock implementations of the
// [audio.Platform] and [audio.Device] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and expose exported
// fields the test sets to control return values.
//
// Typical usage:
//
//	dev := mock.NewDevice(16000, 1)
//	platform := &mock.Platform{AcquireResult: dev}
//	got, err := platform.Acquire(ctx, audio.PreferredConstraints())
//	dev.Push(audio.Frame{Data: pcm, SampleRate: 16000, Channels: 1})
package mock

import (
	"context"
	"sync"

	"github.com/parley-voice/parley/pkg/audio"
)

// ─── Platform ─────────────────────────────────────────────────────────────────

// AcquireCall records the arguments of a single [Platform.Acquire] invocation.
type AcquireCall struct {
	// Constraints is the constraint set passed to Acquire.
	Constraints audio.Constraints
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// AcquireResult is the [audio.Device] returned by Acquire.
	AcquireResult audio.Device

	// AcquireError is the error returned by Acquire. When AcquireErrors is
	// non-empty it takes precedence, one entry per call, then falls back to
	// AcquireError.
	AcquireError error

	// AcquireErrors holds per-call errors consumed in order. A nil entry
	// means that call succeeds with AcquireResult. Useful for exercising the
	// constraint fallback chain.
	AcquireErrors []error

	// AcquireCalls records all Acquire invocations.
	AcquireCalls []AcquireCall
}

// Acquire implements [audio.Platform].
func (p *Platform) Acquire(_ context.Context, c audio.Constraints) (audio.Device, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := len(p.AcquireCalls)
	p.AcquireCalls = append(p.AcquireCalls, AcquireCall{Constraints: c})

	if call < len(p.AcquireErrors) {
		if err := p.AcquireErrors[call]; err != nil {
			return nil, err
		}
		return p.AcquireResult, nil
	}
	if p.AcquireError != nil {
		return nil, p.AcquireError
	}
	return p.AcquireResult, nil
}

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device]. Tests feed frames with
// [Device.Push] and observe teardown via CallCountClose.
type Device struct {
	mu sync.Mutex

	sampleRate int
	channels   int
	frames     chan audio.Frame
	closed     bool

	// CallCountClose records how many times Close was called.
	CallCountClose int

	// CloseError is returned by the first Close call.
	CloseError error
}

// NewDevice creates a mock device reporting the given format.
func NewDevice(sampleRate, channels int) *Device {
	return &Device{
		sampleRate: sampleRate,
		channels:   channels,
		frames:     make(chan audio.Frame, 64),
	}
}

// Frames implements [audio.Device].
func (d *Device) Frames() <-chan audio.Frame { return d.frames }

// Format implements [audio.Device].
func (d *Device) Format() (int, int) { return d.sampleRate, d.channels }

// Close implements [audio.Device]. The frame channel is closed on first call.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountClose++
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.frames)
	return d.CloseError
}

// Push delivers a frame to the device's stream. Push after Close is a no-op.
func (d *Device) Push(f audio.Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.frames <- f:
	default:
	}
}

// Closed reports whether the device has been closed.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
