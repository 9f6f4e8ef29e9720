// Package audio defines the capture-device abstraction and PCM types used by
// the recording pipeline.
//
// The two primary abstractions are:
//
//   - [Platform] — opens a capture device with a given set of [Constraints].
//   - [Device] — an acquired device delivering a live stream of [Frame] values
//     until closed.
//
// Implementations are provided by platform-specific adapter packages (e.g.,
// audio/portaudio). The interfaces are intentionally narrow so the session
// layer stays decoupled from the capture backend.
package audio

import (
	"context"
	"errors"
	"fmt"
)

// Capture error classification. These are a pass-through contract for
// user-facing guidance: acquisition is never retried automatically.
var (
	// ErrPermissionDenied indicates the user or OS refused microphone access.
	ErrPermissionDenied = errors.New("audio: capture permission denied")

	// ErrNoDevice indicates no capture device is present.
	ErrNoDevice = errors.New("audio: no capture device found")

	// ErrUnsupported indicates the host has no usable capture API.
	ErrUnsupported = errors.New("audio: capture is not supported on this host")

	// ErrInsecureContext indicates the environment forbids capture (e.g., the
	// client is embedded somewhere that blocks device access).
	ErrInsecureContext = errors.New("audio: capture blocked in this context")
)

// Guidance returns remediation text for a classified capture error, or a
// generic message for anything unrecognised.
func Guidance(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Microphone access was denied. Grant the client permission to use the microphone and try again."
	case errors.Is(err, ErrNoDevice):
		return "No microphone was found. Connect a capture device and try again."
	case errors.Is(err, ErrUnsupported):
		return "Audio capture is not supported on this system."
	case errors.Is(err, ErrInsecureContext):
		return "Audio capture is blocked in this context. Run the client from a trusted environment."
	default:
		return "Could not access the microphone: " + err.Error()
	}
}

// Constraints describes the capture parameters requested from a [Platform].
type Constraints struct {
	// SampleRate in Hz. Zero lets the platform pick its default.
	SampleRate int

	// Channels is the requested channel count. Zero lets the platform pick.
	Channels int

	// EchoCancellation requests acoustic echo cancellation where available.
	EchoCancellation bool

	// NoiseSuppression requests noise suppression where available.
	NoiseSuppression bool
}

// PreferredConstraints is the first acquisition attempt: 16 kHz mono with
// echo and noise processing, matching what the remote transcriber expects.
func PreferredConstraints() Constraints {
	return Constraints{
		SampleRate:       16000,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: true,
	}
}

// MinimalConstraints is the second attempt: same format, no processing.
func MinimalConstraints() Constraints {
	return Constraints{SampleRate: 16000, Channels: 1}
}

// Device is an acquired capture device.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// Frames returns the live capture stream. The channel is closed when the
	// device is closed or disconnects.
	Frames() <-chan Frame

	// Format reports the actual sample rate and channel count the device is
	// delivering, which may differ from the requested constraints.
	Format() (sampleRate, channels int)

	// Close releases the device. Idempotent; subsequent calls return nil.
	Close() error
}

// Platform opens capture devices.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// Acquire opens a capture device honouring the given constraints. The ctx
	// governs the acquisition attempt only. Errors should wrap one of the
	// classification errors above where the cause is known.
	Acquire(ctx context.Context, c Constraints) (Device, error)
}

// AcquireWithFallback attempts acquisition with the preferred constraint set,
// falling back to a minimal set and finally to the platform's bare default if
// the stricter sets are rejected. Classified errors (permission, no device,
// unsupported, insecure context) abort immediately: they will not improve
// with looser constraints and must reach the user unchanged.
func AcquireWithFallback(ctx context.Context, p Platform) (Device, error) {
	attempts := []Constraints{PreferredConstraints(), MinimalConstraints(), {}}

	var lastErr error
	for _, c := range attempts {
		dev, err := p.Acquire(ctx, c)
		if err == nil {
			return dev, nil
		}
		if isClassified(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("audio: all constraint sets rejected: %w", lastErr)
}

func isClassified(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrNoDevice) ||
		errors.Is(err, ErrUnsupported) ||
		errors.Is(err, ErrInsecureContext)
}
