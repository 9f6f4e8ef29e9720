// Package portaudio implements the [audio.Platform] interface over the
// PortAudio capture API. It is the default microphone backend for the client.
//
// PortAudio's host state is process-wide: call [Initialize] once at startup
// and [Terminate] during shutdown. Individual devices are acquired per
// recording session and released when the session stops.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/parley-voice/parley/pkg/audio"
)

// framesPerBuffer is the capture granularity: 20 ms at the device rate is
// computed per stream; this is the fallback when the rate is unknown.
const defaultFramesPerBuffer = 320

// Initialize sets up the PortAudio host API. Must be called before Acquire.
func Initialize() error {
	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", audio.ErrUnsupported, err)
	}
	return nil
}

// Terminate tears down the PortAudio host API.
func Terminate() error {
	return pa.Terminate()
}

// Platform acquires microphone devices through PortAudio.
type Platform struct{}

// New returns a PortAudio-backed capture platform.
func New() *Platform {
	return &Platform{}
}

// Acquire implements [audio.Platform]. The echo-cancellation and
// noise-suppression constraints are accepted but ignored: PortAudio exposes
// raw device input only, and the remote transcriber tolerates unprocessed
// audio.
func (p *Platform) Acquire(ctx context.Context, c audio.Constraints) (audio.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := pa.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrNoDevice, err)
	}

	rate := c.SampleRate
	if rate == 0 {
		rate = int(info.DefaultSampleRate)
	}
	channels := c.Channels
	if channels == 0 {
		channels = 1
	}
	if channels > info.MaxInputChannels {
		return nil, fmt.Errorf("audio: device %q supports at most %d input channels", info.Name, info.MaxInputChannels)
	}

	bufSize := rate * 20 / 1000 * channels
	if bufSize <= 0 {
		bufSize = defaultFramesPerBuffer
	}
	buf := make([]int16, bufSize)

	stream, err := pa.OpenDefaultStream(channels, 0, float64(rate), bufSize/channels, buf)
	if err != nil {
		return nil, classify(err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, classify(err)
	}

	d := &device{
		stream:     stream,
		buf:        buf,
		sampleRate: rate,
		channels:   channels,
		frames:     make(chan audio.Frame, 16),
		done:       make(chan struct{}),
	}
	go d.readLoop()
	return d, nil
}

// classify maps PortAudio errors onto the audio package's capture error
// taxonomy so callers can surface specific guidance.
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no device") || strings.Contains(msg, "device unavailable"):
		return fmt.Errorf("%w: %v", audio.ErrNoDevice, err)
	case strings.Contains(msg, "permission") || strings.Contains(msg, "access denied"):
		return fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	case strings.Contains(msg, "not initialized"):
		return fmt.Errorf("%w: %v", audio.ErrUnsupported, err)
	default:
		return fmt.Errorf("audio: open capture stream: %w", err)
	}
}

// device is a live PortAudio capture stream. It implements [audio.Device].
type device struct {
	stream     *pa.Stream
	buf        []int16
	sampleRate int
	channels   int

	frames chan audio.Frame
	done   chan struct{}
	once   sync.Once
}

// Frames implements [audio.Device].
func (d *device) Frames() <-chan audio.Frame { return d.frames }

// Format implements [audio.Device].
func (d *device) Format() (int, int) { return d.sampleRate, d.channels }

// Close implements [audio.Device]. Stops the stream and closes the frame
// channel. Safe to call more than once.
func (d *device) Close() error {
	d.once.Do(func() {
		close(d.done)
		// Abort unblocks a pending Read so the loop can exit.
		_ = d.stream.Abort()
	})
	return nil
}

// readLoop pulls fixed buffers from PortAudio and forwards them as frames.
// A device that disconnects mid-session stops producing frames; the channel
// closes and downstream consumers observe sustained silence.
func (d *device) readLoop() {
	defer close(d.frames)
	defer d.stream.Close()

	start := time.Now()
	for {
		select {
		case <-d.done:
			return
		default:
		}

		if err := d.stream.Read(); err != nil {
			if errors.Is(err, pa.InputOverflowed) {
				continue
			}
			return
		}

		data := make([]int16, len(d.buf))
		copy(data, d.buf)
		frame := audio.Frame{
			Data:       audio.Int16sToBytes(data),
			SampleRate: d.sampleRate,
			Channels:   d.channels,
			Timestamp:  time.Since(start),
		}

		select {
		case d.frames <- frame:
		case <-d.done:
			return
		default:
			// Consumer is behind; drop the frame rather than stall capture.
		}
	}
}
