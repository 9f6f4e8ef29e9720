// Package vad implements energy-based voice activity detection: an analyzer
// that reduces the live capture stream to a scalar RMS energy level, and a
// controller that turns per-tick energy readings into a single stop decision
// using hysteresis and an adaptive silence timeout.
package vad

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/parley-voice/parley/pkg/audio"
)

const (
	// analysisWindow is the number of samples the analyzer keeps. Power of
	// two for the FFT.
	analysisWindow = 512

	// minDecibels is the floor below which a frequency bin is treated as
	// silent and excluded from the energy computation.
	minDecibels = -100.0
)

// Analyzer computes a non-negative RMS energy level from the most recent
// analysis window of the capture stream. It transforms the window to
// frequency-domain magnitudes on a dB scale, converts each non-silent bin
// back to linear amplitude, and takes the root mean square over valid bins.
//
// Level returns 0 when no samples have been observed (silence before capture
// starts, or a device that disconnected and stopped producing frames). A
// disconnected device is indistinguishable from genuine silence here; only
// the controller's timeout machinery resolves that.
//
// Safe for concurrent use: the session's frame loop calls Observe while the
// controller tick calls Level.
type Analyzer struct {
	mu     sync.Mutex
	window [analysisWindow]float64
	pos    int
	seen   int
}

// NewAnalyzer returns an empty analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Observe feeds a captured frame into the analysis window. Samples are
// normalized to [-1, 1]; only the most recent window is retained.
func (a *Analyzer) Observe(frame audio.Frame) {
	samples := frame.Samples()
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.window[a.pos] = float64(s) / 32768.0
		a.pos = (a.pos + 1) % analysisWindow
	}
	a.seen += len(samples)
}

// Reset discards all observed samples.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.window = [analysisWindow]float64{}
	a.pos = 0
	a.seen = 0
}

// Level returns the RMS energy of the current window, or 0 when no valid
// samples exist.
func (a *Analyzer) Level() float64 {
	a.mu.Lock()
	if a.seen == 0 {
		a.mu.Unlock()
		return 0
	}
	// Unroll the ring so the FFT sees samples in capture order.
	buf := make([]complex128, analysisWindow)
	for i := 0; i < analysisWindow; i++ {
		buf[i] = complex(a.window[(a.pos+i)%analysisWindow], 0)
	}
	a.mu.Unlock()

	fft(buf)

	// Magnitude spectrum over the positive-frequency bins, normalized so a
	// full-scale sine lands near 0 dB.
	var sum float64
	valid := 0
	for k := 1; k < analysisWindow/2; k++ {
		mag := cmplx.Abs(buf[k]) * 2 / analysisWindow
		db := 20 * math.Log10(mag+1e-12)
		if db <= minDecibels {
			continue
		}
		amp := math.Pow(10, db/20)
		sum += amp * amp
		valid++
	}
	if valid == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(valid))
}

// fft performs an in-place iterative radix-2 Cooley-Tukey transform.
// len(buf) must be a power of two.
func fft(buf []complex128) {
	n := len(buf)

	// Bit-reversal permutation.
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}

	for length := 2; length <= n; length <<= 1 {
		angle := -2 * math.Pi / float64(length)
		wl := cmplx.Exp(complex(0, angle))
		for start := 0; start < n; start += length {
			w := complex(1, 0)
			for k := 0; k < length/2; k++ {
				u := buf[start+k]
				v := buf[start+k+length/2] * w
				buf[start+k] = u + v
				buf[start+k+length/2] = u - v
				w *= wl
			}
		}
	}
}
