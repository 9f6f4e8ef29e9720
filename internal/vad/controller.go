package vad

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-voice/parley/internal/config"
)

// EnergySource supplies the current energy level for each analysis tick.
// [*Analyzer.Level] satisfies this signature.
type EnergySource func() float64

// Controller converts a stream of per-tick energy readings into a single
// "stop now" decision. It runs on a fixed tick while a recording session is
// active and requests the stop through the session's central stop entry
// point, so a controller decision and a ceiling-timer stop can race safely.
//
// A Controller is single-use: create one per recording session.
type Controller struct {
	cfg         config.VADConfig
	energy      EnergySource
	requestStop func()
	now         func() time.Time

	mu                sync.Mutex
	recordingStart    time.Time
	lastVoice         time.Time
	speechDetected    bool
	consecutiveSilent int
	stopped           bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates a controller that reads energy from source and calls
// requestStop (exactly once) when the silence conditions are met.
func NewController(cfg config.VADConfig, source EnergySource, requestStop func()) *Controller {
	return &Controller{
		cfg:         cfg,
		energy:      source,
		requestStop: requestStop,
		now:         time.Now,
		done:        make(chan struct{}),
	}
}

// Start begins ticking at the configured check interval. The recording start
// time is captured here; the grace period and dynamic timeout are both
// measured from it.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	start := c.now()
	c.recordingStart = start
	c.lastVoice = start
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.cfg.CheckInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.tick(c.now()) {
					return
				}
			}
		}
	}()
}

// Stop halts the tick loop without emitting a stop decision. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.stopped = true
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-c.done
	}
}

// SpeechDetected reports whether any voiced tick has been observed.
func (c *Controller) SpeechDetected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speechDetected
}

// tick runs one analysis step. Returns true once a stop has been emitted so
// the loop can exit. The stop requires BOTH the consecutive-silent-tick floor
// and the silence-duration check: the tick count guards against single-tick
// glitches, the duration check against jittery tick scheduling.
func (c *Controller) tick(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return true
	}

	elapsed := now.Sub(c.recordingStart)

	// Grace period: never stop this early, regardless of energy.
	if elapsed < c.cfg.SpeechStartDelay() {
		return false
	}

	level := c.energy()
	if level > c.cfg.Sensitivity {
		c.lastVoice = now
		c.consecutiveSilent = 0
		if !c.speechDetected {
			c.speechDetected = true
			slog.Debug("vad: speech detected", "level", level)
		}
		return false
	}

	c.consecutiveSilent++
	if !c.speechDetected || c.consecutiveSilent < c.cfg.ConsecutiveSilenceThreshold {
		return false
	}

	silence := now.Sub(c.lastVoice)
	if silence > c.effectiveTimeout(elapsed) {
		c.stopped = true
		slog.Info("vad: silence confirmed, requesting stop",
			"silence", silence,
			"silent_ticks", c.consecutiveSilent,
			"recording_age", elapsed,
		)
		go c.requestStop()
		return true
	}
	return false
}

// effectiveTimeout returns the silence duration that confirms the speaker is
// done. Long recordings are assumed to be nearing completion, so once the
// recording age passes the trigger point the required tail silence shrinks,
// floored at the configured minimum.
func (c *Controller) effectiveTimeout(recordingAge time.Duration) time.Duration {
	base := c.cfg.SilenceTimeout()
	dt := c.cfg.DynamicTimeout
	if !dt.Enabled || recordingAge <= dt.TriggerAfter() {
		return base
	}
	reduced := time.Duration(float64(base) * dt.ReductionFactor)
	return max(dt.MinimumTimeout(), reduced)
}
