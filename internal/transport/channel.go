package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Default channel timings.
const (
	// defaultBackoff is the fixed delay before each reconnect attempt.
	defaultBackoff = 3 * time.Second

	// defaultHeartbeat is the ping interval while the channel is open.
	defaultHeartbeat = 30 * time.Second
)

// ErrNotConnected is returned by [Channel.Send] when the channel is not open.
var ErrNotConnected = errors.New("transport: channel is not connected")

// State is the channel's connection state.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind classifies the values delivered on [Channel.Events].
type EventKind int

const (
	// EventMessage carries a decoded inbound domain message.
	EventMessage EventKind = iota

	// EventStateChange reports a connection state transition.
	EventStateChange
)

// Event is a single occurrence on the channel: either an inbound message or
// a state transition (with the error that caused it, for Closed).
type Event struct {
	Kind    EventKind
	Message InboundMessage
	State   State
	Err     error
}

// Config configures a [Channel].
type Config struct {
	// URL is the WebSocket endpoint. The client ID is appended as the final
	// path segment.
	URL string

	// ClientID is the opaque per-process client identity.
	ClientID string

	// Backoff is the fixed delay between reconnect attempts. Defaults to 3s.
	Backoff time.Duration

	// Heartbeat is the ping interval while open. Defaults to 30s.
	Heartbeat time.Duration
}

// Channel is the persistent bidirectional message channel to the remote
// assistant. It survives across recording sessions: once [Channel.Run] is
// started it reconnects with a fixed backoff, indefinitely, until the context
// is cancelled. There is one Channel per client process.
//
// All methods are safe for concurrent use.
type Channel struct {
	cfg  Config
	dial func(ctx context.Context, url string) (*websocket.Conn, error)

	mu    sync.Mutex
	conn  *websocket.Conn
	state State

	events chan Event
}

// NewChannel creates a channel for the given config. Call [Channel.Run] to
// start connecting.
func NewChannel(cfg Config) *Channel {
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	return &Channel{
		cfg: cfg,
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			c, _, err := websocket.Dial(ctx, url, nil)
			return c, err
		},
		state:  StateConnecting,
		events: make(chan Event, 64),
	}
}

// Events returns the stream of inbound messages and state transitions.
// The channel is closed when Run returns.
func (c *Channel) Events() <-chan Event { return c.events }

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ClientID returns the channel's client identity.
func (c *Channel) ClientID() string { return c.cfg.ClientID }

// Send encodes msg and writes it to the socket. Returns [ErrNotConnected]
// when the channel is not open. A message handed to the socket is never
// recalled, even if the connection drops immediately after.
func (c *Channel) Send(ctx context.Context, msg OutboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// Run drives the connect → read → reconnect loop until ctx is cancelled.
// Each failed attempt waits the fixed backoff before retrying, so there is
// at most one attempt per backoff interval.
func (c *Channel) Run(ctx context.Context) error {
	defer close(c.events)

	url := strings.TrimRight(c.cfg.URL, "/") + "/" + c.cfg.ClientID

	for {
		c.setState(ctx, StateConnecting, nil)

		conn, err := c.dial(ctx, url)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("transport: connect failed", "url", c.cfg.URL, "err", err)
			c.setState(ctx, StateClosed, err)
			if !c.sleep(ctx) {
				return ctx.Err()
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(ctx, StateOpen, nil)
		slog.Info("transport: channel open", "client_id", c.cfg.ClientID)

		readErr := c.serve(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "reconnecting")

		if ctx.Err() != nil {
			c.setState(ctx, StateClosed, nil)
			return ctx.Err()
		}

		slog.Warn("transport: connection lost, reconnecting", "err", readErr, "backoff", c.cfg.Backoff)
		c.setState(ctx, StateClosed, readErr)
		if !c.sleep(ctx) {
			return ctx.Err()
		}
	}
}

// serve pumps inbound frames and heartbeats until the connection fails or
// ctx is cancelled. Returns the terminating error.
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) error {
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		ticker := time.NewTicker(c.cfg.Heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-serveCtx.Done():
				return
			case <-ticker.C:
				if err := c.Send(serveCtx, NewPing()); err != nil {
					slog.Debug("transport: heartbeat send failed", "err", err)
					return
				}
			}
		}
	}()

	var readErr error
	for {
		_, data, err := conn.Read(serveCtx)
		if err != nil {
			readErr = err
			break
		}

		msg, err := decodeInbound(data)
		if err != nil {
			// Malformed payloads are logged and dropped; the channel lives on.
			slog.Warn("transport: dropping bad frame", "err", err)
			continue
		}

		if _, ok := msg.(Pong); ok {
			// Liveness only; no timeout-based disconnect on a missed pong.
			slog.Debug("transport: pong")
			continue
		}

		c.deliver(ctx, Event{Kind: EventMessage, Message: msg})
	}

	cancel()
	<-heartbeatDone
	return readErr
}

// setState records the transition and notifies the event stream.
func (c *Channel) setState(ctx context.Context, s State, cause error) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	if prev == s {
		return
	}
	c.deliver(ctx, Event{Kind: EventStateChange, State: s, Err: cause})
}

// deliver forwards an event to the consumer without stalling the read loop
// forever: if the consumer is gone and ctx ends, the event is dropped.
func (c *Channel) deliver(ctx context.Context, ev Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// sleep waits one backoff interval. Returns false if ctx ended first.
func (c *Channel) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(c.cfg.Backoff):
		return true
	}
}
