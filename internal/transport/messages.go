// Package transport implements the persistent message channel between the
// client and the remote assistant: a WebSocket carrying line-oriented JSON
// frames tagged by type, with automatic reconnection and a periodic
// heartbeat.
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/parley-voice/parley/internal/config"
)

// Outbound message type tags.
const (
	typeAudioData   = "audio_data"
	typeChatMessage = "chat_message"
	typePing        = "ping"
)

// Inbound message type tags.
const (
	typeConnection    = "connection"
	typeTranscription = "transcription"
	typeChatResponse  = "chat_response"
	typeError         = "error"
	typePong          = "pong"
)

// OutboundMessage is a client-to-server frame. Implementations are the
// structs below; each carries its own type tag.
type OutboundMessage interface {
	outbound()
}

// AudioData carries one finished recording to the server.
type AudioData struct {
	Type string `json:"type"`

	// Audio is the base64-encoded Opus payload.
	Audio string `json:"audio"`

	// ProcessingMode tells the server whether to fully interpret the command
	// or only transcribe it.
	ProcessingMode config.ProcessingMode `json:"processing_mode"`

	// TranscriptionOnly is true when the client only needs the text back
	// (heuristic mode, wake-word listening).
	TranscriptionOnly bool `json:"transcription_only"`

	// Timestamp is the client send time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// NewAudioData builds a tagged AudioData frame stamped with the current time.
func NewAudioData(audioB64 string, mode config.ProcessingMode, transcriptionOnly bool) AudioData {
	return AudioData{
		Type:              typeAudioData,
		Audio:             audioB64,
		ProcessingMode:    mode,
		TranscriptionOnly: transcriptionOnly,
		Timestamp:         time.Now().UnixMilli(),
	}
}

// MessageContext identifies the sender of a chat message.
type MessageContext struct {
	Timestamp int64  `json:"timestamp"`
	ClientID  string `json:"client_id"`
}

// ChatMessage carries typed text to the server.
type ChatMessage struct {
	Type           string                `json:"type"`
	Message        string                `json:"message"`
	ProcessingMode config.ProcessingMode `json:"processing_mode"`
	Context        MessageContext        `json:"context"`
}

// NewChatMessage builds a tagged ChatMessage frame.
func NewChatMessage(text string, mode config.ProcessingMode, clientID string) ChatMessage {
	return ChatMessage{
		Type:           typeChatMessage,
		Message:        text,
		ProcessingMode: mode,
		Context: MessageContext{
			Timestamp: time.Now().UnixMilli(),
			ClientID:  clientID,
		},
	}
}

// Ping is the heartbeat frame.
type Ping struct {
	Type string `json:"type"`
}

// NewPing builds a tagged heartbeat frame.
func NewPing() Ping { return Ping{Type: typePing} }

func (AudioData) outbound()   {}
func (ChatMessage) outbound() {}
func (Ping) outbound()        {}

// InboundMessage is a server-to-client frame. Concrete types: [Connection],
// [Transcription], [ChatResponse], [ServerError], [Pong].
type InboundMessage interface {
	inbound()
}

// Connection is the server's greeting after the socket opens.
type Connection struct {
	Message string `json:"message"`
}

// Transcription is the text the server heard in a transcription-only upload.
type Transcription struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Coordinates is an optional screen position attached to an action.
type Coordinates struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ActionResponse is the interpreted command inside a [ChatResponse].
type ActionResponse struct {
	Action      string       `json:"action"`
	Message     string       `json:"message"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	Confidence  *float64     `json:"confidence,omitempty"`
}

// ChatResponseBody is the payload of a [ChatResponse].
type ChatResponseBody struct {
	Success      bool            `json:"success"`
	Response     ActionResponse  `json:"response"`
	ActionResult json.RawMessage `json:"action_result,omitempty"`
}

// ChatResponse is the server's reply to an audio or chat upload.
type ChatResponse struct {
	Response ChatResponseBody `json:"response"`
}

// ServerError is a server-reported failure.
type ServerError struct {
	Message string `json:"message"`
}

// Pong is the heartbeat reply. Consumed for liveness only.
type Pong struct{}

func (Connection) inbound()    {}
func (Transcription) inbound() {}
func (ChatResponse) inbound()  {}
func (ServerError) inbound()   {}
func (Pong) inbound()          {}

// decodeInbound parses a raw frame into its typed representation.
// Unknown types and malformed payloads return an error; the channel logs and
// drops them without tearing down the connection.
func decodeInbound(data []byte) (InboundMessage, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("transport: malformed frame: %w", err)
	}

	switch head.Type {
	case typeConnection:
		var m Connection
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("transport: decode connection: %w", err)
		}
		return m, nil
	case typeTranscription:
		var m Transcription
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("transport: decode transcription: %w", err)
		}
		return m, nil
	case typeChatResponse:
		var m ChatResponse
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("transport: decode chat_response: %w", err)
		}
		return m, nil
	case typeError:
		var m ServerError
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("transport: decode error: %w", err)
		}
		return m, nil
	case typePong:
		return Pong{}, nil
	default:
		return nil, fmt.Errorf("transport: unknown frame type %q", head.Type)
	}
}
