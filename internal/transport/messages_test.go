package transport

import (
	"encoding/json"
	"testing"

	"github.com/parley-voice/parley/internal/config"
)

func TestNewAudioData(t *testing.T) {
	msg := NewAudioData("b64payload", config.ModeHeuristic, true)
	if msg.Type != typeAudioData {
		t.Errorf("expected type %q, got %q", typeAudioData, msg.Type)
	}
	if !msg.TranscriptionOnly {
		t.Error("expected transcription_only to be set")
	}
	if msg.Timestamp == 0 {
		t.Error("expected a send timestamp")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["audio"] != "b64payload" {
		t.Errorf("expected audio field, got %v", decoded["audio"])
	}
	if decoded["processing_mode"] != "heuristic" {
		t.Errorf("expected processing_mode heuristic, got %v", decoded["processing_mode"])
	}
}

func TestNewChatMessage(t *testing.T) {
	msg := NewChatMessage("hello", config.ModeLLM, "client-1")
	if msg.Type != typeChatMessage {
		t.Errorf("expected type %q, got %q", typeChatMessage, msg.Type)
	}
	if msg.Context.ClientID != "client-1" {
		t.Errorf("expected client id in context, got %q", msg.Context.ClientID)
	}
}

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, msg InboundMessage)
	}{
		{
			name:  "connection",
			frame: `{"type":"connection","message":"welcome"}`,
			check: func(t *testing.T, msg InboundMessage) {
				m, ok := msg.(Connection)
				if !ok {
					t.Fatalf("expected Connection, got %T", msg)
				}
				if m.Message != "welcome" {
					t.Errorf("expected welcome, got %q", m.Message)
				}
			},
		},
		{
			name:  "transcription",
			frame: `{"type":"transcription","text":"open settings","confidence":0.97}`,
			check: func(t *testing.T, msg InboundMessage) {
				m, ok := msg.(Transcription)
				if !ok {
					t.Fatalf("expected Transcription, got %T", msg)
				}
				if m.Text != "open settings" || m.Confidence != 0.97 {
					t.Errorf("unexpected transcription %+v", m)
				}
			},
		},
		{
			name: "chat response with coordinates",
			frame: `{"type":"chat_response","response":{"success":true,` +
				`"response":{"action":"click","message":"clicking","coordinates":{"x":10,"y":20},"confidence":0.9}}}`,
			check: func(t *testing.T, msg InboundMessage) {
				m, ok := msg.(ChatResponse)
				if !ok {
					t.Fatalf("expected ChatResponse, got %T", msg)
				}
				r := m.Response.Response
				if r.Action != "click" || r.Coordinates == nil || r.Coordinates.X != 10 || r.Coordinates.Y != 20 {
					t.Errorf("unexpected action response %+v", r)
				}
				if r.Confidence == nil || *r.Confidence != 0.9 {
					t.Errorf("expected confidence 0.9, got %v", r.Confidence)
				}
			},
		},
		{
			name:  "chat response without optional fields",
			frame: `{"type":"chat_response","response":{"success":false,"response":{"action":"none","message":"nope"}}}`,
			check: func(t *testing.T, msg InboundMessage) {
				m := msg.(ChatResponse)
				if m.Response.Response.Coordinates != nil || m.Response.Response.Confidence != nil {
					t.Error("expected optional fields to stay nil")
				}
			},
		},
		{
			name:  "server error",
			frame: `{"type":"error","message":"transcription failed"}`,
			check: func(t *testing.T, msg InboundMessage) {
				m, ok := msg.(ServerError)
				if !ok {
					t.Fatalf("expected ServerError, got %T", msg)
				}
				if m.Message != "transcription failed" {
					t.Errorf("unexpected message %q", m.Message)
				}
			},
		},
		{
			name:  "pong",
			frame: `{"type":"pong"}`,
			check: func(t *testing.T, msg InboundMessage) {
				if _, ok := msg.(Pong); !ok {
					t.Fatalf("expected Pong, got %T", msg)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := decodeInbound([]byte(tc.frame))
			if err != nil {
				t.Fatalf("decodeInbound: %v", err)
			}
			tc.check(t, msg)
		})
	}
}

func TestDecodeInbound_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", "hello there"},
		{"unknown type", `{"type":"surprise"}`},
		{"wrong payload shape", `{"type":"transcription","text":42}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decodeInbound([]byte(tc.frame)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}
