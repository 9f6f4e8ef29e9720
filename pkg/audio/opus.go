package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Captured audio is encoded as 16 kHz mono Opus at 20 ms frame size.
const (
	encodeSampleRate  = 16000
	encodeChannels    = 1
	encodeFrameSizeMs = 20
	// encodeFrameSize is the number of samples per 20 ms frame.
	encodeFrameSize = encodeSampleRate * encodeFrameSizeMs / 1000 // 320
	// maxPacketBytes bounds a single encoded Opus packet.
	maxPacketBytes = 4000
)

// OpusEncoder encodes a stream of normalized PCM frames into Opus packets.
// Input frames may be any length; samples are buffered internally and encoded
// in fixed 20 ms chunks. A trailing partial chunk is flushed zero-padded.
//
// Not safe for concurrent use; create one per recording session.
type OpusEncoder struct {
	enc     *gopus.Encoder
	pending []int16
}

// NewOpusEncoder creates an encoder configured for the capture format.
func NewOpusEncoder() (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(encodeSampleRate, encodeChannels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// Encode consumes pcmBytes (little-endian int16 mono at 16 kHz) and returns
// the Opus packets completed by this write. Partial trailing samples stay
// buffered for the next call.
func (e *OpusEncoder) Encode(pcmBytes []byte) ([][]byte, error) {
	e.pending = append(e.pending, BytesToInt16s(pcmBytes)...)

	var packets [][]byte
	for len(e.pending) >= encodeFrameSize {
		chunk := e.pending[:encodeFrameSize]
		pkt, err := e.enc.Encode(chunk, encodeFrameSize, maxPacketBytes)
		if err != nil {
			return packets, fmt.Errorf("audio: opus encode: %w", err)
		}
		packets = append(packets, pkt)
		e.pending = e.pending[encodeFrameSize:]
	}
	return packets, nil
}

// Flush encodes any buffered partial chunk, zero-padded to a full frame.
// Returns nil when nothing is pending.
func (e *OpusEncoder) Flush() ([]byte, error) {
	if len(e.pending) == 0 {
		return nil, nil
	}
	chunk := make([]int16, encodeFrameSize)
	copy(chunk, e.pending)
	e.pending = e.pending[:0]

	pkt, err := e.enc.Encode(chunk, encodeFrameSize, maxPacketBytes)
	if err != nil {
		return nil, fmt.Errorf("audio: opus flush: %w", err)
	}
	return pkt, nil
}
