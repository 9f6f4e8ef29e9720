package audio

import (
	"bytes"
	"testing"
)

func TestStereoToMono(t *testing.T) {
	in := Int16sToBytes([]int16{100, 200, -32768, -32768, 32767, 32767})
	got := BytesToInt16s(StereoToMono(in))
	want := []int16{150, -32768, 32767}

	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestResampleMono16(t *testing.T) {
	t.Run("same rate passes through", func(t *testing.T) {
		in := Int16sToBytes([]int16{1, 2, 3, 4})
		if got := ResampleMono16(in, 16000, 16000); !bytes.Equal(got, in) {
			t.Error("expected unchanged data for equal rates")
		}
	})

	t.Run("halving the rate halves the samples", func(t *testing.T) {
		in := Int16sToBytes(make([]int16, 320))
		got := ResampleMono16(in, 32000, 16000)
		if len(got) != 320 {
			t.Errorf("expected 160 samples (320 bytes), got %d bytes", len(got))
		}
	})

	t.Run("interpolates between neighbours", func(t *testing.T) {
		in := Int16sToBytes([]int16{0, 100})
		got := BytesToInt16s(ResampleMono16(in, 16000, 32000))
		if len(got) != 4 {
			t.Fatalf("expected 4 samples, got %d", len(got))
		}
		if got[0] != 0 || got[1] != 50 {
			t.Errorf("expected [0 50 ...], got %v", got)
		}
	})
}

func TestNormalize(t *testing.T) {
	t.Run("target format passes through", func(t *testing.T) {
		f := Frame{Data: Int16sToBytes([]int16{1, 2, 3}), SampleRate: 16000, Channels: 1}
		got := Normalize(f)
		if !bytes.Equal(got.Data, f.Data) {
			t.Error("expected unchanged data for 16kHz mono input")
		}
	})

	t.Run("odd byte count comes back empty", func(t *testing.T) {
		f := Frame{Data: []byte{1, 2, 3}, SampleRate: 48000, Channels: 1}
		got := Normalize(f)
		if len(got.Data) != 0 {
			t.Errorf("expected empty data for corrupt frame, got %d bytes", len(got.Data))
		}
		if got.SampleRate != 16000 || got.Channels != 1 {
			t.Errorf("expected target format on empty frame, got %d Hz %d ch", got.SampleRate, got.Channels)
		}
	})

	t.Run("stereo 48kHz becomes mono 16kHz", func(t *testing.T) {
		// 48 stereo sample pairs at 48 kHz: 48 mono samples, resampled to 16.
		f := Frame{Data: make([]byte, 48*4), SampleRate: 48000, Channels: 2}
		got := Normalize(f)
		if got.SampleRate != 16000 || got.Channels != 1 {
			t.Fatalf("expected 16kHz mono, got %d Hz %d ch", got.SampleRate, got.Channels)
		}
		if len(got.Data) != 16*2 {
			t.Errorf("expected 16 samples, got %d bytes", len(got.Data))
		}
	})
}

func TestInt16Roundtrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345}
	got := BytesToInt16s(Int16sToBytes(in))
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d: expected %d, got %d", i, in[i], got[i])
		}
	}
}
