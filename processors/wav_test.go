package processors

import (
	"bytes"
	"testing"
)

var speechFormat = WAVInfo{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

func TestWAVRoundTrip(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	data := EncodeWAV(pcm, speechFormat)
	if len(data) != 44+len(pcm) {
		t.Fatalf("unexpected wav size %d", len(data))
	}
	got, info, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if !bytes.Equal(got, pcm) || info != speechFormat {
		t.Errorf("round trip mismatch: %v %+v", got, info)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav file at all")); err == nil {
		t.Error("expected error")
	}
}

func TestSplitWAV(t *testing.T) {
	// 70 秒音频，按 30 秒切分为 30/30/10
	pcm := make([]byte, 70*32000)
	chunks := SplitWAV(pcm, speechFormat, 30)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	wantSeconds := []float64{30, 30, 10}
	for i, c := range chunks {
		body, info, err := DecodeWAV(c)
		if err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		if d := WAVDuration(body, info); d != wantSeconds[i] {
			t.Errorf("chunk %d: duration %v, want %v", i, d, wantSeconds[i])
		}
	}
}
