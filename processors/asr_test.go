package processors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/sashabaranov/go-openai"
)

type fakeTranscriptionClient struct {
	calls   int
	failOn  map[int]bool
	texts   []string
	missing bool
}

func (f *fakeTranscriptionClient) CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	f.calls++
	if _, err := os.Stat(req.FilePath); err != nil {
		f.missing = true
	}
	if f.failOn[f.calls] {
		return openai.AudioResponse{}, errors.New("request failed")
	}
	if f.calls-1 < len(f.texts) {
		return openai.AudioResponse{Text: f.texts[f.calls-1]}, nil
	}
	return openai.AudioResponse{Text: fmt.Sprintf(" part%d ", f.calls)}, nil
}

func newTestTranscriber(t *testing.T, client TranscriptionClient) *WhisperTranscriber {
	w := NewWhisperTranscriber(client, "")
	w.tmpDir = t.TempDir()
	return w
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("temp chunk files left behind: %d", len(entries))
	}
}

func TestTranscribeShortAudio(t *testing.T) {
	client := &fakeTranscriptionClient{texts: []string{"hello there"}}
	w := newTestTranscriber(t, client)

	text, err := w.Transcribe(context.Background(), EncodeWAV(make([]byte, 5*32000), speechFormat))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello there" || client.calls != 1 {
		t.Errorf("got %q after %d calls", text, client.calls)
	}
	if client.missing {
		t.Error("temp file must exist during the request")
	}
	assertNoTempFiles(t, w.tmpDir)
}

func TestTranscribeLongAudioIsChunked(t *testing.T) {
	client := &fakeTranscriptionClient{}
	w := newTestTranscriber(t, client)

	text, err := w.Transcribe(context.Background(), EncodeWAV(make([]byte, 70*32000), speechFormat))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if client.calls != 3 {
		t.Fatalf("expected 3 chunk requests, got %d", client.calls)
	}
	if text != "part1 part2 part3" {
		t.Errorf("unexpected joined text %q", text)
	}
	assertNoTempFiles(t, w.tmpDir)
}

func TestTranscribeFailuresDegrade(t *testing.T) {
	client := &fakeTranscriptionClient{failOn: map[int]bool{2: true}}
	w := newTestTranscriber(t, client)

	text, err := w.Transcribe(context.Background(), EncodeWAV(make([]byte, 70*32000), speechFormat))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "part1 part3" {
		t.Errorf("failed chunk should be skipped, got %q", text)
	}
	assertNoTempFiles(t, w.tmpDir)

	single := &fakeTranscriptionClient{failOn: map[int]bool{1: true}}
	w2 := newTestTranscriber(t, single)
	text, err = w2.Transcribe(context.Background(), EncodeWAV(make([]byte, 32000), speechFormat))
	if err != nil || text != "" {
		t.Errorf("expected empty text without error, got %q, %v", text, err)
	}
}

func TestTranscribeEmptyAudio(t *testing.T) {
	client := &fakeTranscriptionClient{}
	w := newTestTranscriber(t, client)
	text, err := w.Transcribe(context.Background(), nil)
	if err != nil || text != "" || client.calls != 0 {
		t.Errorf("expected no-op, got %q %v calls=%d", text, err, client.calls)
	}
}
