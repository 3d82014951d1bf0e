package processors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"videoHighlights/core"
	"videoHighlights/storage"
)

// fakeMedia 每秒一帧，亮度在 changes 指定的秒数切换
type fakeMedia struct {
	duration float64
	changes  map[int]bool
	audioErr bool
}

func (m *fakeMedia) OpenFrames(ctx context.Context, path string) ([]core.Frame, float64, float64, error) {
	if strings.Contains(path, "missing") {
		return nil, 0, 0, fmt.Errorf("%w: %s", core.ErrMediaUnavailable, path)
	}
	var frames []core.Frame
	level := uint8(20)
	for i := 0; i < int(m.duration); i++ {
		if m.changes[i] {
			level += 100
		}
		frames = append(frames, solidFrame(float64(i), level))
	}
	return frames, 1, m.duration, nil
}

func (m *fakeMedia) ExtractAudioRange(ctx context.Context, path string, start, end float64) ([]byte, error) {
	if m.audioErr {
		return nil, errors.New("no decoder")
	}
	return EncodeWAV(make([]byte, 320), speechFormat), nil
}

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	return "spoken words", nil
}

type fakeDescriber struct {
	mu          sync.Mutex
	frameCounts []int
	active      int32
	maxActive   int32
}

func (d *fakeDescriber) Describe(ctx context.Context, frames []core.Frame, transcript string, start, end float64) core.HighlightText {
	n := atomic.AddInt32(&d.active, 1)
	defer atomic.AddInt32(&d.active, -1)
	for {
		m := atomic.LoadInt32(&d.maxActive)
		if n <= m || atomic.CompareAndSwapInt32(&d.maxActive, m, n) {
			break
		}
	}
	d.mu.Lock()
	d.frameCounts = append(d.frameCounts, len(frames))
	d.mu.Unlock()
	return core.HighlightText{
		Description: fmt.Sprintf("%s at %.0f", transcript, start),
		Summary:     fmt.Sprintf("segment %.0f-%.0f", start, end),
	}
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedHighlight(ctx context.Context, description, summary string) []float32 {
	return []float32{1, 0, 0}
}

func newTestPipeline(media MediaSource, d Describer, e Embedder, store HighlightStore, workers int) *HighlightPipeline {
	return NewHighlightPipeline(media, fakeTranscriber{}, d, e, store, PipelineConfig{
		Segmenter:    DefaultSceneSegmenterConfig(),
		SpanWorkers:  workers,
		VideoWorkers: 2,
	})
}

func TestProcessVideoWritesHighlightsInOrder(t *testing.T) {
	store := storage.NewMemoryStore()
	describer := &fakeDescriber{}
	media := &fakeMedia{duration: 12, changes: map[int]bool{4: true, 9: true}}
	p := newTestPipeline(media, describer, fakeEmbedder{}, store, 2)

	videoID, highlights, err := p.ProcessVideo(context.Background(), "/videos/clip.mp4")
	if err != nil {
		t.Fatalf("ProcessVideo: %v", err)
	}
	wantStarts := []float64{0, 4, 9}
	wantEnds := []float64{4, 9, 12}
	if len(highlights) != len(wantStarts) {
		t.Fatalf("expected %d highlights, got %d", len(wantStarts), len(highlights))
	}
	for i, h := range highlights {
		if h.Timestamp != wantStarts[i] || h.EndTimestamp != wantEnds[i] {
			t.Errorf("highlight %d: %v-%v", i, h.Timestamp, h.EndTimestamp)
		}
		if h.VideoID != videoID || h.ID == 0 {
			t.Errorf("highlight %d not persisted correctly: %+v", i, h)
		}
		if !strings.HasPrefix(h.Description, "spoken words") {
			t.Errorf("transcript not passed to describer: %q", h.Description)
		}
	}

	stored, err := store.HighlightsByVideo(context.Background(), videoID)
	if err != nil {
		t.Fatalf("HighlightsByVideo: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected 3 stored highlights, got %d", len(stored))
	}
	// 写入顺序（id）与时间顺序一致
	for i := 1; i < len(stored); i++ {
		if stored[i].ID < stored[i-1].ID {
			t.Errorf("highlights not written in span order")
		}
	}

	videos, _ := store.ListVideos(context.Background())
	if len(videos) != 1 || videos[0].Filename != "clip.mp4" || videos[0].Duration != 12 {
		t.Errorf("unexpected video record: %+v", videos)
	}
	for _, n := range describer.frameCounts {
		if n == 0 || n > 5 {
			t.Errorf("unexpected sampled frame count %d", n)
		}
	}
	if describer.maxActive > 2 {
		t.Errorf("span worker limit exceeded: %d", describer.maxActive)
	}
}

func TestProcessVideoMissingMedia(t *testing.T) {
	store := storage.NewMemoryStore()
	p := newTestPipeline(&fakeMedia{duration: 5}, &fakeDescriber{}, fakeEmbedder{}, store, 2)

	_, _, err := p.ProcessVideo(context.Background(), "/videos/missing.mp4")
	if !errors.Is(err, core.ErrMediaUnavailable) {
		t.Fatalf("expected ErrMediaUnavailable, got %v", err)
	}
	videos, _ := store.ListVideos(context.Background())
	if len(videos) != 0 {
		t.Error("no video record should be created for unavailable media")
	}
}

func TestProcessVideoDegradesExternalFailures(t *testing.T) {
	store := storage.NewMemoryStore()
	describer := NewDescriptionComposer(&fakeChatClient{err: errors.New("down")}, "m")
	embedder := NewEmbeddingComposer(&fakeEmbeddingClient{err: errors.New("down")}, "m", 8)
	media := &fakeMedia{duration: 6, audioErr: true}
	p := newTestPipeline(media, describer, embedder, store, 4)

	_, highlights, err := p.ProcessVideo(context.Background(), "/videos/quiet.mp4")
	if err != nil {
		t.Fatalf("ProcessVideo: %v", err)
	}
	if len(highlights) != 1 {
		t.Fatalf("expected single span, got %d", len(highlights))
	}
	h := highlights[0]
	if h.Description != "Highlight from 0.00s to 6.00s. No transcript available." {
		t.Errorf("unexpected fallback description %q", h.Description)
	}
	if len(h.Embedding) != 8 || !core.IsZeroVector(h.Embedding) {
		t.Errorf("expected zero vector of dimension 8, got %v", h.Embedding)
	}
	has, _ := store.HasAnyEmbedding(context.Background())
	if has {
		t.Error("zero vectors must not count as embeddings")
	}
}

func TestProcessVideoCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := storage.NewMemoryStore()
	p := newTestPipeline(&fakeMedia{duration: 12, changes: map[int]bool{4: true}}, &fakeDescriber{}, fakeEmbedder{}, store, 2)
	videoID, _, err := p.ProcessVideo(ctx, "/videos/a.mp4")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if videoID != 0 {
		t.Errorf("cancelled run should not report a video id, got %d", videoID)
	}
	// 未完成的视频记录被删除，重试不会产生重复记录
	videos, _ := store.ListVideos(context.Background())
	if len(videos) != 0 {
		t.Errorf("incomplete video left behind: %+v", videos)
	}
}

// failingStore 第 failAt 条高光写入失败
type failingStore struct {
	*storage.MemoryStore
	failAt int
	writes int
}

func (s *failingStore) CreateHighlight(ctx context.Context, h *core.Highlight) error {
	s.writes++
	if s.writes == s.failAt {
		return errors.New("disk full")
	}
	return s.MemoryStore.CreateHighlight(ctx, h)
}

func TestProcessVideoRemovesVideoOnSaveFailure(t *testing.T) {
	store := &failingStore{MemoryStore: storage.NewMemoryStore(), failAt: 2}
	p := newTestPipeline(&fakeMedia{duration: 12, changes: map[int]bool{4: true, 9: true}}, &fakeDescriber{}, fakeEmbedder{}, store, 2)

	videoID, highlights, err := p.ProcessVideo(context.Background(), "/videos/a.mp4")
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected save error, got %v", err)
	}
	if videoID != 0 || highlights != nil {
		t.Errorf("failed run returned %d / %v", videoID, highlights)
	}
	videos, _ := store.ListVideos(context.Background())
	if len(videos) != 0 {
		t.Errorf("incomplete video left behind: %+v", videos)
	}
	recent, _ := store.ListRecent(context.Background(), 10)
	if len(recent) != 0 {
		t.Errorf("highlights of the removed video still stored: %d", len(recent))
	}
}

func TestProcessBatchContinuesPastFailures(t *testing.T) {
	store := storage.NewMemoryStore()
	p := newTestPipeline(&fakeMedia{duration: 8, changes: map[int]bool{3: true}}, &fakeDescriber{}, fakeEmbedder{}, store, 2)

	results := p.ProcessBatch(context.Background(), []string{"/v/a.mp4", "/v/missing.mp4", "/v/b.mp4"})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("healthy videos failed: %v / %v", results[0].Err, results[2].Err)
	}
	if !errors.Is(results[1].Err, core.ErrMediaUnavailable) || results[1].Error == "" {
		t.Errorf("expected media failure recorded, got %v", results[1].Err)
	}
	if results[0].BatchID == "" || results[0].BatchID != results[2].BatchID {
		t.Error("results should share one batch id")
	}
	videos, _ := store.ListVideos(context.Background())
	if len(videos) != 2 {
		t.Errorf("expected 2 stored videos, got %d", len(videos))
	}
}

func TestSampleFrameIndices(t *testing.T) {
	cases := []struct {
		span  core.Span
		fps   float64
		count int
		want  []int
	}{
		{core.Span{Start: 0, End: 4}, 1, 12, []int{0, 1, 2, 3}},
		{core.Span{Start: 0, End: 10}, 30, 400, []int{0, 74, 149, 224, 299}},
		{core.Span{Start: 9, End: 12}, 1, 11, []int{9, 10}},
		{core.Span{Start: 2, End: 2.5}, 1, 10, nil},
	}
	for _, c := range cases {
		got := SampleFrameIndices(c.span, c.fps, c.count)
		if fmt.Sprint(got) != fmt.Sprint(c.want) {
			t.Errorf("SampleFrameIndices(%v, %v, %d) = %v, want %v", c.span, c.fps, c.count, got, c.want)
		}
	}
}
