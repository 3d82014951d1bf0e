package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"videoHighlights/config"
	"videoHighlights/core"
	"videoHighlights/retrieval"
	"videoHighlights/storage"
)

type fakeProcessor struct {
	err  error
	done chan string
}

func (f *fakeProcessor) ProcessVideo(ctx context.Context, path string) (int64, []core.Highlight, error) {
	defer func() { f.done <- path }()
	if f.err != nil {
		return 0, nil, f.err
	}
	return 9, make([]core.Highlight, 3), nil
}

func newTestServer(t *testing.T, processor VideoProcessor) (*Server, *storage.MemoryStore, int64) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	videoID, err := store.CreateVideo(ctx, "race.mp4", 95)
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	for _, h := range []core.Highlight{
		{Timestamp: 62, EndTimestamp: 70, Description: "Smoke fills the track after the crash.", Summary: "car explosion scene"},
		{Timestamp: 4, EndTimestamp: 9, Description: "Drivers line up on the grid.", Summary: "race start"},
	} {
		h.VideoID = videoID
		if err := store.CreateHighlight(ctx, &h); err != nil {
			t.Fatalf("CreateHighlight: %v", err)
		}
	}
	cfg := config.Default()
	chat := retrieval.NewChatService(retrieval.NewEngine(store, nil), cfg.MaxResultsCap)
	return New(cfg, chat, store, processor), store, videoID
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestQueryHandler(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	h := srv.Router()

	rec := doRequest(t, h, http.MethodPost, "/api/chat/query", `{"query":"explosion"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[core.ChatResponse](t, rec)
	if resp.Answer != "At 1:02: car explosion scene" {
		t.Errorf("unexpected answer %q", resp.Answer)
	}
	if resp.TotalHighlights != 1 || resp.Highlights[0].TimestampEnd != 70 || resp.Highlights[0].VideoFilename != "race.mp4" {
		t.Errorf("unexpected highlights %+v", resp.Highlights)
	}
}

func TestQueryHandlerRejectsBadInput(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	h := srv.Router()

	cases := []struct {
		body string
		want string
	}{
		{`{"query":"   "}`, "Query cannot be empty"},
		{`{"query":"race","max_results":-1}`, "max_results"},
		{`{"query":`, "invalid json"},
	}
	for _, c := range cases {
		rec := doRequest(t, h, http.MethodPost, "/api/chat/query", c.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d", c.body, rec.Code)
			continue
		}
		if body := decode[map[string]string](t, rec); !strings.Contains(body["error"], c.want) {
			t.Errorf("%s: error %q does not mention %q", c.body, body["error"], c.want)
		}
	}
}

func TestQueryHandlerFallsBackToRecent(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/chat/query", `{"query":"weather forecast","max_results":5}`)
	resp := decode[core.ChatResponse](t, rec)
	if resp.TotalHighlights != 2 {
		t.Fatalf("expected recency fallback with 2 highlights, got %d", resp.TotalHighlights)
	}
	if resp.Highlights[0].TimestampStart != 4 || resp.Highlights[0].Relevance != nil {
		t.Errorf("recency results should be chronological without relevance: %+v", resp.Highlights[0])
	}
}

func TestVideoEndpoints(t *testing.T) {
	srv, _, videoID := newTestServer(t, nil)
	h := srv.Router()

	rec := doRequest(t, h, http.MethodGet, "/api/videos", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "race.mp4") {
		t.Fatalf("list videos: %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, h, http.MethodGet, "/api/videos/1/highlights", "")
	body := decode[struct {
		Highlights []core.Highlight `json:"highlights"`
	}](t, rec)
	if len(body.Highlights) != 2 || body.Highlights[0].Timestamp != 4 {
		t.Errorf("unexpected highlights %+v", body.Highlights)
	}

	if rec := doRequest(t, h, http.MethodDelete, "/api/videos/42", ""); rec.Code != http.StatusNotFound {
		t.Errorf("delete missing video: status %d", rec.Code)
	}
	if rec := doRequest(t, h, http.MethodDelete, "/api/videos/1", ""); rec.Code != http.StatusOK {
		t.Errorf("delete video %d: status %d", videoID, rec.Code)
	}
	if rec := doRequest(t, h, http.MethodGet, "/api/videos/1/highlights", ""); rec.Code != http.StatusNotFound {
		t.Errorf("highlights after delete: status %d", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	rec := doRequest(t, srv.Router(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health: %d %s", rec.Code, rec.Body.String())
	}
}

func TestProcessVideoHandler(t *testing.T) {
	processor := &fakeProcessor{done: make(chan string, 1)}
	srv, _, _ := newTestServer(t, processor)
	h := srv.Router()

	rec := doRequest(t, h, http.MethodPost, "/api/videos/process", `{"video_path":"/nonexistent/clip.mp4"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing file: status %d", rec.Code)
	}

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec = doRequest(t, h, http.MethodPost, "/api/videos/process", `{"video_path":"`+path+`"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("process: status %d %s", rec.Code, rec.Body.String())
	}
	accepted := decode[map[string]string](t, rec)

	select {
	case got := <-processor.done:
		if got != path {
			t.Errorf("processed %q, want %q", got, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("processor was not called")
	}

	var job ProcessJob
	for i := 0; i < 100; i++ {
		rec = doRequest(t, h, http.MethodGet, "/api/videos/jobs/"+accepted["job_id"], "")
		job = decode[ProcessJob](t, rec)
		if job.Status != jobRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.Status != jobCompleted || job.VideoID != 9 || job.Highlights != 3 {
		t.Errorf("unexpected job state %+v", job)
	}
}

func TestProcessVideoHandlerRecordsFailure(t *testing.T) {
	processor := &fakeProcessor{err: errors.New("decode failed"), done: make(chan string, 1)}
	srv, _, _ := newTestServer(t, processor)
	path := filepath.Join(t.TempDir(), "bad.mp4")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/videos/process", `{"video_path":"`+path+`"}`)
	accepted := decode[map[string]string](t, rec)
	<-processor.done

	var job ProcessJob
	for i := 0; i < 100; i++ {
		var ok bool
		job, ok = srv.jobs.get(accepted["job_id"])
		if ok && job.Status != jobRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if job.Status != jobFailed || job.Error != "decode failed" {
		t.Errorf("unexpected job state %+v", job)
	}
}

// blockingProcessor 阻塞到 release 关闭，记录同时运行的最大数量
type blockingProcessor struct {
	mu      sync.Mutex
	active  int
	peak    int
	started int
	release chan struct{}
}

func (b *blockingProcessor) ProcessVideo(ctx context.Context, path string) (int64, []core.Highlight, error) {
	b.mu.Lock()
	b.active++
	b.started++
	if b.active > b.peak {
		b.peak = b.active
	}
	b.mu.Unlock()

	select {
	case <-b.release:
	case <-ctx.Done():
	}

	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	return 1, nil, nil
}

func (b *blockingProcessor) counts() (started, peak int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started, b.peak
}

func TestProcessVideoHandlerRespectsVideoWorkers(t *testing.T) {
	cfg := config.Default()
	cfg.VideoWorkers = 2
	processor := &blockingProcessor{release: make(chan struct{})}
	srv := New(cfg, nil, storage.NewMemoryStore(), processor)
	h := srv.Router()

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	var jobIDs []string
	for i := 0; i < 8; i++ {
		rec := doRequest(t, h, http.MethodPost, "/api/videos/process", `{"video_path":"`+path+`"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
		jobIDs = append(jobIDs, decode[map[string]string](t, rec)["job_id"])
	}

	for i := 0; i < 500; i++ {
		if started, _ := processor.counts(); started >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if started, peak := processor.counts(); started != 2 || peak != 2 {
		t.Errorf("expected 2 videos in flight, got started=%d peak=%d", started, peak)
	}
	for _, id := range jobIDs {
		if job, _ := srv.jobs.get(id); job.Status != jobRunning {
			t.Errorf("job %s should still be processing, got %s", id, job.Status)
		}
	}

	close(processor.release)
	for _, id := range jobIDs {
		var job ProcessJob
		for i := 0; i < 500; i++ {
			job, _ = srv.jobs.get(id)
			if job.Status != jobRunning {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if job.Status != jobCompleted {
			t.Errorf("job %s ended as %s", id, job.Status)
		}
	}
	if started, peak := processor.counts(); started != 8 || peak > 2 {
		t.Errorf("video worker limit exceeded: started=%d peak=%d", started, peak)
	}
}

func TestJobTrackerPrunesFinishedJobs(t *testing.T) {
	tr := &jobTracker{jobs: make(map[string]*ProcessJob), retention: time.Hour, maxFinished: 2}
	now := time.Now()
	finishedAt := func(id string, at time.Time) {
		tr.finish(id, 1, 1, nil)
		tr.jobs[id].FinishedAt = &at
	}

	expired := tr.start("expired.mp4")
	finishedAt(expired.ID, now.Add(-2*time.Hour))
	oldest := tr.start("oldest.mp4")
	finishedAt(oldest.ID, now.Add(-3*time.Minute))
	older := tr.start("older.mp4")
	finishedAt(older.ID, now.Add(-2*time.Minute))
	recent := tr.start("recent.mp4")
	finishedAt(recent.ID, now.Add(-1*time.Minute))
	running := tr.start("running.mp4")

	latest := tr.start("latest.mp4")

	for _, gone := range []string{expired.ID, oldest.ID} {
		if _, ok := tr.get(gone); ok {
			t.Errorf("job %s should have been pruned", gone)
		}
	}
	for _, kept := range []string{older.ID, recent.ID, running.ID, latest.ID} {
		if _, ok := tr.get(kept); !ok {
			t.Errorf("job %s should be kept", kept)
		}
	}
}

func TestMCPSearchHighlights(t *testing.T) {
	srv, store, _ := newTestServer(t, nil)
	handler := makeSearchHandler(srv.chat)

	req := mcp.CallToolRequest{}
	req.Params.Name = "search_highlights"
	req.Params.Arguments = map[string]any{"query": "explosion", "max_results": 3}
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	text := result.Content[0].(mcp.TextContent).Text
	if result.IsError || !strings.HasPrefix(text, "At 1:02: car explosion scene") {
		t.Errorf("unexpected tool result %q", text)
	}

	req.Params.Arguments = map[string]any{"query": ""}
	result, _ = handler(context.Background(), req)
	if !result.IsError {
		t.Error("empty query should be a tool error")
	}

	list, _ := makeListVideosHandler(store)(context.Background(), mcp.CallToolRequest{})
	if !strings.Contains(list.Content[0].(mcp.TextContent).Text, "race.mp4") {
		t.Errorf("list_videos missing video: %+v", list.Content)
	}
}
