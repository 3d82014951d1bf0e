package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"videoHighlights/core"
)

// MemoryStore 进程内存储，用于本地调试与测试
type MemoryStore struct {
	mu          sync.RWMutex
	videos      map[int64]core.Video
	highlights  []core.Highlight
	nextVideoID int64
	nextID      int64
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		videos: make(map[int64]core.Video),
		now:    time.Now,
	}
}

func (s *MemoryStore) CreateVideo(ctx context.Context, filename string, duration float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextVideoID++
	s.videos[s.nextVideoID] = core.Video{
		ID:        s.nextVideoID,
		Filename:  filename,
		Duration:  duration,
		CreatedAt: s.now(),
	}
	return s.nextVideoID, nil
}

func (s *MemoryStore) CreateHighlight(ctx context.Context, h *core.Highlight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[h.VideoID]; !ok {
		return core.ErrVideoNotFound
	}
	s.nextID++
	h.ID = s.nextID
	h.CreatedAt = s.now()
	stored := *h
	stored.Embedding = append([]float32(nil), h.Embedding...)
	s.highlights = append(s.highlights, stored)
	return nil
}

func (s *MemoryStore) result(h core.Highlight, relevance *float64) core.QueryResult {
	return core.QueryResult{
		Highlight:     h,
		VideoFilename: s.videos[h.VideoID].Filename,
		Relevance:     relevance,
	}
}

func (s *MemoryStore) SearchByVector(ctx context.Context, vec []float32, limit int) ([]core.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []core.QueryResult
	for _, h := range s.highlights {
		if core.IsZeroVector(h.Embedding) {
			continue
		}
		rel := clamp01(CosineSimilarity(vec, h.Embedding))
		results = append(results, s.result(h, core.Float64Ptr(rel)))
	}
	sortByRelevance(results)
	return limitResults(results, limit), nil
}

func (s *MemoryStore) SearchByText(ctx context.Context, query string, limit int) ([]core.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []core.QueryResult
	for _, h := range s.highlights {
		score := KeywordScore(query, highlightText(h))
		if score <= 0 {
			continue
		}
		results = append(results, s.result(h, core.Float64Ptr(score)))
	}
	sortByRelevance(results)
	return limitResults(results, limit), nil
}

func (s *MemoryStore) ListRecent(ctx context.Context, limit int) ([]core.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recent := make([]core.Highlight, len(s.highlights))
	copy(recent, s.highlights)
	sort.SliceStable(recent, func(i, j int) bool {
		if !recent[i].CreatedAt.Equal(recent[j].CreatedAt) {
			return recent[i].CreatedAt.After(recent[j].CreatedAt)
		}
		return recent[i].ID > recent[j].ID
	})
	if limit >= 0 && len(recent) > limit {
		recent = recent[:limit]
	}
	results := make([]core.QueryResult, 0, len(recent))
	for _, h := range recent {
		results = append(results, s.result(h, nil))
	}
	sortByTimestamp(results)
	return results, nil
}

func (s *MemoryStore) HasAnyEmbedding(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.highlights {
		if !core.IsZeroVector(h.Embedding) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListVideos(ctx context.Context) ([]core.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	videos := make([]core.Video, 0, len(s.videos))
	for _, v := range s.videos {
		videos = append(videos, v)
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].ID < videos[j].ID })
	return videos, nil
}

func (s *MemoryStore) HighlightsByVideo(ctx context.Context, videoID int64) ([]core.Highlight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.videos[videoID]; !ok {
		return nil, core.ErrVideoNotFound
	}
	var out []core.Highlight
	for _, h := range s.highlights {
		if h.VideoID == videoID {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (s *MemoryStore) DeleteVideo(ctx context.Context, videoID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[videoID]; !ok {
		return core.ErrVideoNotFound
	}
	delete(s.videos, videoID)
	kept := s.highlights[:0]
	for _, h := range s.highlights {
		if h.VideoID != videoID {
			kept = append(kept, h)
		}
	}
	s.highlights = kept
	return nil
}

func (s *MemoryStore) Close() error { return nil }
