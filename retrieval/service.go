package retrieval

import (
	"context"
	"fmt"
	"log"
	"strings"

	"videoHighlights/core"
)

const (
	DefaultMaxResults = 5
	defaultResultsCap = 50
)

// ChatService 查询接口：校验请求 -> 分层检索 -> 组装回答
type ChatService struct {
	engine     *Engine
	maxResults int
}

func NewChatService(engine *Engine, maxResultsCap int) *ChatService {
	if maxResultsCap <= 0 {
		maxResultsCap = defaultResultsCap
	}
	return &ChatService{engine: engine, maxResults: maxResultsCap}
}

// ResolveLimit 校验 max_results，缺省为 5，超过上限时截断
func (s *ChatService) ResolveLimit(maxResults *int) (int, error) {
	if maxResults == nil {
		return DefaultMaxResults, nil
	}
	n := *maxResults
	if n < 1 {
		return 0, fmt.Errorf("%w: got %d", core.ErrInvalidMaxResults, n)
	}
	return min(n, s.maxResults), nil
}

// Query 空查询在进入检索前直接拒绝
func (s *ChatService) Query(ctx context.Context, req core.ChatRequest) (core.ChatResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return core.ChatResponse{}, core.ErrEmptyQuery
	}
	limit, err := s.ResolveLimit(req.MaxResults)
	if err != nil {
		return core.ChatResponse{}, err
	}

	log.Printf("[retrieval] query %q (max %d)", query, limit)
	results := s.engine.Search(ctx, query, limit)

	highlights := make([]core.HighlightResult, 0, len(results))
	for _, r := range results {
		highlights = append(highlights, core.ToHighlightResult(r))
	}
	log.Printf("[retrieval] found %d highlights for %q", len(highlights), query)
	return core.ChatResponse{
		Answer:          Compose(query, results),
		Highlights:      highlights,
		TotalHighlights: len(highlights),
	}, nil
}
