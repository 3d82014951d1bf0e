package retrieval

import (
	"context"
	"log"
	"time"

	"videoHighlights/core"
)

// Tier 检索链中的一层策略
type Tier interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]core.QueryResult, error)
}

// Store 检索需要的只读接口，storage.Gateway 满足该接口
type Store interface {
	SearchByVector(ctx context.Context, vec []float32, limit int) ([]core.QueryResult, error)
	SearchByText(ctx context.Context, query string, limit int) ([]core.QueryResult, error)
	ListRecent(ctx context.Context, limit int) ([]core.QueryResult, error)
	HasAnyEmbedding(ctx context.Context) (bool, error)
}

// QueryEmbedder 查询文本向量化，失败时返回全零向量
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Engine 按顺序尝试各层，第一个返回非空结果的层即为最终结果
type Engine struct {
	tiers []Tier
}

// NewEngine 默认检索链：向量 -> 全文 -> 最近写入
func NewEngine(store Store, embedder QueryEmbedder) *Engine {
	return NewEngineWithTiers(
		&VectorTier{store: store, embedder: embedder},
		&TextTier{store: store},
		&RecencyTier{store: store},
	)
}

func NewEngineWithTiers(tiers ...Tier) *Engine {
	return &Engine{tiers: tiers}
}

// Search 从不返回错误，某一层出错视为零结果
func (e *Engine) Search(ctx context.Context, query string, limit int) []core.QueryResult {
	for _, tier := range e.tiers {
		start := time.Now()
		results, err := tier.Search(ctx, query, limit)
		if err != nil {
			log.Printf("[retrieval] %s tier failed, trying next: %v", tier.Name(), err)
			continue
		}
		if len(results) == 0 {
			continue
		}
		log.Printf("[retrieval] %s tier returned %d results in %v", tier.Name(), len(results), time.Since(start).Round(time.Millisecond))
		return results
	}
	return nil
}

// VectorTier 余弦相似度检索，库中没有任何有效向量时跳过
type VectorTier struct {
	store    Store
	embedder QueryEmbedder
}

func (t *VectorTier) Name() string { return "vector" }

func (t *VectorTier) Search(ctx context.Context, query string, limit int) ([]core.QueryResult, error) {
	if t.embedder == nil {
		return nil, nil
	}
	has, err := t.store.HasAnyEmbedding(ctx)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}
	vec := t.embedder.Embed(ctx, query)
	if core.IsZeroVector(vec) {
		return nil, nil
	}
	return t.store.SearchByVector(ctx, vec, limit)
}

// TextTier 关键词检索
type TextTier struct {
	store Store
}

func (t *TextTier) Name() string { return "text" }

func (t *TextTier) Search(ctx context.Context, query string, limit int) ([]core.QueryResult, error) {
	return t.store.SearchByText(ctx, query, limit)
}

// RecencyTier 兜底：最近写入的高光，按时间戳升序，不打分
type RecencyTier struct {
	store Store
}

func (t *RecencyTier) Name() string { return "recency" }

func (t *RecencyTier) Search(ctx context.Context, query string, limit int) ([]core.QueryResult, error) {
	results, err := t.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Relevance = nil
	}
	return results, nil
}
