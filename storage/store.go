package storage

import (
	"context"
	"fmt"
	"log"

	"videoHighlights/config"
	"videoHighlights/core"
)

// Gateway 高光数据的持久化接口
type Gateway interface {
	// CreateVideo 写入视频记录并返回 id，必须先于该视频的任何高光写入
	CreateVideo(ctx context.Context, filename string, duration float64) (int64, error)
	// CreateHighlight 写入一条高光，成功后回填 ID 与 CreatedAt
	CreateHighlight(ctx context.Context, h *core.Highlight) error
	// SearchByVector 按余弦相似度检索，跳过零向量，relevance = 1 - 余弦距离
	SearchByVector(ctx context.Context, vec []float32, limit int) ([]core.QueryResult, error)
	// SearchByText 关键词检索，任一词命中即可，relevance 落在 [0,1]
	SearchByText(ctx context.Context, query string, limit int) ([]core.QueryResult, error)
	// ListRecent 取最近写入的 limit 条，按 timestamp 升序返回，不打分
	ListRecent(ctx context.Context, limit int) ([]core.QueryResult, error)
	HasAnyEmbedding(ctx context.Context) (bool, error)

	ListVideos(ctx context.Context) ([]core.Video, error)
	HighlightsByVideo(ctx context.Context, videoID int64) ([]core.Highlight, error)
	// DeleteVideo 删除视频并级联删除其高光，不存在时返回 core.ErrVideoNotFound
	DeleteVideo(ctx context.Context, videoID int64) error
	Close() error
}

// Open 按配置创建存储后端
func Open(ctx context.Context, cfg *config.Config) (Gateway, error) {
	switch cfg.Store {
	case "", "memory":
		log.Printf("[storage] using in-memory store")
		return NewMemoryStore(), nil
	case "pgvector":
		log.Printf("[storage] using pgvector store")
		return NewPgVectorStore(ctx, cfg.PostgresURL, cfg.EmbeddingDimension)
	case "milvus":
		log.Printf("[storage] using milvus store at %s", cfg.MilvusAddr)
		return NewMilvusStore(ctx, MilvusOptions{
			Addr:       cfg.MilvusAddr,
			Username:   cfg.MilvusUsername,
			Password:   cfg.MilvusPassword,
			APIKey:     cfg.MilvusAPIKey,
			Collection: cfg.MilvusCollection,
			Dimension:  cfg.EmbeddingDimension,
		})
	case "sqlite":
		log.Printf("[storage] using sqlite store at %s", cfg.SQLitePath)
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}
