package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"videoHighlights/core"
)

// PgVectorStore PostgreSQL + pgvector 存储
type PgVectorStore struct {
	pool      *pgxpool.Pool
	dimension int

	stopOnce sync.Once
	stop     chan struct{}
}

const highlightColumns = `h.id, h.video_id, h.timestamp, h.end_timestamp, h.description, h.summary, h.created_at, v.filename`

func NewPgVectorStore(ctx context.Context, dbURL string, dimension int) (*PgVectorStore, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PgVectorStore{pool: pool, dimension: dimension, stop: make(chan struct{})}
	if err := s.ensureTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// 启动索引维护
	s.ScheduleIndexMaintenance(30 * time.Minute)
	return s, nil
}

func (s *PgVectorStore) ensureTables(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS videos (
			id BIGSERIAL PRIMARY KEY,
			filename TEXT NOT NULL,
			duration DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS highlights (
			id BIGSERIAL PRIMARY KEY,
			video_id BIGINT NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
			timestamp DOUBLE PRECISION NOT NULL,
			end_timestamp DOUBLE PRECISION NOT NULL DEFAULT 0,
			description TEXT NOT NULL,
			summary TEXT NOT NULL,
			embedding vector(%d),
			has_embedding BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS idx_highlights_video_id ON highlights (video_id)`,
		`CREATE INDEX IF NOT EXISTS idx_highlights_created_at ON highlights (created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_highlights_fts ON highlights
			USING gin (to_tsvector('english', description || ' ' || summary))`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PgVectorStore) CreateVideo(ctx context.Context, filename string, duration float64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO videos (filename, duration) VALUES ($1, $2) RETURNING id`,
		filename, duration).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert video: %w", err)
	}
	return id, nil
}

func (s *PgVectorStore) CreateHighlight(ctx context.Context, h *core.Highlight) error {
	hasEmbedding := len(h.Embedding) > 0 && !core.IsZeroVector(h.Embedding)
	var embedding any
	if len(h.Embedding) > 0 {
		embedding = pgvector.NewVector(h.Embedding)
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO highlights (video_id, timestamp, end_timestamp, description, summary, embedding, has_embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, h.VideoID, h.Timestamp, h.EndTimestamp, h.Description, h.Summary, embedding, hasEmbedding).Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert highlight: %w", err)
	}
	return nil
}

func (s *PgVectorStore) SearchByVector(ctx context.Context, vec []float32, limit int) ([]core.QueryResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+highlightColumns+`, 1 - (h.embedding <=> $1) AS relevance
		FROM highlights h JOIN videos v ON v.id = h.video_id
		WHERE h.has_embedding
		ORDER BY h.embedding <=> $1
		LIMIT $2
	`, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return scanResults(rows, true)
}

func (s *PgVectorStore) SearchByText(ctx context.Context, query string, limit int) ([]core.QueryResult, error) {
	// plainto_tsquery 生成 AND 查询，替换为 OR 使任一词命中即可
	rows, err := s.pool.Query(ctx, `
		WITH q AS (
			SELECT replace(plainto_tsquery('english', $1)::text, '&', '|')::tsquery AS query
		)
		SELECT `+highlightColumns+`,
			ts_rank_cd(to_tsvector('english', h.description || ' ' || h.summary), q.query, 32) AS relevance
		FROM highlights h JOIN videos v ON v.id = h.video_id, q
		WHERE to_tsvector('english', h.description || ' ' || h.summary) @@ q.query
		ORDER BY relevance DESC, h.id ASC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	return scanResults(rows, true)
}

func (s *PgVectorStore) ListRecent(ctx context.Context, limit int) ([]core.QueryResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT * FROM (
			SELECT `+highlightColumns+`
			FROM highlights h JOIN videos v ON v.id = h.video_id
			ORDER BY h.created_at DESC, h.id DESC
			LIMIT $1
		) recent
		ORDER BY recent.timestamp ASC, recent.id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent highlights: %w", err)
	}
	return scanResults(rows, false)
}

func scanResults(rows pgx.Rows, withRelevance bool) ([]core.QueryResult, error) {
	defer rows.Close()
	var results []core.QueryResult
	for rows.Next() {
		var r core.QueryResult
		dest := []any{&r.ID, &r.VideoID, &r.Timestamp, &r.EndTimestamp, &r.Description, &r.Summary, &r.CreatedAt, &r.VideoFilename}
		var rel float64
		if withRelevance {
			dest = append(dest, &rel)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan highlight: %w", err)
		}
		if withRelevance {
			r.Relevance = core.Float64Ptr(clamp01(rel))
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PgVectorStore) HasAnyEmbedding(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM highlights WHERE has_embedding)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check embeddings: %w", err)
	}
	return exists, nil
}

func (s *PgVectorStore) ListVideos(ctx context.Context) ([]core.Video, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, filename, duration, created_at FROM videos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()
	var videos []core.Video
	for rows.Next() {
		var v core.Video
		if err := rows.Scan(&v.ID, &v.Filename, &v.Duration, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func (s *PgVectorStore) HighlightsByVideo(ctx context.Context, videoID int64) ([]core.Highlight, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM videos WHERE id = $1)`, videoID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check video: %w", err)
	}
	if !exists {
		return nil, core.ErrVideoNotFound
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+highlightColumns+`
		FROM highlights h JOIN videos v ON v.id = h.video_id
		WHERE h.video_id = $1
		ORDER BY h.timestamp ASC, h.id ASC
	`, videoID)
	if err != nil {
		return nil, fmt.Errorf("video highlights: %w", err)
	}
	results, err := scanResults(rows, false)
	if err != nil {
		return nil, err
	}
	out := make([]core.Highlight, 0, len(results))
	for _, r := range results {
		out = append(out, r.Highlight)
	}
	return out, nil
}

func (s *PgVectorStore) DeleteVideo(ctx context.Context, videoID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM videos WHERE id = $1`, videoID)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrVideoNotFound
	}
	return nil
}

func (s *PgVectorStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.pool.Close()
	return nil
}

// ---------------- 索引维护 ----------------

// IndexStatus 向量索引状态
type IndexStatus struct {
	VectorIndexExists       bool
	TotalHighlights         int
	HighlightsWithEmbedding int
}

// GetIndexStatus 获取索引状态
func (s *PgVectorStore) GetIndexStatus(ctx context.Context) (IndexStatus, error) {
	var st IndexStatus
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE tablename = 'highlights' AND indexname = 'idx_highlights_embedding'
		)`).Scan(&st.VectorIndexExists)
	if err != nil {
		return st, fmt.Errorf("check index existence: %w", err)
	}
	err = s.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE has_embedding) FROM highlights`).
		Scan(&st.TotalHighlights, &st.HighlightsWithEmbedding)
	if err != nil {
		return st, fmt.Errorf("count highlights: %w", err)
	}
	return st, nil
}

// ivfflatLists 根据数据量调整 ivfflat 列表数
func ivfflatLists(count int) int {
	switch {
	case count < 1000:
		return 10
	case count > 10000:
		lists := count / 100
		if lists > 1000 {
			lists = 1000
		}
		return lists
	default:
		return 100
	}
}

// RebuildVectorIndex 重建 ivfflat 余弦索引
func (s *PgVectorStore) RebuildVectorIndex(ctx context.Context) error {
	st, err := s.GetIndexStatus(ctx)
	if err != nil {
		return err
	}
	if st.HighlightsWithEmbedding == 0 {
		log.Printf("[storage] no embeddings found, skipping vector index creation")
		return nil
	}
	lists := ivfflatLists(st.HighlightsWithEmbedding)

	if _, err := s.pool.Exec(ctx, `DROP INDEX IF EXISTS idx_highlights_embedding`); err != nil {
		log.Printf("[storage] warning: failed to drop vector index: %v", err)
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX idx_highlights_embedding ON highlights
		USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d)
		WHERE has_embedding`, lists))
	if err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}
	log.Printf("[storage] created vector index with %d lists for %d embeddings", lists, st.HighlightsWithEmbedding)
	return nil
}

// AutoRebuildIndexIfNeeded 有向量但缺少索引时重建
func (s *PgVectorStore) AutoRebuildIndexIfNeeded(ctx context.Context) error {
	st, err := s.GetIndexStatus(ctx)
	if err != nil {
		return err
	}
	if !st.VectorIndexExists && st.HighlightsWithEmbedding > 0 {
		log.Printf("[storage] vector index missing but embeddings exist, rebuilding")
		return s.RebuildVectorIndex(ctx)
	}
	return nil
}

// ScheduleIndexMaintenance 定期检查索引，Close 后停止
func (s *PgVectorStore) ScheduleIndexMaintenance(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if err := s.AutoRebuildIndexIfNeeded(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("[storage] auto index rebuild failed: %v", err)
				}
				cancel()
			}
		}
	}()
}
