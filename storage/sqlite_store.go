package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"videoHighlights/core"
)

// SQLiteStore 单文件存储，向量以 float32 小端 BLOB 保存，检索在进程内打分
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS videos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		createdAt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS highlights (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		videoId INTEGER NOT NULL REFERENCES videos(id) ON DELETE CASCADE,
		timestamp REAL NOT NULL,
		endTimestamp REAL NOT NULL DEFAULT 0,
		description TEXT NOT NULL,
		summary TEXT NOT NULL,
		embedding BLOB,
		hasEmbedding INTEGER NOT NULL DEFAULT 0,
		createdAt REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_highlights_video ON highlights(videoId);
	CREATE INDEX IF NOT EXISTS idx_highlights_created ON highlights(createdAt DESC);
`

// NewSQLiteStore 打开数据库并建表，path 为 ":memory:" 时使用内存库
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// 单连接串行写入，内存库也只有一份
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnixSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func (s *SQLiteStore) CreateVideo(ctx context.Context, filename string, duration float64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO videos (filename, duration, createdAt) VALUES (?, ?, ?)`,
		filename, duration, unixSeconds(time.Now()))
	if err != nil {
		return 0, fmt.Errorf("insert video: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) CreateHighlight(ctx context.Context, h *core.Highlight) error {
	now := time.Now()
	hasEmbedding := len(h.Embedding) > 0 && !core.IsZeroVector(h.Embedding)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO highlights (videoId, timestamp, endTimestamp, description, summary, embedding, hasEmbedding, createdAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, h.VideoID, h.Timestamp, h.EndTimestamp, h.Description, h.Summary, encodeVector(h.Embedding), hasEmbedding, unixSeconds(now))
	if err != nil {
		return fmt.Errorf("insert highlight: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert highlight: %w", err)
	}
	h.ID = id
	h.CreatedAt = now
	return nil
}

const sqliteHighlightColumns = `h.id, h.videoId, h.timestamp, h.endTimestamp, h.description, h.summary, h.createdAt, v.filename`

// scanRow 读取一行，withEmbedding 时最后一列为向量 BLOB
func scanRow(rows *sql.Rows, withEmbedding bool) (core.QueryResult, error) {
	var r core.QueryResult
	var created float64
	dest := []any{&r.ID, &r.VideoID, &r.Timestamp, &r.EndTimestamp, &r.Description, &r.Summary, &created, &r.VideoFilename}
	var blob []byte
	if withEmbedding {
		dest = append(dest, &blob)
	}
	if err := rows.Scan(dest...); err != nil {
		return r, fmt.Errorf("scan highlight: %w", err)
	}
	r.CreatedAt = fromUnixSeconds(created)
	if withEmbedding {
		r.Embedding = decodeVector(blob)
	}
	return r, nil
}

func (s *SQLiteStore) SearchByVector(ctx context.Context, vec []float32, limit int) ([]core.QueryResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteHighlightColumns+`, h.embedding
		FROM highlights h JOIN videos v ON v.id = h.videoId
		WHERE h.hasEmbedding = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var results []core.QueryResult
	for rows.Next() {
		r, err := scanRow(rows, true)
		if err != nil {
			return nil, err
		}
		r.Relevance = core.Float64Ptr(clamp01(CosineSimilarity(vec, r.Embedding)))
		r.Embedding = nil
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortByRelevance(results)
	return limitResults(results, limit), nil
}

func (s *SQLiteStore) SearchByText(ctx context.Context, query string, limit int) ([]core.QueryResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteHighlightColumns+`
		FROM highlights h JOIN videos v ON v.id = h.videoId
	`)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer rows.Close()

	var results []core.QueryResult
	for rows.Next() {
		r, err := scanRow(rows, false)
		if err != nil {
			return nil, err
		}
		score := KeywordScore(query, highlightText(r.Highlight))
		if score <= 0 {
			continue
		}
		r.Relevance = core.Float64Ptr(score)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortByRelevance(results)
	return limitResults(results, limit), nil
}

func (s *SQLiteStore) ListRecent(ctx context.Context, limit int) ([]core.QueryResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT `+sqliteHighlightColumns+`
			FROM highlights h JOIN videos v ON v.id = h.videoId
			ORDER BY h.createdAt DESC, h.id DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC, id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent highlights: %w", err)
	}
	defer rows.Close()

	var results []core.QueryResult
	for rows.Next() {
		r, err := scanRow(rows, false)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) HasAnyEmbedding(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM highlights WHERE hasEmbedding = 1)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check embeddings: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStore) ListVideos(ctx context.Context) ([]core.Video, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, filename, duration, createdAt FROM videos ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close()

	var videos []core.Video
	for rows.Next() {
		var v core.Video
		var created float64
		if err := rows.Scan(&v.ID, &v.Filename, &v.Duration, &created); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		v.CreatedAt = fromUnixSeconds(created)
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

func (s *SQLiteStore) HighlightsByVideo(ctx context.Context, videoID int64) ([]core.Highlight, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM videos WHERE id = ?)`, videoID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check video: %w", err)
	}
	if !exists {
		return nil, core.ErrVideoNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteHighlightColumns+`, h.embedding
		FROM highlights h JOIN videos v ON v.id = h.videoId
		WHERE h.videoId = ?
		ORDER BY h.timestamp ASC, h.id ASC
	`, videoID)
	if err != nil {
		return nil, fmt.Errorf("video highlights: %w", err)
	}
	defer rows.Close()

	var out []core.Highlight
	for rows.Next() {
		r, err := scanRow(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, r.Highlight)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteVideo(ctx context.Context, videoID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM videos WHERE id = ?`, videoID)
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	if n == 0 {
		return core.ErrVideoNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
