package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"videoHighlights/core"
)

// ---------------- Milvus implementation ----------------

// MilvusOptions Milvus 连接参数
type MilvusOptions struct {
	Addr       string
	Username   string
	Password   string
	APIKey     string // Zilliz Cloud
	Collection string
	Dimension  int
}

// MilvusStore 高光与视频分两个集合保存；Milvus 集合必须有向量字段，视频集合使用 2 维占位向量
type MilvusStore struct {
	mc         client.Client
	highlights string
	videos     string
	dim        int
	idMu       sync.Mutex
	lastID     int64
}

const (
	placeholderDim = 2

	// VarChar 字段的最大字节数，写入前按此截断
	filenameMaxLen    = 1024
	descriptionMaxLen = 8192
	summaryMaxLen     = 2048

	// 单次 Query 的结果窗口，按主键分页读取
	queryPageSize = 1000
)

var (
	highlightOutputFields = []string{"id", "video_id", "timestamp", "end_timestamp", "description", "summary", "has_embedding", "created_at"}
	videoOutputFields     = []string{"id", "filename", "duration", "created_at"}
)

func NewMilvusStore(ctx context.Context, opts MilvusOptions) (*MilvusStore, error) {
	if opts.Addr == "" {
		opts.Addr = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "video_highlights"
	}
	mc, err := client.NewClient(ctx, client.Config{
		Address:  opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		APIKey:   opts.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus: %w", err)
	}

	s := &MilvusStore{
		mc:         mc,
		highlights: opts.Collection,
		videos:     opts.Collection + "_videos",
		dim:        opts.Dimension,
	}
	if err := s.ensureSchemaAndIndex(ctx); err != nil {
		mc.Close()
		return nil, err
	}
	return s, nil
}

func (s *MilvusStore) ensureSchemaAndIndex(ctx context.Context) error {
	videoSchema := entity.NewSchema().WithName(s.videos).
		WithField(entity.NewField().WithName("id").WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName("filename").WithDataType(entity.FieldTypeVarChar).WithMaxLength(filenameMaxLen)).
		WithField(entity.NewField().WithName("duration").WithDataType(entity.FieldTypeDouble)).
		WithField(entity.NewField().WithName("created_at").WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(placeholderDim))

	highlightSchema := entity.NewSchema().WithName(s.highlights).
		WithField(entity.NewField().WithName("id").WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName("video_id").WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName("timestamp").WithDataType(entity.FieldTypeDouble)).
		WithField(entity.NewField().WithName("end_timestamp").WithDataType(entity.FieldTypeDouble)).
		WithField(entity.NewField().WithName("description").WithDataType(entity.FieldTypeVarChar).WithMaxLength(descriptionMaxLen)).
		WithField(entity.NewField().WithName("summary").WithDataType(entity.FieldTypeVarChar).WithMaxLength(summaryMaxLen)).
		WithField(entity.NewField().WithName("has_embedding").WithDataType(entity.FieldTypeBool)).
		WithField(entity.NewField().WithName("created_at").WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))

	for _, schema := range []*entity.Schema{videoSchema, highlightSchema} {
		has, err := s.mc.HasCollection(ctx, schema.CollectionName)
		if err != nil {
			return err
		}
		if !has {
			if err := s.mc.CreateCollection(ctx, schema, int32(2), client.WithConsistencyLevel(entity.ClStrong)); err != nil {
				return fmt.Errorf("create collection %s: %w", schema.CollectionName, err)
			}
		}
		idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
		if err != nil {
			return fmt.Errorf("new hnsw index: %w", err)
		}
		if err := s.mc.CreateIndex(ctx, schema.CollectionName, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
		if err := s.mc.LoadCollection(ctx, schema.CollectionName, false); err != nil {
			return fmt.Errorf("load collection: %w", err)
		}
	}
	return nil
}

// nextID 单调递增的主键，同时体现写入顺序
func (s *MilvusStore) nextID() int64 {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	id := time.Now().UnixMicro()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

func (s *MilvusStore) CreateVideo(ctx context.Context, filename string, duration float64) (int64, error) {
	id := s.nextID()
	_, err := s.mc.Insert(ctx, s.videos, "",
		entity.NewColumnInt64("id", []int64{id}),
		entity.NewColumnVarChar("filename", []string{fitVarChar(filename, filenameMaxLen)}),
		entity.NewColumnDouble("duration", []float64{duration}),
		entity.NewColumnInt64("created_at", []int64{time.Now().UnixNano()}),
		entity.NewColumnFloatVector("vector", placeholderDim, [][]float32{{1, 0}}),
	)
	if err != nil {
		return 0, fmt.Errorf("insert video: %w", err)
	}
	return id, nil
}

func (s *MilvusStore) CreateHighlight(ctx context.Context, h *core.Highlight) error {
	vec := h.Embedding
	if len(vec) != s.dim {
		vec = make([]float32, s.dim)
	}
	hasEmbedding := !core.IsZeroVector(vec)
	id := s.nextID()
	now := time.Now()
	_, err := s.mc.Insert(ctx, s.highlights, "",
		entity.NewColumnInt64("id", []int64{id}),
		entity.NewColumnInt64("video_id", []int64{h.VideoID}),
		entity.NewColumnDouble("timestamp", []float64{h.Timestamp}),
		entity.NewColumnDouble("end_timestamp", []float64{h.EndTimestamp}),
		entity.NewColumnVarChar("description", []string{fitVarChar(h.Description, descriptionMaxLen)}),
		entity.NewColumnVarChar("summary", []string{fitVarChar(h.Summary, summaryMaxLen)}),
		entity.NewColumnBool("has_embedding", []bool{hasEmbedding}),
		entity.NewColumnInt64("created_at", []int64{now.UnixNano()}),
		entity.NewColumnFloatVector("vector", s.dim, [][]float32{vec}),
	)
	if err != nil {
		return fmt.Errorf("insert highlight: %w", err)
	}
	h.ID = id
	h.CreatedAt = now
	return nil
}

// fitVarChar 按字节截断到 VarChar 上限，不截断多字节字符
func fitVarChar(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// columnIndex 按字段名索引列
func columnIndex(cols []entity.Column) map[string]entity.Column {
	m := make(map[string]entity.Column, len(cols))
	for _, c := range cols {
		m[c.Name()] = c
	}
	return m
}

func int64At(cols map[string]entity.Column, name string, i int) int64 {
	if c, ok := cols[name].(*entity.ColumnInt64); ok {
		if data := c.Data(); i < len(data) {
			return data[i]
		}
	}
	return 0
}

func doubleAt(cols map[string]entity.Column, name string, i int) float64 {
	if c, ok := cols[name].(*entity.ColumnDouble); ok {
		if data := c.Data(); i < len(data) {
			return data[i]
		}
	}
	return 0
}

func varcharAt(cols map[string]entity.Column, name string, i int) string {
	if c, ok := cols[name].(*entity.ColumnVarChar); ok {
		if data := c.Data(); i < len(data) {
			return data[i]
		}
	}
	return ""
}

func highlightAt(cols map[string]entity.Column, i int) core.Highlight {
	return core.Highlight{
		ID:           int64At(cols, "id", i),
		VideoID:      int64At(cols, "video_id", i),
		Timestamp:    doubleAt(cols, "timestamp", i),
		EndTimestamp: doubleAt(cols, "end_timestamp", i),
		Description:  varcharAt(cols, "description", i),
		Summary:      varcharAt(cols, "summary", i),
		CreatedAt:    time.Unix(0, int64At(cols, "created_at", i)),
	}
}

func columnLen(cols []entity.Column) int {
	if len(cols) == 0 {
		return 0
	}
	return cols[0].Len()
}

// pageExpr 在过滤条件上追加主键游标
func pageExpr(filter string, afterID int64) string {
	if filter == "" {
		return fmt.Sprintf("id > %d", afterID)
	}
	return fmt.Sprintf("(%s) && id > %d", filter, afterID)
}

// queryAll 以主键为游标分页读取集合，fields 必须包含 id
func (s *MilvusStore) queryAll(ctx context.Context, collection, filter string, fields []string, each func(cols map[string]entity.Column, i int)) error {
	var lastID int64
	for {
		rs, err := s.mc.Query(ctx, collection, []string{}, pageExpr(filter, lastID), fields, client.WithLimit(queryPageSize))
		if err != nil {
			return err
		}
		n := columnLen(rs)
		cols := columnIndex(rs)
		prev := lastID
		for i := 0; i < n; i++ {
			each(cols, i)
			if id := int64At(cols, "id", i); id > lastID {
				lastID = id
			}
		}
		if n < queryPageSize || lastID == prev {
			return nil
		}
	}
}

// queryHighlights 按过滤条件读取高光，filter 为空时读取全部
func (s *MilvusStore) queryHighlights(ctx context.Context, filter string) ([]core.Highlight, error) {
	out := []core.Highlight{}
	err := s.queryAll(ctx, s.highlights, filter, highlightOutputFields, func(cols map[string]entity.Column, i int) {
		out = append(out, highlightAt(cols, i))
	})
	if err != nil {
		return nil, fmt.Errorf("query highlights: %w", err)
	}
	return out, nil
}

// filenames 视频 id -> 文件名
func (s *MilvusStore) filenames(ctx context.Context) (map[int64]string, error) {
	videos, err := s.ListVideos(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[int64]string, len(videos))
	for _, v := range videos {
		m[v.ID] = v.Filename
	}
	return m, nil
}

func (s *MilvusStore) SearchByVector(ctx context.Context, vec []float32, limit int) ([]core.QueryResult, error) {
	sp, err := entity.NewIndexHNSWSearchParam(74)
	if err != nil {
		return nil, fmt.Errorf("search param: %w", err)
	}
	res, err := s.mc.Search(ctx, s.highlights, []string{}, "has_embedding == true", highlightOutputFields,
		[]entity.Vector{entity.FloatVector(vec)}, "vector", entity.COSINE, limit, sp)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	names, err := s.filenames(ctx)
	if err != nil {
		return nil, err
	}

	var results []core.QueryResult
	for _, r := range res {
		cols := columnIndex(r.Fields)
		for i := 0; i < r.ResultCount; i++ {
			h := highlightAt(cols, i)
			results = append(results, core.QueryResult{
				Highlight:     h,
				VideoFilename: names[h.VideoID],
				Relevance:     core.Float64Ptr(clamp01(float64(r.Scores[i]))),
			})
		}
	}
	sortByRelevance(results)
	return limitResults(results, limit), nil
}

func (s *MilvusStore) SearchByText(ctx context.Context, query string, limit int) ([]core.QueryResult, error) {
	all, err := s.queryHighlights(ctx, "")
	if err != nil {
		return nil, err
	}
	names, err := s.filenames(ctx)
	if err != nil {
		return nil, err
	}
	var results []core.QueryResult
	for _, h := range all {
		score := KeywordScore(query, highlightText(h))
		if score <= 0 {
			continue
		}
		results = append(results, core.QueryResult{Highlight: h, VideoFilename: names[h.VideoID], Relevance: core.Float64Ptr(score)})
	}
	sortByRelevance(results)
	return limitResults(results, limit), nil
}

func (s *MilvusStore) ListRecent(ctx context.Context, limit int) ([]core.QueryResult, error) {
	all, err := s.queryHighlights(ctx, "")
	if err != nil {
		return nil, err
	}
	names, err := s.filenames(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	results := make([]core.QueryResult, 0, len(all))
	for _, h := range all {
		results = append(results, core.QueryResult{Highlight: h, VideoFilename: names[h.VideoID]})
	}
	sortByTimestamp(results)
	return results, nil
}

func (s *MilvusStore) HasAnyEmbedding(ctx context.Context) (bool, error) {
	rs, err := s.mc.Query(ctx, s.highlights, []string{}, "has_embedding == true", []string{"id"}, client.WithLimit(1))
	if err != nil {
		return false, fmt.Errorf("check embeddings: %w", err)
	}
	return columnLen(rs) > 0, nil
}

func (s *MilvusStore) ListVideos(ctx context.Context) ([]core.Video, error) {
	videos := []core.Video{}
	err := s.queryAll(ctx, s.videos, "", videoOutputFields, func(cols map[string]entity.Column, i int) {
		videos = append(videos, core.Video{
			ID:        int64At(cols, "id", i),
			Filename:  varcharAt(cols, "filename", i),
			Duration:  doubleAt(cols, "duration", i),
			CreatedAt: time.Unix(0, int64At(cols, "created_at", i)),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].ID < videos[j].ID })
	return videos, nil
}

func (s *MilvusStore) videoExists(ctx context.Context, videoID int64) (bool, error) {
	rs, err := s.mc.Query(ctx, s.videos, []string{}, fmt.Sprintf("id == %d", videoID), []string{"id"}, client.WithLimit(1))
	if err != nil {
		return false, fmt.Errorf("check video: %w", err)
	}
	return columnLen(rs) > 0, nil
}

func (s *MilvusStore) HighlightsByVideo(ctx context.Context, videoID int64) ([]core.Highlight, error) {
	ok, err := s.videoExists(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.ErrVideoNotFound
	}
	out, err := s.queryHighlights(ctx, fmt.Sprintf("video_id == %d", videoID))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// DeleteVideo Milvus 没有外键，先删高光再删视频
func (s *MilvusStore) DeleteVideo(ctx context.Context, videoID int64) error {
	ok, err := s.videoExists(ctx, videoID)
	if err != nil {
		return err
	}
	if !ok {
		return core.ErrVideoNotFound
	}
	if err := s.mc.Delete(ctx, s.highlights, "", fmt.Sprintf("video_id == %d", videoID)); err != nil {
		return fmt.Errorf("delete highlights: %w", err)
	}
	if err := s.mc.Delete(ctx, s.videos, "", fmt.Sprintf("id == %d", videoID)); err != nil {
		return fmt.Errorf("delete video: %w", err)
	}
	return nil
}

func (s *MilvusStore) Close() error {
	return s.mc.Close()
}
