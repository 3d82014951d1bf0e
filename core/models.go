package core

import (
	"image"
	"time"
)

// ========== 基础数据结构 ==========

// Frame 解码后的一帧画面
type Frame struct {
	Timestamp float64
	Image     image.Image
}

// Span 高光区间，仅在处理过程中存在
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration 区间时长（秒）
func (s Span) Duration() float64 { return s.End - s.Start }

type Video struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	Duration  float64   `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
}

// Highlight 写入后不可修改，只随视频级联删除
type Highlight struct {
	ID           int64     `json:"id"`
	VideoID      int64     `json:"video_id"`
	Timestamp    float64   `json:"timestamp"`
	EndTimestamp float64   `json:"end_timestamp"`
	Description  string    `json:"description"`
	Summary      string    `json:"summary"`
	Embedding    []float32 `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// HighlightText 描述生成结果
type HighlightText struct {
	Description string `json:"description"`
	Summary     string `json:"summary"`
}

// DefaultHighlightSpan 没有记录结束时间时的展示时长
const DefaultHighlightSpan = 10.0

// QueryResult 检索结果，Relevance 为 nil 表示该层不打分
type QueryResult struct {
	Highlight
	VideoFilename string
	Relevance     *float64
}

// End 结束时间，旧数据没有 end_timestamp 时按默认时长估算
func (r QueryResult) End() float64 {
	if r.EndTimestamp > r.Timestamp {
		return r.EndTimestamp
	}
	return r.Timestamp + DefaultHighlightSpan
}

// ========== 查询接口 ==========

type ChatRequest struct {
	Query      string `json:"query"`
	MaxResults *int   `json:"max_results,omitempty"`
}

type HighlightResult struct {
	ID             int64    `json:"id"`
	TimestampStart float64  `json:"timestamp_start"`
	TimestampEnd   float64  `json:"timestamp_end"`
	Transcript     string   `json:"transcript"`
	Summary        string   `json:"summary"`
	VideoID        int64    `json:"video_id"`
	VideoFilename  string   `json:"video_filename"`
	Relevance      *float64 `json:"relevance"`
}

type ChatResponse struct {
	Answer          string            `json:"answer"`
	Highlights      []HighlightResult `json:"highlights"`
	TotalHighlights int               `json:"total_highlights"`
}

// ToHighlightResult 转换为接口返回格式
func ToHighlightResult(r QueryResult) HighlightResult {
	return HighlightResult{
		ID:             r.ID,
		TimestampStart: r.Timestamp,
		TimestampEnd:   r.End(),
		Transcript:     r.Description,
		Summary:        r.Summary,
		VideoID:        r.VideoID,
		VideoFilename:  r.VideoFilename,
		Relevance:      r.Relevance,
	}
}

// ========== 批处理 ==========

// BatchResult 批量处理中单个视频的结果
type BatchResult struct {
	BatchID    string        `json:"batch_id"`
	VideoPath  string        `json:"video_path"`
	VideoID    int64         `json:"video_id"`
	Highlights []Highlight   `json:"highlights"`
	Err        error         `json:"-"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Float64Ptr 返回指针
func Float64Ptr(v float64) *float64 { return &v }
