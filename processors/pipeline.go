package processors

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"videoHighlights/config"
	"videoHighlights/core"
)

// Describer 片段描述生成
type Describer interface {
	Describe(ctx context.Context, frames []core.Frame, transcript string, start, end float64) core.HighlightText
}

// Embedder 片段向量生成
type Embedder interface {
	EmbedHighlight(ctx context.Context, description, summary string) []float32
}

// HighlightStore 流水线需要的写入接口
type HighlightStore interface {
	CreateVideo(ctx context.Context, filename string, duration float64) (int64, error)
	CreateHighlight(ctx context.Context, h *core.Highlight) error
	// DeleteVideo 处理失败时删除已写入的视频记录及其高光
	DeleteVideo(ctx context.Context, videoID int64) error
}

// PipelineConfig 流水线参数
type PipelineConfig struct {
	Segmenter    SceneSegmenterConfig
	SpanWorkers  int
	VideoWorkers int
}

// HighlightPipeline 高光提取流水线：解码 -> 场景切分 -> 逐片段转写/描述/向量 -> 按顺序写入
type HighlightPipeline struct {
	media       MediaSource
	transcriber SpeechTranscriber
	describer   Describer
	embedder    Embedder
	store       HighlightStore
	segmenter   *SceneSegmenter
	config      PipelineConfig
}

func NewHighlightPipeline(media MediaSource, transcriber SpeechTranscriber, describer Describer, embedder Embedder, store HighlightStore, cfg PipelineConfig) *HighlightPipeline {
	if cfg.SpanWorkers <= 0 {
		cfg.SpanWorkers = 4
	}
	if cfg.VideoWorkers <= 0 {
		cfg.VideoWorkers = 2
	}
	return &HighlightPipeline{
		media:       media,
		transcriber: transcriber,
		describer:   describer,
		embedder:    embedder,
		store:       store,
		segmenter:   NewSceneSegmenter(cfg.Segmenter),
		config:      cfg,
	}
}

// BuildPipeline 按配置组装 ffmpeg 解码与模型组件
func BuildPipeline(cfg *config.Config, clients ModelClients, store HighlightStore) *HighlightPipeline {
	return NewHighlightPipeline(
		NewFFmpegSource(cfg.AnalysisFPS),
		clients.Transcriber,
		clients.Describer,
		clients.Embedder,
		store,
		PipelineConfig{
			Segmenter: SceneSegmenterConfig{
				MinDuration:    cfg.HighlightMinDuration,
				MaxDuration:    cfg.HighlightMaxDuration,
				PixelThreshold: cfg.PixelThreshold,
				SceneThreshold: cfg.SceneThreshold,
			},
			SpanWorkers:  cfg.SpanWorkers,
			VideoWorkers: cfg.VideoWorkers,
		},
	)
}

// ProcessVideo 处理单个视频，返回视频 id 与按时间顺序写入的高光
func (p *HighlightPipeline) ProcessVideo(ctx context.Context, path string) (int64, []core.Highlight, error) {
	name := filepath.Base(path)
	start := time.Now()

	log.Printf("[pipeline] %s - Loading video", name)
	frames, fps, duration, err := p.media.OpenFrames(ctx, path)
	if err != nil {
		return 0, nil, err
	}
	log.Printf("[pipeline] %s - %d frames at %.2f fps, duration %.2fs", name, len(frames), fps, duration)

	log.Printf("[pipeline] %s - Detecting scene changes", name)
	spans := p.segmenter.Segment(frames, duration)
	log.Printf("[pipeline] %s - %d highlight spans", name, len(spans))

	videoID, err := p.store.CreateVideo(ctx, name, duration)
	if err != nil {
		return 0, nil, fmt.Errorf("create video record: %w", err)
	}

	log.Printf("[pipeline] %s - Generating highlight descriptions", name)
	highlights := make([]core.Highlight, len(spans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.SpanWorkers)
	for i, span := range spans {
		g.Go(func() error {
			h, err := p.processSpan(gctx, path, frames, fps, span)
			if err != nil {
				return err
			}
			highlights[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.discardVideo(ctx, name, videoID)
		return 0, nil, fmt.Errorf("process spans of %s: %w", name, err)
	}

	// 单一写入路径，保证同一视频的高光按时间顺序写入
	log.Printf("[pipeline] %s - Saving highlights", name)
	for i := range highlights {
		highlights[i].VideoID = videoID
		if err := p.store.CreateHighlight(ctx, &highlights[i]); err != nil {
			p.discardVideo(ctx, name, videoID)
			return 0, nil, fmt.Errorf("save highlight %d of %s: %w", i, name, err)
		}
	}

	log.Printf("[pipeline] %s - Done: %d highlights in %v", name, len(highlights), time.Since(start).Round(time.Millisecond))
	return videoID, highlights, nil
}

// discardVideo 删除未完成的视频记录，重试时不会留下重复的空视频
func (p *HighlightPipeline) discardVideo(ctx context.Context, name string, videoID int64) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.store.DeleteVideo(cleanupCtx, videoID); err != nil {
		log.Printf("[pipeline] %s - failed to remove incomplete video %d: %v", name, videoID, err)
		return
	}
	log.Printf("[pipeline] %s - removed incomplete video %d", name, videoID)
}

// processSpan 单个片段的外部调用都在这里完成，只有 ctx 取消会返回错误
func (p *HighlightPipeline) processSpan(ctx context.Context, path string, frames []core.Frame, fps float64, span core.Span) (core.Highlight, error) {
	if err := ctx.Err(); err != nil {
		return core.Highlight{}, err
	}

	var sampled []core.Frame
	for _, idx := range SampleFrameIndices(span, fps, len(frames)) {
		sampled = append(sampled, frames[idx])
	}

	transcript := ""
	audio, err := p.media.ExtractAudioRange(ctx, path, span.Start, span.End)
	if err != nil {
		log.Printf("[pipeline] audio %.2fs-%.2fs unavailable: %v", span.Start, span.End, err)
	} else if len(audio) > 0 && p.transcriber != nil {
		text, err := p.transcriber.Transcribe(ctx, audio)
		if err != nil {
			if ctx.Err() != nil {
				return core.Highlight{}, ctx.Err()
			}
			log.Printf("[pipeline] transcription %.2fs-%.2fs failed: %v", span.Start, span.End, err)
		}
		transcript = text
	}
	if err := ctx.Err(); err != nil {
		return core.Highlight{}, err
	}

	text := p.describer.Describe(ctx, sampled, transcript, span.Start, span.End)
	embedding := p.embedder.EmbedHighlight(ctx, text.Description, text.Summary)
	if err := ctx.Err(); err != nil {
		return core.Highlight{}, err
	}

	return core.Highlight{
		Timestamp:    span.Start,
		EndTimestamp: span.End,
		Description:  text.Description,
		Summary:      text.Summary,
		Embedding:    embedding,
	}, nil
}

const maxSampledFrames = 5

// SampleFrameIndices 在区间内均匀取最多 5 帧，端点为首帧与末帧
func SampleFrameIndices(span core.Span, fps float64, frameCount int) []int {
	startFrame := int(span.Start * fps)
	endFrame := int(span.End * fps)
	if endFrame > frameCount {
		endFrame = frameCount
	}
	n := min(maxSampledFrames, endFrame-startFrame)
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []int{startFrame}
	}
	last := endFrame - 1
	step := float64(last-startFrame) / float64(n-1)
	indices := make([]int, n)
	for i := range indices {
		indices[i] = int(float64(startFrame) + float64(i)*step)
	}
	return indices
}
