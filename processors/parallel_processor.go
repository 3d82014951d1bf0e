package processors

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"videoHighlights/core"
)

// ProcessBatch 并行处理多个视频；单个视频失败只记录，不影响其他视频
func (p *HighlightPipeline) ProcessBatch(ctx context.Context, paths []string) []core.BatchResult {
	batchID := uuid.NewString()
	results := make([]core.BatchResult, len(paths))
	log.Printf("[batch %s] processing %d videos with %d workers", batchID, len(paths), p.config.VideoWorkers)

	var g errgroup.Group
	g.SetLimit(p.config.VideoWorkers)
	for i, path := range paths {
		g.Go(func() error {
			// 每个视频使用独立的子 context，取消互不影响
			videoCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			start := time.Now()
			videoID, highlights, err := p.ProcessVideo(videoCtx, path)
			res := core.BatchResult{
				BatchID:    batchID,
				VideoPath:  path,
				VideoID:    videoID,
				Highlights: highlights,
				Err:        err,
				Duration:   time.Since(start),
			}
			if err != nil {
				res.Error = err.Error()
				log.Printf("[batch %s] %s failed, skipping: %v", batchID, path, err)
			}
			results[i] = res
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Printf("[batch %s] done: %d succeeded, %d failed", batchID, len(paths)-failed, failed)
	return results
}

// SetVideoWorkers 调整同时处理的视频数，非正数忽略
func (p *HighlightPipeline) SetVideoWorkers(n int) {
	if n > 0 {
		p.config.VideoWorkers = n
	}
}
