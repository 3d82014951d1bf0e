package processors

import (
	"image"
	"math"

	"videoHighlights/core"
)

// SceneSegmenterConfig 场景切分参数
type SceneSegmenterConfig struct {
	MinDuration    float64 // 最短高光时长（秒）
	MaxDuration    float64 // 最长高光时长（秒）
	PixelThreshold int     // 灰度差超过该值视为变化像素
	SceneThreshold float64 // 变化像素百分比超过该值视为场景切换
}

// DefaultSceneSegmenterConfig 默认参数
func DefaultSceneSegmenterConfig() SceneSegmenterConfig {
	return SceneSegmenterConfig{
		MinDuration:    1.0,
		MaxDuration:    10.0,
		PixelThreshold: 30,
		SceneThreshold: 30,
	}
}

// SceneSegmenter 基于相邻帧像素差的场景切分器，纯计算无副作用
type SceneSegmenter struct {
	config SceneSegmenterConfig
}

func NewSceneSegmenter(config SceneSegmenterConfig) *SceneSegmenter {
	return &SceneSegmenter{config: config}
}

// Segment 切分为高光区间，少于两帧时返回空
func (s *SceneSegmenter) Segment(frames []core.Frame, duration float64) []core.Span {
	if len(frames) < 2 {
		return nil
	}
	return s.BuildSpans(s.DetectSceneChanges(frames), duration)
}

// DetectSceneChanges 返回发生场景切换的帧时间戳
func (s *SceneSegmenter) DetectSceneChanges(frames []core.Frame) []float64 {
	if len(frames) < 2 {
		return nil
	}
	var changes []float64
	prev := toGray(frames[0].Image)
	for i := 1; i < len(frames); i++ {
		cur := toGray(frames[i].Image)
		if changeRatio(prev, cur, s.config.PixelThreshold)*100 > s.config.SceneThreshold {
			changes = append(changes, frames[i].Timestamp)
		}
		prev = cur
	}
	return changes
}

// BuildSpans 将场景切换点转换为区间
func (s *SceneSegmenter) BuildSpans(changes []float64, duration float64) []core.Span {
	minDur, maxDur := s.config.MinDuration, s.config.MaxDuration
	if duration <= 0 {
		return nil
	}
	if len(changes) == 0 {
		return []core.Span{{Start: 0, End: math.Min(duration, maxDur)}}
	}

	var spans []core.Span
	add := func(start, end float64) {
		start = clamp(start, 0, duration)
		end = clamp(math.Min(end, start+maxDur), 0, duration)
		if end-start >= minDur && end > start {
			spans = append(spans, core.Span{Start: start, End: end})
		}
	}

	// 第一个切换点之前
	if changes[0] >= minDur {
		add(0, changes[0])
	}
	for i := 0; i+1 < len(changes); i++ {
		if changes[i+1]-changes[i] >= minDur {
			add(changes[i], changes[i+1])
		}
	}
	last := changes[len(changes)-1]
	if duration-last >= minDur {
		add(last, duration)
	}
	return spans
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// toGray 转为灰度，权重与 BT.601 一致
func toGray(img image.Image) *image.Gray {
	if img == nil {
		return image.NewGray(image.Rect(0, 0, 0, 0))
	}
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			lum := (299*r + 587*g + 114*bl) / 1000
			gray.Pix[y*gray.Stride+x] = uint8(lum >> 8)
		}
	}
	return gray
}

// changeRatio 变化像素占比，尺寸不同视为完全变化
func changeRatio(a, b *image.Gray, threshold int) float64 {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return 1
	}
	total := ab.Dx() * ab.Dy()
	if total == 0 {
		return 0
	}
	changed := 0
	for y := 0; y < ab.Dy(); y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+ab.Dx()]
		rb := b.Pix[y*b.Stride : y*b.Stride+bb.Dx()]
		for x := range ra {
			d := int(ra[x]) - int(rb[x])
			if d < 0 {
				d = -d
			}
			if d > threshold {
				changed++
			}
		}
	}
	return float64(changed) / float64(total)
}
