package processors

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"videoHighlights/core"
	"videoHighlights/utils"
)

// MediaSource 视频解码与音频截取
type MediaSource interface {
	// OpenFrames 解码全部分析帧，返回帧序列、帧率与时长
	OpenFrames(ctx context.Context, path string) ([]core.Frame, float64, float64, error)
	// ExtractAudioRange 截取 [start, end] 的音频为 WAV，没有音轨时返回 nil
	ExtractAudioRange(ctx context.Context, path string, start, end float64) ([]byte, error)
}

// VideoInfo ffprobe 结果
type VideoInfo struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
	HasAudio bool
}

// FFmpegSource 通过 ffmpeg/ffprobe 子进程解码
type FFmpegSource struct {
	// AnalysisFPS 分析帧率，0 表示使用视频原始帧率
	AnalysisFPS float64
	// MaxSide 分析帧最长边
	MaxSide int
	// Audio 提取音频时的预处理滤镜
	Audio AudioPreprocessConfig
}

func NewFFmpegSource(analysisFPS float64) *FFmpegSource {
	return &FFmpegSource{AnalysisFPS: analysisFPS, MaxSide: 512, Audio: DefaultAudioPreprocessConfig()}
}

// Probe 读取视频基本信息
func (s *FFmpegSource) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	output, err := utils.RunFFprobe(ctx, []string{"-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path})
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (*VideoInfo, error) {
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType    string `json:"codec_type"`
			Width        int    `json:"width"`
			Height       int    `json:"height"`
			RFrameRate   string `json:"r_frame_rate"`
			AvgFrameRate string `json:"avg_frame_rate"`
			Duration     string `json:"duration"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &VideoInfo{}
	if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	foundVideo := false
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			info.Width = stream.Width
			info.Height = stream.Height
			info.FPS = parseFrameRate(stream.AvgFrameRate)
			if info.FPS == 0 {
				info.FPS = parseFrameRate(stream.RFrameRate)
			}
			if info.Duration == 0 {
				if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
					info.Duration = d
				}
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !foundVideo || info.Width == 0 || info.Height == 0 {
		return nil, errors.New("no video stream found")
	}
	if info.FPS <= 0 {
		return nil, errors.New("unknown frame rate")
	}
	return info, nil
}

// parseFrameRate 解析 "30000/1001" 形式的帧率
func parseFrameRate(rate string) float64 {
	parts := strings.Split(rate, "/")
	if len(parts) != 2 {
		f, _ := strconv.ParseFloat(rate, 64)
		return f
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den <= 0 {
		return 0
	}
	return num / den
}

// scaledSize 按最长边缩放并保持偶数尺寸
func scaledSize(w, h, maxSide int) (int, int) {
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return w - w%2, h - h%2
	}
	if w >= h {
		nh := h * maxSide / w
		return maxSide - maxSide%2, max(2, nh-nh%2)
	}
	nw := w * maxSide / h
	return max(2, nw-nw%2), maxSide - maxSide%2
}

func (s *FFmpegSource) OpenFrames(ctx context.Context, path string) ([]core.Frame, float64, float64, error) {
	if !utils.FileExists(path) {
		return nil, 0, 0, fmt.Errorf("%w: %s does not exist", core.ErrMediaUnavailable, path)
	}
	info, err := s.Probe(ctx, path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", core.ErrMediaUnavailable, err)
	}

	fps := info.FPS
	if s.AnalysisFPS > 0 && s.AnalysisFPS < fps {
		fps = s.AnalysisFPS
	}
	w, h := scaledSize(info.Width, info.Height, s.MaxSide)

	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: ffmpeg not found: %v", core.ErrMediaUnavailable, err)
	}
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-v", "error",
		"-i", path,
		"-vf", fmt.Sprintf("fps=%s,scale=%d:%d", strconv.FormatFloat(fps, 'f', -1, 64), w, h),
		"-f", "rawvideo", "-pix_fmt", "rgb24", "-")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %v", core.ErrMediaUnavailable, err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: start ffmpeg: %v", core.ErrMediaUnavailable, err)
	}

	frames, readErr := readRGBFrames(bufio.NewReaderSize(stdout, 1<<20), w, h, fps)
	waitErr := cmd.Wait()
	if readErr != nil {
		return nil, 0, 0, fmt.Errorf("%w: read frames: %v", core.ErrMediaUnavailable, readErr)
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			return nil, 0, 0, ctx.Err()
		}
		return nil, 0, 0, fmt.Errorf("%w: decode failed: %v %s", core.ErrMediaUnavailable, waitErr, strings.TrimSpace(stderr.String()))
	}

	duration := info.Duration
	if duration <= 0 {
		duration = float64(len(frames)) / fps
	}
	return frames, fps, duration, nil
}

// readRGBFrames 读取 rgb24 原始帧流，时间戳为 i/fps
func readRGBFrames(r io.Reader, w, h int, fps float64) ([]core.Frame, error) {
	frameSize := w * h * 3
	buf := make([]byte, frameSize)
	var frames []core.Frame
	for i := 0; ; i++ {
		_, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// 末尾不完整的帧丢弃
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for p, q := 0, 0; p < frameSize; p, q = p+3, q+4 {
			img.Pix[q] = buf[p]
			img.Pix[q+1] = buf[p+1]
			img.Pix[q+2] = buf[p+2]
			img.Pix[q+3] = 0xff
		}
		frames = append(frames, core.Frame{Timestamp: float64(i) / fps, Image: img})
	}
}

func (s *FFmpegSource) ExtractAudioRange(ctx context.Context, path string, start, end float64) ([]byte, error) {
	if end <= start {
		return nil, nil
	}
	info, err := s.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	if !info.HasAudio {
		return nil, nil
	}
	args := []string{
		"-v", "error",
		"-ss", strconv.FormatFloat(start, 'f', 3, 64),
		"-t", strconv.FormatFloat(end-start, 'f', 3, 64),
		"-i", path,
		"-vn",
	}
	args = append(args, s.Audio.ffmpegArgs()...)
	args = append(args, "-ac", "1", "-ar", "16000", "-f", "s16le", "-")
	pcm, err := utils.RunFFmpeg(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("extract audio: %w", err)
	}
	if len(pcm) == 0 {
		return nil, nil
	}
	return EncodeWAV(pcm, WAVInfo{SampleRate: 16000, Channels: 1, BitsPerSample: 16}), nil
}
