package processors

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// SpeechTranscriber 语音转写，无法识别时返回空字符串
type SpeechTranscriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// TranscriptionClient go-openai 转写接口，便于测试替换
type TranscriptionClient interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

const (
	// 超过该时长的音频分段转写
	longAudioSeconds = 60.0
	chunkSeconds     = 30.0
)

// WhisperTranscriber 基于 Whisper API 的转写
type WhisperTranscriber struct {
	client TranscriptionClient
	model  string
	tmpDir string
}

func NewWhisperTranscriber(client TranscriptionClient, model string) *WhisperTranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{client: client, model: model}
}

// Transcribe 转写 WAV 音频；失败的分段被跳过，只有 ctx 取消时返回错误
func (w *WhisperTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if len(wav) == 0 || w.client == nil {
		return "", nil
	}
	pcm, info, err := DecodeWAV(wav)
	if err != nil {
		log.Printf("[asr] invalid audio: %v", err)
		return "", nil
	}
	if len(pcm) == 0 {
		return "", nil
	}

	chunks := [][]byte{wav}
	if WAVDuration(pcm, info) > longAudioSeconds {
		chunks = SplitWAV(pcm, info, chunkSeconds)
	}

	var texts []string
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := w.transcribeChunk(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			log.Printf("[asr] chunk %d/%d failed: %v", i+1, len(chunks), err)
			continue
		}
		if text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, " "), nil
}

// transcribeChunk 写入临时文件后调用 API，返回前删除临时文件
func (w *WhisperTranscriber) transcribeChunk(ctx context.Context, chunk []byte) (string, error) {
	f, err := os.CreateTemp(w.tmpDir, "highlight-chunk-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(chunk); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: f.Name(),
		Language: "en",
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}
