package processors

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/image/draw"

	"videoHighlights/core"
)

// ChatClient go-openai 对话接口，便于测试替换
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const (
	maxDescribeFrames = 3
	maxFrameSide      = 512
	descriptionLimit  = 500
	summaryLimit      = 100
	transcriptExcerpt = 100
	noSpeechMarker    = "[No speech detected]"
	describeMaxTokens = 1024
	describeTimeout   = 60 * time.Second
)

// DescriptionComposer 使用多模态模型为高光片段生成描述与摘要
type DescriptionComposer struct {
	client  ChatClient
	model   string
	timeout time.Duration
}

// NewDescriptionComposer client 为 nil 时总是使用模板描述
func NewDescriptionComposer(client ChatClient, model string) *DescriptionComposer {
	return &DescriptionComposer{client: client, model: model, timeout: describeTimeout}
}

// Describe 生成描述，不会返回错误：请求失败时使用模板，解析失败时截断原始文本
func (d *DescriptionComposer) Describe(ctx context.Context, frames []core.Frame, transcript string, start, end float64) core.HighlightText {
	if d.client == nil {
		return FallbackHighlightText(transcript, start, end)
	}
	if len(frames) > maxDescribeFrames {
		frames = frames[:maxDescribeFrames]
	}

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: buildDescribePrompt(len(frames), transcript, start, end),
	}}
	for i, f := range frames {
		url, err := frameDataURL(f.Image)
		if err != nil {
			log.Printf("[describe] encode frame %d failed: %v", i, err)
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailLow},
		})
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	resp, err := d.client.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
		Model: d.model,
		Messages: []openai.ChatCompletionMessage{{
			Role:         openai.ChatMessageRoleUser,
			MultiContent: parts,
		}},
		Temperature: 0.4,
		TopP:        0.95,
		MaxTokens:   describeMaxTokens,
	})
	if err != nil {
		log.Printf("[describe] %.2fs-%.2fs 描述生成失败，使用模板: %v", start, end, err)
		return FallbackHighlightText(transcript, start, end)
	}
	if len(resp.Choices) == 0 {
		log.Printf("[describe] %.2fs-%.2fs 模型未返回内容，使用模板", start, end)
		return FallbackHighlightText(transcript, start, end)
	}

	raw := resp.Choices[0].Message.Content
	parsed, err := ParseStructuredResponse(raw)
	if err == nil {
		return parsed
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return FallbackHighlightText(transcript, start, end)
	}
	log.Printf("[describe] %.2fs-%.2fs 无法解析 JSON，截断原始文本: %v", start, end, err)
	return core.HighlightText{
		Description: core.Truncate(raw, descriptionLimit),
		Summary:     core.Truncate(raw, summaryLimit),
	}
}

func buildDescribePrompt(frameCount int, transcript string, start, end float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze these video frames and the transcript from a video segment (%.2fs to %.2fs).\n\n", start, end)
	if strings.TrimSpace(transcript) == "" {
		transcript = noSpeechMarker
	}
	fmt.Fprintf(&b, "Transcript: %s\n\n", transcript)

	if frameCount > 0 {
		step := (end - start) / float64(frameCount)
		b.WriteString("Frames:\n")
		for i := 0; i < frameCount; i++ {
			fmt.Fprintf(&b, "Frame %d - At approximately %.2f seconds\n", i+1, start+float64(i)*step)
		}
		b.WriteString("\n")
	}

	b.WriteString("Return a JSON object with exactly two fields:\n")
	b.WriteString(`- "description": a detailed description of what happens in this segment (100-150 words), covering visual content, actions, people, objects and anything notable that is said.` + "\n")
	b.WriteString(`- "summary": a concise summary of the segment (25-35 words).` + "\n")
	b.WriteString("Respond with the JSON object only.")
	return b.String()
}

// FallbackHighlightText 不依赖模型的模板描述，相同输入结果相同
func FallbackHighlightText(transcript string, start, end float64) core.HighlightText {
	desc := fmt.Sprintf("Highlight from %.2fs to %.2fs. ", start, end)
	if t := strings.TrimSpace(transcript); t != "" {
		desc += "Transcript: " + core.Truncate(t, transcriptExcerpt) + "..."
	} else {
		desc += "No transcript available."
	}
	return core.HighlightText{
		Description: desc,
		Summary:     fmt.Sprintf("Video segment from %.2fs to %.2fs", start, end),
	}
}

var errNoJSONObject = errors.New("no JSON object found in response")

// ParseStructuredResponse 从模型输出中提取 {"description", "summary"}，支持 ```json 代码块或夹杂在文本中的对象
func ParseStructuredResponse(text string) (core.HighlightText, error) {
	var candidates []string
	if fenced, ok := fencedJSON(text); ok {
		candidates = append(candidates, fenced)
	}
	if obj, ok := firstBalancedObject(text); ok {
		candidates = append(candidates, obj)
	}
	if len(candidates) == 0 {
		return core.HighlightText{}, errNoJSONObject
	}

	var lastErr error
	for _, c := range candidates {
		var out core.HighlightText
		if err := json.Unmarshal([]byte(c), &out); err != nil {
			lastErr = err
			continue
		}
		out.Description = strings.TrimSpace(out.Description)
		out.Summary = strings.TrimSpace(out.Summary)
		if out.Description == "" || out.Summary == "" {
			lastErr = errors.New("response is missing description or summary")
			continue
		}
		return out, nil
	}
	return core.HighlightText{}, lastErr
}

// fencedJSON 提取 ``` 代码块内容
func fencedJSON(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	body := text[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && strings.TrimSpace(body[:nl]) == "json" {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "json")
	}
	end := strings.Index(body, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:end]), true
}

// firstBalancedObject 返回第一个括号配对完整的 {...}，忽略字符串内的括号
func firstBalancedObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// frameDataURL 缩放到最长边不超过 512 后编码为 JPEG data URL
func frameDataURL(img image.Image) (string, error) {
	if img == nil {
		return "", errors.New("nil frame")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resizeToFit(img, maxFrameSide), &jpeg.Options{Quality: 85}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// resizeToFit 等比缩放，不放大
func resizeToFit(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}
	var nw, nh int
	if w >= h {
		nw, nh = maxSide, max(1, h*maxSide/w)
	} else {
		nw, nh = max(1, w*maxSide/h), maxSide
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
