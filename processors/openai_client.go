package processors

import (
	"log"

	"github.com/sashabaranov/go-openai"

	"videoHighlights/config"
)

// NewOpenAIClient 按配置创建 OpenAI 兼容客户端，未配置 API 时返回 nil
func NewOpenAIClient(cfg *config.Config) *openai.Client {
	if cfg == nil || !cfg.HasValidAPI() {
		return nil
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// ModelClients 转写、描述与向量组件共用一个客户端
type ModelClients struct {
	Transcriber SpeechTranscriber
	Describer   *DescriptionComposer
	Embedder    *EmbeddingComposer
}

// NewModelClients 未配置 API 时各组件走降级路径：描述用模板，向量为零向量，不转写
func NewModelClients(cfg *config.Config) ModelClients {
	client := NewOpenAIClient(cfg)
	if client == nil {
		log.Printf("[pipeline] API 未配置，描述使用模板，向量为零向量，跳过转写")
		return ModelClients{
			Transcriber: NewWhisperTranscriber(nil, cfg.TranscriptionModel),
			Describer:   NewDescriptionComposer(nil, cfg.ChatModel),
			Embedder:    NewEmbeddingComposer(nil, cfg.EmbeddingModel, cfg.EmbeddingDimension),
		}
	}
	return ModelClients{
		Transcriber: NewWhisperTranscriber(client, cfg.TranscriptionModel),
		Describer:   NewDescriptionComposer(client, cfg.ChatModel),
		Embedder:    NewEmbeddingComposer(client, cfg.EmbeddingModel, cfg.EmbeddingDimension),
	}
}
