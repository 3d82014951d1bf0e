package processors

import (
	"context"
	"log"
	"math"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// EmbeddingClient go-openai 向量接口，便于测试替换
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// EmbeddingComposer 生成固定维度的向量，任何失败都返回全零向量
type EmbeddingComposer struct {
	client    EmbeddingClient
	model     string
	dimension int
	timeout   time.Duration
}

func NewEmbeddingComposer(client EmbeddingClient, model string, dimension int) *EmbeddingComposer {
	return &EmbeddingComposer{client: client, model: model, dimension: dimension, timeout: 30 * time.Second}
}

// Zero 全零向量，表示没有可用的向量
func (e *EmbeddingComposer) Zero() []float32 {
	return make([]float32, e.dimension)
}

// EmbedHighlight 摘要在前、描述在后拼接后生成向量
func (e *EmbeddingComposer) EmbedHighlight(ctx context.Context, description, summary string) []float32 {
	return e.Embed(ctx, summary+" "+description)
}

// Embed 生成向量；返回维度大于配置时截断并重新归一化，不足或失败时返回全零向量
func (e *EmbeddingComposer) Embed(ctx context.Context, text string) []float32 {
	if e.client == nil || strings.TrimSpace(text) == "" {
		return e.Zero()
	}
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	}
	// 只有 text-embedding-3 系列支持指定维度
	if strings.HasPrefix(e.model, "text-embedding-3") {
		req.Dimensions = e.dimension
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	resp, err := e.client.CreateEmbeddings(reqCtx, req)
	if err != nil {
		log.Printf("[embedding] request failed, using zero vector: %v", err)
		return e.Zero()
	}
	if len(resp.Data) == 0 {
		log.Printf("[embedding] no embeddings returned, using zero vector")
		return e.Zero()
	}
	vec := resp.Data[0].Embedding
	switch {
	case len(vec) == e.dimension:
		return vec
	case len(vec) > e.dimension:
		return slicedNormL2(vec, e.dimension)
	default:
		log.Printf("[embedding] dimension mismatch: got %d, want %d", len(vec), e.dimension)
		return e.Zero()
	}
}

// slicedNormL2 截断到指定维度并做 L2 归一化
func slicedNormL2(vec []float32, dim int) []float32 {
	out := make([]float32, dim)
	copy(out, vec[:dim])
	var norm float64
	for _, v := range out {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return out
}
