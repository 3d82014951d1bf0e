package processors

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/sashabaranov/go-openai"
)

type fakeEmbeddingClient struct {
	vec   []float32
	err   error
	input []string
}

func (f *fakeEmbeddingClient) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	f.input = conv.Convert().Input.([]string)
	if f.err != nil {
		return openai.EmbeddingResponse{}, f.err
	}
	return openai.EmbeddingResponse{Data: []openai.Embedding{{Embedding: f.vec}}}, nil
}

func assertZero(t *testing.T, vec []float32, dim int) {
	t.Helper()
	if len(vec) != dim {
		t.Fatalf("expected dimension %d, got %d", dim, len(vec))
	}
	for i, v := range vec {
		if v != 0 {
			t.Fatalf("expected zero vector, index %d = %v", i, v)
		}
	}
}

func TestEmbedFailureReturnsZeroVector(t *testing.T) {
	e := NewEmbeddingComposer(&fakeEmbeddingClient{err: errors.New("quota exceeded")}, "m", 768)
	assertZero(t, e.Embed(context.Background(), "hello"), 768)

	noClient := NewEmbeddingComposer(nil, "m", 16)
	assertZero(t, noClient.Embed(context.Background(), "hello"), 16)

	short := NewEmbeddingComposer(&fakeEmbeddingClient{vec: []float32{1, 2}}, "m", 4)
	assertZero(t, short.Embed(context.Background(), "hello"), 4)
}

func TestEmbedHighlightPutsSummaryFirst(t *testing.T) {
	client := &fakeEmbeddingClient{vec: []float32{0.6, 0.8}}
	e := NewEmbeddingComposer(client, "m", 2)
	vec := e.EmbedHighlight(context.Background(), "the description", "the summary")
	if len(client.input) != 1 || client.input[0] != "the summary the description" {
		t.Errorf("unexpected input %q", client.input)
	}
	if vec[0] != 0.6 || vec[1] != 0.8 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestEmbedTruncatesAndNormalizes(t *testing.T) {
	e := NewEmbeddingComposer(&fakeEmbeddingClient{vec: []float32{3, 4, 12}}, "m", 2)
	vec := e.Embed(context.Background(), "x")
	if len(vec) != 2 {
		t.Fatalf("expected 2 dims, got %d", len(vec))
	}
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("unexpected normalized vector %v", vec)
	}
}
