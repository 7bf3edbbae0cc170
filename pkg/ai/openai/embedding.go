package openai

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

	"github.com/ojpp/broadlistening/backend/internal/util"
	"github.com/ojpp/broadlistening/backend/pkg/ai"
)

const (
	defaultDimensions = 1536

	// embedTries bounds transient-failure retries per embedding request.
	embedTries = 3
)

func (a *Analyzer) embed(ctx context.Context, input string) ([]float32, error) {
	dim := int(util.GetEnvNumeric("AI_EMBED_DIM", defaultDimensions))
	if strings.TrimSpace(input) == "" {
		return make([]float32, dim), nil
	}

	rCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	body := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{input}},
		Model: a.embeddingModel,
	}

	start := time.Now()
	response, err := util.RetryWithContext(rCtx, embedTries,
		func(ctx context.Context) (*openai.CreateEmbeddingResponse, error) {
			return a.EmbeddingClient.Embeddings.New(ctx, body)
		})
	if err != nil {
		return nil, ai.WrapTransportErr(err)
	}
	a.recordMetrics(ai.ModelMetrics{
		InputTokens: int(response.Usage.PromptTokens),
		TotalTokens: int(response.Usage.TotalTokens),
		DurationMs:  time.Since(start).Milliseconds(),
	})

	if len(response.Data) != 1 {
		return nil, ai.Malformed("embedding response size mismatch: got %d want 1", len(response.Data))
	}

	vec := make([]float32, 0, dim)
	for _, v := range response.Data[0].Embedding {
		if len(vec) >= dim {
			break
		}
		vec = append(vec, float32(v))
	}
	if len(vec) < dim {
		padded := make([]float32, dim)
		copy(padded, vec)
		vec = padded
	}
	return vec, nil
}
