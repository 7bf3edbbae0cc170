package ollama

import (
	"context"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/ojpp/broadlistening/backend/internal/util"
	"github.com/ojpp/broadlistening/backend/pkg/ai"
)

const (
	defaultDimensions = 768

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

	if err := a.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, ai.WrapTransportErr(err)
	}
	defer a.reqLock.Release(1)

	req := &api.EmbedRequest{
		Model: a.embeddingModel,
		Input: input,
	}

	res, err := util.RetryWithContext(rCtx, embedTries,
		func(ctx context.Context) (*api.EmbedResponse, error) {
			return a.Client.Embed(ctx, req)
		})
	if err != nil {
		return nil, ai.WrapTransportErr(err)
	}

	a.recordMetrics(ai.ModelMetrics{
		InputTokens: res.PromptEvalCount,
		TotalTokens: res.PromptEvalCount,
		DurationMs:  res.TotalDuration.Milliseconds(),
	})

	out := make([]float32, 0, dim)
	for _, v := range res.Embeddings {
		for _, val := range v {
			if len(out) >= dim {
				break
			}
			out = append(out, float32(val))
		}
	}
	if len(out) == 0 {
		return nil, ai.Malformed("empty embedding from model")
	}
	if len(out) < dim {
		padded := make([]float32, dim)
		copy(padded, out)
		out = padded
	}
	return out, nil
}
