package openai

import (
	"sync"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/ojpp/broadlistening/backend/pkg/ai"
)

// Analyzer implements ai.OpinionAnalyzer against any OpenAI-compatible API.
// Separate clients are kept for chat and embeddings so the two can point at
// different endpoints or keys.
type Analyzer struct {
	classifyModel  string
	labelModel     string
	embeddingModel string

	timeout time.Duration

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient      *openai.Client
	EmbeddingClient *openai.Client
}

// Params configures a new Analyzer.
type Params struct {
	ClassifyModel  string
	LabelModel     string
	EmbeddingModel string

	ChatURL      string
	ChatKey      string
	EmbeddingURL string
	EmbeddingKey string

	// Timeout bounds each individual model call. Zero means one minute.
	Timeout time.Duration
}

// New creates an Analyzer configured with the provided parameters.
func New(params Params) *Analyzer {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	labelModel := params.LabelModel
	if labelModel == "" {
		labelModel = params.ClassifyModel
	}
	return &Analyzer{
		classifyModel:  params.ClassifyModel,
		labelModel:     labelModel,
		embeddingModel: params.EmbeddingModel,
		timeout:        timeout,

		ChatClient:      newClient(params.ChatURL, params.ChatKey),
		EmbeddingClient: newClient(params.EmbeddingURL, params.EmbeddingKey),
	}
}

// Metrics returns the accumulated model metrics for this analyzer.
func (a *Analyzer) Metrics() ai.ModelMetrics {
	a.metricsLock.Lock()
	defer a.metricsLock.Unlock()
	return a.metrics
}

func (a *Analyzer) recordMetrics(m ai.ModelMetrics) {
	a.metricsLock.Lock()
	defer a.metricsLock.Unlock()

	a.metrics.InputTokens += m.InputTokens
	a.metrics.OutputTokens += m.OutputTokens
	a.metrics.TotalTokens += m.TotalTokens
	a.metrics.DurationMs += m.DurationMs
	if a.metrics.DurationMs > 0 {
		a.metrics.TokenPerSecond = float32(a.metrics.OutputTokens) / (float32(a.metrics.DurationMs) / 1000)
	}
}

func newClient(baseURL string, apiKey string) *openai.Client {
	if apiKey == "" {
		return nil
	}
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(options...)

	return &client
}
