package ollama

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"

	"github.com/ojpp/broadlistening/backend/pkg/ai"
)

// Analyzer implements ai.OpinionAnalyzer against a locally hosted Ollama
// server.
type Analyzer struct {
	classifyModel  string
	labelModel     string
	embeddingModel string

	timeout time.Duration
	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	Client *api.Client
}

// Params configures a new Analyzer.
type Params struct {
	ClassifyModel  string
	LabelModel     string
	EmbeddingModel string

	BaseURL string
	ApiKey  string

	// MaxConcurrentRequests bounds in-flight Ollama requests. Zero means 1.
	MaxConcurrentRequests int64
	// Timeout bounds each individual model call. Zero means one minute.
	Timeout time.Duration
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// New creates an Ollama-backed analyzer connecting to BaseURL (or the
// default local server if empty).
func New(params Params) (*Analyzer, error) {
	base := params.BaseURL
	if base == "" {
		base = "http://127.0.0.1:11434"
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, err
	}

	httpClient := http.DefaultClient
	if params.ApiKey != "" {
		httpClient = &http.Client{
			Transport: &headerTransport{
				headers: map[string]string{"Authorization": "Bearer " + params.ApiKey},
				rt:      http.DefaultTransport,
			},
		}
	}

	maxConcurrent := params.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
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
		reqLock:        semaphore.NewWeighted(maxConcurrent),
		Client:         api.NewClient(parsed, httpClient),
	}, nil
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
