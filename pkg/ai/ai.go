package ai

import (
	"context"

	"github.com/ojpp/broadlistening/backend/pkg/common"
)

// NodeContext is one previously extracted argument node, passed to the
// analyzer so it can propose edges from the new opinion to earlier ones.
type NodeContext struct {
	NodeID  string          `json:"node_id"`
	Type    common.NodeType `json:"type"`
	Content string          `json:"content"`
}

// ProposedEdge is a relation the analyzer suggests between the newly
// classified node and an existing node. Proposals are advisory; the
// extractor validates targets, filters by weight and deduplicates.
type ProposedEdge struct {
	TargetNodeID string          `json:"target_node_id"`
	Relation     common.Relation `json:"relation"`
	Weight       float64         `json:"weight"`
}

// Classification is the analyzer's full judgement of one opinion: its
// argumentative role, a confidence, proposed edges to prior nodes, and a
// vector embedding of the opinion text.
type Classification struct {
	NodeType      common.NodeType `json:"node_type"`
	Confidence    float64         `json:"confidence"`
	ProposedEdges []ProposedEdge  `json:"proposed_edges"`
	Embedding     []float32       `json:"embedding"`
}

// OpinionAnalyzer is the external language-understanding capability the
// engine delegates to. Implementations exist for OpenAI-compatible APIs,
// Ollama, and a deterministic rule-based fallback; the engine never assumes
// a specific provider.
type OpinionAnalyzer interface {
	// Classify analyzes one opinion against the existing argument nodes of
	// its topic. Failures map to ErrUnavailable, ErrTimeout or
	// ErrMalformedOutput.
	Classify(ctx context.Context, content string, stance common.Stance, existing []NodeContext) (*Classification, error)

	// LabelCluster produces a short label for a cluster from a sample of
	// member opinion texts.
	LabelCluster(ctx context.Context, samples []string) (string, error)
}

// ModelMetrics contains performance metrics from analyzer operations.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// GenerateOptions holds configuration for analyzer model requests.
type GenerateOptions struct {
	Model       string
	Temperature float64
}

// GenerateOption is a functional option for configuring analyzer requests.
type GenerateOption func(*GenerateOptions)

// WithModel returns a GenerateOption that overrides the model used.
func WithModel(model string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Model = model
	}
}

// WithTemperature returns a GenerateOption that sets the sampling
// temperature. Lower values make classification more deterministic.
func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = temp
	}
}
