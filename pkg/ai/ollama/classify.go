package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/ojpp/broadlistening/backend/pkg/ai"
	"github.com/ojpp/broadlistening/backend/pkg/common"
)

type classifyResponse struct {
	NodeType      string             `json:"node_type" jsonschema_description:"One of CLAIM, PREMISE, EVIDENCE, REBUTTAL"`
	Confidence    float64            `json:"confidence" jsonschema_description:"Classification confidence between 0 and 1"`
	ProposedEdges []classifyEdgeItem `json:"proposed_edges" jsonschema_description:"Relations from the new opinion to existing argument nodes"`
}

type classifyEdgeItem struct {
	TargetNodeID string  `json:"target_node_id" jsonschema_description:"Id of an existing argument node"`
	Relation     string  `json:"relation" jsonschema_description:"One of ATTACK, SUPPORT, UNDERCUT"`
	Weight       float64 `json:"weight" jsonschema_description:"Strength of the relation between 0 and 1"`
}

// Classify runs the classification chat with a JSON schema format, then
// embeds the opinion text.
func (a *Analyzer) Classify(
	ctx context.Context,
	content string,
	stance common.Stance,
	existing []ai.NodeContext,
) (*ai.Classification, error) {
	var res classifyResponse

	schemaObj := ai.GenerateSchema(&res)
	formatBytes, err := json.Marshal(schemaObj)
	if err != nil {
		return nil, err
	}

	systemPrompt := fmt.Sprintf(ai.ClassifyPrompt, stance, formatNodeContext(existing))
	out, err := a.chat(ctx, a.classifyModel, systemPrompt, content, formatBytes, 0.1)
	if err != nil {
		return nil, err
	}
	if err := ai.UnmarshalFlexible(out, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrMalformedOutput, err)
	}

	embedding, err := a.embed(ctx, content)
	if err != nil {
		return nil, err
	}

	classification := &ai.Classification{
		NodeType:   common.NodeType(res.NodeType),
		Confidence: res.Confidence,
		Embedding:  embedding,
	}
	for _, e := range res.ProposedEdges {
		classification.ProposedEdges = append(classification.ProposedEdges, ai.ProposedEdge{
			TargetNodeID: e.TargetNodeID,
			Relation:     common.Relation(e.Relation),
			Weight:       e.Weight,
		})
	}

	if err := ai.ValidateClassification(classification); err != nil {
		return nil, err
	}
	return classification, nil
}

// LabelCluster asks the label model for a short theme label.
func (a *Analyzer) LabelCluster(ctx context.Context, samples []string) (string, error) {
	out, err := a.chat(ctx, a.labelModel, ai.LabelClusterPrompt, strings.Join(samples, "\n---\n"), nil, 0.2)
	if err != nil {
		return "", err
	}
	label := strings.TrimSpace(strings.Trim(out, `"`))
	if label == "" {
		return "", ai.Malformed("empty label from model")
	}
	return label, nil
}

func (a *Analyzer) chat(
	ctx context.Context,
	model string,
	systemPrompt string,
	prompt string,
	format json.RawMessage,
	temperature float64,
) (string, error) {
	rCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if err := a.reqLock.Acquire(rCtx, 1); err != nil {
		return "", ai.WrapTransportErr(err)
	}
	defer a.reqLock.Release(1)

	stream := false
	req := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Stream:  &stream,
		Format:  format,
		Options: map[string]any{"temperature": temperature},
	}

	var final api.ChatResponse
	if err := a.Client.Chat(rCtx, req, func(cr api.ChatResponse) error {
		final.Message.Content += cr.Message.Content
		if cr.Done {
			final.Done = true
			final.Metrics = cr.Metrics
		}
		return nil
	}); err != nil {
		return "", ai.WrapTransportErr(err)
	}

	a.recordMetrics(ai.ModelMetrics{
		InputTokens:  final.Metrics.PromptEvalCount,
		OutputTokens: final.Metrics.EvalCount,
		TotalTokens:  final.Metrics.PromptEvalCount + final.Metrics.EvalCount,
		DurationMs:   final.Metrics.TotalDuration.Milliseconds(),
	})

	return final.Message.Content, nil
}

func formatNodeContext(existing []ai.NodeContext) string {
	if len(existing) == 0 {
		return "(none yet)"
	}
	var b strings.Builder
	for _, n := range existing {
		fmt.Fprintf(&b, "- %s [%s] %s\n", n.NodeID, n.Type, n.Content)
	}
	return b.String()
}
