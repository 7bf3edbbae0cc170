package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"

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

// Classify sends the opinion to the chat model with a structured-output
// schema, then embeds the opinion text. Both calls share the analyzer's
// per-call timeout; any transport failure or contract violation is mapped
// onto the analyzer error taxonomy.
func (a *Analyzer) Classify(
	ctx context.Context,
	content string,
	stance common.Stance,
	existing []ai.NodeContext,
) (*ai.Classification, error) {
	if a.ChatClient == nil || a.EmbeddingClient == nil {
		return nil, fmt.Errorf("%w: no api key configured", ai.ErrUnavailable)
	}

	var res classifyResponse
	if err := a.completeWithFormat(
		ctx,
		"classify_opinion",
		"Classify an opinion into an argument node and propose relations to existing nodes.",
		fmt.Sprintf(ai.ClassifyPrompt, stance, formatNodeContext(existing)),
		content,
		&res,
	); err != nil {
		return nil, err
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
	if a.ChatClient == nil {
		return "", fmt.Errorf("%w: no api key configured", ai.ErrUnavailable)
	}

	rCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.labelModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(ai.LabelClusterPrompt),
			openai.UserMessage(strings.Join(samples, "\n---\n")),
		},
		Temperature: openai.Float(0.2),
	}

	start := time.Now()
	response, err := a.ChatClient.Chat.Completions.New(rCtx, body)
	if err != nil {
		return "", ai.WrapTransportErr(err)
	}
	a.recordMetrics(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	if len(response.Choices) == 0 {
		return "", ai.Malformed("no choices in label response")
	}
	label := strings.TrimSpace(strings.Trim(response.Choices[0].Message.Content, `"`))
	if label == "" {
		return "", ai.Malformed("empty label from model")
	}
	return label, nil
}

func (a *Analyzer) completeWithFormat(
	ctx context.Context,
	name string,
	description string,
	systemPrompt string,
	prompt string,
	out any,
) error {
	schema := ai.GenerateSchema(out)
	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        name,
		Description: openai.String(description),
		Schema:      schema,
		Strict:      openai.Bool(true),
	}

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.classifyModel),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.1),
	}

	rCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	response, err := a.ChatClient.Chat.Completions.New(rCtx, body)
	if err != nil {
		return ai.WrapTransportErr(err)
	}
	a.recordMetrics(ai.ModelMetrics{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
		TotalTokens:  int(response.Usage.TotalTokens),
		DurationMs:   time.Since(start).Milliseconds(),
	})

	if len(response.Choices) == 0 {
		return ai.Malformed("no choices in response from model")
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return ai.Malformed("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason)
	}
	if err := ai.UnmarshalFlexible(message, out); err != nil {
		return fmt.Errorf("%w: %v", ai.ErrMalformedOutput, err)
	}
	return nil
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
