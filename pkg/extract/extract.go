// Package extract turns a raw opinion into an argument node and its edges.
// It shapes the analyzer input, enforces the edge weight threshold and keeps
// the edge set free of self references, unknown targets and duplicates.
package extract

import (
	"context"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkoukk/tiktoken-go"

	"github.com/ojpp/broadlistening/backend/pkg/ai"
	"github.com/ojpp/broadlistening/backend/pkg/common"
	"github.com/ojpp/broadlistening/backend/pkg/logger"
)

const (
	// DefaultWeightThreshold drops analyzer edge proposals below this weight.
	DefaultWeightThreshold = 0.3
	// DefaultContextTokenBudget caps the serialized existing-node context
	// handed to the analyzer.
	DefaultContextTokenBudget = 3000

	encodingName = "o200k_base"
)

type Extractor struct {
	analyzer        ai.OpinionAnalyzer
	weightThreshold float64
	tokenBudget     int

	encoder *tiktoken.Tiktoken
}

type Params struct {
	Analyzer        ai.OpinionAnalyzer
	WeightThreshold float64
	TokenBudget     int
}

func New(params Params) (*Extractor, error) {
	if params.Analyzer == nil {
		return nil, fmt.Errorf("extractor requires an analyzer")
	}
	if params.WeightThreshold <= 0 {
		params.WeightThreshold = DefaultWeightThreshold
	}
	if params.TokenBudget <= 0 {
		params.TokenBudget = DefaultContextTokenBudget
	}

	// The encoder cache may be empty on first use without network access;
	// token counts then fall back to a byte estimate.
	encoder, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		logger.Warn("[Extract] Token encoder unavailable, using byte estimate", "error", err)
		encoder = nil
	}

	return &Extractor{
		analyzer:        params.Analyzer,
		weightThreshold: params.WeightThreshold,
		tokenBudget:     params.TokenBudget,
		encoder:         encoder,
	}, nil
}

// Extract classifies one opinion against the topic's existing argument graph.
// It returns the new node, the surviving validated edges and the opinion's
// embedding. The opinion itself is not mutated and nothing is persisted.
func (e *Extractor) Extract(
	ctx context.Context,
	opinion *common.Opinion,
	existingNodes []common.ArgumentNode,
	existingEdges []common.ArgumentEdge,
) (*common.ArgumentNode, []common.ArgumentEdge, []float32, error) {
	if opinion == nil || opinion.Content == "" {
		return nil, nil, nil, fmt.Errorf("opinion content is empty")
	}

	nodeContext := e.shapeContext(existingNodes)

	classification, err := e.analyzer.Classify(ctx, opinion.Content, opinion.Stance, nodeContext)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("classify opinion %s: %w", opinion.ID, err)
	}
	if err := ai.ValidateClassification(classification); err != nil {
		return nil, nil, nil, fmt.Errorf("classify opinion %s: %w", opinion.ID, err)
	}

	nodeID, err := gonanoid.New()
	if err != nil {
		return nil, nil, nil, err
	}
	node := &common.ArgumentNode{
		ID:         nodeID,
		TopicID:    opinion.TopicID,
		OpinionID:  opinion.ID,
		Type:       classification.NodeType,
		Content:    opinion.Content,
		Confidence: classification.Confidence,
	}

	edges := e.filterEdges(node, classification.ProposedEdges, existingNodes, existingEdges)

	logger.Debug("[Extract] Opinion classified",
		"opinion_id", opinion.ID,
		"node_type", node.Type,
		"confidence", node.Confidence,
		"edges_proposed", len(classification.ProposedEdges),
		"edges_kept", len(edges))

	return node, edges, classification.Embedding, nil
}

// shapeContext serializes existing nodes newest first until the token budget
// is spent. An analyzer only needs enough of the graph to anchor relations,
// not all of it.
func (e *Extractor) shapeContext(existingNodes []common.ArgumentNode) []ai.NodeContext {
	out := make([]ai.NodeContext, 0, len(existingNodes))
	remaining := e.tokenBudget
	for i := len(existingNodes) - 1; i >= 0; i-- {
		n := existingNodes[i]
		cost := e.countTokens(n.Content) + 8
		if cost > remaining {
			break
		}
		remaining -= cost
		out = append(out, ai.NodeContext{
			NodeID:  n.ID,
			Type:    n.Type,
			Content: n.Content,
		})
	}
	// restore original (oldest first) order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (e *Extractor) countTokens(text string) int {
	if e.encoder != nil {
		return len(e.encoder.Encode(text, nil, nil))
	}
	return len(text)/4 + 1
}

func (e *Extractor) filterEdges(
	node *common.ArgumentNode,
	proposed []ai.ProposedEdge,
	existingNodes []common.ArgumentNode,
	existingEdges []common.ArgumentEdge,
) []common.ArgumentEdge {
	known := make(map[string]struct{}, len(existingNodes))
	for _, n := range existingNodes {
		known[n.ID] = struct{}{}
	}
	seen := make(map[string]struct{}, len(existingEdges))
	for _, edge := range existingEdges {
		seen[edge.Key()] = struct{}{}
	}

	out := make([]common.ArgumentEdge, 0, len(proposed))
	for _, p := range proposed {
		if p.Weight < e.weightThreshold {
			continue
		}
		if p.TargetNodeID == node.ID {
			continue
		}
		if _, ok := known[p.TargetNodeID]; !ok {
			continue
		}
		edge := common.ArgumentEdge{
			SourceID: node.ID,
			TargetID: p.TargetNodeID,
			Relation: p.Relation,
			Weight:   p.Weight,
		}
		if _, dup := seen[edge.Key()]; dup {
			continue
		}
		seen[edge.Key()] = struct{}{}
		out = append(out, edge)
	}
	return out
}
