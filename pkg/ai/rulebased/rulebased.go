package rulebased

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"github.com/ojpp/broadlistening/backend/pkg/ai"
	"github.com/ojpp/broadlistening/backend/pkg/common"
)

// Analyzer is a deterministic, fully offline ai.OpinionAnalyzer. It
// classifies by surface heuristics and embeds by hashed bag-of-words, which
// makes it suitable for tests and for running the engine without any model
// backend. The same input always yields the same output.
type Analyzer struct {
	// Dimensions of the hashed embedding space.
	Dimensions int
}

// New creates a rule-based analyzer with the given embedding dimensions.
// Zero or negative dimensions default to 32.
func New(dimensions int) *Analyzer {
	if dimensions <= 0 {
		dimensions = 32
	}
	return &Analyzer{Dimensions: dimensions}
}

var premiseMarkers = []string{"because", "since", "therefore", "なぜなら", "ので", "だから"}
var evidenceMarkers = []string{"study", "data", "statistics", "%", "survey", "調査", "データ", "統計"}
var rebuttalMarkers = []string{"however", "but ", "wrong", "disagree", "しかし", "反論", "間違い"}

// Classify derives an argument node and edge proposals from the opinion
// text alone.
func (a *Analyzer) Classify(
	_ context.Context,
	content string,
	stance common.Stance,
	existing []ai.NodeContext,
) (*ai.Classification, error) {
	lowered := strings.ToLower(content)

	nodeType := common.NodeClaim
	switch {
	case containsAny(lowered, evidenceMarkers):
		nodeType = common.NodeEvidence
	case containsAny(lowered, rebuttalMarkers):
		nodeType = common.NodeRebuttal
	case containsAny(lowered, premiseMarkers):
		nodeType = common.NodePremise
	}

	// Deterministic confidence in [0.5, 1.0) derived from the text.
	h := fnv.New32a()
	h.Write([]byte(content))
	confidence := 0.5 + float64(h.Sum32()%500)/1000

	tokens := tokenize(lowered)
	var edges []ai.ProposedEdge
	for _, node := range existing {
		overlap := jaccard(tokens, tokenize(strings.ToLower(node.Content)))
		if overlap < 0.2 {
			continue
		}
		relation := common.RelationSupport
		if stance == common.StanceAgainst {
			relation = common.RelationAttack
		}
		if nodeType == common.NodeRebuttal {
			relation = common.RelationUndercut
		}
		edges = append(edges, ai.ProposedEdge{
			TargetNodeID: node.NodeID,
			Relation:     relation,
			Weight:       math.Min(1, overlap*2),
		})
	}

	return &ai.Classification{
		NodeType:      nodeType,
		Confidence:    confidence,
		ProposedEdges: edges,
		Embedding:     a.Embed(content),
	}, nil
}

// LabelCluster returns the most frequent meaningful token of the samples.
func (a *Analyzer) LabelCluster(_ context.Context, samples []string) (string, error) {
	counts := make(map[string]int)
	for _, s := range samples {
		for t := range tokenize(strings.ToLower(s)) {
			if len(t) < 3 {
				continue
			}
			counts[t]++
		}
	}
	if len(counts) == 0 {
		return "topic", nil
	}

	type tc struct {
		token string
		count int
	}
	ordered := make([]tc, 0, len(counts))
	for t, c := range counts {
		ordered = append(ordered, tc{t, c})
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].count != ordered[j].count {
			return ordered[i].count > ordered[j].count
		}
		return ordered[i].token < ordered[j].token
	})
	return ordered[0].token, nil
}

// Embed maps text onto a hashed bag-of-words vector, L2 normalized.
// Texts sharing words land close together, which is enough structure for
// clustering in tests.
func (a *Analyzer) Embed(content string) []float32 {
	vec := make([]float32, a.Dimensions)
	for token := range tokenize(strings.ToLower(content)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%a.Dimensions]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range strings.FieldsFunc(s, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r > 127)
	}) {
		if t == "" {
			continue
		}
		out[t] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
