package rulebased

import (
	"context"
	"math"
	"testing"

	"github.com/ojpp/broadlistening/backend/pkg/ai"
	"github.com/ojpp/broadlistening/backend/pkg/common"
)

func TestClassifyNodeType(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    common.NodeType
	}{
		{"plain statement", "we should build more bike lanes", common.NodeClaim},
		{"causal marker", "because traffic keeps getting worse", common.NodePremise},
		{"data marker", "a recent survey shows 60% support", common.NodeEvidence},
		{"contrast marker", "however that ignores the costs", common.NodeRebuttal},
	}

	analyzer := New(16)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := analyzer.Classify(context.Background(), tc.content, common.StanceNeutral, nil)
			if err != nil {
				t.Fatalf("Classify returned error: %v", err)
			}
			if got.NodeType != tc.want {
				t.Errorf("node type = %s, want %s", got.NodeType, tc.want)
			}
			if got.Confidence < 0.5 || got.Confidence >= 1 {
				t.Errorf("confidence %f outside [0.5, 1)", got.Confidence)
			}
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	analyzer := New(16)
	existing := []ai.NodeContext{
		{NodeID: "n1", Content: "bike lanes reduce traffic in the city"},
	}

	first, err := analyzer.Classify(context.Background(), "bike lanes help city traffic", common.StanceFor, existing)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}
	second, err := analyzer.Classify(context.Background(), "bike lanes help city traffic", common.StanceFor, existing)
	if err != nil {
		t.Fatalf("Classify returned error: %v", err)
	}

	if first.NodeType != second.NodeType || first.Confidence != second.Confidence {
		t.Errorf("repeated classification diverged: %+v vs %+v", first, second)
	}
	if len(first.Embedding) != len(second.Embedding) {
		t.Fatalf("embedding lengths diverged: %d vs %d", len(first.Embedding), len(second.Embedding))
	}
	for i := range first.Embedding {
		if first.Embedding[i] != second.Embedding[i] {
			t.Fatalf("embedding component %d diverged", i)
		}
	}
}

func TestClassifyEdgeRelations(t *testing.T) {
	analyzer := New(16)
	existing := []ai.NodeContext{
		{NodeID: "n1", Content: "bike lanes reduce traffic in the city center"},
	}

	cases := []struct {
		name    string
		content string
		stance  common.Stance
		want    common.Relation
	}{
		{"aligned stance supports", "bike lanes really do reduce traffic in the city", common.StanceFor, common.RelationSupport},
		{"opposed stance attacks", "bike lanes reduce traffic in the city? no", common.StanceAgainst, common.RelationAttack},
		{"rebuttal undercuts", "however bike lanes do not reduce traffic in the city", common.StanceAgainst, common.RelationUndercut},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := analyzer.Classify(context.Background(), tc.content, tc.stance, existing)
			if err != nil {
				t.Fatalf("Classify returned error: %v", err)
			}
			if len(got.ProposedEdges) == 0 {
				t.Fatal("expected a proposed edge for overlapping content")
			}
			edge := got.ProposedEdges[0]
			if edge.Relation != tc.want {
				t.Errorf("relation = %s, want %s", edge.Relation, tc.want)
			}
			if edge.Weight <= 0 || edge.Weight > 1 {
				t.Errorf("weight %f outside (0, 1]", edge.Weight)
			}
		})
	}
}

func TestEmbedNormalized(t *testing.T) {
	analyzer := New(32)

	vec := analyzer.Embed("public transit needs more funding")
	if len(vec) != 32 {
		t.Fatalf("embedding length = %d, want 32", len(vec))
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("embedding norm = %f, want 1", norm)
	}

	empty := analyzer.Embed("")
	if empty[0] != 1 {
		t.Errorf("empty text should fall back to a unit basis vector, got %v", empty[:4])
	}
}

func TestLabelCluster(t *testing.T) {
	analyzer := New(16)

	label, err := analyzer.LabelCluster(context.Background(), []string{
		"more housing near transit",
		"affordable housing is the priority",
		"housing costs keep climbing",
	})
	if err != nil {
		t.Fatalf("LabelCluster returned error: %v", err)
	}
	if label != "housing" {
		t.Errorf("label = %q, want %q", label, "housing")
	}

	fallback, err := analyzer.LabelCluster(context.Background(), nil)
	if err != nil {
		t.Fatalf("LabelCluster returned error: %v", err)
	}
	if fallback != "topic" {
		t.Errorf("empty sample label = %q, want %q", fallback, "topic")
	}
}
