package cluster

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/ojpp/broadlistening/backend/pkg/ai"
	"github.com/ojpp/broadlistening/backend/pkg/common"
)

type fixedLabeler struct {
	calls int
}

func (f *fixedLabeler) Classify(context.Context, string, common.Stance, []ai.NodeContext) (*ai.Classification, error) {
	return nil, ai.ErrUnavailable
}

func (f *fixedLabeler) LabelCluster(_ context.Context, _ []string) (string, error) {
	f.calls++
	return fmt.Sprintf("label-%d", f.calls), nil
}

func newTestRand() *rand.Rand {
	return rand.New(rand.NewSource(1))
}

func TestClusterCount(t *testing.T) {
	tests := []struct {
		n, max, want int
	}{
		{1, 8, 1},
		{2, 8, 1},
		{5, 8, 2},
		{8, 8, 2},
		{18, 8, 3},
		{50, 8, 5},
		{200, 8, 8},
		{200, 4, 4},
	}
	for _, tt := range tests {
		if got := clusterCount(tt.n, tt.max); got != tt.want {
			t.Errorf("clusterCount(%d, %d) = %d, want %d", tt.n, tt.max, got, tt.want)
		}
	}
}

func TestKmeansDeterministic(t *testing.T) {
	vectors := testVectors(20, 3)
	a1, c1 := kmeans(vectors, 3, newTestRand())
	a2, c2 := kmeans(vectors, 3, newTestRand())

	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatalf("assignment differs at %d: %d != %d", i, a1[i], a2[i])
		}
	}
	for i := range c1 {
		for d := range c1[i] {
			if c1[i][d] != c2[i][d] {
				t.Fatalf("centroid %d differs at dim %d", i, d)
			}
		}
	}
}

func TestKmeansSeparatesObviousGroups(t *testing.T) {
	// two tight groups far apart must not share a cluster
	vectors := [][]float32{
		{0, 0}, {0.1, 0}, {0, 0.1}, {0.1, 0.1},
		{10, 10}, {10.1, 10}, {10, 10.1}, {10.1, 10.1},
	}
	assignment, _ := kmeans(vectors, 2, newTestRand())
	for i := 1; i < 4; i++ {
		if assignment[i] != assignment[0] {
			t.Errorf("low group split: %v", assignment)
		}
	}
	for i := 5; i < 8; i++ {
		if assignment[i] != assignment[4] {
			t.Errorf("high group split: %v", assignment)
		}
	}
	if assignment[0] == assignment[4] {
		t.Errorf("groups merged: %v", assignment)
	}
}

func TestProject2DNormalized(t *testing.T) {
	points := Project2D(42, testVectors(15, 4))
	for i, p := range points {
		if p[0] < 0 || p[0] > 1 || p[1] < 0 || p[1] > 1 {
			t.Errorf("point %d out of unit square: %v", i, p)
		}
	}

	// identical vectors collapse to the center
	same := Project2D(42, [][]float32{{1, 2}, {1, 2}, {1, 2}})
	for _, p := range same {
		if p[0] != 0.5 || p[1] != 0.5 {
			t.Errorf("degenerate projection should center, got %v", p)
		}
	}
}

func TestMemberHashStable(t *testing.T) {
	a := MemberHash([]string{"a", "b", "c"})
	b := MemberHash([]string{"a", "b", "c"})
	if a != b {
		t.Errorf("hash not stable: %s != %s", a, b)
	}
	if MemberHash([]string{"a", "b"}) == a {
		t.Error("different member sets must hash differently")
	}
	// separator prevents boundary collisions
	if MemberHash([]string{"ab", "c"}) == MemberHash([]string{"a", "bc"}) {
		t.Error("member boundary collision")
	}
}

func TestAssignSmallGroupsFoldIntoUnclustered(t *testing.T) {
	engine := newTestEngine(t)

	// two opinions with embeddings, below MinClusterSize 3
	opinions := []common.Opinion{
		{ID: "op-1", Embedding: []float32{0, 0}},
		{ID: "op-2", Embedding: []float32{0.1, 0}},
		{ID: "op-3"}, // no embedding
	}
	result, err := engine.Assign(context.Background(), "topic-1", opinions, nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(result.Clusters) != 0 {
		t.Errorf("expected no clusters, got %d", len(result.Clusters))
	}
	for _, op := range opinions {
		if result.Assignments[op.ID] != common.UnclusteredID {
			t.Errorf("opinion %s should be unclustered, got %q", op.ID, result.Assignments[op.ID])
		}
	}
}

func TestAssignBuildsClusters(t *testing.T) {
	engine := newTestEngine(t)

	opinions := make([]common.Opinion, 0, 8)
	for i := 0; i < 4; i++ {
		opinions = append(opinions, common.Opinion{
			ID:        fmt.Sprintf("low-%d", i),
			Content:   "parking fees are too high",
			Embedding: []float32{float32(i) * 0.05, 0},
		})
	}
	for i := 0; i < 4; i++ {
		opinions = append(opinions, common.Opinion{
			ID:        fmt.Sprintf("high-%d", i),
			Content:   "more bike lanes please",
			Embedding: []float32{10 + float32(i)*0.05, 10},
		})
	}

	result, err := engine.Assign(context.Background(), "topic-1", opinions, nil)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(result.Clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(result.Clusters))
	}
	for _, c := range result.Clusters {
		if c.Size != 4 {
			t.Errorf("expected size 4, got %d", c.Size)
		}
		if c.Label == "" || c.Color == "" || c.MemberHash == "" {
			t.Errorf("cluster missing metadata: %+v", c)
		}
		if c.Radius < 0 {
			t.Errorf("negative radius: %f", c.Radius)
		}
		if c.CenterX < 0 || c.CenterX > 1 || c.CenterY < 0 || c.CenterY > 1 {
			t.Errorf("center out of unit square: %f, %f", c.CenterX, c.CenterY)
		}
	}

	// members of the same embedding group share a cluster id
	if result.Assignments["low-0"] != result.Assignments["low-3"] {
		t.Error("low group split across clusters")
	}
	if result.Assignments["low-0"] == result.Assignments["high-0"] {
		t.Error("distinct groups share a cluster")
	}
}

func TestAssignIdentityContinuity(t *testing.T) {
	engine := newTestEngine(t)

	opinions := make([]common.Opinion, 0, 8)
	for i := 0; i < 4; i++ {
		opinions = append(opinions, common.Opinion{
			ID:        fmt.Sprintf("low-%d", i),
			Content:   "parking fees",
			Embedding: []float32{float32(i) * 0.05, 0},
		})
	}
	for i := 0; i < 4; i++ {
		opinions = append(opinions, common.Opinion{
			ID:        fmt.Sprintf("high-%d", i),
			Content:   "bike lanes",
			Embedding: []float32{10 + float32(i)*0.05, 10},
		})
	}

	first, err := engine.Assign(context.Background(), "topic-1", opinions, nil)
	if err != nil {
		t.Fatalf("first assign: %v", err)
	}

	// carry the assignments forward, as a store would
	for i := range opinions {
		opinions[i].ClusterID = first.Assignments[opinions[i].ID]
	}

	second, err := engine.Assign(context.Background(), "topic-1", opinions, first.Clusters)
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}

	firstByHash := make(map[string]common.Cluster)
	for _, c := range first.Clusters {
		firstByHash[c.MemberHash] = c
	}
	for _, c := range second.Clusters {
		prev, ok := firstByHash[c.MemberHash]
		if !ok {
			t.Fatalf("partition changed between identical runs")
		}
		if c.Label != prev.Label || c.Color != prev.Color {
			t.Errorf("identity not carried: %q/%q vs %q/%q", c.Label, c.Color, prev.Label, prev.Color)
		}
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := New(Params{Analyzer: &fixedLabeler{}})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func testVectors(n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for d := range v {
			v[d] = float32(math.Sin(float64(i*dim + d)))
		}
		out[i] = v
	}
	return out
}
