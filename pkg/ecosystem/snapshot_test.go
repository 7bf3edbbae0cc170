package ecosystem

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ojpp/broadlistening/backend/pkg/common"
)

func TestBuildSnapshotUnknownTopic(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	_, err := engine.BuildSnapshot(context.Background(), "missing")
	if !errors.Is(err, ErrUnknownTopic) {
		t.Errorf("expected ErrUnknownTopic, got %v", err)
	}
}

func TestBuildSnapshotAfterRuns(t *testing.T) {
	engine, storage := newTestEngine(t, nil)
	seedTopic(t, storage, "topic-1", 5)
	ctx := context.Background()

	for {
		result, err := engine.RunBatch(ctx, "topic-1", 2)
		if err != nil {
			t.Fatalf("run batch: %v", err)
		}
		if result.RemainingUnanalyzed == 0 {
			break
		}
	}

	snapshot, err := engine.BuildSnapshot(ctx, "topic-1")
	if err != nil {
		t.Fatalf("build snapshot: %v", err)
	}

	if snapshot.Topic.ID != "topic-1" || snapshot.Topic.Title == "" {
		t.Errorf("topic view incomplete: %+v", snapshot.Topic)
	}
	if len(snapshot.Ecosystem.Opinions) != 5 {
		t.Fatalf("expected 5 opinions, got %d", len(snapshot.Ecosystem.Opinions))
	}
	if len(snapshot.ArgumentGraph.Nodes) != 5 {
		t.Errorf("expected 5 argument nodes, got %d", len(snapshot.ArgumentGraph.Nodes))
	}
	if len(snapshot.History) != 3 {
		t.Errorf("expected 3 history entries, got %d", len(snapshot.History))
	}

	for _, op := range snapshot.Ecosystem.Opinions {
		if op.X < 0 || op.X > 1 || op.Y < 0 || op.Y > 1 {
			t.Errorf("opinion %s position out of unit square: %f, %f", op.ID, op.X, op.Y)
		}
		if op.Fitness != op.PheromoneIntensity*op.PheromoneQuality {
			t.Errorf("opinion %s fitness %f not intensity·quality", op.ID, op.Fitness)
		}
		if !op.Analyzed {
			t.Errorf("opinion %s should be analyzed", op.ID)
		}
	}

	// analyzed opinions carry intensity, so they appear as pheromone sources
	if len(snapshot.Pheromone.Sources) == 0 {
		t.Error("expected pheromone sources after analysis runs")
	}

	// the wire format is camelCase
	raw, err := json.Marshal(snapshot)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"topic", "ecosystem", "argumentGraph", "pheromone", "history"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("snapshot JSON missing key %q", key)
		}
	}
}

func TestBuildSnapshotIncludesUnanalyzedOpinions(t *testing.T) {
	// a fresh opinion has no node and no pheromone: fitness 0, but it still
	// shows up in the ecosystem view
	engine, storage := newTestEngine(t, nil)
	seedTopic(t, storage, "topic-1", 2)
	ctx := context.Background()

	if _, err := engine.RunBatch(ctx, "topic-1", 2); err != nil {
		t.Fatalf("run batch: %v", err)
	}

	late := &common.Opinion{
		ID:      "op-late",
		TopicID: "topic-1",
		Content: "a brand new thought",
		Stance:  common.StanceNeutral,
	}
	if err := storage.InsertOpinion(ctx, late); err != nil {
		t.Fatal(err)
	}

	snapshot, err := engine.BuildSnapshot(ctx, "topic-1")
	if err != nil {
		t.Fatalf("build snapshot: %v", err)
	}

	var found *OpinionView
	for i := range snapshot.Ecosystem.Opinions {
		if snapshot.Ecosystem.Opinions[i].ID == "op-late" {
			found = &snapshot.Ecosystem.Opinions[i]
		}
	}
	if found == nil {
		t.Fatal("unanalyzed opinion missing from snapshot")
	}
	if found.Fitness != 0 {
		t.Errorf("unanalyzed opinion fitness = %f, want 0", found.Fitness)
	}
	if found.Analyzed {
		t.Error("opinion must not be flagged analyzed")
	}
	for _, src := range snapshot.Pheromone.Sources {
		if src.ID == "op-late" {
			t.Error("opinion without intensity must not be a pheromone source")
		}
	}
}
