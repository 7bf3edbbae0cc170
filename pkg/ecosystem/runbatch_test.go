package ecosystem

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ojpp/broadlistening/backend/pkg/ai"
	"github.com/ojpp/broadlistening/backend/pkg/ai/rulebased"
	"github.com/ojpp/broadlistening/backend/pkg/common"
	"github.com/ojpp/broadlistening/backend/pkg/cursor"
	"github.com/ojpp/broadlistening/backend/pkg/store/memory"
)

func newTestEngine(t *testing.T, analyzer ai.OpinionAnalyzer) (*Engine, *memory.Storage) {
	t.Helper()
	storage := memory.New()
	if analyzer == nil {
		analyzer = rulebased.New(16)
	}
	engine, err := New(Params{
		Store:    storage,
		Analyzer: analyzer,
		Locker:   cursor.NewMemoryLocker(),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine, storage
}

func seedTopic(t *testing.T, storage *memory.Storage, topicID string, opinionCount int) {
	t.Helper()
	ctx := context.Background()
	if err := storage.CreateTopic(ctx, &common.Topic{ID: topicID, Title: "Traffic policy", Phase: "DELIBERATION"}); err != nil {
		t.Fatalf("create topic: %v", err)
	}
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	contents := []string{
		"The city center should be car free on weekends",
		"Shops lose customers when nobody can park nearby",
		"Studies from Oslo show retail revenue grew after the ban",
		"That claim ignores that Oslo has far better transit",
		"A weekend trial period would settle the question with data",
	}
	stances := []common.Stance{
		common.StanceFor, common.StanceAgainst, common.StanceFor,
		common.StanceAgainst, common.StanceNeutral,
	}
	for i := 0; i < opinionCount; i++ {
		op := &common.Opinion{
			ID:          fmt.Sprintf("op-%d", i+1),
			TopicID:     topicID,
			Content:     contents[i%len(contents)],
			Stance:      stances[i%len(stances)],
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := storage.InsertOpinion(context.Background(), op); err != nil {
			t.Fatalf("insert opinion: %v", err)
		}
	}
}

func TestRunBatchInvalidInput(t *testing.T) {
	engine, storage := newTestEngine(t, nil)
	seedTopic(t, storage, "topic-1", 1)

	tests := []struct {
		name      string
		topicID   string
		batchSize int
		wantErr   error
	}{
		{"zero batch size", "topic-1", 0, ErrInvalidInput},
		{"negative batch size", "topic-1", -3, ErrInvalidInput},
		{"empty topic id", "", 2, ErrInvalidInput},
		{"unknown topic", "missing", 2, ErrUnknownTopic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.RunBatch(context.Background(), tt.topicID, tt.batchSize)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	// nothing was mutated by the rejected runs
	count, _ := storage.CountUnanalyzed(context.Background(), "topic-1")
	if count != 1 {
		t.Errorf("rejected runs must not mark opinions, unanalyzed = %d", count)
	}
}

func TestRunBatchEmptyTopic(t *testing.T) {
	engine, storage := newTestEngine(t, nil)
	ctx := context.Background()
	if err := storage.CreateTopic(ctx, &common.Topic{ID: "empty", Title: "Empty"}); err != nil {
		t.Fatal(err)
	}

	result, err := engine.RunBatch(ctx, "empty", 5)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if result.AnalyzedThisBatch != 0 || result.RemainingUnanalyzed != 0 {
		t.Errorf("expected {0,0}, got %+v", result)
	}
	history, _ := storage.ListHistory(ctx, "empty", 0)
	if len(history) != 0 {
		t.Errorf("empty run must not record history, got %d entries", len(history))
	}
}

// The canonical progression: five opinions analyzed in batches of two.
func TestRunBatchProgression(t *testing.T) {
	engine, storage := newTestEngine(t, nil)
	seedTopic(t, storage, "topic-1", 5)
	ctx := context.Background()

	want := []BatchResult{
		{AnalyzedThisBatch: 2, RemainingUnanalyzed: 3},
		{AnalyzedThisBatch: 2, RemainingUnanalyzed: 1},
		{AnalyzedThisBatch: 1, RemainingUnanalyzed: 0},
		{AnalyzedThisBatch: 0, RemainingUnanalyzed: 0},
	}
	for i, expected := range want {
		got, err := engine.RunBatch(ctx, "topic-1", 2)
		if err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		if got != expected {
			t.Fatalf("run %d: got %+v, want %+v", i+1, got, expected)
		}
	}

	history, err := storage.ListHistory(ctx, "topic-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 3 {
		t.Errorf("expected exactly 3 history entries, got %d", len(history))
	}
	for i, h := range history {
		if h.ShannonIndex < 0 {
			t.Errorf("entry %d: negative shannon index %v", i, h.ShannonIndex)
		}
		if h.TotalOpinions != 5 {
			t.Errorf("entry %d: total opinions %d, want 5", i, h.TotalOpinions)
		}
	}

	// batch order followed submission order
	opinions, _ := storage.ListOpinions(ctx, "topic-1")
	for _, op := range opinions {
		if !op.Analyzed {
			t.Errorf("opinion %s left unanalyzed", op.ID)
		}
		if len(op.Embedding) == 0 {
			t.Errorf("opinion %s has no embedding", op.ID)
		}
	}
	nodes, _ := storage.ListNodes(ctx, "topic-1")
	if len(nodes) != 5 {
		t.Errorf("expected one node per opinion, got %d", len(nodes))
	}
}

type gateAnalyzer struct {
	inner   ai.OpinionAnalyzer
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gateAnalyzer) Classify(ctx context.Context, content string, stance common.Stance, existing []ai.NodeContext) (*ai.Classification, error) {
	g.once.Do(func() {
		close(g.started)
		<-g.release
	})
	return g.inner.Classify(ctx, content, stance, existing)
}

func (g *gateAnalyzer) LabelCluster(ctx context.Context, samples []string) (string, error) {
	return g.inner.LabelCluster(ctx, samples)
}

func TestRunBatchExclusivePerTopic(t *testing.T) {
	gate := &gateAnalyzer{
		inner:   rulebased.New(16),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	engine, storage := newTestEngine(t, gate)
	seedTopic(t, storage, "topic-1", 3)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := engine.RunBatch(ctx, "topic-1", 2)
		done <- err
	}()

	<-gate.started
	_, err := engine.RunBatch(ctx, "topic-1", 2)
	if !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent run must fail with ErrBusy, got %v", err)
	}

	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	// cursor released: a later run proceeds
	if _, err := engine.RunBatch(ctx, "topic-1", 2); err != nil {
		t.Fatalf("run after release failed: %v", err)
	}
}

func TestRunBatchDifferentTopicsParallel(t *testing.T) {
	engine, storage := newTestEngine(t, nil)
	seedTopic(t, storage, "topic-a", 2)
	seedTopic(t, storage, "topic-b", 2)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, topicID := range []string{"topic-a", "topic-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := engine.RunBatch(context.Background(), id, 5)
			errs <- err
		}(topicID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("parallel run failed: %v", err)
		}
	}
}

type flakyAnalyzer struct {
	inner  ai.OpinionAnalyzer
	failOn func(call int) bool
	calls  int
}

func (f *flakyAnalyzer) Classify(ctx context.Context, content string, stance common.Stance, existing []ai.NodeContext) (*ai.Classification, error) {
	f.calls++
	if f.failOn != nil && f.failOn(f.calls) {
		return nil, ai.ErrUnavailable
	}
	return f.inner.Classify(ctx, content, stance, existing)
}

func (f *flakyAnalyzer) LabelCluster(ctx context.Context, samples []string) (string, error) {
	return f.inner.LabelCluster(ctx, samples)
}

func TestRunBatchFailureLeavesBatchUnmarked(t *testing.T) {
	flaky := &flakyAnalyzer{inner: rulebased.New(16), failOn: func(call int) bool { return call <= 2 }}
	engine, storage := newTestEngine(t, flaky)
	seedTopic(t, storage, "topic-1", 3)
	ctx := context.Background()

	_, err := engine.RunBatch(ctx, "topic-1", 2)
	if !errors.Is(err, ai.ErrUnavailable) {
		t.Fatalf("expected analyzer failure to surface, got %v", err)
	}
	count, _ := storage.CountUnanalyzed(ctx, "topic-1")
	if count != 3 {
		t.Errorf("failed run must not mark opinions, unanalyzed = %d", count)
	}
	history, _ := storage.ListHistory(ctx, "topic-1", 0)
	if len(history) != 0 {
		t.Errorf("failed run must not record history, got %d", len(history))
	}

	// retry succeeds on the same batch and releases the cursor state
	result, err := engine.RunBatch(ctx, "topic-1", 2)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if result.AnalyzedThisBatch != 2 || result.RemainingUnanalyzed != 1 {
		t.Errorf("retry result %+v, want {2,1}", result)
	}
}

func TestRunBatchRetryDoesNotDuplicate(t *testing.T) {
	// fail after the first opinion was fully extracted; the retry must not
	// create a second node or duplicate edges for it
	flaky := &flakyAnalyzer{inner: rulebased.New(16), failOn: func(call int) bool { return call == 2 }}
	engine, storage := newTestEngine(t, flaky)
	seedTopic(t, storage, "topic-1", 2)
	ctx := context.Background()

	if _, err := engine.RunBatch(ctx, "topic-1", 2); err == nil {
		t.Fatal("expected failure on second opinion")
	}

	nodesAfterFailure, _ := storage.ListNodes(ctx, "topic-1")
	if len(nodesAfterFailure) != 1 {
		t.Fatalf("expected one node from the partial run, got %d", len(nodesAfterFailure))
	}

	if _, err := engine.RunBatch(ctx, "topic-1", 2); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	nodes, _ := storage.ListNodes(ctx, "topic-1")
	if len(nodes) != 2 {
		t.Errorf("expected two nodes after retry, got %d", len(nodes))
	}
	seen := make(map[string]int)
	for _, n := range nodes {
		seen[n.OpinionID]++
	}
	for opinionID, c := range seen {
		if c != 1 {
			t.Errorf("opinion %s has %d nodes, want 1", opinionID, c)
		}
	}

	edges, _ := storage.ListEdges(ctx, "topic-1")
	keys := make(map[string]int)
	for _, e := range edges {
		keys[e.Key()]++
	}
	for key, c := range keys {
		if c != 1 {
			t.Errorf("edge %q persisted %d times", key, c)
		}
	}
}

func TestRunBatchCapsBatchSize(t *testing.T) {
	storage := memory.New()
	engine, err := New(Params{
		Store:        storage,
		Analyzer:     rulebased.New(16),
		Locker:       cursor.NewMemoryLocker(),
		BatchSizeCap: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	seedTopic(t, storage, "topic-1", 4)

	result, err := engine.RunBatch(context.Background(), "topic-1", 100)
	if err != nil {
		t.Fatalf("run batch: %v", err)
	}
	if result.AnalyzedThisBatch != 2 {
		t.Errorf("cap ignored: analyzed %d, want 2", result.AnalyzedThisBatch)
	}
}
