package ecosystem

import (
	"context"
	"fmt"

	"github.com/ojpp/broadlistening/backend/pkg/common"
	"github.com/ojpp/broadlistening/backend/pkg/diversity"
	"github.com/ojpp/broadlistening/backend/pkg/logger"
	"github.com/ojpp/broadlistening/backend/pkg/store"
	"github.com/ojpp/broadlistening/backend/pkg/swarm"
)

// BatchResult reports one analysis run. RemainingUnanalyzed is counted
// after the batch was marked, so a poller can stop at zero.
type BatchResult struct {
	AnalyzedThisBatch   int `json:"analyzedThisBatch"`
	RemainingUnanalyzed int `json:"remainingUnanalyzed"`
}

// RunBatch analyzes the next batch of unanalyzed opinions of a topic.
//
// The run holds the topic's analysis cursor for its whole duration;
// a concurrent run on the same topic fails fast with ErrBusy. A topic
// without unanalyzed opinions returns {0,0} without taking the cursor and
// without recording history. On failure nothing is marked analyzed, so the
// next run retries the same batch.
func (e *Engine) RunBatch(ctx context.Context, topicID string, batchSize int) (BatchResult, error) {
	var result BatchResult

	if topicID == "" || batchSize <= 0 {
		return result, fmt.Errorf("%w: topic id %q, batch size %d", ErrInvalidInput, topicID, batchSize)
	}
	if batchSize > e.batchSizeCap {
		batchSize = e.batchSizeCap
	}

	exists, err := e.store.TopicExists(ctx, topicID)
	if err != nil {
		return result, fmt.Errorf("check topic %s: %w", topicID, err)
	}
	if !exists {
		return result, fmt.Errorf("%w: %s", ErrUnknownTopic, topicID)
	}

	pending, err := e.store.CountUnanalyzed(ctx, topicID)
	if err != nil {
		return result, fmt.Errorf("count unanalyzed for topic %s: %w", topicID, err)
	}
	if pending == 0 {
		return result, nil
	}

	lease, err := e.locker.TryAcquire(ctx, topicID, e.cursorTTL)
	if err != nil {
		return result, fmt.Errorf("acquire analysis cursor for topic %s: %w", topicID, err)
	}
	completed := false
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx), completed); err != nil {
			logger.Warn("[Ecosystem] Failed to release analysis cursor", "topic_id", topicID, "error", err)
		}
	}()

	batch, err := e.store.FetchUnanalyzed(ctx, topicID, batchSize)
	if err != nil {
		return result, fmt.Errorf("fetch batch for topic %s: %w", topicID, err)
	}
	if len(batch) == 0 {
		return result, nil
	}

	logger.Info("[Ecosystem] Analysis run started",
		"topic_id", topicID, "batch", len(batch), "pending", pending)

	nodes, edges, err := e.extractBatch(ctx, topicID, batch)
	if err != nil {
		return result, err
	}

	opinions, err := e.store.ListOpinions(ctx, topicID)
	if err != nil {
		return result, fmt.Errorf("list opinions for topic %s: %w", topicID, err)
	}
	previous, err := e.store.ListClusters(ctx, topicID)
	if err != nil {
		return result, fmt.Errorf("list clusters for topic %s: %w", topicID, err)
	}

	clustering, err := e.clusterer.Assign(ctx, topicID, opinions, previous)
	if err != nil {
		return result, fmt.Errorf("recluster topic %s: %w", topicID, err)
	}
	if err := e.store.ReplaceClusters(ctx, topicID, clustering.Clusters, clustering.Assignments); err != nil {
		return result, fmt.Errorf("replace clusters for topic %s: %w", topicID, err)
	}

	batchIDs := make(map[string]struct{}, len(batch))
	for _, op := range batch {
		batchIDs[op.ID] = struct{}{}
	}
	clustersByID := make(map[string]common.Cluster, len(clustering.Clusters))
	for _, c := range clustering.Clusters {
		clustersByID[c.ID] = c
	}
	nodeByOpinion := make(map[string]common.ArgumentNode, len(nodes))
	for _, n := range nodes {
		if n.OpinionID != "" {
			nodeByOpinion[n.OpinionID] = n
		}
	}

	updates := e.model.Step(swarm.Input{
		Opinions:      opinions,
		ClustersByID:  clustersByID,
		Assignments:   clustering.Assignments,
		NodeByOpinion: nodeByOpinion,
		Edges:         edges,
		BatchIDs:      batchIDs,
	})
	if err := e.store.UpdatePheromones(ctx, updates); err != nil {
		return result, fmt.Errorf("update pheromones for topic %s: %w", topicID, err)
	}

	entry := diversity.Snapshot(topicID, applyUpdates(opinions, updates), clustering.Assignments)
	if entry != nil {
		if err := e.store.AppendHistory(ctx, entry); err != nil {
			return result, fmt.Errorf("append history for topic %s: %w", topicID, err)
		}
	}

	analyzedIDs := make([]string, 0, len(batch))
	for _, op := range batch {
		analyzedIDs = append(analyzedIDs, op.ID)
	}
	if err := e.store.MarkAnalyzed(ctx, analyzedIDs); err != nil {
		return result, fmt.Errorf("mark analyzed for topic %s: %w", topicID, err)
	}

	remaining, err := e.store.CountUnanalyzed(ctx, topicID)
	if err != nil {
		return result, fmt.Errorf("count remaining for topic %s: %w", topicID, err)
	}

	completed = true
	result.AnalyzedThisBatch = len(batch)
	result.RemainingUnanalyzed = remaining

	logger.Info("[Ecosystem] Analysis run completed",
		"topic_id", topicID,
		"analyzed", result.AnalyzedThisBatch,
		"remaining", result.RemainingUnanalyzed,
		"clusters", len(clustering.Clusters))
	return result, nil
}

// extractBatch classifies each batch opinion in submission order, persisting
// node, edges and embedding as it goes. The growing graph is visible to
// later opinions in the same batch. Opinions that already carry a node from
// a previously failed run are not re-classified.
func (e *Engine) extractBatch(
	ctx context.Context,
	topicID string,
	batch []common.Opinion,
) ([]common.ArgumentNode, []common.ArgumentEdge, error) {
	nodes, err := e.store.ListNodes(ctx, topicID)
	if err != nil {
		return nil, nil, fmt.Errorf("list nodes for topic %s: %w", topicID, err)
	}
	edges, err := e.store.ListEdges(ctx, topicID)
	if err != nil {
		return nil, nil, fmt.Errorf("list edges for topic %s: %w", topicID, err)
	}

	extracted := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if n.OpinionID != "" {
			extracted[n.OpinionID] = struct{}{}
		}
	}

	for i := range batch {
		op := &batch[i]
		if _, done := extracted[op.ID]; done {
			continue
		}

		analyzeCtx, cancel := context.WithTimeout(ctx, e.analyzerTimeout)
		node, newEdges, embedding, err := e.extractor.Extract(analyzeCtx, op, nodes, edges)
		cancel()
		if err != nil {
			return nil, nil, fmt.Errorf("extract batch for topic %s: %w", topicID, err)
		}

		if err := e.store.SaveNode(ctx, node); err != nil {
			return nil, nil, fmt.Errorf("save node for opinion %s: %w", op.ID, err)
		}
		if err := e.store.SaveEdges(ctx, topicID, newEdges); err != nil {
			return nil, nil, fmt.Errorf("save edges for opinion %s: %w", op.ID, err)
		}
		if err := e.store.SaveEmbedding(ctx, op.ID, embedding); err != nil {
			return nil, nil, fmt.Errorf("save embedding for opinion %s: %w", op.ID, err)
		}

		nodes = append(nodes, *node)
		edges = append(edges, newEdges...)
		extracted[op.ID] = struct{}{}
	}

	return nodes, edges, nil
}

// applyUpdates overlays fresh pheromone state so the history entry reflects
// this run, not the previous one.
func applyUpdates(opinions []common.Opinion, updates []store.PheromoneUpdate) []common.Opinion {
	byID := make(map[string]store.PheromoneUpdate, len(updates))
	for _, u := range updates {
		byID[u.OpinionID] = u
	}
	out := make([]common.Opinion, len(opinions))
	for i, op := range opinions {
		if u, ok := byID[op.ID]; ok {
			op.PheromoneIntensity = u.Intensity
			op.PheromoneQuality = u.Quality
		}
		out[i] = op
	}
	return out
}
