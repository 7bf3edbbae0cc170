package ecosystem

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ojpp/broadlistening/backend/pkg/cluster"
	"github.com/ojpp/broadlistening/backend/pkg/common"
)

// Snapshot is the full read model of a topic's deliberation state, shaped
// for the topic view. All numbers are derived at read time; a snapshot
// taken during a running batch is simply the state between two runs.
type Snapshot struct {
	Topic         TopicView     `json:"topic"`
	Ecosystem     EcosystemView `json:"ecosystem"`
	ArgumentGraph GraphView     `json:"argumentGraph"`
	Pheromone     PheromoneView `json:"pheromone"`
	History       []HistoryView `json:"history"`
}

type TopicView struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Phase string `json:"phase"`
}

type EcosystemView struct {
	Opinions []OpinionView `json:"opinions"`
	Clusters []ClusterView `json:"clusters"`
}

type OpinionView struct {
	ID                 string  `json:"id"`
	X                  float64 `json:"x"`
	Y                  float64 `json:"y"`
	Fitness            float64 `json:"fitness"`
	SupportCount       int     `json:"supportCount"`
	ClusterID          string  `json:"clusterId"`
	ClusterColor       string  `json:"clusterColor"`
	ClusterLabel       string  `json:"clusterLabel"`
	Content            string  `json:"content"`
	PheromoneIntensity float64 `json:"pheromoneIntensity"`
	PheromoneQuality   float64 `json:"pheromoneQuality"`
	Stance             string  `json:"stance"`
	Analyzed           bool    `json:"analyzed"`
}

type ClusterView struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	CenterX float64 `json:"centerX"`
	CenterY float64 `json:"centerY"`
	Radius  float64 `json:"radius"`
	Color   string  `json:"color"`
	Size    int     `json:"size"`
}

type GraphView struct {
	Nodes []NodeView `json:"nodes"`
	Edges []EdgeView `json:"edges"`
}

type NodeView struct {
	ID         string  `json:"id"`
	OpinionID  string  `json:"opinionId,omitempty"`
	Type       string  `json:"type"`
	Content    string  `json:"content"`
	Confidence float64 `json:"confidence"`
}

type EdgeView struct {
	SourceID string  `json:"sourceId"`
	TargetID string  `json:"targetId"`
	Relation string  `json:"relation"`
	Weight   float64 `json:"weight"`
}

type PheromoneView struct {
	Sources []PheromoneSource `json:"sources"`
}

type PheromoneSource struct {
	ID        string  `json:"id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Intensity float64 `json:"intensity"`
	Quality   float64 `json:"quality"`
	Content   string  `json:"content,omitempty"`
	Stance    string  `json:"stance,omitempty"`
}

type HistoryView struct {
	ShannonIndex  float64 `json:"shannonIndex"`
	AvgFitness    float64 `json:"avgFitness"`
	AvgPheromone  float64 `json:"avgPheromone"`
	TotalOpinions int     `json:"totalOpinions"`
	CreatedAt     string  `json:"createdAt"`
}

const historyLimit = 200

// BuildSnapshot assembles the topic's complete state with parallel reads.
// It never writes and is safe to call while a batch is running.
func (e *Engine) BuildSnapshot(ctx context.Context, topicID string) (*Snapshot, error) {
	if topicID == "" {
		return nil, fmt.Errorf("%w: empty topic id", ErrInvalidInput)
	}

	topic, err := e.store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topicID)
	}

	var (
		opinions []common.Opinion
		clusters []common.Cluster
		nodes    []common.ArgumentNode
		edges    []common.ArgumentEdge
		history  []common.HistoryEntry
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		opinions, err = e.store.ListOpinions(groupCtx, topicID)
		return err
	})
	group.Go(func() (err error) {
		clusters, err = e.store.ListClusters(groupCtx, topicID)
		return err
	})
	group.Go(func() (err error) {
		nodes, err = e.store.ListNodes(groupCtx, topicID)
		return err
	})
	group.Go(func() (err error) {
		edges, err = e.store.ListEdges(groupCtx, topicID)
		return err
	})
	group.Go(func() (err error) {
		history, err = e.store.ListHistory(groupCtx, topicID, historyLimit)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("build snapshot for topic %s: %w", topicID, err)
	}

	snapshot := &Snapshot{
		Topic: TopicView{ID: topic.ID, Title: topic.Title, Phase: topic.Phase},
		Ecosystem: EcosystemView{
			Opinions: make([]OpinionView, 0, len(opinions)),
			Clusters: make([]ClusterView, 0, len(clusters)),
		},
		ArgumentGraph: GraphView{
			Nodes: make([]NodeView, 0, len(nodes)),
			Edges: make([]EdgeView, 0, len(edges)),
		},
		Pheromone: PheromoneView{Sources: make([]PheromoneSource, 0, len(opinions))},
		History:   make([]HistoryView, 0, len(history)),
	}

	clustersByID := make(map[string]common.Cluster, len(clusters))
	for _, c := range clusters {
		clustersByID[c.ID] = c
		snapshot.Ecosystem.Clusters = append(snapshot.Ecosystem.Clusters, ClusterView{
			ID:      c.ID,
			Label:   c.Label,
			CenterX: c.CenterX,
			CenterY: c.CenterY,
			Radius:  c.Radius,
			Color:   c.Color,
			Size:    c.Size,
		})
	}

	points := opinionPositions(topicID, opinions)
	for i := range opinions {
		op := &opinions[i]
		view := OpinionView{
			ID:                 op.ID,
			X:                  points[i][0],
			Y:                  points[i][1],
			Fitness:            op.Fitness(),
			SupportCount:       op.SupportCount,
			ClusterID:          op.ClusterID,
			Content:            op.Content,
			PheromoneIntensity: op.PheromoneIntensity,
			PheromoneQuality:   op.PheromoneQuality,
			Stance:             string(op.Stance),
			Analyzed:           op.Analyzed,
		}
		if c, ok := clustersByID[op.ClusterID]; ok {
			view.ClusterColor = c.Color
			view.ClusterLabel = c.Label
		}
		snapshot.Ecosystem.Opinions = append(snapshot.Ecosystem.Opinions, view)

		if op.PheromoneIntensity > 0 {
			snapshot.Pheromone.Sources = append(snapshot.Pheromone.Sources, PheromoneSource{
				ID:        op.ID,
				X:         view.X,
				Y:         view.Y,
				Intensity: op.PheromoneIntensity,
				Quality:   op.PheromoneQuality,
				Content:   op.Content,
				Stance:    string(op.Stance),
			})
		}
	}

	for _, n := range nodes {
		snapshot.ArgumentGraph.Nodes = append(snapshot.ArgumentGraph.Nodes, NodeView{
			ID:         n.ID,
			OpinionID:  n.OpinionID,
			Type:       string(n.Type),
			Content:    n.Content,
			Confidence: n.Confidence,
		})
	}
	for _, edge := range edges {
		snapshot.ArgumentGraph.Edges = append(snapshot.ArgumentGraph.Edges, EdgeView{
			SourceID: edge.SourceID,
			TargetID: edge.TargetID,
			Relation: string(edge.Relation),
			Weight:   edge.Weight,
		})
	}
	for _, h := range history {
		snapshot.History = append(snapshot.History, HistoryView{
			ShannonIndex:  h.ShannonIndex,
			AvgFitness:    h.AvgFitness,
			AvgPheromone:  h.AvgPheromone,
			TotalOpinions: h.TotalOpinions,
			CreatedAt:     h.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		})
	}

	return snapshot, nil
}

// opinionPositions projects every opinion with an embedding onto the same
// deterministic plane the clusterer uses. Opinions without an embedding sit
// at the center.
func opinionPositions(topicID string, opinions []common.Opinion) [][2]float64 {
	embedded := make([][]float32, 0, len(opinions))
	index := make([]int, 0, len(opinions))
	for i := range opinions {
		if len(opinions[i].Embedding) > 0 {
			embedded = append(embedded, opinions[i].Embedding)
			index = append(index, i)
		}
	}

	points := make([][2]float64, len(opinions))
	for i := range points {
		points[i] = [2]float64{0.5, 0.5}
	}
	for j, p := range cluster.Project2D(cluster.Seed(topicID), embedded) {
		points[index[j]] = p
	}
	return points
}
