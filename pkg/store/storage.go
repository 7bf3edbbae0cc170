package store

import (
	"context"
	"errors"

	"github.com/ojpp/broadlistening/backend/pkg/common"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// EcosystemStorage defines the interface for persisting and querying the
// deliberation ecosystem of a topic: opinions, the argument graph built on
// top of them, embedding clusters, pheromone state, and the diversity
// history. Implementations must keep edge writes set-semantic (a source,
// target, relation triple exists at most once) and must treat cluster
// replacement as atomic per topic.
type EcosystemStorage interface {
	TopicExists(ctx context.Context, topicID string) (bool, error)
	CreateTopic(ctx context.Context, topic *common.Topic) error
	GetTopic(ctx context.Context, topicID string) (*common.Topic, error)

	InsertOpinion(ctx context.Context, opinion *common.Opinion) error
	AdjustSupport(ctx context.Context, opinionID string, delta int) error
	FetchUnanalyzed(ctx context.Context, topicID string, limit int) ([]common.Opinion, error)
	MarkAnalyzed(ctx context.Context, opinionIDs []string) error
	CountUnanalyzed(ctx context.Context, topicID string) (int, error)
	CountOpinions(ctx context.Context, topicID string) (int, error)
	ListOpinions(ctx context.Context, topicID string) ([]common.Opinion, error)
	SaveEmbedding(ctx context.Context, opinionID string, embedding []float32) error

	SaveNode(ctx context.Context, node *common.ArgumentNode) error
	SaveEdges(ctx context.Context, topicID string, edges []common.ArgumentEdge) error
	ListNodes(ctx context.Context, topicID string) ([]common.ArgumentNode, error)
	ListEdges(ctx context.Context, topicID string) ([]common.ArgumentEdge, error)

	ReplaceClusters(ctx context.Context, topicID string, clusters []common.Cluster, assignments map[string]string) error
	ListClusters(ctx context.Context, topicID string) ([]common.Cluster, error)

	UpdatePheromones(ctx context.Context, updates []PheromoneUpdate) error

	AppendHistory(ctx context.Context, entry *common.HistoryEntry) error
	ListHistory(ctx context.Context, topicID string, limit int) ([]common.HistoryEntry, error)
}

// PheromoneUpdate carries the post-batch swarm state for one opinion.
type PheromoneUpdate struct {
	OpinionID       string
	Intensity       float64
	Quality         float64
	RewardedSupport int
}
