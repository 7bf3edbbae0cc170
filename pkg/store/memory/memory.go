// Package memory provides an in-process EcosystemStorage used by tests and
// by local development without a database. All methods are safe for
// concurrent use.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/ojpp/broadlistening/backend/pkg/common"
	"github.com/ojpp/broadlistening/backend/pkg/store"
)

type Storage struct {
	mu sync.RWMutex

	topics   map[string]common.Topic
	opinions map[string]*common.Opinion
	nodes    map[string]common.ArgumentNode
	edges    map[string]map[string]common.ArgumentEdge // topicID -> edge key -> edge
	clusters map[string][]common.Cluster
	history  map[string][]common.HistoryEntry

	// opinion insertion order per topic, used to break submitted-at ties
	// the same way a serial primary key would.
	order map[string][]string
}

var _ store.EcosystemStorage = (*Storage)(nil)

func New() *Storage {
	return &Storage{
		topics:   make(map[string]common.Topic),
		opinions: make(map[string]*common.Opinion),
		nodes:    make(map[string]common.ArgumentNode),
		edges:    make(map[string]map[string]common.ArgumentEdge),
		clusters: make(map[string][]common.Cluster),
		history:  make(map[string][]common.HistoryEntry),
		order:    make(map[string][]string),
	}
}

func (s *Storage) TopicExists(_ context.Context, topicID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.topics[topicID]
	return ok, nil
}

func (s *Storage) CreateTopic(_ context.Context, topic *common.Topic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[topic.ID] = *topic
	return nil
}

func (s *Storage) GetTopic(_ context.Context, topicID string) (*common.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topic, ok := s.topics[topicID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &topic, nil
}

func (s *Storage) InsertOpinion(_ context.Context, opinion *common.Opinion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *opinion
	if cp.SubmittedAt.IsZero() {
		cp.SubmittedAt = time.Now()
	}
	s.opinions[cp.ID] = &cp
	s.order[cp.TopicID] = append(s.order[cp.TopicID], cp.ID)
	return nil
}

func (s *Storage) AdjustSupport(_ context.Context, opinionID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.opinions[opinionID]
	if !ok {
		return store.ErrNotFound
	}
	op.SupportCount += delta
	if op.SupportCount < 0 {
		op.SupportCount = 0
	}
	return nil
}

func (s *Storage) FetchUnanalyzed(_ context.Context, topicID string, limit int) ([]common.Opinion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Opinion, 0, limit)
	for _, op := range s.sortedTopicOpinions(topicID) {
		if op.Analyzed {
			continue
		}
		out = append(out, *op)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Storage) MarkAnalyzed(_ context.Context, opinionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range opinionIDs {
		if op, ok := s.opinions[id]; ok {
			op.Analyzed = true
		}
	}
	return nil
}

func (s *Storage) CountUnanalyzed(_ context.Context, topicID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, op := range s.opinions {
		if op.TopicID == topicID && !op.Analyzed {
			count++
		}
	}
	return count, nil
}

func (s *Storage) CountOpinions(_ context.Context, topicID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, op := range s.opinions {
		if op.TopicID == topicID {
			count++
		}
	}
	return count, nil
}

func (s *Storage) ListOpinions(_ context.Context, topicID string) ([]common.Opinion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ops := s.sortedTopicOpinions(topicID)
	out := make([]common.Opinion, 0, len(ops))
	for _, op := range ops {
		out = append(out, *op)
	}
	return out, nil
}

func (s *Storage) SaveEmbedding(_ context.Context, opinionID string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.opinions[opinionID]
	if !ok {
		return store.ErrNotFound
	}
	op.Embedding = slices.Clone(embedding)
	return nil
}

func (s *Storage) SaveNode(_ context.Context, node *common.ArgumentNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[node.ID] = *node
	return nil
}

func (s *Storage) SaveEdges(_ context.Context, topicID string, edges []common.ArgumentEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey := s.edges[topicID]
	if byKey == nil {
		byKey = make(map[string]common.ArgumentEdge)
		s.edges[topicID] = byKey
	}
	for _, e := range edges {
		key := e.Key()
		if _, exists := byKey[key]; exists {
			continue
		}
		byKey[key] = e
	}
	return nil
}

func (s *Storage) ListNodes(_ context.Context, topicID string) ([]common.ArgumentNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.ArgumentNode, 0)
	for _, n := range s.nodes {
		if n.TopicID == topicID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Storage) ListEdges(_ context.Context, topicID string) ([]common.ArgumentEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byKey := s.edges[topicID]
	out := make([]common.ArgumentEdge, 0, len(byKey))
	for _, e := range byKey {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

func (s *Storage) ReplaceClusters(_ context.Context, topicID string, clusters []common.Cluster, assignments map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters[topicID] = slices.Clone(clusters)
	for opinionID, clusterID := range assignments {
		if op, ok := s.opinions[opinionID]; ok {
			op.ClusterID = clusterID
		}
	}
	return nil
}

func (s *Storage) ListClusters(_ context.Context, topicID string) ([]common.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.clusters[topicID]), nil
}

func (s *Storage) UpdatePheromones(_ context.Context, updates []store.PheromoneUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		op, ok := s.opinions[u.OpinionID]
		if !ok {
			return store.ErrNotFound
		}
		op.PheromoneIntensity = u.Intensity
		op.PheromoneQuality = u.Quality
		op.RewardedSupport = u.RewardedSupport
	}
	return nil
}

func (s *Storage) AppendHistory(_ context.Context, entry *common.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.history[entry.TopicID] = append(s.history[entry.TopicID], cp)
	return nil
}

func (s *Storage) ListHistory(_ context.Context, topicID string, limit int) ([]common.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.history[topicID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return slices.Clone(entries), nil
}

// sortedTopicOpinions returns the topic's opinions oldest first, with
// insertion order as tiebreak. Callers must hold at least the read lock.
func (s *Storage) sortedTopicOpinions(topicID string) []*common.Opinion {
	ids := s.order[topicID]
	out := make([]*common.Opinion, 0, len(ids))
	for _, id := range ids {
		if op, ok := s.opinions[id]; ok {
			out = append(out, op)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}
