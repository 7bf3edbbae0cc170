// Package swarm implements the pheromone model that ranks opinions.
// Every run decays all trails, then deposits onto opinions that were just
// analyzed or freshly endorsed. Fitness is intensity times quality and is
// always derived, never stored.
package swarm

import (
	"math"

	"github.com/ojpp/broadlistening/backend/pkg/cluster"
	"github.com/ojpp/broadlistening/backend/pkg/common"
	"github.com/ojpp/broadlistening/backend/pkg/store"
)

const (
	DefaultDecayFactor = 0.95
	DefaultBaseDeposit = 1.0

	// neutralCentrality is used when an opinion has no cluster position.
	neutralCentrality = 0.5
)

type Model struct {
	decayFactor float64
	baseDeposit float64
}

type Params struct {
	DecayFactor float64
	BaseDeposit float64
}

func New(params Params) *Model {
	if params.DecayFactor <= 0 || params.DecayFactor > 1 {
		params.DecayFactor = DefaultDecayFactor
	}
	if params.BaseDeposit <= 0 {
		params.BaseDeposit = DefaultBaseDeposit
	}
	return &Model{decayFactor: params.DecayFactor, baseDeposit: params.BaseDeposit}
}

// Input is the complete post-clustering state of a topic for one run.
type Input struct {
	Opinions      []common.Opinion
	ClustersByID  map[string]common.Cluster
	Assignments   map[string]string
	NodeByOpinion map[string]common.ArgumentNode
	Edges         []common.ArgumentEdge
	// BatchIDs marks the opinions analyzed in this run; they always
	// receive a deposit.
	BatchIDs map[string]struct{}
}

// Step runs one decay-and-deposit cycle over the whole topic and returns
// the new pheromone state per opinion. Nothing is mutated.
func (m *Model) Step(in Input) []store.PheromoneUpdate {
	supportW, attackW := incidentWeights(in.Edges)

	updates := make([]store.PheromoneUpdate, 0, len(in.Opinions))
	for i := range in.Opinions {
		op := &in.Opinions[i]

		intensity := op.PheromoneIntensity * m.decayFactor
		rewarded := op.RewardedSupport

		_, inBatch := in.BatchIDs[op.ID]
		endorsed := op.SupportCount > op.RewardedSupport
		if inBatch || endorsed {
			intensity += m.deposit(op, in)
			rewarded = op.SupportCount
		}

		quality := 0.0
		if node, ok := in.NodeByOpinion[op.ID]; ok {
			quality = Quality(node.Confidence, supportW[node.ID], attackW[node.ID])
		}

		updates = append(updates, store.PheromoneUpdate{
			OpinionID:       op.ID,
			Intensity:       intensity,
			Quality:         quality,
			RewardedSupport: rewarded,
		})
	}
	return updates
}

// deposit = base · (1 + ln(1+support)) · (0.5 + 0.5·centrality)
func (m *Model) deposit(op *common.Opinion, in Input) float64 {
	centrality := neutralCentrality
	if clusterID, ok := in.Assignments[op.ID]; ok && clusterID != common.UnclusteredID {
		if c, ok := in.ClustersByID[clusterID]; ok {
			centrality = Centrality(op.Embedding, c.Centroid, c.Radius)
		}
	}
	support := float64(op.SupportCount)
	return m.baseDeposit * (1 + math.Log(1+support)) * (0.5 + 0.5*centrality)
}

// Centrality is 1 − dist/radius clamped to [0,1]. The cluster center is the
// most central position; opinions on the rim score 0. A degenerate radius
// yields the neutral value.
func Centrality(embedding, centroid []float32, radius float64) float64 {
	if len(embedding) == 0 || len(centroid) == 0 || radius <= 0 {
		return neutralCentrality
	}
	c := 1 - cluster.Distance(embedding, centroid)/radius
	return clamp01(c)
}

// Quality folds the argumentative weight balance into the node confidence:
// quality = clamp01(confidence · 2·(supportW+1)/(supportW+attackW+2)).
// With no incident edges this reduces to the confidence itself.
func Quality(confidence, supportW, attackW float64) float64 {
	return clamp01(confidence * 2 * (supportW + 1) / (supportW + attackW + 2))
}

// incidentWeights sums edge weights per target node. UNDERCUT counts half
// toward the attack side: it disputes the inference, not the claim.
func incidentWeights(edges []common.ArgumentEdge) (supportW, attackW map[string]float64) {
	supportW = make(map[string]float64)
	attackW = make(map[string]float64)
	for _, e := range edges {
		switch e.Relation {
		case common.RelationSupport:
			supportW[e.TargetID] += e.Weight
		case common.RelationAttack:
			attackW[e.TargetID] += e.Weight
		case common.RelationUndercut:
			attackW[e.TargetID] += e.Weight / 2
		}
	}
	return supportW, attackW
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
