// Package diversity computes the Shannon index of a topic's cluster
// distribution and the run averages recorded in the ecosystem history.
package diversity

import (
	"math"

	"github.com/ojpp/broadlistening/backend/pkg/common"
)

// Shannon computes H = −Σ pᵢ ln pᵢ over the cluster shares of the given
// assignments. The unclustered bucket counts as a share of its own. Empty
// input yields 0.
func Shannon(assignments map[string]string) float64 {
	if len(assignments) == 0 {
		return 0
	}
	counts := make(map[string]int)
	for _, clusterID := range assignments {
		if clusterID == "" {
			clusterID = common.UnclusteredID
		}
		counts[clusterID]++
	}
	total := float64(len(assignments))
	h := 0.0
	for _, n := range counts {
		p := float64(n) / total
		h -= p * math.Log(p)
	}
	// -0 from a single full share
	if h == 0 {
		return 0
	}
	return h
}

// Snapshot derives the history entry for one completed run. The caller
// appends it; a run over zero opinions must not record anything.
func Snapshot(topicID string, opinions []common.Opinion, assignments map[string]string) *common.HistoryEntry {
	if len(opinions) == 0 {
		return nil
	}

	var fitnessSum, pheromoneSum float64
	for i := range opinions {
		fitnessSum += opinions[i].Fitness()
		pheromoneSum += opinions[i].PheromoneIntensity
	}
	n := float64(len(opinions))

	return &common.HistoryEntry{
		TopicID:       topicID,
		ShannonIndex:  Shannon(assignments),
		AvgFitness:    fitnessSum / n,
		AvgPheromone:  pheromoneSum / n,
		TotalOpinions: len(opinions),
	}
}
