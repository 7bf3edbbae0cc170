// Package cluster partitions a topic's opinion embeddings into labeled
// clusters. Partitioning is fully deterministic per topic; only the label
// text comes from the analyzer.
package cluster

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/ojpp/broadlistening/backend/pkg/ai"
	"github.com/ojpp/broadlistening/backend/pkg/common"
	"github.com/ojpp/broadlistening/backend/pkg/logger"
)

const (
	DefaultMinClusterSize = 3
	DefaultMaxClusters    = 8

	// continuityThreshold is the member overlap (Jaccard) above which a new
	// cluster inherits the previous pass's label and color.
	continuityThreshold = 0.7

	labelSampleSize = 5
)

// palette is the fixed color cycle for fresh clusters.
var palette = []string{
	"#2563eb", "#16a34a", "#dc2626", "#9333ea",
	"#ea580c", "#0891b2", "#ca8a04", "#db2777",
}

type Engine struct {
	analyzer       ai.OpinionAnalyzer
	minClusterSize int
	maxClusters    int
}

type Params struct {
	Analyzer       ai.OpinionAnalyzer
	MinClusterSize int
	MaxClusters    int
}

func New(params Params) (*Engine, error) {
	if params.Analyzer == nil {
		return nil, fmt.Errorf("cluster engine requires an analyzer")
	}
	if params.MinClusterSize <= 0 {
		params.MinClusterSize = DefaultMinClusterSize
	}
	if params.MaxClusters <= 0 {
		params.MaxClusters = DefaultMaxClusters
	}
	return &Engine{
		analyzer:       params.Analyzer,
		minClusterSize: params.MinClusterSize,
		maxClusters:    params.MaxClusters,
	}, nil
}

// Result is one reclustering pass over a topic.
type Result struct {
	Clusters []common.Cluster
	// Assignments maps every opinion id to its cluster id, with
	// common.UnclusteredID for opinions outside all clusters.
	Assignments map[string]string
}

// Assign reclusters the full opinion set of a topic. Opinions without an
// embedding land in the unclustered bucket, as do members of groups smaller
// than the minimum cluster size. Previous clusters are only consulted for
// label and color continuity; the partition itself is rebuilt from scratch.
func (e *Engine) Assign(
	ctx context.Context,
	topicID string,
	opinions []common.Opinion,
	previous []common.Cluster,
) (*Result, error) {
	result := &Result{Assignments: make(map[string]string, len(opinions))}

	embedded := make([]common.Opinion, 0, len(opinions))
	for _, op := range opinions {
		if len(op.Embedding) == 0 {
			result.Assignments[op.ID] = common.UnclusteredID
			continue
		}
		embedded = append(embedded, op)
	}
	if len(embedded) == 0 {
		return result, nil
	}

	k := clusterCount(len(embedded), e.maxClusters)
	vectors := make([][]float32, len(embedded))
	for i := range embedded {
		vectors[i] = embedded[i].Embedding
	}

	rng := rand.New(rand.NewSource(Seed(topicID)))
	assignment, centroids := kmeans(vectors, k, rng)

	groups := make(map[int][]int, k)
	for i, c := range assignment {
		groups[c] = append(groups[c], i)
	}

	points := Project2D(Seed(topicID), vectors)
	prevMembers := previousMemberSets(opinions)

	groupIndexes := make([]int, 0, len(groups))
	for c := range groups {
		groupIndexes = append(groupIndexes, c)
	}
	sort.Ints(groupIndexes)

	colorIndex := 0
	for _, c := range groupIndexes {
		members := groups[c]
		if len(members) < e.minClusterSize {
			for _, i := range members {
				result.Assignments[embedded[i].ID] = common.UnclusteredID
			}
			continue
		}

		memberIDs := make([]string, 0, len(members))
		for _, i := range members {
			memberIDs = append(memberIDs, embedded[i].ID)
		}
		sort.Strings(memberIDs)

		clusterID, err := gonanoid.New()
		if err != nil {
			return nil, err
		}

		centroid := centroids[c]
		radius := 0.0
		var centerX, centerY float64
		for _, i := range members {
			if d := Distance(vectors[i], centroid); d > radius {
				radius = d
			}
			centerX += points[i][0]
			centerY += points[i][1]
		}
		centerX /= float64(len(members))
		centerY /= float64(len(members))

		cl := common.Cluster{
			ID:         clusterID,
			TopicID:    topicID,
			Centroid:   centroid,
			CenterX:    centerX,
			CenterY:    centerY,
			Radius:     radius,
			MemberHash: MemberHash(memberIDs),
			Size:       len(members),
		}

		if prev, ok := matchPrevious(memberIDs, previous, prevMembers); ok {
			cl.Label = prev.Label
			cl.Color = prev.Color
		} else {
			cl.Color = palette[colorIndex%len(palette)]
			label, err := e.labelCluster(ctx, embedded, members)
			if err != nil {
				return nil, fmt.Errorf("label cluster for topic %s: %w", topicID, err)
			}
			cl.Label = label
		}
		colorIndex++

		for _, i := range members {
			result.Assignments[embedded[i].ID] = clusterID
		}
		result.Clusters = append(result.Clusters, cl)
	}

	logger.Debug("[Cluster] Topic reclustered",
		"topic_id", topicID,
		"opinions", len(opinions),
		"clusters", len(result.Clusters))
	return result, nil
}

func (e *Engine) labelCluster(ctx context.Context, embedded []common.Opinion, members []int) (string, error) {
	samples := make([]string, 0, labelSampleSize)
	for _, i := range members {
		samples = append(samples, embedded[i].Content)
		if len(samples) >= labelSampleSize {
			break
		}
	}
	label, err := e.analyzer.LabelCluster(ctx, samples)
	if err != nil {
		return "", err
	}
	label = strings.TrimSpace(label)
	if label == "" {
		label = "Unlabeled"
	}
	return label, nil
}

// clusterCount picks k = round(sqrt(n/2)), clamped to [1, max].
func clusterCount(n, max int) int {
	k := int(math.Round(math.Sqrt(float64(n) / 2)))
	if k < 1 {
		k = 1
	}
	if k > max {
		k = max
	}
	return k
}

// MemberHash produces the stable identity hash of a sorted member id set.
func MemberHash(sortedIDs []string) string {
	h := fnv.New64a()
	for _, id := range sortedIDs {
		_, _ = h.Write([]byte(id))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// previousMemberSets reconstructs the prior partition from the cluster ids
// still attached to the opinions.
func previousMemberSets(opinions []common.Opinion) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{})
	for _, op := range opinions {
		if op.ClusterID == "" || op.ClusterID == common.UnclusteredID {
			continue
		}
		set := out[op.ClusterID]
		if set == nil {
			set = make(map[string]struct{})
			out[op.ClusterID] = set
		}
		set[op.ID] = struct{}{}
	}
	return out
}

// matchPrevious finds a prior cluster whose member set overlaps the new one
// by at least the continuity threshold.
func matchPrevious(
	memberIDs []string,
	previous []common.Cluster,
	prevMembers map[string]map[string]struct{},
) (*common.Cluster, bool) {
	for p := range previous {
		prev := &previous[p]
		set, ok := prevMembers[prev.ID]
		if !ok || len(set) == 0 {
			continue
		}
		inter := 0
		for _, id := range memberIDs {
			if _, ok := set[id]; ok {
				inter++
			}
		}
		union := len(memberIDs) + len(set) - inter
		if union > 0 && float64(inter)/float64(union) >= continuityThreshold {
			return prev, true
		}
	}
	return nil, false
}
