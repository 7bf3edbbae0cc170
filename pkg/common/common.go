package common

import "time"

// Stance is the declared position of an opinion toward its topic.
type Stance string

const (
	StanceFor     Stance = "FOR"
	StanceAgainst Stance = "AGAINST"
	StanceNeutral Stance = "NEUTRAL"
)

// NodeType classifies the argumentative role an opinion plays.
type NodeType string

const (
	NodeClaim    NodeType = "CLAIM"
	NodePremise  NodeType = "PREMISE"
	NodeEvidence NodeType = "EVIDENCE"
	NodeRebuttal NodeType = "REBUTTAL"
)

// ValidNodeType reports whether t is one of the four argument node types.
func ValidNodeType(t NodeType) bool {
	switch t {
	case NodeClaim, NodePremise, NodeEvidence, NodeRebuttal:
		return true
	}
	return false
}

// Relation describes how one argument node acts on another.
type Relation string

const (
	RelationAttack   Relation = "ATTACK"
	RelationSupport  Relation = "SUPPORT"
	RelationUndercut Relation = "UNDERCUT"
)

// ValidRelation reports whether r is one of the three edge relations.
func ValidRelation(r Relation) bool {
	switch r {
	case RelationAttack, RelationSupport, RelationUndercut:
		return true
	}
	return false
}

// UnclusteredID is the sentinel bucket for opinions that do not belong to
// any cluster of at least the minimum size.
const UnclusteredID = "unclustered"

// Opinion is a single free-text contribution to a topic.
//
// The analysis engine owns Analyzed, Embedding, ClusterID and the two
// pheromone fields. Content, Stance and SupportCount belong to the
// submission side and are read-only here. Fitness is never stored; it is
// always derived from intensity and quality so the two can not drift apart.
type Opinion struct {
	ID          string    `json:"id"`
	TopicID     string    `json:"topic_id"`
	Content     string    `json:"content"`
	Stance      Stance    `json:"stance"`
	SubmittedAt time.Time `json:"submitted_at"`

	Analyzed  bool      `json:"analyzed"`
	Embedding []float32 `json:"embedding,omitempty"`
	ClusterID string    `json:"cluster_id,omitempty"`

	PheromoneIntensity float64 `json:"pheromone_intensity"`
	PheromoneQuality   float64 `json:"pheromone_quality"`

	SupportCount int `json:"support_count"`
	// RewardedSupport is the support count the pheromone model has already
	// deposited for. A gap between the two triggers reinforcement.
	RewardedSupport int `json:"-"`
}

// Fitness is the composite ranking score, intensity times quality.
func (o *Opinion) Fitness() float64 {
	return o.PheromoneIntensity * o.PheromoneQuality
}

// ArgumentNode is the structured role extracted from one opinion.
// Nodes are created once per analyzed opinion and never mutated.
type ArgumentNode struct {
	ID         string   `json:"id"`
	TopicID    string   `json:"topic_id"`
	OpinionID  string   `json:"opinion_id,omitempty"`
	Type       NodeType `json:"type"`
	Content    string   `json:"content"`
	Confidence float64  `json:"confidence"`
}

// ArgumentEdge is a directed relation between two argument nodes.
// The (SourceID, TargetID, Relation) triple is unique; duplicates are
// rejected with set semantics wherever edges are persisted.
type ArgumentEdge struct {
	SourceID string   `json:"source_id"`
	TargetID string   `json:"target_id"`
	Relation Relation `json:"relation"`
	Weight   float64  `json:"weight"`
}

// Key returns the identity triple used for edge deduplication.
func (e ArgumentEdge) Key() string {
	return e.SourceID + "\x00" + e.TargetID + "\x00" + string(e.Relation)
}

// Cluster is one group of semantically similar opinions.
//
// Cluster identity is not stable across reclustering passes; MemberHash
// is a stable hash of the sorted member opinion ids used to carry label
// and color forward when a new pass produces a sufficiently similar group.
type Cluster struct {
	ID         string    `json:"id"`
	TopicID    string    `json:"topic_id"`
	Label      string    `json:"label"`
	Centroid   []float32 `json:"centroid,omitempty"`
	CenterX    float64   `json:"center_x"`
	CenterY    float64   `json:"center_y"`
	Radius     float64   `json:"radius"`
	Color      string    `json:"color"`
	MemberHash string    `json:"member_hash,omitempty"`
	Size       int       `json:"size"`
}

// HistoryEntry is one point of the per-run diversity time series.
type HistoryEntry struct {
	TopicID       string    `json:"topic_id"`
	ShannonIndex  float64   `json:"shannon_index"`
	AvgFitness    float64   `json:"avg_fitness"`
	AvgPheromone  float64   `json:"avg_pheromone"`
	TotalOpinions int       `json:"total_opinions"`
	CreatedAt     time.Time `json:"created_at"`
}

// Topic is the minimal view of a deliberation topic the engine needs.
// Everything else about topics lives outside this engine.
type Topic struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Phase string `json:"phase"`
}
