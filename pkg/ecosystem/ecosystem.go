// Package ecosystem is the analysis engine behind the broadlistening topic
// view. It orchestrates argument extraction, embedding clustering, the
// pheromone model and the diversity history into batched runs, and builds
// read-only snapshots of the whole state.
package ecosystem

import (
	"fmt"
	"time"

	"github.com/ojpp/broadlistening/backend/pkg/ai"
	"github.com/ojpp/broadlistening/backend/pkg/cluster"
	"github.com/ojpp/broadlistening/backend/pkg/cursor"
	"github.com/ojpp/broadlistening/backend/pkg/extract"
	"github.com/ojpp/broadlistening/backend/pkg/store"
	"github.com/ojpp/broadlistening/backend/pkg/swarm"
)

const (
	DefaultAnalyzerTimeout = 60 * time.Second
	DefaultBatchSizeCap    = 50
)

type Engine struct {
	store     store.EcosystemStorage
	analyzer  ai.OpinionAnalyzer
	locker    cursor.Locker
	extractor *extract.Extractor
	clusterer *cluster.Engine
	model     *swarm.Model

	analyzerTimeout time.Duration
	batchSizeCap    int
	cursorTTL       time.Duration
}

// Params tunes the engine. Zero values fall back to the documented
// defaults of each component.
type Params struct {
	Store    store.EcosystemStorage
	Analyzer ai.OpinionAnalyzer
	Locker   cursor.Locker

	DecayFactor         float64
	EdgeWeightThreshold float64
	MinClusterSize      int
	MaxClusters         int
	BaseDeposit         float64
	AnalyzerTimeout     time.Duration
	BatchSizeCap        int
	CursorTTL           time.Duration
}

func New(params Params) (*Engine, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("ecosystem engine requires a store")
	}
	if params.Analyzer == nil {
		return nil, fmt.Errorf("ecosystem engine requires an analyzer")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("ecosystem engine requires a cursor locker")
	}
	if params.AnalyzerTimeout <= 0 {
		params.AnalyzerTimeout = DefaultAnalyzerTimeout
	}
	if params.BatchSizeCap <= 0 {
		params.BatchSizeCap = DefaultBatchSizeCap
	}
	if params.CursorTTL <= 0 {
		params.CursorTTL = cursor.DefaultTTL
	}

	extractor, err := extract.New(extract.Params{
		Analyzer:        params.Analyzer,
		WeightThreshold: params.EdgeWeightThreshold,
	})
	if err != nil {
		return nil, err
	}
	clusterer, err := cluster.New(cluster.Params{
		Analyzer:       params.Analyzer,
		MinClusterSize: params.MinClusterSize,
		MaxClusters:    params.MaxClusters,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		store:     params.Store,
		analyzer:  params.Analyzer,
		locker:    params.Locker,
		extractor: extractor,
		clusterer: clusterer,
		model: swarm.New(swarm.Params{
			DecayFactor: params.DecayFactor,
			BaseDeposit: params.BaseDeposit,
		}),
		analyzerTimeout: params.AnalyzerTimeout,
		batchSizeCap:    params.BatchSizeCap,
		cursorTTL:       params.CursorTTL,
	}, nil
}
