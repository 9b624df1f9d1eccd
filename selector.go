package profileselector

import (
	"context"
	"sync"
	"time"
)

// profileSelector implements the ProfileSelector interface
type profileSelector struct {
	config *Config
	solver Solver
	logger Logger
	stats  *SelectorStats
	mtx    sync.RWMutex
}

// NewProfileSelector creates a new ProfileSelector instance with an explicit
// solver backend
func NewProfileSelector(config *Config, solver Solver, logger Logger) (ProfileSelector, error) {
	if err := Validate(config); err != nil {
		return nil, err
	}
	return &profileSelector{
		config: config,
		solver: solver,
		logger: logger,
		stats: &SelectorStats{
			LastUpdated: time.Now(),
		},
	}, nil
}

// NewProfileSelectorFromConfig creates a new ProfileSelector from a
// configuration, wiring the default branch-and-bound solver. This is the
// recommended way to initialize a ProfileSelector.
func NewProfileSelectorFromConfig(config *Config, logger Logger) (ProfileSelector, error) {
	if config == nil {
		return nil, ErrInvalidConfiguration
	}
	if err := Validate(config); err != nil {
		return nil, err
	}

	solver := NewBranchBoundSolver(config.SolverThreads, logger)

	logger.Infof(
		"ProfileSelector initialized, hotness_compression: %.1f, block_compression: %v, "+
			"max_selected_samples: %d, min_similarity: %.1f, time_limit_s: %.1f, solver_threads: %d",
		config.HotnessCompression, config.BlockCompression,
		config.MaxSelectedSamples, config.MinSimilarity,
		config.SolverTimeLimitSeconds, config.SolverThreads,
	)

	return NewProfileSelector(config, solver, logger)
}

// Run executes the pipeline for one profile set: validation, hotness
// compression, block compression, vector space construction, optimization
// and result formatting. A fatal error aborts the run with no output.
func (ps *profileSelector) Run(ctx context.Context, profiles []*Profile) (*Selection, error) {
	startTime := time.Now()

	ps.logger.Debugf("Run called, profiles: %d", len(profiles))

	// Hotness compression operates on each histogram independently; the
	// profile set is re-validated afterwards because aggressive settings can
	// empty histograms out
	compressed := profiles
	if ps.config.HotnessCompression < 100 {
		var err error
		compressed, err = CompressProfilesHotness(profiles, ps.config.HotnessCompression)
		if err != nil {
			return nil, err
		}
		ps.logger.Debugf("Hotness compression applied, keep_percent: %.1f", ps.config.HotnessCompression)
	}

	reference, samples, err := SplitProfiles(compressed)
	if err != nil {
		return nil, err
	}

	if ps.config.BlockCompression {
		before := countIdentifiers(reference, samples)
		merged := CompressBlocks(append([]*Profile{reference}, samples...))
		reference, samples = merged[0], merged[1:]
		after := countIdentifiers(reference, samples)
		ps.logger.Infof("Block compression applied, identifiers_before: %d, identifiers_after: %d",
			before, after)
	}

	space := BuildVectorSpace(reference, samples)
	ps.logger.Infof("Vector space built, dimensions: %d, samples: %d",
		space.Index.Len(), len(samples))

	solveCtx := ctx
	if ps.config.SolverTimeLimitSeconds > 0 {
		var cancel context.CancelFunc
		timeLimit := time.Duration(ps.config.SolverTimeLimitSeconds * float64(time.Second))
		solveCtx, cancel = context.WithTimeout(ctx, timeLimit)
		defer cancel()
	}

	optimizer := NewSelectionOptimizer(space, ps.solver, ps.logger)

	var result *OptimizationResult
	if ps.config.MinSimilarity > 0 {
		result, err = optimizer.SolveWithMinSimilarity(
			solveCtx, ps.config.MinSimilarity, ps.config.MaxSelectedSamples)
	} else {
		result, err = optimizer.Solve(solveCtx, ps.config.MaxSelectedSamples)
	}
	if err != nil {
		ps.updateStats(time.Since(startTime), 0, 0)
		return nil, err
	}

	selection, err := FormatSelection(
		reference.SourceFile, result.Similarity, result.Weights, space.Paths)
	if err != nil {
		ps.updateStats(time.Since(startTime), 0, 0)
		return nil, err
	}

	totalDuration := time.Since(startTime)
	ps.updateStats(totalDuration, result.Similarity, len(selection.SelectedSamples))

	ps.logger.Infof(
		"Run completed, duration_ms: %d, similarity: %.2f, selected_samples: %d, "+
			"max_selected: %d, dimensions: %d",
		totalDuration.Milliseconds(),
		selection.Similarity,
		len(selection.SelectedSamples),
		result.MaxSelected,
		space.Index.Len(),
	)

	return selection, nil
}

// GetStats returns performance and usage statistics
func (ps *profileSelector) GetStats() SelectorStats {
	ps.mtx.RLock()
	defer ps.mtx.RUnlock()

	// Return a copy to prevent external modification
	return SelectorStats{
		TotalRuns:      ps.stats.TotalRuns,
		AverageLatency: ps.stats.AverageLatency,
		LastSimilarity: ps.stats.LastSimilarity,
		LastSelected:   ps.stats.LastSelected,
		LastUpdated:    ps.stats.LastUpdated,
	}
}

// updateStats updates the internal statistics
func (ps *profileSelector) updateStats(latency time.Duration, similarity float64, selected int) {
	if !ps.config.EnableStats {
		return
	}

	ps.mtx.Lock()
	defer ps.mtx.Unlock()

	ps.stats.TotalRuns++

	// Update average latency using incremental average formula
	// new_avg = old_avg + (new_value - old_avg) / count
	if ps.stats.TotalRuns == 1 {
		ps.stats.AverageLatency = latency
	} else {
		delta := latency - ps.stats.AverageLatency
		ps.stats.AverageLatency += delta / time.Duration(ps.stats.TotalRuns)
	}

	ps.stats.LastSimilarity = similarity
	ps.stats.LastSelected = selected
	ps.stats.LastUpdated = time.Now()
}

// countIdentifiers sizes the identifier universe of a profile set
func countIdentifiers(reference *Profile, samples []*Profile) int {
	seen := make(map[string]struct{})
	for id := range reference.Histo {
		seen[id] = struct{}{}
	}
	for _, s := range samples {
		for id := range s.Histo {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}
