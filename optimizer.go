package profileselector

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// selectionOptimizer implements the SelectionOptimizer interface
type selectionOptimizer struct {
	space  *VectorSpace
	solver Solver
	logger Logger
}

// NewSelectionOptimizer creates a SelectionOptimizer over a prepared vector
// space
func NewSelectionOptimizer(space *VectorSpace, solver Solver, logger Logger) SelectionOptimizer {
	return &selectionOptimizer{
		space:  space,
		solver: solver,
		logger: logger,
	}
}

// ComputeSimilarity returns the overlap between two percentage distributions:
// the sum of per-dimension minimums, 100 when they coincide exactly
func ComputeSimilarity(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += math.Min(a[i], b[i])
	}
	if sum < 0 {
		return 0
	}
	if sum > 100 {
		return 100
	}
	return sum
}

// Solve runs a single bounded solve with the given cardinality limit
func (so *selectionOptimizer) Solve(ctx context.Context, maxSelected int) (*OptimizationResult, error) {
	res, err := so.solver.Solve(ctx, so.space.Samples, so.space.TargetData(), maxSelected)
	if err != nil {
		return nil, err
	}

	// Renormalize the mixture to percentage space before scoring; a mixture
	// with zero mass stays the zero vector and scores 0
	mixture := append([]float64(nil), res.Mixture...)
	if total := floats.Sum(mixture); total > 0 {
		floats.Scale(100/total, mixture)
	}

	selected := 0
	for _, w := range res.Weights {
		if w > selectionEpsilon {
			selected++
		}
	}

	similarity := ComputeSimilarity(mixture, so.space.TargetData())
	so.logger.Debugf("Bounded solve completed, max_selected: %d, selected: %d, similarity: %.2f, optimal: %v",
		maxSelected, selected, similarity, res.Optimal)

	return &OptimizationResult{
		Weights:     res.Weights,
		Mixture:     mixture,
		Similarity:  similarity,
		Selected:    selected,
		MaxSelected: maxSelected,
	}, nil
}

// SolveWithMinSimilarity binary-searches the smallest cardinality in
// [1, maxCardinality] whose similarity reaches minSimilarity. Enlarging the
// bound only relaxes the feasible region, so similarity is non-decreasing in
// the cardinality bound and the search is sound; ties break toward fewer
// selected samples. A probe that fails to solve counts as not meeting the
// threshold. If no probed cardinality reaches the threshold, the search
// escalates to the full sample count and accepts whatever similarity results;
// a final similarity of exactly 0 is fatal.
func (so *selectionOptimizer) SolveWithMinSimilarity(
	ctx context.Context,
	minSimilarity float64,
	maxCardinality int,
) (*OptimizationResult, error) {
	if minSimilarity < 0 || minSimilarity > 100 {
		return nil, fmt.Errorf("%w: min similarity must be in [0, 100], got %v",
			ErrInvalidConfiguration, minSimilarity)
	}
	if maxCardinality < 1 {
		return nil, fmt.Errorf("%w: max cardinality must be positive, got %d",
			ErrInvalidConfiguration, maxCardinality)
	}

	if minSimilarity == 0 {
		return so.Solve(ctx, maxCardinality)
	}

	var best *OptimizationResult
	lo, hi := 1, maxCardinality
	for lo <= hi {
		mid := (lo + hi) / 2

		res, err := so.Solve(ctx, mid)
		switch {
		case err != nil:
			// An infeasible or failed probe is an ordinary negative outcome
			// for the search, not a fault
			so.logger.Warnf("Probe failed, cardinality: %d, error: %v", mid, err)
			lo = mid + 1
		case res.Similarity >= minSimilarity:
			so.logger.Infof("Probe met threshold, cardinality: %d, similarity: %.2f, min_similarity: %.2f",
				mid, res.Similarity, minSimilarity)
			best = res
			hi = mid - 1
		default:
			so.logger.Infof("Probe below threshold, cardinality: %d, similarity: %.2f, min_similarity: %.2f",
				mid, res.Similarity, minSimilarity)
			lo = mid + 1
		}
	}

	if best != nil {
		return best, nil
	}

	// Threshold unreachable within the bound: escalate to the full sample
	// count and accept the result
	n, _ := so.space.Samples.Dims()
	so.logger.Warnf("No cardinality in [1, %d] reached similarity %.2f, selecting up to all %d samples",
		maxCardinality, minSimilarity, n)

	res, err := so.Solve(ctx, n)
	if err != nil {
		return nil, err
	}
	if res.Similarity == 0 {
		return nil, fmt.Errorf("%w: target is unreachable by any sample combination",
			ErrOptimizationFailed)
	}
	return res, nil
}
