package profileselector

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"
)

// ProfileLoader handles parsing of .histo profile files and the JSON
// histogram-set artifact exchanged between pipeline stages
type ProfileLoader interface {
	// LoadHistoFile parses a .histo text file into (identifier, count) records
	LoadHistoFile(path string) ([]CountRecord, error)

	// LoadProfileSet reads a histogram-set JSON artifact.
	// Each entry must contain exactly the keys "type", "source_file" and "histo"
	LoadProfileSet(path string) ([]*Profile, error)

	// SaveProfileSet writes profiles as a histogram-set JSON artifact,
	// replacing any existing file at path
	SaveProfileSet(profiles []*Profile, path string) error
}

// Solver solves the weighted-selection problem: find non-negative weights
// summing to one, with at most maxSelected strictly positive entries, that
// minimize the L1 deviation between the weighted sample mixture and the target
type Solver interface {
	// Solve returns the optimal weights (one per sample row) and the resulting
	// mixture vector. samples is the row-per-sample matrix, target has the same
	// length as a sample row. Infeasibility, solver failure and an expired
	// context without an incumbent surface as ErrOptimizationFailed
	Solve(ctx context.Context, samples mat.Matrix, target []float64, maxSelected int) (*SolveResult, error)
}

// SelectionOptimizer runs the solver against a prepared vector space and
// scores the outcome
type SelectionOptimizer interface {
	// Solve runs a single bounded solve with the given cardinality limit
	Solve(ctx context.Context, maxSelected int) (*OptimizationResult, error)

	// SolveWithMinSimilarity binary-searches the smallest cardinality in
	// [1, maxCardinality] whose similarity reaches minSimilarity. If no probed
	// cardinality reaches it, escalates to the full sample count and accepts
	// the result; a final similarity of exactly 0 is fatal
	SolveWithMinSimilarity(ctx context.Context, minSimilarity float64, maxCardinality int) (*OptimizationResult, error)
}

// ProfileSelector orchestrates the complete selection pipeline:
// validation, hotness compression, block compression, vector space
// construction, optimization and result formatting
type ProfileSelector interface {
	// Run executes the pipeline for one profile set and returns the selection
	Run(ctx context.Context, profiles []*Profile) (*Selection, error)

	// GetStats returns performance and usage statistics
	GetStats() SelectorStats
}

// SolveResult holds the raw outcome of one solver call
type SolveResult struct {
	// Weights has one entry per sample row; entries below the selection
	// epsilon are exactly zero
	Weights []float64

	// Mixture is the weighted combination of the sample rows, same length as
	// the target vector, not renormalized
	Mixture []float64

	// Optimal is false when the solver stopped on its time limit and returned
	// the best incumbent instead of a proven optimum
	Optimal bool
}

// OptimizationResult is a scored solver outcome
type OptimizationResult struct {
	Weights []float64 // one per sample, zeros for unselected
	Mixture []float64 // renormalized to sum 100

	// Similarity is the overlap between mixture and target in [0, 100]
	Similarity float64

	// Selected is the number of strictly positive weights
	Selected int

	// MaxSelected is the cardinality bound the result was solved under
	MaxSelected int
}

// SelectedSample is one (sample, weight) pair of the final selection
type SelectedSample struct {
	SamplePath string  `json:"sample_path"`
	Weight     float64 `json:"weight"`
}

// Selection is the final output artifact of a run
type Selection struct {
	ReferenceFile   string           `json:"reference_file"`
	Similarity      float64          `json:"similarity"`
	SelectedSamples []SelectedSample `json:"selected_samples"`
}

// SelectorStats provides performance and usage statistics
type SelectorStats struct {
	TotalRuns      int64         `json:"total_runs"`
	AverageLatency time.Duration `json:"average_latency"`
	LastSimilarity float64       `json:"last_similarity"`
	LastSelected   int           `json:"last_selected"`
	LastUpdated    time.Time     `json:"last_updated"`
}

// Logger interface for configurable logging
type Logger interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)

	Debugf(template string, args ...any)
	Infof(template string, args ...any)
	Warnf(template string, args ...any)
	Errorf(template string, args ...any)
}
