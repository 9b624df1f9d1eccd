package profileselector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	// selectionEpsilon is the weight below which a sample counts as unselected
	selectionEpsilon = 1e-6

	// simplexTol is the convergence tolerance handed to the LP backend
	simplexTol = 1e-10

	// pruneTol guards incumbent comparisons against floating point noise
	pruneTol = 1e-9
)

// simplexRetryTols are the tolerances tried in order when the simplex backend
// fails on numerical grounds (singular or near-singular basis). A basis that
// will not factorize at the tight tolerance often does at a looser one.
var simplexRetryTols = [...]float64{simplexTol, 1e-8, 1e-6}

// branchBoundSolver implements the Solver interface as an in-process MILP
// solver. The mixed-integer model
//
//	minimize   sum_j | (S^T w)_j - T_j |
//	subject to w >= 0, w <= z, sum(z) <= maxSelected, sum(w) = 1, z binary
//
// is solved by branch-and-bound on the indicator variables z: each node's
// lower bound comes from the LP relaxation over the samples still allowed at
// that node, linearized with one deviation variable per dimension and solved
// by gonum's simplex. Because sum(w) = 1, the relaxation's cardinality
// constraint is slack until maxSelected samples have been fixed in, so a node
// only restricts which samples may carry weight.
type branchBoundSolver struct {
	workers int
	logger  Logger
}

// NewBranchBoundSolver creates a Solver backed by the parallel
// branch-and-bound search. workers is the number of concurrent node workers;
// 0 or less means one per CPU.
func NewBranchBoundSolver(workers int, logger Logger) Solver {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &branchBoundSolver{workers: workers, logger: logger}
}

// Solve runs the branch-and-bound search. The search is seeded with the best
// single-sample solution before any branching, so a usable incumbent exists
// even when every LP relaxation fails numerically. On context expiry or a
// relaxation failure the best incumbent found so far is returned with
// Optimal=false; ErrOptimizationFailed is reserved for invalid input and a
// context that is already expired on entry.
func (bb *branchBoundSolver) Solve(
	ctx context.Context,
	samples mat.Matrix,
	target []float64,
	maxSelected int,
) (*SolveResult, error) {
	n, dims := samples.Dims()
	if n == 0 {
		return nil, fmt.Errorf("%w: no sample vectors", ErrOptimizationFailed)
	}
	if dims != len(target) {
		return nil, fmt.Errorf("%w: sample dimension %d does not match target dimension %d",
			ErrOptimizationFailed, dims, len(target))
	}
	if maxSelected < 1 {
		return nil, fmt.Errorf("%w: cardinality bound must be positive, got %d",
			ErrOptimizationFailed, maxSelected)
	}
	if maxSelected > n {
		maxSelected = n
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOptimizationFailed, err)
	}

	search := &bbSearch{
		samples:     mat.DenseCopyOf(samples),
		target:      target,
		n:           n,
		dims:        dims,
		maxSelected: maxSelected,
		best:        math.Inf(1),
	}
	search.cond = sync.NewCond(&search.mu)
	search.relax = search.solveRelaxation
	search.seedIncumbent()

	root := &bbNode{
		excluded: make([]bool, n),
		included: make([]bool, n),
	}
	search.stack = append(search.stack, root)
	search.pending = 1

	var wg sync.WaitGroup
	for range bb.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			search.worker(ctx)
		}()
	}
	wg.Wait()

	return bb.buildResult(ctx, search, maxSelected)
}

// buildResult assembles the final SolveResult from a finished search.
// Optimality holds only for a fully explored tree: an expired context or a
// failed relaxation both mean subtrees were dropped unexamined, so either one
// downgrades the incumbent to Optimal=false.
func (bb *branchBoundSolver) buildResult(
	ctx context.Context,
	search *bbSearch,
	maxSelected int,
) (*SolveResult, error) {
	search.mu.Lock()
	defer search.mu.Unlock()

	if search.bestWeights == nil {
		switch {
		case ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %v", ErrOptimizationFailed, ctx.Err())
		case search.lastErr != nil:
			return nil, fmt.Errorf("%w: %v", ErrOptimizationFailed, search.lastErr)
		default:
			return nil, fmt.Errorf("%w: problem is infeasible", ErrOptimizationFailed)
		}
	}

	weights := make([]float64, search.n)
	selected := 0
	for i, w := range search.bestWeights {
		if w > selectionEpsilon {
			weights[i] = w
			selected++
		}
	}

	optimal := ctx.Err() == nil && search.lastErr == nil
	bb.logger.Debugf(
		"Solve completed, samples: %d, dims: %d, max_selected: %d, selected: %d, "+
			"objective: %.6f, nodes: %d, optimal: %v",
		search.n, search.dims, maxSelected, selected, search.best, search.nodes, optimal)

	return &SolveResult{
		Weights: weights,
		Mixture: search.mixture(weights),
		Optimal: optimal,
	}, nil
}

// bbNode fixes a partial assignment of the indicator variables: excluded
// samples may carry no weight, included samples are committed against the
// cardinality budget
type bbNode struct {
	excluded      []bool
	included      []bool
	includedCount int
}

// bbSearch is the shared state of one branch-and-bound run
type bbSearch struct {
	samples     *mat.Dense
	target      []float64
	n           int
	dims        int
	maxSelected int

	// relax solves the LP relaxation over an active sample set; a field so a
	// failing backend can be simulated in tests
	relax func(active []int) ([]float64, float64, error)

	mu      sync.Mutex
	cond    *sync.Cond
	stack   []*bbNode
	pending int
	stopped bool

	best        float64
	bestWeights []float64
	lastErr     error
	nodes       int
}

// worker pops nodes until the search is exhausted, stopped, or the context
// expires
func (s *bbSearch) worker(ctx context.Context) {
	for {
		s.mu.Lock()
		for len(s.stack) == 0 && s.pending > 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped || s.pending == 0 {
			s.mu.Unlock()
			return
		}
		node := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]
		s.nodes++
		s.mu.Unlock()

		if ctx.Err() != nil {
			s.stop()
			return
		}

		children := s.processNode(node)

		s.mu.Lock()
		s.pending--
		s.stack = append(s.stack, children...)
		s.pending += len(children)
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// seedIncumbent installs the best single-sample solution as the initial
// incumbent. Putting all weight on one sample is always feasible and needs no
// LP, so the search holds a usable solution even if every relaxation later
// fails numerically. Runs before the workers start, no locking needed.
func (s *bbSearch) seedIncumbent() {
	bestObj := math.Inf(1)
	bestIdx := 0
	for i := range s.n {
		var obj float64
		for j := range s.dims {
			obj += math.Abs(s.samples.At(i, j) - s.target[j])
		}
		if obj < bestObj {
			bestObj = obj
			bestIdx = i
		}
	}

	weights := make([]float64, s.n)
	weights[bestIdx] = 1
	s.best = bestObj
	s.bestWeights = weights
}

// stop wakes every worker and ends the search, keeping the incumbent
func (s *bbSearch) stop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// processNode solves the node's LP relaxation and either prunes, records an
// incumbent, or branches on the heaviest uncommitted sample
func (s *bbSearch) processNode(node *bbNode) []*bbNode {
	active := s.activeSet(node)
	if len(active) == 0 {
		return nil
	}

	weights, obj, err := s.relax(active)
	if err != nil {
		// An infeasible node is a legitimately exhausted branch. Anything else
		// is a numerical failure that survived the tolerance retries: the
		// subtree is dropped, which forfeits the optimality claim but not the
		// seeded incumbent
		if !errors.Is(err, lp.ErrInfeasible) {
			s.mu.Lock()
			s.lastErr = err
			s.mu.Unlock()
		}
		return nil
	}

	s.mu.Lock()
	prune := obj >= s.best-pruneTol
	s.mu.Unlock()
	if prune {
		return nil
	}

	// The relaxation is integral when the cardinality bound already holds
	positive := 0
	branchOn := -1
	branchWeight := 0.0
	for i, w := range weights {
		if w <= selectionEpsilon {
			continue
		}
		positive++
		if !node.included[i] && w > branchWeight {
			branchOn = i
			branchWeight = w
		}
	}

	if positive <= s.maxSelected {
		s.mu.Lock()
		if obj < s.best {
			s.best = obj
			s.bestWeights = weights
		}
		s.mu.Unlock()
		return nil
	}

	if branchOn < 0 {
		// Every positive weight is already committed; cannot happen with a
		// consistent budget, treat as pruned
		return nil
	}

	exclude := node.branch(branchOn, false)
	include := node.branch(branchOn, true)
	return []*bbNode{exclude, include}
}

// activeSet lists the samples allowed a positive weight at this node. Once
// the cardinality budget is spent, only committed samples remain active.
func (s *bbSearch) activeSet(node *bbNode) []int {
	if node.includedCount >= s.maxSelected {
		active := make([]int, 0, node.includedCount)
		for i := range s.n {
			if node.included[i] {
				active = append(active, i)
			}
		}
		return active
	}

	active := make([]int, 0, s.n)
	for i := range s.n {
		if !node.excluded[i] {
			active = append(active, i)
		}
	}
	return active
}

// branch derives a child node with sample i either excluded or committed
func (node *bbNode) branch(i int, include bool) *bbNode {
	child := &bbNode{
		excluded:      append([]bool(nil), node.excluded...),
		included:      append([]bool(nil), node.included...),
		includedCount: node.includedCount,
	}
	if include {
		child.included[i] = true
		child.includedCount++
	} else {
		child.excluded[i] = true
	}
	return child
}

// solveRelaxation solves the L1 fit restricted to the active samples:
//
//	minimize   sum_j e_j
//	subject to  (S_A^T w)_j - e_j <= T_j
//	           -(S_A^T w)_j - e_j <= -T_j
//	           w >= 0, sum(w) = 1
//
// The deviation variables e need no explicit sign constraint: the paired
// inequalities force e_j >= |(S_A^T w)_j - T_j| >= 0. The general form is
// converted to standard form and handed to gonum's simplex.
func (s *bbSearch) solveRelaxation(active []int) ([]float64, float64, error) {
	k := len(active)
	nVar := k + s.dims

	g := mat.NewDense(2*s.dims+k, nVar, nil)
	h := make([]float64, 2*s.dims+k)
	for j := range s.dims {
		for col, i := range active {
			v := s.samples.At(i, j)
			g.Set(j, col, v)
			g.Set(s.dims+j, col, -v)
		}
		g.Set(j, k+j, -1)
		g.Set(s.dims+j, k+j, -1)
		h[j] = s.target[j]
		h[s.dims+j] = -s.target[j]
	}
	for col := range k {
		g.Set(2*s.dims+col, col, -1)
	}

	a := mat.NewDense(1, nVar, nil)
	for col := range k {
		a.Set(0, col, 1)
	}
	b := []float64{1}

	c := make([]float64, nVar)
	for j := range s.dims {
		c[k+j] = 1
	}

	cStd, aStd, bStd := lp.Convert(c, g, h, a, b)

	var (
		obj float64
		x   []float64
		err error
	)
	for _, tol := range simplexRetryTols {
		obj, x, err = lp.Simplex(cStd, aStd, bStd, tol, nil)
		if err == nil || errors.Is(err, lp.ErrInfeasible) {
			break
		}
	}
	if err != nil {
		return nil, 0, err
	}

	// Convert splits each general-form variable into a positive and a
	// negative part; recover w_i = x_i - x_{nVar+i}
	weights := make([]float64, s.n)
	for col, i := range active {
		w := x[col] - x[nVar+col]
		if w < 0 {
			w = 0
		}
		weights[i] = w
	}
	return weights, obj, nil
}

// mixture computes the weighted combination S^T w
func (s *bbSearch) mixture(weights []float64) []float64 {
	out := make([]float64, s.dims)
	for i, w := range weights {
		if w == 0 {
			continue
		}
		for j := range s.dims {
			out[j] += w * s.samples.At(i, j)
		}
	}
	return out
}
