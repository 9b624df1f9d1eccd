package profileselector

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// IdentifierIndex is an immutable bijection from the identifier universe of
// one run to contiguous positions 0..N-1
type IdentifierIndex struct {
	ids []string
	pos map[string]int
}

// newIdentifierIndex builds the index from the sorted union of all
// identifiers appearing in the given profiles
func newIdentifierIndex(profiles ...*Profile) *IdentifierIndex {
	seen := make(map[string]struct{})
	for _, p := range profiles {
		for id := range p.Histo {
			seen[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}

	return &IdentifierIndex{ids: ids, pos: pos}
}

// Len returns the dimensionality of the vector space
func (ix *IdentifierIndex) Len() int { return len(ix.ids) }

// Position returns the dense position of an identifier
func (ix *IdentifierIndex) Position(id string) (int, bool) {
	p, ok := ix.pos[id]
	return p, ok
}

// Identifier returns the identifier at a dense position
func (ix *IdentifierIndex) Identifier(position int) string { return ix.ids[position] }

// Identifiers returns a copy of the indexed identifiers in position order
func (ix *IdentifierIndex) Identifiers() []string {
	out := make([]string, len(ix.ids))
	copy(out, ix.ids)
	return out
}

// VectorSpace holds the dense numeric model of one run: the reference
// projected as the target vector, the samples as a row-per-sample matrix,
// and the index both were projected through. All vectors are normalized to
// sum 100 and never mutated afterwards.
type VectorSpace struct {
	Index   *IdentifierIndex
	Target  *mat.VecDense
	Samples *mat.Dense
	Paths   []string // source file per sample row
}

// BuildVectorSpace projects the compressed reference and sample histograms
// onto a shared identifier index. Missing identifiers project to 0; every
// vector is renormalized to sum 100. Normalization is skipped only for a
// vector whose total is exactly 0, which stays the zero vector.
func BuildVectorSpace(reference *Profile, samples []*Profile) *VectorSpace {
	all := make([]*Profile, 0, len(samples)+1)
	all = append(all, reference)
	all = append(all, samples...)
	index := newIdentifierIndex(all...)

	n := index.Len()
	target := projectHistogram(reference.Histo, index)
	normalizeTo100(target)

	samplesM := mat.NewDense(len(samples), max(n, 1), nil)
	paths := make([]string, len(samples))
	for i, s := range samples {
		row := projectHistogram(s.Histo, index)
		normalizeTo100(row)
		samplesM.SetRow(i, row)
		paths[i] = s.SourceFile
	}

	return &VectorSpace{
		Index:   index,
		Target:  mat.NewVecDense(max(n, 1), target),
		Samples: samplesM,
		Paths:   paths,
	}
}

// TargetData returns the target vector backing slice
func (vs *VectorSpace) TargetData() []float64 {
	return vs.Target.RawVector().Data
}

// projectHistogram renders a histogram as a dense vector over the index
func projectHistogram(h Histogram, index *IdentifierIndex) []float64 {
	vec := make([]float64, max(index.Len(), 1))
	for id, v := range h {
		if p, ok := index.Position(id); ok {
			vec[p] = v
		}
	}
	return vec
}

// normalizeTo100 rescales the vector in place to sum 100; a zero-total vector
// is left untouched
func normalizeTo100(vec []float64) {
	total := floats.Sum(vec)
	if total > 0 {
		floats.Scale(100/total, vec)
	}
}
