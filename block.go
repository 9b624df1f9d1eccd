package profileselector

import (
	"sort"
	"strconv"
	"strings"
)

// CompressBlocks merges identifiers that carry an identical value vector
// across the entire profile set. Such identifiers are interchangeable for the
// optimization: their presence pattern cannot distinguish any sample from
// another, so collapsing each group into one representative bucket shrinks
// the identifier universe without changing the optimization objective.
//
// The representative of a group is its first identifier in lexicographic
// order; a group with more than one member sums the per-profile values across
// all members, a group of one keeps its vector unchanged. Zero-valued entries
// are dropped on re-expansion. An empty profile set yields an empty result.
func CompressBlocks(profiles []*Profile) []*Profile {
	if len(profiles) == 0 {
		return []*Profile{}
	}

	// Union of identifiers in lexicographic order, so group representatives
	// are deterministic
	seen := make(map[string]struct{})
	for _, p := range profiles {
		for id := range p.Histo {
			seen[id] = struct{}{}
		}
	}
	identifiers := make([]string, 0, len(seen))
	for id := range seen {
		identifiers = append(identifiers, id)
	}
	sort.Strings(identifiers)

	// Per-identifier value vector: position i holds the identifier's value in
	// profile i, 0 when absent
	vectors := make(map[string][]float64, len(identifiers))
	for _, id := range identifiers {
		vec := make([]float64, len(profiles))
		for i, p := range profiles {
			vec[i] = p.Histo[id]
		}
		vectors[id] = vec
	}

	// Group identifiers by exact vector equality
	groups := make(map[string][]string)
	var groupKeys []string
	for _, id := range identifiers {
		key := vectorKey(vectors[id])
		if _, ok := groups[key]; !ok {
			groupKeys = append(groupKeys, key)
		}
		groups[key] = append(groups[key], id)
	}

	// Merge each group into its representative's summed vector
	merged := make(map[string][]float64, len(groupKeys))
	representatives := make([]string, 0, len(groupKeys))
	for _, key := range groupKeys {
		members := groups[key]
		rep := members[0]
		representatives = append(representatives, rep)

		if len(members) == 1 {
			merged[rep] = vectors[rep]
			continue
		}

		sum := make([]float64, len(profiles))
		for _, member := range members {
			for i, v := range vectors[member] {
				sum[i] += v
			}
		}
		merged[rep] = sum
	}

	// Re-expand into one compressed histogram per profile
	out := make([]*Profile, 0, len(profiles))
	for i, p := range profiles {
		histo := make(Histogram)
		for _, rep := range representatives {
			if v := merged[rep][i]; v > 0 {
				histo[rep] = v
			}
		}
		out = append(out, &Profile{
			Type:       p.Type,
			SourceFile: p.SourceFile,
			Histo:      histo,
		})
	}

	return out
}

// vectorKey renders a value vector as a hashable grouping key. Exact bit
// equality is intended: values originate from the same arithmetic per member,
// so interchangeable identifiers produce identical float representations.
func vectorKey(vec []float64) string {
	var sb strings.Builder
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(strconv.FormatFloat(v, 'b', -1, 64))
	}
	return sb.String()
}
