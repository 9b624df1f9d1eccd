package profileselector

import (
	"fmt"
	"sort"
)

// CompressHotness keeps the smallest prefix of identifiers, sorted by
// descending value with ascending identifier as tie-break, whose cumulative
// mass stays within keepPercent of the histogram's total. The first entry
// that would exceed the threshold and everything after it are dropped; kept
// values are unchanged, not renormalized.
//
// keepPercent of 100 is an identity transform returning the input histogram
// unchanged; values outside [0, 100] are an input-validation error.
func CompressHotness(h Histogram, keepPercent float64) (Histogram, error) {
	if keepPercent < 0 || keepPercent > 100 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidCompression, keepPercent)
	}

	if keepPercent == 100 {
		return h, nil
	}

	type entry struct {
		id    string
		value float64
	}

	entries := make([]entry, 0, len(h))
	var total float64
	for id, v := range h {
		entries = append(entries, entry{id: id, value: v})
		total += v
	}

	// Descending value, ascending identifier on ties, so the kept prefix is
	// deterministic regardless of map iteration order
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].value != entries[j].value {
			return entries[i].value > entries[j].value
		}
		return entries[i].id < entries[j].id
	})

	threshold := keepPercent / 100 * total
	kept := make(Histogram)
	var running float64

	for _, e := range entries {
		if running+e.value > threshold {
			break
		}
		kept[e.id] = e.value
		running += e.value
	}

	return kept, nil
}

// CompressProfilesHotness applies CompressHotness to every profile and
// returns fresh Profile values; the inputs are never mutated
func CompressProfilesHotness(profiles []*Profile, keepPercent float64) ([]*Profile, error) {
	out := make([]*Profile, 0, len(profiles))
	for _, p := range profiles {
		compressed, err := CompressHotness(p.Histo, keepPercent)
		if err != nil {
			return nil, err
		}
		out = append(out, &Profile{
			Type:       p.Type,
			SourceFile: p.SourceFile,
			Histo:      compressed,
		})
	}
	return out, nil
}
