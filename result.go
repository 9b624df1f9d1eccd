package profileselector

import (
	"fmt"
	"math"
)

// roundTo rounds v to the given number of decimal places
func roundTo(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}

// FormatSelection turns raw solver weights into the final output artifact.
// Weights above the selection epsilon are rounded to 4 decimal places; the
// rounding residual against 1.0 is repaired by adding it to the first weight
// that stays inside [0, 1]. When no weight can absorb the residual the result
// would be inconsistent and ErrNormalizationFailed is returned; nothing is
// emitted in that case.
func FormatSelection(
	referenceFile string,
	similarity float64,
	weights []float64,
	paths []string,
) (*Selection, error) {
	if len(weights) != len(paths) {
		return nil, fmt.Errorf("%w: %d weights for %d sample paths",
			ErrNormalizationFailed, len(weights), len(paths))
	}

	// Non-nil so the output always carries a JSON array, never null
	selected := make([]SelectedSample, 0, len(weights))
	for i, w := range weights {
		if w > selectionEpsilon {
			selected = append(selected, SelectedSample{
				SamplePath: paths[i],
				Weight:     roundTo(w, 4),
			})
		}
	}

	var sum float64
	for _, s := range selected {
		sum += s.Weight
	}
	diff := roundTo(1.0-sum, 4)

	if math.Abs(diff) >= 0.0001 {
		repaired := false
		for i := range selected {
			adjusted := roundTo(selected[i].Weight+diff, 4)
			if adjusted >= 0 && adjusted <= 1 {
				selected[i].Weight = adjusted
				repaired = true
				break
			}
		}
		if !repaired {
			return nil, ErrNormalizationFailed
		}
	}

	return &Selection{
		ReferenceFile:   referenceFile,
		Similarity:      roundTo(similarity, 2),
		SelectedSamples: selected,
	}, nil
}
