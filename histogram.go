package profileselector

import (
	"fmt"
)

// Profile roles as they appear in the histogram-set artifact
const (
	ProfileTypeReference = "reference"
	ProfileTypeSample    = "sample"
)

// CountRecord is one raw (identifier, count) observation of a profile
type CountRecord struct {
	Identifier string
	Count      int64
}

// Histogram maps an identifier to its non-negative weight, either a raw count
// or a percentage depending on the pipeline stage
type Histogram map[string]float64

// Total returns the summed mass of the histogram
func (h Histogram) Total() float64 {
	var total float64
	for _, v := range h {
		total += v
	}
	return total
}

// Clone returns an independent copy of the histogram
func (h Histogram) Clone() Histogram {
	out := make(Histogram, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Profile is a tagged histogram with its role and origin
type Profile struct {
	Type       string    `json:"type"`
	SourceFile string    `json:"source_file"`
	Histo      Histogram `json:"histo"`
}

// BuildHistogram turns raw (identifier, count) observations into a percentage
// histogram: each identifier maps to count/total*100. Duplicate identifiers
// accumulate. A zero total yields an empty histogram; empty histograms are
// filtered out downstream, not treated as errors here.
func BuildHistogram(records []CountRecord) (Histogram, error) {
	counts := make(map[string]int64, len(records))
	var total int64

	for i, rec := range records {
		if rec.Identifier == "" {
			return nil, fmt.Errorf("%w: empty identifier at record %d", ErrInvalidProfileRecord, i)
		}
		if rec.Count < 0 {
			return nil, fmt.Errorf("%w: negative count %d for identifier %q at record %d",
				ErrInvalidProfileRecord, rec.Count, rec.Identifier, i)
		}
		counts[rec.Identifier] += rec.Count
		total += rec.Count
	}

	histo := make(Histogram, len(counts))
	if total == 0 {
		return histo, nil
	}

	for id, count := range counts {
		histo[id] = float64(count) / float64(total) * 100
	}
	return histo, nil
}

// SplitProfiles validates a profile set for an optimization run and separates
// the single reference from the usable samples. Samples with empty histograms
// are dropped; a reference with zero total mass, a missing or duplicated
// reference, or an empty sample list after filtering are fatal.
func SplitProfiles(profiles []*Profile) (reference *Profile, samples []*Profile, err error) {
	for _, p := range profiles {
		switch p.Type {
		case ProfileTypeReference:
			if reference != nil {
				return nil, nil, fmt.Errorf("%w: %q and %q",
					ErrMultipleReferences, reference.SourceFile, p.SourceFile)
			}
			reference = p
		case ProfileTypeSample:
			if p.Histo.Total() > 0 {
				samples = append(samples, p)
			}
		default:
			return nil, nil, fmt.Errorf("%w: unknown profile type %q in %q",
				ErrInvalidProfileRecord, p.Type, p.SourceFile)
		}
	}

	if reference == nil {
		return nil, nil, ErrNoReference
	}
	if reference.Histo.Total() == 0 {
		return nil, nil, fmt.Errorf("%w: %q", ErrEmptyReference, reference.SourceFile)
	}
	if len(samples) == 0 {
		return nil, nil, ErrNoSamples
	}

	return reference, samples, nil
}
