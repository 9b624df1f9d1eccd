package profileselector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSelector(t *testing.T, mutate func(*Config)) ProfileSelector {
	t.Helper()

	config := DefaultConfig()
	config.HotnessCompression = 100
	config.MinSimilarity = 0
	config.SolverThreads = 1
	if mutate != nil {
		mutate(config)
	}

	selector, err := NewProfileSelectorFromConfig(config, DiscardLogger{})
	require.NoError(t, err)
	return selector
}

func referenceProfile(h Histogram) *Profile {
	return &Profile{Type: ProfileTypeReference, SourceFile: "compare_input/reference.histo", Histo: h}
}

func sampleProfile(path string, h Histogram) *Profile {
	return &Profile{Type: ProfileTypeSample, SourceFile: path, Histo: h}
}

func TestRun_SingleIdenticalSample(t *testing.T) {
	selector := newTestSelector(t, func(c *Config) { c.MaxSelectedSamples = 1 })

	selection, err := selector.Run(context.Background(), []*Profile{
		referenceProfile(Histogram{"a": 50, "b": 50}),
		sampleProfile("s1", Histogram{"a": 50, "b": 50}),
	})
	require.NoError(t, err)

	assert.Equal(t, "compare_input/reference.histo", selection.ReferenceFile)
	assert.InDelta(t, 100.0, selection.Similarity, 1e-9)
	require.Len(t, selection.SelectedSamples, 1)
	assert.Equal(t, "s1", selection.SelectedSamples[0].SamplePath)
	assert.InDelta(t, 1.0, selection.SelectedSamples[0].Weight, 1e-9)
}

func TestRun_ComplementarySamples(t *testing.T) {
	selector := newTestSelector(t, func(c *Config) { c.MaxSelectedSamples = 2 })

	selection, err := selector.Run(context.Background(), []*Profile{
		referenceProfile(Histogram{"a": 60, "b": 40}),
		sampleProfile("s1", Histogram{"a": 100}),
		sampleProfile("s2", Histogram{"b": 100}),
	})
	require.NoError(t, err)

	assert.InDelta(t, 100.0, selection.Similarity, 1e-9)
	require.Len(t, selection.SelectedSamples, 2)
	assert.InDelta(t, 0.6, selection.SelectedSamples[0].Weight, 1e-9)
	assert.InDelta(t, 0.4, selection.SelectedSamples[1].Weight, 1e-9)
}

func TestRun_EmptyReferenceIsFatal(t *testing.T) {
	selector := newTestSelector(t, nil)

	_, err := selector.Run(context.Background(), []*Profile{
		referenceProfile(Histogram{}),
		sampleProfile("s1", Histogram{"a": 100}),
	})
	assert.ErrorIs(t, err, ErrEmptyReference)
}

func TestRun_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		profiles []*Profile
		wantErr  error
	}{
		{
			name: "no reference",
			profiles: []*Profile{
				sampleProfile("s1", Histogram{"a": 100}),
			},
			wantErr: ErrNoReference,
		},
		{
			name: "multiple references",
			profiles: []*Profile{
				referenceProfile(Histogram{"a": 100}),
				referenceProfile(Histogram{"b": 100}),
				sampleProfile("s1", Histogram{"a": 100}),
			},
			wantErr: ErrMultipleReferences,
		},
		{
			name: "no usable samples",
			profiles: []*Profile{
				referenceProfile(Histogram{"a": 100}),
				sampleProfile("s1", Histogram{}),
			},
			wantErr: ErrNoSamples,
		},
	}

	selector := newTestSelector(t, nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := selector.Run(context.Background(), tt.profiles)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRun_FullHotnessCompressionEmptiesProfiles(t *testing.T) {
	// A keep percentage of 0 drops every bucket, so validation must reject
	// the emptied reference before any solve is attempted
	selector := newTestSelector(t, func(c *Config) { c.HotnessCompression = 0 })

	_, err := selector.Run(context.Background(), []*Profile{
		referenceProfile(Histogram{"a": 60, "b": 40}),
		sampleProfile("s1", Histogram{"a": 100}),
	})
	assert.ErrorIs(t, err, ErrEmptyReference)
}

func TestRun_HotnessCompressionDropsTail(t *testing.T) {
	selector := newTestSelector(t, func(c *Config) {
		c.HotnessCompression = 90
		c.MaxSelectedSamples = 1
	})

	// The 5%-mass tail buckets differ, but both profiles agree on the
	// dominant bucket once the tail is compressed away
	selection, err := selector.Run(context.Background(), []*Profile{
		referenceProfile(Histogram{"hot": 90, "tail1": 10}),
		sampleProfile("s1", Histogram{"hot": 90, "tail2": 10}),
	})
	require.NoError(t, err)
	assert.InDelta(t, 100.0, selection.Similarity, 1e-9)
}

func TestRun_BlockCompressionPreservesResult(t *testing.T) {
	profiles := func() []*Profile {
		return []*Profile{
			referenceProfile(Histogram{"a1": 30, "a2": 30, "b": 40}),
			sampleProfile("s1", Histogram{"a1": 50, "a2": 50}),
			sampleProfile("s2", Histogram{"b": 100}),
		}
	}

	withBlocks := newTestSelector(t, func(c *Config) {
		c.MaxSelectedSamples = 2
		c.BlockCompression = true
	})
	withoutBlocks := newTestSelector(t, func(c *Config) {
		c.MaxSelectedSamples = 2
		c.BlockCompression = false
	})

	merged, err := withBlocks.Run(context.Background(), profiles())
	require.NoError(t, err)
	plain, err := withoutBlocks.Run(context.Background(), profiles())
	require.NoError(t, err)

	// Merging interchangeable identifiers must not change the optimum
	assert.InDelta(t, plain.Similarity, merged.Similarity, 1e-6)
	require.Len(t, merged.SelectedSamples, len(plain.SelectedSamples))
	for i := range plain.SelectedSamples {
		assert.Equal(t, plain.SelectedSamples[i].SamplePath, merged.SelectedSamples[i].SamplePath)
		assert.InDelta(t, plain.SelectedSamples[i].Weight, merged.SelectedSamples[i].Weight, 1e-4)
	}
}

func TestRun_MinSimilaritySearch(t *testing.T) {
	selector := newTestSelector(t, func(c *Config) {
		c.MaxSelectedSamples = 3
		c.MinSimilarity = 75
	})

	selection, err := selector.Run(context.Background(), []*Profile{
		referenceProfile(Histogram{"a": 50, "b": 30, "c": 20}),
		sampleProfile("s1", Histogram{"a": 100}),
		sampleProfile("s2", Histogram{"b": 100}),
		sampleProfile("s3", Histogram{"c": 100}),
	})
	require.NoError(t, err)

	// Two samples reach 80% similarity, which satisfies the 75% threshold
	// with the smallest cardinality
	assert.GreaterOrEqual(t, selection.Similarity, 75.0)
	assert.Len(t, selection.SelectedSamples, 2)
}

func TestRun_StatsTracking(t *testing.T) {
	selector := newTestSelector(t, func(c *Config) { c.MaxSelectedSamples = 1 })

	profiles := []*Profile{
		referenceProfile(Histogram{"a": 100}),
		sampleProfile("s1", Histogram{"a": 100}),
	}

	_, err := selector.Run(context.Background(), profiles)
	require.NoError(t, err)
	_, err = selector.Run(context.Background(), profiles)
	require.NoError(t, err)

	stats := selector.GetStats()
	assert.Equal(t, int64(2), stats.TotalRuns)
	assert.InDelta(t, 100.0, stats.LastSimilarity, 1e-9)
	assert.Equal(t, 1, stats.LastSelected)
	assert.False(t, stats.LastUpdated.IsZero())
}

func TestNewProfileSelectorFromConfig_InvalidConfig(t *testing.T) {
	_, err := NewProfileSelectorFromConfig(nil, DiscardLogger{})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	config := DefaultConfig()
	config.HotnessCompression = 200
	_, err = NewProfileSelectorFromConfig(config, DiscardLogger{})
	assert.ErrorIs(t, err, ErrInvalidCompression)
}

func TestRun_WeightsSumToOne(t *testing.T) {
	selector := newTestSelector(t, func(c *Config) { c.MaxSelectedSamples = 3 })

	selection, err := selector.Run(context.Background(), []*Profile{
		referenceProfile(Histogram{"a": 45, "b": 35, "c": 20}),
		sampleProfile("s1", Histogram{"a": 80, "b": 20}),
		sampleProfile("s2", Histogram{"b": 70, "c": 30}),
		sampleProfile("s3", Histogram{"c": 100}),
	})
	require.NoError(t, err)

	var sum float64
	for _, s := range selection.SelectedSamples {
		assert.Greater(t, s.Weight, 0.0)
		sum += s.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func BenchmarkRun(b *testing.B) {
	config := DefaultConfig()
	config.HotnessCompression = 100
	config.MinSimilarity = 0
	config.MaxSelectedSamples = 2
	config.SolverThreads = 1

	selector, err := NewProfileSelectorFromConfig(config, DiscardLogger{})
	if err != nil {
		b.Fatal(err)
	}

	profiles := []*Profile{
		referenceProfile(Histogram{"a": 40, "b": 30, "c": 20, "d": 10}),
		sampleProfile("s1", Histogram{"a": 70, "b": 30}),
		sampleProfile("s2", Histogram{"c": 60, "d": 40}),
		sampleProfile("s3", Histogram{"a": 25, "b": 25, "c": 25, "d": 25}),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := selector.Run(context.Background(), profiles); err != nil {
			b.Fatal(err)
		}
	}
}
