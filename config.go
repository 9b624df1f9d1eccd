package profileselector

import (
	"github.com/spf13/viper"
)

const (
	// DefaultHotnessCompression keeps buckets covering 97% of each histogram's
	// mass; 100 disables the compression entirely
	DefaultHotnessCompression = 97.0
	DefaultBlockCompression   = true
	DefaultMaxSelectedSamples = 5
	// DefaultMinSimilarity is the threshold of the adaptive cardinality
	// search; 0 disables the search
	DefaultMinSimilarity          = 95.0
	DefaultSolverTimeLimitSeconds = 60.0
	// DefaultSolverThreads of 0 lets the solver pick one worker per CPU
	DefaultSolverThreads = 0
	DefaultEnableStats   = true
)

// Config holds configuration parameters for the profile selector
type Config struct {
	// HotnessCompression is the percentage of histogram mass to retain per
	// profile (0-100). 100 disables hotness compression.
	HotnessCompression float64 `mapstructure:"hotness_compression"`

	// BlockCompression enables merging of identifiers whose value vectors are
	// identical across the whole profile set.
	BlockCompression bool `mapstructure:"block_compression"`

	// MaxSelectedSamples bounds the number of samples allowed a positive weight.
	MaxSelectedSamples int `mapstructure:"max_selected_samples"`

	// MinSimilarity (0-100) triggers the similarity-driven cardinality search
	// when positive; 0 runs a single bounded solve at MaxSelectedSamples.
	MinSimilarity float64 `mapstructure:"min_similarity"`

	// SolverTimeLimitSeconds bounds the wall-clock time of one solver call.
	SolverTimeLimitSeconds float64 `mapstructure:"solver_time_limit_seconds"`

	// SolverThreads is the worker count of the solver's branch-and-bound
	// search; 0 means one worker per CPU.
	SolverThreads int `mapstructure:"solver_threads"`

	EnableStats bool `mapstructure:"enable_stats"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HotnessCompression:     DefaultHotnessCompression,
		BlockCompression:       DefaultBlockCompression,
		MaxSelectedSamples:     DefaultMaxSelectedSamples,
		MinSimilarity:          DefaultMinSimilarity,
		SolverTimeLimitSeconds: DefaultSolverTimeLimitSeconds,
		SolverThreads:          DefaultSolverThreads,
		EnableStats:            DefaultEnableStats,
	}
}

// LoadFromYAML loads configuration from a YAML file
func LoadFromYAML(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Read the config file
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := v.UnmarshalKey("profile_selector", config); err != nil {
		return nil, err
	}

	// Validate the loaded configuration
	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks if the configuration is valid
func Validate(config *Config) error {
	if config == nil {
		return ErrInvalidConfiguration
	}

	if config.HotnessCompression < 0 || config.HotnessCompression > 100 {
		return ErrInvalidCompression
	}

	if config.MaxSelectedSamples <= 0 {
		return ErrInvalidConfiguration
	}

	if config.MinSimilarity < 0 || config.MinSimilarity > 100 {
		return ErrInvalidConfiguration
	}

	if config.SolverTimeLimitSeconds <= 0 {
		return ErrInvalidConfiguration
	}

	if config.SolverThreads < 0 {
		return ErrInvalidConfiguration
	}

	return nil
}
