package profileselector

import "errors"

// Error types for the profile selection library
var (
	// ErrProfileFileNotFound indicates a profile file could not be found
	ErrProfileFileNotFound = errors.New("profile file not found")

	// ErrInvalidProfileRecord indicates a malformed histogram record or
	// histogram-set entry
	ErrInvalidProfileRecord = errors.New("invalid profile record")

	// ErrNoReference indicates the profile set contains no reference profile
	ErrNoReference = errors.New("no reference histogram found")

	// ErrMultipleReferences indicates the profile set contains more than one
	// reference profile
	ErrMultipleReferences = errors.New("multiple reference histograms found")

	// ErrEmptyReference indicates the reference histogram carries no mass
	ErrEmptyReference = errors.New("reference histogram is empty")

	// ErrNoSamples indicates no sample histogram with positive mass is available
	ErrNoSamples = errors.New("no valid sample histograms found")

	// ErrInvalidCompression indicates a hotness compression percentage outside [0, 100]
	ErrInvalidCompression = errors.New("hotness compression must be in [0, 100]")

	// ErrOptimizationFailed indicates the solver could not produce a usable solution
	ErrOptimizationFailed = errors.New("optimization failed")

	// ErrNormalizationFailed indicates rounded weights could not be repaired
	// to sum to 1.0
	ErrNormalizationFailed = errors.New("unable to normalize weights to sum to 1.0")

	// ErrInvalidConfiguration indicates configuration parameters are invalid
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
