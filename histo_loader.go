package profileselector

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cast"
)

// profileLoader implements the ProfileLoader interface
type profileLoader struct {
	logger Logger
}

// NewProfileLoader creates a new ProfileLoader instance
func NewProfileLoader(logger Logger) ProfileLoader {
	return &profileLoader{logger: logger}
}

// LoadHistoFile parses a .histo text file into (identifier, count) records
func (pl *profileLoader) LoadHistoFile(path string) ([]CountRecord, error) {
	pl.logger.Infof("Loading profile file, path: %s", path)

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrProfileFileNotFound, path)
	}

	// Open file
	file, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to open profile file: %w", err)
	}
	defer file.Close()

	records, err := pl.loadHistoReader(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	pl.logger.Infof("Profile file loaded, path: %s, records: %d", path, len(records))
	return records, nil
}

// loadHistoReader parses .histo text from any io.Reader. Each data line is
// "<identifier> <count>"; blank lines and lines starting with '#' are skipped;
// columns past the second are ignored. Malformed lines are fatal and carry the
// offending line number.
func (pl *profileLoader) loadHistoReader(reader io.Reader) ([]CountRecord, error) {
	scanner := bufio.NewScanner(reader)

	var records []CountRecord
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrInvalidProfileRecord, lineNumber, line)
		}

		count, err := cast.ToInt64E(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: invalid count at line %d: %q",
				ErrInvalidProfileRecord, lineNumber, line)
		}
		if count < 0 {
			return nil, fmt.Errorf("%w: negative count at line %d: %q",
				ErrInvalidProfileRecord, lineNumber, line)
		}

		records = append(records, CountRecord{Identifier: parts[0], Count: count})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading profile file: %w", err)
	}

	return records, nil
}

// profileEntryKeys is the exact key set every histogram-set entry must carry
var profileEntryKeys = []string{"type", "source_file", "histo"}

// LoadProfileSet reads a histogram-set JSON artifact
func (pl *profileLoader) LoadProfileSet(path string) ([]*Profile, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProfileFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to read histogram set: %w", err)
	}

	// Strict key validation first: every entry must contain exactly the
	// contract keys, nothing more, nothing less
	var rawEntries []map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawEntries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProfileRecord, path, err)
	}
	for i, raw := range rawEntries {
		if len(raw) != len(profileEntryKeys) {
			return nil, fmt.Errorf("%w: entry %d must contain exactly the keys %v",
				ErrInvalidProfileRecord, i, profileEntryKeys)
		}
		for _, key := range profileEntryKeys {
			if _, ok := raw[key]; !ok {
				return nil, fmt.Errorf("%w: entry %d is missing key %q",
					ErrInvalidProfileRecord, i, key)
			}
		}
	}

	var profiles []*Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidProfileRecord, path, err)
	}

	pl.logger.Infof("Histogram set loaded, path: %s, profiles: %d", path, len(profiles))
	return profiles, nil
}

// SaveProfileSet writes profiles as a histogram-set JSON artifact, replacing
// any existing file at path
func (pl *profileLoader) SaveProfileSet(profiles []*Profile, path string) error {
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal histogram set: %w", err)
	}

	// Reset any previous artifact so a failed run never leaves a stale file
	// mixed with a fresh one
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to reset %s: %w", path, err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write histogram set: %w", err)
	}

	pl.logger.Infof("Histogram set written, path: %s, profiles: %d", path, len(profiles))
	return nil
}
