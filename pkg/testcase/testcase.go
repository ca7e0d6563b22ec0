package testcase

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
)

// ErrInvalidTestCase is wrapped by every error returned from Load.
var ErrInvalidTestCase = errors.New("invalid test case")

// CheckType identifies the kind of assertion a check performs.
type CheckType string

const (
	CheckTypeContains CheckType = "contains"
	CheckTypeEndsWith CheckType = "endswith"
)

// Check is a single assertion applied to a response body.
type Check struct {
	Type  CheckType `mapstructure:"type"`
	Value string    `mapstructure:"value"`
}

// TestCase is one HTTP request and the checks its response must satisfy.
type TestCase struct {
	Path     string          // Source file the test was loaded from.
	Endpoint string          // Appended verbatim to a backend base URL.
	Data     json.RawMessage // Request body, before canonical formatting.
	Checks   []Check

	// IgnoredCheckTypes lists check types present in the file that are not
	// understood. Such checks never pass or fail on their own.
	IgnoredCheckTypes []string
}

// LoadOptions controls how test case files are interpreted.
type LoadOptions struct {
	// StrictChecks turns unknown check types into load errors.
	StrictChecks bool
}

// Load reads and parses a test case file.
func Load(path string, opts LoadOptions) (*TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrInvalidTestCase, path, err)
	}

	tc, err := Parse(data, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidTestCase, path, err)
	}

	tc.Path = path

	return tc, nil
}

// Parse parses test case content. The returned TestCase has no Path.
func Parse(data []byte, opts LoadOptions) (*TestCase, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	rawEndpoint, ok := fields["endpoint"]
	if !ok {
		return nil, fmt.Errorf("missing required key %q", "endpoint")
	}

	var endpoint *string
	if err := json.Unmarshal(rawEndpoint, &endpoint); err != nil {
		return nil, fmt.Errorf("endpoint must be a string: %w", err)
	}

	if endpoint == nil {
		return nil, errors.New("endpoint must be a string, got null")
	}

	tc := &TestCase{Endpoint: *endpoint}

	rawData, ok := fields["data"]
	if !ok {
		return nil, fmt.Errorf("missing required key %q", "data")
	}

	tc.Data = rawData

	if rawChecks, ok := fields["checks"]; ok {
		checks, ignored, err := parseChecks(rawChecks, opts)
		if err != nil {
			return nil, err
		}

		tc.Checks = checks
		tc.IgnoredCheckTypes = ignored
	}

	return tc, nil
}

// parseChecks decodes the checks array. Each entry is decoded generically
// first so that only known types have their fields validated.
func parseChecks(raw json.RawMessage, opts LoadOptions) ([]Check, []string, error) {
	var entries []map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, nil, fmt.Errorf("checks must be an array of objects: %w", err)
	}

	checks := make([]Check, 0, len(entries))

	var ignored []string

	for i, entry := range entries {
		typ, _ := entry["type"].(string)

		switch CheckType(typ) {
		case CheckTypeContains, CheckTypeEndsWith:
			if _, ok := entry["value"].(string); !ok {
				return nil, nil, fmt.Errorf("check %d (%s): value must be a string", i, typ)
			}

			var check Check
			if err := mapstructure.Decode(entry, &check); err != nil {
				return nil, nil, fmt.Errorf("check %d (%s): %w", i, typ, err)
			}

			checks = append(checks, check)
		default:
			if opts.StrictChecks {
				return nil, nil, fmt.Errorf("check %d: unknown type %q", i, typ)
			}

			ignored = append(ignored, typ)
		}
	}

	return checks, ignored, nil
}
