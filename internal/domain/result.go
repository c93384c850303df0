package domain

import (
	"fmt"
	"strings"
)

// Result is the outcome of a build. Results are ordered from best to worst,
// so comparisons must always use the ordinal and never the name.
type Result int

// Build results, best first.
const (
	ResultSuccess Result = iota
	ResultUnstable
	ResultFailure
	ResultAborted
	ResultNotBuilt
)

var resultNames = [...]string{
	ResultSuccess:  "SUCCESS",
	ResultUnstable: "UNSTABLE",
	ResultFailure:  "FAILURE",
	ResultAborted:  "ABORTED",
	ResultNotBuilt: "NOT_BUILT",
}

// String returns the canonical upper case name of the result.
func (r Result) String() string {
	if r < ResultSuccess || int(r) >= len(resultNames) {
		return fmt.Sprintf("Result(%d)", int(r))
	}
	return resultNames[r]
}

// IsBetterOrEqualTo reports whether r is at least as good as other.
func (r Result) IsBetterOrEqualTo(other Result) bool {
	return r <= other
}

// ParseResult converts a result name (case-insensitive) into a Result.
// Returns ErrInvalidResult for unknown names.
func ParseResult(name string) (Result, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	for i, candidate := range resultNames {
		if candidate == normalized {
			return Result(i), nil
		}
	}
	return ResultNotBuilt, fmt.Errorf("%w: %q", ErrInvalidResult, name)
}

// MarshalText implements encoding.TextMarshaler.
func (r Result) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Result) UnmarshalText(text []byte) error {
	parsed, err := ParseResult(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
