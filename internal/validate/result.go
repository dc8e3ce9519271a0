// Package validate is the symbol validation core: it classifies a package's
// binaries, checks their debug information locally, recovers missing symbols
// from remote tiers, and aggregates everything into a single verdict with a
// human-readable report.
package validate

import "time"

// Result is the overall validation verdict. Observers only ever see Pending
// or one of the terminal values; bucket-in-progress state is never
// published.
type Result int

const (
	// ResultPending means a validation pass has not completed yet.
	ResultPending Result = iota
	// ResultValid means every binary has symbols with usable Source Link.
	ResultValid
	// ResultValidExternal is Valid, but at least one remote tier was
	// consulted to get there.
	ResultValidExternal
	// ResultNoSourceLink means at least one binary's symbols carry no
	// Source Link metadata.
	ResultNoSourceLink
	// ResultInvalidSourceLink means at least one binary's Source Link
	// metadata has errors.
	ResultInvalidSourceLink
	// ResultNoSymbols means at least one binary has no symbols at all,
	// locally or remotely.
	ResultNoSymbols
	// ResultNothingToValidate means the package contains no candidate
	// binaries.
	ResultNothingToValidate
)

func (r Result) String() string {
	switch r {
	case ResultPending:
		return "pending"
	case ResultValid:
		return "valid"
	case ResultValidExternal:
		return "valid (external symbols)"
	case ResultNoSourceLink:
		return "missing source link"
	case ResultInvalidSourceLink:
		return "invalid source link"
	case ResultNoSymbols:
		return "missing symbols"
	case ResultNothingToValidate:
		return "nothing to validate"
	default:
		return "unknown"
	}
}

// IsValid reports whether the verdict is one of the two passing values.
func (r Result) IsValid() bool {
	return r == ResultValid || r == ResultValidExternal
}

// Outcome is the immutable snapshot published at the end of a validation
// pass.
type Outcome struct {
	// Result is the aggregated verdict.
	Result Result
	// ErrorMessage is the cumulative diagnostic report, "" when the
	// package validates cleanly.
	ErrorMessage string
	// External reports whether any remote tier was used.
	External bool
	// RunID uniquely identifies the validation pass.
	RunID string
	// Duration is the wall time of the pass.
	Duration time.Duration
}
