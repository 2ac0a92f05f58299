package verify

import (
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/designref/capture"
	"github.com/hazyhaar/designref/imagediff"
)

// Outcome classifies one comparison attempt or a whole verification.
type Outcome int

const (
	// Matched: score is zero or inside the pass band.
	Matched Outcome = iota
	// MismatchedWithinTolerance: above the pass band but inside the tolerated
	// band. Passes with a warning.
	MismatchedWithinTolerance
	// MismatchedBeyondTolerance: above both bands. Retried; fails once the
	// retry budget is spent.
	MismatchedBeyondTolerance
	// NoBaseline: there is no design reference for the name. Fails.
	NoBaseline
	// RetriesExhausted tags the last attempt of a verification that ran out
	// of retries. The verification itself reports MismatchedBeyondTolerance.
	RetriesExhausted
)

var outcomeNames = map[Outcome]string{
	Matched:                   "matched",
	MismatchedWithinTolerance: "mismatched_within_tolerance",
	MismatchedBeyondTolerance: "mismatched_beyond_tolerance",
	NoBaseline:                "no_baseline",
	RetriesExhausted:          "retries_exhausted",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	for o, name := range outcomeNames {
		if name == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("verify: unknown outcome %q", s)
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	v, err := ParseOutcome(string(b))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// Passed reports whether the outcome lets the step pass.
func (o Outcome) Passed() bool {
	return o == Matched || o == MismatchedWithinTolerance
}

var (
	// ErrNoBaseline is the step failure for a missing design reference.
	ErrNoBaseline = errors.New("verify: design reference does not exist")
	// ErrRetriesExhausted is the step failure for a persistent mismatch.
	ErrRetriesExhausted = errors.New("verify: screenshot mismatch persisted after retries")
)

// Attempt is one capture-and-compare cycle.
type Attempt struct {
	Number    int             `json:"number"`
	Candidate string          `json:"candidate"`
	Diff      string          `json:"diff,omitempty"`
	Score     imagediff.Score `json:"score"`
	Outcome   Outcome         `json:"outcome"`
}

// Result is the verdict of one verification call. Candidate and Diff refer
// to the last attempt.
type Result struct {
	Reference string          `json:"reference"`
	Browser   string          `json:"browser"`
	Region    capture.Region  `json:"region"`
	Outcome   Outcome         `json:"outcome"`
	Score     imagediff.Score `json:"score"`
	Candidate string          `json:"candidate"`
	Baseline  string          `json:"baseline"`
	Diff      string          `json:"diff,omitempty"`
	Attempts  []Attempt       `json:"attempts"`
	Started   time.Time       `json:"started"`
	Duration  time.Duration   `json:"duration"`
}

// Passed reports whether the verification lets the step pass.
func (r *Result) Passed() bool { return r.Outcome.Passed() }

// Retries is the number of re-captures performed after the first attempt.
func (r *Result) Retries() int {
	if len(r.Attempts) == 0 {
		return 0
	}
	return len(r.Attempts) - 1
}

// Err returns nil for a passing result and a descriptive error wrapping
// ErrNoBaseline or ErrRetriesExhausted otherwise.
func (r *Result) Err() error {
	switch r.Outcome {
	case Matched, MismatchedWithinTolerance:
		return nil
	case NoBaseline:
		return fmt.Errorf("%w: %s", ErrNoBaseline, r.Baseline)
	default:
		return fmt.Errorf("%w: %q differs by %v after %d attempts", ErrRetriesExhausted, r.Reference, float64(r.Score), len(r.Attempts))
	}
}
