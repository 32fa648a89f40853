package coordinator

import "github.com/MikeSquared-Agency/caption/internal/label"

// Reason says why a run ended.
type Reason string

const (
	ReasonPublished            Reason = "published"
	ReasonSkipped              Reason = "skipped"
	ReasonNoUserMessage        Reason = "no_user_message"
	ReasonNotFound             Reason = "not_found"
	ReasonStoreError           Reason = "store_error"
	ReasonVerificationMismatch Reason = "verification_mismatch"
	ReasonGeneratorError       Reason = "generator_error"
	ReasonCancelled            Reason = "cancelled"
)

// Outcome is the result of one MaybeGenerateAndPersist call.
type Outcome struct {
	Reason   Reason
	Label    string // the candidate, or the current label for skips
	Observed string // read-back value on verification_mismatch
	Strategy label.Strategy
	Err      error
}

// Published reports whether a notification was emitted.
func (o Outcome) Published() bool {
	return o.Reason == ReasonPublished
}
