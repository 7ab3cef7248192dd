package game

// Reason explains why a replay was rejected.
type Reason string

// Rejection reasons shared by all kinds.
const (
	ReasonNone                   Reason = ""
	ReasonNoInput                Reason = "no_input"
	ReasonIncomplete             Reason = "incomplete"
	ReasonInvalidPayload         Reason = "invalid_payload"
	ReasonLowAccuracy            Reason = "low_accuracy"
	ReasonUnsolved               Reason = "unsolved"
	ReasonImpossibleSpeed        Reason = "impossible_speed"
	ReasonSuspiciouslyConsistent Reason = "suspiciously_consistent"
	ReasonTooFastTotal           Reason = "too_fast_total"
	ReasonTimeout                Reason = "timeout"
)

// IsFraud reports whether the reason is one of the anti-automation signals.
func (r Reason) IsFraud() bool {
	switch r {
	case ReasonImpossibleSpeed, ReasonSuspiciouslyConsistent, ReasonTooFastTotal:
		return true
	}
	return false
}

// Invalid builds a rejected, unflagged result.
func Invalid(reason Reason) *Result {
	return &Result{Valid: false, Reason: reason}
}

// Flag builds a rejected result carrying a fraud flag and the timing evidence.
func Flag(reason Reason, stats TimingStats) *Result {
	return &Result{
		Valid:   false,
		Reason:  reason,
		Flagged: true,
		Signals: stats.Signals(),
	}
}

// Valid builds an accepted result.
func Valid(score int64, elapsedMs int64, penalties int) *Result {
	return &Result{
		Valid:        true,
		Score:        score,
		CompletionMs: elapsedMs,
		Penalties:    penalties,
	}
}
