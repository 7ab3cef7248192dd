// Package service implements the turn lifecycle, settlement and claim
// reconciliation on top of the storage and game packages.
package service

import "errors"

// Errors returned to callers. The message of each is its stable wire code.
var (
	ErrUnauthenticated      = errors.New("unauthenticated")
	ErrInsufficientBalance  = errors.New("insufficient_balance")
	ErrRateLimited          = errors.New("rate_limited")
	ErrInvalidKind          = errors.New("invalid_kind")
	ErrSpecGeneration       = errors.New("spec_generation_failed")
	ErrTurnNotFound         = errors.New("turn_not_found")
	ErrTurnNotPending       = errors.New("turn_not_pending")
	ErrTurnNotActive        = errors.New("turn_not_active")
	ErrTurnTimedOut         = errors.New("turn_timed_out")
	ErrEventCapExceeded     = errors.New("event_cap_exceeded")
	ErrInvalidPayload       = errors.New("invalid_payload")
	ErrInvalidDay           = errors.New("invalid_day")
	ErrDailyAlreadyClaimed  = errors.New("daily_already_claimed")
	ErrSettlementInProgress = errors.New("settlement_in_progress")
)

var coded = []error{
	ErrUnauthenticated,
	ErrInsufficientBalance,
	ErrRateLimited,
	ErrInvalidKind,
	ErrSpecGeneration,
	ErrTurnNotFound,
	ErrTurnNotPending,
	ErrTurnNotActive,
	ErrTurnTimedOut,
	ErrEventCapExceeded,
	ErrInvalidPayload,
	ErrInvalidDay,
	ErrDailyAlreadyClaimed,
	ErrSettlementInProgress,
}

// CodeInternal is reported for every error without a stable code.
const CodeInternal = "internal"

// Code returns the wire code of err.
func Code(err error) string {
	for _, c := range coded {
		if errors.Is(err, c) {
			return c.Error()
		}
	}
	return CodeInternal
}
