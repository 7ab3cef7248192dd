// Package model defines the persisted records of the turn and settlement engine.
package model

import (
	"encoding/json"
	"time"
)

// DayLayout is the format of a day bucket (UTC calendar date).
const DayLayout = "2006-01-02"

// DayOf returns the UTC day bucket containing t.
func DayOf(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// TurnStatus is the lifecycle state of a Turn.
type TurnStatus string

// Turn statuses. A turn only ever moves forward through this list.
const (
	TurnPending   TurnStatus = "pending"
	TurnActive    TurnStatus = "active"
	TurnCompleted TurnStatus = "completed"
	TurnInvalid   TurnStatus = "invalid"
	TurnExpired   TurnStatus = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s TurnStatus) Terminal() bool {
	return s == TurnCompleted || s == TurnInvalid || s == TurnExpired
}

// CanTransition reports whether s -> to is a legal forward move.
func (s TurnStatus) CanTransition(to TurnStatus) bool {
	switch s {
	case TurnPending:
		return to == TurnActive || to == TurnExpired || to == TurnInvalid
	case TurnActive:
		return to.Terminal()
	default:
		return false
	}
}

// Turn is one paid attempt at a game challenge.
type Turn struct {
	ID             string          `db:"id"`
	OwnerID        int64           `db:"owner_id"`
	Kind           string          `db:"kind"`
	Day            string          `db:"day"`
	Seed           string          `db:"seed"`
	ServerSpec     json.RawMessage `db:"server_spec"`
	ClientSpec     json.RawMessage `db:"client_spec"`
	Status         TurnStatus      `db:"status"`
	Score          *int64          `db:"score"`
	CompletionMs   *int64          `db:"completion_ms"`
	Penalties      int             `db:"penalties"`
	Flagged        bool            `db:"flagged"`
	FraudSignals   json.RawMessage `db:"fraud_signals"`
	InvalidReason  *string         `db:"invalid_reason"`
	GroupSessionID *string         `db:"group_session_id"`
	CreatedAt      time.Time       `db:"created_at"`
	ExpiresAt      time.Time       `db:"expires_at"`
	StartedAt      *time.Time      `db:"started_at"`
	CompletedAt    *time.Time      `db:"completed_at"`
}

// TurnEvent is one append-only client action within a turn.
type TurnEvent struct {
	TurnID          string          `db:"turn_id"`
	Index           int             `db:"idx"`
	Type            string          `db:"type"`
	ClientTimestamp int64           `db:"client_ts"` // unix millis, as claimed by the client
	ServerTimestamp time.Time       `db:"server_ts"`
	Payload         json.RawMessage `db:"payload"`
	PrevHash        *string         `db:"prev_hash"`
	Hash            string          `db:"hash"`
}

// SettlementStatus is the lifecycle state of a Settlement.
type SettlementStatus string

// Settlement statuses. Failed attempts are deleted rather than recorded.
const (
	SettlementProcessing SettlementStatus = "processing"
	SettlementCompleted  SettlementStatus = "completed"
)

// Settlement is one resolved pool for (day, kind, cycle).
type Settlement struct {
	ID               string           `db:"id"`
	Day              string           `db:"day"`
	Kind             string           `db:"kind"`
	Cycle            int              `db:"cycle"`
	Status           SettlementStatus `db:"status"`
	PoolTotal        int64            `db:"pool_total"`
	ParticipantCount int              `db:"participant_count"`
	WinnerID         *int64           `db:"winner_id"`
	WinnerTurnID     *string          `db:"winner_turn_id"`
	WinnerAmount     int64            `db:"winner_amount"`
	RebateTotal      int64            `db:"rebate_total"`
	SinkAmount       int64            `db:"sink_amount"`
	ContentHash      string           `db:"content_hash"`
	IdempotencyKey   string           `db:"idempotency_key"`
	CycleStart       *time.Time       `db:"cycle_start"`
	CreatedAt        time.Time        `db:"created_at"`
	CompletedAt      *time.Time       `db:"completed_at"`
}

// ClaimType classifies a PendingClaim.
type ClaimType string

// Claim types.
const (
	ClaimPrizeWin   ClaimType = "prize_win"
	ClaimRebate     ClaimType = "rebate"
	ClaimDailyGrant ClaimType = "daily_grant"
	ClaimGroupPrize ClaimType = "group_prize"
)

// PendingClaim is a credit owed to an owner and not yet realized in the ledger.
type PendingClaim struct {
	ID            string          `db:"id"`
	OwnerID       int64           `db:"owner_id"`
	Type          ClaimType       `db:"type"`
	Amount        int64           `db:"amount"`
	SettlementID  *string         `db:"settlement_id"`
	Day           string          `db:"day"`
	Metadata      json.RawMessage `db:"metadata"`
	LedgerEntryID *int64          `db:"ledger_entry_id"`
	ClaimedAt     *time.Time      `db:"claimed_at"`
	CreatedAt     time.Time       `db:"created_at"`
}

// LedgerKind is the typed event kind of a ledger entry.
type LedgerKind string

// Ledger kinds.
const (
	LedgerTurnDebit  LedgerKind = "turn_debit"
	LedgerPrizeWin   LedgerKind = "prize_win"
	LedgerRebate     LedgerKind = "rebate"
	LedgerDailyGrant LedgerKind = "daily_grant"
	LedgerGroupPrize LedgerKind = "group_prize"
	LedgerSink       LedgerKind = "sink"
)

// LedgerKindForClaim maps a claim type to the ledger kind it realizes as.
func LedgerKindForClaim(t ClaimType) LedgerKind {
	switch t {
	case ClaimPrizeWin:
		return LedgerPrizeWin
	case ClaimRebate:
		return LedgerRebate
	case ClaimDailyGrant:
		return LedgerDailyGrant
	case ClaimGroupPrize:
		return LedgerGroupPrize
	default:
		return LedgerKind(t)
	}
}

// CreditLedgerEntry is an immutable signed balance movement.
// An owner's balance is the sum of their entries.
type CreditLedgerEntry struct {
	ID           int64           `db:"id"`
	OwnerID      int64           `db:"owner_id"`
	Amount       int64           `db:"amount"`
	Kind         LedgerKind      `db:"kind"`
	Day          string          `db:"day"`
	SettlementID *string         `db:"settlement_id"`
	TurnID       *string         `db:"turn_id"`
	ClaimID      *string         `db:"claim_id"` // unique: a claim realizes at most once
	Metadata     json.RawMessage `db:"metadata"`
	CreatedAt    time.Time       `db:"created_at"`
}

// PoolStatus is the aggregation state of a DailyPool.
type PoolStatus string

// Pool statuses.
const (
	PoolActive  PoolStatus = "active"
	PoolFrozen  PoolStatus = "frozen"
	PoolSettled PoolStatus = "settled"
)

// DailyPool tracks the (day, kind) aggregation state.
type DailyPool struct {
	Day          string     `db:"day"`
	Kind         string     `db:"kind"`
	Status       PoolStatus `db:"status"`
	FrozenAt     *time.Time `db:"frozen_at"`
	SettledAt    *time.Time `db:"settled_at"`
	SettlementID *string    `db:"settlement_id"`
}

// TreasurySnapshot records the treasury balance after a settlement.
type TreasurySnapshot struct {
	ID           int64     `db:"id"`
	AccountID    int64     `db:"account_id"`
	Day          string    `db:"day"`
	Balance      int64     `db:"balance"`
	SettlementID string    `db:"settlement_id"`
	CreatedAt    time.Time `db:"created_at"`
}
