package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yogev77/tophuman-sub001/internal/model"
)

// Shares are the fixed fractions of a pool paid to the winner and spread as
// rebates. Whatever remains, including rounding, goes to the sink.
type Shares struct {
	Winner    decimal.Decimal
	Rebate    decimal.Decimal
	WeightCap int
}

// Rebate is one participant's share of the rebate pool.
type Rebate struct {
	OwnerID int64 `json:"owner_id"`
	Turns   int   `json:"turns"`
	Weight  int   `json:"weight"`
	Amount  int64 `json:"amount"`
}

// Distribution splits a pool. WinnerAmount + RebateTotal + SinkAmount always
// equals PoolTotal.
type Distribution struct {
	PoolTotal    int64
	WinnerAmount int64
	RebatePool   int64
	RebateTotal  int64
	SinkAmount   int64
	Rebates      []Rebate // ordered by owner id
}

// Distribute computes the payout of a pool. others maps every non-winning
// participant to the number of turns they played in the cycle; each is
// weighted by min(turns, WeightCap).
func Distribute(poolTotal int64, shares Shares, others map[int64]int) Distribution {
	pool := decimal.NewFromInt(poolTotal)
	d := Distribution{
		PoolTotal:    poolTotal,
		WinnerAmount: pool.Mul(shares.Winner).Floor().IntPart(),
		RebatePool:   pool.Mul(shares.Rebate).Floor().IntPart(),
	}

	owners := make([]int64, 0, len(others))
	for id, n := range others {
		if n > 0 {
			owners = append(owners, id)
		}
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })

	var totalWeight int64
	for _, id := range owners {
		totalWeight += int64(capWeight(others[id], shares.WeightCap))
	}
	for _, id := range owners {
		w := capWeight(others[id], shares.WeightCap)
		amount := d.RebatePool * int64(w) / totalWeight
		d.Rebates = append(d.Rebates, Rebate{OwnerID: id, Turns: others[id], Weight: w, Amount: amount})
		d.RebateTotal += amount
	}

	d.SinkAmount = poolTotal - d.WinnerAmount - d.RebateTotal
	return d
}

func capWeight(turns, limit int) int {
	if limit > 0 && turns > limit {
		return limit
	}
	return turns
}

// ContentHash fingerprints a settlement computation for audit.
func ContentHash(day, kind string, winner *model.Turn, d Distribution) string {
	rebates := make([]Rebate, 0, len(d.Rebates))
	for _, r := range d.Rebates {
		if r.Amount > 0 {
			rebates = append(rebates, r)
		}
	}
	doc := struct {
		Day          string   `json:"day"`
		Kind         string   `json:"kind"`
		PoolTotal    int64    `json:"pool_total"`
		WinnerID     int64    `json:"winner_id"`
		WinnerTurnID string   `json:"winner_turn_id"`
		WinnerAmount int64    `json:"winner_amount"`
		Rebates      []Rebate `json:"rebates"`
		SinkAmount   int64    `json:"sink_amount"`
	}{
		Day:          day,
		Kind:         kind,
		PoolTotal:    d.PoolTotal,
		WinnerID:     winner.OwnerID,
		WinnerTurnID: winner.ID,
		WinnerAmount: d.WinnerAmount,
		Rebates:      rebates,
		SinkAmount:   d.SinkAmount,
	}
	b, _ := json.Marshal(doc)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// PickWinner returns the best unflagged turn: highest score, then earliest
// completion, then earliest creation, then lowest turn id. It returns nil when
// every turn is flagged or unscored.
func PickWinner(turns []*model.Turn) *model.Turn {
	var best *model.Turn
	for _, t := range turns {
		if t.Flagged || t.Score == nil {
			continue
		}
		if best == nil || outranks(t, best) {
			best = t
		}
	}
	return best
}

func outranks(a, b *model.Turn) bool {
	if *a.Score != *b.Score {
		return *a.Score > *b.Score
	}
	ac, bc := completedAt(a), completedAt(b)
	if !ac.Equal(bc) {
		return ac.Before(bc)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func completedAt(t *model.Turn) time.Time {
	if t.CompletedAt == nil {
		return t.CreatedAt
	}
	return *t.CompletedAt
}
