package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/yogev77/tophuman-sub001/internal/model"
)

var defaultShares = Shares{
	Winner:    decimal.RequireFromString("0.5"),
	Rebate:    decimal.RequireFromString("0.3"),
	WeightCap: 10,
}

func TestDistributeConservationProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		others := make(map[int64]int)
		n := rapid.IntRange(0, 30).Draw(t, "participants")
		var played int64 = 1 // the winner's turn
		for i := 0; i < n; i++ {
			turns := rapid.IntRange(1, 60).Draw(t, "turns")
			others[int64(i+2)] = turns
			played += int64(turns)
		}
		shares := Shares{
			Winner:    decimal.NewFromInt(int64(rapid.IntRange(0, 60).Draw(t, "winnerPct"))).Div(decimal.NewFromInt(100)),
			Rebate:    decimal.NewFromInt(int64(rapid.IntRange(0, 40).Draw(t, "rebatePct"))).Div(decimal.NewFromInt(100)),
			WeightCap: rapid.IntRange(1, 20).Draw(t, "cap"),
		}

		d := Distribute(played, shares, others)
		if d.WinnerAmount+d.RebateTotal+d.SinkAmount != d.PoolTotal {
			t.Fatalf("leak: %d + %d + %d != %d", d.WinnerAmount, d.RebateTotal, d.SinkAmount, d.PoolTotal)
		}
		if d.RebateTotal > d.RebatePool || d.SinkAmount < 0 {
			t.Fatalf("rebates %d exceed pool %d or sink %d negative", d.RebateTotal, d.RebatePool, d.SinkAmount)
		}
		for _, r := range d.Rebates {
			if r.Weight > shares.WeightCap || r.Weight < 1 {
				t.Fatalf("weight %d outside [1, %d]", r.Weight, shares.WeightCap)
			}
		}
	})
}

func TestDistributeTenTurnPool(t *testing.T) {
	others := make(map[int64]int)
	for id := int64(2); id <= 10; id++ {
		others[id] = 1
	}
	d := Distribute(10, defaultShares, others)

	assert.Equal(t, int64(5), d.WinnerAmount)
	assert.Equal(t, int64(3), d.RebatePool)
	// 3 credits over 9 equal weights floors to zero each.
	assert.Equal(t, int64(0), d.RebateTotal)
	assert.Equal(t, int64(5), d.SinkAmount)
	assert.Len(t, d.Rebates, 9)
}

func TestDistributeSplitsRebatesByCappedWeight(t *testing.T) {
	d := Distribute(100, defaultShares, map[int64]int{2: 50, 3: 10, 4: 5})

	require.Len(t, d.Rebates, 3)
	assert.Equal(t, 10, d.Rebates[0].Weight)
	assert.Equal(t, 10, d.Rebates[1].Weight)
	assert.Equal(t, d.Rebates[0].Amount, d.Rebates[1].Amount, "50 turns weigh the same as 10")
	assert.Equal(t, int64(12), d.Rebates[0].Amount) // 30 * 10 / 25
	assert.Equal(t, int64(6), d.Rebates[2].Amount)  // 30 * 5 / 25
	assert.Equal(t, int64(30), d.RebateTotal)
	assert.Equal(t, int64(20), d.SinkAmount)
}

func TestDistributeSingleParticipant(t *testing.T) {
	d := Distribute(7, defaultShares, nil)
	assert.Equal(t, int64(3), d.WinnerAmount)
	assert.Equal(t, int64(0), d.RebateTotal)
	assert.Equal(t, int64(4), d.SinkAmount)
	assert.Empty(t, d.Rebates)
}

func scored(id string, score int64, created, completed time.Time) *model.Turn {
	return &model.Turn{ID: id, Score: &score, CreatedAt: created, CompletedAt: &completed}
}

func TestPickWinnerTieBreak(t *testing.T) {
	t0 := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		turns []*model.Turn
		want  string
	}{
		{
			name:  "highest score",
			turns: []*model.Turn{scored("a", 10, t0, t0), scored("b", 20, t0, t0)},
			want:  "b",
		},
		{
			name: "earliest completion",
			turns: []*model.Turn{
				scored("a", 20, t0, t0.Add(2*time.Minute)),
				scored("b", 20, t0.Add(time.Minute), t0.Add(time.Minute)),
			},
			want: "b",
		},
		{
			name: "earliest creation",
			turns: []*model.Turn{
				scored("a", 20, t0.Add(time.Second), t0.Add(time.Minute)),
				scored("b", 20, t0, t0.Add(time.Minute)),
			},
			want: "b",
		},
		{
			name:  "lowest id",
			turns: []*model.Turn{scored("b", 20, t0, t0), scored("a", 20, t0, t0)},
			want:  "a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := PickWinner(tt.turns)
			require.NotNil(t, w)
			assert.Equal(t, tt.want, w.ID)
		})
	}

	flagged := scored("f", 99, t0, t0)
	flagged.Flagged = true
	assert.Nil(t, PickWinner([]*model.Turn{flagged}))
	assert.Equal(t, "a", PickWinner([]*model.Turn{flagged, scored("a", 1, t0, t0)}).ID)
}

func TestContentHash(t *testing.T) {
	t0 := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	w := scored("w", 500, t0, t0)
	w.OwnerID = 1
	d := Distribute(20, defaultShares, map[int64]int{2: 3, 3: 1})

	h := ContentHash("2026-10-19", "quick_math", w, d)
	assert.Len(t, h, 64)
	assert.Equal(t, h, ContentHash("2026-10-19", "quick_math", w, d))
	assert.NotEqual(t, h, ContentHash("2026-10-20", "quick_math", w, d))
}
