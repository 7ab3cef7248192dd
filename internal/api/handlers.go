package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yogev77/tophuman-sub001/internal/service"
)

type createTurnRequest struct {
	Kind           string  `json:"kind" binding:"required"`
	GroupSessionID *string `json:"group_session_id"`
}

type appendEventRequest struct {
	Type     string          `json:"type" binding:"required"`
	ClientTS int64           `json:"client_ts"`
	Payload  json.RawMessage `json:"payload"`
}

// ListGames returns the playable kinds.
func (h *Handler) ListGames(c *gin.Context) {
	games := h.games.List()
	out := make([]gin.H, 0, len(games))
	for _, g := range games {
		out = append(out, gin.H{
			"kind":          g.Kind(),
			"name":          g.Name(),
			"time_limit_ms": g.TimeLimit().Milliseconds(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"games": out})
}

// CreateTurn buys a turn.
func (h *Handler) CreateTurn(c *gin.Context) {
	var req createTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", service.ErrInvalidKind, err))
		return
	}

	created, err := h.turns.CreateTurn(c.Request.Context(), c.GetInt64(ctxOwnerID), req.Kind, req.GroupSessionID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"turn_id":       created.TurnID,
		"turn_token":    created.Token,
		"kind":          created.Kind,
		"client_spec":   created.ClientSpec,
		"expires_at":    created.ExpiresAt,
		"time_limit_ms": created.TimeLimit.Milliseconds(),
	})
}

// StartTurn opens the play budget of the token's turn.
func (h *Handler) StartTurn(c *gin.Context) {
	t, err := h.turns.StartTurn(c.Request.Context(), c.GetInt64(ctxOwnerID), c.GetString(ctxTurnID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"turn_id":    t.ID,
		"started_at": t.StartedAt,
		"expires_at": t.ExpiresAt,
	})
}

// AppendEvent records one client action.
func (h *Handler) AppendEvent(c *gin.Context) {
	var req appendEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: %v", service.ErrInvalidPayload, err))
		return
	}

	ap, err := h.turns.AppendEvent(c.Request.Context(), c.GetInt64(ctxOwnerID), c.GetString(ctxTurnID), req.Type, req.ClientTS, req.Payload)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ap)
}

// CompleteTurn replays and scores the turn.
func (h *Handler) CompleteTurn(c *gin.Context) {
	res, err := h.turns.CompleteTurn(c.Request.Context(), c.GetInt64(ctxOwnerID), c.GetString(ctxTurnID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Balance returns the owner's ledger balance.
func (h *Handler) Balance(c *gin.Context) {
	balance, err := h.claims.Balance(c.Request.Context(), c.GetInt64(ctxOwnerID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// ClaimAll realizes the owner's pending claims.
func (h *Handler) ClaimAll(c *gin.Context) {
	res, err := h.claims.ClaimAll(c.Request.Context(), c.GetInt64(ctxOwnerID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GrantDaily issues today's grant as a pending claim.
func (h *Handler) GrantDaily(c *gin.Context) {
	claim, err := h.claims.GrantDaily(c.Request.Context(), c.GetInt64(ctxOwnerID))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"claim_id": claim.ID,
		"amount":   claim.Amount,
		"day":      claim.Day,
	})
}

// PoolStatus describes one pool.
func (h *Handler) PoolStatus(c *gin.Context) {
	view, err := h.pools.PoolStatus(c.Request.Context(), c.Param("day"), c.Param("kind"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
