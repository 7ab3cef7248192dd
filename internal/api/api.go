// Package api is the public HTTP surface of the turn lifecycle and claims.
package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yogev77/tophuman-sub001/internal/game"
	"github.com/yogev77/tophuman-sub001/internal/model"
	"github.com/yogev77/tophuman-sub001/internal/pkg/token"
	"github.com/yogev77/tophuman-sub001/internal/service"
)

// TurnAPI is implemented by service.TurnService.
type TurnAPI interface {
	CreateTurn(ctx context.Context, ownerID int64, kind string, groupSessionID *string) (*service.CreatedTurn, error)
	StartTurn(ctx context.Context, ownerID int64, turnID string) (*model.Turn, error)
	AppendEvent(ctx context.Context, ownerID int64, turnID, typ string, clientTS int64, payload json.RawMessage) (*service.Appended, error)
	CompleteTurn(ctx context.Context, ownerID int64, turnID string) (*service.Completion, error)
}

// ClaimAPI is implemented by service.ClaimService.
type ClaimAPI interface {
	ClaimAll(ctx context.Context, ownerID int64) (*service.ClaimResult, error)
	Balance(ctx context.Context, ownerID int64) (int64, error)
	GrantDaily(ctx context.Context, ownerID int64) (*model.PendingClaim, error)
}

// PoolAPI is implemented by service.SettlementService.
type PoolAPI interface {
	PoolStatus(ctx context.Context, day, kind string) (*service.PoolView, error)
}

// Tokens parses bearer and turn tokens. Implemented by token.Manager.
type Tokens interface {
	ParseUser(raw string) (*token.UserClaims, error)
	ParseTurn(raw string) (*token.TurnClaims, error)
}

// Limiter is implemented by ratelimit.Limiter.
type Limiter interface {
	Allow(ctx context.Context, ownerID int64, action string, limit int, window time.Duration) (bool, error)
}

// Deps wires the router. Limiter may be nil, which disables burst limiting.
type Deps struct {
	Turns       TurnAPI
	Claims      ClaimAPI
	Pools       PoolAPI
	Games       *game.Registry
	Tokens      Tokens
	Limiter     Limiter
	BurstLimit  int
	BurstWindow time.Duration
}

// Handler serves the public API.
type Handler struct {
	turns  TurnAPI
	claims ClaimAPI
	pools  PoolAPI
	games  *game.Registry
}

// NewRouter builds the gin engine with every public route.
func NewRouter(d Deps) *gin.Engine {
	h := &Handler{turns: d.Turns, claims: d.Claims, pools: d.Pools, games: d.Games}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(), Metrics("public"))

	r.GET("/api/games", h.ListGames)

	protected := r.Group("/api")
	protected.Use(AuthMiddleware(d.Tokens))
	{
		protected.POST("/turns", BurstLimitMiddleware(d.Limiter, "create_turn", d.BurstLimit, d.BurstWindow), h.CreateTurn)
		protected.GET("/balance", h.Balance)
		protected.POST("/claims", h.ClaimAll)
		protected.POST("/daily", h.GrantDaily)
		protected.GET("/pools/:day/:kind", h.PoolStatus)

		turn := protected.Group("/turn")
		turn.Use(TurnTokenMiddleware(d.Tokens))
		{
			turn.POST("/start", h.StartTurn)
			turn.POST("/events", BurstLimitMiddleware(d.Limiter, "append_event", d.BurstLimit*10, d.BurstWindow), h.AppendEvent)
			turn.POST("/complete", h.CompleteTurn)
		}
	}
	return r
}
