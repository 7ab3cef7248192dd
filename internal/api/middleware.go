package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/yogev77/tophuman-sub001/internal/pkg/metrics"
	"github.com/yogev77/tophuman-sub001/internal/service"
)

// TurnTokenHeader carries the per-turn token on lifecycle calls.
const TurnTokenHeader = "X-Turn-Token"

const (
	ctxOwnerID = "owner_id"
	ctxTurnID  = "turn_id"
)

// AuthMiddleware resolves the bearer token into the owner id.
func AuthMiddleware(tokens Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			abort(c, service.ErrUnauthenticated)
			return
		}
		claims, err := tokens.ParseUser(parts[1])
		if err != nil {
			abort(c, service.ErrUnauthenticated)
			return
		}
		c.Set(ctxOwnerID, claims.OwnerID)
		c.Next()
	}
}

// TurnTokenMiddleware resolves the turn token and checks that it was issued
// to the authenticated owner.
func TurnTokenMiddleware(tokens Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(TurnTokenHeader)
		if raw == "" {
			abort(c, service.ErrUnauthenticated)
			return
		}
		claims, err := tokens.ParseTurn(raw)
		if err != nil || claims.OwnerID != c.GetInt64(ctxOwnerID) {
			abort(c, service.ErrUnauthenticated)
			return
		}
		c.Set(ctxTurnID, claims.TurnID)
		c.Next()
	}
}

// BurstLimitMiddleware caps requests per owner and action over window. When
// the limiter backend is unreachable the request is let through.
func BurstLimitMiddleware(limiter Limiter, action string, limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}
		ownerID := c.GetInt64(ctxOwnerID)
		allowed, err := limiter.Allow(c.Request.Context(), ownerID, action, limit, window)
		if err != nil {
			log.Warn().Err(err).Str("action", action).Msg("Rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			abort(c, service.ErrRateLimited)
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := log.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Int64("owner_id", c.GetInt64(ctxOwnerID)).
			Msg("HTTP request")
	}
}

// Metrics records request counts and latency under the matched route.
func Metrics(listener string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(listener, c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPLatency.WithLabelValues(listener, c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
