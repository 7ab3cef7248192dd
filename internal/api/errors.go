package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/yogev77/tophuman-sub001/internal/service"
)

var statusByCode = map[string]int{
	"unauthenticated":        http.StatusUnauthorized,
	"insufficient_balance":   http.StatusPaymentRequired,
	"rate_limited":           http.StatusTooManyRequests,
	"invalid_kind":           http.StatusBadRequest,
	"invalid_payload":        http.StatusBadRequest,
	"invalid_day":            http.StatusBadRequest,
	"turn_not_found":         http.StatusNotFound,
	"turn_not_pending":       http.StatusConflict,
	"turn_not_active":        http.StatusConflict,
	"daily_already_claimed":  http.StatusConflict,
	"settlement_in_progress": http.StatusConflict,
	"turn_timed_out":         http.StatusGone,
	"event_cap_exceeded":     http.StatusUnprocessableEntity,
	"spec_generation_failed": http.StatusInternalServerError,
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	if status, ok := statusByCode[service.Code(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
	}
	c.JSON(status, gin.H{"error": service.Code(err)})
}

func abort(c *gin.Context, err error) {
	respondError(c, err)
	c.Abort()
}
