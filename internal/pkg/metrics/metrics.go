// Package metrics declares the Prometheus collectors of the engine. They
// register with the default registry and are served by the ops listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tophuman_turns_created_total",
		Help: "Turns created, by game kind",
	}, []string{"kind"})

	TurnsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tophuman_turns_finished_total",
		Help: "Turns leaving the active state, by kind and terminal status",
	}, []string{"kind", "status"})

	FraudFlags = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tophuman_fraud_flags_total",
		Help: "Replays rejected by an anti-automation rule",
	}, []string{"kind", "reason"})

	ChainBreaks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tophuman_event_chain_breaks_total",
		Help: "Completed turns whose event hash chain was not intact",
	}, []string{"kind"})

	EventsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tophuman_events_appended_total",
		Help: "Turn events appended",
	})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tophuman_settlements_total",
		Help: "Settlement attempts, by kind and outcome (settled, empty, failed)",
	}, []string{"kind", "outcome"})

	Payouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tophuman_payout_credits_total",
		Help: "Credits distributed by settlements, by share (winner, rebate, sink)",
	}, []string{"share"})

	ClaimFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tophuman_claim_failures_total",
		Help: "Claims that could not be written or realized, by stage",
	}, []string{"stage"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tophuman_http_requests_total",
		Help: "HTTP requests, by listener, method, route and status",
	}, []string{"listener", "method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tophuman_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"listener", "method", "route"})
)
