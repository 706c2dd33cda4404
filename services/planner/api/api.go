// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the planner over HTTP.
//
// Routes:
//
//	POST /v1/plan    snapshot in, plan out
//	GET  /v1/health  liveness plus twin circuit breaker state
//	GET  /metrics    Prometheus exposition
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianTwin/services/planner/constraint"
	"github.com/AleutianAI/AleutianTwin/services/planner/mapek"
	"github.com/AleutianAI/AleutianTwin/services/planner/model"
	"github.com/AleutianAI/AleutianTwin/services/planner/simtree"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Planner runs one planning round. *mapek.Planner satisfies it.
type Planner interface {
	Plan(ctx context.Context, cache *model.PropertyCache) (*mapek.Plan, error)
	Strategy() string
}

// PlanRequest is the body of POST /v1/plan.
type PlanRequest struct {
	Snapshot *model.PropertyCache `json:"snapshot" binding:"required"`
}

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status   string                       `json:"status"`
	Version  string                       `json:"version"`
	Strategy string                       `json:"strategy"`
	Uptime   string                       `json:"uptime"`
	Breaker  *simtree.CircuitBreakerStats `json:"breaker,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Handlers serves the planner routes.
type Handlers struct {
	planner Planner
	breaker *simtree.CircuitBreaker
	logger  *slog.Logger
	started time.Time
	timeout time.Duration
}

// Option configures Handlers.
type Option func(*Handlers)

// WithBreaker reports breaker state on the health endpoint.
func WithBreaker(cb *simtree.CircuitBreaker) Option {
	return func(h *Handlers) { h.breaker = cb }
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithPlanTimeout bounds a single POST /v1/plan round. Zero means the
// request context alone bounds it.
func WithPlanTimeout(d time.Duration) Option {
	return func(h *Handlers) { h.timeout = d }
}

// NewHandlers creates handlers over planner.
func NewHandlers(planner Planner, opts ...Option) *Handlers {
	h := &Handlers{planner: planner, logger: slog.Default(), started: time.Now()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the planner routes on router.
//
// Example:
//
//	router := gin.New()
//	router.Use(gin.Recovery(), api.Tracing("twinplanner.http"))
//	api.RegisterRoutes(router, api.NewHandlers(planner))
func RegisterRoutes(router gin.IRoutes, h *Handlers) {
	router.POST("/v1/plan", h.HandlePlan)
	router.GET("/v1/health", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// NewRouter returns a gin engine with recovery, tracing, request metrics
// and the planner routes.
func NewRouter(h *Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), Tracing("twinplanner.http"), requestMetrics())
	RegisterRoutes(router, h)
	return router
}

// HandlePlan handles POST /v1/plan.
//
// Description:
//
//	Runs one planning round against the posted snapshot. The round is
//	planned but not executed.
//
// Responses:
//
//	200 - mapek.Plan, possibly empty with a reason
//	400 - body is not a snapshot
//	422 - the round aborted on the snapshot's content
//	503 - the twin circuit breaker is open
//	500 - anything else
func (h *Handlers) HandlePlan(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandlePlan")

	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	plan, err := h.planner.Plan(ctx, req.Snapshot)
	if err != nil {
		status, code := classify(err)
		logger.Error("Planning round failed", "error", err, "code", code)
		c.JSON(status, ErrorResponse{Error: "Planning round failed", Code: code, Details: err.Error()})
		return
	}

	logger.Info("Planning round complete",
		"round_id", plan.RoundID,
		"actions", len(plan.FirstActions),
		"from_case", plan.FromCase)
	c.JSON(http.StatusOK, plan)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, simtree.ErrCircuitOpen):
		return http.StatusServiceUnavailable, "TWIN_UNAVAILABLE"
	case errors.Is(err, constraint.ErrPropertyNotFound),
		errors.Is(err, model.ErrMalformedValue),
		errors.Is(err, model.ErrKindMismatch),
		errors.Is(err, model.ErrUnsupportedConstraint),
		errors.Is(err, mapek.ErrNilSnapshot):
		return http.StatusUnprocessableEntity, "INVALID_SNAPSHOT"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "PLAN_TIMEOUT"
	default:
		return http.StatusInternalServerError, "PLAN_FAILED"
	}
}

// HandleHealth handles GET /v1/health. Status is "degraded" while the twin
// circuit breaker is not closed.
func (h *Handlers) HandleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  Version,
		Strategy: h.planner.Strategy(),
		Uptime:   time.Since(h.started).Round(time.Second).String(),
	}
	if h.breaker != nil {
		stats := h.breaker.Stats()
		resp.Breaker = &stats
		if h.breaker.State() != simtree.CircuitClosed {
			resp.Status = "degraded"
		}
	}
	c.JSON(http.StatusOK, resp)
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
