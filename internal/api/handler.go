// Package api is the optional local control/status HTTP surface: a small
// gin router exposing health, status, the event log, a status-streaming
// websocket, Prometheus metrics, and an authenticated manual-evaluation
// trigger. It is off by default (the core control loop never depends on it)
// and exists so the CLI's status/evaluate subcommands have something to
// talk to across process boundaries.
package api

import (
	"context"

	"github.com/jluzny/hag-ex"
	"github.com/jluzny/hag-ex/internal/auth"
	"github.com/jluzny/hag-ex/internal/eventlog"
	"github.com/jluzny/hag-ex/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Controller is the subset of *controller.Controller the API depends on, so
// tests can supply a fake instead of driving a real hub connection.
type Controller interface {
	Status(ctx context.Context) (hagex.Status, error)
	Events(f eventlog.Filter) []eventlog.Event
	TriggerEvaluation(ctx context.Context) error
}

// Handler wires the HTTP layer to the controller and the control-token auth
// service.
type Handler struct {
	ctrl Controller
	auth *auth.Service
	log  *logger.Logger
}

// NewHandler constructs the control API's handler. authSvc may be nil, in
// which case /control/token and /trigger are not registered.
func NewHandler(ctrl Controller, authSvc *auth.Service, log *logger.Logger) *Handler {
	return &Handler{ctrl: ctrl, auth: authSvc, log: log.Named("api")}
}

// InitRoutes builds and returns the gin router with every route registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.health)
	router.GET("/status", h.status)
	router.GET("/events", h.getEvents)
	router.GET("/ws", h.wsStatusStream)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if h.auth != nil {
		router.POST("/control/token", h.issueToken)
		router.POST("/trigger", h.bearerMiddleware, h.trigger)
	}

	return router
}
