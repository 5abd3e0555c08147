// Package admin serves the operator-facing API on the admin dashboard port.
// Every route is JWT-gated; the dashboard frontend itself is hosted
// elsewhere and only consumes this JSON surface.
package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pixelstream-dev/matchmaker/internal/auth"
	"github.com/pixelstream-dev/matchmaker/internal/clock"
	"github.com/pixelstream-dev/matchmaker/internal/engine"
	apierrors "github.com/pixelstream-dev/matchmaker/internal/errors"
	"github.com/pixelstream-dev/matchmaker/internal/health"
	"github.com/pixelstream-dev/matchmaker/internal/model"
	"github.com/pixelstream-dev/matchmaker/internal/session"
)

// NodeCloser force-closes a node's control connection. Implemented by the
// control server; the admin layer never touches sockets directly.
type NodeCloser interface {
	CloseNode(nodeID string) bool
}

// Handler serves the admin API.
type Handler struct {
	engine  *engine.Engine
	store   *session.Store
	health  *health.Supervisor
	control NodeCloser
	clock   clock.Clock
}

// NewHandler creates the admin handler set.
func NewHandler(e *engine.Engine, store *session.Store, h *health.Supervisor, control NodeCloser, c clock.Clock) *Handler {
	return &Handler{engine: e, store: store, health: h, control: control, clock: c}
}

// RegisterRoutes attaches the admin routes under /api.
func (h *Handler) RegisterRoutes(r gin.IRouter, jwtManager *auth.JWTManager) {
	api := r.Group("/api", auth.Required(jwtManager))
	api.GET("/servers", h.ListServers)
	api.GET("/sessions", h.ListSessions)
	api.GET("/queue", h.QueueState)
	api.GET("/health", h.HealthReport)
	api.POST("/servers/:id/restart", h.RestartServer)
}

// ListServers returns the node registry snapshot in insertion order.
func (h *Handler) ListServers(c *gin.Context) {
	c.JSON(http.StatusOK, model.OK(h.clock.Now(), gin.H{
		"servers": h.engine.NodeSnapshot(),
	}))
}

// ListSessions returns session store counts and the queued/connected sets.
func (h *Handler) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, model.OK(h.clock.Now(), gin.H{
		"stats":     h.store.Stats(),
		"queued":    h.store.ByStatus(model.SessionQueued),
		"connected": h.store.ByStatus(model.SessionConnected),
	}))
}

// QueueState returns the wait queue in service order.
func (h *Handler) QueueState(c *gin.Context) {
	queued := h.engine.QueuedSessionIDs()
	c.JSON(http.StatusOK, model.OK(h.clock.Now(), gin.H{
		"queue":  queued,
		"length": len(queued),
	}))
}

// HealthReport runs a full on-demand health evaluation.
func (h *Handler) HealthReport(c *gin.Context) {
	report := h.health.EvaluateAll(context.Background())
	c.JSON(http.StatusOK, model.OK(h.clock.Now(), report))
}

// RestartServer evicts the node and closes its control connection so the
// node process re-registers with a clean slate.
func (h *Handler) RestartServer(c *gin.Context) {
	now := h.clock.Now()
	nodeID := c.Param("id")

	if _, ok := h.engine.GetNode(nodeID); !ok {
		appErr := apierrors.NodeNotFound(nodeID)
		c.JSON(appErr.StatusCode, model.Fail(now, appErr.Message))
		return
	}

	closed := h.control.CloseNode(nodeID)
	if !closed {
		// No live control connection (already gone); drop the registry
		// entry so a stale node cannot linger until the sweep.
		h.engine.UnregisterNode(nodeID)
	}

	c.JSON(http.StatusOK, model.OK(now, gin.H{
		"nodeId":           nodeID,
		"connectionClosed": closed,
	}))
}
