// Package handlers implements the matchmaker's client-facing edges: the
// REST API and the WebSocket surface. Handlers translate engine results into
// the shared response envelope; they never reach into engine internals.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pixelstream-dev/matchmaker/internal/auth"
	"github.com/pixelstream-dev/matchmaker/internal/clock"
	"github.com/pixelstream-dev/matchmaker/internal/engine"
	apierrors "github.com/pixelstream-dev/matchmaker/internal/errors"
	"github.com/pixelstream-dev/matchmaker/internal/health"
	"github.com/pixelstream-dev/matchmaker/internal/model"
	"github.com/pixelstream-dev/matchmaker/internal/session"
	"github.com/pixelstream-dev/matchmaker/internal/validator"
)

// API serves the public REST surface.
type API struct {
	engine *engine.Engine
	store  *session.Store
	health *health.Supervisor
	clock  clock.Clock
}

// NewAPI creates the REST handler set.
func NewAPI(e *engine.Engine, store *session.Store, h *health.Supervisor, c clock.Clock) *API {
	return &API{engine: e, store: store, health: h, clock: c}
}

// RegisterRoutes attaches the public routes to the router. The stats route
// is JWT-gated.
func (a *API) RegisterRoutes(r gin.IRouter, jwtManager *auth.JWTManager) {
	r.GET("/health", a.Health)
	r.GET("/signallingserver", a.SignallingServer)
	r.POST("/queue/join", a.JoinQueue)
	r.GET("/queue/position/:sessionId", a.QueuePosition)
	r.GET("/stats", auth.Required(jwtManager), a.Stats)
}

// Health reports overall health plus the engine stats snapshot.
func (a *API) Health(c *gin.Context) {
	now := a.clock.Now()
	c.JSON(http.StatusOK, model.OK(now, gin.H{
		"status":    a.health.Overall(),
		"timestamp": now.UnixMilli(),
		"stats":     a.engine.Stats(),
	}))
}

// SignallingServer hands the caller an eligible stream node, or a failure
// envelope when none is available.
func (a *API) SignallingServer(c *gin.Context) {
	now := a.clock.Now()

	node, ok := a.engine.AcquireNode()
	if !ok {
		appErr := apierrors.NoServerAvailable()
		c.JSON(appErr.StatusCode, model.Fail(now, appErr.Message))
		return
	}

	c.JSON(http.StatusOK, model.OK(now, gin.H{
		"signallingServer": node.Endpoint(),
		"protocol":         wsProtocol(node.Secure),
		"serverId":         node.ID,
	}))
}

// joinQueueRequest is the POST /queue/join body.
type joinQueueRequest struct {
	ClientID string `json:"clientId" validate:"max=128"`
	Priority int    `json:"priority" validate:"min=0,max=1000"`
}

// JoinQueue enqueues a new session and immediately drains the queue so a
// free node is handed out without waiting for the next node message.
func (a *API) JoinQueue(c *gin.Context) {
	now := a.clock.Now()

	var req joinQueueRequest
	if problem := validator.BindJSON(c, &req); problem != "" {
		appErr := apierrors.ValidationFailed(problem)
		c.JSON(appErr.StatusCode, model.Fail(now, appErr.Message))
		return
	}

	sess := a.engine.Enqueue(req.ClientID, req.Priority)
	a.engine.DrainQueue()

	position := 0
	if pos, ok := a.engine.QueuePosition(sess.ID); ok {
		position = pos.Position
	}

	c.JSON(http.StatusOK, model.OK(now, gin.H{
		"sessionId":     sess.ID,
		"queuePosition": position,
	}))
}

// QueuePosition reports a queued session's place in line.
func (a *API) QueuePosition(c *gin.Context) {
	now := a.clock.Now()
	sessionID := c.Param("sessionId")

	pos, ok := a.engine.QueuePosition(sessionID)
	if !ok {
		appErr := apierrors.SessionNotFound(sessionID)
		c.JSON(appErr.StatusCode, model.Fail(now, appErr.Message))
		return
	}

	c.JSON(http.StatusOK, model.OK(now, pos))
}

// Stats returns the detailed snapshot including the node list. Auth-gated.
func (a *API) Stats(c *gin.Context) {
	now := a.clock.Now()
	c.JSON(http.StatusOK, model.OK(now, gin.H{
		"engine":   a.engine.Stats(),
		"sessions": a.store.Stats(),
		"nodes":    a.engine.NodeSnapshot(),
		"queue":    a.engine.QueuedSessionIDs(),
	}))
}

func wsProtocol(secure bool) string {
	if secure {
		return "wss"
	}
	return "ws"
}
