package http

import (
	"context"
	"net/http"

	"rtsview/internal/infrastructure/distributed"
	"rtsview/internal/infrastructure/monitoring"
	apperrors "rtsview/pkg/errors"
	"rtsview/pkg/validation"

	"github.com/gin-gonic/gin"
)

// ViewerDirectory lists the viewer instances sharing a stream.
type ViewerDirectory interface {
	Viewers(ctx context.Context, streamName string) ([]distributed.StateEvent, error)
}

// OpsHandler serves health, metrics, live state and cross-instance views.
type OpsHandler struct {
	health    *monitoring.HealthChecker
	directory ViewerDirectory
	metrics   http.Handler
	states    http.HandlerFunc

	apiMiddleware   []gin.HandlerFunc
	stateMiddleware []gin.HandlerFunc
}

// NewOpsHandler wires the operational endpoints. directory, metrics and
// states may be nil, in which case their routes are not registered.
func NewOpsHandler(health *monitoring.HealthChecker, directory ViewerDirectory, metrics http.Handler, states http.HandlerFunc) *OpsHandler {
	return &OpsHandler{
		health:    health,
		directory: directory,
		metrics:   metrics,
		states:    states,
	}
}

// WithAPIMiddleware guards the /api/v1 routes.
func (h *OpsHandler) WithAPIMiddleware(mw ...gin.HandlerFunc) *OpsHandler {
	h.apiMiddleware = append(h.apiMiddleware, mw...)
	return h
}

// WithStateMiddleware guards the state websocket, typically with a
// connection rate limit.
func (h *OpsHandler) WithStateMiddleware(mw ...gin.HandlerFunc) *OpsHandler {
	h.stateMiddleware = append(h.stateMiddleware, mw...)
	return h
}

func (h *OpsHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}
	if h.states != nil {
		handlers := append(append([]gin.HandlerFunc{}, h.stateMiddleware...), gin.WrapF(h.states))
		router.GET("/ws/state", handlers...)
	}
	if h.directory != nil {
		handlers := append(append([]gin.HandlerFunc{}, h.apiMiddleware...), h.ListViewers)
		router.GET("/api/v1/viewers/:stream", handlers...)
	}
}

func (h *OpsHandler) Health(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *OpsHandler) ListViewers(c *gin.Context) {
	stream := c.Param("stream")
	if err := validation.ValidateStreamName(stream); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	viewers, err := h.directory.Viewers(c.Request.Context(), stream)
	if err != nil {
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeServiceUnavailable, "viewer directory unavailable", http.StatusServiceUnavailable))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stream":  stream,
		"viewers": viewers,
		"count":   len(viewers),
	})
}
