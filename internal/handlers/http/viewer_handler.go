package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rtsview/internal/core/domain"
	"rtsview/internal/core/ports"
	apperrors "rtsview/pkg/errors"
	rlog "rtsview/pkg/logger"
	"rtsview/pkg/validation"

	"github.com/gin-gonic/gin"
)

// mainSourceAlias addresses the main source, whose source id is empty.
const mainSourceAlias = "main"

type ViewerHandler struct {
	viewer     ports.StreamViewer
	defaults   domain.SubscriptionConfig
	middleware []gin.HandlerFunc
}

// NewViewerHandler serves the control API. middleware runs in front of every
// route, typically authentication.
func NewViewerHandler(viewer ports.StreamViewer, defaults domain.SubscriptionConfig, middleware ...gin.HandlerFunc) *ViewerHandler {
	return &ViewerHandler{
		viewer:     viewer,
		defaults:   defaults,
		middleware: middleware,
	}
}

func (h *ViewerHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1", h.middleware...)
	{
		api.GET("/state", h.GetState)
		api.POST("/connect", h.Connect)
		api.POST("/disconnect", h.Disconnect)

		api.POST("/sources/:id/audio", h.PlayAudio)
		api.DELETE("/sources/:id/audio", h.StopAudio)
		api.POST("/sources/:id/video", h.PlayVideo)
		api.DELETE("/sources/:id/video", h.StopVideo)
		api.PUT("/sources/:id/quality", h.SelectQuality)
	}
}

type ConnectRequest struct {
	StreamName         string `json:"stream_name" binding:"required,max=100"`
	AccountID          string `json:"account_id" binding:"required,max=64"`
	DisableAudio       *bool  `json:"disable_audio,omitempty"`
	StatsEnabled       *bool  `json:"stats_enabled,omitempty"`
	ForcePlayoutDelay  *bool  `json:"force_playout_delay,omitempty"`
	JitterMinimumDelay *int   `json:"jitter_minimum_delay_ms,omitempty"`
}

type QualityRequest struct {
	Quality string `json:"quality"`
}

func (h *ViewerHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.viewer.State()})
}

func (h *ViewerHandler) Connect(c *gin.Context) {
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	req.StreamName = strings.TrimSpace(req.StreamName)
	c.Request = c.Request.WithContext(rlog.WithStreamName(c.Request.Context(), req.StreamName))
	if err := validation.ValidateStreamName(req.StreamName); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateAccountID(req.AccountID); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	cfg := h.defaults
	if req.DisableAudio != nil {
		cfg.DisableAudio = *req.DisableAudio
	}
	if req.StatsEnabled != nil {
		cfg.StatsEnabled = *req.StatsEnabled
	}
	if req.ForcePlayoutDelay != nil {
		cfg.ForcePlayoutDelay = *req.ForcePlayoutDelay
	}
	if req.JitterMinimumDelay != nil {
		cfg.JitterMinimumDelay = time.Duration(*req.JitterMinimumDelay) * time.Millisecond
	}

	if err := h.viewer.Connect(c.Request.Context(), req.StreamName, req.AccountID, cfg); err != nil {
		c.Error(toAppError(err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"state": h.viewer.State()})
}

func (h *ViewerHandler) Disconnect(c *gin.Context) {
	if err := h.viewer.StopConnection(c.Request.Context()); err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.viewer.State()})
}

func (h *ViewerHandler) PlayAudio(c *gin.Context) {
	h.withSource(c, func(ctx context.Context, source domain.StreamSource) error {
		return h.viewer.PlayAudio(ctx, source)
	})
}

func (h *ViewerHandler) StopAudio(c *gin.Context) {
	h.withSource(c, func(ctx context.Context, source domain.StreamSource) error {
		return h.viewer.StopAudio(ctx, source)
	})
}

// PlayVideo binds a new renderer handle to the source. The handle must be
// passed back to StopVideo.
func (h *ViewerHandler) PlayVideo(c *gin.Context) {
	quality, ok := h.bindQuality(c)
	if !ok {
		return
	}

	var renderer domain.RendererID
	ok = h.withSourceResult(c, func(ctx context.Context, source domain.StreamSource) error {
		renderer = h.viewer.NewRendererID()
		c.Request = c.Request.WithContext(rlog.WithRenderer(c.Request.Context(), strconv.FormatUint(uint64(renderer), 10)))
		return h.viewer.PlayVideo(ctx, source, renderer, quality)
	})
	if ok {
		c.JSON(http.StatusOK, gin.H{"renderer_id": uint64(renderer)})
	}
}

func (h *ViewerHandler) StopVideo(c *gin.Context) {
	id, err := strconv.ParseUint(c.Query("renderer_id"), 10, 64)
	if err != nil {
		c.Error(apperrors.NewInvalidInputError("renderer_id query parameter is required"))
		return
	}
	c.Request = c.Request.WithContext(rlog.WithRenderer(c.Request.Context(), c.Query("renderer_id")))

	h.withSource(c, func(ctx context.Context, source domain.StreamSource) error {
		return h.viewer.StopVideo(ctx, source, domain.RendererID(id))
	})
}

func (h *ViewerHandler) SelectQuality(c *gin.Context) {
	quality, ok := h.bindQuality(c)
	if !ok {
		return
	}

	h.withSource(c, func(ctx context.Context, source domain.StreamSource) error {
		return h.viewer.SelectVideoQuality(ctx, source, quality)
	})
}

func (h *ViewerHandler) bindQuality(c *gin.Context) (domain.VideoQuality, bool) {
	var req QualityRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.NewInvalidInputError("invalid request format"))
			return domain.VideoQuality{}, false
		}
	}
	if err := validation.ValidateQuality(req.Quality); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return domain.VideoQuality{}, false
	}

	tag, _ := domain.ParseQualityTag(req.Quality)
	return domain.VideoQuality{Tag: tag}, true
}

func (h *ViewerHandler) withSource(c *gin.Context, fn func(ctx context.Context, source domain.StreamSource) error) {
	if h.withSourceResult(c, fn) {
		c.JSON(http.StatusOK, gin.H{"state": h.viewer.State()})
	}
}

func (h *ViewerHandler) withSourceResult(c *gin.Context, fn func(ctx context.Context, source domain.StreamSource) error) bool {
	id := c.Param("id")
	c.Request = c.Request.WithContext(rlog.WithSourceID(c.Request.Context(), id))
	if id == mainSourceAlias {
		id = string(domain.MainSource)
	} else if err := validation.ValidateSourceID(id); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return false
	}

	source, ok := h.viewer.State().Source(id)
	if !ok {
		c.Error(apperrors.NewNotFoundError("source"))
		return false
	}

	if err := fn(c.Request.Context(), source); err != nil {
		c.Error(toAppError(err))
		return false
	}
	return true
}

func toAppError(err error) *apperrors.AppError {
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return apperrors.NewInvalidInputError(err.Error())
	case errors.Is(err, domain.ErrSourceNotFound):
		return apperrors.NewNotFoundError("source")
	case errors.Is(err, domain.ErrUnexpectedState):
		return apperrors.NewConflictError(err.Error())
	case errors.Is(err, domain.ErrOrchestratorClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewServiceUnavailableError(err.Error())
	default:
		return apperrors.NewTransportError(err)
	}
}
