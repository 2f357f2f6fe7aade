package middleware

import (
	"net/http"

	"rtsview/pkg/errors"
	rlog "rtsview/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware renders the last error a control route recorded.
// AppErrors keep their status; anything else becomes a 500. Log entries carry
// the stream, source and renderer the route stored on the request context.
func ErrorHandlerMiddleware(cl *rlog.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}

		log := cl.Sugar(c.Request.Context())
		err := c.Errors.Last().Err
		appErr := errors.GetAppError(err)
		if appErr == nil {
			log.Errorw("control request failed",
				"route", route(c),
				"method", c.Request.Method,
				"error", err,
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   string(errors.ErrCodeInternal),
				"message": "Internal server error",
			})
			return
		}

		logw := log.Errorw
		if appErr.HTTPStatus < http.StatusInternalServerError {
			logw = log.Warnw
		}
		logw("control request rejected",
			"route", route(c),
			"method", c.Request.Method,
			"code", appErr.Code,
			"status", appErr.HTTPStatus,
			"reason", appErr.Message,
			"details", appErr.Context,
		)
		c.JSON(appErr.HTTPStatus, gin.H{
			"error":   string(appErr.Code),
			"message": appErr.Message,
			"details": appErr.Context,
		})
	}
}

// RecoveryMiddleware turns a panicking control route into a 500.
func RecoveryMiddleware(cl *rlog.ContextLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				cl.WithContext(c.Request.Context()).Error("control route panicked",
					zap.Any("panic", r),
					zap.String("route", route(c)),
					zap.String("method", c.Request.Method),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":   string(errors.ErrCodeInternal),
					"message": "Internal server error",
				})
			}
		}()

		c.Next()
	}
}

func route(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return c.Request.URL.Path
}
