package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/logger"
)

// ErrorHandler renders the last error attached to the context as
// {"error": {"code", "message", "details", "request_id"}}.
//
// Services return *AppError for expected failures. Two storage errors that
// escape them are still given a stable code: a unique violation lost in a
// race becomes CONFLICT and an expired transaction deadline becomes
// TIMEOUT. Anything else is logged and rendered as INTERNAL_ERROR.
func ErrorHandler() gin.HandlerFunc {
	log := logger.Named("http")

	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		appErr := classify(err)
		if appErr.Code == apperrors.ErrInternalServer.Code || appErr.Internal != nil {
			log.Errorw("request failed",
				"request_id", c.GetString(requestIDKey),
				"code", appErr.Code,
				"error", err.Error(),
				"method", c.Request.Method,
				"route", c.FullPath(),
			)
		}

		body := gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		if id := c.GetString(requestIDKey); id != "" {
			body["request_id"] = id
		}
		c.JSON(appErr.StatusCode, gin.H{"error": body})
	}
}

func classify(err error) *apperrors.AppError {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.Wrap(apperrors.ErrConflict, err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.ErrTimeout, err)
	default:
		return apperrors.ErrInternalServer
	}
}
