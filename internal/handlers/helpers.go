package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "coopledger/internal/errors"
	"coopledger/internal/logger"
	"coopledger/internal/uuid"
)

const dateLayout = "2006-01-02"

// ErrorDetail represents the inner error object in an error response.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// getActor extracts the authenticated user ID from the Gin context.
// Returns ErrUnauthorized if not present.
func getActor(c *gin.Context) (string, error) {
	actor := c.GetString("userID")
	if actor == "" {
		return "", apperrors.ErrUnauthorized
	}
	return actor, nil
}

// getCoopID extracts the cooperative the caller is scoped to.
func getCoopID(c *gin.Context) (string, error) {
	coopID := c.GetString("coopID")
	if coopID == "" {
		return "", apperrors.ErrUnauthorized
	}
	return coopID, nil
}

// getScope returns both the actor and the cooperative.
func getScope(c *gin.Context) (actor, coopID string, err error) {
	if actor, err = getActor(c); err != nil {
		return "", "", err
	}
	if coopID, err = getCoopID(c); err != nil {
		return "", "", err
	}
	return actor, coopID, nil
}

// parsePathID reads a UUID path parameter.
// Returns ErrInvalidInput if the parameter is not a valid UUID.
func parsePathID(c *gin.Context, param string) (string, error) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		return "", apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid "+param)
	}
	return id, nil
}

// parseDate reads an optional YYYY-MM-DD value. Empty yields the zero time.
func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid "+field+", expected YYYY-MM-DD")
	}
	return t, nil
}

// bindError converts a binding failure into a VALIDATION error.
func bindError(err error) error {
	return apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
}

// respondWithError writes a consistent JSON error response. If the error is an
// *AppError it uses the error's status code, code, and message. Otherwise it
// logs the unexpected error and returns a generic internal server error.
func respondWithError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Internal != nil {
			logger.Get().Errorw("app error",
				"code", appErr.Code,
				"internal", appErr.Internal.Error(),
				"path", c.Request.URL.Path,
			)
		}
		c.JSON(appErr.StatusCode, ErrorResponse{Error: ErrorDetail{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}})
		return
	}

	logger.Get().Errorw("unexpected error",
		"error", err.Error(),
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)
	c.JSON(apperrors.ErrInternalServer.StatusCode, ErrorResponse{Error: ErrorDetail{
		Code:    apperrors.ErrInternalServer.Code,
		Message: apperrors.ErrInternalServer.Message,
	}})
}
