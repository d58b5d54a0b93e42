package apperror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ShopPilot/pkg/logger"
	"ShopPilot/pkg/model"

	"github.com/gin-gonic/gin"
)

// Error HTTP facing application error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// JSON error body
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates an Error
func New(code int, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func BadRequest(message string, err error) *Error {
	return New(http.StatusBadRequest, message, err)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, message, nil)
}

func Conflict(message string, err error) *Error {
	return New(http.StatusConflict, message, err)
}

func Internal(err error) *Error {
	return New(http.StatusInternalServerError, "Internal server error", err)
}

// From maps domain errors onto HTTP errors
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		return New(http.StatusNotFound, "Not found", err)
	case errors.Is(err, model.ErrDuplicateJob):
		return &Error{Code: http.StatusConflict, Message: err.Error(), Reason: string(model.ReasonDuplicateJob), Err: err}
	case errors.Is(err, model.ErrDuplicate):
		return New(http.StatusConflict, err.Error(), err)
	case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrConflict):
		return New(http.StatusConflict, err.Error(), err)
	case errors.Is(err, model.ErrInvalidRule),
		errors.Is(err, model.ErrInvalidConfig),
		errors.Is(err, model.ErrInvalidMapping),
		errors.Is(err, model.ErrUnknownActionType):
		return New(http.StatusBadRequest, err.Error(), err)
	}
	return Internal(err)
}

// Respond writes err as the response body; server errors are logged
func Respond(c *gin.Context, err error) {
	appErr := From(err)
	if appErr.Code >= http.StatusInternalServerError {
		logger.Error(c, "request failed", err)
		c.AbortWithStatusJSON(appErr.Code, gin.H{"error": appErr.Message})
		return
	}
	body := gin.H{"error": appErr.Message}
	if appErr.Reason != "" {
		body["reason"] = appErr.Reason
	}
	c.AbortWithStatusJSON(appErr.Code, body)
}

// ErrorMiddleware renders the last error attached with c.Error
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			Respond(c, c.Errors.Last().Err)
		}
	}
}
