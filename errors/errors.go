package errors

import (
	"fmt"
	"net/http"
	"strings"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-gonic/gin"
)

// Error is the API error returned by services and rendered by handlers.
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func New(message string, status int) *Error {
	return &Error{Message: message, Status: status}
}

var (
	ErrNotFound            = New("resource not found", http.StatusNotFound)
	ErrBadRequest          = New("bad request", http.StatusBadRequest)
	ErrUnauthorized        = New("unauthorized", http.StatusUnauthorized)
	ErrForbidden           = New("forbidden", http.StatusForbidden)
	ErrInternalServerError = New("internal server error", http.StatusInternalServerError)
	InActiveUserError      = New("user is inactive", http.StatusUnauthorized)
)

// GetUniqueConstraintError maps a database unique-violation to a friendly
// conflict error, falling back to a generic 500.
func GetUniqueConstraintError(err error) *Error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "email"):
		return New("email already in use", http.StatusConflict)
	case strings.Contains(msg, "username"):
		return New("username already in use", http.StatusConflict)
	case strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique"):
		return New("record already exists", http.StatusConflict)
	default:
		return ErrInternalServerError
	}
}

// ErrorHandler is plugged into the gin rate limiter.
func ErrorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{
		"message": "too many requests, try again later",
		"errors":  []string{fmt.Sprintf("rate limited until %s", info.ResetTime.Format("15:04:05"))},
	})
}
