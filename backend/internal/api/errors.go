package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"noahs-ark/backend/internal/consistency"
	"noahs-ark/backend/internal/graph"
	"noahs-ark/backend/internal/sosa"
	arkerrors "noahs-ark/backend/pkg/errors"
)

// badRequestError marks input the client must fix
type badRequestError struct {
	msg string
}

func (e badRequestError) Error() string { return e.msg }

func badRequest(msg string) error { return badRequestError{msg: msg} }

// statusFor maps an error to the HTTP status it is reported with
func statusFor(err error) int {
	var bad badRequestError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.Is(err, graph.ErrInvalidGenerations):
		return http.StatusBadRequest
	case arkerrors.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, graph.ErrParentLimit):
		return http.StatusConflict
	case arkerrors.IsCyclicAncestry(err), errors.Is(err, sosa.ErrNumberOverflow):
		return http.StatusUnprocessableEntity
	case arkerrors.IsGraphUnavailable(err), errors.Is(err, consistency.ErrPropagatorClosed):
		return http.StatusServiceUnavailable
	case arkerrors.IsErrorType(err, arkerrors.ErrorTypeContext):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": ...}. Server-side failures are logged
// and their details withheld.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}

	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		msg = "Internal server error"
	case http.StatusServiceUnavailable:
		msg = "Ancestry graph unavailable"
	}
	c.JSON(status, gin.H{"error": msg})
}
