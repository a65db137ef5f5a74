// Package handlers implements the gin handlers of the HTTP API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/ChemPredict/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemPredict/pkg/errors"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Detail   string   `json:"detail,omitempty"`
	Field    string   `json:"field,omitempty"`
	Accepted []string `json:"accepted,omitempty"`
}

// writeAppError maps err onto its HTTP status.  Errors without an
// application code are masked as internal errors.
func writeAppError(c *gin.Context, err error) {
	ae, ok := errors.AsAppError(err)
	if !ok {
		logging.FromContext(c.Request.Context()).Error("unhandled error", logging.Err(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    string(errors.ErrCodeInternal),
			Message: "internal server error",
		})
		return
	}

	status := errors.HTTPStatus(ae.Code)
	resp := ErrorResponse{
		Code:     string(ae.Code),
		Message:  ae.Message,
		Detail:   ae.Detail,
		Field:    ae.Field,
		Accepted: ae.Accepted,
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logging.FromContext(c.Request.Context()).Error("request failed", logging.Err(err))
		resp.Detail = ""
	}
	_ = c.Error(err)
	c.JSON(status, resp)
}

func badRequest(c *gin.Context, msg string, cause error) {
	writeAppError(c, errors.InvalidInput(msg).WithCause(cause))
}
