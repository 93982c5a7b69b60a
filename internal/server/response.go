package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rcliao/commentlens/internal/ingest"
	"github.com/rcliao/commentlens/internal/persistence"
	"github.com/rcliao/commentlens/internal/pipeline"
)

// APIError is the body of every error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

// ErrorEnvelope wraps APIError.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// respondError maps err to a status code and writes the error envelope.
func (s *Server) respondError(c *gin.Context, code string, err error) {
	status := statusFor(err)

	apiErr := APIError{Message: err.Error(), Code: code}
	var serr *pipeline.StageError
	if errors.As(err, &serr) {
		apiErr.Stage = serr.Stage
	}

	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("code", code).Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: apiErr})
}

func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrRunInProgress):
		return http.StatusConflict
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case ingest.IsInputError(err), errors.Is(err, pipeline.ErrNoComments), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")
