package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/me/qhaul/pkg/model"
)

// maxBodyBytes bounds circuit uploads.
const maxBodyBytes = 1 << 20

// handleCompile parses, optimizes, and emits a circuit without
// queueing anything. The request body is the circuit document itself,
// YAML or JSON.
func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("reading request body: "+err.Error()))
		return
	}
	if len(body) == 0 {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("empty request body, expected a circuit document"))
		return
	}

	res, err := s.pipeline.Compile(body)
	if err != nil {
		status, apiErr := toAPIError(err)
		respondError(w, reqID, status, apiErr)
		return
	}
	respondOK(w, reqID, res)
}

// toAPIError maps pipeline errors onto the response envelope.
func toAPIError(err error) (int, *model.APIError) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrValidation:
			return http.StatusBadRequest, apiErr
		case model.ErrNotFound:
			return http.StatusNotFound, apiErr
		}
		return http.StatusInternalServerError, apiErr
	}
	return http.StatusInternalServerError, &model.APIError{
		Code:    model.ErrInternal,
		Message: err.Error(),
	}
}
