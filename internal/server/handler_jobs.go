package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/me/qhaul/internal/pipeline"
	"github.com/me/qhaul/pkg/model"
)

// jobResponse is the job plus the run result when the caller waited.
type jobResponse struct {
	Job    *model.Job `json:"job"`
	Result any        `json:"result,omitempty"`
}

// handleSubmitJob compiles a circuit and queues it. With ?wait=true
// the response carries the terminal outcome instead of the queued job.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req struct {
		Circuit    json.RawMessage `json:"circuit"`
		Device     string          `json:"device"`
		Priority   string          `json:"priority"`
		Shots      int             `json:"shots"`
		MaxRetries int             `json:"max_retries"`
		Source     string          `json:"source"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if len(req.Circuit) == 0 {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "circuit", Message: "circuit is required"}))
		return
	}
	priority, err := model.ParsePriority(req.Priority)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError(err.Error(),
				model.FieldError{Field: "priority", Message: err.Error()}))
		return
	}

	opts := pipeline.DispatchOptions{
		Device:     req.Device,
		Priority:   priority,
		Shots:      req.Shots,
		MaxRetries: req.MaxRetries,
		Source:     req.Source,
	}

	if r.URL.Query().Get("wait") == "true" {
		job, res, err := s.pipeline.Run(r.Context(), req.Circuit, opts)
		if err != nil {
			if job == nil {
				status, apiErr := toAPIError(err)
				respondError(w, reqID, status, apiErr)
				return
			}
			// Queued jobs that fail still return the job record.
			respondJSON(w, http.StatusOK, reqID, jobResponse{Job: job}, nil, &model.APIError{
				Code:    model.ErrInternal,
				Message: err.Error(),
			})
			return
		}
		respondOK(w, reqID, jobResponse{Job: job, Result: res})
		return
	}

	job, err := s.pipeline.Dispatch(r.Context(), req.Circuit, opts)
	if err != nil {
		status, apiErr := toAPIError(err)
		respondError(w, reqID, status, apiErr)
		return
	}
	respondCreated(w, reqID, jobResponse{Job: job})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondError(w, reqID, http.StatusServiceUnavailable,
			&model.APIError{Code: model.ErrInternal, Message: "job persistence is not enabled"})
		return
	}

	opts := model.ListOptions{
		State:  model.JobState(r.URL.Query().Get("state")),
		Device: r.URL.Query().Get("device"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}
	opts.Clamp()

	jobs, total, err := s.store.ListJobs(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	respondList(w, reqID, jobs, &model.Pagination{
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
		HasMore: opts.Offset+len(jobs) < total,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if s.store == nil {
		respondError(w, reqID, http.StatusServiceUnavailable,
			&model.APIError{Code: model.ErrInternal, Message: "job persistence is not enabled"})
		return
	}

	id := chi.URLParam(r, "id")
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError,
			&model.APIError{Code: model.ErrInternal, Message: err.Error()})
		return
	}
	if job == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job", id))
		return
	}
	respondOK(w, reqID, job)
}

func (s *Server) handleGetJobLogs(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	id := chi.URLParam(r, "id")
	rec, err := s.pipeline.Logs(id)
	if err != nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("job log", id))
		return
	}
	respondOK(w, reqID, rec)
}
