package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/mailqueue/internal/tasks"
	"github.com/dmitrymomot/mailqueue/pkg/dispatch"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
)

const (
	defaultRetryLimit = 100
	defaultDaysToKeep = 30
)

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return nil
}

type enrollRequest struct {
	Vars        queue.Vars `json:"variables,omitempty"`
	RecipientID string     `json:"recipient_id"`
}

func (s *server) enroll(w http.ResponseWriter, r *http.Request) error {
	var req enrollRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.RecipientID) == "" {
		return fmt.Errorf("%w: recipient_id", ErrMissingField)
	}

	enr, err := s.Enroller.Trigger(r.Context(), chi.URLParam(r, "key"), req.RecipientID, req.Vars)
	if err != nil {
		return err
	}
	code := http.StatusCreated
	if enr.Skipped {
		code = http.StatusOK
	}
	writeJSON(w, code, enr)
	return nil
}

type enrollBatchRequest struct {
	Vars         queue.Vars `json:"variables,omitempty"`
	RecipientIDs []string   `json:"recipient_ids"`
	Async        bool       `json:"async,omitempty"`
}

func (s *server) enrollBatch(w http.ResponseWriter, r *http.Request) error {
	var req enrollBatchRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	if len(req.RecipientIDs) == 0 {
		return fmt.Errorf("%w: recipient_ids", ErrMissingField)
	}
	key := chi.URLParam(r, "key")

	if req.Async && s.Tasks != nil {
		err := s.Tasks.Enqueue(r.Context(), tasks.NameEnrollBatch, tasks.EnrollBatchPayload{
			SequenceKey:  key,
			RecipientIDs: req.RecipientIDs,
			Vars:         req.Vars,
		})
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":     "enqueued",
			"recipients": len(req.RecipientIDs),
		})
		return nil
	}

	res, err := s.Enroller.TriggerBatch(r.Context(), key, req.RecipientIDs, req.Vars)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

type createJobRequest struct {
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
	Recipient    queue.Recipient `json:"recipient"`
	Vars         queue.Vars      `json:"variables,omitempty"`
	TemplateKey  string          `json:"template_key"`
}

// createJob schedules a one-off send. A recipient given by id only is
// resolved from the recipient store.
func (s *server) createJob(w http.ResponseWriter, r *http.Request) error {
	var req createJobRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	if req.TemplateKey == "" {
		return fmt.Errorf("%w: template_key", ErrMissingField)
	}

	to := req.Recipient
	if to.Email == "" && to.ID != "" && s.Recipients != nil {
		rcpt, err := s.Recipients.Recipient(r.Context(), to.ID)
		if err != nil {
			return err
		}
		to = *rcpt
	}
	if to.ID == "" {
		to.ID = to.Email
	}

	var at time.Time
	if req.ScheduledFor != nil {
		at = *req.ScheduledFor
	}
	j, err := dispatch.Enqueue(r.Context(), s.Jobs, s.Templates, to, req.TemplateKey, req.Vars, at)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, j)
	return nil
}

func (s *server) getJob(w http.ResponseWriter, r *http.Request) error {
	j, err := s.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, j)
	return nil
}

func (s *server) cancelJob(w http.ResponseWriter, r *http.Request) error {
	if err := dispatch.Cancel(r.Context(), s.Jobs, chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) error {
	st, err := s.Maintenance.QueueStats(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, st)
	return nil
}

type limitRequest struct {
	Limit int `json:"limit"`
}

// batchResponse flattens dispatch.Result with derived fields.
type batchResponse struct {
	*dispatch.Result
	Error         string  `json:"error,omitempty"`
	DurationMs    int64   `json:"duration_ms"`
	JobsPerSecond float64 `json:"jobs_per_second"`
}

func newBatchResponse(res *dispatch.Result, err error) batchResponse {
	out := batchResponse{Result: res, DurationMs: res.DurationMs(), JobsPerSecond: res.Throughput()}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// process runs one batch now. A claim failure midway still answers with
// what was processed before it.
func (s *server) process(w http.ResponseWriter, r *http.Request) error {
	var req limitRequest
	if err := decode(w, r, &req); err != nil {
		return err
	}
	res, err := s.Processor.ProcessBatch(r.Context(), req.Limit)
	if res == nil {
		return err
	}
	code := http.StatusOK
	if err != nil {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, newBatchResponse(res, err))
	return nil
}

func (s *server) retry(w http.ResponseWriter, r *http.Request) error {
	req := limitRequest{Limit: defaultRetryLimit}
	if err := decode(w, r, &req); err != nil {
		return err
	}
	res, err := s.Maintenance.RetryFailedJobs(r.Context(), req.Limit)
	if res == nil {
		return err
	}
	code := http.StatusOK
	if err != nil {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, newBatchResponse(res, err))
	return nil
}

type cleanupRequest struct {
	DaysToKeep int `json:"days_to_keep"`
}

func (s *server) cleanup(w http.ResponseWriter, r *http.Request) error {
	req := cleanupRequest{DaysToKeep: defaultDaysToKeep}
	if err := decode(w, r, &req); err != nil {
		return err
	}
	n, err := s.Maintenance.CleanupOldJobs(r.Context(), req.DaysToKeep)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n, "days_to_keep": req.DaysToKeep})
	return nil
}
