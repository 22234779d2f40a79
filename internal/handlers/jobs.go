package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/yieldmart/internal/apperrors"
	"github.com/nkiryanov/yieldmart/internal/handlers/render"
	"github.com/nkiryanov/yieldmart/internal/logger"
	"github.com/nkiryanov/yieldmart/internal/models"
)

const maxFailedJobs = 500

type jobResponse struct {
	ID          uuid.UUID       `json:"id"`
	Kind        string          `json:"kind"`
	Queue       string          `json:"queue"`
	EntityID    string          `json:"entityId,omitempty"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	Payload     json.RawMessage `json:"payload"`
	LastError   *string         `json:"lastError,omitempty"`
	RunAt       time.Time       `json:"runAt"`
	CreatedAt   time.Time       `json:"createdAt"`
	FinishedAt  *time.Time      `json:"finishedAt,omitempty"`
}

func newJobResponse(j models.Job) jobResponse {
	return jobResponse{
		ID:          j.ID,
		Kind:        j.Kind,
		Queue:       j.Queue,
		EntityID:    j.EntityID,
		Status:      j.Status,
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		Payload:     j.Payload,
		LastError:   j.LastError,
		RunAt:       j.RunAt,
		CreatedAt:   j.CreatedAt,
		FinishedAt:  j.FinishedAt,
	}
}

func handleDispatchCampaign(campaigns campaignService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		campaignID, ok := uuidParam(w, r, "campaignID")
		if !ok {
			return
		}

		job, err := campaigns.EnqueueDispatch(r.Context(), campaignID)

		switch {
		case err == nil:
			render.JSONWithStatus(w, newJobResponse(job), http.StatusAccepted)
		case errors.Is(err, apperrors.ErrJobAlreadyQueued):
			render.JSON(w, newJobResponse(job))
		case errors.Is(err, apperrors.ErrCampaignNotFound):
			render.ServiceError(w, "Campaign not found", http.StatusNotFound)
		default:
			l.Error("Failed to enqueue campaign dispatch", "campaign_id", campaignID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}

func handleListFailedJobs(jobs jobService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := limitParam(w, r, maxFailedJobs)
		if !ok {
			return
		}
		if limit == 0 {
			limit = 100
		}

		failed, err := jobs.ListFailed(r.Context(), limit)
		if err != nil {
			l.Error("Failed to list failed jobs", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := make([]jobResponse, 0, len(failed))
		for _, j := range failed {
			res = append(res, newJobResponse(j))
		}
		render.JSON(w, res)
	}
}

func handleRetryJob(jobs jobService, l logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := uuidParam(w, r, "jobID")
		if !ok {
			return
		}

		job, err := jobs.Retry(r.Context(), jobID)

		switch {
		case err == nil:
			render.JSONWithStatus(w, newJobResponse(job), http.StatusAccepted)
		case errors.Is(err, apperrors.ErrJobNotFound):
			render.ServiceError(w, "Failed job not found", http.StatusNotFound)
		case errors.Is(err, apperrors.ErrJobAlreadyQueued):
			render.ServiceError(w, "Equal job is already queued", http.StatusConflict)
		default:
			l.Error("Failed to retry job", "job_id", jobID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
