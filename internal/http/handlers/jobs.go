package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mediaforge/internal/domain"
)

type jobCreateRequest struct {
	Kind          string `json:"kind"`
	Prompt        string `json:"prompt"`
	Context       string `json:"context"`
	SourceAssetID string `json:"source_asset_id"`
	ParentID      string `json:"parent_id"`
	SourceURL     string `json:"source_url"`
	ProjectID     string `json:"project_id"`
	Ratio         string `json:"ratio"`
	Model         string `json:"model"`
}

type jobCreateResponse struct {
	TaskID         string `json:"task_id"`
	Status         string `json:"status"`
	RemainingQuota int    `json:"remaining_quota"`
}

// JobsCreate validates, reserves quota and submits the provider job, then
// answers immediately with the task id while a background goroutine drives the
// job to its terminal outcome.
func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req jobCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Kind == "" {
		req.Kind = string(domain.ResourceImage)
	}
	if req.Model == "" {
		req.Model = a.Config.ImageModel
		if req.Kind == string(domain.ResourceVideo) {
			req.Model = a.Config.VideoModel
		}
	}

	greq := domain.GenerationRequest{
		Kind:          domain.ResourceType(req.Kind),
		SourceAssetID: req.SourceAssetID,
		ParentID:      req.ParentID,
		SourceURL:     req.SourceURL,
		Prompt:        req.Prompt,
		Context:       req.Context,
		ModelID:       req.Model,
		Ratio:         req.Ratio,
		OwnerID:       userID,
		ProjectID:     req.ProjectID,
	}

	taskID, remaining, err := a.Orchestrator.Submit(r.Context(), greq)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	// The request returns as soon as the provider acknowledges the task; the
	// finisher outlives the request context.
	go a.finishJob(context.WithoutCancel(r.Context()), taskID, greq)

	a.json(w, http.StatusOK, jobCreateResponse{
		TaskID:         taskID,
		Status:         "processing",
		RemainingQuota: remaining,
	})
}

func (a *App) finishJob(ctx context.Context, taskID string, greq domain.GenerationRequest) {
	outcome, err := a.Orchestrator.Await(ctx, taskID, greq, nil)
	if err != nil {
		a.Logger.Error().Err(err).Str("task_id", taskID).Str("user_id", greq.OwnerID).Msg("job failed")
		return
	}
	if outcome.Warning != nil {
		a.Logger.Warn().Err(outcome.Warning).Str("task_id", taskID).Msg("job generated but not saved")
		return
	}
	a.Logger.Info().
		Str("task_id", taskID).
		Str("artifact_id", outcome.Artifact.ID).
		Str("kind", string(greq.Kind)).
		Msg("job completed")
}

// JobStatus reads the provider-side task state directly. The poll is a single
// read, not a loop: clients poll this endpoint on their own cadence.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	taskID := chi.URLParam(r, "task_id")
	if taskID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "task_id required")
		return
	}
	job, err := a.Provider.PollOnce(r.Context(), taskID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	resp := map[string]any{
		"task_id":  job.TaskID,
		"status":   string(job.Status),
		"progress": job.Progress,
	}
	if len(job.Outputs) > 0 {
		resp["outputs"] = job.Outputs
	}
	if job.ErrorDetail != "" {
		resp["error"] = job.ErrorDetail
	}
	a.json(w, http.StatusOK, resp)
}

// QuotaShow returns the caller's remaining generation credits.
func (a *App) QuotaShow(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit, err := a.Quota.Peek(r.Context(), userID)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"images_remaining": limit.ImagesRemaining,
		"images_limit":     limit.ImagesLimit,
		"videos_remaining": limit.VideosRemaining,
		"videos_limit":     limit.VideosLimit,
	})
}
