package orchestrator

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mediaforge/internal/domain"
	"mediaforge/internal/materialize"
	"mediaforge/internal/polling"
	"mediaforge/internal/provider/dashscope"
	"mediaforge/internal/querycache"
	"mediaforge/internal/quota"
)

// ProviderClient is the provider contract: one submit, one status read.
type ProviderClient interface {
	Submit(ctx context.Context, req dashscope.SubmitRequest) (string, error)
	PollOnce(ctx context.Context, taskID string) (*domain.ProviderJob, error)
}

// QuotaReserver performs the reserve-then-attempt check.
type QuotaReserver interface {
	Reserve(ctx context.Context, userID string, kind domain.ResourceType) (quota.Reservation, error)
}

// Materializer persists provider output into durable storage.
type Materializer interface {
	MaterializeImage(ctx context.Context, outputURL, ownerID, projectID string) (*materialize.Result, error)
	MaterializeVideo(ctx context.Context, outputURL, ownerID, projectID string, providerDuration float64) (*materialize.Result, error)
}

// ArtifactStore writes artifact rows.
type ArtifactStore interface {
	InsertImage(ctx context.Context, a *domain.Artifact) error
	InsertVideo(ctx context.Context, a *domain.Artifact) error
	UpdateVideoStatus(ctx context.Context, id string, status domain.ArtifactStatus) error
}

// Outcome is the terminal report for one job. Generated and Saved diverge
// when the expensive step succeeded but materialization or persistence did
// not: that case is a warning with a retry-save story, never a generation
// failure.
type Outcome struct {
	TaskID    string
	Artifact  *domain.Artifact
	Generated bool
	Saved     bool
	Warning   *domain.Error
	Remaining int
}

// Orchestrator composes quota, provider, polling, materialization,
// persistence and cache reconciliation into the end-to-end flow for one user
// action. All collaborators are injected; nothing is reached through ambient
// globals.
type Orchestrator struct {
	Quota        QuotaReserver
	Provider     ProviderClient
	Poller       *polling.Engine
	Materializer Materializer
	Artifacts    ArtifactStore
	Cache        *querycache.Store
	Logger       zerolog.Logger
}

// Submit validates the request, reserves quota and enqueues the provider
// job. It returns the provider task id and the quota remaining after the
// reserve.
func (o *Orchestrator) Submit(ctx context.Context, req domain.GenerationRequest) (string, int, error) {
	if err := req.Validate(); err != nil {
		return "", 0, err
	}

	res, err := o.Quota.Reserve(ctx, req.OwnerID, req.Kind)
	if err != nil {
		return "", 0, err
	}
	if !res.Allowed {
		noun := "image"
		if req.Kind == domain.ResourceVideo {
			noun = "video"
		}
		return "", 0, domain.NewError(domain.KindQuotaExceeded, "you've maxed out your "+noun+" credits")
	}

	taskID, err := o.Provider.Submit(ctx, dashscope.SubmitRequest{
		Kind:      req.Kind,
		Prompt:    req.Prompt,
		SourceURL: req.SourceURL,
		Ratio:     req.Ratio,
		Model:     req.ModelID,
	})
	if err != nil {
		// The reserve is intentionally not refunded on provider failure.
		o.Logger.Warn().Err(err).Str("user_id", req.OwnerID).Msg("orchestrator: submit failed after quota reserve (not refunded)")
		return "", res.Remaining, err
	}
	return taskID, res.Remaining, nil
}

// Await drives a submitted job to its terminal outcome: poll to a terminal
// state, then materialize, persist and reconcile caches. Materialization or
// persistence failure after a successful generation is downgraded to a
// warning on the outcome.
func (o *Orchestrator) Await(ctx context.Context, taskID string, req domain.GenerationRequest, onProgress polling.ProgressFunc) (*Outcome, error) {
	outcome := &Outcome{TaskID: taskID}

	result, err := o.Poller.Run(ctx, func(ctx context.Context) (*domain.ProviderJob, error) {
		return o.Provider.PollOnce(ctx, taskID)
	}, onProgress)
	if err != nil {
		return outcome, err
	}
	outcome.Generated = true

	outputURL := result.Job.FirstOutput()
	if outputURL == "" {
		return outcome, domain.NewError(domain.KindProviderRejected, "provider succeeded without an output url")
	}

	artifact := &domain.Artifact{
		ID:            uuid.NewString(),
		Kind:          req.Kind,
		ProjectID:     req.ProjectID,
		OwnerID:       req.OwnerID,
		SourceAssetID: req.SourceAssetID,
		ParentID:      req.ParentID,
		Prompt:        req.Prompt,
		ModelID:       req.ModelID,
	}

	var mres *materialize.Result
	if req.Kind == domain.ResourceVideo {
		mres, err = o.Materializer.MaterializeVideo(ctx, outputURL, req.OwnerID, req.ProjectID, 0)
	} else {
		mres, err = o.Materializer.MaterializeImage(ctx, outputURL, req.OwnerID, req.ProjectID)
	}
	if err != nil {
		// Generated but not saved; the caller may offer a retry of the save.
		outcome.Warning = domain.WrapError(domain.KindMaterialization, "generation succeeded but the result could not be saved", err)
		o.Logger.Error().Err(err).Str("task_id", taskID).Msg("orchestrator: materialization failed")
		return outcome, nil
	}
	artifact.StorageKey = mres.StorageKey
	artifact.Width = mres.Width
	artifact.Height = mres.Height
	artifact.DurationSeconds = mres.DurationSeconds

	// Optimistic create against every scope the artifact belongs to, then the
	// authoritative insert, then reconcile. The lineage scopes are only known
	// after the insert assigns lineage_id, so they ride along as
	// invalidation-only keys.
	keys := []querycache.Key{
		{Kind: querycache.KindEditedImages, Scope: req.ProjectID},
	}
	if req.Kind == domain.ResourceVideo {
		keys[0] = querycache.Key{Kind: querycache.KindGeneratedVideos, Scope: req.ProjectID}
	}
	if req.SourceAssetID != "" {
		keys = append(keys, querycache.Key{Kind: querycache.KindSourceEdits, Scope: req.SourceAssetID})
	}
	mutation := o.Cache.Begin(keys...)
	mutation.ApplyCreate(*artifact)

	if req.Kind == domain.ResourceVideo {
		artifact.Status = domain.ArtifactStatusProcessing
		err = o.Artifacts.InsertVideo(ctx, artifact)
	} else {
		err = o.Artifacts.InsertImage(ctx, artifact)
	}
	if err != nil {
		mutation.Rollback()
		outcome.Warning = domain.WrapError(domain.KindPersistence, "generation succeeded but the result could not be saved", err)
		o.Logger.Error().Err(err).Str("task_id", taskID).Msg("orchestrator: persistence failed")
		return outcome, nil
	}

	if artifact.LineageID != "" {
		mutation.AlsoInvalidate(
			querycache.Key{Kind: querycache.KindTimeline, Scope: artifact.LineageID},
			querycache.Key{Kind: querycache.KindTimelines, Scope: req.ProjectID},
		)
	}
	mutation.Commit(ctx)

	if req.Kind == domain.ResourceVideo {
		if err := o.Artifacts.UpdateVideoStatus(ctx, artifact.ID, domain.ArtifactStatusCompleted); err != nil {
			o.Logger.Warn().Err(err).Str("artifact_id", artifact.ID).Msg("orchestrator: video status transition failed")
		} else {
			artifact.Status = domain.ArtifactStatusCompleted
		}
	}

	outcome.Artifact = artifact
	outcome.Saved = true
	return outcome, nil
}

// Run executes the full flow synchronously: validate, reserve, submit, await.
func (o *Orchestrator) Run(ctx context.Context, req domain.GenerationRequest, onProgress polling.ProgressFunc) (*Outcome, error) {
	taskID, remaining, err := o.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	outcome, err := o.Await(ctx, taskID, req, onProgress)
	if outcome != nil {
		outcome.Remaining = remaining
	}
	return outcome, err
}

// IsRetryableSaveFailure reports whether err (an outcome warning cause) means
// the generation itself succeeded and only the save is worth retrying.
func IsRetryableSaveFailure(err error) bool {
	if err == nil {
		return false
	}
	switch domain.KindOf(err) {
	case domain.KindMaterialization, domain.KindPersistence:
		return true
	}
	return errors.Is(err, materialize.ErrFetch) || errors.Is(err, materialize.ErrStore)
}
