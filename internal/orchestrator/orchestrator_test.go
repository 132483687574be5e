package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"mediaforge/internal/domain"
	"mediaforge/internal/materialize"
	"mediaforge/internal/polling"
	"mediaforge/internal/provider/dashscope"
	"mediaforge/internal/querycache"
	"mediaforge/internal/quota"
)

type fakeQuota struct {
	reservation quota.Reservation
	err         error
	calls       int
}

func (f *fakeQuota) Reserve(ctx context.Context, userID string, kind domain.ResourceType) (quota.Reservation, error) {
	f.calls++
	return f.reservation, f.err
}

type fakeProvider struct {
	taskID    string
	submitErr error
	submits   int

	jobs  []*domain.ProviderJob
	polls int
}

func (f *fakeProvider) Submit(ctx context.Context, req dashscope.SubmitRequest) (string, error) {
	f.submits++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.taskID, nil
}

func (f *fakeProvider) PollOnce(ctx context.Context, taskID string) (*domain.ProviderJob, error) {
	job := f.jobs[f.polls]
	if f.polls < len(f.jobs)-1 {
		f.polls++
	}
	return job, nil
}

type fakeMaterializer struct {
	result *materialize.Result
	err    error
}

func (f *fakeMaterializer) MaterializeImage(ctx context.Context, outputURL, ownerID, projectID string) (*materialize.Result, error) {
	return f.result, f.err
}

func (f *fakeMaterializer) MaterializeVideo(ctx context.Context, outputURL, ownerID, projectID string, providerDuration float64) (*materialize.Result, error) {
	return f.result, f.err
}

type fakeArtifacts struct {
	insertErr     error
	images        []*domain.Artifact
	videos        []*domain.Artifact
	statusUpdates []domain.ArtifactStatus
}

func (f *fakeArtifacts) InsertImage(ctx context.Context, a *domain.Artifact) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	a.LineageID = "lin-1"
	f.images = append(f.images, a)
	return nil
}

func (f *fakeArtifacts) InsertVideo(ctx context.Context, a *domain.Artifact) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	a.LineageID = "lin-1"
	f.videos = append(f.videos, a)
	return nil
}

func (f *fakeArtifacts) UpdateVideoStatus(ctx context.Context, id string, status domain.ArtifactStatus) error {
	f.statusUpdates = append(f.statusUpdates, status)
	return nil
}

type countingCacheFetcher struct {
	calls int
}

func (c *countingCacheFetcher) fetch(ctx context.Context, key querycache.Key) ([]domain.Artifact, error) {
	c.calls++
	return nil, nil
}

func imageRequest() domain.GenerationRequest {
	return domain.GenerationRequest{
		Kind:          domain.ResourceImage,
		SourceAssetID: "src-1",
		SourceURL:     "https://cdn.example.com/src.png",
		Prompt:        "make it pop",
		ModelID:       "qwen-image-edit",
		OwnerID:       "u-1",
		ProjectID:     "p-1",
	}
}

func testOrchestrator(q *fakeQuota, p *fakeProvider, m *fakeMaterializer, a *fakeArtifacts, fetch querycache.Fetcher) *Orchestrator {
	engine := polling.New(time.Millisecond, 10, zerolog.Nop())
	engine.Sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return &Orchestrator{
		Quota:        q,
		Provider:     p,
		Poller:       engine,
		Materializer: m,
		Artifacts:    a,
		Cache:        querycache.New(fetch, zerolog.Nop()),
		Logger:       zerolog.Nop(),
	}
}

func TestRunImageHappyPath(t *testing.T) {
	q := &fakeQuota{reservation: quota.Reservation{Allowed: true, Remaining: 9}}
	p := &fakeProvider{
		taskID: "task-1",
		jobs: []*domain.ProviderJob{
			{TaskID: "task-1", Status: domain.JobStatusRunning},
			{TaskID: "task-1", Status: domain.JobStatusSucceeded, Outputs: []string{"https://cdn.example.com/out.png"}},
		},
	}
	m := &fakeMaterializer{result: &materialize.Result{StorageKey: "u-1/p-1/1-image.png", Width: 640, Height: 480}}
	a := &fakeArtifacts{}
	fetch := &countingCacheFetcher{}
	o := testOrchestrator(q, p, m, a, fetch.fetch)

	outcome, err := o.Run(context.Background(), imageRequest(), nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !outcome.Generated || !outcome.Saved {
		t.Fatalf("outcome = %+v, want generated and saved", outcome)
	}
	if outcome.Remaining != 9 {
		t.Fatalf("remaining = %d, want 9", outcome.Remaining)
	}
	if outcome.Artifact == nil || outcome.Artifact.LineageID != "lin-1" {
		t.Fatalf("artifact missing server-derived lineage: %+v", outcome.Artifact)
	}
	if len(a.images) != 1 {
		t.Fatalf("inserted images = %d, want 1", len(a.images))
	}
	if a.images[0].StorageKey != "u-1/p-1/1-image.png" {
		t.Fatalf("storage key = %q", a.images[0].StorageKey)
	}
}

func TestSubmitDeniedByQuota(t *testing.T) {
	q := &fakeQuota{reservation: quota.Reservation{Allowed: false, Remaining: 0}}
	p := &fakeProvider{taskID: "task-1"}
	o := testOrchestrator(q, p, &fakeMaterializer{}, &fakeArtifacts{}, (&countingCacheFetcher{}).fetch)

	_, _, err := o.Submit(context.Background(), imageRequest())
	if domain.KindOf(err) != domain.KindQuotaExceeded {
		t.Fatalf("kind = %q, want quota_exceeded", domain.KindOf(err))
	}
	if p.submits != 0 {
		t.Fatalf("provider was called despite quota denial")
	}
}

func TestSubmitValidatesBeforeReserving(t *testing.T) {
	q := &fakeQuota{reservation: quota.Reservation{Allowed: true, Remaining: 9}}
	o := testOrchestrator(q, &fakeProvider{}, &fakeMaterializer{}, &fakeArtifacts{}, (&countingCacheFetcher{}).fetch)

	req := imageRequest()
	req.Prompt = " "
	_, _, err := o.Submit(context.Background(), req)
	if domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("kind = %q, want validation", domain.KindOf(err))
	}
	if q.calls != 0 {
		t.Fatalf("quota reserved for an invalid request")
	}
}

func TestSubmitProviderFailureKeepsReservation(t *testing.T) {
	q := &fakeQuota{reservation: quota.Reservation{Allowed: true, Remaining: 4}}
	p := &fakeProvider{submitErr: domain.NewError(domain.KindProviderBillingLimit, "Arrearage")}
	o := testOrchestrator(q, p, &fakeMaterializer{}, &fakeArtifacts{}, (&countingCacheFetcher{}).fetch)

	_, remaining, err := o.Submit(context.Background(), imageRequest())
	if domain.KindOf(err) != domain.KindProviderBillingLimit {
		t.Fatalf("kind = %q, want provider_billing_limit", domain.KindOf(err))
	}
	if remaining != 4 {
		t.Fatalf("remaining = %d, want 4 (reserve already spent)", remaining)
	}
	if q.calls != 1 {
		t.Fatalf("quota calls = %d, want 1 and no refund path", q.calls)
	}
}

func TestAwaitMaterializationFailureLeavesCacheCold(t *testing.T) {
	q := &fakeQuota{reservation: quota.Reservation{Allowed: true, Remaining: 9}}
	p := &fakeProvider{
		taskID: "task-1",
		jobs: []*domain.ProviderJob{
			{TaskID: "task-1", Status: domain.JobStatusSucceeded, Outputs: []string{"https://cdn.example.com/out.png"}},
		},
	}
	m := &fakeMaterializer{err: materialize.ErrStore}
	a := &fakeArtifacts{}
	fetch := &countingCacheFetcher{}
	o := testOrchestrator(q, p, m, a, fetch.fetch)

	outcome, err := o.Await(context.Background(), "task-1", imageRequest(), nil)
	if err != nil {
		t.Fatalf("await returned a hard error for a save failure: %v", err)
	}
	if !outcome.Generated {
		t.Fatalf("generation must count as succeeded")
	}
	if outcome.Saved {
		t.Fatalf("outcome marked saved despite store failure")
	}
	if outcome.Warning == nil || outcome.Warning.Kind != domain.KindMaterialization {
		t.Fatalf("warning = %+v, want materialization kind", outcome.Warning)
	}
	if len(a.images) != 0 {
		t.Fatalf("artifact row was written for an unsaved result")
	}
	// No cache mutation began, so the scope was never touched.
	items, gerr := o.Cache.Get(context.Background(), querycache.Key{Kind: querycache.KindEditedImages, Scope: "p-1"})
	if gerr != nil {
		t.Fatalf("get: %v", gerr)
	}
	if len(items) != 0 {
		t.Fatalf("cache contains speculative entries: %d", len(items))
	}
}

func TestAwaitPersistenceFailureRollsBackCache(t *testing.T) {
	q := &fakeQuota{reservation: quota.Reservation{Allowed: true, Remaining: 9}}
	p := &fakeProvider{
		taskID: "task-1",
		jobs: []*domain.ProviderJob{
			{TaskID: "task-1", Status: domain.JobStatusSucceeded, Outputs: []string{"https://cdn.example.com/out.png"}},
		},
	}
	m := &fakeMaterializer{result: &materialize.Result{StorageKey: "u-1/p-1/1-image.png"}}
	a := &fakeArtifacts{insertErr: errors.New("unique violation")}
	fetch := &countingCacheFetcher{}
	o := testOrchestrator(q, p, m, a, fetch.fetch)

	outcome, err := o.Await(context.Background(), "task-1", imageRequest(), nil)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if outcome.Saved {
		t.Fatalf("outcome marked saved despite insert failure")
	}
	if outcome.Warning == nil || outcome.Warning.Kind != domain.KindPersistence {
		t.Fatalf("warning = %+v, want persistence kind", outcome.Warning)
	}
	items, gerr := o.Cache.Get(context.Background(), querycache.Key{Kind: querycache.KindEditedImages, Scope: "p-1"})
	if gerr != nil {
		t.Fatalf("get: %v", gerr)
	}
	if len(items) != 0 {
		t.Fatalf("speculated entry survived rollback: %d", len(items))
	}
}

func TestAwaitRejectionIsGenerationFailure(t *testing.T) {
	q := &fakeQuota{reservation: quota.Reservation{Allowed: true, Remaining: 9}}
	p := &fakeProvider{
		taskID: "task-1",
		jobs: []*domain.ProviderJob{
			{TaskID: "task-1", Status: domain.JobStatusFailed, ErrorDetail: "output moderation"},
		},
	}
	o := testOrchestrator(q, p, &fakeMaterializer{}, &fakeArtifacts{}, (&countingCacheFetcher{}).fetch)

	outcome, err := o.Await(context.Background(), "task-1", imageRequest(), nil)
	if domain.KindOf(err) != domain.KindProviderRejected {
		t.Fatalf("kind = %q, want provider_rejected", domain.KindOf(err))
	}
	if outcome.Generated {
		t.Fatalf("rejected job counted as generated")
	}
}

func TestAwaitVideoTransitionsToCompleted(t *testing.T) {
	q := &fakeQuota{reservation: quota.Reservation{Allowed: true, Remaining: 4}}
	p := &fakeProvider{
		taskID: "task-1",
		jobs: []*domain.ProviderJob{
			{TaskID: "task-1", Status: domain.JobStatusSucceeded, Outputs: []string{"https://cdn.example.com/out.mp4"}},
		},
	}
	m := &fakeMaterializer{result: &materialize.Result{StorageKey: "u-1/p-1/1-video.mp4", DurationSeconds: 5}}
	a := &fakeArtifacts{}
	o := testOrchestrator(q, p, m, a, (&countingCacheFetcher{}).fetch)

	req := imageRequest()
	req.Kind = domain.ResourceVideo
	outcome, err := o.Await(context.Background(), "task-1", req, nil)
	if err != nil {
		t.Fatalf("await: %v", err)
	}
	if len(a.videos) != 1 {
		t.Fatalf("inserted videos = %d, want 1", len(a.videos))
	}
	if len(a.statusUpdates) != 1 || a.statusUpdates[0] != domain.ArtifactStatusCompleted {
		t.Fatalf("status updates = %v, want [completed]", a.statusUpdates)
	}
	if outcome.Artifact.Status != domain.ArtifactStatusCompleted {
		t.Fatalf("artifact status = %q, want completed", outcome.Artifact.Status)
	}
}

func TestIsRetryableSaveFailure(t *testing.T) {
	if !IsRetryableSaveFailure(domain.NewError(domain.KindMaterialization, "save failed")) {
		t.Fatalf("materialization failure should be retryable")
	}
	if !IsRetryableSaveFailure(materialize.ErrFetch) {
		t.Fatalf("fetch failure should be retryable")
	}
	if IsRetryableSaveFailure(domain.NewError(domain.KindProviderRejected, "bad prompt")) {
		t.Fatalf("provider rejection is not a save failure")
	}
	if IsRetryableSaveFailure(nil) {
		t.Fatalf("nil error is not retryable")
	}
}
