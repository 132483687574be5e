package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mediaforge/internal/domain"
	"mediaforge/internal/querycache"
	"mediaforge/internal/sqlinline"
	zippkg "mediaforge/pkg/zip"
)

type artifactResponse struct {
	ID              string  `json:"id"`
	Kind            string  `json:"kind"`
	ProjectID       string  `json:"project_id"`
	SourceAssetID   string  `json:"source_asset_id,omitempty"`
	ParentID        string  `json:"parent_id,omitempty"`
	LineageID       string  `json:"lineage_id"`
	URL             string  `json:"url"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Prompt          string  `json:"prompt"`
	Model           string  `json:"model"`
	Name            string  `json:"name,omitempty"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
}

func (a *App) artifactResponse(art domain.Artifact) artifactResponse {
	return artifactResponse{
		ID:              art.ID,
		Kind:            string(art.Kind),
		ProjectID:       art.ProjectID,
		SourceAssetID:   art.SourceAssetID,
		ParentID:        art.ParentID,
		LineageID:       art.LineageID,
		URL:             a.Store.PublicURL(art.StorageKey),
		Width:           art.Width,
		Height:          art.Height,
		DurationSeconds: art.DurationSeconds,
		Prompt:          art.Prompt,
		Model:           art.ModelID,
		Name:            art.Name,
		Status:          string(art.Status),
		CreatedAt:       art.CreatedAt.Format(time.RFC3339),
	}
}

func (a *App) artifactList(arts []domain.Artifact) []artifactResponse {
	out := make([]artifactResponse, 0, len(arts))
	for _, art := range arts {
		out = append(out, a.artifactResponse(art))
	}
	return out
}

// listFromCache serves one cached scope, falling through to the server when
// the entry is cold or stale.
func (a *App) listFromCache(w http.ResponseWriter, r *http.Request, key querycache.Key) {
	items, err := a.Cache.Get(r.Context(), key)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": a.artifactList(items)})
}

// ProjectImages lists a project's edited images, newest first.
func (a *App) ProjectImages(w http.ResponseWriter, r *http.Request) {
	if a.currentUserID(r) == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	projectID := chi.URLParam(r, "project_id")
	if projectID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "project_id required")
		return
	}
	a.listFromCache(w, r, querycache.Key{Kind: querycache.KindEditedImages, Scope: projectID})
}

// SourceImages lists the edits derived directly from one original upload.
func (a *App) SourceImages(w http.ResponseWriter, r *http.Request) {
	if a.currentUserID(r) == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	assetID := chi.URLParam(r, "asset_id")
	if assetID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "asset_id required")
		return
	}
	a.listFromCache(w, r, querycache.Key{Kind: querycache.KindSourceEdits, Scope: assetID})
}

// ProjectVideos lists a project's generated videos, newest first.
func (a *App) ProjectVideos(w http.ResponseWriter, r *http.Request) {
	if a.currentUserID(r) == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	projectID := chi.URLParam(r, "project_id")
	if projectID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "project_id required")
		return
	}
	a.listFromCache(w, r, querycache.Key{Kind: querycache.KindGeneratedVideos, Scope: projectID})
}

// Timeline lists every artifact on one lineage chain, oldest first.
func (a *App) Timeline(w http.ResponseWriter, r *http.Request) {
	if a.currentUserID(r) == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	lineageID := chi.URLParam(r, "lineage_id")
	if lineageID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "lineage_id required")
		return
	}
	a.listFromCache(w, r, querycache.Key{Kind: querycache.KindTimeline, Scope: lineageID})
}

// ProjectTimelines lists the lineage ids present in a project.
func (a *App) ProjectTimelines(w http.ResponseWriter, r *http.Request) {
	if a.currentUserID(r) == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	projectID := chi.URLParam(r, "project_id")
	if projectID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "project_id required")
		return
	}
	rows, err := a.SQL.Query(r.Context(), sqlinline.QSelectProjectLineages, projectID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to fetch timelines")
		return
	}
	defer rows.Close()
	lineages := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			a.error(w, http.StatusInternalServerError, "internal", "failed to fetch timelines")
			return
		}
		lineages = append(lineages, id)
	}
	if err := rows.Err(); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to fetch timelines")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"lineage_ids": lineages})
}

// ImageDelete removes one edited image: optimistic cache delete, stored object
// first, then the database row. A storage or database failure rolls the cache
// back to its snapshot.
func (a *App) ImageDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}

	img, err := a.Artifacts.GetImage(r.Context(), id)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if img.OwnerID != userID {
		a.error(w, http.StatusNotFound, "not_found", "image not found")
		return
	}

	keys := []querycache.Key{
		{Kind: querycache.KindEditedImages, Scope: img.ProjectID},
		{Kind: querycache.KindTimeline, Scope: img.LineageID},
	}
	if img.SourceAssetID != "" {
		keys = append(keys, querycache.Key{Kind: querycache.KindSourceEdits, Scope: img.SourceAssetID})
	}
	mutation := a.Cache.Begin(keys...)
	mutation.ApplyDelete(img.ID)

	if err := a.Store.Delete(r.Context(), img.StorageKey); err != nil {
		mutation.Rollback()
		a.Logger.Error().Err(err).Str("image_id", id).Msg("image delete: storage delete failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete image")
		return
	}
	if _, err := a.Artifacts.DeleteImage(r.Context(), id, userID); err != nil {
		mutation.Rollback()
		a.domainError(w, r, err)
		return
	}
	mutation.AlsoInvalidate(querycache.Key{Kind: querycache.KindTimelines, Scope: img.ProjectID})
	mutation.Commit(r.Context())

	a.json(w, http.StatusOK, map[string]any{"deleted": id})
}

// VideoDelete removes one generated video with the same ordering as
// ImageDelete.
func (a *App) VideoDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}

	vid, err := a.Artifacts.GetVideo(r.Context(), id)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	if vid.OwnerID != userID {
		a.error(w, http.StatusNotFound, "not_found", "video not found")
		return
	}

	keys := []querycache.Key{
		{Kind: querycache.KindGeneratedVideos, Scope: vid.ProjectID},
		{Kind: querycache.KindTimeline, Scope: vid.LineageID},
	}
	if vid.SourceAssetID != "" {
		keys = append(keys, querycache.Key{Kind: querycache.KindSourceEdits, Scope: vid.SourceAssetID})
	}
	mutation := a.Cache.Begin(keys...)
	mutation.ApplyDelete(vid.ID)

	if err := a.Store.Delete(r.Context(), vid.StorageKey); err != nil {
		mutation.Rollback()
		a.Logger.Error().Err(err).Str("video_id", id).Msg("video delete: storage delete failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete video")
		return
	}
	if _, err := a.Artifacts.DeleteVideo(r.Context(), id, userID); err != nil {
		mutation.Rollback()
		a.domainError(w, r, err)
		return
	}
	mutation.AlsoInvalidate(querycache.Key{Kind: querycache.KindTimelines, Scope: vid.ProjectID})
	mutation.Commit(r.Context())

	a.json(w, http.StatusOK, map[string]any{"deleted": id})
}

// ProjectArchive streams every artifact in a project as one zip download.
func (a *App) ProjectArchive(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	projectID := chi.URLParam(r, "project_id")
	if projectID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "project_id required")
		return
	}

	images, err := a.Artifacts.ListProjectImages(r.Context(), projectID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to fetch project artifacts")
		return
	}
	videos, err := a.Artifacts.ListProjectVideos(r.Context(), projectID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to fetch project artifacts")
		return
	}

	var entries []zippkg.Entry
	for _, art := range append(images, videos...) {
		if art.OwnerID != userID {
			continue
		}
		data, err := a.Store.Read(r.Context(), art.StorageKey)
		if err != nil {
			a.Logger.Warn().Err(err).Str("artifact_id", art.ID).Msg("archive: skipping unreadable object")
			continue
		}
		entries = append(entries, zippkg.Entry{Filename: archiveFilename(art), Data: data})
	}
	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no artifacts to archive")
		return
	}

	payload := zippkg.Archive(entries)
	if payload == nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="project-`+projectID+`.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func archiveFilename(art domain.Artifact) string {
	key := art.StorageKey
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return string(art.Kind) + "s/" + key[i+1:]
		}
	}
	return string(art.Kind) + "s/" + key
}
