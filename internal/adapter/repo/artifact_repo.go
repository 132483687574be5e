package repo

import (
	"context"
	"database/sql"

	"mediaforge/internal/domain"
	"mediaforge/internal/infra"
	"mediaforge/internal/sqlinline"
)

// ArtifactRepositoryPG persists generated artifacts (edited images and
// generated videos) in PostgreSQL.
type ArtifactRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewArtifactRepository constructs an artifact repository over the given executor.
func NewArtifactRepository(sqlx infra.SQLExecutor) *ArtifactRepositoryPG {
	return &ArtifactRepositoryPG{sql: sqlx}
}

// InsertImage writes an edited image row. The database derives lineage_id
// (parent's lineage or a fresh root); the returned values are written back
// onto the artifact.
func (r *ArtifactRepositoryPG) InsertImage(ctx context.Context, a *domain.Artifact) error {
	if err := a.ValidateLineage(); err != nil {
		return err
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertEditedImage,
		a.ID, a.ProjectID, a.OwnerID,
		nullableID(a.SourceAssetID), nullableID(a.ParentID),
		a.StorageKey, a.Width, a.Height, a.Prompt, a.ModelID, a.Name)
	if err := row.Scan(&a.LineageID, &a.CreatedAt); err != nil {
		return domain.WrapError(domain.KindPersistence, "insert edited image", err)
	}
	a.Kind = domain.ResourceImage
	a.Status = domain.ArtifactStatusCompleted
	return nil
}

// InsertVideo writes a generated video row in the processing state.
func (r *ArtifactRepositoryPG) InsertVideo(ctx context.Context, a *domain.Artifact) error {
	if err := a.ValidateLineage(); err != nil {
		return err
	}
	if a.Status == "" {
		a.Status = domain.ArtifactStatusProcessing
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertGeneratedVideo,
		a.ID, a.ProjectID, a.OwnerID,
		nullableID(a.SourceAssetID), nullableID(a.ParentID),
		a.StorageKey, a.Width, a.Height, a.DurationSeconds, a.Prompt, a.ModelID, a.Name, string(a.Status))
	if err := row.Scan(&a.LineageID, &a.CreatedAt); err != nil {
		return domain.WrapError(domain.KindPersistence, "insert generated video", err)
	}
	a.Kind = domain.ResourceVideo
	return nil
}

// UpdateVideoStatus moves a processing video to completed or failed. Rows that
// already left processing are not touched.
func (r *ArtifactRepositoryPG) UpdateVideoStatus(ctx context.Context, id string, status domain.ArtifactStatus) error {
	var updated string
	if err := r.sql.QueryRow(ctx, sqlinline.QUpdateVideoStatus, id, string(status)).Scan(&updated); err != nil {
		if infra.IsNoRows(err) {
			return nil
		}
		return domain.WrapError(domain.KindPersistence, "update video status", err)
	}
	return nil
}

// ListProjectImages returns a project's edited images, newest first.
func (r *ArtifactRepositoryPG) ListProjectImages(ctx context.Context, projectID string) ([]domain.Artifact, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectProjectImages, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanImages(rows)
}

// ListSourceImages returns edits derived directly from an original upload, newest first.
func (r *ArtifactRepositoryPG) ListSourceImages(ctx context.Context, sourceAssetID string) ([]domain.Artifact, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectSourceImages, sourceAssetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanImages(rows)
}

// ListProjectVideos returns a project's generated videos, newest first.
func (r *ArtifactRepositoryPG) ListProjectVideos(ctx context.Context, projectID string) ([]domain.Artifact, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectProjectVideos, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Artifact
	for rows.Next() {
		a, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListTimeline returns every artifact on a lineage chain, oldest first.
func (r *ArtifactRepositoryPG) ListTimeline(ctx context.Context, lineageID string) ([]domain.Artifact, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectTimeline, lineageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Artifact
	for rows.Next() {
		var a domain.Artifact
		var kind, status string
		var srcID, parentID, name sql.NullString
		if err := rows.Scan(&a.ID, &kind, &a.ProjectID, &a.OwnerID, &srcID, &parentID, &a.LineageID,
			&a.StorageKey, &a.Width, &a.Height, &a.DurationSeconds,
			&a.Prompt, &a.ModelID, &name, &status, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Kind = domain.ResourceType(kind)
		a.Status = domain.ArtifactStatus(status)
		a.SourceAssetID = srcID.String
		a.ParentID = parentID.String
		a.Name = name.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetImage loads one edited image by id.
func (r *ArtifactRepositoryPG) GetImage(ctx context.Context, id string) (*domain.Artifact, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectImageByID, id)
	a, err := scanImageRow(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.NewError(domain.KindNotFound, "image not found")
		}
		return nil, err
	}
	return a, nil
}

// GetVideo loads one generated video by id.
func (r *ArtifactRepositoryPG) GetVideo(ctx context.Context, id string) (*domain.Artifact, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectVideoByID, id)
	a, err := scanVideo(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.NewError(domain.KindNotFound, "video not found")
		}
		return nil, err
	}
	return &a, nil
}

// DeleteImage removes an edited image row owned by userID and returns its
// storage key. Callers delete the stored object before calling this.
func (r *ArtifactRepositoryPG) DeleteImage(ctx context.Context, id, userID string) (string, error) {
	var key string
	if err := r.sql.QueryRow(ctx, sqlinline.QDeleteEditedImage, id, userID).Scan(&key); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.NewError(domain.KindNotFound, "image not found")
		}
		return "", domain.WrapError(domain.KindPersistence, "delete edited image", err)
	}
	return key, nil
}

// DeleteVideo removes a generated video row owned by userID and returns its
// storage key.
func (r *ArtifactRepositoryPG) DeleteVideo(ctx context.Context, id, userID string) (string, error) {
	var key string
	if err := r.sql.QueryRow(ctx, sqlinline.QDeleteGeneratedVideo, id, userID).Scan(&key); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.NewError(domain.KindNotFound, "video not found")
		}
		return "", domain.WrapError(domain.KindPersistence, "delete generated video", err)
	}
	return key, nil
}

// ListStaleProcessingVideos returns ids of videos stuck in processing for
// longer than the cutoff, for the sweeper to fail out.
func (r *ArtifactRepositoryPG) ListStaleProcessingVideos(ctx context.Context, olderThanMinutes int) ([]string, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectStaleProcessingVideos, olderThanMinutes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListStorageKeys returns every storage key referenced by an artifact row.
func (r *ArtifactRepositoryPG) ListStorageKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectAllStorageKeys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImageRow(row rowScanner) (*domain.Artifact, error) {
	var a domain.Artifact
	var srcID, parentID, name sql.NullString
	if err := row.Scan(&a.ID, &a.ProjectID, &a.OwnerID, &srcID, &parentID, &a.LineageID,
		&a.StorageKey, &a.Width, &a.Height, &a.Prompt, &a.ModelID, &name, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Kind = domain.ResourceImage
	a.Status = domain.ArtifactStatusCompleted
	a.SourceAssetID = srcID.String
	a.ParentID = parentID.String
	a.Name = name.String
	return &a, nil
}

func scanImages(rows interface {
	rowScanner
	Next() bool
	Err() error
}) ([]domain.Artifact, error) {
	var out []domain.Artifact
	for rows.Next() {
		a, err := scanImageRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanVideo(row rowScanner) (domain.Artifact, error) {
	var a domain.Artifact
	var srcID, parentID, name sql.NullString
	var status string
	if err := row.Scan(&a.ID, &a.ProjectID, &a.OwnerID, &srcID, &parentID, &a.LineageID,
		&a.StorageKey, &a.Width, &a.Height, &a.DurationSeconds,
		&a.Prompt, &a.ModelID, &name, &status, &a.CreatedAt); err != nil {
		return domain.Artifact{}, err
	}
	a.Kind = domain.ResourceVideo
	a.Status = domain.ArtifactStatus(status)
	a.SourceAssetID = srcID.String
	a.ParentID = parentID.String
	a.Name = name.String
	return a, nil
}

func nullableID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
