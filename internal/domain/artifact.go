package domain

import (
	"strings"
	"time"
)

// ArtifactStatus enumerates generated video lifecycle states. Images are
// always completed once their row exists.
type ArtifactStatus string

const (
	ArtifactStatusProcessing ArtifactStatus = "processing"
	ArtifactStatusCompleted  ArtifactStatus = "completed"
	ArtifactStatusFailed     ArtifactStatus = "failed"
)

// Artifact is a generated image or video persisted to durable storage and
// recorded in the database. Exactly one of SourceAssetID and ParentID is set:
// the former points at an original upload, the latter at a prior generated
// artifact, together forming a lineage chain rooted at an upload.
type Artifact struct {
	ID              string
	Kind            ResourceType
	ProjectID       string
	OwnerID         string
	SourceAssetID   string
	ParentID        string
	LineageID       string // server-derived; parent's lineage or a fresh root
	StorageKey      string
	Width           int
	Height          int
	DurationSeconds float64
	Prompt          string
	ModelID         string
	Name            string
	Status          ArtifactStatus
	CreatedAt       time.Time
}

// ValidateLineage enforces the source-xor-parent invariant.
func (a Artifact) ValidateLineage() error {
	hasSource := strings.TrimSpace(a.SourceAssetID) != ""
	hasParent := strings.TrimSpace(a.ParentID) != ""
	if hasSource == hasParent {
		return NewError(KindValidation, "artifact must reference exactly one of source asset or parent artifact")
	}
	return nil
}
