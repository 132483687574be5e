package domain

import "strings"

// GenerationRequest captures one user edit intent. It is immutable once
// submitted to a provider.
type GenerationRequest struct {
	Kind          ResourceType
	SourceAssetID string // original upload being edited
	ParentID      string // prior generated artifact being edited
	SourceURL     string // provider-reachable URL for the source media
	Prompt        string
	Context       string
	ModelID       string
	Ratio         string // aspect ratio hint, e.g. "16:9"
	OwnerID       string
	ProjectID     string
}

// Validate checks the request before any quota or provider work happens.
func (r GenerationRequest) Validate() error {
	switch r.Kind {
	case ResourceImage, ResourceVideo:
	default:
		return NewError(KindValidation, "unsupported resource type")
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return NewError(KindValidation, "prompt is required")
	}
	if strings.TrimSpace(r.SourceURL) == "" {
		return NewError(KindValidation, "source url is required")
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		return NewError(KindValidation, "owner is required")
	}
	if strings.TrimSpace(r.ProjectID) == "" {
		return NewError(KindValidation, "project is required")
	}
	hasSource := strings.TrimSpace(r.SourceAssetID) != ""
	hasParent := strings.TrimSpace(r.ParentID) != ""
	if hasSource == hasParent {
		return NewError(KindValidation, "exactly one of source_asset_id or parent_id is required")
	}
	return nil
}
