package domain

// GenerationLimit is the per-user remaining-uses counter. Rows are created
// lazily on first reserve with plan defaults and are never deleted by this
// subsystem. 0 <= remaining <= limit holds for both resource types.
type GenerationLimit struct {
	UserID          string
	ImagesRemaining int
	ImagesLimit     int
	VideosRemaining int
	VideosLimit     int
}

// Remaining returns the remaining count for the given resource type.
func (l GenerationLimit) Remaining(kind ResourceType) int {
	if kind == ResourceVideo {
		return l.VideosRemaining
	}
	return l.ImagesRemaining
}
