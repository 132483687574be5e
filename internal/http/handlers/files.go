package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// FileServe serves a stored object. Requests carrying exp/sig query params are
// verified against the signing secret; everything else requires an
// authenticated caller. Signed URLs exist so external providers can fetch
// source media without credentials.
func (a *App) FileServe(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "file key required")
		return
	}

	exp := r.URL.Query().Get("exp")
	sig := r.URL.Query().Get("sig")
	if exp != "" || sig != "" {
		if !a.Store.VerifySignature(key, exp, sig) {
			a.error(w, http.StatusForbidden, "forbidden", "invalid or expired signature")
			return
		}
	} else if a.currentUserID(r) == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	data, err := a.Store.Read(r.Context(), key)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "file not found")
		return
	}

	w.Header().Set("Content-Type", contentTypeForKey(key, data))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func contentTypeForKey(key string, data []byte) string {
	switch {
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	case strings.HasSuffix(key, ".jpg"), strings.HasSuffix(key, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(key, ".webp"):
		return "image/webp"
	case strings.HasSuffix(key, ".mp4"):
		return "video/mp4"
	}
	return http.DetectContentType(data)
}
