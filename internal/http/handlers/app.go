package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"mediaforge/internal/adapter/repo"
	"mediaforge/internal/domain"
	"mediaforge/internal/infra"
	"mediaforge/internal/middleware"
	"mediaforge/internal/orchestrator"
	"mediaforge/internal/querycache"
	"mediaforge/internal/quota"
	"mediaforge/internal/storage"
)

// App carries the wired collaborators every handler needs.
type App struct {
	Config       *infra.Config
	Logger       zerolog.Logger
	SQL          infra.SQLExecutor
	Orchestrator *orchestrator.Orchestrator
	Provider     orchestrator.ProviderClient
	Quota        *quota.Guard
	Artifacts    *repo.ArtifactRepositoryPG
	Cache        *querycache.Store
	Store        *storage.FileStore
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": message},
	})
}

// domainError renders a tagged domain error with its mapped status code and,
// for quota and billing failures, a localized message. Billing failures keep
// the provider's own message and code as detail alongside the localized text.
func (a *App) domainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	de := domain.AsError(err)
	message := "something went wrong"
	if de != nil {
		message = de.Message
	}
	locale := middleware.LocaleFromContext(r.Context())
	switch kind {
	case domain.KindQuotaExceeded:
		message = quotaExceededMessage(locale, message)
	case domain.KindProviderBillingLimit:
		body := map[string]string{
			"code":    string(kind),
			"message": billingLimitMessage(locale),
			"detail":  message,
		}
		if de != nil && de.ProviderCode != "" {
			body["provider_code"] = de.ProviderCode
		}
		a.json(w, kind.HTTPStatus(), map[string]any{"error": body})
		return
	}
	a.error(w, kind.HTTPStatus(), string(kind), message)
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
