package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mediaforge/internal/http/handlers"
	"mediaforge/internal/middleware"
)

func NewRouter(app *handlers.App, countryLookup middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.CORS(app.Config.AllowedOrigins),
		middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute),
		middleware.Logger(app.Logger),
		middleware.I18N("en", countryLookup),
	)

	r.Get("/healthz", app.Health)
	r.Get("/v1/healthz", app.Health)

	// Files accept either a signed URL or a bearer token, so auth here is
	// optional and the handler enforces the rest.
	r.With(middleware.OptionalAuth(app.Config.JWTSecret)).Get("/v1/files/*", app.FileServe)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(app.Config.JWTSecret))

		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.JobsCreate)
			r.Get("/{task_id}", app.JobStatus)
		})

		r.Get("/v1/quota", app.QuotaShow)

		r.Route("/v1/projects/{project_id}", func(r chi.Router) {
			r.Get("/images", app.ProjectImages)
			r.Get("/videos", app.ProjectVideos)
			r.Get("/timelines", app.ProjectTimelines)
			r.Get("/archive", app.ProjectArchive)
		})

		r.Get("/v1/assets/{asset_id}/edits", app.SourceImages)
		r.Get("/v1/timelines/{lineage_id}", app.Timeline)

		r.Delete("/v1/images/{id}", app.ImageDelete)
		r.Delete("/v1/videos/{id}", app.VideoDelete)
	})

	return r
}
