package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/snowpulse/internal/middleware"
	"github.com/hitoshi/snowpulse/internal/repository"
	"github.com/hitoshi/snowpulse/internal/scheduler"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	DB           Pinger
	Scheduler    scheduler.Scheduler
	JobNames     []string
	Participants repository.ParticipantRepository
	Metrics      http.Handler
	Logger       *slog.Logger
}

// NewRouter は運用APIのルーティングとミドルウェアチェーンを構成した
// chi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	healthHandler := NewHealthHandler(deps.DB)
	jobHandler := NewJobHandler(deps.Scheduler, deps.JobNames)
	participantHandler := NewParticipantHandler(deps.Participants)

	r.Get("/health", healthHandler.Health)
	r.Method(http.MethodGet, "/metrics", deps.Metrics)

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", jobHandler.ListJobs)
		r.Post("/{name}", jobHandler.TriggerJob)
	})

	r.Route("/participants", func(r chi.Router) {
		r.Get("/duplicates", participantHandler.ListDuplicates)
		r.Post("/merge", participantHandler.Merge)
	})

	return r
}
