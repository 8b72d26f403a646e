package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-survey/backend/internal/handler/generate"
	"github.com/zhouzirui/z-survey/backend/internal/handler/survey"
	middlewarePkg "github.com/zhouzirui/z-survey/backend/internal/middleware"
	aiService "github.com/zhouzirui/z-survey/backend/internal/service/ai"
	surveyService "github.com/zhouzirui/z-survey/backend/internal/service/survey"
	"github.com/zhouzirui/z-survey/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. aiSvc may be nil when no
// model credentials are configured; generation requests then fail per frame.
func NewRouter(store *surveyService.Store, aiSvc *aiService.Service, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	var gen generate.Generator
	if aiSvc != nil {
		gen = aiSvc
	}
	var saver generate.Store
	if store != nil {
		saver = store
	}
	generate.NewWebSocketHandler(gen, saver, logger).RegisterRoutes(r)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":       "ok",
			"ai_available": aiSvc != nil,
		})
	})

	r.Route("/api", func(api chi.Router) {
		if store == nil {
			return
		}
		survey.New(store, logger).RegisterRoutes(api)
	})

	return r
}
