package app

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"edulms/internal/analysis"
	"edulms/internal/app/apiresp"
	"edulms/internal/app/observability"
	"edulms/internal/auth"
	"edulms/internal/exam"
	"edulms/internal/question"
	"edulms/internal/report"
)

// NewRouter wires every service onto one chi router. Rate limiter buckets are
// swept until stop is closed; a nil stop disables sweeping.
func NewRouter(cfg Config, db *sql.DB, logger *zap.Logger, metrics *observability.Metrics, stop <-chan struct{}) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	globalLimiter := NewRateLimiter(cfg.RateLimitPerMin, time.Minute)
	authLimiter := NewRateLimiter(cfg.AuthRateLimitPerMin, time.Minute)
	if stop != nil {
		go globalLimiter.Run(stop)
		go authLimiter.Run(stop)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	r.Use(observability.TracingMiddleware)
	r.Use(observability.RequestMiddleware(logger, metrics))
	r.Use(RateLimitMiddleware(globalLimiter))

	authSvc := auth.NewService(db, auth.ServiceConfig{
		Secret:     cfg.JWTSecret,
		TokenTTL:   cfg.JWTTTL,
		BcryptCost: cfg.BcryptCost,
	})
	authHandler := auth.NewHandler(authSvc, logger.Named("auth"))

	examSvc := exam.NewService(db, logger.Named("exam"), metrics)
	examHandler := exam.NewHandler(examSvc, logger.Named("exam"))

	questionSvc := question.NewService(db, logger.Named("question"))
	questionHandler := question.NewHandler(questionSvc, logger.Named("question"))

	analysisSvc := analysis.NewService(db, logger.Named("analysis"), metrics)
	analysisHandler := analysis.NewHandler(analysisSvc, logger.Named("analysis"), cfg.AnalysisPersist)

	reportSvc := report.NewService(db, analysisSvc, logger.Named("report"))
	reportHandler := report.NewHandler(reportSvc, logger.Named("report"))

	r.Get("/healthz", healthHandler(db))
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.With(RateLimitMiddleware(authLimiter)).Post("/auth/login", authHandler.Login)

		api.Group(func(secure chi.Router) {
			secure.Use(auth.RequireAuth(authSvc))
			secure.Get("/auth/me", authHandler.Me)

			secure.Get("/exams", examHandler.ListExams)
			secure.Get("/exams/{id}", examHandler.GetExam)
			secure.Post("/exams/{id}/submit", examHandler.Submit)
			secure.Get("/results", examHandler.ListResults)
			secure.Get("/results/{id}", examHandler.GetResult)

			secure.Group(func(staff chi.Router) {
				staff.Use(auth.RequireRoles(auth.RoleAdmin, auth.RoleTeacher))

				staff.Post("/exams", examHandler.CreateExam)
				staff.Put("/exams/{id}", examHandler.UpdateExam)
				staff.Delete("/exams/{id}", examHandler.DeleteExam)
				staff.Get("/exams/{id}/answer-key", examHandler.AnswerKey)

				staff.Post("/exams/{id}/questions", questionHandler.Create)
				staff.Post("/exams/{id}/questions/import", questionHandler.Import)
				staff.Get("/questions/import-template", questionHandler.Template)
				staff.Get("/questions/{id}", questionHandler.Get)
				staff.Put("/questions/{id}", questionHandler.Update)
				staff.Delete("/questions/{id}", questionHandler.Delete)

				staff.Post("/exams/{id}/analysis", analysisHandler.AnalyzeExam)
				staff.Get("/exams/{id}/analysis/statistics", analysisHandler.Statistics)
				staff.Get("/exams/{id}/questions/{questionID}/analysis", analysisHandler.AnalyzeQuestion)
				staff.Get("/questions/{id}/analysis-report", analysisHandler.Report)

				staff.Get("/exams/{id}/summary", reportHandler.Summary)
				staff.Get("/exams/{id}/analysis.xlsx", reportHandler.ExportAnalysis)
			})

			secure.Group(func(admin chi.Router) {
				admin.Use(auth.RequireRoles(auth.RoleAdmin))
				admin.Post("/admin/users", authHandler.CreateUser)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apiresp.WriteError(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		apiresp.WriteError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			apiresp.WriteError(w, r, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			apiresp.WriteError(w, r, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "ok"})
	}
}
