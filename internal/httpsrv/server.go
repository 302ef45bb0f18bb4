// Package httpsrv exposes the judge's HTTP surface: submissions,
// exercise bundle management and result polling.
package httpsrv

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"

	"github.com/plags-org/judge/internal/judgesrvc"
)

type Server struct {
	srvc   *judgesrvc.JudgeService
	router *chi.Mux
	logger *slog.Logger
}

func New(srvc *judgesrvc.JudgeService, allowedOrigins []string, logger *slog.Logger) *Server {
	router := chi.NewRouter()

	httpLogger := httplog.NewLogger("judge", httplog.Options{
		LogLevel:         slog.LevelInfo,
		Concise:          true,
		MessageFieldName: "message",
	})
	router.Use(httplog.RequestLogger(httpLogger))

	if len(allowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         3000,
		}))
	}

	server := &Server{srvc: srvc, router: router, logger: logger}
	server.routes()
	return server
}

func (s *Server) routes() {
	r := s.router
	r.Post("/api/v1/submissions", s.submit)
	r.Get("/api/v1/submissions/{submissionID}/result", s.result)
	r.Get("/api/v1/exercises/exists", s.exists)
	r.Post("/api/v1/exercises", s.upload)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context, address string) error {
	srv := &http.Server{Addr: address, Handler: s.router}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
