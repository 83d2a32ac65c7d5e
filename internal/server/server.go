package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/sirupsen/logrus"

	"github.com/orgctl/orgctl/internal/auth/authn"
	"github.com/orgctl/orgctl/internal/config"
	"github.com/orgctl/orgctl/internal/ecosystem"
	"github.com/orgctl/orgctl/internal/instrumentation"
)

const gracefulShutdownTimeout = 5 * time.Second

// Server is the consumer-facing HTTP API.
type Server struct {
	log      logrus.FieldLogger
	cfg      *config.Config
	verifier authn.TokenVerifier
	builder  *authn.Builder
	resolver *ecosystem.Resolver
	metrics  *instrumentation.Metrics
}

func New(
	log logrus.FieldLogger,
	cfg *config.Config,
	verifier authn.TokenVerifier,
	builder *authn.Builder,
	resolver *ecosystem.Resolver,
	metrics *instrumentation.Metrics,
) *Server {
	return &Server{
		log:      log,
		cfg:      cfg,
		verifier: verifier,
		builder:  builder,
		resolver: resolver,
		metrics:  metrics,
	}
}

func (s *Server) Router() http.Handler {
	h := &handlers{resolver: s.resolver, log: s.log}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	if s.cfg.Service.RateLimit > 0 {
		router.Use(httprate.LimitByIP(s.cfg.Service.RateLimit, time.Minute))
	}

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	router.Route("/api/v1", func(api chi.Router) {
		api.Use(AuthMiddleware(s.verifier, s.builder, s.log))
		api.Get("/me", h.me)
		api.Get("/ecosystem/apps", h.listApps)
		api.Get("/ecosystem/stats", h.accessStats)
		api.Route("/ecosystem/apps/{appID}/access", func(access chi.Router) {
			access.Get("/", h.checkAccess)
			access.Post("/", h.grantAccess)
			access.Delete("/", h.revokeAccess)
		})
	})

	return router
}

// Run serves the API until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Service.Address,
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Infof("listening on %s", s.cfg.Service.Address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
