package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gfc/internal/admission"
	"gfc/internal/build"
	"gfc/internal/config"
	"gfc/internal/event"
	"gfc/internal/journal"
	"gfc/internal/metrics"
)

const (
	// No write timeout: builds run synchronously inside the request and can
	// be long. Header reads and idle keep-alives are still bounded.
	httpReadHeaderTimeout = 10 * time.Second
	httpIdleTimeout       = 60 * time.Second

	// webhookRateLimit is the per-IP budget on the webhook route, per minute.
	webhookRateLimit = 30
)

// Server is the HTTP pipeline around the build orchestrator.
type Server struct {
	Logger  *slog.Logger
	Gate    *admission.Gate
	Filter  *event.Filter
	Builder *build.Builder
	Journal *journal.Journal
	Metrics *metrics.Metrics

	// UseSSH selects which repository URL field events are parsed from.
	UseSSH bool

	// Secret is the shared webhook HMAC secret.
	Secret string

	// DevMode disables signature authentication. Startup-only flag.
	DevMode bool

	limiters *ipLimiters
}

// New assembles the server from the loaded configuration and its
// collaborators.
func New(cfg *config.Config, builder *build.Builder, j *journal.Journal, gate *admission.Gate, logger *slog.Logger) *Server {
	s := &Server{
		Logger:  logger,
		Gate:    gate,
		Filter:  &event.Filter{Allow: cfg.RepoPattern, Ref: cfg.DeployRef},
		Builder: builder,
		Journal: j,
		Metrics: metrics.New(gate),
		UseSSH:  cfg.UseSSH,
		Secret:  cfg.WebhookSecret,
		DevMode: cfg.DevMode,

		limiters: newIPLimiters(webhookRateLimit),
	}

	if s.DevMode {
		logger.Warn("DEV MODE ENABLED: webhook signature authentication is bypassed")
	}
	return s
}

// Router wires the middleware in their fixed order: request id and real ip,
// then logging (which observes every final status), then panic recovery, and
// on the webhook route rate limiting, body materialization, and the
// signature gate in front of the core handler.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	// The webhook endpoint is logical, not path-bound: any POST is treated
	// as a delivery attempt.
	r.With(s.rateLimit, s.materializeBody, s.requireSignature).Post("/*", s.handleWebhook)

	return r
}

// Start runs the HTTP server until it fails. There is deliberately no write
// timeout; see the timeout constants.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.Logger.Info("listening", "addr", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: httpReadHeaderTimeout,
		IdleTimeout:       httpIdleTimeout,
	}
	return server.ListenAndServe()
}

// Close waits out detached deploys and releases the journal.
func (s *Server) Close() error {
	if s.Builder != nil && s.Builder.Deployer != nil {
		s.Builder.Deployer.WaitDetached()
	}
	if s.Journal != nil {
		return s.Journal.Close()
	}
	return nil
}
