package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"bills/internal/actions"
	"bills/internal/advisor"
	"bills/internal/metrics"
	"bills/internal/middleware/ratelimit"
	"bills/internal/middleware/security"
	"bills/internal/middleware/trace"
	"bills/internal/services"
	"bills/internal/storage"
)

const (
	shutdownTimeout  = 10 * time.Second
	limiterSweep     = 5 * time.Minute
	readHeaderLimit  = 5 * time.Second
	defaultActivity  = 50
	maxActivityLimit = 500
)

// Config holds the listener settings of the server.
type Config struct {
	Addr               string
	RateLimitPerMinute int
	CORSOrigin         string
}

// Deps are the services the handlers read from and dispatch to.
type Deps struct {
	Repo       *storage.SQLiteRepository
	Ledger     *services.Ledger
	Funds      *services.Funds
	Dispatcher *actions.Dispatcher
	Advisor    *advisor.Advisor
	Queue      ActionQueue
}

// ActionQueue hands action envelopes to the action worker. Nil disables
// the queue route.
type ActionQueue interface {
	PublishActionRequest(ctx context.Context, body []byte) error
}

type Server struct {
	http.Server
	deps    Deps
	limiter *ratelimit.Limiter
	started time.Time
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, deps Deps) *Server {
	mux := http.NewServeMux()
	clientIP := security.NewClientIP()

	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: readHeaderLimit,
		},
		deps:    deps,
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		started: time.Now(),
	}

	limit := s.limiter.Middleware(clientIP.Extract, func(w http.ResponseWriter, r *http.Request) {
		slog.WarnContext(r.Context(), "Rate limit exceeded", "client_ip", clientIP.Extract(r))
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	})
	cors := security.NewCORS(cfg.CORSOrigin).Middleware
	api := func(h http.HandlerFunc) http.Handler { return limit(h) }
	v1 := func(h http.HandlerFunc) http.Handler { return cors(limit(h)) }

	// Stable contract
	mux.Handle("GET /api/v1/summary", v1(s.handleSummary))
	mux.Handle("GET /api/v1/month", v1(s.handleMonth))
	mux.Handle("GET /api/v1/templates", v1(s.handleTemplates))
	mux.Handle("POST /api/v1/actions", v1(s.handleAction))
	mux.Handle("OPTIONS /api/v1/", cors(http.NotFoundHandler()))

	mux.Handle("POST /api/actions", api(s.handleAction))
	mux.Handle("POST /api/actions/queue", api(s.handleQueueAction))
	mux.Handle("GET /api/actions/{id}", api(s.handleGetAction))
	mux.Handle("GET /api/instances/{id}/events", api(s.handleInstanceEvents))
	mux.Handle("GET /api/activity", api(s.handleActivity))
	mux.Handle("GET /api/funds", api(s.handleFunds))
	mux.Handle("GET /api/funds/{id}/events", api(s.handleFundEvents))
	mux.Handle("GET /api/settings", api(s.handleSettings))
	mux.Handle("GET /api/month-settings", api(s.handleMonthSettings))
	mux.Handle("GET /api/backup/export", api(s.handleExport))
	mux.Handle("POST /api/backup/import", api(s.handleImport))

	mux.Handle("POST /internal/advisor/query", api(s.handleAdvisorQuery))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Handler = trace.NewMiddleware(clientIP.Extract).Middleware(headers.Middleware(mux))
	return s
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.limiter.Run(ctx, limiterSweep)
		return nil
	})
	g.Go(func() error {
		slog.InfoContext(ctx, "HTTP server listening", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.InfoContext(shutdownCtx, "HTTP server shutting down")
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// fail writes the response for err, logging the ones the caller cannot fix.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	res := FromError(err)
	if res.statusCode >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"path", r.URL.Path,
			"error", err)
	}
	res.Write(w)
}
