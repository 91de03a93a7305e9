// Package server exposes a world's store over HTTP for inspection and manual transaction control.
package server

import (
	"context"
	"net"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/argus-labs/tabletop/server/handler"
	"github.com/argus-labs/tabletop/server/types"
)

const shutdownTimeout = 5 * time.Second

type Config struct {
	Port string `env:"TABLETOP_HTTP_PORT" envDefault:"4040"`
}

type Server struct {
	app      *fiber.App
	provider types.Provider
	gatherer prometheus.Gatherer
	log      zerolog.Logger
	config   Config
}

type Option func(*Server)

func WithLogger(log zerolog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithGatherer serves /metrics from g. Without it the route is not registered.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

func WithPort(port string) Option {
	return func(s *Server) {
		s.config.Port = port
	}
}

// New builds the HTTP server for p. The port comes from the environment unless WithPort overrides it.
func New(p types.Provider, opts ...Option) (*Server, error) {
	if p == nil {
		return nil, eris.New("server requires a non-nil provider")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse server config")
	}

	app := fiber.New(fiber.Config{
		Network:               "tcp",
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
	app.Use(recover.New())

	s := &Server{app: app, provider: p, log: zerolog.Nop(), config: cfg}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s, nil
}

// App returns the underlying fiber app. Tests drive it through app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve listens until ctx is cancelled and then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.config.Port)
	if err != nil {
		return eris.Wrapf(err, "failed to listen on port %s", s.config.Port)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		s.log.Info().Str("addr", ln.Addr().String()).Msg("starting HTTP server")
		if err := s.app.Listener(ln); err != nil {
			return eris.Wrap(err, "HTTP server failed")
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
		case <-done:
			return nil
		}
		s.log.Info().Msg("shutting down HTTP server")
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return eris.Wrap(err, "failed to shut down HTTP server")
		}
		return nil
	})
	return g.Wait()
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", handler.GetHealth(s.provider))

	s.app.Get("/entities", handler.GetEntities(s.provider))
	s.app.Get("/entities/:id", handler.GetEntity(s.provider))

	s.app.Get("/snapshot", handler.GetSnapshot(s.provider))
	s.app.Post("/reconcile", handler.PostReconcile(s.provider))

	s.app.Get("/pending", handler.GetPending(s.provider))
	s.app.Post("/commit", handler.PostCommit(s.provider))
	s.app.Post("/rollback", handler.PostRollback(s.provider))

	if s.gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}
