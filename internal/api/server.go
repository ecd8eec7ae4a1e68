package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pycoderabhishek/ChetanTheRobot/internal/config"
	"github.com/pycoderabhishek/ChetanTheRobot/internal/metrics"
)

// Server wraps the composed chi router and http.Server. Construction is
// the composition root's only job: everything it wires is passed in
// already built, never reached for globally.
type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// ServerOptions carries every collaborator the HTTP surface needs.
type ServerOptions struct {
	Config *config.Config

	Store    HealthStoreFull
	Registry DevicesSource
	Router   CommandDispatcher
	Sessions SessionAcceptor
	Audio    AudioProcessor

	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

// HealthStoreFull is the union of every store interface the read-side API
// needs, satisfied by *store.DB.
type HealthStoreFull interface {
	HealthStore
	CommandLogStore
	HistoryStore
	TranscriptStore
}

func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()

	var corsOrigins []string
	if opts.Config.CORSOrigins != "" {
		for _, o := range strings.Split(opts.Config.CORSOrigins, ",") {
			if s := strings.TrimSpace(o); s != "" {
				corsOrigins = append(corsOrigins, s)
			}
		}
	}

	r.Use(RequestID)
	r.Use(CORSWithOrigins(corsOrigins))
	r.Use(RateLimiter(opts.Config.RateLimitRPS, opts.Config.RateLimitBurst))
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))

	health := NewHealthHandler(opts.Store, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)

	if opts.Config.MetricsEnabled {
		if live, ok := opts.Registry.(metrics.LiveStats); ok {
			collector := metrics.NewCollector(live)
			prometheus.MustRegister(collector)
		}
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	// The bidirectional device channel is unauthenticated by design
	// (spec.md §9 non-goal: "no authentication of devices beyond
	// identifier assertion on connect"), so it sits outside the
	// authenticated group entirely.
	NewWebSocketHandler(opts.Sessions).Routes(r)

	r.Group(func(r chi.Router) {
		r.Use(MaxBodySize(10 << 20))
		if opts.Config.MetricsEnabled {
			r.Use(metrics.InstrumentHandler)
		}
		r.Use(BearerAuth(opts.Config.AuthToken, opts.Config.JWTSigningKey))
		r.Use(WriteAuth(opts.Config.WriteToken))
		r.Use(ResponseTimeout(opts.Config.RequestTimeout()))

		r.Route("/api/v1", func(r chi.Router) {
			NewDevicesHandler(opts.Registry).Routes(r)
			NewCommandsHandler(opts.Router, opts.Store, opts.Config.DefaultReadLimit, opts.Config.MaxReadLimit).Routes(r)
			NewHistoryHandler(opts.Store, opts.Config.DefaultReadLimit, opts.Config.MaxReadLimit).Routes(r)
			NewTranscriptsHandler(opts.Store, opts.Config.DefaultReadLimit, opts.Config.MaxReadLimit).Routes(r)
			NewAudioHandler(opts.Audio, 32<<20).Routes(r)
			if opts.Config.JWTSigningKey != "" {
				NewAuthHandler(opts.Config.JWTSigningKey, opts.Config.AuthToken, opts.Config.JWTTTL()).Routes(r)
			}
		})
	})

	srv := &http.Server{
		Addr:         opts.Config.ListenAddr(),
		Handler:      r,
		ReadTimeout:  opts.Config.RequestTimeout(),
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{http: srv, log: opts.Log}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
