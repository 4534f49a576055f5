package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/pdfquiz/internal/api"
	"github.com/victornm/pdfquiz/internal/app"
	"github.com/victornm/pdfquiz/internal/event"
	"github.com/victornm/pdfquiz/internal/extract"
	"github.com/victornm/pdfquiz/internal/library"
	"github.com/victornm/pdfquiz/internal/score"
	"github.com/victornm/pdfquiz/internal/store"
	"github.com/victornm/pdfquiz/internal/telemetry"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	CORS struct {
		AllowedOrigins []string
	}

	Store struct {
		// Driver is one of memory, redis, postgres or sqlite.
		Driver string

		Redis struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Postgres struct {
			Addr string
			User string
			Pass string
			Name string
		}

		SQLite struct {
			DSN string
		}
	}

	Extract struct {
		PDFToText struct {
			Path string
		}

		Gemini struct {
			Endpoint string
			Model    string
			APIKey   string
			Timeout  time.Duration
		}
	}
}

// DefaultConfig runs locally on a SQLite file.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.CORS.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	c.Store.Driver = DriverSQLite
	c.Store.Redis.Prefix = "pdfquiz"
	c.Extract.Gemini.Timeout = 5 * time.Minute
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		kv      store.KV
		closers []func()
	}

	service struct {
		library *library.Service
		results *score.Store
		app     *app.App
	}

	api  *api.API
	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	telemetry.RecordEvents(s.eb)

	if err := s.initInfra(); err != nil {
		s.closeInfra()
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch d := s.c.Store.Driver; d {
	case DriverMemory:
		s.infra.kv = store.NewMemory()
	case DriverRedis:
		s.infra.kv, err = s.initRedis(ctx)
	case DriverPostgres:
		s.infra.kv, err = s.initPostgres(ctx)
	case DriverSQLite, "":
		s.infra.kv, err = s.initSQLite(ctx)
	default:
		err = fmt.Errorf("unknown store driver %q", d)
	}
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	slog.InfoContext(ctx, "server: store ready", "driver", s.c.Store.Driver)
	return nil
}

func (s *Server) initRedis(ctx context.Context) (store.KV, error) {
	c := s.c.Store.Redis

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    c.Addrs,
		Password: c.Pass,
	})
	s.infra.closers = append(s.infra.closers, func() { _ = r.Close() })

	if err := telemetry.MonitorRedis(r); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	return store.NewRedis(r, c.Prefix), nil
}

func (s *Server) initPostgres(ctx context.Context) (store.KV, error) {
	c := s.c.Store.Postgres

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", c.User, c.Pass, c.Addr, c.Name))
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	s.infra.closers = append(s.infra.closers, db.Close)

	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}

	return store.NewPostgres(ctx, db)
}

func (s *Server) initSQLite(ctx context.Context) (store.KV, error) {
	db, err := store.OpenSQLite(ctx, s.c.Store.SQLite.DSN)
	if err != nil {
		return nil, err
	}
	s.infra.closers = append(s.infra.closers, func() { _ = db.Close() })

	return db, nil
}

func (s *Server) initService() {
	s.service.library = library.NewService(library.Config{
		KV:       s.infra.kv,
		EventBus: s.eb,
	})

	s.service.results = score.NewStore(score.Config{
		KV: s.infra.kv,
	})

	g := s.c.Extract.Gemini
	s.service.app = app.New(app.Config{
		Text: extract.PDFToText{Path: s.c.Extract.PDFToText.Path},
		Questions: extract.NewGemini(extract.GeminiConfig{
			Endpoint: g.Endpoint,
			Model:    g.Model,
			APIKey:   g.APIKey,
			Timeout:  g.Timeout,
		}),
		Library:  s.service.library,
		Results:  s.service.results,
		EventBus: s.eb,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery(), telemetry.RequestLogger())

	s.api = api.New(api.Config{
		Router:   e,
		EventBus: s.eb,
		App:      s.service.app,
	})

	h := cors.Handler(cors.Options{
		AllowedOrigins:   s.c.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	})(e)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           h,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.api.Notifier().Close()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.service.app.Close()
	s.eb.Stop()
	s.closeInfra()

	slog.InfoContext(ctx, "server: shutdown completed")
}

func (s *Server) closeInfra() {
	for i := len(s.infra.closers) - 1; i >= 0; i-- {
		s.infra.closers[i]()
	}
	s.infra.closers = nil
}
