package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/neomorfeo/orgstate/internal/adapter/auth"
	"github.com/neomorfeo/orgstate/internal/adapter/cache"
	"github.com/neomorfeo/orgstate/internal/adapter/fsm"
	otelAdapter "github.com/neomorfeo/orgstate/internal/adapter/otel"
	riverAdapter "github.com/neomorfeo/orgstate/internal/adapter/river"
	"github.com/neomorfeo/orgstate/internal/adapter/sqlite"
	"github.com/neomorfeo/orgstate/internal/app"
	"github.com/neomorfeo/orgstate/internal/config"
	"github.com/neomorfeo/orgstate/internal/domain"
	"github.com/neomorfeo/orgstate/internal/logger"

	handler "github.com/neomorfeo/orgstate/internal/adapter/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, cfg)
	},
}

// run wires every adapter and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// --- OpenTelemetry ---
	otelCfg := otelAdapter.FromConfig(cfg, version)
	providers, err := otelAdapter.Setup(ctx, otelCfg)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warn("otel shutdown", zap.Error(err))
		}
	}()

	// --- Adapters (out) ---
	db, err := otelAdapter.OpenDB(cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	repo := otelAdapter.NewTracingRepository(store)
	members := sqlite.NewMemberships(db)
	jwt := auth.New(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)

	var (
		sink     domain.Invalidator = &logInvalidator{logger: log}
		tagCache *cache.TagInvalidator
	)
	if cfg.Redis.Addr != "" {
		rdb, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer rdb.Close()
		tagCache = cache.New(rdb, cache.WithChannel(cfg.Redis.Channel), cache.WithLogger(log))
		sink = tagCache
	}

	traced, err := otelAdapter.NewTracingInvalidator(sink)
	if err != nil {
		return fmt.Errorf("invalidation metrics: %w", err)
	}

	var (
		invalidator domain.Invalidator = traced
		jobs        *riverAdapter.Client
	)
	if cfg.Invalidation.Mode == "river" {
		jobs, err = riverAdapter.Setup(ctx, db, traced, log)
		if err != nil {
			return fmt.Errorf("river setup: %w", err)
		}
		invalidator = riverAdapter.NewEnqueuer(jobs)
	}

	// --- Application ---
	pipeline := app.NewPipeline(repo, fsm.New(), jwt, members, invalidator,
		app.WithInvalidationTimeout(cfg.Invalidation.Timeout),
	)

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(otelchi.Middleware(otelCfg.ServiceName, otelchi.WithChiRoutes(router)))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(log))
	router.Use(auth.Middleware)

	api := humachi.New(router, huma.DefaultConfig("orgstate", version))
	handler.Register(api, pipeline)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("orgstate listening",
			zap.String("addr", srv.Addr),
			zap.String("docs", "http://localhost:"+cfg.HTTP.Port+"/docs"),
			zap.String("invalidation", cfg.Invalidation.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	if jobs != nil {
		g.Go(func() error {
			if err := jobs.Start(gctx); err != nil {
				return fmt.Errorf("river start: %w", err)
			}
			<-gctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return jobs.Stop(stopCtx)
		})
	}

	if tagCache != nil {
		g.Go(func() error {
			return watchInvalidations(gctx, tagCache, log)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("stopped")
	return nil
}

// requestLogger stores a request-scoped logger in the context so the
// pipeline's log lines carry the request id and trace ids.
func requestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			ctx := logger.WithContext(r.Context(),
				base.With(zap.String("request_id", middleware.GetReqID(r.Context()))))
			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.FromContext(ctx).Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

// invalidationFeed delivers invalidation messages published by any instance.
type invalidationFeed interface {
	Subscribe(ctx context.Context, fn func(cache.Message)) error
}

// watchInvalidations logs every invalidation seen on the channel until ctx
// ends. A lost subscription is logged and does not stop the server.
func watchInvalidations(ctx context.Context, feed invalidationFeed, log *zap.Logger) error {
	err := feed.Subscribe(ctx, func(m cache.Message) {
		log.Debug("cache invalidation received",
			zap.Strings("tags", m.Tags),
			zap.Time("published_at", time.Unix(0, m.Timestamp)),
		)
	})
	if err != nil && ctx.Err() == nil {
		log.Warn("cache invalidation feed stopped", zap.Error(err))
	}
	return nil
}

// logInvalidator stands in for the Redis cache when none is configured.
type logInvalidator struct {
	logger *zap.Logger
}

func (l *logInvalidator) Invalidate(_ context.Context, tags []domain.CacheTag) error {
	l.logger.Info("cache tags invalidated", zap.Strings("tags", domain.TagStrings(tags)))
	return nil
}
