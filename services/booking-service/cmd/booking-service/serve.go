package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/clinicsched/clinicsched/libs/config"
	"github.com/clinicsched/clinicsched/libs/db"
	"github.com/clinicsched/clinicsched/libs/grpcx"
	"github.com/clinicsched/clinicsched/libs/httpx"
	"github.com/clinicsched/clinicsched/libs/kafkax"
	otelx "github.com/clinicsched/clinicsched/libs/otel"
	"github.com/clinicsched/clinicsched/libs/runtime"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/availability"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/booking"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/cache"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/handlers"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/metrics"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/outbox"
	"github.com/clinicsched/clinicsched/services/booking-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and optional gRPC health endpoint)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	service, logger := serviceLogger()

	port, err := config.Port("PORT", "8080")
	if err != nil {
		return err
	}

	ctx, stop := runtime.SignalContext(parent)
	defer stop()

	shutdownTracing, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	pool, err := openPool(ctx)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		return err
	}
	defer pool.Close()

	enc, err := phiEncryptor()
	if err != nil {
		logger.Error("phi encryptor setup failed", "err", err)
		return err
	}

	checks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	providerRepo := storage.NewProviderRepository(pool)
	patientRepo := storage.NewPatientRepository(pool, enc)
	appointmentRepo := storage.NewAppointmentRepository(pool)
	outboxRepo := outbox.NewRepository()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(reg)

	var (
		providerLookup availability.ProviderStore = providerRepo
		invalidator    handlers.ProviderInvalidator
		rateLimit      httpx.Middleware
	)

	perMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 600)
	if err != nil {
		return err
	}

	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		defer func() { _ = rdb.Close() }()

		ttl, err := config.Duration("PROVIDER_CACHE_TTL", cache.DefaultTTL)
		if err != nil {
			return err
		}
		providerCache := cache.NewProviderCache(providerRepo, rdb, ttl, logger)
		providerLookup = providerCache
		invalidator = providerCache
		rateLimit = httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "ratelimit:booking").
			Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))

		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("redis enabled", "addr", addr, "provider_cache_ttl", ttl.String())
	} else {
		rateLimit = httpx.NewRateLimiter(perMinute, time.Minute).Middleware()
	}

	bookingSvc := booking.NewService(pool, providerRepo, appointmentRepo, outboxRepo, logger,
		booking.WithProviderLookup(providerLookup),
		booking.WithMetrics(bookingMetrics),
	)

	api := handlers.NewAPI(handlers.Deps{
		Providers:    providerRepo,
		Patients:     patientRepo,
		Appointments: appointmentRepo,
		Scheduler:    bookingSvc,
		Cache:        invalidator,
		Logger:       logger,
	})

	brokers := config.String("KAFKA_BROKERS", "")
	if brokers != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	if err := startOutbox(ctx, pool, outboxRepo, logger, brokers); err != nil {
		return err
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/api/", httpx.Chain(api.Routes(), rateLimit))

	requestTimeout, err := config.Duration("HTTP_REQUEST_TIMEOUT", 15*time.Second)
	if err != nil {
		return err
	}
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(requestTimeout),
	)

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(handler, "http.server"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if grpcPort := config.String("GRPC_PORT", ""); grpcPort != "" {
		lis, err := net.Listen("tcp", ":"+grpcPort)
		if err != nil {
			logger.Error("grpc listen failed", "err", err)
			return err
		}
		gs := grpcx.NewServer(logger)
		gs.SetServing(service, true)
		go func() {
			logger.Info("grpc health listening", "addr", lis.Addr().String())
			if err := gs.Serve(ctx, lis); err != nil {
				logger.Error("grpc server failed", "err", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("service starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", "err", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
		return err
	}
	logger.Info("service stopped")
	return nil
}

func startOutbox(ctx context.Context, pool *db.Pool, repo *outbox.Repository, logger *slog.Logger, brokers string) error {
	pollEvery, err := config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return err
	}
	batchSize, err := config.Int("OUTBOX_BATCH_SIZE", 50)
	if err != nil {
		return err
	}
	publisher := outbox.NewPublisher(pool, repo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: pollEvery,
		BatchSize: batchSize,
	})
	go publisher.Run(ctx)

	retention, err := config.Duration("OUTBOX_RETENTION", outbox.DefaultRetention)
	if err != nil {
		return err
	}
	pruner, err := outbox.NewPruner(pool, repo, logger,
		config.String("OUTBOX_PRUNE_SCHEDULE", outbox.DefaultPruneSchedule), retention)
	if err != nil {
		return err
	}
	go func() {
		if err := pruner.Run(ctx); err != nil {
			logger.Error("outbox pruner stopped", "err", err)
		}
	}()
	return nil
}
