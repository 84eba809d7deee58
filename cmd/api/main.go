package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/wanderpath/booking-api/internal/app"
	"github.com/wanderpath/booking-api/internal/clock"
	"github.com/wanderpath/booking-api/internal/config"
	"github.com/wanderpath/booking-api/internal/identity"
	"github.com/wanderpath/booking-api/internal/metrics"
	"github.com/wanderpath/booking-api/internal/provider"
	"github.com/wanderpath/booking-api/internal/storage/postgres"
	transporthttp "github.com/wanderpath/booking-api/internal/transport/http"
	"github.com/wanderpath/booking-api/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("load config")
	}

	logger := newLogger(cfg)
	metrics.Register()

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect to db")
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		logger.Fatal().Err(err).Msg("db ping")
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	clk := clock.NewSystem()
	bookingRepo := postgres.NewBookingRepository(pool)
	bookingSvc := app.NewBookingService(bookingRepo, clk,
		app.WithProviderAdapter(provider.Noop{}),
		app.WithBookingLogger(logger),
	)
	availabilitySvc := app.NewAvailabilityService(postgres.NewAvailabilityRepository(pool))
	affiliateSvc := app.NewAffiliateService(postgres.NewAffiliateRepository(pool), clk, cfg.Affiliate)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", transporthttp.HealthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/availability", transporthttp.HandleAvailability(availabilitySvc))
	mux.Handle("/bookings", transporthttp.HandleCreateBooking(bookingSvc))
	mux.Handle("/bookings/confirm", transporthttp.HandleConfirmBooking(bookingSvc))
	mux.Handle("/bookings/cancel", transporthttp.HandleCancelBooking(bookingSvc))
	mux.Handle("/bookings/", transporthttp.HandleGetBooking(bookingSvc))
	mux.Handle("/affiliate/links", transporthttp.HandleGenerateLink(affiliateSvc))
	mux.Handle("/affiliate/track/", transporthttp.HandleTrackClick(affiliateSvc))
	mux.Handle("/affiliate/conversions", transporthttp.HandleRecordConversion(affiliateSvc))
	mux.Handle("/affiliate/conversions/status", transporthttp.HandleConversionStatus(affiliateSvc))
	mux.Handle("/affiliate/summary", transporthttp.HandleAffiliateSummary(affiliateSvc))
	mux.Handle("/", transporthttp.NotFoundHandler())

	var handler http.Handler = mux
	handler = transporthttp.WithIdentity(identity.Anonymous{}, handler)
	handler = transporthttp.CORS(cfg.HTTP.CORSOrigins, handler)
	if cfg.RateLimit.Enabled {
		handler = transporthttp.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst, handler)
	}
	handler = transporthttp.RequestLogger(handler, logger)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Holds.SweepEnabled {
		sweeper := app.NewHoldSweeper(bookingSvc, bookingRepo, clk, logger,
			app.WithHoldTTL(cfg.Holds.TTL),
			app.WithSweepInterval(cfg.Holds.SweepInterval),
		)
		go sweeper.Run(runCtx)
		logger.Info().Dur("ttl", cfg.Holds.TTL).Msg("hold sweeper enabled")
	}

	server := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: handler,
	}

	logger.Info().Str("port", cfg.HTTP.Port).Msg("api listening")

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-runCtx.Done():
		logger.Info().Msg("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	logger.Info().Msg("server stopped")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Logging.Level))); err == nil {
		level = parsed
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Environment).
		Logger()

	if strings.EqualFold(cfg.Logging.Format, "console") {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	return logger
}
