package main

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nayeem-hossain/coursebook/libs/config"
	"github.com/nayeem-hossain/coursebook/libs/db"
	"github.com/nayeem-hossain/coursebook/libs/httpx"
	"github.com/nayeem-hossain/coursebook/libs/kafkax"
	otelx "github.com/nayeem-hossain/coursebook/libs/otel"
	"github.com/nayeem-hossain/coursebook/libs/runtime"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/audit"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/booking"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/cache"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/escalation"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/handlers"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/identity"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/outbox"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/retry"
	"github.com/nayeem-hossain/coursebook/services/scheduling-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func parseSweepInterval(raw string, logger *slog.Logger) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		logger.Warn("invalid escalation sweep interval; using 1h", "value", raw)
		return time.Hour
	}
	return d
}

func parseThresholdHours(raw string, logger *slog.Logger) time.Duration {
	hours, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || hours <= 0 {
		logger.Warn("invalid escalation threshold hours; using 24", "value", raw)
		return 24 * time.Hour
	}
	return time.Duration(hours) * time.Hour
}

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8084")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	bookingRepo := storage.NewBookingRepository(pool)
	availabilityRepo := storage.NewAvailabilityRepository(pool)

	brokers := config.String("KAFKA_BROKERS", "")
	var outboxRepo *outbox.Repository
	if strings.TrimSpace(brokers) != "" {
		outboxRepo = outbox.NewRepository()
		outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
		})
		go outboxPublisher.Run(ctx)
	} else {
		logger.Warn("KAFKA_BROKERS not set; audit events stay local")
	}
	recorder := audit.NewRecorder(pool, outboxRepo)

	var listCache cache.Cache
	var createLimiter httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); strings.TrimSpace(addr) != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
		})
		listCache = cache.NewRedis(rdb)
		limiter := httpx.NewRedisRateLimiter(rdb, 30, time.Minute, service)
		createLimiter = limiter.Middleware(logger, true)
	} else {
		logger.Warn("REDIS_ADDR not set; listing cache disabled")
		createLimiter = httpx.NewRateLimiter(30, time.Minute).Middleware()
	}

	svc := booking.NewService(bookingRepo, availabilityRepo, recorder, logger)
	schedulingHandler := handlers.NewSchedulingHandler(svc, listCache, logger)

	sweeper := escalation.NewSweeper(bookingRepo, recorder, logger, escalation.Config{
		Threshold: parseThresholdHours(config.String("ESCALATION_THRESHOLD_HOURS", "24"), logger),
	})
	sweepEvery := parseSweepInterval(config.String("ESCALATION_SWEEP_INTERVAL", "1h"), logger)
	go func() {
		ticker := time.NewTicker(sweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := retry.Do(ctx, logger, retry.DefaultMaxAttempts, time.Second, sweeper.Run); err != nil {
					logger.Error("escalation sweep failed", "err", err)
				}
			}
		}
	}()

	api := http.NewServeMux()
	api.Handle("POST /api/v1/scheduling/bookings", createLimiter(http.HandlerFunc(schedulingHandler.CreateBooking)))
	api.HandleFunc("GET /api/v1/scheduling/bookings", schedulingHandler.ListBookings)
	api.HandleFunc("GET /api/v1/scheduling/bookings/weekly", schedulingHandler.ListWeekly)
	api.HandleFunc("PATCH /api/v1/scheduling/bookings/{id}/approve", schedulingHandler.ApproveBooking)
	api.HandleFunc("PATCH /api/v1/scheduling/bookings/{id}/assign", schedulingHandler.AssignInstructor)
	api.HandleFunc("PATCH /api/v1/scheduling/bookings/{id}/accept", schedulingHandler.AcceptBooking)
	api.HandleFunc("PATCH /api/v1/scheduling/bookings/{id}/complete", schedulingHandler.CompleteBooking)
	api.HandleFunc("PATCH /api/v1/scheduling/bookings/{id}/cancel", schedulingHandler.CancelBooking)
	api.HandleFunc("POST /api/v1/scheduling/availability", schedulingHandler.CreateAvailability)
	api.HandleFunc("GET /api/v1/scheduling/availability", schedulingHandler.ListAvailability)

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if strings.TrimSpace(brokers) != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/api/v1/scheduling/", identity.Middleware(api))

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
