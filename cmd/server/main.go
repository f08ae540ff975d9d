package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/ticket-sale-gate/internal/admission"
	"github.com/iliyamo/ticket-sale-gate/internal/broker"
	"github.com/iliyamo/ticket-sale-gate/internal/config"
	"github.com/iliyamo/ticket-sale-gate/internal/database"
	"github.com/iliyamo/ticket-sale-gate/internal/eventlog"
	"github.com/iliyamo/ticket-sale-gate/internal/handler"
	"github.com/iliyamo/ticket-sale-gate/internal/ingest"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
	"github.com/iliyamo/ticket-sale-gate/internal/middleware"
	"github.com/iliyamo/ticket-sale-gate/internal/reaper"
	"github.com/iliyamo/ticket-sale-gate/internal/repository"
	"github.com/iliyamo/ticket-sale-gate/internal/router"
	"github.com/iliyamo/ticket-sale-gate/internal/service"
	"github.com/iliyamo/ticket-sale-gate/internal/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config.LoadDotEnv()
	cfg := config.Load() // Load environment config
	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "ticket-sale-gate"})

	admCfg := config.LoadAdmissionConfig()
	brokerCfg := config.LoadBrokerConfig()
	kafkaCfg, err := config.LoadKafkaConfig()
	if err != nil {
		log.Fatal("invalid kafka config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName, database.Options{})
	if err != nil {
		log.Fatal("mysql connect failed", "error", err)
	}
	defer db.Close()

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Fatal("redis connect failed", "error", err)
	}
	defer rdb.Close()

	// engines
	events := repository.NewEventRepo(db)
	reservations := service.NewReservationService(db, admCfg.HoldTTL, log)
	engine := admission.NewEngine(rdb, admCfg)

	// outbound messaging
	producer := eventlog.NewProducer(eventlog.NewWriter(kafkaCfg, "", log), kafkaCfg.EnqueueTopic, kafkaCfg.ServedTopic)
	defer producer.Close()
	publisher := broker.NewPublisher(brokerCfg, log)
	defer publisher.Close()

	// background workers
	issuer := utils.NewJWTIssuer(cfg.JWTSecret, admCfg.AccessTTL)
	server := admission.NewServer(engine, events, issuer, producer, publisher, admCfg.ServeBatch, log)
	sched, err := reaper.NewScheduler(reaper.New(reservations, engine, events, publisher, admCfg, log), server, admCfg, log)
	if err != nil {
		log.Fatal("scheduler setup failed", "error", err)
	}
	sched.Start()
	log.Info("scheduler started", "jobs", sched.Jobs())

	reader := ingest.NewReader(kafkaCfg, log)
	dlq := eventlog.NewWriter(kafkaCfg, kafkaCfg.DLQTopic, log)
	pipeline := ingest.NewPipeline(reader, dlq, repository.NewQueueLogRepo(db), kafkaCfg, log)
	audit := broker.NewAuditConsumer(brokerCfg, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := pipeline.Run(ctx); err != nil {
			log.Error("ingest pipeline stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := audit.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("audit consumer stopped", "error", err)
		}
	}()

	// HTTP
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(log)
	e.Use(echomw.Recover())
	e.Use(requestLogger(log))

	limiter := middleware.NewRateLimiter(config.LoadRateLimitConfig(), rdb, log)
	cache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb, log)
	router.RegisterRoutes(e, handler.NewHealthHandler(db, engine))
	router.RegisterQueue(e, handler.NewQueueHandler(engine, producer, log), limiter.Middleware())
	router.RegisterPublic(e, handler.NewEventHandler(reservations), cache.Middleware())
	router.RegisterBooking(e, handler.NewBookingHandler(reservations, engine, publisher, log), cfg.JWTSecret)
	router.RegisterAdmin(e, handler.NewAdminHandler(events, engine, log), cfg.AdminKeyHash)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}
	if err := sched.Shutdown(); err != nil {
		log.Error("scheduler shutdown failed", "error", err)
	}
	wg.Wait()
	if err := reader.Close(); err != nil {
		log.Warn("kafka reader close failed", "error", err)
	}
	if err := dlq.Close(); err != nil {
		log.Warn("kafka dlq writer close failed", "error", err)
	}
	log.Info("stopped")
}

func requestLogger(log *logger.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				log.Warn("request", append(attrs, "error", v.Error)...)
				return nil
			}
			log.Info("request", attrs...)
			return nil
		},
	})
}
