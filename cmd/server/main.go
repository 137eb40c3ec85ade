package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"smshub/internal/api"
	"smshub/internal/channel/httpchan"
	"smshub/internal/channel/router"
	"smshub/internal/channel/smpp"
	"smshub/internal/channel/smpp/dlr"
	cfg "smshub/internal/config"
	"smshub/internal/domain"
	"smshub/internal/middleware"
	"smshub/internal/ports"
	"smshub/internal/queue/inproc"
	"smshub/internal/queue/rabbitmq"
	"smshub/internal/ratelimit"
	"smshub/internal/repository/postgres"
	"smshub/internal/tenant"
	"smshub/internal/worker"
)

// dlrStatusUpdater adapts the message repository to dlr.StatusUpdater,
// resolving a provider-assigned external id back to a message row.
type dlrStatusUpdater struct {
	repo ports.MessageRepository
	log  *slog.Logger
}

func (u *dlrStatusUpdater) ApplyDLR(externalID string, status domain.Status, providerStatus string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msg, err := u.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		return err
	}
	if !domain.CanTransition(msg.Status, status) {
		u.log.Warn("dlr: ignoring illegal status transition", "message_id", msg.ID, "from", msg.Status, "to", status)
		return nil
	}
	update := ports.StatusUpdate{Status: status}
	if status == domain.StatusFailed {
		errMsg := "SMSC delivery receipt: " + providerStatus
		update.ErrorMessage = &errMsg
	}
	return u.repo.UpdateStatus(ctx, msg.ID, update)
}

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	if err := run(log); err != nil {
		log.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	conf := cfg.FromEnv()

	registry, err := tenant.LoadFromFile(conf.TenantsPath)
	if err != nil {
		return errors.New("failed to load tenant config: " + err.Error())
	}
	log.Info("tenant registry loaded", "tenants", registry.Len())

	repo, err := postgres.New(conf.DatabaseURL)
	if err != nil {
		return errors.New("failed to connect to postgres: " + err.Error())
	}
	defer repo.Close()

	var publisher ports.MessagePublisher
	var consumer ports.MessageConsumer

	if conf.IsProduction() {
		rmqPublisher, err := rabbitmq.NewPublisher(conf.AMQPURL)
		if err != nil {
			return errors.New("failed to connect to rabbitmq: " + err.Error())
		}
		defer rmqPublisher.Close()
		publisher = rmqPublisher

		rmqConsumer, err := rabbitmq.NewConsumer(conf.AMQPURL, log)
		if err != nil {
			return errors.New("failed to connect to rabbitmq consumer: " + err.Error())
		}
		defer rmqConsumer.Close()
		consumer = rmqConsumer
	} else {
		q := inproc.New(log)
		defer q.Close()
		publisher = q
		consumer = q
	}

	limiter := ratelimit.New()
	defer limiter.Stop()

	correlator := dlr.New(&dlrStatusUpdater{repo: repo, log: log}, 24*time.Hour, log)
	defer correlator.Stop()

	httpChannel := httpchan.New(registry, limiter, log)
	smppChannel := smpp.New(registry, limiter, correlator, log)
	chanRouter := router.New(httpChannel, smppChannel)

	deliveryWorker := worker.New(repo, chanRouter, registry, log)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	workerErrCh := make(chan error, 1)
	go func() {
		log.Info("delivery worker started")
		if err := consumer.Consume(workerCtx, deliveryWorker.Handle); err != nil && workerCtx.Err() == nil {
			workerErrCh <- err
		}
	}()

	handler := api.NewHandler(repo, publisher, registry, log)

	fiberApp := fiber.New(fiber.Config{
		AppName:               "smshub",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           120 * time.Second,
		ServerHeader:          "",
		BodyLimit:             1 * 1024 * 1024,
	})

	fiberApp.Use(recover.New(recover.Config{EnableStackTrace: true}))
	fiberApp.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} ${latency}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	fiberApp.Use(middleware.RequestIDMiddleware())
	fiberApp.Use(middleware.SecurityHeaders())
	fiberApp.Use(middleware.CORSConfig())
	fiberApp.Use(middleware.DDoSProtection())

	ipLimiter := middleware.NewRateLimiter(600, time.Minute)
	fiberApp.Use(ipLimiter.Middleware())

	handler.Register(fiberApp)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("smshub server started", "addr", conf.HTTPAddr, "environment", conf.Environment)
		if err := fiberApp.Listen(conf.HTTPAddr); err != nil {
			httpErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-httpErrCh:
		return err
	case err := <-workerErrCh:
		log.Error("delivery worker stopped unexpectedly", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("failed to shut down http server gracefully", "error", err)
	}

	stopWorker()

	log.Info("disposing SMPP pools")
	smppChannel.Shutdown(5 * time.Second)

	log.Info("smshub server stopped gracefully")
	return nil
}
