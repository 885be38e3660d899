package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/no-end-to-learning/notify/docs"
	"github.com/no-end-to-learning/notify/internal/api"
	"github.com/no-end-to-learning/notify/internal/config"
	"github.com/no-end-to-learning/notify/internal/ingest"
	"github.com/no-end-to-learning/notify/internal/logging"
	mw "github.com/no-end-to-learning/notify/internal/middleware"
	"github.com/no-end-to-learning/notify/internal/notifications"
	"github.com/no-end-to-learning/notify/internal/notifications/channels"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build channel registry", zap.Error(err))
	}
	logger.Info("channels registered", zap.Any("channels", registry.Channels()))

	dispatcher := notifications.NewDispatcher(registry, logger)

	// Kafka alert ingestion
	var consumer *ingest.Consumer
	if cfg.Kafka.Enabled() {
		sub, err := ingest.NewKafkaSubscriber(ingest.KafkaConfig{
			Brokers:       cfg.Kafka.Brokers,
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
		}, logger)
		if err != nil {
			logger.Fatal("failed to create kafka subscriber", zap.Error(err))
		}
		consumer = ingest.NewConsumer(sub, dispatcher, cfg.Kafka.AlertTopic, logger)
		if err := consumer.Start(); err != nil {
			logger.Fatal("failed to start alert consumer", zap.Error(err))
		}
	} else {
		logger.Info("KAFKA_BROKERS not set, alert ingestion over kafka disabled")
	}

	srv := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        newRouter(dispatcher, logger),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   cfg.HTTPClientTimeout + 15*time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if consumer != nil {
			if err := consumer.Stop(); err != nil {
				logger.Warn("alert consumer shutdown", zap.Error(err))
			}
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("server starting", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}

// buildRegistry creates a backend for every configured channel. WeCom needs
// no credentials and is always present.
func buildRegistry(cfg *config.Config, logger *zap.Logger) (*notifications.Registry, error) {
	var services []notifications.NotifyService

	if cfg.Lark.Enabled() {
		lark, err := channels.NewLarkService(channels.LarkConfig{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
			BaseURL:   cfg.Lark.BaseURL,
			Timeout:   cfg.HTTPClientTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		services = append(services, lark)
	} else {
		logger.Info("LARK_APP_ID/LARK_APP_SECRET not set, lark channel disabled")
	}

	wecom, err := channels.NewWecomService(channels.WecomConfig{
		WebhookURL: cfg.Wecom.WebhookURL,
		Timeout:    cfg.HTTPClientTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	services = append(services, wecom)

	if cfg.Telegram.Enabled() {
		tg, err := channels.NewTelegramService(channels.TelegramConfig{
			BotToken: cfg.Telegram.BotToken,
			BaseURL:  cfg.Telegram.BaseURL,
			Timeout:  cfg.HTTPClientTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		services = append(services, tg)
	}

	return notifications.NewRegistry(services...)
}

func newRouter(dispatcher *notifications.Dispatcher, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(mw.RequestID())
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.Recoverer(logger))

	api.NewHandlers(dispatcher, logger).RegisterRoutes(r)
	docs.RegisterRoutes(r)
	return r
}
