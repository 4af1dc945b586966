// feed-relay follows the public story channel and republishes every story to
// RabbitMQ, exposing health and metrics endpoints for its own supervision.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"snda-portal/internal/app"
	"snda-portal/internal/config"
	"snda-portal/internal/domain"
	"snda-portal/internal/handler"
	"snda-portal/internal/messaging"
	"snda-portal/internal/observability"
	"snda-portal/internal/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	observability.InitLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting feed relay",
		slog.String("api", cfg.APIBaseURL),
		slog.String("feed_path", cfg.FeedPath),
		slog.String("store", cfg.StoreDriver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise session", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sess.Close()

	restoreCtx, restoreCancel := context.WithTimeout(ctx, 30*time.Second)
	sess.Manager.Restore(restoreCtx)
	restoreCancel()
	if user := sess.Manager.CurrentUser(); user != nil {
		slog.Info("relay session restored", slog.String("username", user.Username))
	} else {
		slog.Info("relay following feed anonymously")
	}

	var publisher StoryPublisher
	var broker handler.BrokerProbe
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err := messaging.NewPublisherWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()
		publisher, broker = rmq, rmq
	} else {
		slog.Warn("RABBITMQ_URL not set, stories will only be logged")
	}

	header := http.Header{}
	if token, ok := sess.Manager.AccessToken(ctx); ok {
		header.Set("Authorization", "Bearer "+token)
	}

	channel := realtime.Dial[domain.FeedMessage](ctx, cfg.FeedPath, storyHandler(ctx, publisher),
		realtime.WithOrigin(cfg.APIBaseURL),
		realtime.WithFallbackOrigin(cfg.PublicOrigin),
		realtime.WithHeader(header),
	)
	slog.Info("feed channel started", slog.String("url", channel.URL()))

	srv := &http.Server{
		Addr:         ":" + cfg.RelayPort,
		Handler:      newRouter(channel, broker, sess.Manager),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("relay listening", slog.String("port", cfg.RelayPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down relay")

	if err := channel.Close(); err != nil {
		slog.Warn("channel close error", slog.String("error", err.Error()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()

	slog.Info("relay stopped gracefully")
}
