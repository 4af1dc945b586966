package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"snda-portal/internal/domain"
	"snda-portal/internal/handler"
	"snda-portal/internal/middleware"
	"snda-portal/internal/observability"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const publishTimeout = 5 * time.Second

// StoryPublisher forwards relayed stories; *messaging.Publisher satisfies it
type StoryPublisher interface {
	PublishStory(ctx context.Context, story *domain.Story) error
}

// storyHandler returns the channel handler. With a nil publisher stories are
// only logged.
func storyHandler(ctx context.Context, pub StoryPublisher) func(domain.FeedMessage) {
	return func(msg domain.FeedMessage) {
		story, ok := msg.ExtractStory()
		if !ok {
			observability.RelayPublished.WithLabelValues("ignored").Inc()
			slog.Debug("ignoring feed message without story", slog.String("type", msg.Type))
			return
		}

		if pub == nil {
			observability.RelayPublished.WithLabelValues("logged").Inc()
			slog.Info("story received",
				slog.String("story_id", string(story.ID)),
				slog.String("title", story.Title))
			return
		}

		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := pub.PublishStory(pctx, story); err != nil {
			observability.RelayPublished.WithLabelValues("failed").Inc()
			slog.Error("failed to relay story",
				slog.String("error", err.Error()),
				slog.String("story_id", string(story.ID)))
			return
		}
		observability.RelayPublished.WithLabelValues("published").Inc()
	}
}

func newRouter(channel handler.ChannelProbe, broker handler.BrokerProbe, session handler.SessionProbe) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Metrics())

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(channel, broker, session))
	r.Handle("/metrics", promhttp.Handler())

	return r
}
