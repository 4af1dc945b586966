package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"snda-portal/internal/domain"
	"snda-portal/internal/observability"
	"snda-portal/internal/realtime"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu      sync.Mutex
	stories []*domain.Story
	err     error
}

func (f *fakePublisher) PublishStory(ctx context.Context, story *domain.Story) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("publish without deadline")
	}
	if f.err != nil {
		return f.err
	}
	f.stories = append(f.stories, story)
	return nil
}

func feed(id, title string) domain.FeedMessage {
	return domain.FeedMessage{Wrapped: &domain.Story{ID: domain.ID(id), Title: title}}
}

func TestStoryHandler_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	published := observability.RelayPublished.WithLabelValues("published")
	ignored := observability.RelayPublished.WithLabelValues("ignored")
	beforePublished, beforeIgnored := testutil.ToFloat64(published), testutil.ToFloat64(ignored)

	h := storyHandler(context.Background(), pub)
	h(feed("1", "Shelter found"))
	h(domain.FeedMessage{Type: "heartbeat"})
	h(feed("2", ""))
	h(domain.FeedMessage{Story: domain.Story{ID: "3", Title: "Bare story"}})

	require.Len(t, pub.stories, 2)
	assert.Equal(t, domain.ID("1"), pub.stories[0].ID)
	assert.Equal(t, "Bare story", pub.stories[1].Title)
	assert.Equal(t, beforePublished+2, testutil.ToFloat64(published))
	assert.Equal(t, beforeIgnored+2, testutil.ToFloat64(ignored))
}

func TestStoryHandler_PublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	failed := observability.RelayPublished.WithLabelValues("failed")
	before := testutil.ToFloat64(failed)

	assert.NotPanics(t, func() {
		storyHandler(context.Background(), pub)(feed("1", "Shelter found"))
	})
	assert.Equal(t, before+1, testutil.ToFloat64(failed))
}

func TestStoryHandler_WithoutPublisherLogs(t *testing.T) {
	logged := observability.RelayPublished.WithLabelValues("logged")
	before := testutil.ToFloat64(logged)

	storyHandler(context.Background(), nil)(feed("9", "Logged only"))

	assert.Equal(t, before+1, testutil.ToFloat64(logged))
}

type stubChannel struct{ state realtime.State }

func (s stubChannel) State() realtime.State { return s.state }
func (s stubChannel) Retries() int          { return 0 }
func (s stubChannel) URL() string           { return "ws://relay.test/ws/stories/" }

type stubSession struct{}

func (stubSession) Loading() bool         { return false }
func (stubSession) IsAuthenticated() bool { return false }

func TestRouter(t *testing.T) {
	srv := httptest.NewServer(newRouter(stubChannel{state: realtime.Open}, nil, stubSession{}))
	defer srv.Close()

	for path, want := range map[string]int{
		"/health":       http.StatusOK,
		"/health/ready": http.StatusOK,
		"/metrics":      http.StatusOK,
		"/nope":         http.StatusNotFound,
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
}

func TestRouter_NotReadyWhileReconnecting(t *testing.T) {
	srv := httptest.NewServer(newRouter(stubChannel{state: realtime.Closed}, nil, stubSession{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRouter_MetricsExposeChannelState(t *testing.T) {
	observability.ChannelState.WithLabelValues("/ws/stories/").Set(float64(realtime.Open))
	srv := httptest.NewServer(newRouter(stubChannel{state: realtime.Open}, nil, stubSession{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body strings.Builder
	_, err = io.Copy(&body, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "portal_channel_state")
}
