package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"snda-portal/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StoriesExchange receives every story relayed from the realtime feed
const StoriesExchange = "portal.stories"

// StoryEvent is the message body published for each relayed story
type StoryEvent struct {
	Type      string        `json:"type"`
	Story     *domain.Story `json:"story"`
	RelayedAt int64         `json:"relayed_at"`
}

type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	now     func() time.Time
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p := &Publisher{
		conn:    conn,
		channel: ch,
		now:     time.Now,
	}

	if err := p.Setup(); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// NewPublisherWithRetry keeps dialing until the broker accepts or ctx ends
func NewPublisherWithRetry(ctx context.Context, url string) (*Publisher, error) {
	delay := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		p, err := NewPublisher(url)
		if err == nil {
			return p, nil
		}

		slog.Warn("rabbitmq not ready, retrying",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gave up connecting to RabbitMQ after %d attempts: %w", attempt, err)
		case <-time.After(delay):
		}
		if delay < 8*time.Second {
			delay *= 2
		}
	}
}

func (p *Publisher) Setup() error {
	if err := p.channel.ExchangeDeclare(
		StoriesExchange, // name
		"fanout",        // type
		true,            // durable
		false,           // auto-deleted
		false,           // internal
		false,           // no-wait
		nil,             // arguments
	); err != nil {
		return fmt.Errorf("failed to declare stories exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully",
		slog.String("exchange", StoriesExchange))
	return nil
}

// PublishStory fans the story out to every bound queue
func (p *Publisher) PublishStory(ctx context.Context, story *domain.Story) error {
	msg, err := NewStoryPublishing(story, p.now())
	if err != nil {
		return err
	}

	if err := p.channel.PublishWithContext(ctx, StoriesExchange, "", false, false, msg); err != nil {
		return fmt.Errorf("failed to publish story: %w", err)
	}

	slog.Info("published story",
		slog.String("story_id", string(story.ID)),
		slog.String("story_type", story.StoryType))
	return nil
}

// NewStoryPublishing encodes story as a persistent JSON message
func NewStoryPublishing(story *domain.Story, now time.Time) (amqp.Publishing, error) {
	if story == nil || story.ID == "" {
		return amqp.Publishing{}, fmt.Errorf("story without id: %w", domain.ErrInvalidInput)
	}

	body, err := json.Marshal(StoryEvent{
		Type:      "story",
		Story:     story,
		RelayedAt: now.Unix(),
	})
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal story: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    string(story.ID),
		Timestamp:    now,
		Type:         "story",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}, nil
}

func (p *Publisher) IsClosed() bool {
	return p.conn == nil || p.conn.IsClosed()
}

func (p *Publisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
