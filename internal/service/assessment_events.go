package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/jobify-assessment-api/internal/observability"
)

// Event kinds published after state changes.
const (
	EventKindSubmitted = "submitted"
	EventKindFlagged   = "flagged"
)

// AssessmentEvent is the advisory message other services may consume, for
// example to send the candidate an email.
type AssessmentEvent struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	AttemptID     uint      `json:"attempt_id"`
	ApplicationID uint      `json:"application_id"`
	UserID        uint      `json:"user_id"`
	Score         *float64  `json:"score,omitempty"`
	Flagged       bool      `json:"flagged"`
	FlagReason    string    `json:"flag_reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// EventPublisher fans events out. Publishing never fails the caller.
type EventPublisher interface {
	Publish(ctx context.Context, event AssessmentEvent)
}

type eventPublisher struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
}

// NewEventPublisher publishes to Redis pub/sub and NATS, whichever is configured.
func NewEventPublisher(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) EventPublisher {
	channelBase = strings.Trim(channelBase, ": ")
	if channelBase == "" {
		channelBase = "jobify:assessment"
	}
	return &eventPublisher{
		redis:        redisClient,
		redisChannel: channelBase,
		nats:         natsConn,
		natsSubject:  strings.ReplaceAll(channelBase, ":", "."),
		logger:       logger.With().Str("component", "assessment_events").Logger(),
	}
}

func (p *eventPublisher) Publish(ctx context.Context, event AssessmentEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("kind", event.Kind).Msg("failed to encode assessment event")
		return
	}

	if p.redis != nil {
		channel := p.redisChannel + ":" + event.Kind
		if err := p.redis.Publish(ctx, channel, payload).Err(); err != nil {
			observability.EventsPublished().WithLabelValues(event.Kind, "redis_error").Inc()
			p.logger.Warn().Err(err).Str("channel", channel).Msg("failed to publish assessment event to redis")
		} else {
			observability.EventsPublished().WithLabelValues(event.Kind, "redis").Inc()
		}
	}

	if p.nats != nil {
		subject := p.natsSubject + "." + event.Kind
		if err := p.nats.Publish(subject, payload); err != nil {
			observability.EventsPublished().WithLabelValues(event.Kind, "nats_error").Inc()
			p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish assessment event to nats")
		} else {
			observability.EventsPublished().WithLabelValues(event.Kind, "nats").Inc()
		}
	}
}
