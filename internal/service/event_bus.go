package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campusdesk-api/internal/observability"
)

const eventBufferSize = 32

// Domain event types.
const (
	EventAttendanceRecorded  = "attendance.recorded"
	EventAttendanceCorrected = "attendance.corrected"
	EventLoanCheckedOut      = "loan.checked_out"
	EventLoanReturned        = "loan.returned"
)

// LoansTopic carries every loan event.
const LoansTopic = "loans"

// SessionTopic returns the topic carrying attendance events of a class session.
func SessionTopic(sessionID uint) string {
	return fmt.Sprintf("session:%d", sessionID)
}

// DomainEvent is a change announced after it has been committed.
type DomainEvent struct {
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// EventPublisher announces committed changes.
type EventPublisher interface {
	Publish(ctx context.Context, topic, eventType string, payload interface{}) error
}

// EventBus fans domain events out to local subscribers and, when configured,
// to other API nodes over Redis pub/sub and NATS.
type EventBus interface {
	EventPublisher
	Subscribe(topic string) (<-chan DomainEvent, func())
	Start(ctx context.Context)
}

type eventBus struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	hub          *eventHub
	nodeID       string
	now          func() time.Time
}

type eventEnvelope struct {
	Source string      `json:"source"`
	Event  DomainEvent `json:"event"`
}

type eventHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan DomainEvent]struct{}
}

// NewEventBus constructs an event bus. Either broker client may be nil.
func NewEventBus(redisClient *redis.Client, natsConn *nats.Conn, channelBase string, logger zerolog.Logger) EventBus {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &eventBus{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "event_bus").Logger(),
		hub: &eventHub{
			subscribers: make(map[string]map[chan DomainEvent]struct{}),
		},
		nodeID: uuid.NewString(),
		now:    time.Now,
	}
}

func (b *eventBus) Start(ctx context.Context) {
	if b.redis != nil && b.redisChannel != "" {
		go b.consumeRedis(ctx)
	}
	if b.nats != nil && b.natsSubject != "" {
		go b.consumeNATS(ctx)
	}
}

func (b *eventBus) Publish(ctx context.Context, topic, eventType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	event := DomainEvent{
		Type:       eventType,
		Topic:      topic,
		OccurredAt: b.now().UTC(),
		Payload:    raw,
	}

	b.hub.broadcast(event)
	observability.EventsPublished().WithLabelValues(eventType, "local").Inc()

	return b.forward(ctx, event)
}

func (b *eventBus) Subscribe(topic string) (<-chan DomainEvent, func()) {
	channel := make(chan DomainEvent, eventBufferSize)
	b.hub.subscribe(topic, channel)

	var once sync.Once
	cleanup := func() {
		once.Do(func() { b.hub.unsubscribe(topic, channel) })
	}
	return channel, cleanup
}

func (b *eventBus) forward(ctx context.Context, event DomainEvent) error {
	if (b.redis == nil || b.redisChannel == "") && (b.nats == nil || b.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(eventEnvelope{Source: b.nodeID, Event: event})
	if err != nil {
		return err
	}

	if b.redis != nil && b.redisChannel != "" {
		if err := b.redis.Publish(ctx, b.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if b.nats != nil && b.natsSubject != "" {
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (b *eventBus) consumeRedis(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			b.logger.Error().Err(err).Msg("event redis subscription closed")
			return
		}
		b.handleRemote([]byte(msg.Payload))
	}
}

func (b *eventBus) consumeNATS(ctx context.Context) {
	// Each node needs every event for its own subscribers, so no queue group.
	sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
		b.handleRemote(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain events nats subscription")
		}
	}()
}

func (b *eventBus) handleRemote(payload []byte) {
	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		b.logger.Warn().Err(err).Msg("invalid event payload")
		return
	}

	if envelope.Source == b.nodeID || envelope.Event.Topic == "" {
		return
	}

	observability.EventsPublished().WithLabelValues(envelope.Event.Type, "remote").Inc()
	b.hub.broadcast(envelope.Event)
}

func (h *eventHub) subscribe(topic string, ch chan DomainEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.subscribers[topic]; !exists {
		h.subscribers[topic] = make(map[chan DomainEvent]struct{})
	}
	h.subscribers[topic][ch] = struct{}{}
}

func (h *eventHub) unsubscribe(topic string, ch chan DomainEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subscribers, ok := h.subscribers[topic]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(h.subscribers, topic)
		}
	}
}

func (h *eventHub) broadcast(event DomainEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[event.Topic] {
		select {
		case ch <- event:
		default:
		}
	}
}
