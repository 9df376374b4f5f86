package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/campusdesk-api/internal/observability"
	"github.com/noah-isme/campusdesk-api/internal/service"
)

const liveWriteTimeout = 5 * time.Second

// EventSubscriber hands out event streams per topic.
type EventSubscriber interface {
	Subscribe(topic string) (<-chan service.DomainEvent, func())
}

// LiveHandler streams domain events to live boards over websockets.
type LiveHandler struct {
	events EventSubscriber
	logger zerolog.Logger
}

// NewLiveHandler constructs the live board handler.
func NewLiveHandler(events EventSubscriber, logger zerolog.Logger) *LiveHandler {
	return &LiveHandler{
		events: events,
		logger: logger.With().Str("component", "live_handler").Logger(),
	}
}

// Register binds the websocket routes under the provided router group.
func (h *LiveHandler) Register(router fiber.Router) {
	router.Use(func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/sessions/:id/ws", websocket.New(h.sessionStream))
	router.Get("/loans/ws", websocket.New(h.loanStream))
}

func (h *LiveHandler) sessionStream(conn *websocket.Conn) {
	id, err := strconv.ParseUint(conn.Params("id"), 10, 64)
	if err != nil || id == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "invalid session id"))
		_ = conn.Close()
		return
	}
	h.stream(conn, service.SessionTopic(uint(id)))
}

func (h *LiveHandler) loanStream(conn *websocket.Conn) {
	h.stream(conn, service.LoansTopic)
}

// stream forwards events until the client goes away or the subscription ends.
func (h *LiveHandler) stream(conn *websocket.Conn, topic string) {
	events, cancel := h.events.Subscribe(topic)
	defer cancel()

	gauge := observability.LiveClientsActive()
	gauge.Inc()
	defer gauge.Dec()

	logger := h.logger.With().Str("topic", topic).Logger()
	logger.Debug().Msg("live client connected")
	defer logger.Debug().Msg("live client disconnected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				logger.Warn().Err(err).Msg("failed to write live event")
				return
			}
		}
	}
}
