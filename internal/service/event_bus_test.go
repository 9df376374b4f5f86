package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversToTopicSubscribers(t *testing.T) {
	bus := NewEventBus(nil, nil, "", zerolog.Nop())

	events, cleanup := bus.Subscribe(SessionTopic(7))
	defer cleanup()
	other, cleanupOther := bus.Subscribe(SessionTopic(8))
	defer cleanupOther()

	require.NoError(t, bus.Publish(context.Background(), SessionTopic(7), EventAttendanceRecorded, map[string]string{"id_number": "1234"}))

	select {
	case event := <-events:
		require.Equal(t, EventAttendanceRecorded, event.Type)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(event.Payload, &payload))
		require.Equal(t, "1234", payload["id_number"])
	case <-time.After(time.Second):
		t.Fatal("expected event on subscribed topic")
	}

	select {
	case <-other:
		t.Fatal("event leaked to another topic")
	default:
	}
}

func TestEventBusCleanupIsIdempotent(t *testing.T) {
	bus := NewEventBus(nil, nil, "", zerolog.Nop())
	events, cleanup := bus.Subscribe(LoansTopic)
	cleanup()
	cleanup()

	_, open := <-events
	require.False(t, open)
	require.NoError(t, bus.Publish(context.Background(), LoansTopic, EventLoanReturned, map[string]int{"id": 1}))
}

func TestEventBusRelaysBetweenNodesOverRedis(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA := NewEventBus(redis.NewClient(&redis.Options{Addr: mini.Addr()}), nil, "campusdesk", zerolog.Nop())
	nodeB := NewEventBus(redis.NewClient(&redis.Options{Addr: mini.Addr()}), nil, "campusdesk", zerolog.Nop())
	nodeA.Start(ctx)
	nodeB.Start(ctx)

	require.Eventually(t, func() bool {
		return mini.PubSubNumSub("campusdesk:events")["campusdesk:events"] == 2
	}, 2*time.Second, 10*time.Millisecond)

	onA, cleanupA := nodeA.Subscribe(LoansTopic)
	defer cleanupA()
	onB, cleanupB := nodeB.Subscribe(LoansTopic)
	defer cleanupB()

	require.NoError(t, nodeA.Publish(ctx, LoansTopic, EventLoanCheckedOut, map[string]uint{"loan_id": 42}))

	select {
	case event := <-onB:
		require.Equal(t, EventLoanCheckedOut, event.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("expected relayed event on second node")
	}

	select {
	case <-onA:
	case <-time.After(time.Second):
		t.Fatal("expected local delivery on publishing node")
	}

	select {
	case <-onA:
		t.Fatal("publishing node must drop its own echo")
	case <-time.After(200 * time.Millisecond):
	}
}
