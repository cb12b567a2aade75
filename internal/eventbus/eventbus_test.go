package eventbus

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	ev, err := NewEnvelope("session-1", EventPeerLeft, 42, 5, PeerLeft{PeerID: 3, Reason: "timeout"})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, EventPeerLeft, ev.EventType)
	assert.Equal(t, PayloadVersion, ev.Version)
	assert.Equal(t, 42, ev.Frame)

	var p PeerLeft
	require.NoError(t, ev.Decode(&p))
	assert.Equal(t, PeerLeft{PeerID: 3, Reason: "timeout"}, p)

	var wrong []int
	assert.Error(t, ev.Decode(&wrong))
}

func TestMemoryBusDeliversInOrder(t *testing.T) {
	bus := NewMemoryBus(16)

	var mu sync.Mutex
	var got []int
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{EventPeerJoined}}, func(ctx context.Context, ev *Envelope) {
		var p PeerJoined
		if ev.Decode(&p) == nil {
			mu.Lock()
			got = append(got, p.PeerID)
			mu.Unlock()
		}
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		ev, err := NewEnvelope("s", EventPeerJoined, i, 1, PeerJoined{PeerID: i})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}
	ev, err := NewEnvelope("s", EventActorDied, 0, 1, ActorDied{})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	require.NoError(t, bus.Close())
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)

	stats := bus.Metrics()
	assert.Equal(t, uint64(6), stats.Published)
	assert.Equal(t, uint64(5), stats.Consumed)

	assert.ErrorIs(t, bus.Publish(context.Background(), ev), ErrClosed)
}

func TestMemoryBusDropsLowPriorityWhenFull(t *testing.T) {
	bus := NewMemoryBus(1)

	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		entered <- struct{}{}
		<-release
	})
	require.NoError(t, err)

	publish := func(prio int) error {
		ev, err := NewEnvelope("s", EventActorDied, 0, prio, ActorDied{})
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		return bus.Publish(ctx, ev)
	}

	require.NoError(t, publish(1))
	<-entered // первое событие в обработчике, буфер пуст
	require.NoError(t, publish(1))
	require.NoError(t, publish(1)) // буфер заполнен: отброшено
	assert.ErrorIs(t, publish(9), context.DeadlineExceeded)

	stats := bus.Metrics()
	assert.Equal(t, uint64(2), stats.Published)
	assert.Equal(t, uint64(2), stats.Dropped)
	assert.Equal(t, 1, stats.InFlight)

	close(release)
	require.NoError(t, bus.Close())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewMemoryBus(4)
	calls := 0
	sub, err := bus.Subscribe(context.Background(), Filter{Sources: []string{"a"}}, func(ctx context.Context, ev *Envelope) {
		calls++
	})
	require.NoError(t, err)

	ev, _ := NewEnvelope("b", EventPeerLeft, 0, 1, PeerLeft{})
	require.NoError(t, bus.Publish(context.Background(), ev))
	sub.Unsubscribe()
	ev, _ = NewEnvelope("a", EventPeerLeft, 0, 1, PeerLeft{})
	require.NoError(t, bus.Publish(context.Background(), ev))

	require.NoError(t, bus.Close())
	assert.Zero(t, calls)
}

func TestRegisterMetrics(t *testing.T) {
	bus := NewMemoryBus(4)
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg, bus))

	ev, _ := NewEnvelope("s", EventPeerJoined, 0, 1, PeerJoined{})
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.NoError(t, bus.Close())

	expected := `
# HELP eventbus_messages_published_total Общее число опубликованных сообщений.
# TYPE eventbus_messages_published_total counter
eventbus_messages_published_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "eventbus_messages_published_total"))
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "game.s1.peer_left", Subject("s1", EventPeerLeft))
	assert.Equal(t, "game.*.actor_died", Subject("", EventActorDied))
	assert.Equal(t, "game.s1.*", Subject("s1", ""))
}

// Нужен nats-server с JetStream: GAME_TEST_NATS=nats://127.0.0.1:4222
func TestJetStreamBus(t *testing.T) {
	url := os.Getenv("GAME_TEST_NATS")
	if url == "" {
		t.Skip("GAME_TEST_NATS не задан")
	}
	bus, err := NewJetStreamBus(url, "GAME_EVENTS_TEST", time.Minute)
	require.NoError(t, err)
	defer bus.Close()

	got := make(chan *Envelope, 4)
	sub, err := bus.Subscribe(context.Background(), Filter{Types: []string{EventPeerJoined}}, func(ctx context.Context, ev *Envelope) {
		got <- ev
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	left, _ := NewEnvelope("test", EventPeerLeft, 1, 1, PeerLeft{})
	joined, _ := NewEnvelope("test", EventPeerJoined, 2, 1, PeerJoined{Name: "alice"})
	require.NoError(t, bus.Publish(context.Background(), left))
	require.NoError(t, bus.Publish(context.Background(), joined))

	select {
	case ev := <-got:
		assert.Equal(t, joined.ID, ev.ID)
		assert.Equal(t, 2, ev.Frame)
	case <-time.After(5 * time.Second):
		t.Fatal("событие не доставлено")
	}
	assert.Equal(t, uint64(2), bus.Metrics().Published)
}
