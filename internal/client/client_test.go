package client

import (
	"context"
	"net/netip"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/iso-game/internal/eventbus"
	"github.com/annel0/iso-game/internal/game"
	"github.com/annel0/iso-game/internal/network"
	"github.com/annel0/iso-game/internal/replay"
	"github.com/annel0/iso-game/internal/server"
	"github.com/annel0/iso-game/internal/storage"
	"github.com/annel0/iso-game/internal/vec"
)

const frameTime = float32(1.0 / 30)

type session struct {
	net     *network.MemoryNetwork
	addr    netip.AddrPort
	srv     *server.Server
	bus     eventbus.EventBus
	journal   *replay.Journal
	metrics   *server.Metrics
	positions *storage.MemoryPositionRepo

	mu     sync.Mutex
	events []string
}

func newSession(t *testing.T, hostCfg network.HostConfig) *session {
	t.Helper()
	s := &session{net: network.NewMemoryNetwork()}

	sock, err := s.net.Listen(7000)
	require.NoError(t, err)
	s.addr = sock.LocalAddr()

	world := game.NewWorld(game.WorldConfig{Mode: game.ModeServer, MapName: "test", Seed: 1})
	item := game.NewItemEntity(world.Assets().Item("medkit"), 2, vec.Vec3{X: 5, Z: 5}.Float())
	world.AddEntity(item)

	s.bus = eventbus.NewMemoryBus(64)
	_, err = s.bus.Subscribe(context.Background(), eventbus.Filter{}, func(ctx context.Context, ev *eventbus.Envelope) {
		s.mu.Lock()
		s.events = append(s.events, ev.EventType)
		s.mu.Unlock()
	})
	require.NoError(t, err)

	s.journal, err = replay.Open(replay.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.journal.Close() })

	s.metrics = server.NewMetrics(prometheus.NewRegistry())
	s.positions = storage.NewMemoryPositionRepo()
	cfg := server.DefaultConfig()
	cfg.Spawns = []vec.Vec3{{X: 2, Z: 2}, {X: 2, Z: 6}}
	s.srv = server.New(cfg, network.NewLocalHost(sock, hostCfg), world, server.Options{
		Bus:     s.bus,
		Journal: s.journal,
		Metrics: s.metrics,

		Positions: s.positions,
	})
	return s
}

func (s *session) connect(t *testing.T, name string) *Client {
	t.Helper()
	sock, err := s.net.Listen(0)
	require.NoError(t, err)
	cfg := network.DefaultHostConfig()
	cfg.AcceptPeers = false
	c, err := New(network.NewLocalHost(sock, cfg), s.addr, game.BuiltinRegistry(), name)
	require.NoError(t, err)
	return c
}

// run выполняет frames кадров: сначала клиенты, затем сервер
func (s *session) run(frames int, clients ...*Client) {
	for i := 0; i < frames; i++ {
		for _, c := range clients {
			c.Frame(frameTime)
		}
		s.srv.Frame(context.Background(), frameTime)
	}
}

// drainEvents закрывает шину и возвращает типы доставленных событий
func (s *session) drainEvents(t *testing.T) []string {
	t.Helper()
	require.NoError(t, s.bus.Close())
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

func TestJoinReplicatesWorld(t *testing.T) {
	s := newSession(t, network.DefaultHostConfig())
	c := s.connect(t, "alice")

	assert.ErrorIs(t, c.SendOrder(game.NewIdleOrder(), false), ErrNotJoined)
	s.run(3, c)

	require.Equal(t, StateJoined, c.State())
	assert.Equal(t, 0, c.PeerID())
	assert.Equal(t, "test", c.MapName())

	actor := c.Actor()
	require.NotNil(t, actor)
	assert.Equal(t, vec.Vec3{X: 2, Z: 2}.Float(), actor.Pos())
	assert.Equal(t, "male", actor.Proto().ID)
	assert.Len(t, c.World().Entities(), 2)

	peers := s.srv.Peers()
	require.Len(t, peers, 1)
	assert.Equal(t, "alice", peers[0].Name)
	assert.True(t, peers[0].Verified)
	assert.Zero(t, peers[0].Pending)

	assert.Equal(t, []string{eventbus.EventPeerJoined}, s.drainEvents(t))
}

func TestOrderMovesActorOnBothSides(t *testing.T) {
	s := newSession(t, network.DefaultHostConfig())
	c := s.connect(t, "alice")
	s.run(3, c)
	require.Equal(t, StateJoined, c.State())

	require.NoError(t, c.SendOrder(game.NewMoveOrder(vec.Vec3{X: 9, Z: 2}, false), false))
	s.run(60, c)

	want := vec.Vec3{X: 9, Z: 2}.Float()
	assert.Equal(t, want, s.srv.World().Actor(c.ActorRef()).Pos())
	assert.Equal(t, want, c.Actor().Pos())
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.OrdersAccepted))

	recs, err := s.journal.Records()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "move", recs[0].Kind)
	assert.Equal(t, c.ActorRef(), recs[0].Actor())
}

func TestLostSnapshotsAreResent(t *testing.T) {
	s := newSession(t, network.DefaultHostConfig())
	c := s.connect(t, "alice")
	s.run(3, c)
	require.Equal(t, StateJoined, c.State())

	dropping := false
	s.net.SetDrop(func(from, to netip.AddrPort, data []byte) bool {
		return dropping && from == s.addr
	})

	require.NoError(t, c.SendOrder(game.NewMoveOrder(vec.Vec3{X: 30, Z: 2}, false), false))
	s.run(20, c)
	dropping = true
	s.run(20, c)
	dropping = false
	s.run(80, c)

	want := vec.Vec3{X: 30, Z: 2}.Float()
	require.Equal(t, want, s.srv.World().Actor(c.ActorRef()).Pos())
	assert.Equal(t, want, c.Actor().Pos())
	assert.Positive(t, testutil.ToFloat64(s.metrics.SnapshotsRequeued))
}

func TestSecondClientSeesFirst(t *testing.T) {
	s := newSession(t, network.DefaultHostConfig())
	a := s.connect(t, "alice")
	s.run(3, a)
	b := s.connect(t, "bob")
	s.run(3, a, b)

	require.Equal(t, StateJoined, b.State())
	assert.Equal(t, 1, b.PeerID())
	assert.NotEqual(t, a.ActorRef(), b.ActorRef())

	require.NotNil(t, b.World().Actor(a.ActorRef()))
	require.NotNil(t, a.World().Actor(b.ActorRef()))
	assert.Equal(t, vec.Vec3{X: 2, Z: 6}.Float(), a.World().Actor(b.ActorRef()).Pos())
}

func TestLeaveRemovesActor(t *testing.T) {
	s := newSession(t, network.DefaultHostConfig())
	a := s.connect(t, "alice")
	b := s.connect(t, "bob")
	s.run(3, a, b)
	ref := a.ActorRef()
	require.NotNil(t, b.World().Actor(ref))

	a.Leave()
	s.run(3, a, b)

	assert.Equal(t, StateDisconnected, a.State())
	assert.Nil(t, s.srv.World().Entity(ref))
	assert.Nil(t, b.World().Entity(ref), "удаление актёра доходит до других клиентов")
	assert.Len(t, s.srv.Peers(), 1)

	assert.Equal(t, []string{eventbus.EventPeerJoined, eventbus.EventPeerJoined, eventbus.EventPeerLeft}, s.drainEvents(t))
}

func TestRejoinRestoresPosition(t *testing.T) {
	s := newSession(t, network.DefaultHostConfig())
	a := s.connect(t, "alice")
	s.run(3, a)
	require.NoError(t, a.SendOrder(game.NewMoveOrder(vec.Vec3{X: 9, Z: 2}, false), false))
	s.run(60, a)

	a.Leave()
	s.run(3, a)
	require.Equal(t, 1, s.positions.Count())

	again := s.connect(t, "alice")
	s.run(3, again)
	require.Equal(t, StateJoined, again.State())
	require.NotNil(t, again.Actor())
	assert.Equal(t, vec.Vec3{X: 9, Z: 2}.Float(), again.Actor().Pos())

	// новый игрок появляется в точке появления
	bob := s.connect(t, "bob")
	s.run(3, again, bob)
	require.NotNil(t, bob.Actor())
	assert.NotEqual(t, vec.Vec3{X: 9, Z: 2}.Float(), bob.Actor().Pos())
}

func TestSilentClientTimesOut(t *testing.T) {
	cfg := network.DefaultHostConfig()
	cfg.Timeout = 10
	s := newSession(t, cfg)
	c := s.connect(t, "alice")
	s.run(3, c)
	require.Equal(t, 1, s.srv.Stats().Peers)

	s.run(12)
	assert.Zero(t, s.srv.Stats().Peers)
	assert.Nil(t, s.srv.World().Entity(c.ActorRef()))
}

func TestShutdownDisconnectsClients(t *testing.T) {
	s := newSession(t, network.DefaultHostConfig())
	c := s.connect(t, "alice")
	s.run(3, c)

	s.srv.Shutdown(context.Background())
	c.Frame(frameTime)

	assert.Equal(t, StateDisconnected, c.State())
	assert.Equal(t, []string{eventbus.EventPeerJoined, eventbus.EventPeerLeft}, s.drainEvents(t))
}

func TestStaleSnapshotIgnored(t *testing.T) {
	c := &Client{}
	assert.True(t, c.accept(3, 10))
	assert.True(t, c.accept(3, 10))
	assert.False(t, c.accept(3, 9))
	assert.True(t, c.accept(1, 2))
	assert.False(t, c.accept(maxSlots, 1))
	assert.Equal(t, 3, c.Applied())
	assert.Equal(t, 1, c.Stale())
}
