package network

import (
	"net/netip"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/iso-game/internal/protocol"
)

type testPeer struct {
	host *LocalHost
	sock *MemorySocket
}

func newServerPeer(t *testing.T, n *MemoryNetwork, cfg HostConfig) testPeer {
	t.Helper()
	sock, err := n.Listen(20001)
	require.NoError(t, err)
	return testPeer{host: NewLocalHost(sock, cfg), sock: sock}
}

func newClientPeer(t *testing.T, n *MemoryNetwork, server netip.AddrPort) testPeer {
	t.Helper()
	sock, err := n.Listen(0)
	require.NoError(t, err)

	cfg := DefaultHostConfig()
	cfg.AcceptPeers = false
	host := NewLocalHost(sock, cfg)
	id, err := host.AddRemoteHost(server, -1)
	require.NoError(t, err)
	require.Equal(t, 0, id)
	return testPeer{host: host, sock: sock}
}

// step выполняет полный кадр: приём, отправка всем узлам, завершение
func (p testPeer) step(t *testing.T, send func(id int)) {
	t.Helper()
	p.host.BeginFrame()
	for id := 0; id < p.host.NumRemoteHosts(); id++ {
		if p.host.RemoteHost(id) == nil {
			continue
		}
		require.NoError(t, p.host.BeginSending(id))
		if send != nil {
			send(id)
		}
		require.NoError(t, p.host.FinishSending())
	}
	p.host.FinishFrame()
}

func TestHandshakeVerifiesBothSides(t *testing.T) {
	n := NewMemoryNetwork()
	server := newServerPeer(t, n, DefaultHostConfig())
	client := newClientPeer(t, n, server.sock.LocalAddr())

	client.step(t, func(int) {
		require.NoError(t, client.host.EnqueueChunk(1, []byte("join"), 0))
	})

	server.step(t, nil)
	remote := server.host.RemoteHost(0)
	require.NotNil(t, remote)
	assert.False(t, remote.IsVerified())
	assert.Equal(t, 0, remote.RemoteID())

	chunk, ok := remote.NextChunk()
	require.True(t, ok)
	assert.Equal(t, []byte("join"), chunk.Data)

	client.step(t, nil)
	assert.True(t, client.host.RemoteHost(0).IsVerified())
	assert.Equal(t, 0, client.host.RemoteHost(0).RemoteID())

	server.step(t, nil)
	assert.True(t, remote.IsVerified())
}

func TestUnverifiedHostsAreCapped(t *testing.T) {
	n := NewMemoryNetwork()
	server := newServerPeer(t, n, DefaultHostConfig())

	for i := 0; i < MaxUnverifiedHosts+2; i++ {
		c := newClientPeer(t, n, server.sock.LocalAddr())
		c.step(t, nil)
	}

	server.host.BeginFrame()
	admitted := 0
	for id := 0; id < server.host.NumRemoteHosts(); id++ {
		if server.host.RemoteHost(id) != nil {
			admitted++
		}
	}
	assert.Equal(t, MaxUnverifiedHosts, admitted)
}

func TestUnverifiedHostTimesOut(t *testing.T) {
	n := NewMemoryNetwork()
	cfg := DefaultHostConfig()
	cfg.UnverifiedTimeout = 3
	server := newServerPeer(t, n, cfg)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	server.host.SetMetrics(m)

	client := newClientPeer(t, n, server.sock.LocalAddr())
	client.step(t, nil)

	server.host.BeginFrame()
	require.NotNil(t, server.host.RemoteHost(0))

	var evicted []int
	for i := 0; i < 5 && len(evicted) == 0; i++ {
		evicted = server.host.FinishFrame()
	}
	assert.Equal(t, []int{0}, evicted)
	assert.Nil(t, server.host.RemoteHost(0))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PeersEvicted))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RemoteHosts))
}

func TestForeignProtocolIgnored(t *testing.T) {
	n := NewMemoryNetwork()
	server := newServerPeer(t, n, DefaultHostConfig())
	sock, err := n.Listen(0)
	require.NoError(t, err)

	w := protocol.NewWriter(32)
	PacketHeader{ProtocolID: 0xbad, CurrentID: 0, RemoteID: -1}.Encode(w)
	w.Varint(0)
	require.NoError(t, sock.Send(w.Bytes(), server.sock.LocalAddr()))
	require.NoError(t, sock.Send([]byte{1, 2, 3}, server.sock.LocalAddr()))

	server.host.BeginFrame()
	assert.Equal(t, 0, server.host.NumRemoteHosts())
}

func TestSpoofedAddressRejectedBeforeVerification(t *testing.T) {
	n := NewMemoryNetwork()
	server := newServerPeer(t, n, DefaultHostConfig())
	client := newClientPeer(t, n, server.sock.LocalAddr())
	client.step(t, nil)
	server.host.BeginFrame()
	require.NotNil(t, server.host.RemoteHost(0))

	spoofer, err := n.Listen(0)
	require.NoError(t, err)
	w := protocol.NewWriter(32)
	PacketHeader{ProtocolID: ProtocolID, CurrentID: 0, RemoteID: 0, Flags: FlagFirst, Seq: 10}.Encode(w)
	w.Varint(0)
	require.NoError(t, spoofer.Send(w.Bytes(), server.sock.LocalAddr()))

	server.host.BeginFrame()
	assert.False(t, server.host.RemoteHost(0).IsVerified())
	assert.Equal(t, client.sock.LocalAddr(), server.host.RemoteHost(0).Address())
}

func TestReliableDeliveryOverLossyNetwork(t *testing.T) {
	n := NewMemoryNetwork()
	counter := 0
	n.SetDrop(func(_, _ netip.AddrPort, _ []byte) bool {
		counter++
		return counter%3 == 0
	})

	server := newServerPeer(t, n, DefaultHostConfig())
	client := newClientPeer(t, n, server.sock.LocalAddr())

	const total = 60
	sent := 0
	var received []byte

	for frame := 0; frame < 200 && len(received) < total; frame++ {
		client.step(t, func(int) {
			for i := 0; i < 3 && sent < total; i++ {
				require.NoError(t, client.host.EnqueueChunk(1, []byte{byte(sent)}, 0))
				sent++
			}
		})
		server.step(t, nil)
		if r := server.host.RemoteHost(0); r != nil {
			for {
				c, ok := r.NextChunk()
				if !ok {
					break
				}
				received = append(received, c.Data[0])
			}
		}
	}

	require.Len(t, received, total)
	for i, v := range received {
		assert.Equal(t, byte(i), v)
	}
}

func TestAddRemoteHostLimits(t *testing.T) {
	n := NewMemoryNetwork()
	server := newServerPeer(t, n, DefaultHostConfig())

	for i := 0; i < MaxRemoteHosts; i++ {
		addr := netip.AddrPortFrom(netip.MustParseAddr("10.0.0.1"), uint16(1000+i))
		id, err := server.host.AddRemoteHost(addr, i)
		require.NoError(t, err)
		assert.Equal(t, i, id)
	}

	_, err := server.host.AddRemoteHost(netip.MustParseAddrPort("10.0.0.2:1"), 0)
	assert.ErrorIs(t, err, ErrNoSlot)

	// Повторная регистрация адреса возвращает прежний слот
	id, err := server.host.AddRemoteHost(netip.AddrPortFrom(netip.MustParseAddr("10.0.0.1"), 1005), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, id)

	server.host.RemoveRemoteHost(3)
	id, err = server.host.AddRemoteHost(netip.MustParseAddrPort("10.0.0.2:1"), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, id)
}
