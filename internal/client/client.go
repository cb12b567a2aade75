// Package client реплика мира на стороне игрока: подключается к серверу,
// применяет снимки сущностей и отправляет приказы своему актёру.
package client

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/annel0/iso-game/internal/game"
	"github.com/annel0/iso-game/internal/logging"
	"github.com/annel0/iso-game/internal/network"
	"github.com/annel0/iso-game/internal/server"
)

// State состояние подключения
type State uint8

const (
	StateConnecting State = iota
	StateJoined
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ErrNotJoined клиент ещё не подключён к серверу
var ErrNotJoined = errors.New("client: not joined")

const (
	serverSlot = 0
	maxSlots   = 1 << 16
)

// Client клиент игрового сервера
type Client struct {
	host  *network.LocalHost
	world *game.World
	name  string
	token string
	state State

	peerID  int
	actor   game.EntityRef
	mapName string

	joinSent bool
	leave    bool
	orders   []server.OrderRequest
	stamps   []uint32 // Кадр последнего применённого снимка по слоту
	applied  int
	stale    int

	log *logging.Logger
}

// New создаёт клиента. Хост не должен принимать входящие узлы.
func New(host *network.LocalHost, serverAddr netip.AddrPort, assets *game.Registry, name string) (*Client, error) {
	id, err := host.AddRemoteHost(serverAddr, -1)
	if err != nil {
		return nil, fmt.Errorf("add server host: %w", err)
	}
	if id != serverSlot {
		return nil, fmt.Errorf("client: server expected in slot %d, got %d", serverSlot, id)
	}
	return &Client{
		host:   host,
		world:  game.NewWorld(game.WorldConfig{Mode: game.ModeClient, Assets: assets}),
		name:   name,
		peerID: -1,
		log:    logging.GetClientLogger(),
	}, nil
}

func (c *Client) World() *game.World        { return c.world }
func (c *Client) State() State              { return c.state }
func (c *Client) PeerID() int               { return c.peerID }
func (c *Client) ActorRef() game.EntityRef { return c.actor }
func (c *Client) MapName() string           { return c.mapName }

// Applied число применённых снимков, Stale - отброшенных как устаревшие
func (c *Client) Applied() int { return c.applied }
func (c *Client) Stale() int   { return c.stale }

// Actor возвращает актёра игрока, если его снимок уже получен
func (c *Client) Actor() *game.Actor {
	return c.world.Actor(c.actor)
}

// SetToken задаёт токен подключения; вызывается до первого кадра
func (c *Client) SetToken(token string) { c.token = token }

// SendOrder отправляет приказ актёру игрока в следующем кадре
func (c *Client) SendOrder(o *game.Order, force bool) error {
	if c.state != StateJoined {
		return ErrNotJoined
	}
	if o == nil {
		return errors.New("client: nil order")
	}
	c.orders = append(c.orders, server.OrderRequest{Force: force, Order: o})
	return nil
}

// Leave сообщает серверу об отключении в следующем кадре
func (c *Client) Leave() {
	if c.state != StateDisconnected {
		c.leave = true
	}
}

// Frame выполняет кадр клиента: приём, анимация реплики, отправка
func (c *Client) Frame(dt float32) {
	if c.state == StateDisconnected {
		return
	}

	c.host.BeginFrame()
	if remote := c.host.RemoteHost(serverSlot); remote != nil {
		for {
			chunk, ok := remote.NextChunk()
			if !ok {
				break
			}
			c.handleChunk(chunk)
		}
		remote.TakeLostUChunks()
	}

	c.world.Simulate(dt)
	c.world.TakeUpdates()

	if c.state != StateDisconnected {
		c.send()
	}
	for _, id := range c.host.FinishFrame() {
		if id == serverSlot {
			c.log.Warn("⏱️ Сервер не отвечает, соединение закрыто")
			c.state = StateDisconnected
		}
	}
}

func (c *Client) send() {
	if err := c.host.BeginSending(serverSlot); err != nil {
		c.log.Warn("%v", err)
		return
	}
	defer func() {
		if err := c.host.FinishSending(); err != nil {
			c.log.Warn("%v", err)
		}
	}()

	if !c.joinSent {
		req := server.JoinRequest{Name: c.name, Token: c.token}
		if err := c.host.EnqueueChunk(server.ChunkJoin, req.Encode(), server.ChannelControl); err != nil {
			c.log.Error("Запрос подключения: %v", err)
			return
		}
		c.joinSent = true
	}
	for _, o := range c.orders {
		if err := c.host.EnqueueChunk(server.ChunkActorOrder, o.Encode(), server.ChannelOrders); err != nil {
			c.log.Warn("Приказ %s не отправлен: %v", o.Order, err)
		}
	}
	c.orders = c.orders[:0]

	if c.leave {
		if err := c.host.EnqueueChunk(server.ChunkLeave, nil, server.ChannelControl); err != nil {
			c.log.Warn("%v", err)
		}
		c.leave = false
		c.state = StateDisconnected
	}
}

func (c *Client) handleChunk(chunk network.Chunk) {
	var err error
	switch chunk.Type {
	case server.ChunkJoinAck:
		var ack server.JoinAck
		if ack, err = server.DecodeJoinAck(chunk.Data); err == nil {
			c.peerID, c.actor, c.mapName = ack.PeerID, ack.Actor, ack.MapName
			if c.state == StateConnecting {
				c.state = StateJoined
				c.log.Info("✅ Подключён к серверу (cid:%d, карта %q, актёр %s)", ack.PeerID, ack.MapName, ack.Actor)
			}
		}
	case server.ChunkEntityFull:
		var m server.EntityFull
		if m, err = server.DecodeEntityFull(chunk.Data, c.world.Assets()); err == nil {
			if c.accept(m.Ref.Index(), m.Frame) {
				c.world.ReplaceEntity(m.Ref, m.Entity)
			}
		}
	case server.ChunkEntityDelete:
		var m server.EntityDelete
		if m, err = server.DecodeEntityDelete(chunk.Data); err == nil {
			if c.accept(m.Index, m.Frame) {
				c.world.DeleteEntity(m.Index)
			}
		}
	case server.ChunkLeave:
		c.log.Info("🚪 Сервер закрыл соединение")
		c.state = StateDisconnected
	default:
		c.log.Debug("Неизвестный чанк типа %d", chunk.Type)
	}
	if err != nil {
		c.log.Debug("Чанк %d отброшен: %v", chunk.Type, err)
	}
}

// accept проверяет, что снимок слота не старше уже применённого
func (c *Client) accept(index int, frame uint32) bool {
	if index >= maxSlots {
		return false
	}
	for len(c.stamps) <= index {
		c.stamps = append(c.stamps, 0)
	}
	if frame < c.stamps[index] {
		c.stale++
		return false
	}
	c.stamps[index] = frame
	c.applied++
	return true
}
