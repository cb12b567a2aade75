// Package server авторитетный игровой сервер: принимает клиентов, выполняет
// их приказы, ведёт симуляцию и рассылает снимки изменённых сущностей.
package server

import (
	"context"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/iso-game/internal/auth"
	"github.com/annel0/iso-game/internal/eventbus"
	"github.com/annel0/iso-game/internal/game"
	"github.com/annel0/iso-game/internal/logging"
	"github.com/annel0/iso-game/internal/network"
	"github.com/annel0/iso-game/internal/replay"
	"github.com/annel0/iso-game/internal/storage"
	"github.com/annel0/iso-game/internal/vec"
)

// maxFrameTime ограничение шага симуляции после долгой паузы
const maxFrameTime = 0.25

// storageTimeout время на одно обращение к хранилищу позиций
const storageTimeout = time.Second

// Config параметры сервера
type Config struct {
	SessionID     string
	TickRate      int     // Кадров в секунду
	TimeScale     float32 // Множитель игрового времени
	MaxPeers      int
	PlayerActor   string // Прототип актёра игрока
	PlayerFaction int
	Spawns        []vec.Vec3
}

// DefaultConfig возвращает настройки по умолчанию
func DefaultConfig() Config {
	return Config{
		TickRate:      30,
		TimeScale:     1,
		MaxPeers:      network.MaxRemoteHosts,
		PlayerActor:   "male",
		PlayerFaction: 1,
	}
}

// Options внешние зависимости сервера; все поля необязательны
type Options struct {
	Bus     eventbus.EventBus
	Journal *replay.Journal
	Metrics *Metrics
	Tracer  trace.Tracer

	// Positions хранит позиции вышедших игроков по имени
	Positions storage.PositionRepo
	// Tokens включает проверку токенов подключения; имя игрока берётся из токена
	Tokens *auth.TokenIssuer
}

// Peer подключённый клиент
type Peer struct {
	ID       int
	Name     string
	Address  netip.AddrPort
	Actor    game.EntityRef
	JoinedAt time.Time

	updates []int // Отсортированные слоты, ждущие отправки
	ack     []byte
}

// PeerInfo состояние клиента для API
type PeerInfo struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Address  string    `json:"address"`
	Actor    string    `json:"actor"`
	JoinedAt time.Time `json:"joined_at"`
	Verified bool      `json:"verified"`
	Pending  int       `json:"pending_updates"`
	Unacked  int       `json:"unacked_packets"`
}

// Stats сводка состояния сервера
type Stats struct {
	SessionID string        `json:"session_id"`
	MapName   string        `json:"map"`
	Frame     int           `json:"frame"`
	Peers     int           `json:"peers"`
	Entities  int           `json:"entities"`
	LastTick  time.Duration `json:"last_tick_ns"`
	Uptime    time.Duration `json:"uptime_ns"`
}

// Server игровой сервер поверх LocalHost
type Server struct {
	cfg   Config
	host  *network.LocalHost
	world *game.World

	mu        sync.RWMutex // Кадр сервера и чтение состояния из API
	peers     []*Peer      // По слоту удалённого узла
	nextSpawn int
	events    []*eventbus.Envelope
	started   time.Time
	lastTick  time.Duration

	bus       eventbus.EventBus
	journal   *replay.Journal
	positions storage.PositionRepo
	tokens    *auth.TokenIssuer
	metrics   *Metrics
	tracer    trace.Tracer
	log       *logging.Logger
}

// New создаёт сервер. Мир должен быть в режиме ModeServer.
func New(cfg Config, host *network.LocalHost, world *game.World, opts Options) *Server {
	def := DefaultConfig()
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = def.TickRate
	}
	if cfg.TimeScale <= 0 {
		cfg.TimeScale = def.TimeScale
	}
	if cfg.MaxPeers <= 0 || cfg.MaxPeers > network.MaxRemoteHosts {
		cfg.MaxPeers = def.MaxPeers
	}
	if cfg.PlayerActor == "" {
		cfg.PlayerActor = def.PlayerActor
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("iso-game/server")
	}

	s := &Server{
		cfg:       cfg,
		host:      host,
		world:     world,
		started:   time.Now(),
		bus:       opts.Bus,
		journal:   opts.Journal,
		positions: opts.Positions,
		tokens:    opts.Tokens,
		metrics:   opts.Metrics,
		tracer:    opts.Tracer,
		log:       logging.GetServerLogger(),
	}
	world.SetHooks(game.Hooks{ActorDied: s.onActorDied})
	return s
}

func (s *Server) World() *game.World      { return s.world }
func (s *Server) Host() *network.LocalHost { return s.host }
func (s *Server) SessionID() string       { return s.cfg.SessionID }

// Run выполняет кадры с частотой TickRate до отмены контекста
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("🚀 Сервер запущен: сессия %s, карта %q, %d кадров/с, адрес %s",
		s.cfg.SessionID, s.world.MapName(), s.cfg.TickRate, s.host.Socket().LocalAddr())

	ticker := time.NewTicker(time.Second / time.Duration(s.cfg.TickRate))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.Shutdown(context.Background())
			return nil
		case now := <-ticker.C:
			dt := float32(now.Sub(last).Seconds())
			last = now
			s.Frame(ctx, min(dt, maxFrameTime)*s.cfg.TimeScale)
		}
	}
}

// Frame выполняет один кадр: приём, симуляция, рассылка, таймауты
func (s *Server) Frame(ctx context.Context, dt float32) {
	ctx, span := s.tracer.Start(ctx, "server.Frame",
		trace.WithAttributes(attribute.Int("game.frame", s.world.Frame())))
	defer span.End()

	start := time.Now()
	s.mu.Lock()

	s.host.BeginFrame()
	s.receive()

	s.world.Simulate(dt)
	s.distribute(s.world.TakeUpdates())
	s.send()

	for _, id := range s.host.FinishFrame() {
		s.dropPeer(id, "timeout", false)
	}

	if s.journal != nil {
		if err := s.journal.Flush(); err != nil {
			s.log.Error("Ошибка записи журнала приказов: %v", err)
		}
	}

	events := s.events
	s.events = nil
	s.lastTick = time.Since(start)
	peers, entities := s.numPeers(), len(s.world.Entities())
	s.mu.Unlock()

	s.publish(ctx, events)
	s.metrics.frame(time.Since(start), peers, entities)
	span.SetAttributes(attribute.Int("game.peers", peers), attribute.Int("game.entities", entities))
}

// Shutdown прощается с клиентами и сбрасывает журнал
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	for id, peer := range s.peers {
		if peer == nil || s.host.RemoteHost(id) == nil {
			continue
		}
		if err := s.host.BeginSending(id); err != nil {
			continue
		}
		if err := s.host.EnqueueChunk(ChunkLeave, nil, ChannelControl); err != nil {
			s.log.Warn("Клиент %d: %v", id, err)
		}
		if err := s.host.FinishSending(); err != nil {
			s.log.Warn("Клиент %d: %v", id, err)
		}
		s.dropPeer(id, "shutdown", true)
	}
	events := s.events
	s.events = nil
	s.mu.Unlock()

	s.publish(ctx, events)
	if s.journal != nil {
		if err := s.journal.Flush(); err != nil {
			s.log.Error("Ошибка записи журнала приказов: %v", err)
		}
	}
	s.log.Info("🛑 Сервер остановлен на кадре %d", s.world.Frame())
}

func (s *Server) peerAt(id int) *Peer {
	if id < 0 || id >= len(s.peers) {
		return nil
	}
	return s.peers[id]
}

func (s *Server) numPeers() int {
	n := 0
	for _, p := range s.peers {
		if p != nil {
			n++
		}
	}
	return n
}

func (s *Server) receive() {
	for id := 0; id < s.host.NumRemoteHosts(); id++ {
		remote := s.host.RemoteHost(id)
		if remote == nil {
			continue
		}
		for {
			chunk, ok := remote.NextChunk()
			if !ok {
				break
			}
			if !s.handleChunk(id, remote, chunk) {
				break
			}
		}
		if s.host.RemoteHost(id) == nil {
			continue
		}

		lost := remote.TakeLostUChunks()
		if peer := s.peerAt(id); peer != nil && len(lost) > 0 {
			for _, ident := range lost {
				peer.updates = append(peer.updates, int(ident))
			}
			peer.updates = sortUnique(peer.updates)
			s.metrics.requeued(len(lost))
		}
	}
}

// handleChunk обрабатывает чанк клиента. false - узел удалён.
func (s *Server) handleChunk(id int, remote *network.RemoteHost, chunk network.Chunk) bool {
	switch chunk.Type {
	case ChunkJoin:
		req, err := DecodeJoinRequest(chunk.Data)
		if err != nil {
			s.badChunk(id, chunk, err)
			return true
		}
		return s.handleJoin(id, remote, req)
	case ChunkLeave:
		s.dropPeer(id, "leave", true)
		return false
	case ChunkActorOrder:
		req, err := DecodeOrderRequest(chunk.Data)
		if err != nil {
			s.badChunk(id, chunk, err)
			return true
		}
		s.handleOrder(id, req)
	default:
		s.log.Debug("Клиент %d: неизвестный чанк типа %d", id, chunk.Type)
	}
	return true
}

func (s *Server) badChunk(id int, chunk network.Chunk, err error) {
	s.metrics.badChunk()
	s.log.Debug("Клиент %d: чанк %d отброшен: %v", id, chunk.Type, err)
	if s.log.Enabled(logging.TRACE) {
		s.log.Trace("%s", logging.HexDump(chunk.Data))
	}
}

// handleJoin подключает клиента. false - узел удалён из-за неверного токена.
func (s *Server) handleJoin(id int, remote *network.RemoteHost, req JoinRequest) bool {
	peer := s.peerAt(id)
	if peer == nil {
		if s.numPeers() >= s.cfg.MaxPeers {
			s.log.Warn("Клиент %s отклонён: достигнут лимит %d", remote.Address(), s.cfg.MaxPeers)
			s.metrics.joinRejected()
			return true
		}
		if s.tokens != nil {
			claims, err := s.tokens.Validate(req.Token)
			if err != nil {
				s.log.Warn("🔐 Клиент %s отклонён: %v", remote.Address(), err)
				s.metrics.joinRejected()
				s.host.RemoveRemoteHost(id)
				return false
			}
			req.Name = claims.Player
		}
		actor, err := s.spawnPlayer(req.Name)
		if err != nil {
			s.log.Error("Не удалось создать актёра для %s: %v", remote.Address(), err)
			return true
		}

		peer = &Peer{
			ID:       id,
			Name:     req.Name,
			Address:  remote.Address(),
			Actor:    actor,
			JoinedAt: time.Now(),
		}
		for len(s.peers) <= id {
			s.peers = append(s.peers, nil)
		}
		s.peers[id] = peer

		// Новый клиент получает все существующие сущности
		for _, ref := range s.world.Entities() {
			peer.updates = append(peer.updates, ref.Index())
		}
		s.log.Info("Клиент подключён (cid:%d): %s %q", id, remote.Address(), req.Name)
		s.queueEvent(eventbus.EventPeerJoined, 6, eventbus.PeerJoined{
			PeerID:  id,
			Address: remote.Address().String(),
			Name:    req.Name,
			Actor:   actor.String(),
		})
	}

	peer.ack = JoinAck{
		PeerID:  id,
		MapName: s.world.MapName(),
		Actor:   peer.Actor,
		Frame:   uint32(s.world.Frame()),
	}.Encode()
	return true
}

func (s *Server) spawnPlayer(name string) (game.EntityRef, error) {
	proto := s.world.Assets().Actor(s.cfg.PlayerActor)
	if proto == nil {
		return game.EntityRef{}, game.DataError{Msg: "unknown player actor " + s.cfg.PlayerActor}
	}
	pos, found := s.savedPosition(name)
	if n := len(s.cfg.Spawns); n > 0 && !found {
		pos = s.cfg.Spawns[s.nextSpawn%n]
		s.nextSpawn++
	}
	a := game.NewActor(proto, game.StanceStand)
	a.SetPos(pos.Float())
	a.SetFaction(s.cfg.PlayerFaction)
	return s.world.AddEntity(a), nil
}

func (s *Server) handleOrder(id int, req OrderRequest) {
	peer := s.peerAt(id)
	if peer == nil {
		s.log.Debug("Клиент %d: приказ до подключения", id)
		return
	}
	actor := s.world.Actor(peer.Actor)
	if actor == nil {
		s.metrics.order(false)
		return
	}

	rec := replay.NewRecord(s.world.Frame(), peer.Actor, req.Order, req.Force)
	accepted := actor.SetOrder(req.Order, req.Force)
	s.metrics.order(accepted)
	if !accepted {
		s.log.Debug("Клиент %d: приказ %s отклонён", id, req.Order)
		return
	}
	if s.journal != nil {
		s.journal.Append(rec)
	}
}

// dropPeer отключает клиента и убирает его актёра
func (s *Server) dropPeer(id int, reason string, removeHost bool) {
	if removeHost {
		s.host.RemoveRemoteHost(id)
	}
	peer := s.peerAt(id)
	if peer == nil {
		return
	}
	s.peers[id] = nil
	if a := s.world.Actor(peer.Actor); a != nil && !a.IsDying() {
		s.savePosition(peer.Name, vec.Round(a.Pos()))
	}
	s.world.RemoveEntity(peer.Actor)

	s.log.Info("Клиент отключён (cid:%d, %s): %s", id, reason, peer.Address)
	s.queueEvent(eventbus.EventPeerLeft, 6, eventbus.PeerLeft{PeerID: id, Reason: reason})
}

func (s *Server) savedPosition(name string) (vec.Vec3, bool) {
	if s.positions == nil || name == "" {
		return vec.Vec3{}, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	pos, found, err := s.positions.Load(ctx, s.world.MapName(), name)
	if err != nil {
		s.log.Warn("Позиция игрока %q не загружена: %v", name, err)
		return vec.Vec3{}, false
	}
	return pos, found
}

func (s *Server) savePosition(name string, pos vec.Vec3) {
	if s.positions == nil || name == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if err := s.positions.Save(ctx, s.world.MapName(), name, pos); err != nil {
		s.log.Warn("Позиция игрока %q не сохранена: %v", name, err)
	}
}

// distribute добавляет изменённые слоты в очереди всех клиентов
func (s *Server) distribute(updates []int) {
	if len(updates) == 0 {
		return
	}
	for _, peer := range s.peers {
		if peer != nil {
			peer.updates = sortUnique(append(peer.updates, updates...))
		}
	}
}

func (s *Server) send() {
	for id := 0; id < s.host.NumRemoteHosts(); id++ {
		if s.host.RemoteHost(id) == nil {
			continue
		}
		if err := s.host.BeginSending(id); err != nil {
			s.log.Warn("Клиент %d: %v", id, err)
			continue
		}
		if peer := s.peerAt(id); peer != nil {
			if peer.ack != nil {
				if err := s.host.EnqueueChunk(ChunkJoinAck, peer.ack, ChannelControl); err != nil {
					s.log.Warn("Клиент %d: %v", id, err)
				}
				peer.ack = nil
			}
			s.sendUpdates(peer)
		}
		if err := s.host.FinishSending(); err != nil {
			s.log.Warn("Клиент %d: %v", id, err)
		}
	}
}

// sendUpdates отправляет снимки, пока они помещаются в бюджет кадра.
// Неотправленные остаются в очереди клиента.
func (s *Server) sendUpdates(peer *Peer) {
	frame := uint32(s.world.Frame())
	snapshots, deletes := 0, 0

	n := 0
	for ; n < len(peer.updates); n++ {
		idx := peer.updates[n]
		typ, data := ChunkEntityDelete, EntityDelete{Frame: frame, Index: idx}.Encode()
		if e, ref := s.world.EntityAt(idx); e != nil {
			typ, data = ChunkEntityFull, EntityFull{Frame: frame, Ref: ref, Entity: e}.Encode()
		}
		if len(data) > network.MaxChunkSize {
			s.log.Error("Снимок %d не помещается в пакет (%d байт)", idx, len(data))
			continue
		}
		if !s.host.EnqueueUChunk(typ, data, int32(idx), ChannelState) {
			break
		}
		if typ == ChunkEntityFull {
			snapshots++
		} else {
			deletes++
		}
	}
	peer.updates = append(peer.updates[:0], peer.updates[n:]...)
	s.metrics.sent(snapshots, deletes)
}

func (s *Server) onActorDied(a *game.Actor, death game.DeathID) {
	pos := a.Pos()
	s.queueEvent(eventbus.EventActorDied, 3, eventbus.ActorDied{
		Actor: a.Ref().String(),
		Index: a.Ref().Index(),
		Proto: a.Proto().ID,
		Death: death.String(),
		PosX:  pos[0],
		PosY:  pos[1],
		PosZ:  pos[2],
	})
}

func (s *Server) queueEvent(eventType string, priority int, payload any) {
	if s.bus == nil {
		return
	}
	ev, err := eventbus.NewEnvelope(s.cfg.SessionID, eventType, s.world.Frame(), priority, payload)
	if err != nil {
		s.log.Error("%v", err)
		return
	}
	s.events = append(s.events, ev)
}

func (s *Server) publish(ctx context.Context, events []*eventbus.Envelope) {
	for _, ev := range events {
		if err := s.bus.Publish(ctx, ev); err != nil {
			s.log.Warn("Событие %s не опубликовано: %v", ev.EventType, err)
		}
	}
}

// Peers возвращает состояние подключённых клиентов
func (s *Server) Peers() []PeerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []PeerInfo
	for id, peer := range s.peers {
		if peer == nil {
			continue
		}
		info := PeerInfo{
			ID:       id,
			Name:     peer.Name,
			Address:  peer.Address.String(),
			Actor:    peer.Actor.String(),
			JoinedAt: peer.JoinedAt,
			Pending:  len(peer.updates),
		}
		if remote := s.host.RemoteHost(id); remote != nil {
			info.Verified = remote.IsVerified()
			info.Unacked = remote.UnackedPackets()
		}
		out = append(out, info)
	}
	return out
}

// Stats возвращает сводку состояния сервера
func (s *Server) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		SessionID: s.cfg.SessionID,
		MapName:   s.world.MapName(),
		Frame:     s.world.Frame(),
		Peers:     s.numPeers(),
		Entities:  len(s.world.Entities()),
		LastTick:  s.lastTick,
		Uptime:    time.Since(s.started),
	}
}

// sortUnique сортирует слоты и убирает повторы
func sortUnique(list []int) []int {
	if len(list) < 2 {
		return list
	}
	sort.Ints(list)
	out := list[:1]
	for _, v := range list[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
