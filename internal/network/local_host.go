package network

import (
	"fmt"
	"net/netip"

	"github.com/annel0/iso-game/internal/logging"
	"github.com/annel0/iso-game/internal/protocol"
)

// HostConfig параметры LocalHost
type HostConfig struct {
	// MaxBytesPerFrame бюджет отправки на один удалённый узел за кадр
	MaxBytesPerFrame int
	// UnverifiedTimeout число кадров без пакетов, после которого удаляется неподтверждённый узел
	UnverifiedTimeout uint32
	// Timeout то же для подтверждённого узла (0 отключает)
	Timeout uint32
	// AcceptPeers разрешает приём новых узлов (сервер)
	AcceptPeers bool
}

// DefaultHostConfig возвращает настройки по умолчанию
func DefaultHostConfig() HostConfig {
	return HostConfig{
		MaxBytesPerFrame:  MaxPacketSize * 4,
		UnverifiedTimeout: 120,
		Timeout:           600,
		AcceptPeers:       true,
	}
}

// LocalHost владеет сокетом и распределяет входящие пакеты по удалённым узлам
type LocalHost struct {
	socket          Socket
	cfg             HostConfig
	remotes         []*RemoteHost
	currentID       int
	unverifiedCount int
	timestamp       uint32
	buf             []byte

	metrics *Metrics
	logger  *logging.Logger
}

// NewLocalHost создаёт локальный узел поверх сокета
func NewLocalHost(socket Socket, cfg HostConfig) *LocalHost {
	if cfg.MaxBytesPerFrame <= 0 {
		cfg.MaxBytesPerFrame = MaxPacketSize * 4
	}
	return &LocalHost{
		socket:    socket,
		cfg:       cfg,
		currentID: -1,
		buf:       make([]byte, MaxPacketSize*2),
		logger:    netLogger(),
	}
}

// SetMetrics подключает метрики ко всем текущим и будущим удалённым узлам
func (h *LocalHost) SetMetrics(m *Metrics) {
	h.metrics = m
	for _, r := range h.remotes {
		if r != nil {
			r.SetMetrics(m)
		}
	}
}

func (h *LocalHost) Socket() Socket      { return h.socket }
func (h *LocalHost) Timestamp() uint32   { return h.timestamp }
func (h *LocalHost) NumRemoteHosts() int { return len(h.remotes) }

// RemoteHost возвращает узел по слоту или nil
func (h *LocalHost) RemoteHost(id int) *RemoteHost {
	if id < 0 || id >= len(h.remotes) {
		return nil
	}
	return h.remotes[id]
}

// BeginFrame принимает все доступные пакеты и раздаёт их удалённым узлам
func (h *LocalHost) BeginFrame() {
	h.receive()
}

// FinishFrame продвигает счётчик кадров и удаляет молчащие узлы.
// Возвращает слоты удалённых узлов.
func (h *LocalHost) FinishFrame() []int {
	h.timestamp++

	var evicted []int
	for id, r := range h.remotes {
		if r == nil {
			continue
		}

		limit := h.cfg.Timeout
		if !r.IsVerified() {
			limit = h.cfg.UnverifiedTimeout
		}
		if limit == 0 || h.timestamp-r.LastTimestamp() <= limit {
			continue
		}

		h.logger.Info("⏱️ Узел %s (слот %d) удалён по таймауту", r.Address(), id)
		h.removeRemoteHost(id, true)
		evicted = append(evicted, id)
	}
	return evicted
}

func (h *LocalHost) receive() {
	h.unverifiedCount = 0
	for _, r := range h.remotes {
		if r == nil {
			continue
		}
		if !r.IsVerified() {
			h.unverifiedCount++
		}
		r.BeginReceiving()
	}

	for {
		n, source, err := h.socket.Receive(h.buf)
		if err != nil {
			h.logger.Warn("Ошибка чтения сокета: %v", err)
			break
		}
		if n == 0 {
			break
		}
		if n < HeaderSize {
			continue
		}
		h.dispatch(h.buf[:n], source)
	}

	for _, r := range h.remotes {
		if r != nil {
			r.FinishReceiving()
		}
	}
}

// dispatch находит удалённый узел для пакета, при необходимости создавая новый
func (h *LocalHost) dispatch(data []byte, source netip.AddrPort) {
	r := protocol.NewReader(data)
	header, err := DecodeHeader(r)
	if err != nil || header.ProtocolID != ProtocolID {
		h.metrics.malformed()
		return
	}

	// В заголовке слоты указаны с точки зрения отправителя
	remoteID := int(header.CurrentID)
	currentID := int(header.RemoteID)

	if currentID == -1 {
		if !h.cfg.AcceptPeers {
			return
		}
		if id := h.findByAddress(source); id >= 0 {
			currentID = id
		} else if h.unverifiedCount < MaxUnverifiedHosts {
			id, err := h.AddRemoteHost(source, remoteID)
			if err != nil {
				h.logger.Debug("Узел %s не принят: %v", source, err)
				return
			}
			currentID = id
			h.unverifiedCount++
		} else {
			return
		}
	}

	remote := h.RemoteHost(currentID)
	if remote == nil {
		return
	}
	if remote.RemoteID() != -1 && remote.RemoteID() != remoteID {
		return
	}

	if remote.Address() != source {
		// Подтверждённый узел может сменить адрес (NAT), неподтверждённый - нет
		if !remote.IsVerified() || header.RemoteID < 0 {
			return
		}
		h.logger.Info("Узел %d сменил адрес %s -> %s", currentID, remote.Address(), source)
		remote.setAddress(source)
	}

	remote.Receive(header, data[HeaderSize:], h.timestamp)

	if !remote.IsVerified() && header.RemoteID >= 0 && remote.RemoteID() == remoteID {
		remote.verify()
		h.logger.Info("✅ Узел %s подтверждён (слот %d, удалённый слот %d)", source, currentID, remoteID)
	}
}

func (h *LocalHost) findByAddress(addr netip.AddrPort) int {
	for id, r := range h.remotes {
		if r != nil && r.Address() == addr {
			return id
		}
	}
	return -1
}

// AddRemoteHost регистрирует удалённый узел. remoteID - наш слот на той стороне
// (-1 если неизвестен). Для уже известного адреса возвращает существующий слот.
func (h *LocalHost) AddRemoteHost(addr netip.AddrPort, remoteID int) (int, error) {
	if id := h.findByAddress(addr); id >= 0 {
		return id, nil
	}

	idx := -1
	for id, r := range h.remotes {
		if r == nil {
			idx = id
			break
		}
	}
	if idx == -1 {
		if len(h.remotes) >= MaxRemoteHosts {
			return -1, ErrNoSlot
		}
		h.remotes = append(h.remotes, nil)
		idx = len(h.remotes) - 1
	}

	remote := NewRemoteHost(addr, h.cfg.MaxBytesPerFrame, idx, remoteID)
	remote.lastTimestamp = h.timestamp
	remote.SetMetrics(h.metrics)
	h.remotes[idx] = remote
	h.metrics.peerAdmitted()

	h.logger.Debug("Новый узел %s в слоте %d", addr, idx)
	return idx, nil
}

// RemoveRemoteHost освобождает слот удалённого узла
func (h *LocalHost) RemoveRemoteHost(id int) {
	h.removeRemoteHost(id, false)
}

func (h *LocalHost) removeRemoteHost(id int, evicted bool) {
	if h.RemoteHost(id) == nil {
		return
	}
	if h.currentID == id {
		h.currentID = -1
	}
	h.remotes[id] = nil
	h.metrics.peerRemoved(evicted)
}

// BeginSending начинает отправку удалённому узлу id
func (h *LocalHost) BeginSending(id int) error {
	if h.currentID != -1 {
		return ErrAlreadySending
	}
	remote := h.RemoteHost(id)
	if remote == nil {
		return fmt.Errorf("network: no remote host in slot %d", id)
	}
	if err := remote.BeginSending(h.socket, h.timestamp); err != nil {
		return err
	}
	h.currentID = id
	return nil
}

// EnqueueChunk ставит надёжный чанк текущему узлу
func (h *LocalHost) EnqueueChunk(typ ChunkType, data []byte, channel int) error {
	if h.currentID == -1 {
		return ErrNotSending
	}
	return h.remotes[h.currentID].EnqueueChunk(typ, data, channel)
}

// EnqueueUChunk отправляет ненадёжный чанк текущему узлу
func (h *LocalHost) EnqueueUChunk(typ ChunkType, data []byte, identifier int32, channel int) bool {
	if h.currentID == -1 {
		return false
	}
	return h.remotes[h.currentID].EnqueueUChunk(typ, data, identifier, channel)
}

// FinishSending завершает отправку текущему узлу
func (h *LocalHost) FinishSending() error {
	if h.currentID == -1 {
		return ErrNotSending
	}
	err := h.remotes[h.currentID].FinishSending()
	h.currentID = -1
	return err
}

// Close закрывает сокет
func (h *LocalHost) Close() error {
	return h.socket.Close()
}
