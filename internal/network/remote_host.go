package network

import (
	"fmt"
	"net/netip"
	"sort"
	"strconv"

	"github.com/annel0/iso-game/internal/logging"
	"github.com/annel0/iso-game/internal/protocol"
)

func netLogger() *logging.Logger {
	return logging.GetNetworkLogger()
}

// inPacket принятый, но ещё не обработанный пакет
type inPacket struct {
	header  PacketHeader
	payload []byte
}

// RemoteHost состояние обмена с одним удалённым узлом: очереди каналов,
// окно неподтверждённых пакетов, буфер упорядочивания входящих чанков.
type RemoteHost struct {
	address       netip.AddrPort
	maxBPF        int
	currentID     int
	remoteID      int
	verified      bool
	lastTimestamp uint32

	chunks   chunkArena
	channels [MaxChannels]channelState

	// Отправка
	socket    Socket
	sending   bool
	timestamp uint32
	out       *protocol.Writer
	outSeq    SeqNumber
	current   *sentPacket
	bytesLeft int
	unacked   []*sentPacket // От старых к новым
	outAcks   []SeqNumber
	lost      []int32

	// Приём
	inPackets []inPacket
	inSeq     SeqNumber
	inAcks    []SeqNumber
	incoming  []int // Надёжные чанки текущего кадра
	backlog   []int // Надёжные чанки, ждущие пропущенных предшественников
	delivered indexQueue

	metrics *Metrics
	logger  *logging.Logger
	trace   []byte
}

// NewRemoteHost создаёт состояние удалённого узла.
// currentID - слот этого узла у нас, remoteID - наш слот у удалённого узла (-1 если неизвестен).
func NewRemoteHost(address netip.AddrPort, maxBytesPerFrame, currentID, remoteID int) *RemoteHost {
	return &RemoteHost{
		address:   address,
		maxBPF:    maxBytesPerFrame,
		currentID: currentID,
		remoteID:  remoteID,
		out:       protocol.NewWriter(MaxPacketSize),
		outSeq:    -1,
		inSeq:     -1,
		logger:    netLogger(),
	}
}

func (h *RemoteHost) Address() netip.AddrPort { return h.address }
func (h *RemoteHost) CurrentID() int          { return h.currentID }
func (h *RemoteHost) RemoteID() int           { return h.remoteID }
func (h *RemoteHost) IsVerified() bool        { return h.verified }
func (h *RemoteHost) IsSending() bool         { return h.sending }
func (h *RemoteHost) LastTimestamp() uint32   { return h.lastTimestamp }

// SetMetrics подключает метрики транспорта
func (h *RemoteHost) SetMetrics(m *Metrics) { h.metrics = m }

// BeginSending открывает первый пакет кадра и записывает в него блок подтверждений
func (h *RemoteHost) BeginSending(socket Socket, timestamp uint32) error {
	if h.sending {
		return ErrAlreadySending
	}
	h.socket = socket
	h.sending = true
	h.timestamp = timestamp

	h.newPacket(true)

	numAcks := len(h.outAcks)
	if numAcks > MaxAcksPerFrame {
		numAcks = MaxAcksPerFrame
	}
	encodeAcks(h.out, h.outAcks[:numAcks])
	if drop := len(h.outAcks) - MaxUnackedPackets; drop > 0 {
		h.outAcks = append(h.outAcks[:0], h.outAcks[drop:]...)
	}

	h.bytesLeft = h.maxBPF - h.out.Len()
	return nil
}

// EnqueueChunk ставит надёжный чанк в очередь канала. Чанк будет отправлен
// (и переотправлен при потере) в порядке приоритета каналов.
func (h *RemoteHost) EnqueueChunk(typ ChunkType, data []byte, channel int) error {
	if channel < 0 || channel >= MaxChannels {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	if len(data) > MaxChunkSize {
		return fmt.Errorf("%w: %d bytes", ErrChunkTooLarge, len(data))
	}

	ch := &h.channels[channel]
	buf := make([]byte, len(data))
	copy(buf, data)

	idx := h.chunks.alloc(Chunk{
		Type:     typ,
		ID:       ch.lastChunkID,
		Channel:  channel,
		Reliable: true,
		Data:     buf,
	}, chunkPending)
	ch.lastChunkID++
	ch.pending.push(idx)
	return nil
}

// EnqueueUChunk сразу отправляет ненадёжный чанк. Возвращает false, если он
// не помещается в бюджет кадра; вызывающий может повторить попытку позже.
// Перед ним отправляются ожидающие надёжные чанки каналов с большим приоритетом.
func (h *RemoteHost) EnqueueUChunk(typ ChunkType, data []byte, identifier int32, channel int) bool {
	if !h.sending || channel < 0 || channel >= MaxChannels || len(data) > MaxChunkSize {
		return false
	}
	if !h.canFit(len(data)) {
		return false
	}

	h.sendChunks(channel - 1)

	if !h.writeChunk(typ, identifier, channel, false, data) {
		return false
	}
	h.current.uchunks = append(h.current.uchunks, uchunkRef{id: identifier, channel: channel})
	return true
}

// FinishSending отправляет оставшиеся чанки в пределах бюджета и закрывает кадр
func (h *RemoteHost) FinishSending() error {
	if !h.sending {
		return ErrNotSending
	}

	h.sendChunks(MaxChannels - 1)
	if h.out.Len() > HeaderSize {
		h.sendPacket()
	} else {
		// Пустой пакет не отправляется, его номер переиспользуется
		h.current = nil
		h.outSeq--
	}

	h.sending = false
	h.socket = nil
	return nil
}

// BytesLeft возвращает остаток бюджета текущего кадра
func (h *RemoteHost) BytesLeft() int { return h.bytesLeft }

func (h *RemoteHost) canFit(dataSize int) bool {
	return estimateSize(dataSize) <= h.bytesLeft
}

func (h *RemoteHost) newPacket(first bool) {
	h.outSeq++
	h.current = &sentPacket{seq: h.outSeq}

	var flags uint8
	if first {
		flags = FlagFirst
	}

	h.out.Reset()
	PacketHeader{
		ProtocolID: ProtocolID,
		CurrentID:  int16(h.currentID),
		RemoteID:   int16(h.remoteID),
		Flags:      flags,
		Seq:        h.outSeq,
		Timestamp:  h.timestamp,
	}.Encode(h.out)

	if h.logger.Enabled(logging.TRACE) {
		h.trace = h.trace[:0]
	}
}

func (h *RemoteHost) sendPacket() {
	data := h.out.Bytes()
	if h.logger.Enabled(logging.TRACE) && len(h.trace) > 0 {
		h.logger.Trace("OUT(size:%d id:%d)[ %s]", len(data), h.outSeq, h.trace)
	}

	if err := h.socket.Send(data, h.address); err != nil {
		h.logger.Debug("Ошибка отправки пакета %d на %s: %v", h.outSeq, h.address, err)
	}
	h.metrics.packetSent(len(data))

	h.unacked = append(h.unacked, h.current)
	h.current = nil
}

// sendChunks отправляет ожидающие надёжные чанки каналов 0..maxChannel,
// останавливаясь на первом не поместившемся чанке.
func (h *RemoteHost) sendChunks(maxChannel int) {
	for c := 0; c <= maxChannel; c++ {
		ch := &h.channels[c]
		for !ch.pending.empty() {
			idx := ch.pending.front()
			chunk := h.chunks.get(idx)
			if !h.writeChunk(chunk.Type, chunk.ID, chunk.Channel, true, chunk.Data) {
				return
			}
			ch.pending.pop()
			h.chunks.move(idx, chunkPending, chunkInFlight)
			h.current.chunks = append(h.current.chunks, idx)
		}
	}
}

// writeChunk записывает чанк в текущий пакет, при нехватке места
// отправляя его и открывая новый.
func (h *RemoteHost) writeChunk(typ ChunkType, id int32, channel int, reliable bool, data []byte) bool {
	size := estimateSize(len(data))
	split := MaxPacketSize-h.out.Len() < size
	if split {
		// Заголовок нового пакета тоже расходует бюджет кадра
		size += HeaderSize
	}
	if size > h.bytesLeft {
		return false
	}

	if split {
		h.sendPacket()
		h.newPacket(false)
		h.bytesLeft -= HeaderSize
	}

	prev := h.out.Len()
	encodeChunk(h.out, typ, id, channel, reliable, data)
	h.bytesLeft -= h.out.Len() - prev

	if h.logger.Enabled(logging.TRACE) {
		h.trace = strconv.AppendInt(h.trace, int64(id), 10)
		h.trace = append(h.trace, ':')
		h.trace = strconv.AppendInt(h.trace, int64(typ), 10)
		h.trace = append(h.trace, ' ')
	}
	return true
}

// BeginReceiving начинает кадр приёма
func (h *RemoteHost) BeginReceiving() {
	h.inPackets = h.inPackets[:0]
	h.inAcks = h.inAcks[:0]
}

// Receive буферизует принятый пакет до FinishReceiving
func (h *RemoteHost) Receive(header PacketHeader, payload []byte, timestamp uint32) {
	h.lastTimestamp = timestamp
	if h.remoteID == -1 {
		h.remoteID = int(header.CurrentID)
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)
	h.inPackets = append(h.inPackets, inPacket{header: header, payload: buf})
	h.metrics.packetReceived(len(payload) + HeaderSize)
}

// FinishReceiving обрабатывает пакеты кадра в порядке номеров, доставляет
// готовые чанки и разбирает подтверждения.
func (h *RemoteHost) FinishReceiving() {
	sort.SliceStable(h.inPackets, func(i, j int) bool {
		return h.inPackets[i].header.Seq < h.inPackets[j].header.Seq
	})

	for i := range h.inPackets {
		p := &h.inPackets[i]
		if err := h.handlePacket(p); err != nil {
			h.metrics.malformed()
			h.logger.LogProtocolError(h.address.String(), err, p.payload)
		}
	}
	h.inPackets = h.inPackets[:0]

	h.deliverChunks()
	h.resolveAcks()
}

// handlePacket разбирает один пакет. Устаревшие и повторные пакеты
// отбрасываются без подтверждения. Повреждённый пакет не подтверждается,
// чанки до места ошибки остаются принятыми.
func (h *RemoteHost) handlePacket(p *inPacket) error {
	if p.header.Seq <= h.inSeq {
		h.metrics.packetDropped()
		return nil
	}
	h.inSeq = p.header.Seq

	r := protocol.NewReader(p.payload)
	if p.header.IsFirst() {
		acks, err := decodeAcks(r, h.inAcks)
		if err != nil {
			return err
		}
		h.inAcks = acks
	}

	var trace []byte
	tracing := h.logger.Enabled(logging.TRACE)

	for !r.AtEnd() {
		chunk, err := decodeChunk(r)
		if err != nil {
			return err
		}

		if tracing {
			trace = strconv.AppendInt(trace, int64(chunk.ID), 10)
			trace = append(trace, ':')
			trace = strconv.AppendInt(trace, int64(chunk.Type), 10)
			trace = append(trace, ' ')
		}

		if chunk.Reliable {
			h.incoming = append(h.incoming, h.chunks.alloc(chunk, chunkBacklog))
		} else {
			h.delivered.push(h.chunks.alloc(chunk, chunkDelivered))
		}
	}

	if tracing && len(trace) > 0 {
		h.logger.Trace(" IN(size:%d id:%d)[ %s]", len(p.payload)+HeaderSize, p.header.Seq, trace)
	}

	h.outAcks = append(h.outAcks, p.header.Seq)
	return nil
}

// deliverChunks объединяет чанки кадра с отложенными и выдаёт те,
// чей номер совпадает с ожидаемым номером канала.
func (h *RemoteHost) deliverChunks() {
	if len(h.incoming) == 0 && len(h.backlog) == 0 {
		return
	}

	all := append(h.backlog, h.incoming...)
	h.incoming = h.incoming[:0]
	sort.SliceStable(all, func(i, j int) bool {
		a, b := h.chunks.get(all[i]), h.chunks.get(all[j])
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.ID < b.ID
	})

	keep := all[:0]
	for _, idx := range all {
		chunk := h.chunks.get(idx)
		ch := &h.channels[chunk.Channel]

		switch {
		case chunk.ID == ch.nextInID:
			ch.nextInID++
			h.chunks.move(idx, chunkBacklog, chunkDelivered)
			h.delivered.push(idx)
		case chunk.ID < ch.nextInID:
			// Повторно полученный чанк
			h.chunks.release(idx, chunkBacklog)
		default:
			keep = append(keep, idx)
		}
	}
	h.backlog = keep
}

// resolveAcks сопоставляет подтверждения с неподтверждёнными пакетами (от старых к новым).
// Пакет, для которого пришло подтверждение более позднего номера, считается потерянным.
func (h *RemoteHost) resolveAcks() {
	h.inAcks = sortUniqueAcks(h.inAcks)

	ai := 0
	for len(h.unacked) > 0 && ai < len(h.inAcks) {
		packet := h.unacked[0]
		acked := h.inAcks[ai]

		switch {
		case acked == packet.seq:
			h.acceptPacket(packet)
			h.unacked = h.unacked[1:]
			ai++
		case acked > packet.seq:
			h.resendPacket(packet)
			h.unacked = h.unacked[1:]
		default:
			ai++
		}
	}

	for len(h.unacked) > MaxUnackedPackets {
		h.resendPacket(h.unacked[0])
		h.unacked = h.unacked[1:]
	}
}

func (h *RemoteHost) acceptPacket(p *sentPacket) {
	for _, idx := range p.chunks {
		h.chunks.release(idx, chunkInFlight)
	}
	p.chunks = nil
	p.uchunks = nil
}

// resendPacket возвращает надёжные чанки пакета в очереди их каналов,
// идентификаторы ненадёжных чанков попадают в список потерянных.
func (h *RemoteHost) resendPacket(p *sentPacket) {
	for _, idx := range p.chunks {
		h.chunks.move(idx, chunkInFlight, chunkPending)
		h.channels[h.chunks.get(idx).Channel].pending.push(idx)
	}
	for _, u := range p.uchunks {
		h.lost = append(h.lost, u.id)
	}
	h.metrics.resent(len(p.chunks), len(p.uchunks))

	if len(p.chunks) > 0 {
		h.logger.Trace("Пакет %d для %s потерян, %d чанков в очереди на переотправку", p.seq, h.address, len(p.chunks))
	}
	p.chunks = nil
	p.uchunks = nil
}

// NextChunk возвращает очередной доставленный чанк
func (h *RemoteHost) NextChunk() (Chunk, bool) {
	if h.delivered.empty() {
		return Chunk{}, false
	}
	idx := h.delivered.pop()
	chunk := *h.chunks.get(idx)
	h.chunks.release(idx, chunkDelivered)
	return chunk, true
}

// TakeLostUChunks возвращает идентификаторы ненадёжных чанков из потерянных
// пакетов и очищает список.
func (h *RemoteHost) TakeLostUChunks() []int32 {
	lost := h.lost
	h.lost = nil
	return lost
}

// PendingChunks возвращает число надёжных чанков, ожидающих отправки в канале
func (h *RemoteHost) PendingChunks(channel int) int {
	return h.channels[channel].pending.len()
}

// InFlightChunks возвращает число отправленных, но не подтверждённых чанков
func (h *RemoteHost) InFlightChunks() int {
	return h.chunks.count(chunkInFlight)
}

// UnackedPackets возвращает размер окна неподтверждённых пакетов
func (h *RemoteHost) UnackedPackets() int {
	return len(h.unacked)
}

// BacklogChunks возвращает число принятых чанков, ожидающих пропущенных предшественников
func (h *RemoteHost) BacklogChunks() int {
	return len(h.backlog)
}

func (h *RemoteHost) verify() { h.verified = true }

func (h *RemoteHost) setAddress(addr netip.AddrPort) { h.address = addr }
