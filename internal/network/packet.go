package network

import (
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/iso-game/internal/protocol"
)

// Параметры протокола
const (
	// ProtocolID идентифицирует пакеты нашего протокола
	ProtocolID uint32 = 0x46544731

	// HeaderSize размер заголовка пакета в байтах
	HeaderSize = 17

	// MaxPacketSize максимальный размер UDP датаграммы
	MaxPacketSize = 1400

	// MaxChannels количество независимых каналов на один удалённый узел
	MaxChannels = 8

	// MaxUnackedPackets размер окна неподтверждённых пакетов
	MaxUnackedPackets = 16

	// MaxAcksPerFrame максимальное число подтверждений в одном блоке
	MaxAcksPerFrame = MaxUnackedPackets * 2

	// MaxRemoteHosts максимальное количество удалённых узлов на LocalHost
	MaxRemoteHosts = 32

	// MaxUnverifiedHosts ограничение на число неподтверждённых узлов
	MaxUnverifiedHosts = 4

	// chunkOverhead оценка накладных расходов заголовка чанка
	chunkOverhead = 8

	// MaxChunkSize максимальный размер данных одного чанка
	MaxChunkSize = MaxPacketSize - HeaderSize - chunkOverhead
)

// Флаги пакета
const (
	// FlagFirst отмечает первый пакет кадра, несущий блок подтверждений
	FlagFirst uint8 = 1
)

var (
	// ErrMalformedPacket возвращается при разборе повреждённого пакета
	ErrMalformedPacket = errors.New("network: malformed packet")
	// ErrChunkTooLarge возвращается, если чанк не помещается в пакет
	ErrChunkTooLarge = errors.New("network: chunk too large")
	// ErrInvalidChannel возвращается для номера канала вне диапазона
	ErrInvalidChannel = errors.New("network: invalid channel")
	// ErrNotSending возвращается при вызове отправки вне BeginSending/FinishSending
	ErrNotSending = errors.New("network: host is not sending")
	// ErrAlreadySending возвращается при повторном BeginSending
	ErrAlreadySending = errors.New("network: host is already sending")
	// ErrNoSlot возвращается, если для нового узла нет свободного слота
	ErrNoSlot = errors.New("network: no free remote host slot")
)

// SeqNumber номер пакета
type SeqNumber int32

// ChunkType тип полезной нагрузки чанка, определяется прикладным уровнем
type ChunkType uint8

// ChunkInvalid зарезервированный недопустимый тип
const ChunkInvalid ChunkType = 0

// PacketHeader заголовок пакета
type PacketHeader struct {
	ProtocolID uint32
	CurrentID  int16 // Слот отправителя, под которым он знает получателя
	RemoteID   int16 // Слот получателя, под которым тот знает отправителя (-1 если неизвестен)
	Flags      uint8
	Seq        SeqNumber
	Timestamp  uint32
}

// IsFirst сообщает, что пакет первый в кадре и несёт блок подтверждений
func (h PacketHeader) IsFirst() bool {
	return h.Flags&FlagFirst != 0
}

// Encode дописывает заголовок в writer
func (h PacketHeader) Encode(w *protocol.Writer) {
	w.U32(h.ProtocolID)
	w.I16(h.CurrentID)
	w.I16(h.RemoteID)
	w.U8(h.Flags)
	w.I32(int32(h.Seq))
	w.U32(h.Timestamp)
}

// DecodeHeader читает заголовок пакета
func DecodeHeader(r *protocol.Reader) (PacketHeader, error) {
	h := PacketHeader{
		ProtocolID: r.U32(),
		CurrentID:  r.I16(),
		RemoteID:   r.I16(),
		Flags:      r.U8(),
		Seq:        SeqNumber(r.I32()),
		Timestamp:  r.U32(),
	}
	if err := r.Err(); err != nil {
		return h, fmt.Errorf("%w: header: %v", ErrMalformedPacket, err)
	}
	return h, nil
}

// encodeAcks пишет блок подтверждений: количество, первый номер и далее
// varint(diff*2 + has_run) с опциональной длиной серии подряд идущих номеров.
func encodeAcks(w *protocol.Writer, acks []SeqNumber) {
	w.Varint(int64(len(acks)))
	if len(acks) == 0 {
		return
	}

	w.I32(int32(acks[0]))
	for i := 1; i < len(acks); {
		diff := int64(acks[i] - acks[i-1])
		count := 1
		for i+count < len(acks) && acks[i+count] == acks[i+count-1]+1 {
			count++
		}

		if count > 1 {
			w.Varint(diff*2 + 1)
			w.Varint(int64(count))
		} else {
			w.Varint(diff * 2)
		}
		i += count
	}
}

// decodeAcks читает блок подтверждений, дописывая номера в dst
func decodeAcks(r *protocol.Reader, dst []SeqNumber) ([]SeqNumber, error) {
	num := r.Varint()
	if r.Err() != nil || num < 0 || num > MaxAcksPerFrame {
		return dst, fmt.Errorf("%w: bad ack count %d", ErrMalformedPacket, num)
	}
	if num == 0 {
		return dst, nil
	}

	prev := SeqNumber(r.I32())
	dst = append(dst, prev)
	for i := int64(1); i < num; {
		code := r.Varint()
		count := int64(1)
		if code&1 != 0 {
			count = r.Varint()
		}
		if r.Err() != nil || count < 1 || i+count > num {
			return dst, fmt.Errorf("%w: bad ack run", ErrMalformedPacket)
		}

		prev += SeqNumber(code >> 1)
		dst = append(dst, prev)
		for j := int64(1); j < count; j++ {
			prev++
			dst = append(dst, prev)
		}
		i += count
	}

	if err := r.Err(); err != nil {
		return dst, fmt.Errorf("%w: acks: %v", ErrMalformedPacket, err)
	}
	return dst, nil
}

// sortUniqueAcks сортирует подтверждения и удаляет повторы
func sortUniqueAcks(acks []SeqNumber) []SeqNumber {
	sort.Slice(acks, func(i, j int) bool { return acks[i] < acks[j] })
	out := acks[:0]
	for i, a := range acks {
		if i == 0 || a != out[len(out)-1] {
			out = append(out, a)
		}
	}
	return out
}

// estimateSize оценивает размер чанка в пакете вместе с заголовком
func estimateSize(dataSize int) int {
	return dataSize + chunkOverhead
}

// encodeChunk пишет чанк: тип, id, channel*2+reliable, размер и данные
func encodeChunk(w *protocol.Writer, typ ChunkType, id int32, channel int, reliable bool, data []byte) {
	w.U8(uint8(typ))
	w.Varint(int64(id))
	ch := int64(channel) * 2
	if reliable {
		ch++
	}
	w.Varint(ch)
	w.Varint(int64(len(data)))
	w.Raw(data)
}

// decodeChunk читает очередной чанк пакета
func decodeChunk(r *protocol.Reader) (Chunk, error) {
	typ := ChunkType(r.U8())
	id := r.Varint()
	ch := r.Varint()
	size := r.Varint()
	if err := r.Err(); err != nil {
		return Chunk{}, fmt.Errorf("%w: chunk header: %v", ErrMalformedPacket, err)
	}

	channel := ch >> 1
	if channel < 0 || channel >= MaxChannels {
		return Chunk{}, fmt.Errorf("%w: bad channel %d", ErrMalformedPacket, channel)
	}
	if size < 0 || size > MaxPacketSize || int(size) > r.Remaining() {
		return Chunk{}, fmt.Errorf("%w: bad chunk size %d", ErrMalformedPacket, size)
	}

	data := make([]byte, size)
	copy(data, r.Raw(int(size)))
	return Chunk{
		Type:     typ,
		ID:       int32(id),
		Channel:  int(channel),
		Reliable: ch&1 != 0,
		Data:     data,
	}, nil
}
