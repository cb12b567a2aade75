package network

import (
	"net/netip"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/iso-game/internal/protocol"
)

// captureSocket запоминает отправленные пакеты
type captureSocket struct {
	packets [][]byte
}

func (s *captureSocket) Send(data []byte, _ netip.AddrPort) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.packets = append(s.packets, buf)
	return nil
}

func (s *captureSocket) Receive([]byte) (int, netip.AddrPort, error) {
	return 0, netip.AddrPort{}, nil
}

func (s *captureSocket) LocalAddr() netip.AddrPort { return netip.AddrPort{} }
func (s *captureSocket) Close() error              { return nil }

var (
	addrA = netip.MustParseAddrPort("127.0.0.1:1001")
	addrB = netip.MustParseAddrPort("127.0.0.1:1002")
)

func newPair() (*RemoteHost, *RemoteHost) {
	a := NewRemoteHost(addrB, MaxPacketSize*4, 0, 0)
	b := NewRemoteHost(addrA, MaxPacketSize*4, 0, 0)
	return a, b
}

// sendFrame выполняет один кадр отправки и возвращает отправленные пакеты
func sendFrame(t *testing.T, h *RemoteHost, fn func()) [][]byte {
	t.Helper()
	sock := &captureSocket{}
	require.NoError(t, h.BeginSending(sock, 0))
	if fn != nil {
		fn()
	}
	require.NoError(t, h.FinishSending())
	return sock.packets
}

// receiveFrame передаёт пакеты узлу как один кадр приёма
func receiveFrame(t *testing.T, h *RemoteHost, packets ...[]byte) {
	t.Helper()
	h.BeginReceiving()
	for _, p := range packets {
		header, err := DecodeHeader(protocol.NewReader(p))
		require.NoError(t, err)
		h.Receive(header, p[HeaderSize:], 0)
	}
	h.FinishReceiving()
}

func drain(h *RemoteHost) []Chunk {
	var out []Chunk
	for {
		c, ok := h.NextChunk()
		if !ok {
			return out
		}
		out = append(out, c)
	}
}

// buildPacket собирает пакет вручную
func buildPacket(seq SeqNumber, acks []SeqNumber, chunks ...Chunk) []byte {
	w := protocol.NewWriter(MaxPacketSize)
	var flags uint8
	if acks != nil {
		flags = FlagFirst
	}
	PacketHeader{ProtocolID: ProtocolID, Flags: flags, Seq: seq}.Encode(w)
	if acks != nil {
		encodeAcks(w, acks)
	}
	for _, c := range chunks {
		encodeChunk(w, c.Type, c.ID, c.Channel, c.Reliable, c.Data)
	}
	return w.Bytes()
}

func TestAckBlockRoundTrip(t *testing.T) {
	acks := []SeqNumber{3, 4, 5, 9, 10, 20, 18}
	w := protocol.NewWriter(64)
	encodeAcks(w, acks)

	got, err := decodeAcks(protocol.NewReader(w.Bytes()), nil)
	require.NoError(t, err)
	assert.Equal(t, acks, got)
}

func TestAckBlockRejectsBadCount(t *testing.T) {
	w := protocol.NewWriter(8)
	w.Varint(MaxAcksPerFrame + 1)
	_, err := decodeAcks(protocol.NewReader(w.Bytes()), nil)
	assert.ErrorIs(t, err, ErrMalformedPacket)

	// Серия выходит за объявленное количество
	w = protocol.NewWriter(16)
	w.Varint(2)
	w.I32(5)
	w.Varint(1*2 + 1)
	w.Varint(3)
	_, err = decodeAcks(protocol.NewReader(w.Bytes()), nil)
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestReliableAckRoundTrip(t *testing.T) {
	a, b := newPair()

	out := sendFrame(t, a, func() {
		for i := 0; i < 10; i++ {
			require.NoError(t, a.EnqueueChunk(ChunkType(1), []byte{byte(i)}, 0))
		}
	})
	require.Len(t, out, 1)
	assert.Equal(t, 10, a.InFlightChunks())
	assert.Equal(t, 1, a.UnackedPackets())

	receiveFrame(t, b, out...)
	chunks := drain(b)
	require.Len(t, chunks, 10)
	for i, c := range chunks {
		assert.Equal(t, int32(i), c.ID)
		assert.Equal(t, []byte{byte(i)}, c.Data)
	}

	receiveFrame(t, a, sendFrame(t, b, nil)...)

	assert.Equal(t, 0, a.PendingChunks(0))
	assert.Equal(t, 0, a.InFlightChunks())
	assert.Equal(t, 0, a.UnackedPackets())
}

func TestLostPacketRequeuesChunksOnce(t *testing.T) {
	a, b := newPair()

	// Первый пакет теряется
	lost := sendFrame(t, a, func() {
		for i := 0; i < 10; i++ {
			require.NoError(t, a.EnqueueChunk(ChunkType(1), []byte("payload"), 0))
		}
	})
	require.Len(t, lost, 1)

	second := sendFrame(t, a, nil)
	receiveFrame(t, b, second...)
	ack := sendFrame(t, b, nil)

	receiveFrame(t, a, ack...)
	assert.Equal(t, 10, a.PendingChunks(0))
	assert.Equal(t, 0, a.InFlightChunks())

	// Повторное подтверждение того же номера ничего не меняет
	receiveFrame(t, a, sendFrame(t, b, nil)...)
	assert.Equal(t, 10, a.PendingChunks(0))

	// Переотправленные чанки доходят в исходном порядке
	receiveFrame(t, b, sendFrame(t, a, nil)...)
	chunks := drain(b)
	require.Len(t, chunks, 10)
	for i, c := range chunks {
		assert.Equal(t, int32(i), c.ID)
	}
}

func TestInOrderDelivery(t *testing.T) {
	b := NewRemoteHost(addrA, MaxPacketSize*4, 0, 0)
	rc := func(id int32) Chunk {
		return Chunk{Type: 2, ID: id, Channel: 1, Reliable: true, Data: []byte{byte(id)}}
	}

	receiveFrame(t, b, buildPacket(0, []SeqNumber{}, rc(0), rc(1), rc(2)))
	require.Len(t, drain(b), 3)

	receiveFrame(t, b, buildPacket(1, []SeqNumber{}, rc(5)))
	assert.Empty(t, drain(b))
	assert.Equal(t, 1, b.BacklogChunks())

	// 3 выдаётся сразу, 5 ждёт пропущенный 4
	receiveFrame(t, b, buildPacket(2, []SeqNumber{}, rc(3)))
	chunks := drain(b)
	require.Len(t, chunks, 1)
	assert.Equal(t, int32(3), chunks[0].ID)
	assert.Equal(t, 1, b.BacklogChunks())

	receiveFrame(t, b, buildPacket(3, []SeqNumber{}, rc(4)))
	chunks = drain(b)
	require.Len(t, chunks, 2)
	assert.Equal(t, int32(4), chunks[0].ID)
	assert.Equal(t, int32(5), chunks[1].ID)
	assert.Equal(t, 0, b.BacklogChunks())
}

func TestDuplicateChunksDiscarded(t *testing.T) {
	b := NewRemoteHost(addrA, MaxPacketSize*4, 0, 0)
	c := Chunk{Type: 1, ID: 0, Reliable: true, Data: []byte("x")}

	receiveFrame(t, b, buildPacket(0, []SeqNumber{}, c))
	receiveFrame(t, b, buildPacket(1, []SeqNumber{}, c, c))
	assert.Len(t, drain(b), 1)
	assert.Equal(t, 0, b.BacklogChunks())
}

func TestUnreliableChunkNotRetransmitted(t *testing.T) {
	a, b := newPair()

	sendFrame(t, a, func() {
		assert.True(t, a.EnqueueUChunk(ChunkType(3), []byte("snapshot"), 42, 1))
	})

	receiveFrame(t, b, sendFrame(t, a, nil)...)
	receiveFrame(t, a, sendFrame(t, b, nil)...)

	assert.Equal(t, []int32{42}, a.TakeLostUChunks())
	assert.Empty(t, a.TakeLostUChunks())
	for c := 0; c < MaxChannels; c++ {
		assert.Equal(t, 0, a.PendingChunks(c))
	}
	assert.Equal(t, 0, a.InFlightChunks())
}

func TestUnreliableChunkDeliveredImmediately(t *testing.T) {
	a, b := newPair()

	out := sendFrame(t, a, func() {
		require.NoError(t, a.EnqueueChunk(1, []byte("r"), 0))
		assert.True(t, a.EnqueueUChunk(2, []byte("u"), 7, 3))
	})
	receiveFrame(t, b, out...)

	chunks := drain(b)
	require.Len(t, chunks, 2)
	// Надёжный чанк канала 0 отправлен раньше ненадёжного чанка канала 3
	var ids []int32
	for _, c := range chunks {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []int32{0, 7}, ids)
}

func TestByteBudget(t *testing.T) {
	a := NewRemoteHost(addrB, 200, 0, 0)
	sock := &captureSocket{}
	require.NoError(t, a.BeginSending(sock, 0))

	big := make([]byte, 150)
	assert.True(t, a.EnqueueUChunk(1, big, 1, 0))
	assert.False(t, a.EnqueueUChunk(1, big, 2, 0), "второй чанк не помещается в бюджет кадра")

	require.NoError(t, a.EnqueueChunk(1, big, 0))
	require.NoError(t, a.FinishSending())
	assert.Equal(t, 1, a.PendingChunks(0), "надёжный чанк ждёт следующего кадра")

	sendFrame(t, a, nil)
	assert.Equal(t, 0, a.PendingChunks(0))
}

func TestLargeFrameSplitsIntoPackets(t *testing.T) {
	a, b := newPair()
	payload := make([]byte, 1000)

	out := sendFrame(t, a, func() {
		for i := 0; i < 4; i++ {
			require.NoError(t, a.EnqueueChunk(1, payload, 0))
		}
	})
	assert.Len(t, out, 4)
	for _, p := range out {
		assert.LessOrEqual(t, len(p), MaxPacketSize)
	}

	receiveFrame(t, b, out...)
	assert.Len(t, drain(b), 4)
}

func TestFollowOnPacketCountsAgainstBudget(t *testing.T) {
	payload := make([]byte, 1000)
	// первый пакет: заголовок и пустой блок подтверждений
	first := HeaderSize + 1
	// чанк с id < 64, каналом 0 и длиной 1000: 1+1+1+2 байта служебных полей
	chunk := len(payload) + 5

	frame := func(maxBPF int) (bool, int) {
		a := NewRemoteHost(addrB, maxBPF, 0, 0)
		var second bool
		out := sendFrame(t, a, func() {
			require.True(t, a.EnqueueUChunk(1, payload, 1, 0))
			second = a.EnqueueUChunk(1, payload, 2, 0)
		})
		total := 0
		for _, p := range out {
			total += len(p)
		}
		assert.LessOrEqual(t, total, maxBPF)
		return second, len(out)
	}

	// без заголовка второго пакета оба чанка уложились бы в бюджет
	tight := first + 2*chunk + HeaderSize - 1
	second, packets := frame(tight)
	assert.False(t, second, "заголовок второго пакета не помещается в бюджет")
	assert.Equal(t, 1, packets)

	second, packets = frame(tight + 64)
	assert.True(t, second)
	assert.Equal(t, 2, packets)
}

func TestEnqueueChunkValidation(t *testing.T) {
	a, _ := newPair()
	assert.ErrorIs(t, a.EnqueueChunk(1, nil, MaxChannels), ErrInvalidChannel)
	assert.ErrorIs(t, a.EnqueueChunk(1, make([]byte, MaxChunkSize+1), 0), ErrChunkTooLarge)
	assert.ErrorIs(t, a.FinishSending(), ErrNotSending)
	assert.False(t, a.EnqueueUChunk(1, nil, 0, 0))
}

func TestMalformedPacketIsNotAcked(t *testing.T) {
	b := NewRemoteHost(addrA, MaxPacketSize*4, 0, 0)
	m := NewMetrics(nil)
	b.SetMetrics(m)

	good := Chunk{Type: 1, ID: 0, Reliable: true, Data: []byte("ok")}
	p := buildPacket(0, []SeqNumber{}, good)
	// Чанк с недопустимым каналом
	w := protocol.NewWriter(16)
	w.Raw(p)
	w.U8(1)
	w.Varint(1)
	w.Varint(MaxChannels*2 + 1)
	w.Varint(1)
	w.U8(0)

	receiveFrame(t, b, w.Bytes())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MalformedPackets))
	assert.Len(t, drain(b), 1)
	assert.Empty(t, b.outAcks)

	// Следующий корректный пакет обрабатывается как обычно
	receiveFrame(t, b, buildPacket(1, []SeqNumber{}, Chunk{Type: 1, ID: 1, Reliable: true}))
	assert.Len(t, drain(b), 1)
	assert.Equal(t, []SeqNumber{1}, b.outAcks)
}

func TestStalePacketDropped(t *testing.T) {
	b := NewRemoteHost(addrA, MaxPacketSize*4, 0, 0)
	m := NewMetrics(nil)
	b.SetMetrics(m)

	receiveFrame(t, b, buildPacket(5, []SeqNumber{}))
	receiveFrame(t, b, buildPacket(3, []SeqNumber{}, Chunk{Type: 1, ID: 0, Reliable: true}))

	assert.Empty(t, drain(b))
	assert.Equal(t, []SeqNumber{5}, b.outAcks)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PacketsDropped))
}

func TestUnackedWindowOverflowResends(t *testing.T) {
	a, _ := newPair()

	sendFrame(t, a, func() {
		require.NoError(t, a.EnqueueChunk(1, []byte("x"), 2))
	})
	for i := 0; i < MaxUnackedPackets; i++ {
		sendFrame(t, a, nil)
	}
	assert.Equal(t, MaxUnackedPackets+1, a.UnackedPackets())

	a.BeginReceiving()
	a.FinishReceiving()

	assert.Equal(t, MaxUnackedPackets, a.UnackedPackets())
	assert.Equal(t, 1, a.PendingChunks(2))
}
