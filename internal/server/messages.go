package server

import (
	"errors"
	"fmt"

	"github.com/annel0/iso-game/internal/game"
	"github.com/annel0/iso-game/internal/network"
	"github.com/annel0/iso-game/internal/protocol"
)

// Типы чанков игрового протокола
const (
	ChunkJoin network.ChunkType = iota + 1
	ChunkJoinAck
	ChunkLeave
	ChunkEntityFull
	ChunkEntityDelete
	ChunkActorOrder
)

// Каналы надёжных чанков
const (
	ChannelControl = 0 // join / leave / ack
	ChannelOrders  = 1
	ChannelState   = 2 // снимки сущностей (ненадёжные)
)

var errInvalidRef = errors.New("invalid entity ref")

const (
	maxNameLen  = 64
	maxTokenLen = 2048
)

// JoinRequest запрос на подключение. Token нужен, если сервер проверяет токены.
type JoinRequest struct {
	Name  string
	Token string
}

// JoinAck ответ на подключение
type JoinAck struct {
	PeerID  int
	MapName string
	Actor   game.EntityRef
	Frame   uint32
}

// EntityFull полный снимок сущности в слоте
type EntityFull struct {
	Frame  uint32
	Ref    game.EntityRef
	Entity game.Entity
}

// EntityDelete слот опустел
type EntityDelete struct {
	Frame uint32
	Index int
}

// OrderRequest приказ клиента своему актёру. По сети передаются только
// параметры выдачи; состояние выполнения сервер строит сам.
type OrderRequest struct {
	Force bool
	Order *game.Order
}

func writeRef(w *protocol.Writer, ref game.EntityRef) {
	if !ref.IsValid() {
		w.Varint(-1)
		return
	}
	w.Varint(int64(ref.Index()))
	w.Uvarint(uint64(ref.Generation()))
}

func readRef(r *protocol.Reader) game.EntityRef {
	index := r.Varint()
	if index < 0 {
		return game.EntityRef{}
	}
	gen := r.Uvarint()
	if gen > 1<<32-1 || index > 1<<30 {
		r.Fail(fmt.Errorf("bad entity ref %d#%d", index, gen))
		return game.EntityRef{}
	}
	return game.NewEntityRef(int(index), uint32(gen))
}

func finish(r *protocol.Reader, what string) error {
	if r.Err() != nil {
		return fmt.Errorf("decode %s: %w", what, r.Err())
	}
	if !r.AtEnd() {
		return fmt.Errorf("decode %s: %d trailing bytes", what, r.Remaining())
	}
	return nil
}

func (m JoinRequest) Encode() []byte {
	w := protocol.NewWriter(len(m.Name) + len(m.Token) + 8)
	w.String(m.Name)
	w.String(m.Token)
	return w.Bytes()
}

func DecodeJoinRequest(data []byte) (JoinRequest, error) {
	r := protocol.NewReader(data)
	m := JoinRequest{Name: r.String(), Token: r.String()}
	if len(m.Name) > maxNameLen {
		m.Name = m.Name[:maxNameLen]
	}
	if len(m.Token) > maxTokenLen {
		r.Fail(fmt.Errorf("token too long: %d", len(m.Token)))
	}
	return m, finish(r, "join")
}

func (m JoinAck) Encode() []byte {
	w := protocol.NewWriter(len(m.MapName) + 16)
	w.Varint(int64(m.PeerID))
	w.String(m.MapName)
	writeRef(w, m.Actor)
	w.U32(m.Frame)
	return w.Bytes()
}

func DecodeJoinAck(data []byte) (JoinAck, error) {
	r := protocol.NewReader(data)
	var m JoinAck
	m.PeerID = int(r.Varint())
	m.MapName = r.String()
	m.Actor = readRef(r)
	m.Frame = r.U32()
	return m, finish(r, "join ack")
}

func (m EntityFull) Encode() []byte {
	w := protocol.NewWriter(64)
	w.U32(m.Frame)
	writeRef(w, m.Ref)
	game.EncodeEntity(w, m.Entity)
	return w.Bytes()
}

// DecodeEntityFull разбирает снимок; сущность создаётся по прототипам реестра
func DecodeEntityFull(data []byte, reg *game.Registry) (EntityFull, error) {
	r := protocol.NewReader(data)
	var m EntityFull
	m.Frame = r.U32()
	m.Ref = readRef(r)
	if r.Err() != nil {
		return m, finish(r, "entity full")
	}
	if !m.Ref.IsValid() {
		return m, fmt.Errorf("decode entity full: %w", errInvalidRef)
	}
	e, err := game.DecodeEntity(r, reg)
	if err != nil {
		return m, err
	}
	m.Entity = e
	return m, finish(r, "entity full")
}

func (m EntityDelete) Encode() []byte {
	w := protocol.NewWriter(8)
	w.U32(m.Frame)
	w.Uvarint(uint64(m.Index))
	return w.Bytes()
}

func DecodeEntityDelete(data []byte) (EntityDelete, error) {
	r := protocol.NewReader(data)
	var m EntityDelete
	m.Frame = r.U32()
	idx := r.Uvarint()
	if idx > 1<<30 {
		r.Fail(fmt.Errorf("bad entity index %d", idx))
	}
	m.Index = int(idx)
	return m, finish(r, "entity delete")
}

func (m OrderRequest) Encode() []byte {
	w := protocol.NewWriter(32)
	w.Bool(m.Force)
	game.EncodeOrderRequest(w, m.Order)
	return w.Bytes()
}

func DecodeOrderRequest(data []byte) (OrderRequest, error) {
	r := protocol.NewReader(data)
	var m OrderRequest
	m.Force = r.Bool()
	if r.Err() != nil {
		return m, finish(r, "order")
	}
	o, err := game.DecodeOrderRequest(r)
	if err != nil {
		return m, err
	}
	m.Order = o
	return m, finish(r, "order")
}
