package network

import "fmt"

// Chunk единица полезной нагрузки канала
type Chunk struct {
	Type     ChunkType
	ID       int32 // Номер чанка в канале или идентификатор ненадёжного чанка
	Channel  int
	Reliable bool
	Data     []byte
}

// chunkState определяет, в каком списке сейчас находится слот арены
type chunkState uint8

const (
	chunkFree      chunkState = iota
	chunkPending              // В очереди канала на отправку
	chunkInFlight             // Отправлен, ждёт подтверждения пакета
	chunkBacklog              // Получен, ждёт своей очереди на доставку
	chunkDelivered            // Готов к выдаче приложению
)

func (s chunkState) String() string {
	switch s {
	case chunkFree:
		return "free"
	case chunkPending:
		return "pending"
	case chunkInFlight:
		return "in-flight"
	case chunkBacklog:
		return "backlog"
	case chunkDelivered:
		return "delivered"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type chunkSlot struct {
	chunk Chunk
	state chunkState
}

// chunkArena хранит чанки в слотах; каждый слот принадлежит ровно одному списку.
// Переход между списками проверяется, нарушение инварианта приводит к панике.
type chunkArena struct {
	slots []chunkSlot
	free  []int
}

func (a *chunkArena) alloc(c Chunk, state chunkState) int {
	var idx int
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, chunkSlot{})
		idx = len(a.slots) - 1
	}
	a.slots[idx] = chunkSlot{chunk: c, state: state}
	return idx
}

func (a *chunkArena) get(idx int) *Chunk {
	return &a.slots[idx].chunk
}

func (a *chunkArena) state(idx int) chunkState {
	return a.slots[idx].state
}

// move переводит слот из одного списка в другой
func (a *chunkArena) move(idx int, from, to chunkState) {
	slot := &a.slots[idx]
	if slot.state != from {
		panic(fmt.Sprintf("network: chunk slot %d is %s, expected %s", idx, slot.state, from))
	}
	slot.state = to
}

// release возвращает слот в список свободных
func (a *chunkArena) release(idx int, from chunkState) {
	a.move(idx, from, chunkFree)
	a.slots[idx].chunk = Chunk{}
	a.free = append(a.free, idx)
}

// count возвращает число слотов в заданном состоянии
func (a *chunkArena) count(state chunkState) int {
	n := 0
	for i := range a.slots {
		if a.slots[i].state == state {
			n++
		}
	}
	return n
}

// indexQueue FIFO очередь индексов слотов
type indexQueue struct {
	items []int
}

func (q *indexQueue) push(idx int) { q.items = append(q.items, idx) }

func (q *indexQueue) len() int { return len(q.items) }

func (q *indexQueue) empty() bool { return len(q.items) == 0 }

func (q *indexQueue) front() int { return q.items[0] }

func (q *indexQueue) pop() int {
	idx := q.items[0]
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = q.items[:0:0]
	}
	return idx
}

// channelState состояние одного канала
type channelState struct {
	pending     indexQueue // Надёжные чанки, ожидающие отправки
	lastChunkID int32      // Номер следующего исходящего чанка
	nextInID    int32      // Номер следующего ожидаемого входящего чанка
}

// uchunkRef запись о ненадёжном чанке внутри отправленного пакета
type uchunkRef struct {
	id      int32
	channel int
}

// sentPacket исходящий пакет, ожидающий подтверждения
type sentPacket struct {
	seq     SeqNumber
	chunks  []int
	uchunks []uchunkRef
}
