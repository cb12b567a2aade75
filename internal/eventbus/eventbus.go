package eventbus

import (
	"context"
	"sync"
	"time"
)

// Envelope контейнер события игрового сервера.
type Envelope struct {
	ID            string            `json:"id"`             // UUID события
	Timestamp     time.Time         `json:"timestamp"`      // Время создания (UTC)
	Source        string            `json:"source"`         // Идентификатор сессии сервера
	EventType     string            `json:"event_type"`     // actor_died, peer_joined…
	Version       int               `json:"version"`        // Версия схемы полезной нагрузки
	CorrelationID string            `json:"correlation_id,omitempty"`
	Priority      int               `json:"priority"`       // 0=Low … 9=Critical (для backpressure)
	Frame         int               `json:"frame"`          // Кадр симуляции
	Payload       []byte            `json:"payload"`        // JSON полезной нагрузки
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Filter позволяет подписаться только на нужные события.
type Filter struct {
	Types   []string // Если пусто — все типы.
	Sources []string // Если пусто — все источники.
}

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus шина игровых событий (в памяти или JetStream).
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

//================ In-Memory implementation =================//

type memoryBus struct {
	mu          sync.RWMutex
	subscribers map[int]subscriber
	nextID      int
	stats       Stats
	buffer      chan *Envelope
	closed      bool
	wg          sync.WaitGroup
	done        chan struct{}
}

type subscriber struct {
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewMemoryBus создаёт шину в памяти с указанным буфером.
// Обработчики одного подписчика вызываются последовательно в порядке публикации.
func NewMemoryBus(capacity int) EventBus {
	if capacity <= 0 {
		capacity = 256
	}
	mb := &memoryBus{
		subscribers: make(map[int]subscriber),
		buffer:      make(chan *Envelope, capacity),
		done:        make(chan struct{}),
	}
	go mb.dispatchLoop()
	return mb
}

func (mb *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	mb.mu.RLock()
	closed := mb.closed
	mb.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	select {
	case mb.buffer <- ev:
		mb.count(&mb.stats.Published)
		return nil
	default:
	}

	// Буфер заполнен — низкий приоритет (<5) отбрасываем
	if ev.Priority < 5 {
		mb.count(&mb.stats.Dropped)
		return nil
	}
	select {
	case mb.buffer <- ev:
		mb.count(&mb.stats.Published)
		return nil
	case <-ctx.Done():
		mb.count(&mb.stats.Dropped)
		return ctx.Err()
	}
}

func (mb *memoryBus) count(field *uint64) {
	mb.mu.Lock()
	*field++
	mb.mu.Unlock()
}

func (mb *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return nil, ErrClosed
	}
	id := mb.nextID
	mb.nextID++
	cctx, cancel := context.WithCancel(ctx)
	mb.subscribers[id] = subscriber{filter: f, handler: h, ctx: cctx, cancel: cancel}
	return &memSub{bus: mb, id: id}, nil
}

func (mb *memoryBus) Metrics() Stats {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	s := mb.stats
	s.InFlight = len(mb.buffer)
	return s
}

// Close доставляет оставшиеся события и останавливает рассылку
func (mb *memoryBus) Close() error {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return nil
	}
	mb.closed = true
	mb.mu.Unlock()

	close(mb.buffer)
	<-mb.done
	return nil
}

// dispatchLoop рассылает события подписчикам.
func (mb *memoryBus) dispatchLoop() {
	defer close(mb.done)
	for ev := range mb.buffer {
		mb.mu.RLock()
		subs := make([]subscriber, 0, len(mb.subscribers))
		for _, sub := range mb.subscribers {
			subs = append(subs, sub)
		}
		mb.mu.RUnlock()

		for _, sub := range subs {
			if !matchFilter(ev, sub.filter) || sub.ctx.Err() != nil {
				continue
			}
			sub.handler(sub.ctx, ev)
			mb.count(&mb.stats.Consumed)
		}
	}
}

func matchFilter(ev *Envelope, f Filter) bool {
	match := func(val string, arr []string) bool {
		if len(arr) == 0 {
			return true
		}
		for _, v := range arr {
			if v == val {
				return true
			}
		}
		return false
	}
	return match(ev.EventType, f.Types) && match(ev.Source, f.Sources)
}

type memSub struct {
	bus *memoryBus
	id  int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		sub.cancel()
		delete(s.bus.subscribers, s.id)
	}
	s.bus.mu.Unlock()
}
