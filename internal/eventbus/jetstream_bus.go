package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	nats "github.com/nats-io/nats.go"
)

// SubjectPrefix префикс subject'ов игровых событий: game.<session>.<type>
const SubjectPrefix = "game"

// ackWait время на обработку одного события подписчиком
const ackWait = 10 * time.Second

// JetStreamBus EventBus поверх NATS JetStream. События разных сессий
// сервера лежат в одном стриме и различаются вторым токеном subject'а.
type JetStreamBus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	stream string

	published uint64
	consumed  uint64
	dropped   uint64
}

// NewJetStreamBus подключается к NATS (url вида nats://127.0.0.1:4222)
// и создаёт стрим, если его ещё нет. retention = 0 хранит события бессрочно.
func NewJetStreamBus(url, stream string, retention time.Duration) (*JetStreamBus, error) {
	if stream == "" {
		stream = "GAME_EVENTS"
	}

	nc, err := nats.Connect(url, nats.Name("iso-game-server"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	if _, err := js.StreamInfo(stream); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      stream,
			Subjects:  []string{SubjectPrefix + ".>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    retention,
			Storage:   nats.FileStorage,
			Discard:   nats.DiscardOld,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("add stream %s: %w", stream, err)
		}
	}
	return &JetStreamBus{nc: nc, js: js, stream: stream}, nil
}

// Subject subject события. Пустой source или eventType заменяется маской.
func Subject(source, eventType string) string {
	if source == "" {
		source = "*"
	}
	if eventType == "" {
		eventType = "*"
	}
	return SubjectPrefix + "." + source + "." + eventType
}

// Publish публикует событие в JSON. ID события служит ключом дедупликации JetStream.
func (jb *JetStreamBus) Publish(ctx context.Context, ev *Envelope) error {
	data, err := json.Marshal(ev)
	if err == nil {
		_, err = jb.js.Publish(Subject(ev.Source, ev.EventType), data, nats.Context(ctx), nats.MsgId(ev.ID))
	}
	if err != nil {
		atomic.AddUint64(&jb.dropped, 1)
		return fmt.Errorf("publish %s: %w", ev.EventType, err)
	}
	atomic.AddUint64(&jb.published, 1)
	return nil
}

// Subscribe создаёт эфемерного потребителя, получающего только новые события.
// Фильтр с одним типом и одним источником сужается до точного subject'а,
// остальное отбрасывается на стороне клиента.
func (jb *JetStreamBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	var source, eventType string
	if len(f.Sources) == 1 {
		source = f.Sources[0]
	}
	if len(f.Types) == 1 {
		eventType = f.Types[0]
	}

	sub, err := jb.js.Subscribe(Subject(source, eventType), func(msg *nats.Msg) {
		var ev Envelope
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			atomic.AddUint64(&jb.dropped, 1)
			_ = msg.Term()
			return
		}
		if matchFilter(&ev, f) {
			h(ctx, &ev)
			atomic.AddUint64(&jb.consumed, 1)
		}
		_ = msg.Ack()
	}, nats.BindStream(jb.stream), nats.DeliverNew(), nats.ManualAck(), nats.AckWait(ackWait))
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return &jetSub{sub}, nil
}

type jetSub struct {
	s *nats.Subscription
}

func (j *jetSub) Unsubscribe() {
	_ = j.s.Unsubscribe()
}

// Metrics счётчики шины. Очередь ведёт JetStream, InFlight всегда 0.
func (jb *JetStreamBus) Metrics() Stats {
	return Stats{
		Published: atomic.LoadUint64(&jb.published),
		Consumed:  atomic.LoadUint64(&jb.consumed),
		Dropped:   atomic.LoadUint64(&jb.dropped),
	}
}

// Close дожидается отправки и закрывает соединение
func (jb *JetStreamBus) Close() error {
	return jb.nc.Drain()
}
