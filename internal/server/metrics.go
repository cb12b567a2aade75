package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics Prometheus-метрики игрового цикла
type Metrics struct {
	TickDuration      prometheus.Histogram
	Frames            prometheus.Counter
	Peers             prometheus.Gauge
	Entities          prometheus.Gauge
	SnapshotsSent     prometheus.Counter
	DeletesSent       prometheus.Counter
	SnapshotsRequeued prometheus.Counter
	OrdersAccepted    prometheus.Counter
	OrdersRejected    prometheus.Counter
	BadChunks         prometheus.Counter
	JoinsRejected     prometheus.Counter
}

// NewMetrics создаёт метрики и регистрирует их в reg (nil - без регистрации)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: "game", Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "game", Name: name, Help: help})
	}

	m := &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "game",
			Name:      "tick_duration_seconds",
			Help:      "Длительность кадра сервера.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		Frames:            counter("frames_total", "Выполненные кадры."),
		Peers:             gauge("peers", "Подключённые клиенты."),
		Entities:          gauge("entities", "Живые сущности мира."),
		SnapshotsSent:     counter("snapshots_sent_total", "Отправленные снимки сущностей."),
		DeletesSent:       counter("deletes_sent_total", "Отправленные сообщения об удалении."),
		SnapshotsRequeued: counter("snapshots_requeued_total", "Потерянные снимки, поставленные в очередь повторно."),
		OrdersAccepted:    counter("orders_accepted_total", "Принятые приказы клиентов."),
		OrdersRejected:    counter("orders_rejected_total", "Отклонённые приказы клиентов."),
		BadChunks:         counter("bad_chunks_total", "Чанки с ошибкой разбора."),
		JoinsRejected:     counter("joins_rejected_total", "Отклонённые запросы подключения."),
	}

	if reg != nil {
		reg.MustRegister(m.TickDuration, m.Frames, m.Peers, m.Entities, m.SnapshotsSent,
			m.DeletesSent, m.SnapshotsRequeued, m.OrdersAccepted, m.OrdersRejected, m.BadChunks, m.JoinsRejected)
	}
	return m
}

// Методы ниже допускают nil-получатель

func (m *Metrics) frame(d time.Duration, peers, entities int) {
	if m == nil {
		return
	}
	m.TickDuration.Observe(d.Seconds())
	m.Frames.Inc()
	m.Peers.Set(float64(peers))
	m.Entities.Set(float64(entities))
}

func (m *Metrics) sent(snapshots, deletes int) {
	if m == nil {
		return
	}
	m.SnapshotsSent.Add(float64(snapshots))
	m.DeletesSent.Add(float64(deletes))
}

func (m *Metrics) requeued(n int) {
	if m != nil && n > 0 {
		m.SnapshotsRequeued.Add(float64(n))
	}
}

func (m *Metrics) order(accepted bool) {
	if m == nil {
		return
	}
	if accepted {
		m.OrdersAccepted.Inc()
	} else {
		m.OrdersRejected.Inc()
	}
}

func (m *Metrics) badChunk() {
	if m != nil {
		m.BadChunks.Inc()
	}
}

func (m *Metrics) joinRejected() {
	if m != nil {
		m.JoinsRejected.Inc()
	}
}
