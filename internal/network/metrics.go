package network

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics Prometheus-метрики транспортного уровня
type Metrics struct {
	PacketsSent      prometheus.Counter
	PacketsReceived  prometheus.Counter
	BytesSent        prometheus.Counter
	BytesReceived    prometheus.Counter
	PacketsDropped   prometheus.Counter
	MalformedPackets prometheus.Counter
	ChunksResent     prometheus.Counter
	UChunksLost      prometheus.Counter
	PeersAdmitted    prometheus.Counter
	PeersEvicted     prometheus.Counter
	RemoteHosts      prometheus.Gauge
}

// NewMetrics создаёт метрики и регистрирует их в reg (nil - без регистрации)
func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "transport",
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		PacketsSent:      counter("packets_sent_total", "Отправленные пакеты."),
		PacketsReceived:  counter("packets_received_total", "Принятые пакеты."),
		BytesSent:        counter("bytes_sent_total", "Отправленные байты."),
		BytesReceived:    counter("bytes_received_total", "Принятые байты."),
		PacketsDropped:   counter("packets_dropped_total", "Устаревшие или повторные пакеты."),
		MalformedPackets: counter("packets_malformed_total", "Пакеты с ошибкой разбора."),
		ChunksResent:     counter("chunks_resent_total", "Надёжные чанки, возвращённые в очередь на переотправку."),
		UChunksLost:      counter("uchunks_lost_total", "Ненадёжные чанки в потерянных пакетах."),
		PeersAdmitted:    counter("peers_admitted_total", "Принятые новые узлы."),
		PeersEvicted:     counter("peers_evicted_total", "Узлы, удалённые по таймауту."),
		RemoteHosts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "transport",
			Name:      "remote_hosts",
			Help:      "Текущее число удалённых узлов.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.PacketsSent, m.PacketsReceived, m.BytesSent, m.BytesReceived,
			m.PacketsDropped, m.MalformedPackets, m.ChunksResent, m.UChunksLost,
			m.PeersAdmitted, m.PeersEvicted, m.RemoteHosts)
	}
	return m
}

// Методы ниже допускают nil-получатель, чтобы хосты работали без метрик

func (m *Metrics) packetSent(size int) {
	if m == nil {
		return
	}
	m.PacketsSent.Inc()
	m.BytesSent.Add(float64(size))
}

func (m *Metrics) packetReceived(size int) {
	if m == nil {
		return
	}
	m.PacketsReceived.Inc()
	m.BytesReceived.Add(float64(size))
}

func (m *Metrics) packetDropped() {
	if m != nil {
		m.PacketsDropped.Inc()
	}
}

func (m *Metrics) malformed() {
	if m != nil {
		m.MalformedPackets.Inc()
	}
}

func (m *Metrics) resent(chunks, uchunks int) {
	if m == nil {
		return
	}
	m.ChunksResent.Add(float64(chunks))
	m.UChunksLost.Add(float64(uchunks))
}

func (m *Metrics) peerAdmitted() {
	if m != nil {
		m.PeersAdmitted.Inc()
		m.RemoteHosts.Inc()
	}
}

func (m *Metrics) peerRemoved(evicted bool) {
	if m == nil {
		return
	}
	if evicted {
		m.PeersEvicted.Inc()
	}
	m.RemoteHosts.Dec()
}
