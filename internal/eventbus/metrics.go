package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// statsCollector экспортирует Stats шины в Prometheus при каждом опросе.
type statsCollector struct {
	bus       EventBus
	published *prometheus.Desc
	consumed  *prometheus.Desc
	dropped   *prometheus.Desc
	inflight  *prometheus.Desc
}

// RegisterMetrics регистрирует метрики шины в реестре
func RegisterMetrics(reg prometheus.Registerer, bus EventBus) error {
	c := &statsCollector{
		bus: bus,
		published: prometheus.NewDesc("eventbus_messages_published_total",
			"Общее число опубликованных сообщений.", nil, nil),
		consumed: prometheus.NewDesc("eventbus_messages_consumed_total",
			"Общее число доставленных сообщений подписчикам.", nil, nil),
		dropped: prometheus.NewDesc("eventbus_messages_dropped_total",
			"Сообщений, отброшенных из-за ошибок или ограничения back-pressure.", nil, nil),
		inflight: prometheus.NewDesc("eventbus_messages_inflight",
			"Количество сообщений, находящихся в очереди (не доставленных).", nil, nil),
	}
	return reg.Register(c)
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.published
	ch <- c.consumed
	ch <- c.dropped
	ch <- c.inflight
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.bus.Metrics()
	ch <- prometheus.MustNewConstMetric(c.published, prometheus.CounterValue, float64(s.Published))
	ch <- prometheus.MustNewConstMetric(c.consumed, prometheus.CounterValue, float64(s.Consumed))
	ch <- prometheus.MustNewConstMetric(c.dropped, prometheus.CounterValue, float64(s.Dropped))
	ch <- prometheus.MustNewConstMetric(c.inflight, prometheus.GaugeValue, float64(s.InFlight))
}
