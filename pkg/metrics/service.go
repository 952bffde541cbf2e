package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NotCoffee418/multical401/pkg/meter_reader"
	"github.com/NotCoffee418/multical401/pkg/sensor"
)

// Exporter publishes sensor values and poll outcomes to Prometheus.
// It satisfies meter_reader.Observer.
type Exporter struct {
	polls    *prometheus.CounterVec
	exchange *prometheus.HistogramVec
	values   *prometheus.Desc

	mu        sync.RWMutex
	entities  []*sensor.Entity
	uniqueIDs map[string]bool
}

func NewExporter() *Exporter {
	return &Exporter{
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multical401_polls_total",
				Help: "Meter polls by outcome.",
			},
			[]string{"meter", "outcome"},
		),
		exchange: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "multical401_exchange_duration_seconds",
				Help:    "Duration of serial exchanges with the meter.",
				Buckets: []float64{0.5, 1, 1.5, 2, 2.5, 3, 4, 5},
			},
			[]string{"meter"},
		),
		values: prometheus.NewDesc(
			"multical401_sensor_value",
			"Current value of a meter sensor.",
			[]string{"meter", "sensor", "unit", "unique_id"},
			nil,
		),
	}
}

// Register the exporter and all its metrics.
func (e *Exporter) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{e.polls, e.exchange, e} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// AddEntities adds entities to export. An entity whose unique id is already
// exported is skipped, so a scrape never carries the same series twice.
func (e *Exporter) AddEntities(entities ...*sensor.Entity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.uniqueIDs == nil {
		e.uniqueIDs = map[string]bool{}
	}
	for _, entity := range entities {
		if e.uniqueIDs[entity.UniqueID] {
			continue
		}
		e.uniqueIDs[entity.UniqueID] = true
		e.entities = append(e.entities, entity)
	}
}

func (e *Exporter) ObservePoll(meter string, outcome meter_reader.Outcome, exchange time.Duration) {
	e.polls.WithLabelValues(meter, string(outcome)).Inc()
	if outcome != meter_reader.OutcomeThrottled {
		e.exchange.WithLabelValues(meter).Observe(exchange.Seconds())
	}
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.values
}

// Collect reports only entities that have a value.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, entity := range e.entities {
		v, ok := entity.Value()
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			e.values,
			prometheus.GaugeValue,
			v,
			entity.Meter, entity.Key, entity.Unit, entity.UniqueID,
		)
	}
}
