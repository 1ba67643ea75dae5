// Package metrics exports Prometheus collectors for the state machine, the
// Telegram transport and the session sweeper, and serves them over HTTP.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/m3rciful/flowerbot/internal/fsm"
	"github.com/m3rciful/flowerbot/internal/model"
)

const namespace = "flowerbot"

// Collectors owns a private registry so tests and multiple instances do not clash.
type Collectors struct {
	Registry *prometheus.Registry

	events        *prometheus.CounterVec
	eventDuration *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	orders        *prometheus.CounterVec
	orderValue    prometheus.Counter
	swept         prometheus.Counter
	updates       *prometheus.CounterVec
	updateLatency *prometheus.HistogramVec
	sends         *prometheus.CounterVec
}

// New registers every collector, plus the Go and process collectors.
func New() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fsm_events_total",
			Help:      "State machine events by type and result code.",
		}, []string{"event", "code"}),
		eventDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fsm_event_duration_seconds",
			Help:      "Time spent handling one state machine event.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"event"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fsm_transitions_total",
			Help:      "Accepted state changes.",
		}, []string{"from", "to"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Orders returned by checkout; replayed ones were already stored.",
		}, []string{"replayed"}),
		orderValue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_value_minor_total",
			Help:      "Sum of new order totals in minor currency units.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_expired_total",
			Help:      "Sessions removed by the inactivity sweeper.",
		}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_updates_total",
			Help:      "Telegram updates by kind and handler status.",
		}, []string{"kind", "status"}),
		updateLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "telegram_update_duration_seconds",
			Help:      "Time from update receipt to handler return.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_sends_total",
			Help:      "Outbound Telegram calls by action and result.",
		}, []string{"action", "result"}),
	}
	c.Registry.MustRegister(
		c.events, c.eventDuration, c.transitions, c.orders, c.orderValue,
		c.swept, c.updates, c.updateLatency, c.sends,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// EventHandled implements fsm.Observer.
func (c *Collectors) EventHandled(ev fsm.EventType, from, to model.State, code fsm.Code, took time.Duration) {
	label := string(code)
	if label == "" {
		label = "ok"
	}
	c.events.WithLabelValues(string(ev), label).Inc()
	c.eventDuration.WithLabelValues(string(ev)).Observe(took.Seconds())
	if code == "" && from != to {
		c.transitions.WithLabelValues(string(from), string(to)).Inc()
	}
}

// OrderPlaced implements fsm.Observer.
func (c *Collectors) OrderPlaced(o model.Order, replayed bool) {
	c.orders.WithLabelValues(strconv.FormatBool(replayed)).Inc()
	if !replayed {
		c.orderValue.Add(float64(o.Total))
	}
}

// SessionsSwept feeds the sweeper callback.
func (c *Collectors) SessionsSwept(n int) {
	if n > 0 {
		c.swept.Add(float64(n))
	}
}

// UpdateHandled matches middleware.UpdateHook.
func (c *Collectors) UpdateHandled(kind string, _ int, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "fail"
	}
	c.updates.WithLabelValues(kind, status).Inc()
	c.updateLatency.WithLabelValues(kind).Observe(took.Seconds())
}

// SendResult matches the sender dispatcher's OnResult hook.
func (c *Collectors) SendResult(action, kind string, _ time.Duration) {
	if kind == "" {
		kind = "ok"
	}
	c.sends.WithLabelValues(action, kind).Inc()
}

// TrackSessions exports the stored session count, read on every scrape.
func (c *Collectors) TrackSessions(count func() (int, error)) {
	c.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Sessions currently stored.",
	}, func() float64 {
		n, err := count()
		if err != nil {
			return -1
		}
		return float64(n)
	}))
}

var _ fsm.Observer = (*Collectors)(nil)
