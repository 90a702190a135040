package monitor

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mklimuk/shtmon/environment"
)

const namespace = "shtmon"

type Metrics struct {
	temperature prometheus.Gauge
	humidity    prometheus.Gauge
	delta       prometheus.Gauge
	lastSuccess prometheus.Gauge
	polls       *prometheus.CounterVec
	attempts    *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last valid temperature reading.",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relative_humidity_percent",
			Help:      "Last valid relative humidity reading.",
		}),
		delta: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_delta_celsius",
			Help:      "Temperature change between the last two valid readings.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last valid reading.",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll cycles by result.",
		}, []string{"result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Measurement attempts by the state they ended in.",
		}, []string{"state"}),
	}
	reg.MustRegister(m.temperature, m.humidity, m.delta, m.lastSuccess, m.polls, m.attempts)
	return m
}

// ObserveAttempt has the environment.AttemptObserver signature.
func (m *Metrics) ObserveAttempt(_ int, state environment.State, _ error) {
	m.attempts.WithLabelValues(state.String()).Inc()
}

// Reporter returns a reporter updating the collectors before passing the event on.
func (m *Metrics) Reporter(next Reporter) Reporter {
	return &MetricsReporter{metrics: m, next: next}
}

type MetricsReporter struct {
	metrics *Metrics
	next    Reporter
}

func (r *MetricsReporter) Report(ctx context.Context, ev Event) {
	if ev.OK() {
		r.metrics.polls.WithLabelValues("ok").Inc()
		r.metrics.temperature.Set(ev.Reading.Temperature)
		r.metrics.humidity.Set(ev.Reading.Humidity)
		r.metrics.delta.Set(ev.Delta)
		r.metrics.lastSuccess.Set(float64(ev.Time.Unix()))
	} else {
		r.metrics.polls.WithLabelValues("failed").Inc()
	}
	if r.next != nil {
		r.next.Report(ctx, ev)
	}
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
