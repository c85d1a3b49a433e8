package worker

import (
	"net/http"
	"time"

	"github.com/mindtrack/apiserver/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var lagBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// metrics counts mood activity seen on the queue.
type metrics struct {
	registry     *prometheus.Registry
	moodsTotal   prometheus.Counter
	eventLag     prometheus.Histogram
	lastRecorded prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		moodsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mindtrack",
			Subsystem: "worker",
			Name:      "moods_recorded_total",
			Help:      "Mood submissions consumed from the queue",
		}),
		eventLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mindtrack",
			Subsystem: "worker",
			Name:      "mood_event_lag_seconds",
			Help:      "Delay between a mood write and its event being consumed",
			Buckets:   lagBuckets,
		}),
		lastRecorded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mindtrack",
			Subsystem: "worker",
			Name:      "last_mood_recorded_timestamp_seconds",
			Help:      "Unix time of the most recent consumed mood write",
		}),
	}
	m.registry.MustRegister(
		m.moodsTotal,
		m.eventLag,
		m.lastRecorded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// MoodRecorded implements services.ActivityRecorder.
func (m *metrics) MoodRecorded(event types.MoodRecordedEvent, lag time.Duration) {
	m.moodsTotal.Inc()
	m.eventLag.Observe(lag.Seconds())
	if !event.RecordedAt.IsZero() {
		m.lastRecorded.Set(float64(event.RecordedAt.Unix()))
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
