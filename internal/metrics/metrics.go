package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "courier"

// Metrics holds the outbound pipeline instruments. All Record methods are
// safe on a nil receiver.
type Metrics struct {
	MessagesCreated    *prometheus.CounterVec
	MessagesSent       *prometheus.CounterVec
	MessagesFailed     *prometheus.CounterVec
	MessagesCancelled  prometheus.Counter
	ReferenceRefreshes prometheus.Counter
	EditsApplied       prometheus.Counter
	EditsRolledBack    prometheus.Counter
	SendDuration       prometheus.Histogram
	InFlight           prometheus.Gauge
	AwaitingMedia      prometheus.Gauge

	MediaJobs     *prometheus.CounterVec
	MediaDuration *prometheus.HistogramVec

	TransportRequests *prometheus.CounterVec
	TransportWaits    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_created_total",
			Help:      "Outbound messages materialized, by media kind",
		}, []string{"kind"}),
		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Outbound messages confirmed by the server, by media kind",
		}, []string{"kind"}),
		MessagesFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_failed_total",
			Help:      "Outbound messages moved to error state, by reason",
		}, []string{"reason"}),
		MessagesCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_cancelled_total",
			Help:      "Outbound messages cancelled before confirmation",
		}),
		ReferenceRefreshes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reference_refreshes_total",
			Help:      "Requests resent after refreshing stale media references",
		}),
		EditsApplied: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_applied_total",
			Help:      "Media edits confirmed by the server",
		}),
		EditsRolledBack: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_rolled_back_total",
			Help:      "Media edits restored to their previous content",
		}),
		SendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Time from dispatch to server confirmation",
			Buckets:   prometheus.DefBuckets,
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Send requests waiting for a server response",
		}),
		AwaitingMedia: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "messages_awaiting_media",
			Help:      "Messages blocked on media preparation",
		}),
		MediaJobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_jobs_total",
			Help:      "Media jobs finished, by operation and result",
		}, []string{"op", "result"}),
		MediaDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "media_job_duration_seconds",
			Help:      "Media job duration by operation",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"op"}),
		TransportRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_requests_total",
			Help:      "RPC requests issued, by request kind and result",
		}, []string{"kind", "result"}),
		TransportWaits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_flood_waits_total",
			Help:      "Requests that hit a server flood wait",
		}),
	}
}

func (m *Metrics) RecordCreated(kind string) {
	if m == nil {
		return
	}
	m.MessagesCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordSent(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(kind).Inc()
	if seconds > 0 {
		m.SendDuration.Observe(seconds)
	}
}

func (m *Metrics) RecordFailed(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.MessagesFailed.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordCancelled() {
	if m == nil {
		return
	}
	m.MessagesCancelled.Inc()
}

func (m *Metrics) RecordReferenceRefresh() {
	if m == nil {
		return
	}
	m.ReferenceRefreshes.Inc()
}

func (m *Metrics) RecordEdit(applied bool) {
	if m == nil {
		return
	}
	if applied {
		m.EditsApplied.Inc()
		return
	}
	m.EditsRolledBack.Inc()
}

func (m *Metrics) SetInFlight(n int) {
	if m == nil {
		return
	}
	m.InFlight.Set(float64(n))
}

func (m *Metrics) SetAwaitingMedia(n int) {
	if m == nil {
		return
	}
	m.AwaitingMedia.Set(float64(n))
}

func (m *Metrics) RecordMediaJob(op string, ok bool, seconds float64) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.MediaJobs.WithLabelValues(op, result).Inc()
	m.MediaDuration.WithLabelValues(op).Observe(seconds)
}

func (m *Metrics) RecordTransportRequest(kind string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.TransportRequests.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RecordFloodWait() {
	if m == nil {
		return
	}
	m.TransportWaits.Inc()
}
