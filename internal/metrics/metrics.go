// Package metrics provides Prometheus metrics for the collaboration service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the service exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	EditsTotal      *prometheus.CounterVec
	TransformsTotal prometheus.Counter
	CommitDuration  prometheus.Histogram
	SessionsActive  prometheus.Gauge
	RoomsActive     prometheus.Gauge

	VotesTotal         *prometheus.CounterVec
	FlagsResolvedTotal *prometheus.CounterVec
	ReviewsTotal       *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EditsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collabdoc_edits_total",
			Help: "Edit operations received, by outcome",
		}, []string{"result"}),
		TransformsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "collabdoc_transforms_total",
			Help: "Edit operations rebased onto newer revisions",
		}),
		CommitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "collabdoc_commit_duration_seconds",
			Help:    "Duration of revision commits",
			Buckets: prometheus.DefBuckets,
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "collabdoc_sessions_active",
			Help: "Connected editing sessions",
		}),
		RoomsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "collabdoc_rooms_active",
			Help: "Documents with at least one connected session",
		}),
		VotesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collabdoc_votes_total",
			Help: "Votes cast on flags, by outcome",
		}, []string{"result"}),
		FlagsResolvedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collabdoc_flags_resolved_total",
			Help: "Flags resolved by community vote",
		}, []string{"approved"}),
		ReviewsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collabdoc_reviews_total",
			Help: "Document reviews submitted, by resulting status",
		}, []string{"result"}),
	}
}

func (m *Metrics) Edit(result string) {
	if m == nil {
		return
	}
	m.EditsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) Transformed() {
	if m == nil {
		return
	}
	m.TransformsTotal.Inc()
}

func (m *Metrics) ObserveCommit(start time.Time) {
	if m == nil {
		return
	}
	m.CommitDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

func (m *Metrics) RoomOpened() {
	if m == nil {
		return
	}
	m.RoomsActive.Inc()
}

func (m *Metrics) RoomClosed() {
	if m == nil {
		return
	}
	m.RoomsActive.Dec()
}

func (m *Metrics) Vote(result string) {
	if m == nil {
		return
	}
	m.VotesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) FlagResolved(approved bool) {
	if m == nil {
		return
	}
	label := "false"
	if approved {
		label = "true"
	}
	m.FlagsResolvedTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) Review(result string) {
	if m == nil {
		return
	}
	m.ReviewsTotal.WithLabelValues(result).Inc()
}
