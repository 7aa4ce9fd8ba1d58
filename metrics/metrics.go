package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kdl/schedule-engine/scheduling"
)

var (
	Batches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler", Name: "batches_total", Help: "Bulk schedule batches by outcome",
	}, []string{"outcome"})
	Conflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler", Name: "conflicts_total", Help: "Collisions found, by dimension",
	}, []string{"dimension"})
	SchedulesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler", Name: "schedules_created_total", Help: "Schedule rows committed",
	})
	SessionTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler", Name: "session_transitions_total", Help: "Session status changes",
	}, []string{"from", "to"})
	CommitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler", Name: "commit_duration_seconds", Help: "Bulk commit latency",
		Buckets: prometheus.DefBuckets,
	})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(Batches, Conflicts, SchedulesCreated, SessionTransitions, CommitDuration, DBPing)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }

// Observer feeds engine outcomes into the package collectors.
type Observer struct{}

var _ scheduling.Observer = Observer{}

func (Observer) BatchCommitted(created int, took time.Duration) {
	Batches.WithLabelValues("committed").Inc()
	SchedulesCreated.Add(float64(created))
	CommitDuration.Observe(took.Seconds())
}

func (Observer) BatchRejected(kind scheduling.Kind) {
	Batches.WithLabelValues(string(kind)).Inc()
}

func (Observer) ConflictsFound(details []scheduling.ConflictDetail) {
	for _, d := range details {
		for _, c := range d.Collisions {
			Conflicts.WithLabelValues(string(c.Dimension)).Inc()
		}
	}
}

func (Observer) SessionTransition(from, to scheduling.SessionStatus) {
	SessionTransitions.WithLabelValues(string(from), string(to)).Inc()
}
