package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ActionsTotal counts action lifecycle stages by action type.
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actionflow_actions_total",
			Help: "Action lifecycle counter by stage and action type",
		},
		[]string{"stage", "type"}, // claimed|lost|executed|retried|failed|reaped
	)

	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actionflow_events_total",
			Help: "Events appended to the conversation log by event type",
		},
		[]string{"type"},
	)

	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "actionflow_batch_duration_seconds",
			Help:    "Wall time of one worker poll",
			Buckets: prometheus.DefBuckets,
		},
	)
)

const (
	StageClaimed  = "claimed"
	StageLost     = "lost"
	StageExecuted = "executed"
	StageRetried  = "retried"
	StageFailed   = "failed"
	StageReaped   = "reaped"
)

var registerOnce sync.Once

// MustRegister registers the collectors once; serve and worker may both call it.
func MustRegister(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(
			ActionsTotal,
			EventsTotal,
			BatchDuration,
		)
	})
}
