package activity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var trackedSubjects = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "automod_activity_subjects",
	Help: "Number of subjects with recent activity, as of the last sweep",
})

var prunedEvents = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_activity_pruned_events",
	Help: "Number of activity events removed by age-based sweeps",
})
