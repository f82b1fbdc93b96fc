package invalidation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var invalidationsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_rule_invalidations_received",
	Help: "Number of rule invalidation signals received, by transport",
}, []string{"transport"})
