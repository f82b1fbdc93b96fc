package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var gatewayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_gateway_events_received",
	Help: "Number of Discord gateway events received, by type",
}, []string{"type"})

var gatewayEventErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_gateway_event_errors",
	Help: "Number of Discord gateway events which failed processing, by type",
}, []string{"type"})
