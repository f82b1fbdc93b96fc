package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "automod_event_duration_sec",
	Help: "Total duration of automod event processing",
}, []string{"type"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_event_processed",
	Help: "Number of events processed",
}, []string{"type"})

var eventErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_event_errors",
	Help: "Number of events which failed processing",
}, []string{"type"})

var eventSkipCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_event_skipped",
	Help: "Number of messages skipped because the author is a bot or exempt",
})

var violationCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_violations",
	Help: "Number of rule violations detected",
}, []string{"type", "action"})

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_actions",
	Help: "Number of moderation actions attempted",
}, []string{"type", "action"})

var actionErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_action_errors",
	Help: "Number of moderation actions which failed on the platform",
}, []string{"action"})

var caseWriteErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "automod_case_write_errors",
	Help: "Number of audit cases which could not be persisted",
})

var ruleCompileErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "automod_rule_compile_errors",
	Help: "Number of stored rules skipped because their config was invalid",
}, []string{"type"})
