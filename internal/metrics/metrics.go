// Package metrics exports prometheus collectors for timer commands and HTTP traffic.
package metrics

import (
	"context"
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"repair-tracker-backend/internal/store"
	"repair-tracker-backend/internal/timer"
)

const (
	timerCommandsMetricName  = "repair_tracker_timer_commands_total"
	trackedSecondsMetricName = "repair_tracker_tracked_seconds_total"
	httpRequestsMetricName   = "repair_tracker_http_requests_total"
	runningTimersMetricName  = "repair_tracker_running_timers"
)

// Metrics encapsulates all Prometheus metrics for the tracker.
type Metrics struct {
	timerCommands  *prometheus.CounterVec
	trackedSeconds *prometheus.CounterVec
	runningTimers  *prometheus.GaugeVec
	httpRequests   *prometheus.CounterVec
}

// New creates and registers all tracker metrics with the provided registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		timerCommands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: timerCommandsMetricName,
				Help: "Timer commands handled, by phase, action and result",
			},
			[]string{"phase", "action", "result"},
		),
		trackedSeconds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: trackedSecondsMetricName,
				Help: "Seconds folded into phase totals by pause and stop commands",
			},
			[]string{"phase"},
		),
		runningTimers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: runningTimersMetricName,
				Help: "Phase timers started through this process and not yet closed",
			},
			[]string{"phase"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: httpRequestsMetricName,
				Help: "HTTP requests served, by route, method and status code",
			},
			[]string{"route", "method", "code"},
		),
	}

	reg.MustRegister(m.timerCommands, m.trackedSeconds, m.runningTimers, m.httpRequests)
	return m
}

// PhaseUpdated records the outcome of a timer command.
func (m *Metrics) PhaseUpdated(_ context.Context, e timer.Event) {
	phase := string(e.Phase)
	m.timerCommands.WithLabelValues(phase, string(e.Action), result(e.Err)).Inc()
	if e.Err != nil {
		return
	}

	switch {
	case !e.Before.Running() && e.After.Running():
		m.runningTimers.WithLabelValues(phase).Inc()
	case e.Before.Running() && !e.After.Running():
		m.runningTimers.WithLabelValues(phase).Dec()
	}
	if delta := e.After.TotalTime - e.Before.TotalTime; delta > 0 {
		m.trackedSeconds.WithLabelValues(phase).Add(delta)
	}
}

// ObserveRequest counts one served HTTP request.
func (m *Metrics) ObserveRequest(route, method string, code int) {
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, timer.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	}
	return "error"
}
