package events

import (
	"context"

	"github.com/aretw0/botflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics turns domain events into Prometheus series.
type Metrics struct {
	flows        *prometheus.CounterVec
	steps        *prometheus.HistogramVec
	interactions *prometheus.CounterVec
	jobs         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		flows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botflow_flows_total",
				Help: "Flow executions by terminal status",
			},
			[]string{"tenant", "status", "code"},
		),
		steps: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "botflow_flow_steps",
				Help:    "Steps executed per completed flow",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 50, 100},
			},
			[]string{"tenant"},
		),
		interactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botflow_user_interactions_total",
				Help: "Inbound events handed to the engine",
			},
			[]string{"tenant"},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botflow_jobs_total",
				Help: "Scheduler job outcomes",
			},
			[]string{"tenant", "channel", "outcome"},
		),
	}
	reg.MustRegister(m.flows, m.steps, m.interactions, m.jobs)
	return m
}

// Handle implements Subscriber.
func (m *Metrics) Handle(_ context.Context, evt domain.DomainEvent) error {
	switch evt.Type {
	case domain.EventFlowCompleted:
		m.flows.WithLabelValues(evt.TenantID, "completed", "").Inc()
		if n, ok := evt.Payload["steps_executed"].(int); ok {
			m.steps.WithLabelValues(evt.TenantID).Observe(float64(n))
		}
	case domain.EventFlowError:
		code, _ := evt.Payload["error_code"].(string)
		m.flows.WithLabelValues(evt.TenantID, "failed", code).Inc()
	case domain.EventUserInteraction:
		m.interactions.WithLabelValues(evt.TenantID).Inc()
	case domain.EventJobDelivered:
		m.jobs.WithLabelValues(evt.TenantID, channelOf(evt), "delivered").Inc()
	case domain.EventJobFailed:
		m.jobs.WithLabelValues(evt.TenantID, channelOf(evt), "failed").Inc()
	case domain.EventJobRescheduled:
		m.jobs.WithLabelValues(evt.TenantID, channelOf(evt), "rescheduled").Inc()
	}
	return nil
}

func channelOf(evt domain.DomainEvent) string {
	ch, _ := evt.Payload["channel"].(string)
	return ch
}
