package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduler_http_requests_total", Help: "HTTP requests"},
		[]string{"route", "status"},
	)
	Holds = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduler_holds_total", Help: "Hold creation outcomes"},
		[]string{"result"},
	)
	Transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduler_appointment_transitions_total", Help: "Appointment status transitions"},
		[]string{"to", "reason"},
	)
	ConversationAcquire = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduler_conversation_acquire_total", Help: "Conversation lock acquire outcomes"},
		[]string{"result"},
	)
	Offers = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduler_offers_total", Help: "Offer workflow events"},
		[]string{"event"},
	)
	SweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "scheduler_loop_runs_total", Help: "Background loop ticks"},
		[]string{"loop", "result"},
	)
	HoldsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "scheduler_holds_expired_total", Help: "Holds cancelled by the expiry sweeper"},
	)
	OutboxEnqueue = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "outbox_enqueue_total", Help: "Outbox insert outcomes"},
		[]string{"channel", "result"},
	)
	OutboxDispatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "outbox_dispatch_total", Help: "Outbox delivery outcomes"},
		[]string{"channel", "result"},
	)
	OutboxSendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "outbox_send_latency_seconds", Help: "Outbox transport latency"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequests,
		Holds,
		Transitions,
		ConversationAcquire,
		Offers,
		SweepRuns,
		HoldsExpired,
		OutboxEnqueue,
		OutboxDispatch,
		OutboxSendLatency,
	)
}
