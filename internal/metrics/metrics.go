package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coldmailer_emails_total",
			Help: "Email lifecycle counter by stage",
		},
		[]string{"stage"}, // queued|sent|failed|skipped|dead
	)

	ClicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coldmailer_clicks_total",
			Help: "Tracked link clicks recorded by the redirect endpoint",
		},
	)

	QuotaPersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coldmailer_quota_persist_failures_total",
			Help: "Quota increments that failed after a successful send (undercounted sends)",
		},
	)

	RepliesDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coldmailer_replies_detected_total",
			Help: "Leads marked responded by the reply watcher",
		},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		EmailsTotal,
		ClicksTotal,
		QuotaPersistFailures,
		RepliesDetected,
	)
}
