package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors.
	Registry = prometheus.NewRegistry()

	mints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minter",
			Name:      "mints_total",
			Help:      "Mint attempts by payment method and outcome.",
		},
		[]string{"payment_method", "outcome"},
	)

	mintUSD = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minter",
			Name:      "mint_usd_total",
			Help:      "USD value of successful mints.",
		},
		[]string{"payment_method"},
	)

	postMintFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minter",
			Name:      "postmint_step_failures_total",
			Help:      "Failed post-mint pipeline steps.",
		},
		[]string{"step"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minter",
			Name:      "notifications_total",
			Help:      "Notification deliveries by result.",
		},
		[]string{"result"},
	)

	bundlePolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minter",
			Name:      "bundle_polls_total",
			Help:      "Bundled call status polls by observed status.",
		},
		[]string{"status"},
	)
)

func init() {
	Registry.MustRegister(mints, mintUSD, postMintFailures, notifications, bundlePolls)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordMint(paymentMethod, outcome string) {
	mints.WithLabelValues(paymentMethod, outcome).Inc()
}

func RecordMintUSD(paymentMethod string, usd float64) {
	mintUSD.WithLabelValues(paymentMethod).Add(usd)
}

func RecordPostMintFailure(step string) {
	postMintFailures.WithLabelValues(step).Inc()
}

func RecordNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}

func RecordBundlePoll(status string) {
	bundlePolls.WithLabelValues(status).Inc()
}
