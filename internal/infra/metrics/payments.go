package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentRevenueCents,
		paymentRefundsTotal,
		paymentVerificationsTotal,
		paymentVerificationDuration,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by method and resulting status.",
		},
		[]string{"method", "status"},
	)

	paymentRevenueCents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_revenue_cents_total",
			Help: "Completed payment amount in minor units, by plan and currency.",
		},
		[]string{"plan", "currency"},
	)

	paymentRefundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_refunds_total",
			Help: "Refunds by whether the entitlement was revoked.",
		},
		[]string{"revoked"},
	)

	paymentVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verifications_total",
			Help: "Verification outcomes for manually captured payments.",
		},
		[]string{"source", "outcome"}, // source: operator|reconciler
	)

	paymentVerificationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payment_verification_duration_seconds",
			Help:    "Time between payment creation and its verification.",
			Buckets: []float64{60, 300, 900, 3600, 4 * 3600, 24 * 3600, 72 * 3600},
		},
	)
)

func IncPayment(method, status string) {
	paymentsTotal.WithLabelValues(norm(method), norm(status)).Inc()
}

func AddPaymentRevenue(plan, currency string, cents int64) {
	if cents <= 0 {
		return
	}
	paymentRevenueCents.WithLabelValues(norm(plan), norm(currency)).Add(float64(cents))
}

func IncRefund(revoked bool) {
	v := "false"
	if revoked {
		v = "true"
	}
	paymentRefundsTotal.WithLabelValues(v).Inc()
}

func IncVerification(source, outcome string) {
	paymentVerificationsTotal.WithLabelValues(norm(source), norm(outcome)).Inc()
}

func ObserveVerificationDelay(seconds float64) {
	paymentVerificationDuration.Observe(seconds)
}
