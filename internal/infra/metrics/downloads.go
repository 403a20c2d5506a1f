package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(downloadRequestsTotal, documentsBilledTotal, notificationsTotal) }

var (
	downloadRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "download_requests_total",
			Help: "Download orchestration requests by result.",
		},
		[]string{"result"},
	)

	documentsBilledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "documents_billed_total",
			Help: "Documents billed to users after a successful listing.",
		},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_notifications_total",
			Help: "Payment confirmation emails by result.",
		},
		[]string{"result"},
	)
)

func IncDownloadRequest(result string) {
	downloadRequestsTotal.WithLabelValues(norm(result)).Inc()
}

func AddDocumentsBilled(n int) {
	if n > 0 {
		documentsBilledTotal.Add(float64(n))
	}
}

func IncNotification(result string) {
	notificationsTotal.WithLabelValues(norm(result)).Inc()
}
