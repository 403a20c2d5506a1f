package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(serverBuild, serverStarted) }

var (
	serverBuild = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_build_info",
			Help:      "Always 1; labels the version and commit of the running credits server.",
		},
		[]string{"version", "commit"},
	)

	serverStarted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_start_time_seconds",
			Help:      "Unix time the credits server started.",
		},
	)
)

// SetBuildInfo stamps the running build and its start time.
func SetBuildInfo(version, commit string) {
	if version == "" {
		version = "dev"
	}
	serverBuild.WithLabelValues(version, commit).Set(1)
	serverStarted.Set(float64(time.Now().Unix()))
}
