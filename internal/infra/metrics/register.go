package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// namespace prefixes the server, store and cache collectors.
const namespace = "sri_subscription"

var (
	registerOnce sync.Once
	pending      []prometheus.Collector
)

// register queues collectors from each file's init.
func register(cs ...prometheus.Collector) {
	pending = append(pending, cs...)
}

// MustRegister publishes the queued collectors on the default registry. Only
// the first call has any effect.
func MustRegister() {
	registerOnce.Do(func() { MustRegisterOn(prometheus.DefaultRegisterer) })
}

// MustRegisterOn publishes the queued collectors on reg. Tests use it with a
// private registry.
func MustRegisterOn(reg prometheus.Registerer) {
	if len(pending) > 0 {
		reg.MustRegister(pending...)
	}
}
