package localserver

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	HealthChecks  *prometheus.CounterVec
	ServerUp      prometheus.Gauge
	InstallErrors *prometheus.CounterVec
}

var metrics = &Metrics{
	HealthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "localserver",
		Name:      "health_checks_total",
	}, []string{"result"}),
	ServerUp: prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: "localserver",
		Name:      "up",
	}),
	InstallErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "localserver",
		Name:      "install_errors_total",
	}, []string{"step"}),
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(metrics.HealthChecks)
	reg.MustRegister(metrics.ServerUp)
	reg.MustRegister(metrics.InstallErrors)
}

func observeHealthCheck(ok bool) {
	result := "down"
	if ok {
		result = "up"
	}

	metrics.HealthChecks.WithLabelValues(result).Inc()
}

func setServerUp(up bool) {
	if up {
		metrics.ServerUp.Set(1)
	} else {
		metrics.ServerUp.Set(0)
	}
}

func countInstallError(step string) {
	metrics.InstallErrors.WithLabelValues(step).Inc()
}
