package ai

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	TTSQueryTime *prometheus.HistogramVec
	TTSErrors    *prometheus.CounterVec
	CloneErrors  *prometheus.CounterVec
}

var metrics = &Metrics{
	TTSQueryTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "tts",
		Name:      "request_seconds",
	}, []string{"provider"}),
	TTSErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "tts",
		Name:      "errors_total",
	}, []string{"provider", "err_code"}),
	CloneErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "clone",
		Name:      "errors_total",
	}, []string{"provider", "err_code"}),
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(metrics.TTSQueryTime)
	reg.MustRegister(metrics.TTSErrors)
	reg.MustRegister(metrics.CloneErrors)
}

func observeSpeak(p Provider, seconds float64) {
	metrics.TTSQueryTime.WithLabelValues(p.String()).Observe(seconds)
}

func countSpeakError(p Provider, err error) {
	metrics.TTSErrors.WithLabelValues(p.String(), ErrCodeString(ErrCode(err))).Inc()
}

func countCloneError(p Provider, err error) {
	metrics.CloneErrors.WithLabelValues(p.String(), ErrCodeString(ErrCode(err))).Inc()
}
