// Package metrics define las métricas Prometheus del servicio en un paquete
// propio para evitar ciclos de import entre services y HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SSOLoginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sso_logins_total",
		Help: "Intentos de login SSO por provider y resultado",
	}, []string{"provider", "outcome"})

	MFAVerificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mfa_verifications_total",
		Help: "Verificaciones de segundo factor por método y resultado",
	}, []string{"method", "outcome"})

	RateLimitRejectsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_rejects_total",
		Help: "Requests rechazados por rate limiting, por endpoint",
	}, []string{"endpoint"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duración de requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Register registra todas las métricas en el registry dado (default si es nil).
// Tolera AlreadyRegisteredError para poder llamarse desde tests.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		SSOLoginsTotal,
		MFAVerificationsTotal,
		RateLimitRejectsTotal,
		HTTPRequestDuration,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
