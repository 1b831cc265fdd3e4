// Package metrics define las métricas Prometheus del nodo. Vive en un paquete propio para
// evitar ciclos entre jwt, keys, keyregistry y http.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RotationAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "key_rotation_attempts_total",
		Help: "Intentos de rotación de clave por resultado",
	}, []string{"result"}) // result: published|publish_failed|generate_failed

	RegistryRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "key_registry_requests_total",
		Help: "Requests al key registry por operación y status (0 = transporte)",
	}, []string{"op", "status"})

	TokenValidations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "token_validations_total",
		Help: "Validaciones de token por código de resultado",
	}, []string{"code"}) // code: VALID o el código de rechazo

	TokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokens_issued_total",
		Help: "Tokens emitidos",
	})

	JWKCacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "jwk_cache_lookups_total",
		Help: "Lookups de JWK por tier/resultado",
	}, []string{"result"}) // result: hit|shared_hit|fetched|lookup_failed|unavailable

	ActiveKeyExpiry = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "active_signing_key_expiry_seconds",
		Help: "Expiración (epoch seconds) de la clave de firma activa",
	})

	Ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "node_ready",
		Help: "1 si el nodo está listo para servir",
	})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Número total de requests procesadas",
	}, []string{"method", "route", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Latencia de los requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		RotationAttempts,
		RegistryRequests,
		TokenValidations,
		TokensIssued,
		JWKCacheLookups,
		ActiveKeyExpiry,
		Ready,
		HTTPRequests,
		HTTPDuration,
	}
}

// Register registra las métricas del dominio en reg (o el default si es nil).
// Es idempotente.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// RecordRegistryRequest cuenta un request al registry.
func RecordRegistryRequest(op string, status int) {
	RegistryRequests.WithLabelValues(op, strconv.Itoa(status)).Inc()
}

// RecordRotation cuenta un intento de rotación.
func RecordRotation(result string) {
	RotationAttempts.WithLabelValues(result).Inc()
}

// RecordValidation cuenta una validación por código.
func RecordValidation(code string) {
	TokenValidations.WithLabelValues(code).Inc()
}

// RecordCacheLookup cuenta un lookup del JWKCache.
func RecordCacheLookup(result string) {
	JWKCacheLookups.WithLabelValues(result).Inc()
}

// SetReady refleja el flag de readiness.
func SetReady(ready bool) {
	if ready {
		Ready.Set(1)
		return
	}
	Ready.Set(0)
}
