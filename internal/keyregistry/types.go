// Package keyregistry es el único componente que hace I/O contra el key registry.
//
// Normaliza todas las formas de falla (HTTP 4xx/5xx, transporte) en dos tipos de
// resultado: PublishResult y LookupResult. Nunca devuelve error por una respuesta HTTP
// de error; el caller decide en base al status.
package keyregistry

import (
	"fmt"
	"net/http"
)

// Failure clasifica un lookup fallido.
type Failure int

const (
	FailureNone Failure = iota
	FailureNotFound
	FailureMalformedRequest
	FailureUnauthorized
	FailureClientError
	FailureServerError
	FailureUnavailable
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureNotFound:
		return "not_found"
	case FailureMalformedRequest:
		return "malformed_request"
	case FailureUnauthorized:
		return "unauthorized"
	case FailureClientError:
		return "client_error"
	case FailureServerError:
		return "server_error"
	case FailureUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// LookupResult es el resultado de Fetch.
type LookupResult struct {
	Material   []byte
	StatusCode int
	Failure    Failure
	Message    string
}

// OK indica que el registry devolvió el material.
func (r LookupResult) OK() bool { return r.Failure == FailureNone && len(r.Material) > 0 }

// Definitive indica una respuesta 4xx del registry: no se reintenta y puede cachearse.
func (r LookupResult) Definitive() bool {
	switch r.Failure {
	case FailureNotFound, FailureMalformedRequest, FailureUnauthorized, FailureClientError:
		return true
	}
	return false
}

// PublishResult es el resultado de Publish.
// TransportErr != nil implica que el request nunca obtuvo respuesta del registry.
type PublishResult struct {
	StatusCode   int
	Body         string
	TransportErr error
}

// Succeeded indica un 2xx.
func (r PublishResult) Succeeded() bool { return IsSuccess(r.StatusCode) }

// IsSuccess indica si el status es 2xx.
func IsSuccess(status int) bool { return status >= 200 && status < 300 }

// StatusTransportError es el status sintético que reportamos cuando falla el transporte.
const StatusTransportError = http.StatusServiceUnavailable

// Plantillas de mensaje por clasificación. Solo se usan para logs/audit.
func lookupMessage(f Failure, kid string, status int, body string) string {
	switch f {
	case FailureNotFound:
		return fmt.Sprintf("public key %q not found in key registry", kid)
	case FailureMalformedRequest:
		return fmt.Sprintf("key registry rejected lookup for %q as malformed: %s", kid, body)
	case FailureUnauthorized:
		return fmt.Sprintf("not authorized to read key %q from key registry (status %d)", kid, status)
	case FailureClientError:
		return fmt.Sprintf("key registry returned client error %d for key %q: %s", status, kid, body)
	case FailureServerError:
		return fmt.Sprintf("key registry server error %d for key %q: %s", status, kid, body)
	default:
		return fmt.Sprintf("could not retrieve key %q", kid)
	}
}

// classify mapea un status 4xx/5xx a Failure.
func classify(status int) Failure {
	switch {
	case status == http.StatusNotFound:
		return FailureNotFound
	case status == http.StatusBadRequest:
		return FailureMalformedRequest
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return FailureUnauthorized
	case status >= 400 && status < 500:
		return FailureClientError
	case status >= 500:
		return FailureServerError
	default:
		return FailureUnavailable
	}
}
