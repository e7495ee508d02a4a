package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Telemetry wraps an http.Handler with otelhttp instrumentation, which
// extracts incoming trace context and records request and response sizes.
func Telemetry(service string) func(http.Handler) http.Handler {
	return otelhttp.NewMiddleware(service)
}
