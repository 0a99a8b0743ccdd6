package ratelimit

import (
	"net/http"
	"strings"
)

// UnknownClient is the identifier used when a request carries no forwarded
// address headers. All such callers share one bucket, so production
// deployments must sit behind a proxy that sets X-Forwarded-For or X-Real-IP.
const UnknownClient = "unknown"

// ClientIdentifier derives the rate-limit key for r from the first
// X-Forwarded-For entry, then X-Real-IP, then UnknownClient.
func ClientIdentifier(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	return UnknownClient
}
