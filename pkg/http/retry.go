package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryOnStatus is the set of HTTP statuses treated as transient
// when a policy does not specify its own.
var DefaultRetryOnStatus = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

const DefaultBackoff = 10 * time.Second

// RetryPolicy controls the retry loop of a single Do call. The zero
// value means: default status set, 10s constant backoff, unlimited
// tries, no overall deadline.
type RetryPolicy struct {
	// RetryOnStatus lists the statuses to retry. Empty means
	// DefaultRetryOnStatus.
	RetryOnStatus []int
	// Backoff is the constant wait between attempts.
	Backoff time.Duration
	// MaxTries caps the number of attempts; 0 means unlimited.
	MaxTries uint
	// MaxElapsed bounds the total time spent retrying; 0 means no
	// bound.
	MaxElapsed time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if len(p.RetryOnStatus) == 0 {
		p.RetryOnStatus = DefaultRetryOnStatus
	}
	if p.Backoff <= 0 {
		p.Backoff = DefaultBackoff
	}
	return p
}

func (p RetryPolicy) retryable(statusCode int) bool {
	for _, code := range p.RetryOnStatus {
		if code == statusCode {
			return true
		}
	}
	return false
}

// retryAfterSeconds reads a Retry-After header carrying a non-negative
// integer number of seconds. Zero means retry immediately; large
// values are honored as-is, with no upper cap. HTTP-date values and
// anything else non-numeric are ignored so the caller falls back to
// the policy backoff.
func retryAfterSeconds(headers http.Header) (int, bool) {
	raw := strings.TrimSpace(headers.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0, false
	}
	return secs, true
}
