package ratelimit

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var classificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "portal_github_rate_limit_classifications_total",
	Help: "Total failed GitHub responses by rate limit class",
}, []string{"class"})

// Class is the rate limit classification of a failed request.
type Class string

const (
	// ClassPrimary means the primary quota is exhausted.
	ClassPrimary Class = "primary"

	// ClassSecondary means abuse-detection throttling.
	ClassSecondary Class = "secondary"

	// ClassOther is any failure that is not a rate limit.
	ClassOther Class = "other"
)

// SecondaryLimitDefaultWait applies when GitHub links to the secondary rate
// limit documentation without sending retry-after.
const SecondaryLimitDefaultWait = 60 * time.Second

// PrimaryResetBuffer is added on top of x-ratelimit-reset before retrying.
const PrimaryResetBuffer = time.Second

var secondaryLimitPhrases = []string{
	"secondary rate limit",
	"abuse detection",
	"too many requests",
}

const secondaryLimitDocHint = "secondary-rate-limits"

// IsPrimaryLimit reports whether err is a 403 with x-ratelimit-remaining "0".
func IsPrimaryLimit(err error) bool {
	re, ok := asResponseError(err)
	if !ok {
		return false
	}
	return re.StatusCode == http.StatusForbidden && header(re, HeaderRemaining) == "0"
}

// IsSecondaryLimit reports whether err is a 403 that still has quota left and
// whose message or body names abuse-detection throttling. It never overlaps
// with IsPrimaryLimit.
func IsSecondaryLimit(err error) bool {
	re, ok := asResponseError(err)
	if !ok {
		return false
	}
	if re.StatusCode != http.StatusForbidden || header(re, HeaderRemaining) == "0" {
		return false
	}

	text := strings.ToLower(re.Message + " " + string(re.Body))
	for _, phrase := range secondaryLimitPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// Classify returns the rate limit class of err and counts it.
func Classify(err error) Class {
	class := ClassOther
	switch {
	case IsPrimaryLimit(err):
		class = ClassPrimary
	case IsSecondaryLimit(err):
		class = ClassSecondary
	}
	classificationsTotal.WithLabelValues(string(class)).Inc()
	return class
}

// RetryAfter returns the backoff for a secondary limit hit on the given
// zero-based attempt. An explicit retry-after header wins, then the
// documentation-link hint, then 2^attempt seconds.
func RetryAfter(err error, attempt int) time.Duration {
	if re, ok := asResponseError(err); ok {
		if v := header(re, HeaderRetryAfter); v != "" {
			if secs, perr := strconv.Atoi(strings.TrimSpace(v)); perr == nil && secs >= 0 {
				return time.Duration(secs) * time.Second
			}
		}
		text := strings.ToLower(re.Message + " " + string(re.Body))
		if strings.Contains(text, secondaryLimitDocHint) {
			return SecondaryLimitDefaultWait
		}
	}
	return ExponentialBackoff(attempt)
}

// PrimaryResetWait returns how long to wait for a primary limit to clear:
// until x-ratelimit-reset plus PrimaryResetBuffer. The bool is false when
// the reset header is missing or malformed.
func PrimaryResetWait(err error, now time.Time) (time.Duration, bool) {
	re, ok := asResponseError(err)
	if !ok {
		return 0, false
	}
	v := header(re, HeaderReset)
	if v == "" {
		return 0, false
	}
	reset, perr := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if perr != nil {
		return 0, false
	}

	wait := time.Unix(reset, 0).Add(PrimaryResetBuffer).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, true
}

// ExponentialBackoff returns 2^attempt seconds, saturating instead of
// overflowing.
func ExponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 32 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}

func asResponseError(err error) (*ResponseError, bool) {
	var re *ResponseError
	if err == nil || !errors.As(err, &re) || re == nil {
		return nil, false
	}
	return re, true
}

// header looks key up case-insensitively. Headers built by hand may carry
// non-canonical keys such as "x-ratelimit-remaining".
func header(re *ResponseError, key string) string {
	if re.Header == nil {
		return ""
	}
	if v := re.Header.Get(key); v != "" {
		return v
	}
	for k, vs := range re.Header {
		if len(vs) > 0 && strings.EqualFold(k, key) {
			return vs[0]
		}
	}
	return ""
}
