// Package resilience provides the retry backoff schedule, failure
// classification, and per-capability circuit breakers used by the
// orchestration engine around scanner calls.
package resilience

import (
	"math"
	"time"
)

// maxRetryBackoff caps the exponential retry delay.
const maxRetryBackoff = 30 * time.Second

// RetryBackoff returns the delay before a task with the given retry count
// becomes eligible again: min(2^retryCount, 30) seconds. Pure so it can be
// tested without real delays; the engine schedules re-eligibility instead
// of sleeping.
func RetryBackoff(retryCount int) time.Duration {
	if retryCount <= 0 {
		retryCount = 1
	}
	d := time.Duration(math.Pow(2, float64(retryCount))) * time.Second
	if d > maxRetryBackoff || d <= 0 {
		return maxRetryBackoff
	}
	return d
}

// Clock abstracts time for the engine's retry scheduling and breaker resets.
type Clock interface {
	Now() time.Time
}

// SystemClock is the real-time Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
