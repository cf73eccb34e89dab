package runner

import (
	"math"
	"math/rand"
	"time"

	"github.com/webpilot/webpilot/pkg/workflow"
)

// BackoffFunc computes the delay before retry attempt n (zero-based).
type BackoffFunc func(attempt int) time.Duration

// maxBackoff caps any computed retry delay.
const maxBackoff = time.Minute

// ConstantBackoff waits the same base delay between every attempt.
func ConstantBackoff(base time.Duration) BackoffFunc {
	return func(int) time.Duration {
		return base
	}
}

// ExponentialBackoff doubles the base delay per attempt and adds up to
// 25% jitter, capped at one minute.
func ExponentialBackoff(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
		if delay > maxBackoff {
			delay = maxBackoff
		}
		jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
		return delay + jitter
	}
}

// backoffFor builds the delay function for an error-handling payload.
func backoffFor(eh *workflow.ErrorHandlingPayload) BackoffFunc {
	base := eh.BackoffBase
	if base <= 0 {
		base = time.Second
	}
	if eh.Backoff == workflow.BackoffExponential {
		return ExponentialBackoff(base)
	}
	return ConstantBackoff(base)
}
