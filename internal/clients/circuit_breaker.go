package clients

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"rag-system/vectorinit/internal/orchestrator"
)

// NewCircuitBreaker returns a gobreaker configured to trip after 3 consecutive
// failures and reset after 30 seconds in the open state.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

// breakerError rewrites an open-breaker rejection so callers see why nothing
// was attempted.
func breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.New("circuit open")
	}
	return err
}

// failedProbe builds the ProbeResult for a failed check.
func failedProbe(name string, latencyMs int64, err error) orchestrator.ProbeResult {
	return orchestrator.ProbeResult{
		Name:      name,
		OK:        false,
		LatencyMs: latencyMs,
		Error:     breakerError(err).Error(),
	}
}
