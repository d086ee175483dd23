package classify

import (
	"context"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerClassifier wraps a Classifier with a circuit breaker so a failing
// backend stops being hammered. While the circuit is open, Classify fails
// fast; the engine records the batch as failed and keeps the pipeline live.
type BreakerClassifier struct {
	inner Classifier
	cb    *gobreaker.CircuitBreaker[*Result]
}

// NewBreakerClassifier wraps inner with a circuit breaker. A zero
// consecutiveFailures defaults to 5.
func NewBreakerClassifier(inner Classifier, consecutiveFailures uint32) *BreakerClassifier {
	if consecutiveFailures == 0 {
		consecutiveFailures = 5
	}

	settings := gobreaker.Settings{
		Name: "classifier",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
	}

	return &BreakerClassifier{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[*Result](settings),
	}
}

// Classify delegates to the wrapped classifier through the breaker.
func (b *BreakerClassifier) Classify(ctx context.Context, frames []Frame) (*Result, error) {
	result, err := b.cb.Execute(func() (*Result, error) {
		return b.inner.Classify(ctx, frames)
	})
	if err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	return result, nil
}

// Close closes the wrapped classifier.
func (b *BreakerClassifier) Close() error {
	return b.inner.Close()
}
