package classify

import (
	"context"
	"math/rand"
	"time"
)

// SimulatedClassifier produces canned verdicts. It stands in for the Gemini
// backend when no API key is configured, matching the behavior of a demo
// deployment.
type SimulatedClassifier struct {
	rng *rand.Rand
}

// NewSimulatedClassifier creates a simulated classifier.
func NewSimulatedClassifier() *SimulatedClassifier {
	return &SimulatedClassifier{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var simulatedScenarios = []struct {
	minConf, maxConf float64
	explanation      string
}{
	{70, 95, "Hand detected reaching toward backpack - potential theft attempt"},
	{60, 85, "Suspicious movement detected near bag - person too close"},
	{70, 90, "Bag zipper movement detected - unauthorized access attempt"},
	{80, 95, "Multiple people near backpack - potential coordinated theft"},
}

// Classify returns a random threat scenario after a short simulated latency.
func (s *SimulatedClassifier) Classify(ctx context.Context, frames []Frame) (*Result, error) {
	delay := time.Duration(200+s.rng.Intn(400)) * time.Millisecond
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(delay):
	}

	sc := simulatedScenarios[s.rng.Intn(len(simulatedScenarios))]
	return &Result{
		ThreatDetected: true,
		Confidence:     sc.minConf + s.rng.Float64()*(sc.maxConf-sc.minConf),
		Explanation:    sc.explanation,
		Latency:        delay,
	}, nil
}

// Close is a no-op.
func (s *SimulatedClassifier) Close() error {
	return nil
}
