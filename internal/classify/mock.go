package classify

import (
	"context"
	"sync"
)

// MockClassifier is a test implementation of the Classifier interface. Each
// call takes the next queued verdict; calls can be held back with Block so
// tests can control when a verdict resolves relative to frame arrival.
type MockClassifier struct {
	mu      sync.Mutex
	results []*Result
	errs    []error
	gate    chan struct{}
	calls   int
	batches [][]Frame
}

// NewMockClassifier creates a mock that resolves immediately with no threat
// unless verdicts are queued.
func NewMockClassifier() *MockClassifier {
	return &MockClassifier{}
}

// Queue appends a verdict to return. A nil result with a non-nil err makes
// that call fail.
func (m *MockClassifier) Queue(result *Result, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, result)
	m.errs = append(m.errs, err)
}

// Block makes subsequent calls wait until Release is called.
func (m *MockClassifier) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate == nil {
		m.gate = make(chan struct{})
	}
}

// Release unblocks all calls currently waiting and lets future calls pass.
func (m *MockClassifier) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gate != nil {
		close(m.gate)
		m.gate = nil
	}
}

// Calls reports how many times Classify was invoked.
func (m *MockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Batches returns the frame batches received so far.
func (m *MockClassifier) Batches() [][]Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]Frame, len(m.batches))
	copy(out, m.batches)
	return out
}

// Classify returns the next queued verdict, honoring Block and ctx.
func (m *MockClassifier) Classify(ctx context.Context, frames []Frame) (*Result, error) {
	m.mu.Lock()
	m.calls++
	batch := make([]Frame, len(frames))
	copy(batch, frames)
	m.batches = append(m.batches, batch)
	gate := m.gate

	var result *Result
	var err error
	if len(m.results) > 0 {
		result, err = m.results[0], m.errs[0]
		m.results, m.errs = m.results[1:], m.errs[1:]
	} else {
		result = &Result{ThreatDetected: false, Confidence: 10, Explanation: "nothing suspicious"}
	}
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return result, err
}

// Close is a no-op.
func (m *MockClassifier) Close() error {
	return nil
}
