package notify

import (
	"context"
	"sync"
)

// Sent is one alert captured by the mock.
type Sent struct {
	Kind       Kind
	IncidentID string
	Message    string
}

// MockNotifier records alerts for assertions in tests.
type MockNotifier struct {
	mu   sync.Mutex
	sent []Sent
	err  error
}

// NewMockNotifier creates a mock notifier.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// SetError makes subsequent calls fail.
func (m *MockNotifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Sent returns the alerts delivered so far.
func (m *MockNotifier) Sent() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.sent))
	copy(out, m.sent)
	return out
}

// Notify records the alert.
func (m *MockNotifier) Notify(ctx context.Context, kind Kind, incidentID, message string) (Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return Delivery{}, m.err
	}
	m.sent = append(m.sent, Sent{Kind: kind, IncidentID: incidentID, Message: message})
	return Delivery{AudioPlayed: true, NotificationSent: true}, nil
}
