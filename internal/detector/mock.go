package detector

import (
	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	hands []Hand
	err   error
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []Hand) {
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.err = err
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]Hand, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// ReachingHand returns a preset Hand representing a hand reaching toward the
// bottom of the frame, where the bag sits.
func ReachingHand() Hand {
	return Hand{
		Type:       "right_hand",
		Confidence: 0.93,
		BBox:       [4]float64{220, 310, 420, 470},
	}
}

// PassingHand returns a preset Hand at the frame edge, typical of a passerby.
func PassingHand() Hand {
	return Hand{
		Type:       "left_hand",
		Confidence: 0.71,
		BBox:       [4]float64{10, 40, 90, 160},
	}
}
