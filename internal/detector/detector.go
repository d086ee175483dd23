// Package detector provides hand detection interfaces and types for the
// Bagwatch monitoring pipeline.
package detector

import "gocv.io/x/gocv"

// Point is a 3D landmark coordinate normalized to the frame.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Hand is one detected hand in a frame.
type Hand struct {
	// Type is "left_hand" or "right_hand".
	Type string `json:"type"`
	// Confidence is the detection confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// BBox is the bounding box as [x1, y1, x2, y2] in pixel coordinates.
	BBox [4]float64 `json:"bbox"`
	// Landmarks are the 21 MediaPipe hand landmarks, normalized.
	Landmarks []Point `json:"landmarks,omitempty"`
}

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hands.
	// Returns an empty slice if no hands are detected.
	Detect(frame *gocv.Mat) ([]Hand, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}

// Summarize reduces a detection result to the per-frame figures the incident
// tracker records: hand count and the highest per-hand confidence.
func Summarize(hands []Hand) (count int, maxConfidence float64) {
	count = len(hands)
	for _, h := range hands {
		if h.Confidence > maxConfidence {
			maxConfidence = h.Confidence
		}
	}
	return count, maxConfidence
}
