// Package classify sends escalated frame batches to an external threat
// classifier and normalizes its verdicts.
package classify

import (
	"context"
	"time"
)

// Frame is one captured frame handed to the classifier. Images are JPEG
// encoded; metadata rides along so text-only classifiers can still reason
// about the batch.
type Frame struct {
	// Seq is the incident-local frame number.
	Seq int
	// Timestamp is when the frame was captured.
	Timestamp time.Time
	// HandCount and Confidence come from the hand detector.
	HandCount  int
	Confidence float64
	// Image is the JPEG-encoded frame, optional.
	Image []byte
}

// Result is a normalized classifier verdict for one batch.
type Result struct {
	// ThreatDetected reports whether the classifier saw suspicious activity.
	ThreatDetected bool
	// Confidence is the classifier's confidence in [0,100].
	Confidence float64
	// Explanation is the classifier's reasoning, free text.
	Explanation string
	// Raw is the unparsed classifier response, kept for audit.
	Raw string
	// Latency is how long the call took.
	Latency time.Duration
	// TokensUsed is the API token count, when the backend reports one.
	TokensUsed int
}

// Classifier analyzes an ordered batch of frames for theft attempts.
// Implementations must honor ctx cancellation and deadlines.
type Classifier interface {
	Classify(ctx context.Context, frames []Frame) (*Result, error)
	Close() error
}
