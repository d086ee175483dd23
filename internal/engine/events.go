package engine

import (
	"time"

	"github.com/ayusman/bagwatch/internal/detector"
	"github.com/ayusman/bagwatch/internal/notify"
	"github.com/ayusman/bagwatch/internal/store"
)

// DetectionEvent is one frame's detection result fed into the engine.
// Events must be delivered in capture order.
type DetectionEvent struct {
	Timestamp time.Time
	// Detected reports whether at least one hand is present. A false value
	// is a normal event, not an error.
	Detected   bool
	HandCount  int
	Confidence float64
	// Hands carries the detector's per-hand geometry, recorded opaquely.
	Hands []detector.Hand
	// Image is the JPEG-encoded frame, optional.
	Image []byte
}

// EventKind identifies an engine lifecycle event.
type EventKind string

const (
	// EventSessionStarted fires when a monitoring session begins.
	EventSessionStarted EventKind = "session_started"
	// EventSessionEnded fires when a monitoring session ends.
	EventSessionEnded EventKind = "session_ended"
	// EventIncidentStarted fires when hands first appear.
	EventIncidentStarted EventKind = "incident_started"
	// EventFrameAppended fires for every frame recorded into an incident.
	EventFrameAppended EventKind = "frame_appended"
	// EventEscalationDispatched fires when a frame batch is submitted to the
	// classifier.
	EventEscalationDispatched EventKind = "escalation_dispatched"
	// EventVerdictRecorded fires when a classifier verdict is applied to a
	// still-active incident.
	EventVerdictRecorded EventKind = "verdict_recorded"
	// EventIncidentEnded fires when an incident closes, for any reason.
	EventIncidentEnded EventKind = "incident_ended"
	// EventAlertSent fires when an alert is recorded for dispatch.
	EventAlertSent EventKind = "alert_sent"
)

// Event is one engine lifecycle transition, published to listeners.
// Fields beyond Kind, Time and SessionID are set where they apply.
type Event struct {
	Kind       EventKind       `json:"kind"`
	Time       time.Time       `json:"time"`
	SessionID  string          `json:"session_id,omitempty"`
	IncidentID string          `json:"incident_id,omitempty"`
	Frame      int             `json:"frame,omitempty"`
	BatchSeq   int             `json:"batch_seq,omitempty"`
	Reason     store.EndReason `json:"reason,omitempty"`
	AlertKind  notify.Kind     `json:"alert_kind,omitempty"`
	Threat     bool            `json:"threat,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
}

// Listener receives engine events. Listeners run on the engine's state loop
// and must not block; hand anything slow to a goroutine or buffered channel.
type Listener func(Event)
