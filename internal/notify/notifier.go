// Package notify delivers user alerts for the Bagwatch monitoring system.
// Delivery is fire-and-forget from the engine's perspective: a failed
// notification never changes incident state.
package notify

import "context"

// Kind identifies what triggered an alert.
type Kind string

const (
	// KindHandDetected fires when hands first appear.
	KindHandDetected Kind = "hand_detected"
	// KindEscalation fires when a frame batch is sent for analysis.
	KindEscalation Kind = "escalation"
	// KindThreatConfirmed fires when the classifier confirms a threat.
	KindThreatConfirmed Kind = "threat_confirmed"
)

// Delivery reports which channels carried the alert.
type Delivery struct {
	AudioPlayed      bool
	NotificationSent bool
}

// Notifier delivers one alert to the user.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, incidentID, message string) (Delivery, error)
}

// Message returns the default spoken message for an alert kind.
func Message(kind Kind) string {
	switch kind {
	case KindHandDetected:
		return "Attention. Hands detected near your bag."
	case KindEscalation:
		return "Warning. Continued activity near your bag. Analyzing."
	case KindThreatConfirmed:
		return "Alert! Possible theft attempt on your bag!"
	default:
		return "Bagwatch alert."
	}
}
