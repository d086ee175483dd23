package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"

	"github.com/ayusman/bagwatch/internal/logging"
)

// SpeechNotifier speaks alerts aloud through a text-to-speech command.
// Utterances are serialized so overlapping alerts don't talk over each other.
type SpeechNotifier struct {
	command string
	mu      sync.Mutex
}

// NewSpeechNotifier creates a speech notifier. An empty command picks the
// platform default: say on macOS, espeak elsewhere.
func NewSpeechNotifier(command string) *SpeechNotifier {
	if command == "" {
		if runtime.GOOS == "darwin" {
			command = "say"
		} else {
			command = "espeak"
		}
	}
	return &SpeechNotifier{command: command}
}

// Notify speaks the message.
func (n *SpeechNotifier) Notify(ctx context.Context, kind Kind, incidentID, message string) (Delivery, error) {
	if message == "" {
		message = Message(kind)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	cmd := exec.CommandContext(ctx, n.command, message)
	if err := cmd.Run(); err != nil {
		return Delivery{}, fmt.Errorf("speak alert: %w", err)
	}
	return Delivery{AudioPlayed: true}, nil
}

// LogNotifier records alerts to the log only. Used when speech is disabled
// and as the fallback when no TTS command exists on the host.
type LogNotifier struct{}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// Notify logs the alert.
func (n *LogNotifier) Notify(ctx context.Context, kind Kind, incidentID, message string) (Delivery, error) {
	log := logging.With("notify")
	log.Warn().
		Str("kind", string(kind)).
		Str("incident_id", incidentID).
		Str("message", message).
		Msg("alert")
	return Delivery{NotificationSent: true}, nil
}
