package notify

import (
	"context"
	"testing"
)

func TestMessage_CoversAllKinds(t *testing.T) {
	kinds := []Kind{KindHandDetected, KindEscalation, KindThreatConfirmed, Kind("unknown")}
	for _, k := range kinds {
		if Message(k) == "" {
			t.Errorf("Message(%q) is empty", k)
		}
	}
}

func TestLogNotifier_ReportsDelivery(t *testing.T) {
	n := NewLogNotifier()

	d, err := n.Notify(context.Background(), KindThreatConfirmed, "inc-1", "threat confirmed")
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if !d.NotificationSent {
		t.Error("log notifier should report NotificationSent")
	}
	if d.AudioPlayed {
		t.Error("log notifier should not report AudioPlayed")
	}
}

func TestSpeechNotifier_DefaultCommand(t *testing.T) {
	n := NewSpeechNotifier("")
	if n.command == "" {
		t.Error("default speech command should not be empty")
	}

	n = NewSpeechNotifier("custom-tts")
	if n.command != "custom-tts" {
		t.Errorf("command = %q, want custom-tts", n.command)
	}
}

func TestSpeechNotifier_MissingBinary(t *testing.T) {
	n := NewSpeechNotifier("bagwatch-no-such-tts-binary")

	if _, err := n.Notify(context.Background(), KindHandDetected, "inc-1", ""); err == nil {
		t.Error("missing TTS binary should surface an error")
	}
}
