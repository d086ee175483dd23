package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/bagwatch/internal/notify"
	"github.com/ayusman/bagwatch/internal/store"
)

// sendAlert records an alert for the active incident and hands delivery to
// the notifier off the state loop. Runs on the state loop.
func (e *Engine) sendAlert(kind notify.Kind) {
	inc := e.incident
	if inc == nil {
		return
	}
	now := time.Now()
	alert := &store.Alert{
		ID:         uuid.NewString(),
		IncidentID: inc.rec.ID,
		Kind:       store.AlertKind(kind),
		SentAt:     now,
		Message:    notify.Message(kind),
	}
	if err := e.store.Alerts().Create(alert); err != nil {
		e.log.Error().Err(err).Str("incident", inc.rec.ID).Msg("persist alert")
	}

	inc.rec.Alerted = true
	if inc.rec.AlertSentAt == nil {
		inc.rec.AlertSentAt = &now
	}
	if err := e.store.Incidents().Update(&inc.rec); err != nil {
		e.log.Error().Err(err).Str("incident", inc.rec.ID).Msg("persist incident alert state")
	}

	e.emit(Event{
		Kind:       EventAlertSent,
		Time:       now,
		IncidentID: inc.rec.ID,
		AlertKind:  kind,
	})

	// Delivery is fire and forget; a stuck speech command must not stall
	// the state loop.
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		delivery, err := e.notifier.Notify(ctx, kind, alert.IncidentID, alert.Message)
		if err != nil {
			e.log.Warn().Err(err).Str("alert", alert.ID).Msg("alert delivery failed")
			return
		}
		if err := e.store.Alerts().MarkDelivered(alert.ID, delivery.AudioPlayed, delivery.NotificationSent); err != nil {
			e.log.Error().Err(err).Str("alert", alert.ID).Msg("persist alert delivery")
		}
	}()
}
