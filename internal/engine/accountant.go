package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/bagwatch/internal/store"
)

// startSession begins a monitoring session. Runs on the state loop.
func (e *Engine) startSession() (string, error) {
	if e.session != nil {
		return "", ErrSessionActive
	}
	sess := &store.Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Active:    true,
	}
	e.session = sess
	e.emit(Event{Kind: EventSessionStarted, Time: sess.StartedAt, SessionID: sess.ID})
	e.log.Info().Str("session", sess.ID).Msg("session started")

	// Persistence failure does not roll the session back; the engine keeps
	// tracking in memory and the caller decides what to do.
	if err := e.store.Sessions().Create(sess); err != nil {
		return sess.ID, fmt.Errorf("persist session: %w", err)
	}
	return sess.ID, nil
}

// stopSession ends the active session, force-closing any open incident
// first so the incident never outlives its session. Runs on the state loop.
func (e *Engine) stopSession() error {
	if e.session == nil {
		return ErrNoSession
	}
	now := time.Now()
	if e.incident != nil {
		e.closeIncident(now, store.EndReasonSessionStopped)
	}

	sess := e.session
	sess.EndedAt = &now
	sess.Active = false
	err := e.store.Sessions().Update(sess)

	e.log.Info().
		Str("session", sess.ID).
		Int("frames", sess.FrameCount).
		Int("incidents", sess.IncidentCount).
		Int("escalations", sess.EscalationCount).
		Msg("session ended")
	e.emit(Event{Kind: EventSessionEnded, Time: now, SessionID: sess.ID})
	e.session = nil

	if err != nil {
		return fmt.Errorf("persist session end: %w", err)
	}
	return nil
}
