package engine

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/bagwatch/internal/classify"
	"github.com/ayusman/bagwatch/internal/notify"
	"github.com/ayusman/bagwatch/internal/store"
)

// handleDetection applies one detection event to the session and incident
// state. Runs on the state loop.
func (e *Engine) handleDetection(ev DetectionEvent) {
	if e.session == nil {
		// Events from a stopping pipeline can trail the session. Drop them.
		e.log.Debug().Msg("detection event outside session, dropped")
		return
	}

	// Every event counts toward the session, detected or not.
	e.session.FrameCount++

	if e.incident == nil {
		if !ev.Detected {
			return
		}
		e.openIncident(ev)
		e.appendFrame(ev)
		return
	}

	if !ev.Detected {
		e.closeIncident(ev.Timestamp, store.EndReasonNoDetection)
		return
	}
	e.appendFrame(ev)
}

func (e *Engine) openIncident(ev DetectionEvent) {
	inc := &incidentState{
		rec: store.Incident{
			ID:                  uuid.NewString(),
			SessionID:           e.session.ID,
			StartedAt:           ev.Timestamp,
			Active:              true,
			EscalationThreshold: e.cfg.EscalationThreshold,
		},
		ring: make([]classify.Frame, 0, e.cfg.EscalationThreshold),
	}
	e.incident = inc
	e.session.IncidentCount++

	if err := e.store.Incidents().Create(&inc.rec); err != nil {
		e.log.Error().Err(err).Str("incident", inc.rec.ID).Msg("persist incident")
	}
	e.persistSession()

	e.log.Info().
		Str("incident", inc.rec.ID).
		Int("hands", ev.HandCount).
		Float64("confidence", ev.Confidence).
		Msg("incident started")
	e.emit(Event{Kind: EventIncidentStarted, Time: ev.Timestamp, IncidentID: inc.rec.ID})
	e.sendAlert(notify.KindHandDetected)
}

// appendFrame records one positive detection into the active incident and
// dispatches an escalation batch when the frame count crosses a multiple of
// the threshold.
func (e *Engine) appendFrame(ev DetectionEvent) {
	inc := e.incident
	inc.rec.FrameCount++
	seq := inc.rec.FrameCount

	if ev.HandCount > inc.rec.MaxHandCount {
		inc.rec.MaxHandCount = ev.HandCount
	}
	if ev.Confidence > inc.rec.MaxConfidence {
		inc.rec.MaxConfidence = ev.Confidence
	}

	frame := classify.Frame{
		Seq:        seq,
		Timestamp:  ev.Timestamp,
		HandCount:  ev.HandCount,
		Confidence: ev.Confidence,
		Image:      ev.Image,
	}
	if len(inc.ring) == cap(inc.ring) {
		copy(inc.ring, inc.ring[1:])
		inc.ring[len(inc.ring)-1] = frame
	} else {
		inc.ring = append(inc.ring, frame)
	}

	e.persistFrame(ev, seq)
	if err := e.store.Incidents().Update(&inc.rec); err != nil {
		e.log.Error().Err(err).Str("incident", inc.rec.ID).Msg("persist incident counters")
	}
	e.persistSession()

	e.emit(Event{
		Kind:       EventFrameAppended,
		Time:       ev.Timestamp,
		IncidentID: inc.rec.ID,
		Frame:      seq,
		Confidence: ev.Confidence,
	})

	if seq%e.cfg.EscalationThreshold == 0 {
		e.maybeEscalate(ev.Timestamp)
	}
}

func (e *Engine) persistFrame(ev DetectionEvent, seq int) {
	handData := "[]"
	if len(ev.Hands) > 0 {
		if b, err := json.Marshal(ev.Hands); err == nil {
			handData = string(b)
		}
	}
	f := &store.Frame{
		IncidentID:        e.incident.rec.ID,
		FrameNumber:       seq,
		GlobalFrameNumber: e.session.FrameCount,
		Timestamp:         ev.Timestamp,
		Detected:          true,
		HandCount:         ev.HandCount,
		Confidence:        ev.Confidence,
		HandData:          handData,
	}
	// Images are heavy; keep every Nth to bound database growth.
	if len(ev.Image) > 0 && e.cfg.ImageEvery > 0 && seq%e.cfg.ImageEvery == 0 {
		f.ImageData = base64.StdEncoding.EncodeToString(ev.Image)
	}
	if err := e.store.Frames().Append(f); err != nil {
		e.log.Error().Err(err).Str("incident", f.IncidentID).Int("frame", seq).Msg("persist frame")
	}
}

// closeIncident ends the active incident. Any in-flight batch keeps running;
// its verdict will arrive after the close and be recorded as stale.
func (e *Engine) closeIncident(at time.Time, reason store.EndReason) {
	inc := e.incident
	if inc == nil {
		return
	}
	ended := at
	inc.rec.EndedAt = &ended
	inc.rec.Active = false
	inc.rec.EndReason = reason

	if err := e.store.Incidents().Update(&inc.rec); err != nil {
		e.log.Error().Err(err).Str("incident", inc.rec.ID).Msg("persist incident close")
	}

	e.log.Info().
		Str("incident", inc.rec.ID).
		Str("reason", string(reason)).
		Int("frames", inc.rec.FrameCount).
		Int("batches", inc.rec.BatchesSent).
		Msg("incident ended")
	e.emit(Event{
		Kind:       EventIncidentEnded,
		Time:       at,
		IncidentID: inc.rec.ID,
		Frame:      inc.rec.FrameCount,
		Reason:     reason,
		Threat:     inc.rec.ThreatConfirmed,
	})

	if reason == store.EndReasonThreatConfirmed {
		e.sendAlert(notify.KindThreatConfirmed)
	}
	e.incident = nil
}

func (e *Engine) persistSession() {
	if err := e.store.Sessions().Update(e.session); err != nil {
		e.log.Error().Err(err).Str("session", e.session.ID).Msg("persist session counters")
	}
}
