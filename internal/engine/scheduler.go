package engine

import (
	"time"

	"github.com/ayusman/bagwatch/internal/classify"
	"github.com/ayusman/bagwatch/internal/notify"
	"github.com/ayusman/bagwatch/internal/store"
)

// maybeEscalate dispatches the last threshold frames to the classifier.
// Called when the incident frame count hits a multiple of the threshold.
// If a previous batch is still in flight the trigger is coalesced into it
// and nothing is sent.
func (e *Engine) maybeEscalate(at time.Time) {
	inc := e.incident
	if inc.outstanding != 0 {
		e.log.Debug().
			Str("incident", inc.rec.ID).
			Int("batch", inc.outstanding).
			Int("frame", inc.rec.FrameCount).
			Msg("escalation coalesced, batch still in flight")
		return
	}

	inc.rec.BatchesSent++
	batchSeq := inc.rec.BatchesSent
	inc.outstanding = batchSeq
	e.session.EscalationCount++

	frames := make([]classify.Frame, len(inc.ring))
	copy(frames, inc.ring)
	frameEnd := inc.rec.FrameCount
	frameStart := frameEnd - len(frames) + 1

	a := &store.Analysis{
		IncidentID:   inc.rec.ID,
		BatchSeq:     batchSeq,
		Status:       store.AnalysisPending,
		DispatchedAt: at,
		FrameStart:   frameStart,
		FrameEnd:     frameEnd,
	}
	if err := e.store.Analyses().Create(a); err != nil {
		e.log.Error().Err(err).Str("incident", inc.rec.ID).Int("batch", batchSeq).Msg("persist analysis")
	}
	if err := e.store.Incidents().Update(&inc.rec); err != nil {
		e.log.Error().Err(err).Str("incident", inc.rec.ID).Msg("persist incident counters")
	}
	e.persistSession()

	e.log.Info().
		Str("incident", inc.rec.ID).
		Int("batch", batchSeq).
		Int("frame_start", frameStart).
		Int("frame_end", frameEnd).
		Msg("escalation dispatched")
	e.emit(Event{
		Kind:       EventEscalationDispatched,
		Time:       at,
		IncidentID: inc.rec.ID,
		Frame:      frameEnd,
		BatchSeq:   batchSeq,
	})
	e.sendAlert(notify.KindEscalation)

	e.classifyAsync(inc.rec.ID, batchSeq, frames)
}
