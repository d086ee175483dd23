package engine

import (
	"errors"
	"time"

	"github.com/ayusman/bagwatch/internal/store"
)

// handleVerdict applies one classifier verdict. Runs on the state loop.
//
// A verdict only mutates incident state when the incident it belongs to is
// still the active one. Verdicts for closed incidents are recorded as stale
// for audit and otherwise discarded.
func (e *Engine) handleVerdict(c verdictCmd) {
	now := time.Now()
	inc := e.incident
	current := inc != nil && inc.rec.ID == c.incidentID

	if !current {
		e.resolveAnalysis(c, now, store.AnalysisStale)
		e.log.Info().
			Str("incident", c.incidentID).
			Int("batch", c.batchSeq).
			Msg("stale verdict discarded")
		return
	}

	// The batch is accounted for either way; frees the next trigger.
	inc.outstanding = 0

	if c.err != nil {
		e.resolveAnalysis(c, now, store.AnalysisFailed)
		e.log.Warn().Err(c.err).
			Str("incident", inc.rec.ID).
			Int("batch", c.batchSeq).
			Msg("classification failed")
		return
	}

	e.resolveAnalysis(c, now, store.AnalysisResolved)
	res := c.result
	e.log.Info().
		Str("incident", inc.rec.ID).
		Int("batch", c.batchSeq).
		Bool("threat", res.ThreatDetected).
		Float64("confidence", res.Confidence).
		Dur("latency", res.Latency).
		Msg("verdict recorded")
	e.emit(Event{
		Kind:       EventVerdictRecorded,
		Time:       now,
		IncidentID: inc.rec.ID,
		BatchSeq:   c.batchSeq,
		Threat:     res.ThreatDetected,
		Confidence: res.Confidence,
	})

	// Strictly above the cutoff. A verdict at exactly the cutoff is recorded
	// but does not confirm.
	if res.ThreatDetected && res.Confidence > e.cfg.ConfidenceCutoff {
		conf := res.Confidence
		inc.rec.ThreatConfirmed = true
		inc.rec.ThreatConfidence = &conf
		inc.rec.ThreatExplanation = res.Explanation
		e.closeIncident(now, store.EndReasonThreatConfirmed)
		return
	}

	// Latest assessment is kept on the incident even below the cutoff.
	conf := res.Confidence
	inc.rec.ThreatConfidence = &conf
	inc.rec.ThreatExplanation = res.Explanation
	if err := e.store.Incidents().Update(&inc.rec); err != nil {
		e.log.Error().Err(err).Str("incident", inc.rec.ID).Msg("persist incident verdict")
	}
}

// resolveAnalysis writes the final state of a batch's analysis row.
func (e *Engine) resolveAnalysis(c verdictCmd, at time.Time, status store.AnalysisStatus) {
	if c.err != nil && status != store.AnalysisStale {
		status = store.AnalysisFailed
	}
	a := &store.Analysis{
		IncidentID: c.incidentID,
		BatchSeq:   c.batchSeq,
		Status:     status,
		ResolvedAt: &at,
	}
	if c.err != nil {
		a.Explanation = c.err.Error()
	} else if c.result != nil {
		a.ThreatDetected = c.result.ThreatDetected
		a.Confidence = c.result.Confidence
		a.Explanation = c.result.Explanation
		a.RawResponse = c.result.Raw
		a.LatencyMs = c.result.Latency.Milliseconds()
		a.TokensUsed = c.result.TokensUsed
	}
	err := e.store.Analyses().Resolve(a)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// A verdict for a batch that was never dispatched. Should not
		// happen; log it and move on.
		e.log.Error().
			Str("incident", c.incidentID).
			Int("batch", c.batchSeq).
			Msg("verdict for unknown batch")
	case err != nil:
		e.log.Error().Err(err).
			Str("incident", c.incidentID).
			Int("batch", c.batchSeq).
			Msg("persist analysis resolution")
	}
}
