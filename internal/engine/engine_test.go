package engine

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/bagwatch/internal/classify"
	"github.com/ayusman/bagwatch/internal/notify"
	"github.com/ayusman/bagwatch/internal/store"
)

type testRig struct {
	engine     *Engine
	store      *store.Store
	classifier *classify.MockClassifier
	notifier   *notify.MockNotifier
}

func newTestRig(t *testing.T, cfg Config) *testRig {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cls := classify.NewMockClassifier()
	ntf := notify.NewMockNotifier()
	eng := New(cfg, st, cls, ntf)
	eng.Start()
	t.Cleanup(eng.Stop)

	return &testRig{engine: eng, store: st, classifier: cls, notifier: ntf}
}

func testConfig() Config {
	return Config{
		EscalationThreshold: 10,
		ConfidenceCutoff:    60,
		ClassifierTimeout:   5 * time.Second,
		ImageEvery:          4,
	}
}

// observe feeds n consecutive events with the given detection outcome.
func (r *testRig) observe(t *testing.T, n int, detected bool) {
	t.Helper()
	for i := 0; i < n; i++ {
		ev := DetectionEvent{Timestamp: time.Now(), Detected: detected}
		if detected {
			ev.HandCount = 1
			ev.Confidence = 0.9
		}
		if err := r.engine.Observe(ev); err != nil {
			t.Fatalf("observe failed: %v", err)
		}
	}
}

// status round-trips through the state loop, so once it returns every
// previously observed event has been applied.
func (r *testRig) status(t *testing.T) Status {
	t.Helper()
	s, err := r.engine.Status()
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	return s
}

// waitFor polls until the condition holds, for verdicts that arrive on the
// classifier's own goroutine.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestStartSession_RejectsSecond(t *testing.T) {
	r := newTestRig(t, testConfig())

	id, err := r.engine.StartSession()
	if err != nil {
		t.Fatalf("start session failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a session ID")
	}

	if _, err := r.engine.StartSession(); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
}

func TestStopSession_NoSession(t *testing.T) {
	r := newTestRig(t, testConfig())

	if err := r.engine.StopSession(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestObserve_OutsideSessionIsDropped(t *testing.T) {
	r := newTestRig(t, testConfig())

	r.observe(t, 5, true)

	if _, err := r.engine.Status(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	incidents, err := r.store.Incidents().List()
	if err != nil {
		t.Fatalf("list incidents failed: %v", err)
	}
	if len(incidents) != 0 {
		t.Fatalf("expected no incidents, got %d", len(incidents))
	}
}

func TestDetection_OpensSingleIncident(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()

	r.observe(t, 5, true)

	s := r.status(t)
	if !s.IncidentActive {
		t.Fatal("expected an active incident")
	}
	if s.IncidentCount != 1 {
		t.Fatalf("expected 1 incident, got %d", s.IncidentCount)
	}
	if s.IncidentFrames != 5 {
		t.Fatalf("expected 5 incident frames, got %d", s.IncidentFrames)
	}
}

func TestDetection_GapClosesIncident(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()

	r.observe(t, 3, true)
	r.observe(t, 1, false)

	s := r.status(t)
	if s.IncidentActive {
		t.Fatal("incident should be closed after a no-detection event")
	}

	incidents, err := r.store.Incidents().List()
	if err != nil {
		t.Fatalf("list incidents failed: %v", err)
	}
	if len(incidents) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(incidents))
	}
	inc := incidents[0]
	if inc.Active {
		t.Fatal("persisted incident should be closed")
	}
	if inc.EndReason != store.EndReasonNoDetection {
		t.Fatalf("expected end reason %q, got %q", store.EndReasonNoDetection, inc.EndReason)
	}
	if inc.EndedAt == nil {
		t.Fatal("expected EndedAt to be set")
	}
	if inc.FrameCount != 3 {
		t.Fatalf("expected 3 frames, got %d", inc.FrameCount)
	}
}

func TestDetection_NewIncidentAfterGap(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()

	r.observe(t, 3, true)
	r.observe(t, 2, false)
	r.observe(t, 4, true)

	s := r.status(t)
	if !s.IncidentActive {
		t.Fatal("expected a second active incident")
	}
	if s.IncidentCount != 2 {
		t.Fatalf("expected 2 incidents, got %d", s.IncidentCount)
	}
	if s.IncidentFrames != 4 {
		t.Fatalf("second incident should have 4 frames, got %d", s.IncidentFrames)
	}
}

func TestFrameAccounting_SessionCountsEverything(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()

	r.observe(t, 2, false)
	r.observe(t, 3, true)
	r.observe(t, 1, false)
	r.observe(t, 2, false)

	s := r.status(t)
	if s.FrameCount != 8 {
		t.Fatalf("session should count all 8 events, got %d", s.FrameCount)
	}

	incidents, _ := r.store.Incidents().List()
	if len(incidents) != 1 || incidents[0].FrameCount != 3 {
		t.Fatalf("incident should count only the 3 detected frames")
	}
}

func TestFrameAccounting_Maxima(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()

	events := []DetectionEvent{
		{Detected: true, HandCount: 1, Confidence: 0.5},
		{Detected: true, HandCount: 2, Confidence: 0.7},
		{Detected: true, HandCount: 1, Confidence: 0.95},
	}
	for _, ev := range events {
		if err := r.engine.Observe(ev); err != nil {
			t.Fatalf("observe failed: %v", err)
		}
	}

	s := r.status(t)
	if s.MaxHandCount != 2 {
		t.Fatalf("expected max hand count 2, got %d", s.MaxHandCount)
	}
	if s.MaxConfidence != 0.95 {
		t.Fatalf("expected max confidence 0.95, got %v", s.MaxConfidence)
	}
}

func TestFrames_PersistedWithSequenceNumbers(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()

	r.observe(t, 2, false)
	r.observe(t, 3, true)
	s := r.status(t)

	frames, err := r.store.Frames().ListByIncident(s.IncidentID)
	if err != nil {
		t.Fatalf("list frames failed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	for i, f := range frames {
		if f.FrameNumber != i+1 {
			t.Fatalf("frame %d has FrameNumber %d", i, f.FrameNumber)
		}
	}
	// Session-global numbering continues past the two undetected events.
	if frames[0].GlobalFrameNumber != 3 {
		t.Fatalf("expected first frame at global position 3, got %d", frames[0].GlobalFrameNumber)
	}
}

func TestEscalation_CadenceAndBatchContents(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()

	// Feed one threshold's worth at a time and let each verdict land, so
	// batches fire at frames 10, 20 and 30 without coalescing.
	for i := 0; i < 3; i++ {
		r.observe(t, 10, true)
		calls := i + 1
		waitFor(t, 2*time.Second, func() bool {
			return r.classifier.Calls() == calls && r.status(t).OutstandingBatch == 0
		})
	}
	r.observe(t, 5, true)
	s := r.status(t)

	batches := r.classifier.Batches()
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	for i, b := range batches {
		if len(b) != 10 {
			t.Fatalf("batch %d has %d frames, want 10", i+1, len(b))
		}
	}
	// Each batch covers the ten frames ending at the trigger.
	if batches[0][0].Seq != 1 || batches[0][9].Seq != 10 {
		t.Fatalf("first batch covers %d..%d, want 1..10", batches[0][0].Seq, batches[0][9].Seq)
	}
	if batches[2][0].Seq != 21 || batches[2][9].Seq != 30 {
		t.Fatalf("third batch covers %d..%d, want 21..30", batches[2][0].Seq, batches[2][9].Seq)
	}

	waitFor(t, 2*time.Second, func() bool {
		as, err := r.store.Analyses().ListByIncident(s.IncidentID)
		if err != nil || len(as) != 3 {
			return false
		}
		for _, a := range as {
			if a.Status != store.AnalysisResolved {
				return false
			}
		}
		return true
	})

	as, _ := r.store.Analyses().ListByIncident(s.IncidentID)
	for i, a := range as {
		if a.BatchSeq != i+1 {
			t.Fatalf("analysis %d has batch_seq %d", i, a.BatchSeq)
		}
	}
	if as[1].FrameStart != 11 || as[1].FrameEnd != 20 {
		t.Fatalf("second analysis covers %d..%d, want 11..20", as[1].FrameStart, as[1].FrameEnd)
	}
}

func TestEscalation_CoalescesWhileOutstanding(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()
	r.classifier.Block()

	// Frames 10 and 20 both cross the threshold, but the batch from frame
	// 10 is still in flight at 20, so only one is dispatched.
	r.observe(t, 25, true)
	s := r.status(t)

	// The classify goroutine is spawned asynchronously at frame 10.
	waitFor(t, 2*time.Second, func() bool { return r.classifier.Calls() == 1 })
	if s.BatchesSent != 1 {
		t.Fatalf("expected 1 batch sent, got %d", s.BatchesSent)
	}
	if s.OutstandingBatch != 1 {
		t.Fatalf("expected batch 1 outstanding, got %d", s.OutstandingBatch)
	}

	r.classifier.Release()
	waitFor(t, 2*time.Second, func() bool {
		return r.status(t).OutstandingBatch == 0
	})

	// The next threshold crossing dispatches again.
	r.observe(t, 5, true)
	waitFor(t, 2*time.Second, func() bool { return r.classifier.Calls() == 2 })

	s = r.status(t)
	if s.BatchesSent != 2 {
		t.Fatalf("expected 2 batches sent, got %d", s.BatchesSent)
	}
}

func TestVerdict_ThreatClosesIncident(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()
	r.classifier.Block()
	r.classifier.Queue(&classify.Result{
		ThreatDetected: true,
		Confidence:     90,
		Explanation:    "hand unzipping the backpack",
	}, nil)

	// Frame 11 lands while the batch for frames 1-10 is still in flight;
	// the threat verdict still closes the incident.
	r.observe(t, 10, true)
	r.observe(t, 1, true)
	s := r.status(t)
	incidentID := s.IncidentID
	if s.IncidentFrames != 11 {
		t.Fatalf("expected 11 frames before the verdict, got %d", s.IncidentFrames)
	}

	r.classifier.Release()
	waitFor(t, 2*time.Second, func() bool {
		return !r.status(t).IncidentActive
	})

	inc, err := r.store.Incidents().GetByID(incidentID)
	if err != nil {
		t.Fatalf("get incident failed: %v", err)
	}
	if inc.EndReason != store.EndReasonThreatConfirmed {
		t.Fatalf("expected end reason %q, got %q", store.EndReasonThreatConfirmed, inc.EndReason)
	}
	if !inc.ThreatConfirmed {
		t.Fatal("expected ThreatConfirmed")
	}
	if inc.ThreatConfidence == nil || *inc.ThreatConfidence != 90 {
		t.Fatal("expected threat confidence 90")
	}
	if inc.ThreatExplanation != "hand unzipping the backpack" {
		t.Fatalf("unexpected explanation %q", inc.ThreatExplanation)
	}

	// Exactly one threat-confirmed alert, regardless of frame 11.
	alerts, err := r.store.Alerts().ListByIncident(incidentID)
	if err != nil {
		t.Fatalf("list alerts failed: %v", err)
	}
	threats := 0
	for _, a := range alerts {
		if a.Kind == store.AlertThreatConfirmed {
			threats++
		}
	}
	if threats != 1 {
		t.Fatalf("expected exactly 1 threat alert, got %d", threats)
	}
}

func TestVerdict_BelowCutoffKeepsIncidentOpen(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()
	r.classifier.Queue(&classify.Result{
		ThreatDetected: true,
		Confidence:     40,
		Explanation:    "possibly adjusting a strap",
	}, nil)

	r.observe(t, 10, true)
	s := r.status(t)

	waitFor(t, 2*time.Second, func() bool {
		return r.status(t).OutstandingBatch == 0
	})

	s = r.status(t)
	if !s.IncidentActive {
		t.Fatal("incident should stay open below the confidence cutoff")
	}
	if s.ThreatConfirmed {
		t.Fatal("threat should not be confirmed below the cutoff")
	}
	// The assessment is still recorded on the incident.
	if s.ThreatConfidence != 40 {
		t.Fatalf("expected recorded confidence 40, got %v", s.ThreatConfidence)
	}
}

func TestVerdict_AtCutoffKeepsIncidentOpen(t *testing.T) {
	cfg := testConfig()
	r := newTestRig(t, cfg)
	r.engine.StartSession()
	r.classifier.Queue(&classify.Result{
		ThreatDetected: true,
		Confidence:     cfg.ConfidenceCutoff,
		Explanation:    "hand near the zipper",
	}, nil)

	r.observe(t, 10, true)
	waitFor(t, 2*time.Second, func() bool {
		return r.status(t).OutstandingBatch == 0
	})

	s := r.status(t)
	if !s.IncidentActive {
		t.Fatal("confirmation requires confidence strictly above the cutoff")
	}
	if s.ThreatConfirmed {
		t.Fatal("threat should not be confirmed at exactly the cutoff")
	}
	if s.ThreatConfidence != cfg.ConfidenceCutoff {
		t.Fatalf("expected recorded confidence %v, got %v", cfg.ConfidenceCutoff, s.ThreatConfidence)
	}
}

func TestVerdict_StaleIsDiscarded(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()
	r.classifier.Block()
	r.classifier.Queue(&classify.Result{
		ThreatDetected: true,
		Confidence:     99,
		Explanation:    "grabbing the bag",
	}, nil)

	r.observe(t, 10, true)
	incidentID := r.status(t).IncidentID

	// Hands leave before the verdict lands.
	r.observe(t, 1, false)
	if r.status(t).IncidentActive {
		t.Fatal("incident should be closed")
	}

	r.classifier.Release()
	waitFor(t, 2*time.Second, func() bool {
		a, err := r.store.Analyses().GetByBatch(incidentID, 1)
		return err == nil && a.Status == store.AnalysisStale
	})

	// The late threat verdict changed nothing.
	inc, err := r.store.Incidents().GetByID(incidentID)
	if err != nil {
		t.Fatalf("get incident failed: %v", err)
	}
	if inc.ThreatConfirmed {
		t.Fatal("stale verdict must not confirm a threat")
	}
	if inc.EndReason != store.EndReasonNoDetection {
		t.Fatalf("expected end reason %q, got %q", store.EndReasonNoDetection, inc.EndReason)
	}
}

func TestVerdict_ClassifierErrorRecovers(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()
	r.classifier.Queue(nil, errors.New("upstream unavailable"))

	r.observe(t, 10, true)
	s := r.status(t)
	incidentID := s.IncidentID

	waitFor(t, 2*time.Second, func() bool {
		a, err := r.store.Analyses().GetByBatch(incidentID, 1)
		return err == nil && a.Status == store.AnalysisFailed
	})

	s = r.status(t)
	if !s.IncidentActive {
		t.Fatal("a failed batch must not close the incident")
	}
	if s.OutstandingBatch != 0 {
		t.Fatal("a failed batch must clear the outstanding slot")
	}

	// The next threshold crossing dispatches batch 2.
	r.observe(t, 10, true)
	waitFor(t, 2*time.Second, func() bool { return r.classifier.Calls() == 2 })

	if got := r.status(t).BatchesSent; got != 2 {
		t.Fatalf("expected 2 batches sent, got %d", got)
	}
}

func TestVerdict_TimeoutClearsOutstanding(t *testing.T) {
	cfg := testConfig()
	cfg.ClassifierTimeout = 50 * time.Millisecond
	r := newTestRig(t, cfg)
	r.engine.StartSession()
	r.classifier.Block()
	defer r.classifier.Release()

	r.observe(t, 10, true)
	incidentID := r.status(t).IncidentID

	waitFor(t, 2*time.Second, func() bool {
		a, err := r.store.Analyses().GetByBatch(incidentID, 1)
		return err == nil && a.Status == store.AnalysisFailed
	})

	s := r.status(t)
	if !s.IncidentActive {
		t.Fatal("a timed-out batch must not close the incident")
	}
	if s.OutstandingBatch != 0 {
		t.Fatal("a timed-out batch must clear the outstanding slot")
	}
}

func TestStopSession_ClosesOpenIncident(t *testing.T) {
	r := newTestRig(t, testConfig())
	sessionID, _ := r.engine.StartSession()

	r.observe(t, 3, true)
	incidentID := r.status(t).IncidentID

	if err := r.engine.StopSession(); err != nil {
		t.Fatalf("stop session failed: %v", err)
	}

	inc, err := r.store.Incidents().GetByID(incidentID)
	if err != nil {
		t.Fatalf("get incident failed: %v", err)
	}
	if inc.Active {
		t.Fatal("incident should be closed when the session stops")
	}
	if inc.EndReason != store.EndReasonSessionStopped {
		t.Fatalf("expected end reason %q, got %q", store.EndReasonSessionStopped, inc.EndReason)
	}

	sess, err := r.store.Sessions().GetByID(sessionID)
	if err != nil {
		t.Fatalf("get session failed: %v", err)
	}
	if sess.Active || sess.EndedAt == nil {
		t.Fatal("session should be persisted as ended")
	}
	if sess.FrameCount != 3 || sess.IncidentCount != 1 {
		t.Fatalf("expected counters 3/1, got %d/%d", sess.FrameCount, sess.IncidentCount)
	}
}

func TestAlerts_SentOnLifecycle(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()
	r.classifier.Queue(&classify.Result{
		ThreatDetected: true,
		Confidence:     95,
		Explanation:    "reaching inside the bag",
	}, nil)

	r.observe(t, 10, true)
	incidentID := r.status(t).IncidentID

	waitFor(t, 2*time.Second, func() bool {
		return len(r.notifier.Sent()) == 3
	})

	kinds := make([]notify.Kind, 0, 3)
	for _, a := range r.notifier.Sent() {
		kinds = append(kinds, a.Kind)
	}
	want := []notify.Kind{notify.KindHandDetected, notify.KindEscalation, notify.KindThreatConfirmed}
	for i, k := range want {
		if kinds[i] != k {
			t.Fatalf("alert %d is %q, want %q", i, kinds[i], k)
		}
	}

	waitFor(t, 2*time.Second, func() bool {
		alerts, err := r.store.Alerts().ListByIncident(incidentID)
		if err != nil || len(alerts) != 3 {
			return false
		}
		for _, a := range alerts {
			if !a.AudioPlayed || !a.NotificationSent {
				return false
			}
		}
		return true
	})
}

func TestStatus_CountsEscalations(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()

	r.observe(t, 10, true)
	waitFor(t, 2*time.Second, func() bool {
		return r.classifier.Calls() == 1 && r.status(t).OutstandingBatch == 0
	})
	r.observe(t, 10, true)
	waitFor(t, 2*time.Second, func() bool {
		return r.classifier.Calls() == 2 && r.status(t).OutstandingBatch == 0
	})

	s := r.status(t)
	if s.EscalationCount != 2 {
		t.Fatalf("expected 2 escalations, got %d", s.EscalationCount)
	}
}

func TestObserve_AfterStopReturnsError(t *testing.T) {
	r := newTestRig(t, testConfig())
	r.engine.StartSession()
	r.engine.Stop()

	if err := r.engine.Observe(DetectionEvent{Detected: true}); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
