package app

import (
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/bagwatch/internal/capture"
	"github.com/ayusman/bagwatch/internal/classify"
	"github.com/ayusman/bagwatch/internal/config"
	"github.com/ayusman/bagwatch/internal/detector"
	"github.com/ayusman/bagwatch/internal/engine"
	"github.com/ayusman/bagwatch/internal/notify"
	"github.com/ayusman/bagwatch/internal/store"
)

func newTestApp(t *testing.T) (*App, *store.Store) {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	eng := engine.New(engine.Config{
		EscalationThreshold: 10,
		ConfidenceCutoff:    60,
		ClassifierTimeout:   5 * time.Second,
	}, s, classify.NewMockClassifier(), notify.NewMockNotifier())
	eng.Start()
	t.Cleanup(eng.Stop)

	a := New(config.CameraConfig{
		DeviceID:        0,
		IdleFPS:         30,
		ActiveFPS:       60,
		MotionThreshold: 0.01,
	}, eng)
	return a, s
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// noisyFrames builds alternating solid frames so the motion detector sees
// every frame as changed.
func noisyFrames(t *testing.T, n int) []*gocv.Mat {
	t.Helper()
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		m := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
		val := 0.0
		if i%2 == 0 {
			val = 255.0
		}
		m.SetTo(gocv.NewScalar(val, val, val, 0))
		frames = append(frames, &m)
	}
	t.Cleanup(func() {
		for _, f := range frames {
			f.Close()
		}
	})
	return frames
}

func TestApp_PipelineFeedsEngine(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	a, s := newTestApp(t)

	mock := detector.NewMockDetector()
	mock.SetHands([]detector.Hand{detector.ReachingHand()})
	a.SetDetector(mock)
	a.SetCamera(capture.NewMockCamera(noisyFrames(t, 10), true))

	sessionID, err := a.StartMonitoring()
	if err != nil {
		t.Fatalf("StartMonitoring() error = %v", err)
	}
	if !a.IsMonitoring() {
		t.Fatal("expected monitoring to be active")
	}

	// Motion flips the pipeline to active mode, detection opens an
	// incident a frame or two later.
	waitFor(t, 5*time.Second, func() bool {
		st, err := a.Engine().Status()
		return err == nil && st.IncidentActive
	})

	if err := a.StopMonitoring(); err != nil {
		t.Fatalf("StopMonitoring() error = %v", err)
	}
	if a.IsMonitoring() {
		t.Fatal("expected monitoring to be stopped")
	}

	sess, err := s.Sessions().GetByID(sessionID)
	if err != nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if sess.Active {
		t.Fatal("session should be ended")
	}
	if sess.IncidentCount < 1 {
		t.Fatal("expected at least one incident")
	}
	if sess.FrameCount < sess.IncidentCount {
		t.Fatalf("frame count %d below incident count %d", sess.FrameCount, sess.IncidentCount)
	}
}

func TestApp_StartMonitoringTwiceFails(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	a, _ := newTestApp(t)
	a.SetDetector(detector.NewMockDetector())
	a.SetCamera(capture.NewMockCamera(noisyFrames(t, 4), true))

	if _, err := a.StartMonitoring(); err != nil {
		t.Fatalf("StartMonitoring() error = %v", err)
	}
	defer a.StopMonitoring()

	if _, err := a.StartMonitoring(); err == nil {
		t.Fatal("second StartMonitoring() should fail")
	}
}

func TestApp_StopWithoutStart(t *testing.T) {
	a, _ := newTestApp(t)
	if err := a.StopMonitoring(); err == nil {
		t.Fatal("StopMonitoring() without a session should fail")
	}
}
