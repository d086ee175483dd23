package app

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/bagwatch/internal/detector"
	"github.com/ayusman/bagwatch/internal/engine"
)

// runPipeline is the capture loop. It reads frames at the current rate,
// gates hand detection on motion, and feeds every processed frame to the
// engine as a detection event.
//
// Rate switching mirrors the motion state: idle FPS while the scene is
// still, active FPS while there is motion, dropping back after
// IdleTimeoutMs without any. Idle frames skip the detector entirely and
// are reported as no-detection events so the session still counts them.
func (a *App) runPipeline(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	activeMode := false
	lastMotionTime := time.Now()
	readFailures := 0

	frameInterval := time.Second / time.Duration(a.cfg.IdleFPS)
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			frame, err := a.camera.ReadFrame()
			if err != nil {
				readFailures++
				a.log.Warn().Err(err).Int("consecutive", readFailures).Msg("camera read failed")
				if readFailures >= MaxReadFailures {
					// The detection source is gone; the session cannot
					// continue. Force-stop from outside the loop.
					a.log.Error().Msg("camera unavailable, stopping session")
					go a.StopMonitoring()
					return
				}
				continue
			}
			readFailures = 0

			motionDetected, _ := a.motion.Detect(frame)
			if motionDetected {
				lastMotionTime = time.Now()
				if !activeMode {
					activeMode = true
					a.camera.SetFPS(a.cfg.ActiveFPS)
					frameInterval = time.Second / time.Duration(a.cfg.ActiveFPS)
					ticker.Reset(frameInterval)
					a.log.Debug().Msg("switched to active mode")
				}
			} else if activeMode && time.Since(lastMotionTime) > IdleTimeoutMs*time.Millisecond {
				activeMode = false
				a.camera.SetFPS(a.cfg.IdleFPS)
				frameInterval = time.Second / time.Duration(a.cfg.IdleFPS)
				ticker.Reset(frameInterval)
				a.log.Debug().Msg("switched to idle mode")
			}

			a.processFrame(frame, activeMode)
			frame.Close()
		}
	}
}

// processFrame runs detection on active frames and feeds the result to the
// engine. Idle frames are reported as no-detection without running the
// detector.
func (a *App) processFrame(frame *gocv.Mat, active bool) {
	ev := engine.DetectionEvent{Timestamp: time.Now()}

	if active {
		hands, err := a.detector.Detect(frame)
		if err != nil {
			a.log.Warn().Err(err).Msg("hand detection failed")
		} else if len(hands) > 0 {
			ev.Detected = true
			ev.Hands = hands
			ev.HandCount, ev.Confidence = detector.Summarize(hands)
			ev.Image = a.encodeJPEG(frame)
		}
	}

	if ev.Image != nil {
		a.setSnapshot(ev.Image)
	} else if jpeg := a.encodeSnapshotThrottled(frame); jpeg != nil {
		a.setSnapshot(jpeg)
	}

	if err := a.engine.Observe(ev); err != nil {
		a.log.Warn().Err(err).Msg("engine rejected detection event")
	}
}

func (a *App) encodeJPEG(frame *gocv.Mat) []byte {
	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		a.log.Warn().Err(err).Msg("frame encode failed")
		return nil
	}
	defer buf.Close()
	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out
}

// encodeSnapshotThrottled keeps the live-view snapshot fresh at roughly 1
// FPS without paying the JPEG cost on every idle frame.
func (a *App) encodeSnapshotThrottled(frame *gocv.Mat) []byte {
	a.mu.Lock()
	due := time.Since(a.lastSnapshotAt) >= time.Second
	if due {
		a.lastSnapshotAt = time.Now()
	}
	a.mu.Unlock()
	if !due {
		return nil
	}
	return a.encodeJPEG(frame)
}
