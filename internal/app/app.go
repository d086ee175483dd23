// Package app wires the capture pipeline to the incident engine: camera
// frames flow through motion gating and hand detection, and every processed
// frame is fed to the engine as a detection event.
package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/bagwatch/internal/capture"
	"github.com/ayusman/bagwatch/internal/config"
	"github.com/ayusman/bagwatch/internal/detector"
	"github.com/ayusman/bagwatch/internal/engine"
	"github.com/ayusman/bagwatch/internal/logging"
)

// Pipeline timing constants.
const (
	// IdleTimeoutMs is how long after the last motion before dropping back
	// to the idle frame rate.
	IdleTimeoutMs = 2000
	// MaxReadFailures is how many consecutive camera read errors are
	// tolerated before the session is force-stopped.
	MaxReadFailures = 30
)

// App owns the capture pipeline and drives the incident engine.
type App struct {
	cfg    config.CameraConfig
	engine *engine.Engine
	log    zerolog.Logger

	camera   capture.Camera
	motion   *capture.MotionDetector
	detector detector.Detector

	mu             sync.RWMutex
	stopCh         chan struct{}
	doneCh         chan struct{}
	lastJPEG       []byte
	lastSnapshotAt time.Time
}

// New builds the app around an engine. The camera and motion detector come
// from the config; the hand detector prefers MediaPipe and falls back to a
// mock when the sidecar is unavailable.
func New(cfg config.CameraConfig, eng *engine.Engine) *App {
	threshold := cfg.MotionThreshold
	if threshold <= 0 {
		threshold = 1.0
	}

	a := &App{
		cfg:    cfg,
		engine: eng,
		log:    logging.With("app"),
		motion: capture.NewMotionDetector(threshold),
	}
	if cfg.StreamURL != "" {
		a.camera = capture.NewStreamCamera(cfg.StreamURL)
	} else {
		a.camera = capture.NewCamera(cfg.DeviceID)
	}

	if mp, err := detector.NewMediaPipeDetector(detector.DefaultConfig()); err == nil {
		a.detector = mp
		a.log.Info().Msg("using MediaPipe hand detection")
	} else {
		a.log.Warn().Err(err).Msg("MediaPipe not available, using mock detector")
		a.detector = detector.NewMockDetector()
	}
	return a
}

// SetCamera swaps the camera implementation. For tests and recorded footage.
func (a *App) SetCamera(c capture.Camera) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.camera = c
}

// SetDetector swaps the hand detector implementation.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
}

// Engine returns the incident engine the app feeds.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// IsMonitoring reports whether the pipeline is running.
func (a *App) IsMonitoring() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// Snapshot returns the most recent JPEG-encoded frame, or nil before the
// first frame is captured.
func (a *App) Snapshot() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastJPEG == nil {
		return nil
	}
	out := make([]byte, len(a.lastJPEG))
	copy(out, a.lastJPEG)
	return out
}

func (a *App) setSnapshot(jpeg []byte) {
	a.mu.Lock()
	a.lastJPEG = jpeg
	a.mu.Unlock()
}

// StartMonitoring opens the camera, begins an engine session and starts the
// pipeline. Returns the session ID.
func (a *App) StartMonitoring() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return "", engine.ErrSessionActive
	}
	if err := a.camera.Open(); err != nil {
		return "", err
	}
	a.camera.SetFPS(a.cfg.IdleFPS)

	id, err := a.engine.StartSession()
	if err != nil {
		a.camera.Close()
		return "", err
	}

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(a.stopCh, a.doneCh)

	a.log.Info().Str("session", id).Msg("monitoring started")
	return id, nil
}

// StopMonitoring halts the pipeline, ends the engine session and releases
// the camera.
func (a *App) StopMonitoring() error {
	a.mu.Lock()
	if a.stopCh == nil {
		a.mu.Unlock()
		return engine.ErrNoSession
	}
	close(a.stopCh)
	a.stopCh = nil
	done := a.doneCh
	a.mu.Unlock()

	<-done

	err := a.engine.StopSession()

	a.mu.Lock()
	defer a.mu.Unlock()
	if cerr := a.camera.Close(); cerr != nil {
		a.log.Warn().Err(cerr).Msg("closing camera")
	}
	a.motion.Reset()
	a.log.Info().Msg("monitoring stopped")
	return err
}

// Close releases the pipeline's long-lived resources.
func (a *App) Close() {
	if a.IsMonitoring() {
		if err := a.StopMonitoring(); err != nil {
			a.log.Warn().Err(err).Msg("stopping monitoring")
		}
	}
	a.motion.Close()
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing detector")
		}
	}
}
