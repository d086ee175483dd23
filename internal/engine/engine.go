// Package engine groups consecutive hand detections into incidents, batches
// incident frames for periodic threat classification, reconciles the async
// verdicts and keeps per-session counters.
//
// All session and incident state is owned by a single goroutine. Detection
// events, classifier verdicts and control calls are funnelled through one
// command channel, so no state is ever touched concurrently and events are
// applied strictly in arrival order.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ayusman/bagwatch/internal/classify"
	"github.com/ayusman/bagwatch/internal/logging"
	"github.com/ayusman/bagwatch/internal/notify"
	"github.com/ayusman/bagwatch/internal/store"
)

// Config holds the engine's tuning knobs.
type Config struct {
	// EscalationThreshold is the incident frame cadence at which batches are
	// dispatched to the classifier (every N frames: N, 2N, 3N...).
	EscalationThreshold int
	// ConfidenceCutoff is the classifier confidence, in [0,100], a threat
	// verdict must exceed to confirm the incident as a threat.
	ConfidenceCutoff float64
	// ClassifierTimeout bounds each classification call. A batch that runs
	// past it is marked failed and its outstanding slot is released.
	ClassifierTimeout time.Duration
	// ImageEvery stores the frame image for every Nth incident frame.
	// Zero disables image retention.
	ImageEvery int
}

// DefaultConfig mirrors the daemon's stock settings.
func DefaultConfig() Config {
	return Config{
		EscalationThreshold: 10,
		ConfidenceCutoff:    60,
		ClassifierTimeout:   30 * time.Second,
		ImageEvery:          4,
	}
}

const cmdQueueSize = 256

type command interface{}

type detectCmd struct {
	ev DetectionEvent
}

type verdictCmd struct {
	incidentID string
	batchSeq   int
	result     *classify.Result
	err        error
}

type startSessionCmd struct {
	reply chan startSessionReply
}

type startSessionReply struct {
	id  string
	err error
}

type stopSessionCmd struct {
	reply chan error
}

type statusCmd struct {
	reply chan statusReply
}

type statusReply struct {
	status Status
	err    error
}

// Status is a point-in-time snapshot of the engine's session state. It is
// produced by the state loop itself, so it reflects every event observed
// before the Status call returned.
type Status struct {
	SessionID       string    `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	FrameCount      int       `json:"frame_count"`
	IncidentCount   int       `json:"incident_count"`
	EscalationCount int       `json:"escalation_count"`

	IncidentActive    bool    `json:"incident_active"`
	IncidentID        string  `json:"incident_id,omitempty"`
	IncidentFrames    int     `json:"incident_frames,omitempty"`
	BatchesSent       int     `json:"batches_sent,omitempty"`
	OutstandingBatch  int     `json:"outstanding_batch,omitempty"`
	MaxHandCount      int     `json:"max_hand_count,omitempty"`
	MaxConfidence     float64 `json:"max_confidence,omitempty"`
	ThreatConfirmed   bool    `json:"threat_confirmed,omitempty"`
	ThreatConfidence  float64 `json:"threat_confidence,omitempty"`
	ThreatExplanation string  `json:"threat_explanation,omitempty"`
}

// incidentState is the loop-private working state of the active incident.
// The persisted record is a best-effort mirror of rec.
type incidentState struct {
	rec store.Incident
	// outstanding is the batch_seq of the in-flight classification, zero
	// when none. At most one batch per incident is ever outstanding.
	outstanding int
	// ring holds the most recent EscalationThreshold frames, oldest first.
	ring []classify.Frame
}

// Engine is the incident tracking and escalation state machine.
type Engine struct {
	cfg        Config
	store      *store.Store
	classifier classify.Classifier
	notifier   notify.Notifier
	log        zerolog.Logger

	cmds     chan command
	done     chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu        sync.Mutex
	listeners []Listener
	started   bool

	// Loop-owned state. Never touched outside run().
	session  *store.Session
	incident *incidentState
}

// New builds an engine. Call Start before feeding it events.
func New(cfg Config, st *store.Store, cls classify.Classifier, ntf notify.Notifier) *Engine {
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = DefaultConfig().EscalationThreshold
	}
	if cfg.ClassifierTimeout <= 0 {
		cfg.ClassifierTimeout = DefaultConfig().ClassifierTimeout
	}
	return &Engine{
		cfg:        cfg,
		store:      st,
		classifier: cls,
		notifier:   ntf,
		log:        logging.With("engine"),
		cmds:       make(chan command, cmdQueueSize),
		done:       make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
}

// AddListener registers an event listener. Must be called before Start.
func (e *Engine) AddListener(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Start launches the state loop.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return
	}
	e.started = true
	go e.run()
}

// Stop ends any active session, shuts down the state loop and waits for
// in-flight classifier and alert goroutines to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	e.stopOnce.Do(func() {
		// Best effort; fails harmlessly when no session is running.
		_ = e.StopSession()

		close(e.done)
		<-e.loopDone
		e.wg.Wait()
	})
}

// StartSession begins a monitoring session and returns its ID.
func (e *Engine) StartSession() (string, error) {
	reply := make(chan startSessionReply, 1)
	if err := e.send(startSessionCmd{reply: reply}); err != nil {
		return "", err
	}
	r := <-reply
	return r.id, r.err
}

// StopSession ends the active session, closing any open incident first.
func (e *Engine) StopSession() error {
	reply := make(chan error, 1)
	if err := e.send(stopSessionCmd{reply: reply}); err != nil {
		return err
	}
	return <-reply
}

// Observe feeds one detection event into the engine. Events are applied in
// the order Observe is called. Events arriving outside a session are
// discarded.
func (e *Engine) Observe(ev DetectionEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return e.send(detectCmd{ev: ev})
}

// Status reports the active session's counters. The snapshot is taken by the
// state loop, after every previously observed event has been applied.
func (e *Engine) Status() (Status, error) {
	reply := make(chan statusReply, 1)
	if err := e.send(statusCmd{reply: reply}); err != nil {
		return Status{}, err
	}
	r := <-reply
	return r.status, r.err
}

func (e *Engine) send(cmd command) error {
	// Checked first: a select with a ready buffered send and a closed done
	// channel picks between them at random.
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.cmds <- cmd:
		return nil
	case <-e.done:
		return ErrStopped
	}
}

func (e *Engine) run() {
	defer close(e.loopDone)
	for {
		select {
		case <-e.done:
			return
		case cmd := <-e.cmds:
			e.dispatch(cmd)
		}
	}
}

func (e *Engine) dispatch(cmd command) {
	switch c := cmd.(type) {
	case detectCmd:
		e.handleDetection(c.ev)
	case verdictCmd:
		e.handleVerdict(c)
	case startSessionCmd:
		id, err := e.startSession()
		c.reply <- startSessionReply{id: id, err: err}
	case stopSessionCmd:
		c.reply <- e.stopSession()
	case statusCmd:
		c.reply <- e.statusSnapshot()
	}
}

func (e *Engine) statusSnapshot() statusReply {
	if e.session == nil {
		return statusReply{err: ErrNoSession}
	}
	s := Status{
		SessionID:       e.session.ID,
		StartedAt:       e.session.StartedAt,
		FrameCount:      e.session.FrameCount,
		IncidentCount:   e.session.IncidentCount,
		EscalationCount: e.session.EscalationCount,
	}
	if inc := e.incident; inc != nil {
		s.IncidentActive = true
		s.IncidentID = inc.rec.ID
		s.IncidentFrames = inc.rec.FrameCount
		s.BatchesSent = inc.rec.BatchesSent
		s.OutstandingBatch = inc.outstanding
		s.MaxHandCount = inc.rec.MaxHandCount
		s.MaxConfidence = inc.rec.MaxConfidence
		s.ThreatConfirmed = inc.rec.ThreatConfirmed
		if inc.rec.ThreatConfidence != nil {
			s.ThreatConfidence = *inc.rec.ThreatConfidence
		}
		s.ThreatExplanation = inc.rec.ThreatExplanation
	}
	return statusReply{status: s}
}

// emit delivers an event to every listener, on the state loop.
func (e *Engine) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.SessionID == "" && e.session != nil {
		ev.SessionID = e.session.ID
	}
	e.mu.Lock()
	ls := e.listeners
	e.mu.Unlock()
	for _, l := range ls {
		l(ev)
	}
}

// classifyAsync runs one classifier call off the state loop and feeds the
// verdict back through the command queue.
func (e *Engine) classifyAsync(incidentID string, batchSeq int, frames []classify.Frame) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ClassifierTimeout)
		defer cancel()
		res, err := e.classifier.Classify(ctx, frames)
		select {
		case e.cmds <- verdictCmd{incidentID: incidentID, batchSeq: batchSeq, result: res, err: err}:
		case <-e.done:
		}
	}()
}
