package ingest

import (
	"context"
	"log/slog"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/sentinel/internal/observability"
)

// State is a frame extraction session's lifecycle stage.
type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateStopping   State = "stopping"
	StateFailing    State = "failing"
	StateTerminated State = "terminated"
)

const (
	maxRetainedFrames  = 5
	maxRetainedBytes   = 50 * 1024 * 1024
	sessionThrottle    = 1000 * time.Millisecond
	gracefulStopWindow = 5 * time.Second
)

// sessionIDPattern matches "event-<eventId>-camera-<cameraId>-<epochMs>",
// where eventId/cameraId are UUIDs in this engine's data model (the
// original numeric-id regex is adapted accordingly, the grouping and
// intent unchanged: capture the authoritative event id embedded in the
// session id so C3 can bypass binding resolution).
var sessionIDPattern = regexp.MustCompile(`^event-([0-9a-fA-F-]{36})-camera-([0-9a-fA-F-]{36})-(\d+)$`)

// EventIDFromSessionID extracts the authoritative event id from a session
// id, if the id follows the orchestrator's naming convention.
func EventIDFromSessionID(sessionID string) (uuid.UUID, bool) {
	m := sessionIDPattern.FindStringSubmatch(sessionID)
	if m == nil {
		return uuid.UUID{}, false
	}
	id, err := uuid.Parse(m[1])
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// FrameHandler processes one extracted JPEG frame. Returning an error only
// logs; it never stops the session.
type FrameHandler func(ctx context.Context, sessionID string, frame Frame) error

// Frame is one ring-buffered JPEG, identified by a monotonic sequence
// number assigned at insertion.
type Frame struct {
	Seq  uint64
	Data []byte
}

// Stats is a point-in-time snapshot of a session, safe to read
// concurrently with the session's own goroutines.
type Stats struct {
	SessionID     string
	CameraID      uuid.UUID
	State         State
	LastFrameTime time.Time
	RetainedBytes int
	RestartCount  int
}

// Session owns one RTSP decoder subprocess and the bounded frame ring it
// feeds. Admission control, throttling, and the ring live here; the
// decoder subprocess itself is FFmpegExtractor.
type Session struct {
	ID          string
	CameraID    uuid.UUID
	OrgID       uuid.UUID
	RTSPURL     string
	IntervalSec int
	EventID     uuid.UUID
	HasEventID  bool

	admit   *admission
	handler FrameHandler

	mu            sync.Mutex
	state         State
	extractor     *FFmpegExtractor
	cancel        context.CancelFunc
	ring          []Frame
	nextSeq       uint64
	lastFrameTime time.Time
	lastProcessed time.Time
	restartCount  int
}

// NewSession constructs a session in the Idle state. Start() must be
// called to begin extraction.
func NewSession(id string, cameraID, orgID uuid.UUID, rtspURL string, intervalSec int, admit *admission, handler FrameHandler) *Session {
	eventID, hasEventID := EventIDFromSessionID(id)
	return &Session{
		ID:          id,
		CameraID:    cameraID,
		OrgID:       orgID,
		RTSPURL:     rtspURL,
		IntervalSec: intervalSec,
		EventID:     eventID,
		HasEventID:  hasEventID,
		admit:       admit,
		handler:     handler,
		state:       StateIdle,
	}
}

// Start launches the decoder subprocess in the background. Idempotent: a
// session already Starting or Running returns immediately.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state == StateStarting || s.state == StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStarting
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.extractor = &FFmpegExtractor{}
	s.mu.Unlock()

	go s.run(runCtx)
}

func (s *Session) run(ctx context.Context) {
	s.mu.Lock()
	extractor := s.extractor
	s.state = StateRunning
	s.mu.Unlock()

	const maxExtractionWidth = 1280
	err := extractor.StartExtraction(ctx, s.RTSPURL, s.IntervalSec, maxExtractionWidth, func(data []byte) error {
		s.onFrame(ctx, data)
		return nil
	})

	s.mu.Lock()
	if ctx.Err() != nil {
		s.state = StateTerminated
	} else if err != nil {
		slog.Warn("decoder exited", "session", s.ID, "error", err)
		s.state = StateFailing
	} else {
		s.state = StateTerminated
	}
	if s.state == StateFailing {
		s.state = StateTerminated
	}
	s.mu.Unlock()
}

// onFrame runs session admission (1000ms throttle) before ring-buffering
// and dispatching to the handler; it never blocks the decoder's stdout
// reader for longer than the ring insert itself.
func (s *Session) onFrame(ctx context.Context, data []byte) {
	s.mu.Lock()
	now := time.Now()
	if !s.lastProcessed.IsZero() && now.Sub(s.lastProcessed) < sessionThrottle {
		s.mu.Unlock()
		return
	}
	s.lastProcessed = now
	s.lastFrameTime = now

	seq := s.nextSeq
	s.nextSeq++
	s.ring = append(s.ring, Frame{Seq: seq, Data: data})
	if len(s.ring) > maxRetainedFrames {
		s.ring = s.ring[len(s.ring)-maxRetainedFrames:]
	}
	frame := Frame{Seq: seq, Data: data}
	s.mu.Unlock()

	if heapOverCeiling() {
		slog.Warn("heap ceiling exceeded, dropping frame", "session", s.ID)
		observability.FramesDropped.WithLabelValues("heap_ceiling").Inc()
		return
	}
	if !s.admit.tryAcquire() {
		slog.Warn("global admission limit reached, dropping frame", "session", s.ID)
		observability.FramesDropped.WithLabelValues("global_admission").Inc()
		return
	}
	observability.ActiveFrameProcesses.Inc()
	go func() {
		defer func() {
			s.admit.release()
			observability.ActiveFrameProcesses.Dec()
		}()
		if err := s.handler(ctx, s.ID, frame); err != nil {
			slog.Warn("frame handler error", "session", s.ID, "error", err)
		}
		observability.FramesProcessed.WithLabelValues(s.ID).Inc()
	}()
}

// Stop cancels the extraction context and kills the decoder subprocess
// at once; no graceful signal is sent first. It waits at most
// gracefulStopWindow for the kill call to return before marking the
// session Terminated. Idempotent: stopping an Idle or already-Terminated
// session is a no-op success.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	cancel := s.cancel
	extractor := s.extractor
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		if extractor != nil {
			extractor.Stop()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(gracefulStopWindow):
		slog.Warn("graceful stop timed out, force-killed", "session", s.ID)
	}

	s.mu.Lock()
	s.state = StateTerminated
	s.mu.Unlock()
}

// IsActive reports whether the session is Starting or Running.
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateStarting || s.state == StateRunning
}

// Stats returns a consistent snapshot for status endpoints and the health
// monitor.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	bytes := 0
	for _, f := range s.ring {
		bytes += len(f.Data)
	}
	return Stats{
		SessionID:     s.ID,
		CameraID:      s.CameraID,
		State:         s.state,
		LastFrameTime: s.lastFrameTime,
		RetainedBytes: bytes,
		RestartCount:  s.restartCount,
	}
}

// trimToNewest keeps only the n newest retained frames, used by the
// health monitor when retained bytes exceed the per-session cap.
func (s *Session) trimToNewest(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ring) > n {
		s.ring = s.ring[len(s.ring)-n:]
	}
}

func (s *Session) isDead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateTerminated || s.state == StateFailing
}

func (s *Session) incRestart() {
	s.mu.Lock()
	s.restartCount++
	s.mu.Unlock()
}

// admission implements the global frame-process ceiling (50 concurrent)
// that every session of one Manager shares.
type admission struct {
	sem chan struct{}
}

func newAdmission(limit int) *admission {
	return &admission{sem: make(chan struct{}, limit)}
}

func (a *admission) tryAcquire() bool {
	select {
	case a.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (a *admission) release() {
	select {
	case <-a.sem:
	default:
	}
}

func (a *admission) inUse() int {
	return len(a.sem)
}

const globalHeapCeilingBytes = 1 << 30 // 1GB

func heapOverCeiling() bool {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc > globalHeapCeilingBytes
}
