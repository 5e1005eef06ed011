// Package orchestrator implements the scheduled-event orchestrator (C6):
// a periodic tick that decides which (event, camera) pairs should be
// streaming right now and starts or stops frame extraction sessions
// accordingly, plus the manual override entry points the control-plane API
// calls directly.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/sentinel/internal/binding"
	"github.com/technosupport/sentinel/internal/ingest"
	"github.com/technosupport/sentinel/internal/recognition"
	"github.com/technosupport/sentinel/internal/repository"
)

const tickInterval = 60 * time.Second

// DefaultIntervalSec is the frame extraction cadence, in seconds, for
// every session the orchestrator starts.
const DefaultIntervalSec = 2

type pairKey struct {
	EventID  uuid.UUID
	CameraID uuid.UUID
}

// Orchestrator owns the mapping from (event, camera) to a running
// ingest.Session and the separate face-recognition-only sessions the
// control-plane API can start per camera.
type Orchestrator struct {
	store    repository.Store
	ingestor *ingest.Manager
	worker   *recognition.Worker

	mu       sync.Mutex
	active   map[pairKey]string   // (event,camera) -> sessionID
	faceOnly map[uuid.UUID]string // cameraID -> sessionID

	cancel context.CancelFunc
}

// New builds an Orchestrator. Start must be called to begin the periodic
// tick; manual methods work without it running.
func New(store repository.Store, ingestor *ingest.Manager, worker *recognition.Worker) *Orchestrator {
	return &Orchestrator{
		store:    store,
		ingestor: ingestor,
		worker:   worker,
		active:   make(map[pairKey]string),
		faceOnly: make(map[uuid.UUID]string),
	}
}

// Start launches the 60s tick loop.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	go func() {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		o.Tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.Tick(ctx)
			}
		}
	}()
}

// Stop ends the tick loop without touching running sessions.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
}

// Tick evaluates every scheduled event against now and reconciles running
// sessions: starts sessions for newly-active (event,camera) pairs, stops
// sessions for pairs no longer active.
func (o *Orchestrator) Tick(ctx context.Context) {
	events, err := o.store.Events().ListScheduled(ctx)
	if err != nil {
		slog.Error("orchestrator: list scheduled events failed", "error", err)
		return
	}

	now := time.Now()
	wantActive := make(map[pairKey]uuid.UUID) // pairKey -> cameraID (redundant but explicit)
	for _, ev := range events {
		if !binding.ShouldBeActive(ev, now) {
			continue
		}
		cams, err := o.store.EventCameras().FindActiveByEventID(ctx, ev.ID)
		if err != nil {
			slog.Error("orchestrator: list event cameras failed", "event", ev.ID, "error", err)
			continue
		}
		for _, ec := range cams {
			wantActive[pairKey{EventID: ev.ID, CameraID: ec.CameraID}] = ec.CameraID
		}
	}

	o.mu.Lock()
	toStart := make([]pairKey, 0)
	for k := range wantActive {
		if _, running := o.active[k]; !running {
			toStart = append(toStart, k)
		}
	}
	toStop := make([]pairKey, 0)
	for k := range o.active {
		if _, wanted := wantActive[k]; !wanted {
			toStop = append(toStop, k)
		}
	}
	o.mu.Unlock()

	for _, k := range toStart {
		if err := o.startPair(ctx, k.EventID, k.CameraID); err != nil {
			slog.Error("orchestrator: start session failed", "event", k.EventID, "camera", k.CameraID, "error", err)
		}
	}
	for _, k := range toStop {
		o.stopPair(k)
	}
}

func (o *Orchestrator) startPair(ctx context.Context, eventID, cameraID uuid.UUID) error {
	cam, err := o.store.Cameras().Get(ctx, cameraID)
	if err != nil {
		return fmt.Errorf("get camera %s: %w", cameraID, err)
	}
	if cam == nil || !cam.IsActive {
		return nil
	}

	sessionID := fmt.Sprintf("event-%s-camera-%s-%d", eventID, cameraID, time.Now().UnixMilli())
	handler := o.worker.HandlerFor(cameraID, cam.OrganizationID)
	o.ingestor.Start(ctx, sessionID, cameraID, cam.OrganizationID, cam.EffectiveURL(), DefaultIntervalSec, handler)

	o.mu.Lock()
	o.active[pairKey{EventID: eventID, CameraID: cameraID}] = sessionID
	o.mu.Unlock()
	slog.Info("orchestrator: started session", "session", sessionID, "event", eventID, "camera", cameraID)
	return nil
}

func (o *Orchestrator) stopPair(k pairKey) {
	o.mu.Lock()
	sessionID, ok := o.active[k]
	delete(o.active, k)
	o.mu.Unlock()
	if !ok {
		return
	}
	o.ingestor.Stop(sessionID)
	slog.Info("orchestrator: stopped session", "session", sessionID, "event", k.EventID, "camera", k.CameraID)
}

// ManuallyStartEvent starts sessions for every active EventCamera of the
// given event, bypassing the schedule check. Idempotent: pairs already
// running are left untouched.
func (o *Orchestrator) ManuallyStartEvent(ctx context.Context, eventID uuid.UUID) error {
	ev, err := o.store.Events().Get(ctx, eventID)
	if err != nil {
		return fmt.Errorf("get event %s: %w", eventID, err)
	}
	if ev == nil {
		return fmt.Errorf("event %s not found", eventID)
	}
	cams, err := o.store.EventCameras().FindActiveByEventID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("list event cameras for %s: %w", eventID, err)
	}
	for _, ec := range cams {
		k := pairKey{EventID: eventID, CameraID: ec.CameraID}
		o.mu.Lock()
		_, running := o.active[k]
		o.mu.Unlock()
		if running {
			continue
		}
		if err := o.startPair(ctx, eventID, ec.CameraID); err != nil {
			slog.Error("orchestrator: manual start failed", "event", eventID, "camera", ec.CameraID, "error", err)
		}
	}
	return nil
}

// ManuallyStopEvent stops every running session for the given event.
// Idempotent: an event with no running sessions is a no-op.
func (o *Orchestrator) ManuallyStopEvent(eventID uuid.UUID) {
	o.mu.Lock()
	var keys []pairKey
	for k := range o.active {
		if k.EventID == eventID {
			keys = append(keys, k)
		}
	}
	o.mu.Unlock()
	for _, k := range keys {
		o.stopPair(k)
	}
}

// HandleEventStatusChange reacts to an operator flipping an event's active
// flag: starts or stops its sessions immediately rather than waiting for
// the next tick.
func (o *Orchestrator) HandleEventStatusChange(ctx context.Context, eventID uuid.UUID, active bool) error {
	if active {
		return o.ManuallyStartEvent(ctx, eventID)
	}
	o.ManuallyStopEvent(eventID)
	return nil
}

// StartFaceRecognition starts a face-recognition-only session for a
// camera, independent of any scheduled event, using the
// "face-rec-<cameraId>-<epochMs>" naming convention. Idempotent per
// camera.
func (o *Orchestrator) StartFaceRecognition(ctx context.Context, cameraID uuid.UUID) (string, error) {
	o.mu.Lock()
	if sessionID, ok := o.faceOnly[cameraID]; ok {
		o.mu.Unlock()
		return sessionID, nil
	}
	o.mu.Unlock()

	cam, err := o.store.Cameras().Get(ctx, cameraID)
	if err != nil {
		return "", fmt.Errorf("get camera %s: %w", cameraID, err)
	}
	if cam == nil {
		return "", fmt.Errorf("camera %s not found", cameraID)
	}

	sessionID := fmt.Sprintf("face-rec-%s-%d", cameraID, time.Now().UnixMilli())
	handler := o.worker.HandlerFor(cameraID, cam.OrganizationID)
	o.ingestor.Start(ctx, sessionID, cameraID, cam.OrganizationID, cam.EffectiveURL(), DefaultIntervalSec, handler)

	o.mu.Lock()
	o.faceOnly[cameraID] = sessionID
	o.mu.Unlock()
	return sessionID, nil
}

// StopFaceRecognition stops the face-recognition-only session for a
// camera, if any. Idempotent.
func (o *Orchestrator) StopFaceRecognition(cameraID uuid.UUID) {
	o.mu.Lock()
	sessionID, ok := o.faceOnly[cameraID]
	delete(o.faceOnly, cameraID)
	o.mu.Unlock()
	if ok {
		o.ingestor.Stop(sessionID)
	}
}

// FaceRecognitionStatus reports whether a camera's face-recognition-only
// session is active.
func (o *Orchestrator) FaceRecognitionStatus(cameraID uuid.UUID) (sessionID string, active bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	sessionID, ok := o.faceOnly[cameraID]
	if !ok {
		return "", false
	}
	sess, found := o.ingestor.Get(sessionID)
	if !found {
		return sessionID, false
	}
	return sessionID, sess.IsActive()
}
