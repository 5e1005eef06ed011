package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/technosupport/sentinel/internal/annindex"
	"github.com/technosupport/sentinel/internal/binding"
	"github.com/technosupport/sentinel/internal/ingest"
	"github.com/technosupport/sentinel/internal/models"
	"github.com/technosupport/sentinel/internal/observability"
	"github.com/technosupport/sentinel/internal/queue"
	"github.com/technosupport/sentinel/internal/recogerr"
	"github.com/technosupport/sentinel/internal/repository"
	"github.com/technosupport/sentinel/internal/storage"
	"github.com/technosupport/sentinel/internal/vision"
)

// imageSaveThrottle bounds full-frame detection-image uploads to at most
// one per session per interval; face crops are always saved regardless.
const imageSaveThrottle = 1000 * time.Millisecond

// assumedFrameSize is the overlay-exclusion reference canvas when a frame's
// actual decoded dimensions are unavailable.
var assumedFrameSize = frameSize{W: 1920, H: 1080}

// Detector is the C2 capability surface the worker depends on: detect with
// an enforced timeout, dispose-and-reinit is the implementation's concern.
type Detector interface {
	Detect(ctx context.Context, imageBytes []byte) (vision.Result, error)
	Crop(imageBytes []byte, box [4]float32) ([]byte, error)
}

// Worker runs the C3 per-frame pipeline: detect, validate, post-filter,
// resolve the active event, recognize, persist.
type Worker struct {
	detector Detector
	index    *annindex.Index
	resolver *binding.Resolver
	store    repository.Store
	images   *storage.MinIOStore
	producer *queue.Producer

	mu             sync.Mutex
	lastImageSaved map[string]time.Time
}

// NewWorker wires the recognition pipeline's collaborators.
func NewWorker(detector Detector, index *annindex.Index, resolver *binding.Resolver, store repository.Store, images *storage.MinIOStore, producer *queue.Producer) *Worker {
	return &Worker{
		detector:       detector,
		index:          index,
		resolver:       resolver,
		store:          store,
		images:         images,
		producer:       producer,
		lastImageSaved: make(map[string]time.Time),
	}
}

// HandlerFor binds a concrete (cameraID, orgID) into an ingest.FrameHandler
// a Session can call directly.
func (w *Worker) HandlerFor(cameraID, orgID uuid.UUID) ingest.FrameHandler {
	return func(ctx context.Context, sessionID string, frame ingest.Frame) error {
		return w.Process(ctx, sessionID, cameraID, orgID, frame)
	}
}

// Process runs the full per-frame algorithm. Failures past detection never
// stop the stream: they are logged and the frame is dropped.
func (w *Worker) Process(ctx context.Context, sessionID string, cameraID, orgID uuid.UUID, frame ingest.Frame) error {
	start := time.Now()

	result, err := w.detector.Detect(ctx, frame.Data)
	if err != nil {
		slog.Warn("detect failed, dropping frame", "session", sessionID, "error", err)
		observability.FramesDropped.WithLabelValues("detect_error").Inc()
		return nil
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	faces := make([]Face, 0, len(result.Faces))
	for _, f := range result.Faces {
		faces = append(faces, Face{Box: f.Box, Confidence: f.Confidence, Embedding: f.Embedding})
	}

	validated := make([]Face, 0, len(faces))
	for _, f := range faces {
		if validate(f) {
			validated = append(validated, f)
		}
	}
	survivors := postFilter(validated, assumedFrameSize)
	if len(survivors) == 0 {
		return nil
	}
	observability.FacesDetected.WithLabelValues(cameraID.String()).Add(float64(len(survivors)))

	eventID, err := w.resolveEvent(ctx, sessionID, cameraID)
	if err != nil {
		if !errors.Is(err, recogerr.ErrNoActiveEvent) {
			slog.Warn("resolve active event failed, dropping frame", "session", sessionID, "error", err)
		}
		// No active event and no caller-supplied event id: faces were
		// detected but nothing is persisted, per the binding contract.
		return nil
	}

	now := time.Now()
	fullImageURL := w.saveFullFrameIfDue(ctx, sessionID, frame.Data, now)

	for i, face := range survivors {
		w.persistFace(ctx, face, i, cameraID, orgID, eventID, frame.Data, fullImageURL, now)
	}
	return nil
}

func (w *Worker) resolveEvent(ctx context.Context, sessionID string, cameraID uuid.UUID) (uuid.UUID, error) {
	if eventID, ok := ingest.EventIDFromSessionID(sessionID); ok {
		return eventID, nil
	}
	eventID, ok, err := w.resolver.ActiveEventForCamera(ctx, cameraID)
	if err != nil {
		return uuid.UUID{}, err
	}
	if !ok {
		return uuid.UUID{}, recogerr.ErrNoActiveEvent
	}
	return eventID, nil
}

func (w *Worker) saveFullFrameIfDue(ctx context.Context, sessionID string, data []byte, now time.Time) string {
	w.mu.Lock()
	last, seen := w.lastImageSaved[sessionID]
	due := !seen || now.Sub(last) >= imageSaveThrottle
	if due {
		w.lastImageSaved[sessionID] = now
	}
	w.mu.Unlock()

	if !due {
		return ""
	}
	key := storage.DetectionImageKey(now.UnixMilli())
	if err := w.images.PutObject(ctx, key, data, "image/jpeg"); err != nil {
		slog.Warn("save detection image failed", "session", sessionID, "error", err)
		return ""
	}
	return key
}

func (w *Worker) persistFace(ctx context.Context, face Face, faceIndex int, cameraID, orgID, eventID uuid.UUID, frameData []byte, fullImageURL string, now time.Time) {
	crop, err := w.detector.Crop(frameData, face.Box)
	if err != nil {
		slog.Warn("crop face failed", "error", err)
		return
	}
	faceKey := storage.FaceImageKey(now.UnixMilli(), faceIndex)
	if err := w.images.PutObject(ctx, faceKey, crop, "image/jpeg"); err != nil {
		slog.Warn("save face crop failed", "error", err)
		return
	}

	matches := w.index.Search(ctx, face.Embedding, 1)

	det := &models.Detection{
		OrganizationID: orgID,
		EventID:        eventID,
		CameraID:       cameraID,
		DetectedAt:     now,
		Confidence:     face.Confidence,
		ImageURL:       faceKey,
	}

	meta := models.DetectionMetadata{
		BoundingBox: models.BoundingBox{
			X: face.Box[0], Y: face.Box[1],
			Width: face.width(), Height: face.height(),
		},
		EncodingLength:          len(face.Embedding),
		FaceDetectionConfidence: face.Confidence,
		ProcessingTimestamp:     now,
		FullDetectionImageURL:   fullImageURL,
		FaceIndex:               faceIndex,
	}

	if len(matches) > 0 && matches[0].IsMatch {
		m := matches[0]
		personFaceID := m.PersonFaceID
		det.PersonFaceID = &personFaceID
		if m.Similarity >= 1 {
			det.Status = models.DetectionConfirmed
			meta.AutoConfirmed = true
		} else {
			det.Status = models.DetectionRecognized
		}
		meta.IsKnown = true
		meta.RecognitionConfidence = m.Similarity
		name := m.PersonName
		meta.PersonName = &name
		observability.FacesRecognized.WithLabelValues(cameraID.String()).Inc()
	} else {
		det.Status = models.DetectionDetected
		det.Embedding = face.Embedding
		meta.IsKnown = false
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		slog.Warn("marshal detection metadata failed", "error", err)
		return
	}
	det.Metadata = string(metaJSON)

	if err := w.store.Detections().Create(ctx, det); err != nil {
		slog.Warn("persist detection failed", "error", fmt.Errorf("%w: %v", recogerr.ErrPersist, err))
		observability.FramesDropped.WithLabelValues("persist_error").Inc()
		return
	}

	if w.producer != nil {
		if err := w.producer.PublishDetection(cameraID.String(), det); err != nil {
			slog.Debug("publish live detection notification failed", "error", err)
		}
	}
}
