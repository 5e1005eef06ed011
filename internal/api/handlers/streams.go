package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/technosupport/sentinel/internal/ingest"
	"github.com/technosupport/sentinel/internal/orchestrator"
	"github.com/technosupport/sentinel/internal/repository"
)

// StreamHandler exposes the ephemeral ingest session surface: there is no
// standalone Stream entity, sessions are keyed by camera/event and live
// only as long as ingest.Manager holds them.
type StreamHandler struct {
	store    repository.Store
	ingestor *ingest.Manager
	orch     *orchestrator.Orchestrator
}

func NewStreamHandler(store repository.Store, ingestor *ingest.Manager, orch *orchestrator.Orchestrator) *StreamHandler {
	return &StreamHandler{store: store, ingestor: ingestor, orch: orch}
}

// StartForCamera starts (or returns the already running)
// face-recognition-only session for a camera. It does not check the
// camera's event bindings; the session's detections are persisted only
// while the binding resolver finds an active event for the camera.
// Event-bound sessions are started by the orchestrator's own tick, never
// through this endpoint.
func (h *StreamHandler) StartForCamera(c *gin.Context) {
	cameraID, err := parseUUIDParam(c, "cameraId")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	camera, err := h.store.Cameras().Get(c.Request.Context(), cameraID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if camera == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}

	sessionID, err := h.orch.StartFaceRecognition(c.Request.Context(), cameraID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "status": "starting"})
}

func (h *StreamHandler) StopSession(c *gin.Context) {
	sessionID := c.Param("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId required"})
		return
	}
	h.ingestor.Stop(sessionID)
	c.JSON(http.StatusOK, gin.H{"status": "stopped", "sessionId": sessionID})
}

func (h *StreamHandler) SessionStatus(c *gin.Context) {
	sessionID := c.Param("sessionId")
	sess, ok := h.ingestor.Get(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sess.Stats())
}

func (h *StreamHandler) ListActive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.ingestor.ListActive()})
}

// CameraFaceRecognitionStatus reports whether a standalone (non event-bound)
// face-recognition session is currently running for a camera.
func (h *StreamHandler) CameraFaceRecognitionStatus(c *gin.Context) {
	cameraID, err := parseUUIDParam(c, "cameraId")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sessionID, active := h.orch.FaceRecognitionStatus(cameraID)
	c.JSON(http.StatusOK, gin.H{"sessionId": sessionID, "active": active})
}

func (h *StreamHandler) CameraFaceRecognitionStop(c *gin.Context) {
	cameraID, err := parseUUIDParam(c, "cameraId")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.orch.StopFaceRecognition(cameraID)
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// Cleanup stops every active ingest session unconditionally; used by
// operators recovering from a stuck orchestrator tick.
func (h *StreamHandler) Cleanup(c *gin.Context) {
	h.ingestor.StopAll()
	c.JSON(http.StatusOK, gin.H{"status": "cleaned"})
}
