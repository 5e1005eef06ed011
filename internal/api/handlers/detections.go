package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/technosupport/sentinel/internal/annindex"
	"github.com/technosupport/sentinel/internal/repository"
	"github.com/technosupport/sentinel/internal/storage"
)

// DetectionHandler exposes read access to persisted Detections: the
// per-face observations the recognition worker writes, never mutated by
// it again except through an operator's PromoteDetection call.
type DetectionHandler struct {
	store   repository.Store
	minio   *storage.MinIOStore
	index   *annindex.Index
	EmbedFn EmbedFn
}

func NewDetectionHandler(store repository.Store, minio *storage.MinIOStore, index *annindex.Index) *DetectionHandler {
	return &DetectionHandler{store: store, minio: minio, index: index}
}

func (h *DetectionHandler) Get(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	det, err := h.store.Detections().Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if det == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "detection not found"})
		return
	}
	c.JSON(http.StatusOK, det)
}

func (h *DetectionHandler) ListByPersonFace(c *gin.Context) {
	faceID, err := parseUUIDParam(c, "faceId")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	detections, err := h.store.Detections().ListByPersonFace(c.Request.Context(), faceID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"detections": detections, "total": len(detections)})
}

// Image proxies the stored face-crop or full-frame JPEG for a detection
// from MinIO; Detection.ImageURL already carries the object key.
func (h *DetectionHandler) Image(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	det, err := h.store.Detections().Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if det == nil || det.ImageURL == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no image for this detection"})
		return
	}
	data, err := h.minio.GetObject(c.Request.Context(), det.ImageURL)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

// Search runs ad-hoc ANN similarity search against an uploaded photo's
// embedding, independent of any particular camera or event.
type searchRequest struct {
	K int `form:"k"`
}

func (h *DetectionHandler) Search(c *gin.Context) {
	embedFn := h.EmbedFn
	if embedFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision capability not initialized"})
		return
	}

	var req searchRequest
	_ = c.ShouldBindQuery(&req)
	k := req.K
	if k <= 0 {
		k = 5
	}

	file, _, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file required"})
		return
	}
	defer file.Close()

	imageData, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read image failed"})
		return
	}

	embedding, _, err := embedFn(imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	matches := h.index.Search(c.Request.Context(), embedding, k)
	c.JSON(http.StatusOK, gin.H{"matches": matches, "total": len(matches)})
}
