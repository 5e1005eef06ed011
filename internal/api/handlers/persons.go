package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/technosupport/sentinel/internal/annindex"
	"github.com/technosupport/sentinel/internal/models"
	"github.com/technosupport/sentinel/internal/repository"
	"github.com/technosupport/sentinel/internal/storage"
)

// EmbedFn extracts a face embedding and detector confidence from an
// enrollment image; wired to vision.Capability.Detect by the caller,
// expecting exactly one face in the image.
type EmbedFn func(imageData []byte) (embedding []float32, confidence float32, err error)

// PersonHandler exposes Person/PersonFace enrollment and promotion: the
// control-plane surface for populating the ANN index. The worker pipeline
// itself never creates Person or PersonFace rows.
type PersonHandler struct {
	store   repository.Store
	minio   *storage.MinIOStore
	index   *annindex.Index
	EmbedFn EmbedFn
}

func NewPersonHandler(store repository.Store, minio *storage.MinIOStore, index *annindex.Index) *PersonHandler {
	return &PersonHandler{store: store, minio: minio, index: index}
}

type createPersonRequest struct {
	OrganizationID uuid.UUID `json:"organizationId" binding:"required"`
	Name           string    `json:"name" binding:"required"`
	DocumentNumber *string   `json:"documentNumber"`
}

func (h *PersonHandler) Create(c *gin.Context) {
	var req createPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	org, err := h.store.Organizations().Get(c.Request.Context(), req.OrganizationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return
	}

	person := &models.Person{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		DocumentNumber: req.DocumentNumber,
		Status:         models.PersonActive,
	}
	if err := h.store.Persons().Create(c.Request.Context(), person); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, person)
}

func (h *PersonHandler) List(c *gin.Context) {
	orgID, err := uuid.Parse(c.Query("organizationId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organizationId query param required"})
		return
	}
	persons, err := h.store.Persons().ListByOrganization(c.Request.Context(), orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"persons": persons, "total": len(persons)})
}

func (h *PersonHandler) Get(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	person, err := h.store.Persons().Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}
	c.JSON(http.StatusOK, person)
}

// AddFace accepts a multipart image upload, extracts its embedding, stores
// the PersonFace, and adds it to the live ANN index so it is searchable
// without waiting for a rebuild.
func (h *PersonHandler) AddFace(c *gin.Context) {
	personID, err := parseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	person, err := h.store.Persons().Get(c.Request.Context(), personID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	file, header, err := c.Request.FormFile("image")
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

	if h.EmbedFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision capability not initialized"})
		return
	}
	embedding, confidence, err := h.EmbedFn(imageData)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "failed to extract face: " + err.Error()})
		return
	}

	sourceKey := "enrollment/" + personID.String() + "/" + uuid.New().String() + "_" + header.Filename
	if err := h.minio.PutObject(c.Request.Context(), sourceKey, imageData, header.Header.Get("Content-Type")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store image failed"})
		return
	}

	face := &models.PersonFace{
		OrganizationID: person.OrganizationID,
		PersonID:       personID,
		Embedding:      embedding,
		Reliability:    confidence,
		Status:         models.FaceActive,
		SourceImageURL: sourceKey,
	}
	if err := h.store.PersonFaces().Create(c.Request.Context(), face); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.index.Add(c.Request.Context(), annindex.EnrollableFace{
		PersonFaceID: face.ID,
		PersonID:     personID,
		PersonName:   person.Name,
		Embedding:    embedding,
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "index add failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, face)
}

func (h *PersonHandler) ListFaces(c *gin.Context) {
	personID, err := parseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	faces, err := h.store.PersonFaces().ListByPerson(c.Request.Context(), personID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"faces": faces, "total": len(faces)})
}

// DeleteFace deactivates a PersonFace and removes it from the index's
// shadow map; the underlying graph node is never evicted.
func (h *PersonHandler) DeleteFace(c *gin.Context) {
	faceID, err := parseUUIDParam(c, "faceId")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.PersonFaces().UpdateStatus(c.Request.Context(), faceID, models.FaceInactive); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.index.Remove(faceID)
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type promoteDetectionRequest struct {
	PersonID uuid.UUID `json:"personId" binding:"required"`
}

// PromoteDetection turns an unresolved Detection (personFaceId=null, raw
// embedding attached) into a new PersonFace owned by an existing Person,
// the operator-driven path the worker itself never takes.
func (h *PersonHandler) PromoteDetection(c *gin.Context) {
	detectionID, err := parseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req promoteDetectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	det, err := h.store.Detections().Get(c.Request.Context(), detectionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if det == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "detection not found"})
		return
	}
	if len(det.Embedding) == 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "detection has no raw embedding to promote"})
		return
	}

	person, err := h.store.Persons().Get(c.Request.Context(), req.PersonID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if person == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return
	}

	face := &models.PersonFace{
		OrganizationID: det.OrganizationID,
		PersonID:       req.PersonID,
		Embedding:      det.Embedding,
		Reliability:    det.Confidence,
		Status:         models.FaceActive,
		SourceImageURL: det.ImageURL,
	}
	if err := h.store.PersonFaces().Create(c.Request.Context(), face); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.index.Add(c.Request.Context(), annindex.EnrollableFace{
		PersonFaceID: face.ID,
		PersonID:     req.PersonID,
		PersonName:   person.Name,
		Embedding:    face.Embedding,
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "index add failed: " + err.Error()})
		return
	}

	if err := h.store.Detections().UpdateStatus(c.Request.Context(), detectionID, models.DetectionConfirmed, &face.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"personFace": face})
}
