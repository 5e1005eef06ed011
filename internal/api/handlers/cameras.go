package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/technosupport/sentinel/internal/models"
	"github.com/technosupport/sentinel/internal/repository"
)

// CameraHandler exposes CRUD for registered RTSP sources. Credentials are
// stored separately from the base URL and only ever injected at dial time
// by models.Camera.EffectiveURL, never echoed back in a response.
type CameraHandler struct {
	store repository.Store
}

func NewCameraHandler(store repository.Store) *CameraHandler {
	return &CameraHandler{store: store}
}

type createCameraRequest struct {
	OrganizationID uuid.UUID `json:"organizationId" binding:"required"`
	Name           string    `json:"name" binding:"required"`
	StreamURL      string    `json:"streamUrl" binding:"required"`
	Username       string    `json:"username"`
	Password       string    `json:"password"`
	IsActive       bool      `json:"isActive"`
}

func (h *CameraHandler) Create(c *gin.Context) {
	var req createCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	camera := &models.Camera{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		StreamURL:      req.StreamURL,
		Username:       req.Username,
		Password:       req.Password,
		IsActive:       req.IsActive,
	}
	if err := h.store.Cameras().Create(c.Request.Context(), camera); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, camera)
}

func (h *CameraHandler) Get(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	camera, err := h.store.Cameras().Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if camera == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return
	}
	c.JSON(http.StatusOK, camera)
}

func (h *CameraHandler) List(c *gin.Context) {
	orgID, err := uuid.Parse(c.Query("organizationId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "organizationId query param required"})
		return
	}
	cameras, err := h.store.Cameras().ListByOrganization(c.Request.Context(), orgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cameras": cameras, "total": len(cameras)})
}
