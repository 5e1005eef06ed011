package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/technosupport/sentinel/internal/models"
	"github.com/technosupport/sentinel/internal/repository"
)

// OrganizationHandler exposes the tenant-boundary CRUD the control plane
// needs to provision before any camera, event, or person can be created.
type OrganizationHandler struct {
	store repository.Store
}

func NewOrganizationHandler(store repository.Store) *OrganizationHandler {
	return &OrganizationHandler{store: store}
}

type createOrganizationRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *OrganizationHandler) Create(c *gin.Context) {
	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	org := &models.Organization{Name: req.Name}
	if err := h.store.Organizations().Create(c.Request.Context(), org); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, org)
}

func (h *OrganizationHandler) Get(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	org, err := h.store.Organizations().Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if org == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return
	}
	c.JSON(http.StatusOK, org)
}
