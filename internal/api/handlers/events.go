package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/technosupport/sentinel/internal/models"
	"github.com/technosupport/sentinel/internal/orchestrator"
	"github.com/technosupport/sentinel/internal/repository"
)

// EventHandler exposes CRUD for scheduled capture windows (models.Event)
// and the cameras bound to them; actual session start/stop for an event's
// window is driven by the orchestrator's own tick, not by this handler,
// except for the manual override endpoints below.
type EventHandler struct {
	store repository.Store
	orch  *orchestrator.Orchestrator
}

func NewEventHandler(store repository.Store, orch *orchestrator.Orchestrator) *EventHandler {
	return &EventHandler{store: store, orch: orch}
}

type createEventRequest struct {
	OrganizationID uuid.UUID         `json:"organizationId" binding:"required"`
	Name           string            `json:"name" binding:"required"`
	Type           string            `json:"type"`
	IsScheduled    bool              `json:"isScheduled"`
	RecurrenceType models.RecurrenceType `json:"recurrenceType"`
	ScheduledDate  *time.Time        `json:"scheduledDate"`
	StartTime      string            `json:"startTime"`
	EndTime        string            `json:"endTime"`
	WeekDays       []models.WeekDay  `json:"weekDays"`
	CameraIDs      []uuid.UUID       `json:"cameraIds"`
}

func (h *EventHandler) Create(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev := &models.Event{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Type:           req.Type,
		IsScheduled:    req.IsScheduled,
		IsActive:       true,
		RecurrenceType: req.RecurrenceType,
		ScheduledDate:  req.ScheduledDate,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		WeekDays:       req.WeekDays,
	}
	if err := h.store.Events().Create(c.Request.Context(), ev); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	for _, camID := range req.CameraIDs {
		ec := &models.EventCamera{EventID: ev.ID, CameraID: camID, IsActive: true}
		if err := h.store.EventCameras().Create(c.Request.Context(), ec); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "event created but camera binding failed: " + err.Error()})
			return
		}
	}

	c.JSON(http.StatusCreated, ev)
}

func (h *EventHandler) Get(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ev, err := h.store.Events().Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ev == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		return
	}
	cameras, err := h.store.EventCameras().FindActiveByEventID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": ev, "cameras": cameras})
}

func (h *EventHandler) List(c *gin.Context) {
	events, err := h.store.Events().ListScheduled(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": len(events)})
}

type setActiveRequest struct {
	IsActive bool `json:"isActive"`
}

func (h *EventHandler) SetActive(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.Events().UpdateActive(c.Request.Context(), id, req.IsActive); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.orch.HandleEventStatusChange(c.Request.Context(), id, req.IsActive); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status updated but session sync failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// Start forces every camera bound to this event to begin ingesting now,
// bypassing the orchestrator's schedule check.
func (h *EventHandler) Start(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orch.ManuallyStartEvent(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

func (h *EventHandler) Stop(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.orch.ManuallyStopEvent(id)
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}
