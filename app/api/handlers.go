package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/announcer/app/database"
	"github.com/lysyi3m/announcer/app/instance"
	"github.com/lysyi3m/announcer/app/message"
	"github.com/lysyi3m/announcer/app/tasks"
)

func NewHandler(configCache *instance.ConfigCache, instanceRepo database.InstanceRepository,
	ledger database.AnnouncementRepository, announcer AnnouncerInterface,
	validator *message.Validator, scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		instanceRepo: instanceRepo,
		ledger:       ledger,
		announcer:    announcer,
		validator:    validator,
		configCache:  configCache,
		scheduler:    scheduler,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if instanceCount, err := h.instanceRepo.Count(ctx); err == nil {
		health["instances"] = instanceCount
	}

	if announcementCount, err := h.ledger.Count(ctx); err == nil {
		health["announcements"] = announcementCount
	}

	if h.configCache != nil {
		health["loaded_configurations"] = h.configCache.GetConfigCount()
	}

	c.JSON(http.StatusOK, health)
}

// APICheck runs one check cycle synchronously.
func (h *Handler) APICheck(c *gin.Context) {
	result := h.scheduler.Trigger(c.Request.Context())
	c.JSON(http.StatusOK, result)
}

func (h *Handler) APIListInstances(c *gin.Context) {
	instances, err := h.instanceRepo.List(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_instances", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := make([]instanceResponse, 0, len(instances))
	for _, i := range instances {
		response = append(response, newInstanceResponse(i))
	}

	c.JSON(http.StatusOK, gin.H{
		"instances": response,
		"total":     len(response),
	})
}

func (h *Handler) APIGetInstance(c *gin.Context) {
	id := c.Param("id")

	i, err := h.instanceRepo.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "get_instance", id, err)
		return
	}

	c.JSON(http.StatusOK, newInstanceResponse(*i))
}

func (h *Handler) APIDeleteInstance(c *gin.Context) {
	id := c.Param("id")

	if err := h.instanceRepo.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, "delete_instance", id, err)
		return
	}

	slog.Info("Instance deleted", "instance", id)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) APIToggleAutomation(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	i, err := h.instanceRepo.Get(ctx, id)
	if err != nil {
		h.writeError(c, "get_instance", id, err)
		return
	}

	automation := !i.Automation
	if err := h.instanceRepo.Update(ctx, id, database.InstanceUpdate{Automation: &automation}); err != nil {
		h.writeError(c, "toggle_automation", id, err)
		return
	}

	slog.Info("Automation toggled", "instance", id, "automation", automation)
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"automation": automation,
	})
}

// APIUpdateMessage replaces the instance template with one built from the
// message editor fields.
func (h *Handler) APIUpdateMessage(c *gin.Context) {
	id := c.Param("id")

	var fields message.EditorFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	tmpl := message.FromEditor(fields)
	if err := h.validator.Validate(tmpl); err != nil {
		h.writeError(c, "update_message", id, err)
		return
	}

	raw, err := json.Marshal(tmpl)
	if err != nil {
		slog.Error("Failed to encode template", "instance", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode template"})
		return
	}

	template := string(raw)
	if err := h.instanceRepo.Update(c.Request.Context(), id, database.InstanceUpdate{Template: &template}); err != nil {
		h.writeError(c, "update_message", id, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"template": json.RawMessage(raw),
	})
}

func (h *Handler) APIListAnnouncements(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := h.instanceRepo.Get(ctx, id); err != nil {
		h.writeError(c, "get_instance", id, err)
		return
	}

	announcements, err := h.ledger.ListByInstance(ctx, id)
	if err != nil {
		h.writeError(c, "list_announcements", id, err)
		return
	}

	response := make([]announcementResponse, 0, len(announcements))
	for _, a := range announcements {
		response = append(response, announcementResponse{
			ContentID: a.ContentID,
			Announced: a.Announced,
			CreatedAt: a.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"announcements": response,
		"total":         len(response),
	})
}

func (h *Handler) APIListVideos(c *gin.Context) {
	id := c.Param("id")

	list, err := h.announcer.ListVideos(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "list_videos", id, err)
		return
	}

	previous := make([]videoResponse, 0, len(list.Previous))
	for _, v := range list.Previous {
		previous = append(previous, newVideoResponse(v))
	}

	c.JSON(http.StatusOK, gin.H{
		"latest":   newVideoResponse(list.Latest),
		"previous": previous,
	})
}

func (h *Handler) APIAnnounceVideo(c *gin.Context) {
	id := c.Param("id")

	var req announceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := h.announcer.AnnounceVideo(c.Request.Context(), id, req.VideoID); err != nil {
		h.writeError(c, "announce_video", id, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"videoId": req.VideoID,
	})
}

// writeError maps domain errors onto HTTP statuses.
func (h *Handler) writeError(c *gin.Context, operation, id string, err error) {
	var validationErr *message.ValidationError

	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Instance not found"})
	case errors.Is(err, tasks.ErrVideoNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
	case errors.Is(err, tasks.ErrUnsupportedType):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Operation not supported for this instance type"})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message", "reasons": validationErr.Reasons})
	case errors.Is(err, tasks.ErrSourceDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Content source is not configured"})
	case errors.Is(err, tasks.ErrDeliveryFailed):
		slog.Error("Delivery failed", "operation", operation, "instance", id, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to deliver announcement", "details": err.Error()})
	default:
		slog.Error("Request failed", "operation", operation, "instance", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "details": err.Error()})
	}
}
