package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"shiftbot/internal/model"
	"shiftbot/internal/repository"
)

// GetEvents lists shift events, optionally filtered by ?status=
func (h *Handlers) GetEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	status := model.EventStatus(c.Query("status"))
	switch status {
	case "", model.EventPlanned, model.EventSynced, model.EventCancelled:
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_status",
			Message: "Status must be planned, synced or cancelled",
			Code:    http.StatusBadRequest,
		})
		return
	}

	events, err := h.repo.ListEvents(c.Request.Context(), status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch events",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// GetEvent returns one event by its key
func (h *Handlers) GetEvent(c *gin.Context) {
	ev, err := h.repo.GetEvent(c.Request.Context(), c.Param("uid"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Event not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch event",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, ev)
}
