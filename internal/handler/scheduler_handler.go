package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"shiftbot/internal/pipeline"
)

// StartScheduler starts the periodic pipeline runs
func (h *Handlers) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to start scheduler",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler started successfully",
		"status":  "running",
	})
}

// StopScheduler stops the periodic pipeline runs
func (h *Handlers) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to stop scheduler",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler stopped successfully",
		"status":  "stopped",
	})
}

// RunOnce runs the pipeline now and waits for it
func (h *Handlers) RunOnce(c *gin.Context) {
	// A dropped connection must not abort a run halfway
	ctx := context.WithoutCancel(c.Request.Context())

	if err := h.scheduler.RunOnce(ctx); err != nil {
		if errors.Is(err, pipeline.ErrRunInProgress) {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "run_in_progress",
				Message: "A pipeline run is already in progress",
				Code:    http.StatusConflict,
			})
			return
		}
		logrus.Errorf("Manual run failed: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "run_failed",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Pipeline run completed successfully",
		"run":     h.runs.LastRun(),
	})
}

// GetSchedulerStatus reports whether the scheduler runs and when
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	response := SchedulerStatusResponse{
		Running: h.scheduler.IsRunning(),
		Summary: h.runs.LastRun(),
	}
	if next := h.scheduler.GetNextRun(); !next.IsZero() {
		response.NextRun = &next
	}
	if last := h.scheduler.GetLastRun(); !last.IsZero() {
		response.LastRun = &last
	}

	c.JSON(http.StatusOK, response)
}
