package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"shiftbot/internal/pipeline"
	"shiftbot/internal/repository"
)

// Scheduler is the scheduler surface the handlers drive
type Scheduler interface {
	Start() error
	Stop() error
	IsRunning() bool
	RunOnce(ctx context.Context) error
	GetNextRun() time.Time
	GetLastRun() time.Time
}

// RunReporter exposes the last finished run of this process
type RunReporter interface {
	LastRun() *pipeline.Summary
}

// Handlers contains all HTTP handlers
type Handlers struct {
	repo      *repository.Repository
	scheduler Scheduler
	runs      RunReporter
	gatherer  prometheus.Gatherer
}

// NewHandlers creates new HTTP handlers
func NewHandlers(repo *repository.Repository, scheduler Scheduler, runs RunReporter, gatherer prometheus.Gatherer) *Handlers {
	return &Handlers{
		repo:      repo,
		scheduler: scheduler,
		runs:      runs,
		gatherer:  gatherer,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.GET("/runs", h.GetRuns)
		api.GET("/runs/:id", h.GetRun)

		api.GET("/events", h.GetEvents)
		api.GET("/events/:uid", h.GetEvent)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Scheduler: "stopped",
	}

	if err := h.repo.Ping(c.Request.Context()); err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler.IsRunning() {
		response.Scheduler = "running"
	}
	response.LastRun = h.runs.LastRun()

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
