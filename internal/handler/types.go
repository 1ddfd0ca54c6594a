package handler

import (
	"time"

	"shiftbot/internal/pipeline"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Scheduler string            `json:"scheduler"`
	LastRun   *pipeline.Summary `json:"last_run,omitempty"`
}

// SchedulerStatusResponse represents the scheduler status
type SchedulerStatusResponse struct {
	Running bool              `json:"running"`
	NextRun *time.Time        `json:"next_run,omitempty"`
	LastRun *time.Time        `json:"last_run,omitempty"`
	Summary *pipeline.Summary `json:"last_summary,omitempty"`
}

// Pagination describes a page of a list response
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
