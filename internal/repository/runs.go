package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"shiftbot/internal/model"
)

// CreateRun inserts the audit row for a starting run
func (r *Repository) CreateRun(ctx context.Context, run *model.Run) error {
	if err := r.conn(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun adds the run's counter delta, appends its notes and stamps the
// finish time, all in one write.
func (r *Repository) FinishRun(ctx context.Context, id uint, delta model.Counters, notes string, finishedAt time.Time) error {
	return r.Transaction(ctx, func(tx *Repository) error {
		var run model.Run
		if err := tx.conn(ctx).First(&run, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("run %d: %w", id, ErrNotFound)
			}
			return fmt.Errorf("failed to load run %d: %w", id, err)
		}

		run.Accumulate(delta)
		if notes != "" {
			if run.Notes != nil && *run.Notes != "" {
				joined := *run.Notes + "\n" + notes
				run.Notes = &joined
			} else {
				run.Notes = &notes
			}
		}
		at := finishedAt.UTC()
		run.FinishedAtUTC = &at

		if err := tx.conn(ctx).Save(&run).Error; err != nil {
			return fmt.Errorf("failed to save run %d: %w", id, err)
		}
		return nil
	})
}

// GetRun loads one run by id
func (r *Repository) GetRun(ctx context.Context, id uint) (*model.Run, error) {
	var run model.Run
	if err := r.conn(ctx).First(&run, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get run %d: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs first
func (r *Repository) ListRuns(ctx context.Context, offset, limit int) ([]model.Run, int64, error) {
	var total int64
	if err := r.conn(ctx).Model(&model.Run{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	var runs []model.Run
	if err := r.conn(ctx).Order("id DESC").Offset(offset).Limit(limit).Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, total, nil
}
