package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"shiftbot/internal/model"
)

// CreateEvents inserts derived events after checking their intervals
func (r *Repository) CreateEvents(ctx context.Context, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return err
		}
	}
	if err := r.conn(ctx).Omit("Attachment", "Message").Create(&events).Error; err != nil {
		return fmt.Errorf("failed to create %d events: %w", len(events), err)
	}
	return nil
}

// PendingPublish returns planned events that have no provider linkage yet
func (r *Repository) PendingPublish(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	result := r.conn(ctx).Preload("Attachment").
		Where("status = ? AND provider IS NULL", model.EventPlanned).
		Order("start_utc").
		Find(&events)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get planned events: %w", result.Error)
	}
	return events, nil
}

// Linkage is what the remote calendar confirmed for a pushed event
type Linkage struct {
	Provider        string
	ProviderEventID string
	Checksum        string
	SyncedAt        time.Time
}

// MarkSynced records provider linkage and moves a planned event to synced
func (r *Repository) MarkSynced(ctx context.Context, eventUID string, link Linkage) error {
	at := link.SyncedAt.UTC()
	result := r.conn(ctx).Model(&model.Event{}).
		Where("event_uid = ? AND status = ? AND provider IS NULL", eventUID, model.EventPlanned).
		Updates(map[string]interface{}{
			"provider":            link.Provider,
			"provider_event_id":   link.ProviderEventID,
			"checksum":            link.Checksum,
			"first_synced_at_utc": at,
			"last_synced_at_utc":  at,
			"status":              model.EventSynced,
			"last_error":          nil,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("event %s: remote id %s/%s already linked: %w",
				eventUID, link.Provider, link.ProviderEventID, result.Error)
		}
		return fmt.Errorf("failed to mark event %s synced: %w", eventUID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("event %s: %w", eventUID, ErrStaleState)
	}
	return nil
}

// RecordPublishError stores the last push error; the event stays planned
func (r *Repository) RecordPublishError(ctx context.Context, eventUID string, msg string) error {
	result := r.conn(ctx).Model(&model.Event{}).
		Where("event_uid = ?", eventUID).
		Update("last_error", msg)
	if result.Error != nil {
		return fmt.Errorf("failed to record error for event %s: %w", eventUID, result.Error)
	}
	return nil
}

// ListEvents returns events ordered by start, optionally filtered by status
func (r *Repository) ListEvents(ctx context.Context, status model.EventStatus, limit int) ([]model.Event, error) {
	var events []model.Event
	q := r.conn(ctx).Order("start_utc DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// GetEvent loads one event by its idempotency key
func (r *Repository) GetEvent(ctx context.Context, eventUID string) (*model.Event, error) {
	var ev model.Event
	if err := r.conn(ctx).Where("event_uid = ?", eventUID).First(&ev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get event %s: %w", eventUID, err)
	}
	return &ev, nil
}
