package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"shiftbot/internal/model"
)

// IsMessageProcessed checks whether a message id has been recorded
func (r *Repository) IsMessageProcessed(ctx context.Context, msgID string) (bool, error) {
	var count int64
	result := r.conn(ctx).Model(&model.Message{}).Where("msg_id = ?", msgID).Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("database error checking processed message: %w", result.Error)
	}
	return count > 0, nil
}

// CreateMessage inserts a message row without its attachments. It reports
// false when the id already exists, so a concurrent insert is a no-op.
func (r *Repository) CreateMessage(ctx context.Context, msg *model.Message) (bool, error) {
	result := r.conn(ctx).Omit("Attachments").Create(msg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create message %s: %w", msg.MsgID, result.Error)
	}
	return true, nil
}

// GetMessage loads one message with its attachments
func (r *Repository) GetMessage(ctx context.Context, msgID string) (*model.Message, error) {
	var msg model.Message
	result := r.conn(ctx).Preload("Attachments").Where("msg_id = ?", msgID).First(&msg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message %s: %w", msgID, result.Error)
	}
	return &msg, nil
}

// UpdateMessageStatus overwrites the terminal status and note of a message
func (r *Repository) UpdateMessageStatus(ctx context.Context, msgID string, status model.MessageStatus, note string) error {
	result := r.conn(ctx).Model(&model.Message{}).
		Where("msg_id = ?", msgID).
		Updates(map[string]interface{}{"status": status, "notes": note})
	if result.Error != nil {
		return fmt.Errorf("failed to update message %s: %w", msgID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("message %s: %w", msgID, ErrNotFound)
	}
	return nil
}
