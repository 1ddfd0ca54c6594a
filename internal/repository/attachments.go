package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"shiftbot/internal/model"
)

// HasFingerprint checks whether an attachment with these bytes is stored
func (r *Repository) HasFingerprint(ctx context.Context, sha256 string) (bool, error) {
	var count int64
	result := r.conn(ctx).Model(&model.Attachment{}).Where("sha256 = ?", sha256).Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("database error checking fingerprint: %w", result.Error)
	}
	return count > 0, nil
}

// InsertAttachment stores an attachment row unless its fingerprint already
// exists. It reports whether a row was written.
func (r *Repository) InsertAttachment(ctx context.Context, att *model.Attachment) (bool, error) {
	result := r.conn(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "sha256"}}, DoNothing: true}).
		Create(att)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert attachment %s: %w", att.Filename, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// NextUnvalidated returns up to limit attachments that have not been parsed yet
func (r *Repository) NextUnvalidated(ctx context.Context, limit int) ([]model.Attachment, error) {
	var atts []model.Attachment
	result := r.conn(ctx).Where("validated = ?", false).Order("id").Limit(limit).Find(&atts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get unvalidated attachments: %w", result.Error)
	}
	return atts, nil
}

// MarkValidated flips validated from false to true. It fails with
// ErrStaleState when the attachment was already validated.
func (r *Repository) MarkValidated(ctx context.Context, id uint) error {
	result := r.conn(ctx).Model(&model.Attachment{}).
		Where("id = ? AND validated = ?", id, false).
		Update("validated", true)
	if result.Error != nil {
		return fmt.Errorf("failed to validate attachment %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("attachment %d: %w", id, ErrStaleState)
	}
	return nil
}

// GetAttachment loads one attachment by id
func (r *Repository) GetAttachment(ctx context.Context, id uint) (*model.Attachment, error) {
	var att model.Attachment
	if err := r.conn(ctx).First(&att, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attachment %d: %w", id, err)
	}
	return &att, nil
}

// CountAttachments returns the number of stored attachments
func (r *Repository) CountAttachments(ctx context.Context) (int64, error) {
	var count int64
	if err := r.conn(ctx).Model(&model.Attachment{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count attachments: %w", err)
	}
	return count, nil
}
