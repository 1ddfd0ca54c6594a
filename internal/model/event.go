package model

import (
	"fmt"
	"time"
)

// EventStatus is the publish state of a derived shift
type EventStatus string

const (
	EventPlanned   EventStatus = "planned"
	EventSynced    EventStatus = "synced"
	EventCancelled EventStatus = "cancelled"
)

// EventUIDTimeLayout formats the UTC start instant inside an event key
const EventUIDTimeLayout = "20060102T1504Z"

// Event is one derived shift occurrence. EventUID is the idempotency key:
// the document fingerprint followed by the UTC start to the minute.
type Event struct {
	EventUID     string    `json:"event_uid" gorm:"column:event_uid;type:varchar(128);primaryKey"`
	AttachmentID uint      `json:"attachment_id" gorm:"not null;index"`
	SourceMsgID  string    `json:"source_msg_id" gorm:"column:source_msg_id;type:varchar(255);not null;index"`
	StartUTC     time.Time `json:"start_utc" gorm:"column:start_utc;not null;index:ix_events_start_utc"`
	EndUTC       time.Time `json:"end_utc" gorm:"column:end_utc;not null;check:ck_events_end_after_start,end_utc > start_utc"`
	LocalTZ      string    `json:"local_tz" gorm:"column:local_tz;type:varchar(64)"`
	ShiftType    string    `json:"shift_type" gorm:"type:varchar(64)"`
	Location     string    `json:"location" gorm:"type:varchar(128)"`
	Notes        *string   `json:"notes,omitempty" gorm:"type:text"`

	// Checksum of the last pushed calendar payload. Reserved for
	// update-vs-no-op decisions; events are only ever pushed once today.
	Checksum *string `json:"checksum,omitempty" gorm:"type:varchar(64)"`

	Provider         *string     `json:"provider,omitempty" gorm:"type:varchar(32);uniqueIndex:uq_events_provider_provider_event"`
	ProviderEventID  *string     `json:"provider_event_id,omitempty" gorm:"type:varchar(255);uniqueIndex:uq_events_provider_provider_event"`
	FirstSyncedAtUTC *time.Time  `json:"first_synced_at_utc,omitempty" gorm:"column:first_synced_at_utc"`
	LastSyncedAtUTC  *time.Time  `json:"last_synced_at_utc,omitempty" gorm:"column:last_synced_at_utc"`
	Status           EventStatus `json:"status" gorm:"type:varchar(16);not null;index"`
	LastError        *string     `json:"last_error,omitempty" gorm:"type:text"`

	// ReplacesEventUID links a correction to the event it supersedes.
	// Nothing sets it yet.
	ReplacesEventUID *string `json:"replaces_event_uid,omitempty" gorm:"type:varchar(128);index"`

	Attachment *Attachment `json:"-" gorm:"foreignKey:AttachmentID;constraint:OnDelete:RESTRICT"`
	Message    *Message    `json:"-" gorm:"foreignKey:SourceMsgID;references:MsgID;constraint:OnDelete:RESTRICT"`
}

// TableName specifies the table name for Event
func (Event) TableName() string {
	return "events"
}

// EventUIDFor builds the idempotency key for a document and UTC start
func EventUIDFor(fingerprint string, startUTC time.Time) string {
	return fingerprint + startUTC.UTC().Format(EventUIDTimeLayout)
}

// Validate rejects events whose interval is empty or inverted
func (e *Event) Validate() error {
	if !e.EndUTC.After(e.StartUTC) {
		return fmt.Errorf("event %s ends at %s, not after start %s",
			e.EventUID, e.EndUTC.Format(time.RFC3339), e.StartUTC.Format(time.RFC3339))
	}
	return nil
}
