package model

import "time"

// MessageStatus is the terminal status recorded for a source message
type MessageStatus string

const (
	MessageProcessed    MessageStatus = "processed"
	MessageParseError   MessageStatus = "parse_error"
	MessageSkipped      MessageStatus = "skipped"
	MessageFailedUpsert MessageStatus = "failed_upsert"
)

// Message is one source email, keyed by the transport-assigned identifier
type Message struct {
	MsgID          string        `json:"msg_id" gorm:"column:msg_id;type:varchar(255);primaryKey"`
	FromAddr       string        `json:"from_addr" gorm:"column:from_addr;type:varchar(255)"`
	Subject        string        `json:"subject" gorm:"type:varchar(512)"`
	Provider       string        `json:"provider" gorm:"type:varchar(32)"`
	ReceivedAtUTC  *time.Time    `json:"received_at_utc" gorm:"column:received_at_utc"`
	ProcessedAtUTC *time.Time    `json:"processed_at_utc" gorm:"column:processed_at_utc"`
	Status         MessageStatus `json:"status" gorm:"type:varchar(32);not null"`
	Notes          *string       `json:"notes,omitempty" gorm:"type:text"`

	Attachments []Attachment `json:"attachments,omitempty" gorm:"foreignKey:MsgID;references:MsgID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for Message
func (Message) TableName() string {
	return "messages"
}
