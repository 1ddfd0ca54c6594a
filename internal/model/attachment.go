package model

// Attachment is one stored roster document. SHA256 is the content
// fingerprint; a resend or rename of the same bytes collides on it.
type Attachment struct {
	ID         uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	MsgID      string `json:"msg_id" gorm:"column:msg_id;type:varchar(255);not null;index"`
	Filename   string `json:"filename" gorm:"type:varchar(512)"`
	MimeType   string `json:"mime_type" gorm:"type:varchar(128)"`
	SizeBytes  int64  `json:"size_bytes"`
	SHA256     string `json:"sha256" gorm:"column:sha256;type:varchar(64);not null;uniqueIndex"`
	Validated  bool   `json:"validated" gorm:"not null;default:false;index"`
	StoredPath string `json:"stored_path" gorm:"type:varchar(1024)"`
}

// TableName specifies the table name for Attachment
func (Attachment) TableName() string {
	return "attachments"
}
