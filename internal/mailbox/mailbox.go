// Package mailbox fetches roster emails from a remote mailbox.
package mailbox

import (
	"context"
	"net/mail"
	"strings"
	"time"
)

// Attachment is one file carried by a message
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
	Payload     []byte
}

// Message is a fetched email reduced to what the pipeline reads. Err is set
// when the message was listed but could not be read; the other fields then
// hold whatever was known before the failure.
type Message struct {
	ID          string
	From        string
	Subject     string
	Date        time.Time
	Attachments []Attachment
	Err         error
}

// Fetcher reads the newest messages of a mailbox. Each call returns a
// finite snapshot; it is not resumable. Only a failure to reach the mailbox
// is returned as an error; an unreadable message comes back with Err set.
type Fetcher interface {
	Fetch(ctx context.Context, limit int) ([]Message, error)
	Provider() string
	Close() error
}

// SenderAddress returns the lowercased bare address of a From header,
// or the trimmed input when it does not parse.
func SenderAddress(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(from))
	}
	return strings.ToLower(addr.Address)
}
