package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"shiftbot/internal/config"
)

// GmailFetcher implements Fetcher using the Gmail API
type GmailFetcher struct {
	service   *gmail.Service
	userEmail string
}

// NewGmailFetcher creates a Gmail API fetcher from a pre-minted refresh token.
// Extra client options are appended after the token source.
func NewGmailFetcher(ctx context.Context, cfg *config.MailConfig, opts ...option.ClientOption) (*GmailFetcher, error) {
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	opts = append([]option.ClientOption{option.WithTokenSource(tokenSource)}, opts...)
	service, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	user := cfg.UserEmail
	if user == "" {
		user = "me"
	}
	return &GmailFetcher{service: service, userEmail: user}, nil
}

// Provider names the transport in stored messages
func (f *GmailFetcher) Provider() string {
	return "gmail"
}

// Fetch lists the newest messages and downloads their attachments. A
// message that cannot be downloaded is returned with Err set.
func (f *GmailFetcher) Fetch(ctx context.Context, limit int) ([]Message, error) {
	call := f.service.Users.Messages.List(f.userEmail).Context(ctx)
	if limit > 0 {
		call = call.MaxResults(int64(limit))
	}
	response, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]Message, 0, len(response.Messages))
	for _, ref := range response.Messages {
		msg, err := f.service.Users.Messages.Get(f.userEmail, ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			messages = append(messages, Message{ID: ref.Id, Err: fmt.Errorf("failed to get message %s: %w", ref.Id, err)})
			continue
		}

		m, err := f.parseGmailMessage(ctx, msg)
		if err != nil {
			m.Err = fmt.Errorf("failed to parse Gmail message %s: %w", ref.Id, err)
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// parseGmailMessage parses a Gmail API message into a Message
func (f *GmailFetcher) parseGmailMessage(ctx context.Context, msg *gmail.Message) (Message, error) {
	m := Message{
		ID:   msg.Id,
		Date: time.UnixMilli(msg.InternalDate).UTC(),
	}
	if msg.Payload == nil {
		return m, nil
	}

	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			m.Subject = header.Value
		case "From":
			m.From = header.Value
		}
	}

	if err := f.collectAttachments(ctx, msg.Id, msg.Payload, &m); err != nil {
		return m, err
	}
	return m, nil
}

// collectAttachments recursively walks message parts
func (f *GmailFetcher) collectAttachments(ctx context.Context, msgID string, part *gmail.MessagePart, m *Message) error {
	if part.Filename != "" && part.Body != nil {
		data := part.Body.Data
		if data == "" && part.Body.AttachmentId != "" {
			body, err := f.service.Users.Messages.Attachments.Get(f.userEmail, msgID, part.Body.AttachmentId).Context(ctx).Do()
			if err != nil {
				return fmt.Errorf("failed to get attachment %s: %w", part.Filename, err)
			}
			data = body.Data
		}

		payload, err := decodeBase64URL(data)
		if err != nil {
			return fmt.Errorf("failed to decode attachment %s: %w", part.Filename, err)
		}

		m.Attachments = append(m.Attachments, Attachment{
			Filename:    part.Filename,
			ContentType: strings.ToLower(part.MimeType),
			Size:        int64(len(payload)),
			Payload:     payload,
		})
	}

	for _, sub := range part.Parts {
		if err := f.collectAttachments(ctx, msgID, sub, m); err != nil {
			return err
		}
	}
	return nil
}

// decodeBase64URL accepts padded and unpadded base64url
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Close is a no-op for the Gmail API
func (f *GmailFetcher) Close() error {
	return nil
}
