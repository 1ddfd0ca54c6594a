package mailbox

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"

	"shiftbot/internal/config"
)

// IMAPFetcher implements Fetcher over IMAP with one session per fetch
type IMAPFetcher struct {
	addr     string
	user     string
	password string
	mailbox  string
}

// NewIMAPFetcher creates a new IMAP fetcher
func NewIMAPFetcher(cfg *config.MailConfig) *IMAPFetcher {
	mailbox := cfg.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	return &IMAPFetcher{
		addr:     fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort),
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		mailbox:  mailbox,
	}
}

// Provider names the transport in stored messages
func (f *IMAPFetcher) Provider() string {
	return "imap"
}

// Fetch returns up to limit of the newest messages, newest first. A message
// whose body cannot be parsed is returned with Err set.
func (f *IMAPFetcher) Fetch(ctx context.Context, limit int) ([]Message, error) {
	c, err := client.DialTLS(f.addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer c.Logout()

	// Unblock the session if the caller gives up
	stop := context.AfterFunc(ctx, func() { c.Terminate() })
	defer stop()

	if err := c.Login(f.user, f.password); err != nil {
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	mbox, err := c.Select(f.mailbox, true)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", f.mailbox, err)
	}
	if mbox.Messages == 0 {
		return []Message{}, nil
	}

	from := uint32(1)
	if limit > 0 && mbox.Messages > uint32(limit) {
		from = mbox.Messages - uint32(limit) + 1
	}
	seqset := new(imap.SeqSet)
	seqset.AddRange(from, mbox.Messages)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var fetched []Message
	for msg := range messages {
		m, err := f.parseIMAPMessage(msg, section, mbox.UidValidity)
		if err != nil {
			m.Err = fmt.Errorf("failed to parse IMAP message uid %d: %w", msg.Uid, err)
		}
		fetched = append(fetched, m)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	// Sequence numbers ascend with arrival; callers expect newest first
	for i, j := 0, len(fetched)-1; i < j; i, j = i+1, j-1 {
		fetched[i], fetched[j] = fetched[j], fetched[i]
	}
	return fetched, nil
}

// parseIMAPMessage converts an envelope and raw body into a Message
func (f *IMAPFetcher) parseIMAPMessage(msg *imap.Message, section *imap.BodySectionName, uidValidity uint32) (Message, error) {
	m := Message{
		ID: fmt.Sprintf("%d:%d", uidValidity, msg.Uid),
	}

	if msg.Envelope != nil {
		m.Subject = msg.Envelope.Subject
		m.Date = msg.Envelope.Date.UTC()
		if msg.Envelope.MessageId != "" {
			m.ID = msg.Envelope.MessageId
		}
		if len(msg.Envelope.From) > 0 {
			m.From = msg.Envelope.From[0].Address()
		}
	}

	r := msg.GetBody(section)
	if r == nil {
		return m, fmt.Errorf("server did not return a message body")
	}

	attachments, err := readAttachments(r)
	if err != nil {
		return m, err
	}
	m.Attachments = attachments
	return m, nil
}

// readAttachments walks a MIME message and collects its attachment parts
func readAttachments(r io.Reader) ([]Attachment, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	var attachments []Attachment
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read part: %w", err)
		}

		h, ok := p.Header.(*gomail.AttachmentHeader)
		if !ok {
			continue
		}

		filename, err := h.Filename()
		if err != nil || filename == "" {
			continue
		}
		contentType, _, _ := h.ContentType()

		payload, err := io.ReadAll(p.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", filename, err)
		}

		attachments = append(attachments, Attachment{
			Filename:    filename,
			ContentType: strings.ToLower(contentType),
			Size:        int64(len(payload)),
			Payload:     payload,
		})
	}
	return attachments, nil
}

// Close is a no-op; sessions are closed after each fetch
func (f *IMAPFetcher) Close() error {
	return nil
}
