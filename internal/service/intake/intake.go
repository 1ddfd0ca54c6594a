// Package intake stores roster attachments from allowed senders exactly once.
package intake

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"shiftbot/internal/config"
	"shiftbot/internal/filestore"
	"shiftbot/internal/fingerprint"
	"shiftbot/internal/mailbox"
	"shiftbot/internal/model"
	"shiftbot/internal/repository"
)

// Outcome is what Ingest did with one message
type Outcome int

const (
	// Stored means the message and at least one new attachment were written
	Stored Outcome = iota
	// AlreadyProcessed means the message id was seen by an earlier run
	AlreadyProcessed
	// Duplicate means every roster attachment was already stored; the
	// message is recorded as skipped
	Duplicate
	// NoDocuments means the message carried no roster attachment
	NoDocuments
)

func (o Outcome) String() string {
	switch o {
	case Stored:
		return "stored"
	case AlreadyProcessed:
		return "already_processed"
	case Duplicate:
		return "duplicate"
	case NoDocuments:
		return "no_documents"
	default:
		return "unknown"
	}
}

// Result describes one ingested message
type Result struct {
	Outcome    Outcome
	Stored     int
	Duplicates int
}

var errRaced = errors.New("message inserted concurrently")

// Service runs the intake stage
type Service struct {
	repo    *repository.Repository
	files   *filestore.Store
	fetcher mailbox.Fetcher
	cfg     config.IntakeConfig
	allowed map[string]bool

	// beforeStore runs between the fingerprint lookups and the write
	beforeStore func(ctx context.Context)

	Now func() time.Time
}

// NewService creates an intake stage reading from fetcher
func NewService(repo *repository.Repository, files *filestore.Store, fetcher mailbox.Fetcher, cfg config.IntakeConfig) *Service {
	allowed := make(map[string]bool, len(cfg.AllowedSenders))
	for _, s := range cfg.AllowedSenders {
		allowed[strings.ToLower(strings.TrimSpace(s))] = true
	}
	return &Service{
		repo:    repo,
		files:   files,
		fetcher: fetcher,
		cfg:     cfg,
		allowed: allowed,
		Now:     time.Now,
	}
}

// Run scans the newest messages. Per-message errors are counted and the
// scan goes on; only a failed fetch is returned.
func (s *Service) Run(ctx context.Context, log logrus.FieldLogger) (model.Counters, error) {
	var c model.Counters

	messages, err := s.fetcher.Fetch(ctx, s.cfg.FetchLimit)
	if err != nil {
		return c, fmt.Errorf("failed to fetch messages from %s: %w", s.fetcher.Provider(), err)
	}

	for _, m := range messages {
		c.Scanned++
		entry := log.WithFields(logrus.Fields{
			"msg_id":  m.ID,
			"sender":  m.From,
			"subject": m.Subject,
		})

		// An unreadable message is only a failure when it may be ours
		if m.Err != nil && (m.From == "" || s.IsAllowed(m.From)) {
			c.Failures++
			entry.Errorf("Failed to read email: %v", m.Err)
			continue
		}

		if !s.IsAllowed(m.From) {
			c.Skipped++
			entry.Debug("Skipping message from sender not on the allow list")
			continue
		}

		res, err := s.Ingest(ctx, entry, m)
		if err != nil {
			c.Failures++
			entry.Errorf("Error processing email: %v", err)
			continue
		}

		c.Skipped += res.Duplicates
		switch res.Outcome {
		case Stored:
			c.Matched++
			entry.WithField("attachments", res.Stored).Info("Processed email")
		case Duplicate:
			c.Matched++
			entry.WithField("duplicates", res.Duplicates).Info("Email carried only stored attachments")
		case AlreadyProcessed:
			c.Skipped++
			entry.Info("Email already processed, skipping")
		case NoDocuments:
			c.Skipped++
			entry.Debug("Email has no roster attachment")
		}
	}

	log.WithFields(logrus.Fields{
		"scanned":  c.Scanned,
		"matched":  c.Matched,
		"skipped":  c.Skipped,
		"failures": c.Failures,
	}).Info("Email scan complete")
	return c, nil
}

// IsAllowed reports whether the sender address is on the allow list
func (s *Service) IsAllowed(from string) bool {
	return s.allowed[mailbox.SenderAddress(from)]
}

// IsRosterFile reports whether name follows the roster naming convention
func (s *Service) IsRosterFile(name string) bool {
	return strings.Contains(name, s.cfg.FilenameMarker) &&
		strings.EqualFold(filepath.Ext(name), s.cfg.FileExtension)
}

type staged struct {
	row  model.Attachment
	path string
}

// Ingest records one message from an allowed sender. A message id seen
// before is a no-op. Roster attachments are stored unless their
// fingerprint already exists. Progress is logged on log.
func (s *Service) Ingest(ctx context.Context, log logrus.FieldLogger, m mailbox.Message) (Result, error) {
	seen, err := s.repo.IsMessageProcessed(ctx, m.ID)
	if err != nil {
		return Result{}, err
	}
	if seen {
		return Result{Outcome: AlreadyProcessed}, nil
	}

	var (
		pending    []staged
		duplicates int
		conforming int
	)
	fingerprints := make(map[string]bool)
	cleanup := func() {
		for _, p := range pending {
			if err := s.files.Remove(p.path); err != nil {
				log.Warnf("Failed to remove orphaned attachment: %v", err)
			}
		}
	}

	for _, att := range m.Attachments {
		if !s.IsRosterFile(att.Filename) {
			continue
		}
		conforming++

		sum := fingerprint.Sum(att.Payload)
		if fingerprints[sum] {
			duplicates++
			continue
		}
		fingerprints[sum] = true

		exists, err := s.repo.HasFingerprint(ctx, sum)
		if err != nil {
			cleanup()
			return Result{}, err
		}
		if exists {
			duplicates++
			log.WithField("sha256", sum).
				Infof("Attachment %s already stored, skipping", att.Filename)
			continue
		}

		path, err := s.files.Save(sum[:16], att.Filename, att.Payload)
		if err != nil {
			cleanup()
			return Result{}, err
		}

		pending = append(pending, staged{
			path: path,
			row: model.Attachment{
				MsgID:      m.ID,
				Filename:   att.Filename,
				MimeType:   att.ContentType,
				SizeBytes:  int64(len(att.Payload)),
				SHA256:     sum,
				StoredPath: path,
			},
		})
	}

	if conforming == 0 {
		return Result{Outcome: NoDocuments}, nil
	}

	msg := s.messageRow(m)
	if len(pending) == 0 {
		msg.Status = model.MessageSkipped
		note := duplicateNote(duplicates)
		msg.Notes = &note
	}

	if s.beforeStore != nil {
		s.beforeStore(ctx)
	}

	res := Result{Outcome: Stored, Duplicates: duplicates}
	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		created, err := tx.CreateMessage(ctx, msg)
		if err != nil {
			return err
		}
		if !created {
			return errRaced
		}

		for i := range pending {
			inserted, err := tx.InsertAttachment(ctx, &pending[i].row)
			if err != nil {
				return err
			}
			if !inserted {
				// Another writer stored these bytes after our lookup and
				// may own the same path, so the file stays
				res.Duplicates++
				continue
			}
			res.Stored++
		}

		if res.Stored == 0 && len(pending) > 0 {
			return tx.UpdateMessageStatus(ctx, m.ID, model.MessageSkipped, duplicateNote(res.Duplicates))
		}
		return nil
	})
	if err != nil {
		cleanup()
		if errors.Is(err, errRaced) {
			return Result{Outcome: AlreadyProcessed}, nil
		}
		return Result{}, fmt.Errorf("failed to store message %s: %w", m.ID, err)
	}

	if res.Stored == 0 {
		res.Outcome = Duplicate
	}
	return res, nil
}

func (s *Service) messageRow(m mailbox.Message) *model.Message {
	processed := s.Now().UTC()
	msg := &model.Message{
		MsgID:          m.ID,
		FromAddr:       m.From,
		Subject:        m.Subject,
		Provider:       s.fetcher.Provider(),
		ProcessedAtUTC: &processed,
		Status:         model.MessageProcessed,
	}
	if !m.Date.IsZero() {
		received := m.Date.UTC()
		msg.ReceivedAtUTC = &received
	}
	return msg
}

func duplicateNote(n int) string {
	return fmt.Sprintf("all %d roster attachments already stored", n)
}
