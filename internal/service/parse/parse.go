// Package parse derives shift events from stored roster attachments.
package parse

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"shiftbot/internal/document"
	"shiftbot/internal/fingerprint"
	"shiftbot/internal/model"
	"shiftbot/internal/repository"
	"shiftbot/internal/roster"
)

// Service runs the parse stage
type Service struct {
	repo      *repository.Repository
	extractor document.Extractor
	parser    *roster.Parser
	tz        string
	location  string
	limit     int
}

// Options carries the per-deployment parse settings
type Options struct {
	Timezone     string
	Location     string
	MaxDocuments int
}

// NewService creates a parse stage
func NewService(repo *repository.Repository, extractor document.Extractor, parser *roster.Parser, opts Options) *Service {
	limit := opts.MaxDocuments
	if limit < 1 {
		limit = 1
	}
	return &Service{
		repo:      repo,
		extractor: extractor,
		parser:    parser,
		tz:        opts.Timezone,
		location:  opts.Location,
		limit:     limit,
	}
}

// Run parses up to the configured number of unvalidated attachments. A
// document that fails is counted and left unvalidated.
func (s *Service) Run(ctx context.Context, log logrus.FieldLogger) (model.Counters, error) {
	var c model.Counters

	atts, err := s.repo.NextUnvalidated(ctx, s.limit)
	if err != nil {
		return c, err
	}
	if len(atts) == 0 {
		c.Skipped++
		log.Info("No unvalidated attachments found")
		return c, nil
	}

	for i := range atts {
		att := &atts[i]
		entry := log.WithFields(logrus.Fields{
			"attachment_id": att.ID,
			"file":          att.Filename,
		})

		n, err := s.ParseAttachment(ctx, att)
		if err != nil {
			c.Failures++
			entry.Errorf("Failed to parse roster: %v", err)
			continue
		}
		c.Parsed += n
		entry.WithField("parsed", n).Info("Parsed events from PDF")
	}

	log.WithFields(logrus.Fields{
		"parsed":   c.Parsed,
		"skipped":  c.Skipped,
		"failures": c.Failures,
	}).Info("Roster parse complete")
	return c, nil
}

// ParseAttachment derives and stores the events of one attachment and
// marks it validated, all in one transaction. It returns the number of
// events written.
func (s *Service) ParseAttachment(ctx context.Context, att *model.Attachment) (int, error) {
	sum, err := fingerprint.File(att.StoredPath)
	if err != nil {
		return 0, err
	}
	if sum != att.SHA256 {
		return 0, fmt.Errorf("stored file %s does not match fingerprint %s", att.StoredPath, att.SHA256)
	}

	text, err := s.extractor.FirstPageText(att.StoredPath)
	if err != nil {
		return 0, err
	}

	shifts, err := s.parser.Parse(text, att.SHA256)
	if err != nil {
		return 0, err
	}

	events := make([]model.Event, 0, len(shifts))
	for _, sh := range shifts {
		events = append(events, s.event(att, sh))
	}

	err = s.repo.Transaction(ctx, func(tx *repository.Repository) error {
		if err := tx.CreateEvents(ctx, events); err != nil {
			return err
		}
		return tx.MarkValidated(ctx, att.ID)
	})
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

func (s *Service) event(att *model.Attachment, sh roster.Shift) model.Event {
	return model.Event{
		EventUID:     sh.Key,
		AttachmentID: att.ID,
		SourceMsgID:  att.MsgID,
		StartUTC:     sh.StartUTC,
		EndUTC:       sh.EndUTC,
		LocalTZ:      s.tz,
		ShiftType:    sh.Category.Label,
		Location:     s.location,
		Status:       model.EventPlanned,
	}
}
