// Package publish pushes planned shift events to the remote calendar.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"shiftbot/internal/calendar"
	"shiftbot/internal/model"
	"shiftbot/internal/repository"
)

// Service runs the publish stage
type Service struct {
	repo         *repository.Repository
	transport    calendar.Transport
	calendarName string

	Now func() time.Time
}

// NewService creates a publish stage targeting the named calendar
func NewService(repo *repository.Repository, transport calendar.Transport, calendarName string) *Service {
	return &Service{
		repo:         repo,
		transport:    transport,
		calendarName: calendarName,
		Now:          time.Now,
	}
}

// Run pushes every planned event without provider linkage. A failed push
// is recorded on the event, which stays planned for the next run.
func (s *Service) Run(ctx context.Context, log logrus.FieldLogger) (model.Counters, error) {
	var c model.Counters

	cal, err := s.transport.FindCalendar(ctx, s.calendarName)
	if err != nil {
		return c, fmt.Errorf("failed to look up calendar %q: %w", s.calendarName, err)
	}
	if cal == nil {
		c.Skipped++
		log.WithField("calendar", s.calendarName).Warn("Calendar not found, nothing published")
		return c, nil
	}

	events, err := s.repo.PendingPublish(ctx)
	if err != nil {
		return c, err
	}

	for i := range events {
		ev := &events[i]
		entry := log.WithField("event_uid", ev.EventUID)

		if err := s.publish(ctx, cal, ev); err != nil {
			c.Failures++
			entry.Errorf("Failed to publish event: %v", err)
			if rerr := s.repo.RecordPublishError(ctx, ev.EventUID, err.Error()); rerr != nil {
				entry.Errorf("Failed to record publish error: %v", rerr)
			}
			continue
		}
		c.Upserted++
		entry.Info("Event published")
	}

	log.WithFields(logrus.Fields{
		"calendar": s.calendarName,
		"upserted": c.Upserted,
		"skipped":  c.Skipped,
		"failures": c.Failures,
	}).Info("Calendar publish complete")
	return c, nil
}

func (s *Service) publish(ctx context.Context, cal *calendar.Handle, ev *model.Event) error {
	now := s.Now().UTC()

	payload, err := calendar.Render(Entry(ev), now)
	if err != nil {
		return err
	}

	remoteID, err := s.transport.Push(ctx, cal, payload)
	if err != nil {
		return err
	}

	return s.repo.MarkSynced(ctx, ev.EventUID, repository.Linkage{
		Provider:        s.transport.Provider(),
		ProviderEventID: remoteID,
		Checksum:        payload.Checksum,
		SyncedAt:        now,
	})
}

// Entry maps a stored event to its calendar representation
func Entry(ev *model.Event) calendar.Entry {
	filename := ""
	if ev.Attachment != nil {
		filename = ev.Attachment.Filename
	}
	return calendar.Entry{
		UID:         ev.EventUID,
		Summary:     ev.ShiftType,
		Description: fmt.Sprintf("Shift imported from PDF (file: %s)", filename),
		Location:    ev.Location,
		Start:       ev.StartUTC,
		End:         ev.EndUTC,
	}
}
