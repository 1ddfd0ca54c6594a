package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"shiftbot/internal/config"
)

// Google pushes events through the Google Calendar API
type Google struct {
	service *gcal.Service
}

// NewGoogle creates a Google Calendar transport from a pre-minted refresh
// token. Extra client options are appended after the token source.
func NewGoogle(ctx context.Context, cfg *config.CalendarConfig, opts ...option.ClientOption) (*Google, error) {
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gcal.CalendarScope},
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	opts = append([]option.ClientOption{option.WithTokenSource(tokenSource)}, opts...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Calendar service: %w", err)
	}
	return &Google{service: service}, nil
}

func (g *Google) Provider() string {
	return "google"
}

// FindCalendar matches the calendar list entry by summary
func (g *Google) FindCalendar(ctx context.Context, name string) (*Handle, error) {
	var found *Handle
	err := g.service.CalendarList.List().Pages(ctx, func(list *gcal.CalendarList) error {
		for _, item := range list.Items {
			if found == nil && item.Summary == name {
				found = &Handle{ID: item.Id, Name: item.Summary}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	return found, nil
}

// Push imports the event under its iCalendar UID
func (g *Google) Push(ctx context.Context, cal *Handle, p Payload) (string, error) {
	ev := &gcal.Event{
		ICalUID:     p.UID,
		Summary:     p.Summary,
		Description: p.Description,
		Location:    p.Location,
		Start:       &gcal.EventDateTime{DateTime: p.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         &gcal.EventDateTime{DateTime: p.End.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}

	created, err := g.service.Events.Import(cal.ID, ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to import event %s: %w", p.UID, err)
	}
	return created.Id, nil
}
