package calendar

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/sirupsen/logrus"

	"shiftbot/internal/config"
)

// CalDAV pushes events to a CalDAV server such as iCloud
type CalDAV struct {
	client   *caldav.Client
	provider string
}

// NewCalDAV creates a CalDAV transport with basic auth. A nil httpClient
// uses http.DefaultClient.
func NewCalDAV(cfg *config.CalendarConfig, httpClient webdav.HTTPClient) (*CalDAV, error) {
	c, err := caldav.NewClient(webdav.HTTPClientWithBasicAuth(httpClient, cfg.Username, cfg.Password), cfg.CalDAVURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create CalDAV client: %w", err)
	}
	return &CalDAV{client: c, provider: providerTag(cfg.CalDAVURL)}, nil
}

// providerTag names iCloud endpoints after the service
func providerTag(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err == nil && strings.HasSuffix(u.Hostname(), "icloud.com") {
		return "icloud"
	}
	return "caldav"
}

func (c *CalDAV) Provider() string {
	return c.provider
}

// FindCalendar walks principal, home set and calendar collections
func (c *CalDAV) FindCalendar(ctx context.Context, name string) (*Handle, error) {
	principal, err := c.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find CalDAV principal: %w", err)
	}
	homeSet, err := c.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to find calendar home set: %w", err)
	}
	cals, err := c.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	for _, cal := range cals {
		if cal.Name == name {
			return &Handle{ID: cal.Path, Name: cal.Name}, nil
		}
	}
	return nil, nil
}

// Push PUTs the event as <calendar>/<uid>.ics. The event UID is the
// provider id.
func (c *CalDAV) Push(ctx context.Context, cal *Handle, p Payload) (string, error) {
	target := objectPath(cal.ID, p.UID)
	obj, err := c.client.PutCalendarObject(ctx, target, p.Calendar)
	if err != nil {
		return "", fmt.Errorf("failed to put event %s: %w", p.UID, err)
	}
	if obj.Path != target {
		logrus.WithFields(logrus.Fields{"uid": p.UID, "path": obj.Path}).
			Warnf("CalDAV server stored event outside %s", target)
	}
	return p.UID, nil
}

func objectPath(collection, uid string) string {
	return path.Join(collection, uid+".ics")
}
