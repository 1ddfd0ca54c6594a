package roster

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"shiftbot/internal/model"
)

// ErrNoPerson is returned when the parser has no name to look for
var ErrNoPerson = errors.New("roster person is not configured")

// LayoutError reports text that does not match the roster layout. The
// whole document is rejected.
type LayoutError struct {
	Line   int
	Reason string
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("roster layout mismatch at line %d: %s", e.Line+1, e.Reason)
}

// Shift is one derived occurrence for the configured person
type Shift struct {
	Key      string
	Category Category
	StartUTC time.Time
	EndUTC   time.Time
}

// Parser extracts shifts from roster text
type Parser struct {
	layout Layout
	person string
	loc    *time.Location
}

// NewParser creates a parser matching lines that contain person
func NewParser(layout Layout, person string, loc *time.Location) *Parser {
	return &Parser{layout: layout, person: person, loc: loc}
}

// Parse scans text for day blocks and returns the person's shifts in text
// order. fingerprint is the digest of the source document and prefixes every
// key.
func (p *Parser) Parse(text, fingerprint string) ([]Shift, error) {
	if p.person == "" {
		return nil, ErrNoPerson
	}

	lines := strings.Split(text, "\n")
	seen := make(map[string]int)
	var shifts []Shift

	for i, line := range lines {
		if !strings.HasPrefix(line, " ") {
			continue
		}
		if i+p.layout.BlockSize > len(lines) {
			return nil, &LayoutError{Line: i, Reason: "day block runs past the end of the page"}
		}

		for j := 0; j < p.layout.BlockSize; j++ {
			if !strings.Contains(lines[i+j], p.person) {
				continue
			}

			category, ok := p.layout.CategoryAt(j)
			if !ok {
				return nil, &LayoutError{Line: i + j, Reason: fmt.Sprintf("name found at unknown slot %d", j)}
			}

			shift, err := p.shift(lines[i+p.layout.DateOffset], category, fingerprint)
			if err != nil {
				return nil, &LayoutError{Line: i + p.layout.DateOffset, Reason: err.Error()}
			}
			if prev, dup := seen[shift.Key]; dup {
				return nil, &LayoutError{Line: i + j, Reason: fmt.Sprintf("shift %s already derived from line %d", shift.Key, prev+1)}
			}
			seen[shift.Key] = i + j
			shifts = append(shifts, shift)
		}
	}

	return shifts, nil
}

// shift builds one occurrence. The end is the local wall clock start plus
// the duration, so a night shift across a DST switch keeps its 09:00 end.
func (p *Parser) shift(dateLine string, c Category, fingerprint string) (Shift, error) {
	day, err := time.ParseInLocation(p.layout.DateLayout, strings.TrimSpace(dateLine), p.loc)
	if err != nil {
		return Shift{}, fmt.Errorf("invalid date %q", strings.TrimSpace(dateLine))
	}

	y, m, d := day.Date()
	start := time.Date(y, m, d, c.StartHour, c.StartMinute, 0, 0, p.loc)
	end := time.Date(y, m, d, c.StartHour+c.DurationHours, c.StartMinute, 0, 0, p.loc)
	if !end.After(start) {
		return Shift{}, fmt.Errorf("%s on %s does not end after it starts", c.Name, day.Format("2006-01-02"))
	}

	return Shift{
		Key:      model.EventUIDFor(fingerprint, start),
		Category: c,
		StartUTC: start.UTC(),
		EndUTC:   end.UTC(),
	}, nil
}
