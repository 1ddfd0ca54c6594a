// Package roster turns the first page text of a shift roster into shifts
// for one person.
package roster

// Category is one kind of shift and where it sits inside a day block
type Category struct {
	Name          string
	Label         string
	Offset        int
	StartHour     int
	StartMinute   int
	DurationHours int
}

// Layout describes the roster page: every day starts at a line with a
// leading space, its date follows DateOffset lines later, and the person's
// name on the line at a category offset assigns that shift.
type Layout struct {
	DateOffset int
	BlockSize  int
	DateLayout string
	Categories []Category
}

// DefaultLayout is the layout of the clinic roster PDFs
func DefaultLayout() Layout {
	return Layout{
		DateOffset: 1,
		BlockSize:  10,
		DateLayout: "02.01.06",
		Categories: []Category{
			{Name: "DAYSHIFT", Label: "Dienst Tag", Offset: 4, StartHour: 9, DurationHours: 12},
			{Name: "NIGHTSHIFT", Label: "Dienst Nacht", Offset: 7, StartHour: 21, DurationHours: 12},
			{Name: "DAYSHIFT_BACKUP", Label: "Rufbereitschaft Tag", Offset: 8, StartHour: 9, DurationHours: 1},
			{Name: "NIGHTSHIFT_BACKUP", Label: "Rufbereitschaft Nacht", Offset: 9, StartHour: 21, DurationHours: 1},
		},
	}
}

// CategoryAt returns the category assigned to a block offset
func (l Layout) CategoryAt(offset int) (Category, bool) {
	for _, c := range l.Categories {
		if c.Offset == offset {
			return c, true
		}
	}
	return Category{}, false
}
