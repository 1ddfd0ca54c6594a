package model

import "time"

// Run is the audit record of one pipeline invocation
type Run struct {
	ID            uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	TraceID       string     `json:"trace_id" gorm:"type:varchar(36);index"`
	StartedAtUTC  time.Time  `json:"started_at_utc" gorm:"column:started_at_utc;not null;index"`
	FinishedAtUTC *time.Time `json:"finished_at_utc,omitempty" gorm:"column:finished_at_utc"`

	Scanned  int `json:"scanned" gorm:"not null;default:0"`
	Matched  int `json:"matched" gorm:"not null;default:0"`
	Parsed   int `json:"parsed" gorm:"not null;default:0"`
	Upserted int `json:"upserted" gorm:"not null;default:0"`
	Skipped  int `json:"skipped" gorm:"not null;default:0"`
	Failures int `json:"failures" gorm:"not null;default:0"`

	Notes *string `json:"notes,omitempty" gorm:"type:text"`
}

// TableName specifies the table name for Run
func (Run) TableName() string {
	return "runs"
}

// All returns the tables owned by the pipeline in migration order
func All() []interface{} {
	return []interface{}{&Message{}, &Attachment{}, &Event{}, &Run{}}
}

// Counters are the six monotonic per-run tallies
type Counters struct {
	Scanned  int `json:"scanned"`
	Matched  int `json:"matched"`
	Parsed   int `json:"parsed"`
	Upserted int `json:"upserted"`
	Skipped  int `json:"skipped"`
	Failures int `json:"failures"`
}

// Add returns the field-wise sum of c and o
func (c Counters) Add(o Counters) Counters {
	return Counters{
		Scanned:  c.Scanned + o.Scanned,
		Matched:  c.Matched + o.Matched,
		Parsed:   c.Parsed + o.Parsed,
		Upserted: c.Upserted + o.Upserted,
		Skipped:  c.Skipped + o.Skipped,
		Failures: c.Failures + o.Failures,
	}
}

// Counters returns the tallies currently stored on the run
func (r *Run) Counters() Counters {
	return Counters{
		Scanned:  r.Scanned,
		Matched:  r.Matched,
		Parsed:   r.Parsed,
		Upserted: r.Upserted,
		Skipped:  r.Skipped,
		Failures: r.Failures,
	}
}

// Accumulate adds a delta to the stored tallies
func (r *Run) Accumulate(delta Counters) {
	sum := r.Counters().Add(delta)
	r.Scanned = sum.Scanned
	r.Matched = sum.Matched
	r.Parsed = sum.Parsed
	r.Upserted = sum.Upserted
	r.Skipped = sum.Skipped
	r.Failures = sum.Failures
}
