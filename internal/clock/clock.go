// Package clock produces the store's civil (wall-clock) time.
//
// Transactions are stored in "timestamp without time zone" columns holding
// the organization's local time, so every value handed to the database or
// compared against stored timestamps must be a naive civil time: the local
// wall clock in the configured zone, tagged as UTC.
package clock

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

type Clock interface {
	Now() time.Time
}

type Civil struct {
	loc *time.Location
	now func() time.Time
}

func NewCivil(zone string) (*Civil, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", zone, err)
	}
	return &Civil{loc: loc, now: time.Now}, nil
}

func (c *Civil) Now() time.Time {
	return Naive(c.now().In(c.loc))
}

// Naive drops the zone of t while keeping its wall-clock reading.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Fixed is a manually advanced clock for tests.
type Fixed struct {
	T time.Time
}

func (f *Fixed) Now() time.Time {
	return f.T
}

func (f *Fixed) Advance(d time.Duration) {
	f.T = f.T.Add(d)
}
