// Package calendar turns calendar dates and exchange times of day into
// absolute instants and supplies the per-session initialisation plan.
package calendar

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	// Embedded zone data keeps DST rules identical across hosts.
	_ "time/tzdata"

	"eventtrader/internal/alias"
	"eventtrader/pkg/exception"

	"github.com/yanun0323/errors"
)

// DefaultZone is the exchange time zone used when none is configured.
const DefaultZone = "America/New_York"

// LoadZone resolves an IANA zone name, falling back to DefaultZone for "".
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(err, "load zone %q", name)
	}
	return loc, nil
}

// Date is a calendar day without a zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, errors.Wrapf(err, "parse date %q", s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// TimeOfDay is a wall clock reading in the exchange zone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses HH:MM or HH:MM:SS.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, errors.Errorf("parse time of day %q: want HH:MM[:SS]", s)
	}
	vals := [3]int{}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return TimeOfDay{}, errors.Wrapf(err, "parse time of day %q", s)
		}
		vals[i] = v
	}
	tod := TimeOfDay{Hour: vals[0], Minute: vals[1], Second: vals[2]}
	if tod.Hour < 0 || tod.Hour > 23 || tod.Minute < 0 || tod.Minute > 59 || tod.Second < 0 || tod.Second > 59 {
		return TimeOfDay{}, errors.Errorf("parse time of day %q: out of range", s)
	}
	return tod, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Combine builds the instant at which the wall clock in loc reads tod on date.
// A reading skipped by a spring-forward transition returns ErrNonexistentTime,
// and one repeated by a fall-back transition returns ErrAmbiguousTime.
func Combine(date Date, tod TimeOfDay, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t := time.Date(date.Year, date.Month, date.Day, tod.Hour, tod.Minute, tod.Second, 0, loc)
	if !sameWall(t, date, tod) {
		return time.Time{}, errors.Wrapf(exception.ErrNonexistentTime, "%s %s %s", date, tod, loc)
	}
	for _, shift := range []time.Duration{-time.Hour, time.Hour} {
		if sameWall(t.Add(shift), date, tod) {
			return time.Time{}, errors.Wrapf(exception.ErrAmbiguousTime, "%s %s %s", date, tod, loc)
		}
	}
	return t, nil
}

func sameWall(t time.Time, date Date, tod TimeOfDay) bool {
	y, m, d := t.Date()
	h, mi, s := t.Clock()
	return y == date.Year && m == date.Month && d == date.Day &&
		h == tod.Hour && mi == tod.Minute && s == tod.Second
}

// Plan is the initialisation handed to a session once at start.
type Plan struct {
	Date         Date
	Location     *time.Location
	Announcement time.Time
	SessionEnd   time.Time
	Aliases      []alias.Config
}

// Source supplies the plan for a session date.
type Source interface {
	Plan(ctx context.Context, date Date) (Plan, error)
}
