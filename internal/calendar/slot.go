package calendar

import (
	"context"
	"errors"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	timeLayout  = "15:04"
	labelLayout = "January 02, 2006 at 03:04 PM"
)

// ErrInvalidLookahead is returned for a days-ahead value outside the supported range.
var ErrInvalidLookahead = errors.New("calendar: days_ahead out of range")

// ErrInvalidSlot is returned when a slot's date and time cannot be parsed.
var ErrInvalidSlot = errors.New("calendar: invalid slot")

// CalendarSlot is a bookable window, produced on demand and never persisted.
type CalendarSlot struct {
	Date     string    `json:"date"`
	Time     string    `json:"time"`
	DateTime time.Time `json:"datetime"`
	Label    string    `json:"formatted"`
}

// NewSlot derives the date, time and label for a slot start.
func NewSlot(start time.Time) CalendarSlot {
	return CalendarSlot{
		Date:     start.Format(dateLayout),
		Time:     start.Format(timeLayout),
		DateTime: start,
		Label:    start.Format(labelLayout),
	}
}

// ParseSlot rebuilds a slot from its date and time parts in loc.
func ParseSlot(date, clock string, loc *time.Location) (CalendarSlot, error) {
	if loc == nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation(dateLayout+" "+timeLayout, date+" "+clock, loc)
	if err != nil {
		return CalendarSlot{}, errors.Join(ErrInvalidSlot, err)
	}
	return NewSlot(start), nil
}

// Key identifies the slot timestamp independent of its location.
func (s CalendarSlot) Key() int64 {
	return s.DateTime.Unix()
}

// SlotSource supplies raw slot start times within [from, to].
type SlotSource interface {
	RawSlots(ctx context.Context, from, to time.Time) ([]time.Time, error)
}

// ReservationLister reports timestamps already held by pending or confirmed appointments.
type ReservationLister interface {
	ActiveTimes(ctx context.Context, from, to time.Time) ([]time.Time, error)
}
