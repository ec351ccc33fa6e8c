package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// BusyPeriod is a block of time the calendar provider reports as taken.
type BusyPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether [start, end) intersects the busy period.
func (b BusyPeriod) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && end.After(b.Start)
}

// BusyPeriodSource stands in for a calendar provider's free/busy query.
type BusyPeriodSource interface {
	BusyPeriods(ctx context.Context, from, to time.Time) ([]BusyPeriod, error)
}

// StaticBusySource is an in-memory BusyPeriodSource.
type StaticBusySource struct {
	mu      sync.RWMutex
	periods []BusyPeriod
}

// NewStaticBusySource returns a source seeded with periods.
func NewStaticBusySource(periods ...BusyPeriod) *StaticBusySource {
	return &StaticBusySource{periods: append([]BusyPeriod(nil), periods...)}
}

// Add registers another busy period.
func (s *StaticBusySource) Add(p BusyPeriod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods = append(s.periods, p)
}

func (s *StaticBusySource) BusyPeriods(ctx context.Context, from, to time.Time) ([]BusyPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []BusyPeriod
	for _, p := range s.periods {
		if p.Overlaps(from, to) {
			out = append(out, p)
		}
	}
	return out, nil
}

// BusinessHoursConfig controls slot generation.
type BusinessHoursConfig struct {
	Location        *time.Location
	StartHour       int
	EndHour         int
	SlotDuration    time.Duration
	IncludeWeekends bool
}

// BusinessHoursSource generates fixed-length slots inside business hours and
// removes any that overlap a busy period.
type BusinessHoursSource struct {
	cfg  BusinessHoursConfig
	busy BusyPeriodSource
}

// NewBusinessHoursSource validates cfg and returns a source. busy may be nil.
func NewBusinessHoursSource(cfg BusinessHoursConfig, busy BusyPeriodSource) (*BusinessHoursSource, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SlotDuration <= 0 {
		cfg.SlotDuration = 30 * time.Minute
	}
	if cfg.StartHour < 0 || cfg.EndHour > 24 || cfg.StartHour >= cfg.EndHour {
		return nil, fmt.Errorf("calendar: invalid business hours %d-%d", cfg.StartHour, cfg.EndHour)
	}
	return &BusinessHoursSource{cfg: cfg, busy: busy}, nil
}

func (s *BusinessHoursSource) RawSlots(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	if !to.After(from) {
		return nil, nil
	}
	var busy []BusyPeriod
	if s.busy != nil {
		var err error
		busy, err = s.busy.BusyPeriods(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("calendar: busy periods: %w", err)
		}
	}

	loc := s.cfg.Location
	localFrom := from.In(loc)
	day := time.Date(localFrom.Year(), localFrom.Month(), localFrom.Day(), 0, 0, 0, 0, loc)

	var out []time.Time
	for !day.After(to) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.cfg.IncludeWeekends || !isWeekend(day) {
			dayEnd := time.Date(day.Year(), day.Month(), day.Day(), s.cfg.EndHour, 0, 0, 0, loc)
			for start := time.Date(day.Year(), day.Month(), day.Day(), s.cfg.StartHour, 0, 0, 0, loc); !start.Add(s.cfg.SlotDuration).After(dayEnd); start = start.Add(s.cfg.SlotDuration) {
				if start.Before(from) || start.After(to) {
					continue
				}
				if overlapsAny(busy, start, start.Add(s.cfg.SlotDuration)) {
					continue
				}
				out = append(out, start)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

func overlapsAny(busy []BusyPeriod, start, end time.Time) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
