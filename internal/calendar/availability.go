package calendar

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haseebbuilds/voice-agent/internal/observability/metrics"
	"github.com/haseebbuilds/voice-agent/pkg/logging"
)

var availabilityTracer = otel.Tracer("voiceagent.internal.calendar")

const (
	DefaultDaysAhead = 14
	MaxDaysAhead     = 90
)

// AvailabilityService turns raw source slots into bookable ones.
type AvailabilityService struct {
	source       SlotSource
	reservations ReservationLister
	defaultDays  int
	now          func() time.Time
	metrics      *metrics.IntakeMetrics
	logger       *logging.Logger
}

// Option customizes an AvailabilityService.
type Option func(*AvailabilityService)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *AvailabilityService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultDaysAhead sets the lookahead used when the caller passes 0.
func WithDefaultDaysAhead(days int) Option {
	return func(s *AvailabilityService) {
		if days >= 1 && days <= MaxDaysAhead {
			s.defaultDays = days
		}
	}
}

// WithMetrics records availability latency.
func WithMetrics(m *metrics.IntakeMetrics) Option {
	return func(s *AvailabilityService) {
		s.metrics = m
	}
}

// NewAvailabilityService wires a source and the reservation view.
func NewAvailabilityService(source SlotSource, reservations ReservationLister, logger *logging.Logger, opts ...Option) *AvailabilityService {
	if source == nil {
		panic("calendar: slot source required")
	}
	if reservations == nil {
		panic("calendar: reservation lister required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &AvailabilityService{
		source:       source,
		reservations: reservations,
		defaultDays:  DefaultDaysAhead,
		now:          func() time.Time { return time.Now().UTC() },
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Available yields bookable slots in chronological order. Every range over the
// sequence recomputes from the source and current reservations.
func (s *AvailabilityService) Available(ctx context.Context, daysAhead int) iter.Seq2[CalendarSlot, error] {
	return func(yield func(CalendarSlot, error) bool) {
		slots, err := s.compute(ctx, daysAhead)
		if err != nil {
			yield(CalendarSlot{}, err)
			return
		}
		for _, slot := range slots {
			if !yield(slot, nil) {
				return
			}
		}
	}
}

// ListAvailable collects Available into a slice. No availability is an empty slice.
func (s *AvailabilityService) ListAvailable(ctx context.Context, daysAhead int) ([]CalendarSlot, error) {
	out := []CalendarSlot{}
	for slot, err := range s.Available(ctx, daysAhead) {
		if err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, nil
}

// IsAvailable reports whether slot is currently bookable.
func (s *AvailabilityService) IsAvailable(ctx context.Context, slot CalendarSlot, daysAhead int) (bool, error) {
	for candidate, err := range s.Available(ctx, daysAhead) {
		if err != nil {
			return false, err
		}
		if candidate.Key() == slot.Key() {
			return true, nil
		}
	}
	return false, nil
}

func (s *AvailabilityService) compute(ctx context.Context, daysAhead int) (slots []CalendarSlot, err error) {
	if daysAhead == 0 {
		daysAhead = s.defaultDays
	}
	if daysAhead < 1 || daysAhead > MaxDaysAhead {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLookahead, daysAhead)
	}

	ctx, span := availabilityTracer.Start(ctx, "calendar.list_available")
	defer span.End()
	span.SetAttributes(attribute.Int("calendar.days_ahead", daysAhead))

	started := time.Now()
	defer func() {
		s.metrics.ObserveAvailability(time.Since(started).Seconds(), err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	from := s.now()
	to := from.AddDate(0, 0, daysAhead)

	raw, err := s.source.RawSlots(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("calendar: slot source: %w", err)
	}
	taken, err := s.reservations.ActiveTimes(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("calendar: reservations: %w", err)
	}
	held := make(map[int64]struct{}, len(taken))
	for _, t := range taken {
		held[t.Unix()] = struct{}{}
	}

	slots = make([]CalendarSlot, 0, len(raw))
	for _, start := range raw {
		if _, busy := held[start.Unix()]; busy {
			continue
		}
		slots = append(slots, NewSlot(start))
	}
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].DateTime.Before(slots[j].DateTime) })
	span.SetAttributes(attribute.Int("calendar.slots", len(slots)))
	s.logger.Debug("availability computed", "days_ahead", daysAhead, "raw", len(raw), "reserved", len(taken), "available", len(slots))
	return slots, nil
}
