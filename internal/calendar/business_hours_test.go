package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessHoursSourceGeneratesWeekdaySlots(t *testing.T) {
	src, err := NewBusinessHoursSource(BusinessHoursConfig{StartHour: 9, EndHour: 17, SlotDuration: 30 * time.Minute}, nil)
	require.NoError(t, err)

	// Friday 2024-05-31 16:00 through Monday 2024-06-03 10:00.
	from := time.Date(2024, 5, 31, 16, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

	slots, err := src.RawSlots(context.Background(), from, to)
	require.NoError(t, err)

	want := []time.Time{
		time.Date(2024, 5, 31, 16, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 31, 16, 30, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, slots)
}

func TestBusinessHoursSourceIncludeWeekends(t *testing.T) {
	src, err := NewBusinessHoursSource(BusinessHoursConfig{StartHour: 9, EndHour: 10, IncludeWeekends: true}, nil)
	require.NoError(t, err)

	from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) // Saturday
	to := time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)
	slots, err := src.RawSlots(context.Background(), from, to)
	require.NoError(t, err)
	assert.Len(t, slots, 2)
}

func TestBusinessHoursSourceSubtractsBusyPeriods(t *testing.T) {
	busy := NewStaticBusySource(BusyPeriod{
		Start: time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
	})
	src, err := NewBusinessHoursSource(BusinessHoursConfig{StartHour: 9, EndHour: 11}, busy)
	require.NoError(t, err)

	from := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 3, 23, 0, 0, 0, time.UTC)
	slots, err := src.RawSlots(context.Background(), from, to)
	require.NoError(t, err)

	want := []time.Time{
		time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 3, 10, 30, 0, 0, time.UTC),
	}
	assert.Equal(t, want, slots)
}

func TestBusinessHoursSourceUsesLocation(t *testing.T) {
	loc := time.FixedZone("EST", -5*60*60)
	src, err := NewBusinessHoursSource(BusinessHoursConfig{Location: loc, StartHour: 9, EndHour: 10}, nil)
	require.NoError(t, err)

	from := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 3, 23, 0, 0, 0, time.UTC)
	slots, err := src.RawSlots(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, 14, slots[0].UTC().Hour())
}

func TestNewBusinessHoursSourceRejectsInvertedHours(t *testing.T) {
	_, err := NewBusinessHoursSource(BusinessHoursConfig{StartHour: 17, EndHour: 9}, nil)
	assert.Error(t, err)
}

func TestSlotLabels(t *testing.T) {
	slot := NewSlot(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-06-01", slot.Date)
	assert.Equal(t, "10:00", slot.Time)
	assert.Equal(t, "June 01, 2024 at 10:00 AM", slot.Label)

	parsed, err := ParseSlot("2024-06-01", "10:00", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, slot.Key(), parsed.Key())

	_, err = ParseSlot("2024-06-01", "ten", time.UTC)
	assert.ErrorIs(t, err, ErrInvalidSlot)
}
