package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/careops/services/automation/internal/models"
)

func day(hour, minute int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, 0, 0, time.UTC)
}

func openBlock(open, close string) models.BusinessHour {
	return models.BusinessHour{IsOpen: true, OpenTime: open, CloseTime: close}
}

func TestAvailableSlotsFillsOpenBlock(t *testing.T) {
	slots := AvailableSlots(
		day(0, 0),
		[]models.BusinessHour{openBlock("09:00", "12:00")},
		nil,
		60,
		day(0, 0),
	)

	require.Len(t, slots, 3)
	require.Equal(t, day(9, 0), slots[0].StartsAt)
	require.Equal(t, day(10, 0), slots[1].StartsAt)
	require.Equal(t, day(11, 0), slots[2].StartsAt)
	require.Equal(t, day(12, 0), slots[2].EndsAt)
}

func TestAvailableSlotsSkipsBookedWindows(t *testing.T) {
	existing := []models.Booking{
		{Status: models.BookingConfirmed, StartsAt: day(10, 0), EndsAt: day(11, 0)},
	}
	slots := AvailableSlots(
		day(0, 0),
		[]models.BusinessHour{openBlock("09:00", "12:00")},
		existing,
		60,
		day(0, 0),
	)

	require.Len(t, slots, 2)
	require.Equal(t, day(9, 0), slots[0].StartsAt)
	require.Equal(t, day(11, 0), slots[1].StartsAt)
}

func TestAvailableSlotsIgnoresCancelledBookings(t *testing.T) {
	existing := []models.Booking{
		{Status: models.BookingCancelled, StartsAt: day(10, 0), EndsAt: day(11, 0)},
	}
	slots := AvailableSlots(
		day(0, 0),
		[]models.BusinessHour{openBlock("09:00", "12:00")},
		existing,
		60,
		day(0, 0),
	)

	require.Len(t, slots, 3)
}

func TestAvailableSlotsSkipsPast(t *testing.T) {
	slots := AvailableSlots(
		day(0, 0),
		[]models.BusinessHour{openBlock("09:00", "12:00")},
		nil,
		60,
		day(9, 30),
	)

	require.Len(t, slots, 2)
	require.Equal(t, day(9, 30), slots[0].StartsAt)
	require.Equal(t, day(10, 30), slots[1].StartsAt)
}

func TestAvailableSlotsClosedDay(t *testing.T) {
	slots := AvailableSlots(
		day(0, 0),
		[]models.BusinessHour{{IsOpen: false, OpenTime: "09:00", CloseTime: "17:00"}},
		nil,
		30,
		day(0, 0),
	)
	require.Empty(t, slots)
}

func TestAvailableSlotsSnapsToGrid(t *testing.T) {
	slots := AvailableSlots(
		day(0, 0),
		[]models.BusinessHour{openBlock("09:10", "10:30")},
		nil,
		30,
		day(0, 0),
	)

	require.NotEmpty(t, slots)
	require.Equal(t, day(9, 15), slots[0].StartsAt)
}

func TestAvailableSlotsKeepGridForOddDurations(t *testing.T) {
	slots := AvailableSlots(
		day(0, 0),
		[]models.BusinessHour{openBlock("09:00", "11:00")},
		nil,
		50,
		day(0, 0),
	)

	// A 50-minute slot ends off the grid; the next candidate snaps back on.
	require.Len(t, slots, 2)
	require.Equal(t, day(9, 0), slots[0].StartsAt)
	require.Equal(t, day(9, 50), slots[0].EndsAt)
	require.Equal(t, day(10, 0), slots[1].StartsAt)
	require.Equal(t, day(10, 50), slots[1].EndsAt)
}

func TestAvailableSlotsMultipleBlocks(t *testing.T) {
	slots := AvailableSlots(
		day(0, 0),
		[]models.BusinessHour{openBlock("09:00", "10:00"), openBlock("14:00", "15:00")},
		nil,
		30,
		day(0, 0),
	)

	require.Len(t, slots, 4)
	require.Equal(t, day(9, 0), slots[0].StartsAt)
	require.Equal(t, day(14, 30), slots[3].StartsAt)
}

func TestParseClockRejectsGarbage(t *testing.T) {
	for _, v := range []string{"", "9", "24:00", "12:60", "ab:cd"} {
		_, _, err := ParseClock(v)
		require.Error(t, err, "expected %q to be rejected", v)
	}

	h, m, err := ParseClock("08:45")
	require.NoError(t, err)
	require.Equal(t, 8, h)
	require.Equal(t, 45, m)
}
