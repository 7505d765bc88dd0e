package booking

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"example.com/careops/services/automation/internal/models"
)

// SlotGranularity is the grid slots snap to. Business hours that do not
// start on the grid are rounded inward.
const SlotGranularity = 15 * time.Minute

// Slot is a candidate bookable window of fixed duration within active
// business hours.
type Slot struct {
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// Overlaps reports whether the slot intersects the half-open interval
// [startsAt, endsAt).
func (s Slot) Overlaps(startsAt, endsAt time.Time) bool {
	return s.StartsAt.Before(endsAt) && s.EndsAt.After(startsAt)
}

// ParseClock parses an "HH:MM" business-hours boundary.
func ParseClock(v string) (hour, minute int, err error) {
	parts := strings.SplitN(v, ":", 2)
	if len(parts) != 2 {
		return 0, 0, errors.Errorf("invalid clock value %q", v)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, errors.Errorf("invalid hour in %q", v)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, errors.Errorf("invalid minute in %q", v)
	}
	return hour, minute, nil
}

// AvailableSlots computes the ordered, non-overlapping candidate slots for
// one date. The result is recomputed per request; nothing is cached here.
//
// hours are the business-hours rows for the target weekday. existing are the
// day's bookings; cancelled ones do not block. durationMins comes from the
// requested service, falling back to the workspace default. A day whose rows
// are all closed yields an empty result, not an error.
func AvailableSlots(
	date time.Time,
	hours []models.BusinessHour,
	existing []models.Booking,
	durationMins int,
	now time.Time,
) []Slot {
	if durationMins <= 0 {
		return nil
	}
	duration := time.Duration(durationMins) * time.Minute
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	blocking := existing[:0:0]
	for _, b := range existing {
		if b.Status != models.BookingCancelled {
			blocking = append(blocking, b)
		}
	}

	var slots []Slot
	for _, block := range hours {
		if !block.IsOpen {
			continue
		}
		openH, openM, err := ParseClock(block.OpenTime)
		if err != nil {
			continue
		}
		closeH, closeM, err := ParseClock(block.CloseTime)
		if err != nil {
			continue
		}

		cursor := dayStart.Add(time.Duration(openH)*time.Hour + time.Duration(openM)*time.Minute)
		blockEnd := dayStart.Add(time.Duration(closeH)*time.Hour + time.Duration(closeM)*time.Minute)
		cursor = snapUp(cursor, dayStart)

		for !cursor.Add(duration).After(blockEnd) {
			end := cursor.Add(duration)

			if cursor.Before(now) {
				cursor = cursor.Add(SlotGranularity)
				continue
			}

			candidate := Slot{StartsAt: cursor, EndsAt: end}
			if !overlapsAny(candidate, blocking) {
				slots = append(slots, candidate)
				// Re-snap so durations off the grid do not shift every
				// following candidate.
				cursor = snapUp(end, dayStart)
				continue
			}
			cursor = cursor.Add(SlotGranularity)
		}
	}
	return slots
}

func overlapsAny(s Slot, bookings []models.Booking) bool {
	for _, b := range bookings {
		if s.Overlaps(b.StartsAt, b.EndsAt) {
			return true
		}
	}
	return false
}

// snapUp rounds t up to the next grid point relative to dayStart.
func snapUp(t, dayStart time.Time) time.Time {
	offset := t.Sub(dayStart)
	if rem := offset % SlotGranularity; rem != 0 {
		offset += SlotGranularity - rem
	}
	return dayStart.Add(offset)
}
