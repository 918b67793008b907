// Package timegrid defines the clinic's fixed working-hour grid and the
// date/slot conversions the scheduling board is built on.
package timegrid

import (
	"errors"
	"fmt"
	"time"
)

// Working hours are a half-open range: the last bookable slot starts at
// CloseHour-1.
const (
	OpenHour  = 9
	CloseHour = 17
)

// ErrHourOutOfRange is returned for hours outside [OpenHour, CloseHour].
var ErrHourOutOfRange = errors.New("timegrid: hour outside working range")

// Hours returns the ordered bookable hours [OpenHour, CloseHour).
func Hours() []int {
	hours := make([]int, 0, CloseHour-OpenHour)
	for h := OpenHour; h < CloseHour; h++ {
		hours = append(hours, h)
	}
	return hours
}

// Contains reports whether h is a bookable hour.
func Contains(h int) bool {
	return h >= OpenHour && h < CloseHour
}

// Label renders a 12-hour clock label for an hour on the grid, e.g.
// 9 -> "9:00 AM", 13 -> "1:00 PM". CloseHour itself is accepted so row
// footers can label the end of the day.
func Label(h int) (string, error) {
	if h < OpenHour || h > CloseHour {
		return "", fmt.Errorf("%w: %d", ErrHourOutOfRange, h)
	}
	suffix := "AM"
	display := h
	switch {
	case h == 12:
		suffix = "PM"
	case h > 12:
		suffix = "PM"
		display = h - 12
	}
	return fmt.Sprintf("%d:00 %s", display, suffix), nil
}

// DayRange converts a calendar day into the inclusive-start/exclusive-end
// instant pair spanning local midnight to next midnight, as the backend's
// appointment listing expects.
func DayRange(date time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.Local
	}
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// SlotTimes returns the [start, end) instants of a one-hour slot on the
// given day.
func SlotTimes(date time.Time, hour int, loc *time.Location) (time.Time, time.Time, error) {
	if !Contains(hour) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %d", ErrHourOutOfRange, hour)
	}
	if loc == nil {
		loc = time.Local
	}
	start := time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, loc)
	return start, start.Add(time.Hour), nil
}

// ParseDate parses the YYYY-MM-DD date strings the admin UI sends.
func ParseDate(v string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("timegrid: parse date %q: %w", v, err)
	}
	return t, nil
}
