package models

import (
	"fmt"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into a UTC day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// DaysBetween returns the number of calendar days from start to end.
func DaysBetween(end, start time.Time) int {
	return int(Day(end).Sub(Day(start)).Hours() / 24)
}

// StayNights lists each night of a stay, check-out day excluded.
func StayNights(checkIn, checkOut time.Time) []time.Time {
	n := DaysBetween(checkOut, checkIn)
	if n <= 0 {
		return nil
	}
	nights := make([]time.Time, 0, n)
	start := Day(checkIn)
	for i := 0; i < n; i++ {
		nights = append(nights, start.AddDate(0, 0, i))
	}
	return nights
}

// HourLabel formats an hour of day as HH:00.
func HourLabel(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

// ParseHour accepts "HH:MM" on a whole hour and returns HH.
func ParseHour(s string) (int, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return 0, err
	}
	if t.Minute() != 0 {
		return 0, fmt.Errorf("start time %s is not on a whole hour", s)
	}
	return t.Hour(), nil
}
