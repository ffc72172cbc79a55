// Package timeutil holds the minute-precision clock arithmetic the
// scheduling core is built on. Times are five character "HH:MM" strings,
// dates are civil dates carried as time.Time values truncated to midnight.
package timeutil

import (
	"fmt"
	"time"
)

// TimeToMinutes parses an "HH:MM" clock string into minutes since midnight.
func TimeToMinutes(clock string) (int, error) {
	if len(clock) != 5 || clock[2] != ':' {
		return 0, fmt.Errorf("invalid clock time %q", clock)
	}

	var h, m int
	if _, err := fmt.Sscanf(clock, "%02d:%02d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", clock, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", clock)
	}

	return h*60 + m, nil
}

// MinutesToTime renders minutes since midnight as a zero padded "HH:MM"
// string. Values of 1440 or more are not wrapped; keeping an end time
// inside the same day is the caller's concern.
func MinutesToTime(total int) string {
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// CalculateEndTime derives the end clock string for a start time and a
// duration in minutes.
func CalculateEndTime(start string, durationMinutes int) (string, error) {
	m, err := TimeToMinutes(start)
	if err != nil {
		return "", err
	}
	return MinutesToTime(m + durationMinutes), nil
}

// DoTimesOverlap reports whether two half-open minute ranges intersect.
// Ranges that exactly abut (one ends where the other starts) do not overlap.
func DoTimesOverlap(start1, end1, start2, end2 int) bool {
	return start1 < end2 && start2 < end1
}

// SameDate reports whether two timestamps fall on the same civil date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

var ptWeekdays = [...]string{
	"domingo",
	"segunda-feira",
	"terça-feira",
	"quarta-feira",
	"quinta-feira",
	"sexta-feira",
	"sábado",
}

var ptMonths = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// FormatLongDate renders a civil date in the long pt-BR form used in
// patient facing messages, e.g. "segunda-feira, 2 de junho de 2025".
func FormatLongDate(d time.Time) string {
	return fmt.Sprintf("%s, %d de %s de %d",
		ptWeekdays[d.Weekday()], d.Day(), ptMonths[d.Month()-1], d.Year())
}
