package main

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// localMidnight truncates a time to midnight in the local timezone.
func localMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

// parseLocalDate parses a YYYY-MM-DD date into local-midnight epoch millis.
func parseLocalDate(s string) (int64, bool) {
	t, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return 0, false
	}
	return t.UnixMilli(), true
}

// formatLocalDate renders local-midnight epoch millis as YYYY-MM-DD.
func formatLocalDate(ms int64) string {
	return time.UnixMilli(ms).Local().Format(dateLayout)
}

// dateFromMillis converts epoch millis into a local time.
func dateFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).Local()
}

// indentWidth returns the raw leading-whitespace character count of a line.
func indentWidth(line string) int {
	count := 0
	for _, r := range line {
		if r != ' ' && r != '\t' {
			break
		}
		count++
	}
	return count
}

// indentLevel converts a raw indentation width into a logical nesting level.
func indentLevel(line string, tabWidth int) int {
	if tabWidth <= 0 {
		tabWidth = 2
	}
	return indentWidth(line) / tabWidth
}

// daysInMonth returns the number of days in the given month.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.Local).Day()
}

// addMonthsClamped adds n calendar months, clamping the day-of-month to the
// last valid day of the target month instead of letting it roll over.
func addMonthsClamped(t time.Time, n int) time.Time {
	year, month := t.Year(), t.Month()
	total := int(month) - 1 + n
	year += total / 12
	month = time.Month(total%12 + 1)
	if total < 0 {
		// Go's % keeps the sign of the dividend.
		year--
		month += 12
	}
	day := t.Day()
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.Local)
}

// relativeTime renders the distance between two times for display,
// e.g. "in 3 days" or "2 weeks ago".
func relativeTime(t, now time.Time) string {
	days := int(localMidnight(t).Sub(localMidnight(now)).Hours() / 24)

	format := func(n int, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	abs := days
	if abs < 0 {
		abs = -abs
	}

	var span string
	switch {
	case days == 0:
		return "today"
	case abs == 1 && days > 0:
		return "tomorrow"
	case abs == 1:
		return "yesterday"
	case abs < 7:
		span = format(abs, "day")
	case abs < 30:
		span = format(abs/7, "week")
	case abs < 365:
		span = format(abs/30, "month")
	default:
		span = format(abs/365, "year")
	}

	if days > 0 {
		return "in " + span
	}
	return span + " ago"
}
