package main

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	rrule "github.com/teambition/rrule-go"
)

// NextOccurrence computes the next occurrence date (local-midnight epoch
// millis) for a recurring task. The base date is the task's due date,
// else its scheduled date, else today; a base in the past is replaced by
// today so completing an overdue task never builds a backlog of past
// occurrences.
func NextOccurrence(task *Task, now time.Time) int64 {
	today := localMidnight(now)

	base := today
	switch {
	case task.DueDate != 0:
		base = localMidnight(dateFromMillis(task.DueDate))
	case task.ScheduledDate != 0:
		base = localMidnight(dateFromMillis(task.ScheduledDate))
	}
	if base.Before(today) {
		base = today
	}

	rule := strings.TrimSpace(task.Recurrence)

	if next, ok := nextFromRule(rule, base); ok {
		return next.UnixMilli()
	}
	return nextFromFallback(rule, base).UnixMilli()
}

// nextFromRule interprets the rule as an RFC5545 RRULE anchored at the
// base date and returns the first occurrence strictly after base+1s.
// Returns false when the rule does not parse or yields no further
// occurrence (e.g. an exhausted COUNT rule).
func nextFromRule(rule string, base time.Time) (time.Time, bool) {
	opt, err := rrule.StrToROption(strings.TrimPrefix(rule, "RRULE:"))
	if err != nil {
		return time.Time{}, false
	}
	opt.Dtstart = base

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return time.Time{}, false
	}

	next := r.After(base.Add(time.Second), false)
	if next.IsZero() {
		return time.Time{}, false
	}
	return localMidnight(next.In(time.Local)), true
}

// recurMatcher pairs a pattern with its date arithmetic. Matchers are
// evaluated in order; the final default makes the fallback total.
type recurMatcher struct {
	re   *regexp.Regexp
	next func(m []string, base time.Time) time.Time
}

var recurMatchers = []recurMatcher{
	// "every month on the 15th"
	{
		re: regexp.MustCompile(`^every month on the (\d{1,2})(?:st|nd|rd|th)?$`),
		next: func(m []string, base time.Time) time.Time {
			day, _ := strconv.Atoi(m[1])
			return nextMonthlyOrdinal(base, day)
		},
	},
	// "every day", "every 3 weeks", "every 2 months", "every year"
	{
		re: regexp.MustCompile(`^every (?:(\d+) )?(day|week|month|year)s?$`),
		next: func(m []string, base time.Time) time.Time {
			n := 1
			if m[1] != "" {
				n, _ = strconv.Atoi(m[1])
			}
			switch m[2] {
			case "day":
				return base.AddDate(0, 0, n)
			case "week":
				return base.AddDate(0, 0, 7*n)
			case "month":
				return addMonthsClamped(base, n)
			default:
				return addMonthsClamped(base, 12*n)
			}
		},
	},
	// "every monday"
	{
		re: regexp.MustCompile(`^every (monday|tuesday|wednesday|thursday|friday|saturday|sunday)$`),
		next: func(m []string, base time.Time) time.Time {
			target := weekdayNames[m[1]]
			next := base.AddDate(0, 0, 1)
			for next.Weekday() != target {
				next = next.AddDate(0, 0, 1)
			}
			return next
		},
	},
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// nextFromFallback runs the permissive natural-language matchers.
// Anything unrecognized advances one day; it never fails.
func nextFromFallback(rule string, base time.Time) time.Time {
	normalized := strings.ToLower(strings.TrimSpace(rule))
	for _, matcher := range recurMatchers {
		if m := matcher.re.FindStringSubmatch(normalized); m != nil {
			return matcher.next(m, base)
		}
	}
	return base.AddDate(0, 0, 1)
}

// nextMonthlyOrdinal advances to the next occurrence of the given
// day-of-month: this month if the base hasn't reached it yet, otherwise
// next month, clamping to the last valid day either way.
func nextMonthlyOrdinal(base time.Time, day int) time.Time {
	if day < 1 {
		day = 1
	}

	year, month := base.Year(), base.Month()
	if base.Day() >= day {
		month++
		if month > time.December {
			month = time.January
			year++
		}
	}

	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.Local)
}
