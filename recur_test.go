package main

import (
	"testing"
	"time"
)

func recurTask(recurrence, due string) *Task {
	task := &Task{Recurrence: recurrence}
	if due != "" {
		task.DueDate, _ = parseLocalDate(due)
	}
	return task
}

func TestNextOccurrenceFallback(t *testing.T) {
	now := time.Date(2024, time.January, 1, 10, 0, 0, 0, time.Local)

	tests := []struct {
		rule string
		due  string
		want string
	}{
		{"every day", "2024-06-01", "2024-06-02"},
		{"every 3 days", "2024-06-01", "2024-06-04"},
		{"every week", "2024-06-01", "2024-06-08"},
		{"every 2 weeks", "2024-06-01", "2024-06-15"},
		{"every month", "2024-06-15", "2024-07-15"},
		{"every year", "2024-06-01", "2025-06-01"},
		{"Every Week", "2024-06-01", "2024-06-08"}, // case-insensitive
		{"whenever I feel like it", "2024-06-01", "2024-06-02"},
	}
	for _, tt := range tests {
		got := formatLocalDate(NextOccurrence(recurTask(tt.rule, tt.due), now))
		if got != tt.want {
			t.Errorf("NextOccurrence(%q, due %s) = %s, want %s", tt.rule, tt.due, got, tt.want)
		}
	}
}

func TestNextOccurrenceMonthClamping(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.Local)

	tests := []struct {
		rule string
		due  string
		want string
	}{
		{"every month", "2024-01-31", "2024-02-29"},
		{"every month", "2023-01-31", "2024-02-01"}, // past due resets to today, then +1 month
		{"every month on the 31st", "2024-02-15", "2024-02-29"},
		{"every month on the 31st", "2024-04-15", "2024-04-30"},
		{"every month on the 15th", "2024-04-15", "2024-05-15"},
		{"every month on the 15th", "2024-04-10", "2024-04-15"},
	}
	for _, tt := range tests {
		got := formatLocalDate(NextOccurrence(recurTask(tt.rule, tt.due), now))
		if got != tt.want {
			t.Errorf("NextOccurrence(%q, due %s) = %s, want %s", tt.rule, tt.due, got, tt.want)
		}
	}
}

func TestNextOccurrenceWeekday(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.Local)

	// 2024-06-03 is a Monday.
	tests := []struct {
		rule string
		due  string
		want string
	}{
		{"every monday", "2024-06-03", "2024-06-10"},
		{"every friday", "2024-06-03", "2024-06-07"},
		{"every sunday", "2024-06-03", "2024-06-09"},
	}
	for _, tt := range tests {
		got := formatLocalDate(NextOccurrence(recurTask(tt.rule, tt.due), now))
		if got != tt.want {
			t.Errorf("NextOccurrence(%q, due %s) = %s, want %s", tt.rule, tt.due, got, tt.want)
		}
	}
}

func TestNextOccurrenceRRule(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.Local)

	tests := []struct {
		rule string
		due  string
		want string
	}{
		{"FREQ=DAILY", "2024-06-01", "2024-06-02"},
		{"FREQ=WEEKLY", "2024-06-01", "2024-06-08"},
		{"RRULE:FREQ=DAILY;INTERVAL=3", "2024-06-01", "2024-06-04"},
		{"FREQ=MONTHLY;BYMONTHDAY=10", "2024-06-01", "2024-06-10"},
	}
	for _, tt := range tests {
		got := formatLocalDate(NextOccurrence(recurTask(tt.rule, tt.due), now))
		if got != tt.want {
			t.Errorf("NextOccurrence(%q, due %s) = %s, want %s", tt.rule, tt.due, got, tt.want)
		}
	}
}

func TestNextOccurrencePastBaseUsesToday(t *testing.T) {
	now := time.Date(2024, time.June, 20, 8, 0, 0, 0, time.Local)
	got := formatLocalDate(NextOccurrence(recurTask("every week", "2024-01-01"), now))
	if got != "2024-06-27" {
		t.Errorf("got %s, want one week after today", got)
	}
}

func TestNextOccurrenceScheduledBase(t *testing.T) {
	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.Local)
	task := &Task{Recurrence: "every day"}
	task.ScheduledDate, _ = parseLocalDate("2024-06-01")

	got := formatLocalDate(NextOccurrence(task, now))
	if got != "2024-06-02" {
		t.Errorf("got %s, want scheduled date + 1 day", got)
	}
}

func TestNextOccurrenceNoDatesUsesToday(t *testing.T) {
	now := time.Date(2024, time.June, 20, 8, 0, 0, 0, time.Local)
	got := formatLocalDate(NextOccurrence(recurTask("every day", ""), now))
	if got != "2024-06-21" {
		t.Errorf("got %s, want tomorrow", got)
	}
}
