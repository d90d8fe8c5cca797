package main

import (
	"fmt"
	"slices"
)

// Date field names used by parsing, querying and rewriting.
const (
	fieldStart     = "start"
	fieldScheduled = "scheduled"
	fieldDue       = "due"
	fieldCompleted = "completion"
	fieldCreated   = "created"
)

// Task is a structured record derived from one markdown checklist line.
// Dates are local-midnight epoch millis; zero means absent. Priority is
// 1 (lowest) to 5 (highest); zero means none.
type Task struct {
	ID               string   `json:"id"`
	FilePath         string   `json:"filePath"`
	Line             int      `json:"line"` // 0-based line number at index time
	Content          string   `json:"content"`
	OriginalMarkdown string   `json:"originalMarkdown"`
	Status           string   `json:"status"` // single status character, e.g. " ", "x", "/"
	Completed        bool     `json:"completed"`
	StartDate        int64    `json:"startDate,omitempty"`
	ScheduledDate    int64    `json:"scheduledDate,omitempty"`
	DueDate          int64    `json:"dueDate,omitempty"`
	CompletedDate    int64    `json:"completedDate,omitempty"`
	CreatedDate      int64    `json:"createdDate,omitempty"`
	Priority         int      `json:"priority,omitempty"`
	Project          string   `json:"project,omitempty"`
	Context          string   `json:"context,omitempty"`
	Tags             []string `json:"tags,omitempty"` // each with its leading sigil
	Recurrence       string   `json:"recurrence,omitempty"`

	// UseAsDateType hints which date field a plain date marker populated
	// when the source was ambiguous. Transient, never persisted.
	UseAsDateType string `json:"-"`
}

// taskID derives the stable task id from its source location.
func taskID(filePath string, line int) string {
	return fmt.Sprintf("%s-L%d", filePath, line)
}

// dateField returns the named date field's value.
func (t *Task) dateField(name string) int64 {
	switch name {
	case fieldStart:
		return t.StartDate
	case fieldScheduled:
		return t.ScheduledDate
	case fieldDue:
		return t.DueDate
	case fieldCompleted:
		return t.CompletedDate
	case fieldCreated:
		return t.CreatedDate
	}
	return 0
}

// Equal reports whether two tasks carry the same semantic fields,
// ignoring source location and raw markdown.
func (t *Task) Equal(other *Task) bool {
	return t.Content == other.Content &&
		t.Status == other.Status &&
		t.Completed == other.Completed &&
		t.StartDate == other.StartDate &&
		t.ScheduledDate == other.ScheduledDate &&
		t.DueDate == other.DueDate &&
		t.CompletedDate == other.CompletedDate &&
		t.CreatedDate == other.CreatedDate &&
		t.Priority == other.Priority &&
		t.Project == other.Project &&
		t.Context == other.Context &&
		t.Recurrence == other.Recurrence &&
		slices.Equal(t.Tags, other.Tags)
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	c.Tags = slices.Clone(t.Tags)
	return &c
}

// StatusTable maps status characters to completion states.
type StatusTable map[string]bool

// DefaultStatuses is the built-in status taxonomy: x/X complete,
// "-" cancelled (counts as complete), everything else incomplete.
func DefaultStatuses() StatusTable {
	return StatusTable{
		" ": false,
		"/": false,
		"?": false,
		"x": true,
		"X": true,
		"-": true,
	}
}

// Completed resolves a status character to a completion state.
// Unknown characters count as incomplete.
func (s StatusTable) Completed(status string) bool {
	if s == nil {
		return status == "x" || status == "X"
	}
	return s[status]
}
