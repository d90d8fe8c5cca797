package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/natefinch/atomic"
)

// Metadata dialects for re-emission.
const (
	dialectEmoji    = "emoji"
	dialectDataview = "dataview"
)

// StaleTaskError means the cache no longer matches the file: the mutation
// target line is missing or changed on disk. The edit is not applied and
// not retried; the caller should surface the failure.
type StaleTaskError struct {
	Path   string
	Line   int
	Reason string
}

func (e *StaleTaskError) Error() string {
	return fmt.Sprintf("stale task at %s:%d: %s", e.Path, e.Line, e.Reason)
}

// Mutator rewrites task source lines in place and re-indexes the touched
// file. It is the only component that surfaces errors to its caller.
type Mutator struct {
	manager  *IndexManager
	dialect  string
	statuses StatusTable
	now      func() time.Time
}

var numericMarkerRe = regexp.MustCompile(`^(\d+)\.$`)

// NewMutator creates a mutator emitting the given preferred dialect.
func NewMutator(manager *IndexManager, dialect string, statuses StatusTable) *Mutator {
	if dialect != dialectDataview {
		dialect = dialectEmoji
	}
	return &Mutator{
		manager:  manager,
		dialect:  dialect,
		statuses: statuses,
		now:      time.Now,
	}
}

// UpdateTask rewrites the source line of an edited task. If the edit
// completes a recurring task, the next occurrence's line is inserted
// right after it; the file is written once with both changes, then
// re-indexed. A regenerated line identical to the original is a no-op.
func (mu *Mutator) UpdateTask(ctx context.Context, updated *Task) error {
	original, ok := mu.manager.GetTaskByID(updated.ID)
	if !ok {
		return &StaleTaskError{Path: updated.FilePath, Line: updated.Line, Reason: "task not in index"}
	}

	content, err := os.ReadFile(original.FilePath)
	if err != nil {
		return fmt.Errorf("read %s: %w", original.FilePath, err)
	}

	lines := strings.Split(string(content), "\n")
	if original.Line < 0 || original.Line >= len(lines) {
		return &StaleTaskError{Path: original.FilePath, Line: original.Line, Reason: "line out of range"}
	}

	current := lines[original.Line]
	if current != original.OriginalMarkdown {
		return &StaleTaskError{Path: original.FilePath, Line: original.Line, Reason: "line changed on disk"}
	}

	m := taskLineRe.FindStringSubmatch(current)
	if m == nil {
		return &StaleTaskError{Path: original.FilePath, Line: original.Line, Reason: "not a task line"}
	}
	indent, marker := m[1], m[2]

	status := mu.resolveStatus(original, updated)
	completed := mu.statuses.Completed(status)

	final := updated.Clone()
	final.Status = status
	final.Completed = completed
	if completed && final.CompletedDate == 0 {
		final.CompletedDate = localMidnight(mu.now()).UnixMilli()
	}
	if !completed {
		final.CompletedDate = 0
	}

	newLine := renderLine(final, original, indent, marker, mu.dialect)

	var inserted string
	if !original.Completed && completed && final.Recurrence != "" {
		nextMs := NextOccurrence(original, mu.now())
		inserted = mu.buildNextLine(final, original, indent, marker, nextMs)
	}

	if newLine == current && inserted == "" {
		return nil
	}

	lines[original.Line] = newLine
	if inserted != "" {
		lines = slices.Insert(lines, original.Line+1, inserted)
	}

	out := strings.Join(lines, "\n")
	if err := atomic.WriteFile(original.FilePath, bytes.NewReader([]byte(out))); err != nil {
		return fmt.Errorf("write %s: %w", original.FilePath, err)
	}

	return mu.manager.IndexFile(ctx, original.FilePath)
}

// resolveStatus picks the status character for the rewritten line. A
// status edit is honored only while it agrees with the Completed flag;
// when the two disagree the flag governs, keeping the on-disk status if
// it already matches and mapping to "x"/" " otherwise. This keeps a
// re-applied edit carrying a stale status from reverting the line.
func (mu *Mutator) resolveStatus(original, updated *Task) string {
	if updated.Status != "" && mu.statuses.Completed(updated.Status) == updated.Completed {
		return updated.Status
	}
	if mu.statuses.Completed(original.Status) == updated.Completed {
		return original.Status
	}
	if updated.Completed {
		return "x"
	}
	return " "
}

// buildNextLine synthesizes the follow-up line for a completed recurring
// task: same marker style (numeric markers increment), status reset,
// completion cleared, and the next date in whichever of due/scheduled the
// original populated.
func (mu *Mutator) buildNextLine(final, original *Task, indent, marker string, nextMs int64) string {
	next := final.Clone()
	next.Status = " "
	next.Completed = false
	next.CompletedDate = 0
	next.UseAsDateType = ""

	if original.DueDate != 0 || original.ScheduledDate == 0 {
		next.DueDate = nextMs
		next.ScheduledDate = 0
	} else {
		next.ScheduledDate = nextMs
		next.DueDate = 0
	}

	if nm := numericMarkerRe.FindStringSubmatch(marker); nm != nil {
		n, _ := strconv.Atoi(nm[1])
		marker = strconv.Itoa(n+1) + "."
	}

	return renderLine(next, nil, indent, marker, mu.dialect)
}

// renderLine regenerates a task's source line: indentation and marker
// preserved, then status bracket, content, and metadata tokens in
// canonical order (tags, project, context, priority, recurrence, created,
// start, scheduled, due, completion). original, when non-nil, supplies
// the UseAsDateType omission check.
func renderLine(t *Task, original *Task, indent, marker, dialect string) string {
	var b strings.Builder
	b.WriteString(indent)
	b.WriteString(marker)
	b.WriteString(" [")
	b.WriteString(t.Status)
	b.WriteString("] ")
	b.WriteString(t.Content)

	for _, tag := range dedupTags(t) {
		b.WriteString(" ")
		b.WriteString(tag)
	}

	if t.Project != "" {
		if dialect == dialectDataview {
			fmt.Fprintf(&b, " [project:: %s]", t.Project)
		} else {
			b.WriteString(" " + projectTagPrefix + t.Project)
		}
	}

	if t.Context != "" {
		if dialect == dialectDataview {
			fmt.Fprintf(&b, " [context:: %s]", t.Context)
		} else {
			b.WriteString(" @" + t.Context)
		}
	}

	if t.Priority >= 1 && t.Priority <= 5 {
		if dialect == dialectDataview {
			fmt.Fprintf(&b, " [priority:: %s]", wordForPriority[t.Priority])
		} else {
			b.WriteString(" " + glyphForPriority[t.Priority])
		}
	}

	if t.Recurrence != "" {
		if dialect == dialectDataview {
			fmt.Fprintf(&b, " [repeat:: %s]", t.Recurrence)
		} else {
			b.WriteString(" 🔁 " + t.Recurrence)
		}
	}

	writeDate := func(field string, ms int64) {
		if ms == 0 {
			return
		}
		// The hint suppresses re-emitting a date the edit never touched,
		// avoiding duplicate tokens when an ambiguous marker is being
		// reinterpreted.
		if original != nil && t.UseAsDateType == field && original.dateField(field) == ms {
			return
		}
		if dialect == dialectDataview {
			fmt.Fprintf(&b, " [%s:: %s]", field, formatLocalDate(ms))
		} else {
			fmt.Fprintf(&b, " %s %s", fieldEmojis[field], formatLocalDate(ms))
		}
	}

	writeDate(fieldCreated, t.CreatedDate)
	writeDate(fieldStart, t.StartDate)
	writeDate(fieldScheduled, t.ScheduledDate)
	writeDate(fieldDue, t.DueDate)
	if t.Completed {
		writeDate(fieldCompleted, t.CompletedDate)
	}

	return b.String()
}

// dedupTags returns the task's tags minus duplicates and minus the tag
// forms of its project and context, which are emitted separately.
func dedupTags(t *Task) []string {
	seen := make(map[string]struct{}, len(t.Tags))
	var tags []string
	for _, tag := range t.Tags {
		if tag == projectTagPrefix+t.Project {
			continue
		}
		if t.Context != "" && tag == "@"+t.Context {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}
