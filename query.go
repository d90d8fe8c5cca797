package main

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"
)

var (
	blockRe  = regexp.MustCompile("(?s)```tasks\\s*\\n(.+?)```")
	headerRe = regexp.MustCompile(`(?m)^##\s+(.+)$`)
)

// Filter kinds.
const (
	filterStatus   = "status"
	filterDate     = "date"
	filterText     = "text"
	filterTag      = "tag"
	filterPriority = "priority"
)

// Filter is a single predicate over task fields. A query matches a task
// only when every filter matches (logical AND).
type Filter struct {
	Kind   string
	Field  string   // date field name for Kind == filterDate
	Op     string   // "before", "after", "on" for dates; "done", "not done" for status
	Value  string
	Values []string // OR alternatives for date filters
}

// SortCriterion orders query results by one field; criteria are applied in
// sequence, each breaking ties left by the previous one.
type SortCriterion struct {
	Field   string
	Reverse bool
}

// Query is a parsed ```tasks block: filters, sort order and grouping.
type Query struct {
	Name    string // section name from the nearest ## header
	Filters []Filter
	Sorts   []SortCriterion
	GroupBy string // "folder", "filename", or ""
}

// Match reports whether a task satisfies the filter.
func (f Filter) Match(task *Task, now time.Time) bool {
	switch f.Kind {
	case filterStatus:
		if f.Op == "done" {
			return task.Completed
		}
		return !task.Completed

	case filterText:
		return strings.Contains(strings.ToLower(task.Content), strings.ToLower(f.Value))

	case filterTag:
		want := f.Value
		if !strings.HasPrefix(want, "#") {
			want = "#" + want
		}
		return slices.Contains(task.Tags, want)

	case filterPriority:
		return task.Priority == parsePriorityValue(f.Value)

	case filterDate:
		value := task.dateField(f.Field)
		if value == 0 {
			return false
		}
		taskDate := localMidnight(dateFromMillis(value))

		dates := f.Values
		if len(dates) == 0 {
			dates = []string{f.Value}
		}
		for _, d := range dates {
			target := resolveDate(d, now)
			switch f.Op {
			case "before":
				if taskDate.Before(target) {
					return true
				}
			case "after":
				if taskDate.After(target) {
					return true
				}
			default:
				if taskDate.Equal(target) {
					return true
				}
			}
		}
		return false
	}

	return true
}

// matchAll reports whether a task satisfies every filter.
func matchAll(task *Task, filters []Filter, now time.Time) bool {
	for _, f := range filters {
		if !f.Match(task, now) {
			return false
		}
	}
	return true
}

// applyFilters returns the tasks matching every filter, preserving order.
func applyFilters(tasks []*Task, filters []Filter, now time.Time) []*Task {
	var result []*Task
	for _, task := range tasks {
		if matchAll(task, filters, now) {
			result = append(result, task)
		}
	}
	return result
}

// resolveDate converts relative date words to local-midnight dates.
func resolveDate(dateStr string, now time.Time) time.Time {
	today := localMidnight(now)

	switch dateStr {
	case "today":
		return today
	case "tomorrow":
		return today.AddDate(0, 0, 1)
	case "yesterday":
		return today.AddDate(0, 0, -1)
	default:
		if ms, ok := parseLocalDate(dateStr); ok {
			return dateFromMillis(ms)
		}
		return today
	}
}

// compareBy orders two tasks by a single criterion. Tasks missing the
// criterion's date sort after tasks that have it.
func compareBy(a, b *Task, c SortCriterion) int {
	var result int

	switch c.Field {
	case fieldDue, fieldScheduled, fieldStart, fieldCompleted, fieldCreated:
		av, bv := a.dateField(c.Field), b.dateField(c.Field)
		switch {
		case av == 0 && bv == 0:
			return 0
		case av == 0:
			return 1
		case bv == 0:
			return -1
		}
		result = cmp.Compare(av, bv)
	case "priority":
		// Higher priority first by default.
		result = cmp.Compare(b.Priority, a.Priority)
	case "status":
		result = cmp.Compare(a.Status, b.Status)
	case "description":
		result = cmp.Compare(strings.ToLower(a.Content), strings.ToLower(b.Content))
	case "path", "file":
		result = cmp.Compare(a.FilePath, b.FilePath)
	case "line":
		result = cmp.Compare(a.Line, b.Line)
	default:
		return 0
	}

	if c.Reverse {
		return -result
	}
	return result
}

// sortTasks returns a sorted copy; the input order is preserved for tasks
// equal under every criterion (stable).
func sortTasks(tasks []*Task, criteria []SortCriterion) []*Task {
	sorted := make([]*Task, len(tasks))
	copy(sorted, tasks)

	if len(criteria) == 0 {
		return sorted
	}

	slices.SortStableFunc(sorted, func(a, b *Task) int {
		for _, c := range criteria {
			if r := compareBy(a, b, c); r != 0 {
				return r
			}
		}
		return 0
	})

	return sorted
}

// parseAllQueryBlocks parses every ```tasks block from a markdown file,
// attaching the nearest preceding ## header as the section name.
func parseAllQueryBlocks(filePath string) ([]*Query, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	matches := blockRe.FindAllStringSubmatchIndex(string(content), -1)
	if matches == nil {
		return nil, fmt.Errorf("no ```tasks block found in %s", filePath)
	}

	headers := headerRe.FindAllStringSubmatchIndex(string(content), -1)

	var queries []*Query
	for _, match := range matches {
		blockStart := match[0]
		queryContent := string(content[match[2]:match[3]])

		sectionName := ""
		for _, header := range headers {
			if header[1] < blockStart {
				sectionName = string(content[header[2]:header[3]])
			} else {
				break
			}
		}

		query := parseQueryContent(queryContent)
		query.Name = sectionName
		queries = append(queries, query)
	}

	return queries, nil
}

// parseQueryContent parses the lines of a single ```tasks block.
// Unrecognized lines are ignored.
func parseQueryContent(queryContent string) *Query {
	query := &Query{}

	for _, raw := range strings.Split(queryContent, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		switch {
		case line == "not done":
			query.Filters = append(query.Filters, Filter{Kind: filterStatus, Op: "not done"})

		case line == "done":
			query.Filters = append(query.Filters, Filter{Kind: filterStatus, Op: "done"})

		case strings.HasPrefix(line, "description includes "):
			query.Filters = append(query.Filters, Filter{
				Kind:  filterText,
				Value: strings.TrimPrefix(line, "description includes "),
			})

		case strings.HasPrefix(line, "tags include "):
			query.Filters = append(query.Filters, Filter{
				Kind:  filterTag,
				Value: strings.TrimPrefix(line, "tags include "),
			})

		case strings.HasPrefix(line, "priority is "):
			query.Filters = append(query.Filters, Filter{
				Kind:  filterPriority,
				Value: strings.TrimPrefix(line, "priority is "),
			})

		case strings.HasPrefix(line, "sort by "):
			rest := strings.TrimPrefix(line, "sort by ")
			reverse := false
			if strings.HasSuffix(rest, " reverse") {
				reverse = true
				rest = strings.TrimSuffix(rest, " reverse")
			}
			query.Sorts = append(query.Sorts, SortCriterion{Field: strings.TrimSpace(rest), Reverse: reverse})

		case strings.HasPrefix(line, "group by "):
			query.GroupBy = strings.TrimPrefix(line, "group by ")

		default:
			if f, ok := parseDateFilterLine(line); ok {
				query.Filters = append(query.Filters, f)
			}
		}
	}

	return query
}

// dateFilterFields maps query-block field words to date field names.
var dateFilterFields = map[string]string{
	"due":       fieldDue,
	"scheduled": fieldScheduled,
	"starts":    fieldStart,
	"done":      fieldCompleted,
	"created":   fieldCreated,
}

// parseDateFilterLine parses lines like "due before 2024-01-01",
// "scheduled after tomorrow" or "due today or tomorrow".
func parseDateFilterLine(line string) (Filter, bool) {
	word, operand, ok := strings.Cut(line, " ")
	if !ok {
		return Filter{}, false
	}
	field, ok := dateFilterFields[word]
	if !ok {
		return Filter{}, false
	}

	f := Filter{Kind: filterDate, Field: field, Op: "on"}

	switch {
	case strings.HasPrefix(operand, "before "):
		f.Op = "before"
		f.Value = strings.TrimSpace(strings.TrimPrefix(operand, "before "))
	case strings.HasPrefix(operand, "after "):
		f.Op = "after"
		f.Value = strings.TrimSpace(strings.TrimPrefix(operand, "after "))
	case strings.HasPrefix(operand, "on "):
		f.Values = splitOrDates(strings.TrimPrefix(operand, "on "))
	default:
		f.Values = splitOrDates(operand)
	}

	if len(f.Values) == 1 {
		f.Value = f.Values[0]
		f.Values = nil
	}

	return f, true
}

func splitOrDates(value string) []string {
	var dates []string
	for _, part := range strings.Split(value, " or ") {
		if part = strings.TrimSpace(part); part != "" {
			dates = append(dates, part)
		}
	}
	return dates
}

// parseInlineQuery parses an inline query string like "not done" with
// clauses separated by commas or newlines.
func parseInlineQuery(queryStr string) ([]*Query, error) {
	normalized := strings.ReplaceAll(queryStr, ",", "\n")
	return []*Query{parseQueryContent(normalized)}, nil
}

// resolveQuery treats input as a query file path when one exists,
// otherwise as an inline query string.
func resolveQuery(input, vaultPath string) ([]*Query, error) {
	expanded, err := expandPath(input)
	if err != nil {
		return parseInlineQuery(input)
	}

	var filePath string
	switch {
	case filepath.IsAbs(expanded):
		filePath = expanded
	case vaultPath != "":
		filePath = filepath.Join(vaultPath, expanded)
	default:
		filePath = expanded
	}

	if info, err := os.Stat(filePath); err == nil && !info.IsDir() {
		return parseAllQueryBlocks(filePath)
	}

	return parseInlineQuery(input)
}

// TaskGroup is a named group of tasks for display.
type TaskGroup struct {
	Name  string
	Tasks []*Task
}

// groupTasks groups sorted tasks by the query's group key, preserving
// first-seen group order.
func groupTasks(tasks []*Task, groupBy, vaultPath string) []TaskGroup {
	if groupBy == "" {
		return []TaskGroup{{Name: "", Tasks: tasks}}
	}

	order := []string{}
	byKey := map[string][]*Task{}

	for _, task := range tasks {
		var key string
		switch groupBy {
		case "folder":
			key = filepath.Dir(relPath(vaultPath, task.FilePath))
			if key == "." {
				key = "/"
			}
		case "filename":
			key = filepath.Base(task.FilePath)
		}
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], task)
	}

	result := make([]TaskGroup, 0, len(order))
	for _, name := range order {
		result = append(result, TaskGroup{Name: name, Tasks: byKey[name]})
	}
	return result
}

// relPath returns the path relative to basePath, or the original on error.
func relPath(basePath, filePath string) string {
	if rel, err := filepath.Rel(basePath, filePath); err == nil {
		return rel
	}
	return filePath
}
