package main

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	taskLineRe    = regexp.MustCompile(`^(\s*)([-*+]|\d+\.)\s+\[(.)\]\s?(.*)$`)
	emojiDateRe   = regexp.MustCompile(`(🛫|⏳|📅|✅|➕)\s*(\d{4}-\d{2}-\d{2})`)
	emojiRepeatRe = regexp.MustCompile(`🔁\s*([0-9A-Za-z][0-9A-Za-z =;:,.-]*)`)
	dataviewRe    = regexp.MustCompile(`\[(\w+)::\s*([^\]]*)\]`)
	letterPrioRe  = regexp.MustCompile(`\[#([A-C])\]`)
	tagRe         = regexp.MustCompile(`#[\p{L}\p{N}_][\p{L}\p{N}_/-]*`)
	contextRe     = regexp.MustCompile(`@([\p{L}\p{N}_-]+)`)
	spaceRunRe    = regexp.MustCompile(`\s{2,}`)
)

// emojiDateFields maps date-marker emoji to their date field.
var emojiDateFields = map[string]string{
	"🛫": fieldStart,
	"⏳": fieldScheduled,
	"📅": fieldDue,
	"✅": fieldCompleted,
	"➕": fieldCreated,
}

// fieldEmojis is the reverse mapping, used by the rewrite engine.
var fieldEmojis = map[string]string{
	fieldStart:     "🛫",
	fieldScheduled: "⏳",
	fieldDue:       "📅",
	fieldCompleted: "✅",
	fieldCreated:   "➕",
}

// priorityGlyphs maps the five priority emoji to their levels.
var priorityGlyphs = map[string]int{
	"🔺": 5,
	"⏫": 4,
	"🔼": 3,
	"🔽": 2,
	"⏬": 1,
}

// glyphForPriority is the emission order for priority glyphs.
var glyphForPriority = map[int]string{
	5: "🔺",
	4: "⏫",
	3: "🔼",
	2: "🔽",
	1: "⏬",
}

// priorityWords maps dataview priority words to levels.
var priorityWords = map[string]int{
	"highest": 5,
	"high":    4,
	"medium":  3,
	"low":     2,
	"lowest":  1,
}

// wordForPriority is the emission order for dataview priority words.
var wordForPriority = map[int]string{
	5: "highest",
	4: "high",
	3: "medium",
	2: "low",
	1: "lowest",
}

// letterPriorities maps legacy bracket-letter codes to levels. Read-only:
// the rewrite engine never emits these.
var letterPriorities = map[string]int{
	"A": 5,
	"B": 3,
	"C": 1,
}

// dataviewFields maps inline-field keys to date field names.
var dataviewFields = map[string]string{
	"due":        fieldDue,
	"deadline":   fieldDue,
	"scheduled":  fieldScheduled,
	"start":      fieldStart,
	"completion": fieldCompleted,
	"done":       fieldCompleted,
	"created":    fieldCreated,
}

// Metadata token kinds.
type tokenKind int

const (
	tokenDate tokenKind = iota
	tokenPriority
	tokenRecurrence
	tokenTag
	tokenProject
	tokenContext
)

// MetadataToken is one recognized metadata item extracted from a task
// line, regardless of which dialect encoded it.
type MetadataToken struct {
	Kind  tokenKind
	Field string // date field name for Kind == tokenDate
	Value string
}

// ParseOptions carries the user settings the parser depends on.
type ParseOptions struct {
	Statuses StatusTable
}

const projectTagPrefix = "#project/"

// ParseLine converts one markdown line into a Task, or nil if the line is
// not a checklist item. lineNum is 0-based.
func ParseLine(filePath string, lineNum int, line string, opts ParseOptions) *Task {
	m := taskLineRe.FindStringSubmatch(line)
	if m == nil {
		return nil
	}

	status := m[3]
	rest := m[4]

	clean, tokens := extractMetadata(rest)

	task := &Task{
		ID:               taskID(filePath, lineNum),
		FilePath:         filePath,
		Line:             lineNum,
		Content:          clean,
		OriginalMarkdown: line,
		Status:           status,
		Completed:        opts.Statuses.Completed(status),
	}

	for _, tok := range tokens {
		applyToken(task, tok)
	}

	return task
}

// ParseContent parses every line of a file's content. Non-task lines are
// skipped; the index stores only true task records.
func ParseContent(filePath, content string, opts ParseOptions) []*Task {
	var tasks []*Task
	for i, line := range strings.Split(content, "\n") {
		if task := ParseLine(filePath, i, line, opts); task != nil {
			tasks = append(tasks, task)
		}
	}
	return tasks
}

// extractMetadata strips every recognized metadata token of both dialects
// from the line tail and returns the cleaned content plus typed tokens.
// Malformed tokens (an emoji without a valid date, an unknown inline-field
// key) are left in place as plain text.
func extractMetadata(text string) (string, []MetadataToken) {
	var tokens []MetadataToken

	// Inline-field dialect first: bracketed tokens are unambiguous.
	text = dataviewRe.ReplaceAllStringFunc(text, func(match string) string {
		m := dataviewRe.FindStringSubmatch(match)
		key := strings.ToLower(m[1])
		value := strings.TrimSpace(m[2])

		if field, ok := dataviewFields[key]; ok {
			if _, ok := parseLocalDate(value); !ok {
				return match
			}
			tokens = append(tokens, MetadataToken{Kind: tokenDate, Field: field, Value: value})
			return ""
		}

		switch key {
		case "priority":
			if parsePriorityValue(value) == 0 {
				return match
			}
			tokens = append(tokens, MetadataToken{Kind: tokenPriority, Value: value})
			return ""
		case "repeat", "recurrence":
			if value == "" {
				return match
			}
			tokens = append(tokens, MetadataToken{Kind: tokenRecurrence, Value: value})
			return ""
		case "project":
			if value == "" {
				return match
			}
			tokens = append(tokens, MetadataToken{Kind: tokenProject, Value: value})
			return ""
		case "context":
			if value == "" {
				return match
			}
			tokens = append(tokens, MetadataToken{Kind: tokenContext, Value: value})
			return ""
		}

		return match
	})

	text = emojiDateRe.ReplaceAllStringFunc(text, func(match string) string {
		m := emojiDateRe.FindStringSubmatch(match)
		field := emojiDateFields[m[1]]
		if _, ok := parseLocalDate(m[2]); !ok {
			return match
		}
		tokens = append(tokens, MetadataToken{Kind: tokenDate, Field: field, Value: m[2]})
		return ""
	})

	text = emojiRepeatRe.ReplaceAllStringFunc(text, func(match string) string {
		m := emojiRepeatRe.FindStringSubmatch(match)
		tokens = append(tokens, MetadataToken{Kind: tokenRecurrence, Value: strings.TrimSpace(m[1])})
		return ""
	})

	text = letterPrioRe.ReplaceAllStringFunc(text, func(match string) string {
		m := letterPrioRe.FindStringSubmatch(match)
		tokens = append(tokens, MetadataToken{Kind: tokenPriority, Value: m[1]})
		return ""
	})

	for _, glyph := range []string{"🔺", "⏫", "🔼", "🔽", "⏬"} {
		if strings.Contains(text, glyph) {
			tokens = append(tokens, MetadataToken{Kind: tokenPriority, Value: glyph})
			text = strings.ReplaceAll(text, glyph, "")
		}
	}

	text = tagRe.ReplaceAllStringFunc(text, func(match string) string {
		if strings.HasPrefix(match, projectTagPrefix) {
			tokens = append(tokens, MetadataToken{Kind: tokenProject, Value: strings.TrimPrefix(match, projectTagPrefix)})
		} else {
			tokens = append(tokens, MetadataToken{Kind: tokenTag, Value: match})
		}
		return ""
	})

	text = contextRe.ReplaceAllStringFunc(text, func(match string) string {
		m := contextRe.FindStringSubmatch(match)
		tokens = append(tokens, MetadataToken{Kind: tokenContext, Value: m[1]})
		return ""
	})

	text = spaceRunRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text), tokens
}

// applyToken folds one metadata token into the task record.
func applyToken(task *Task, tok MetadataToken) {
	switch tok.Kind {
	case tokenDate:
		ms, ok := parseLocalDate(tok.Value)
		if !ok {
			return
		}
		switch tok.Field {
		case fieldStart:
			task.StartDate = ms
		case fieldScheduled:
			task.ScheduledDate = ms
		case fieldDue:
			task.DueDate = ms
		case fieldCompleted:
			task.CompletedDate = ms
		case fieldCreated:
			task.CreatedDate = ms
		}
	case tokenPriority:
		if p := parsePriorityValue(tok.Value); p != 0 {
			task.Priority = p
		}
	case tokenRecurrence:
		task.Recurrence = tok.Value
	case tokenProject:
		if task.Project == "" {
			task.Project = tok.Value
		}
	case tokenContext:
		if task.Context == "" {
			task.Context = tok.Value
		}
	case tokenTag:
		for _, existing := range task.Tags {
			if existing == tok.Value {
				return
			}
		}
		task.Tags = append(task.Tags, tok.Value)
	}
}

// parsePriorityValue resolves a glyph, word, letter code or digit to a
// priority level, or 0 when unrecognized.
func parsePriorityValue(value string) int {
	if p, ok := priorityGlyphs[value]; ok {
		return p
	}
	if p, ok := priorityWords[strings.ToLower(value)]; ok {
		return p
	}
	if p, ok := letterPriorities[value]; ok {
		return p
	}
	if n, err := strconv.Atoi(value); err == nil && n >= 1 && n <= 5 {
		return n
	}
	return 0
}
