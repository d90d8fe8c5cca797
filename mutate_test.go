package main

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

// mutatorFixture indexes a single vault file and returns a mutator pinned
// to a fixed clock.
func mutatorFixture(t *testing.T, content, dialect string) (*Mutator, *IndexManager, string) {
	t.Helper()
	vault := t.TempDir()
	path := writeVaultFile(t, vault, "tasks.md", content)

	m := newTestManager(t, vault)
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	mu := NewMutator(m, dialect, DefaultStatuses())
	mu.now = func() time.Time {
		return time.Date(2024, time.May, 20, 9, 0, 0, 0, time.Local)
	}
	return mu, m, path
}

func fileLines(t *testing.T, path string) []string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(string(content), "\n")
}

func TestUpdateTaskComplete(t *testing.T) {
	mu, m, path := mutatorFixture(t, "- [ ] Buy milk #groceries 📅 2024-06-15\n", dialectEmoji)

	task, ok := m.GetTaskByID(taskID(path, 0))
	if !ok {
		t.Fatal("task not indexed")
	}
	task.Completed = true
	if err := mu.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	lines := fileLines(t, path)
	want := "- [x] Buy milk #groceries 📅 2024-06-15 ✅ 2024-05-20"
	if lines[0] != want {
		t.Errorf("line = %q, want %q", lines[0], want)
	}

	// The touched file is re-indexed as part of the edit.
	indexed, ok := m.GetTaskByID(taskID(path, 0))
	if !ok || !indexed.Completed {
		t.Errorf("index not refreshed: %+v", indexed)
	}
}

func TestUpdateTaskUncomplete(t *testing.T) {
	mu, m, path := mutatorFixture(t, "- [x] Old chore ✅ 2024-05-01\n", dialectEmoji)

	task, _ := m.GetTaskByID(taskID(path, 0))
	task.Completed = false
	if err := mu.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	lines := fileLines(t, path)
	if lines[0] != "- [ ] Old chore" {
		t.Errorf("line = %q, completion date should be dropped", lines[0])
	}
}

func TestUpdateTaskNoOp(t *testing.T) {
	mu, m, path := mutatorFixture(t, "- [ ] Buy milk #groceries 📅 2024-06-15\n", dialectEmoji)

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(path)

	task, _ := m.GetTaskByID(taskID(path, 0))
	if err := mu.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("unchanged task rewrote the file")
	}
	if got, _ := os.Stat(path); got.ModTime() != info.ModTime() {
		t.Error("unchanged task touched the file's mtime")
	}
}

func TestUpdateTaskPreservesSurroundings(t *testing.T) {
	content := "# Chores\n\n  - [ ] Nested task 🔼\nSome prose below.\n"
	mu, m, path := mutatorFixture(t, content, dialectEmoji)

	task, _ := m.GetTaskByID(taskID(path, 2))
	task.Completed = true
	if err := mu.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	lines := fileLines(t, path)
	if lines[0] != "# Chores" || lines[1] != "" || lines[3] != "Some prose below." {
		t.Errorf("surrounding lines changed: %q", lines)
	}
	if lines[2] != "  - [x] Nested task 🔼 ✅ 2024-05-20" {
		t.Errorf("line = %q, indentation or priority lost", lines[2])
	}
}

func TestUpdateTaskEditContentAndMetadata(t *testing.T) {
	mu, m, path := mutatorFixture(t, "- [ ] Draft report 📅 2024-06-15\n", dialectEmoji)

	task, _ := m.GetTaskByID(taskID(path, 0))
	task.Content = "Draft quarterly report"
	task.Priority = 4
	task.DueDate, _ = parseLocalDate("2024-06-20")
	if err := mu.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	lines := fileLines(t, path)
	if lines[0] != "- [ ] Draft quarterly report ⏫ 📅 2024-06-20" {
		t.Errorf("line = %q", lines[0])
	}
}

func TestUpdateTaskDataviewDialect(t *testing.T) {
	mu, m, path := mutatorFixture(t, "- [ ] Write docs [due:: 2024-06-15] [priority:: high]\n", dialectDataview)

	task, _ := m.GetTaskByID(taskID(path, 0))
	task.Completed = true
	if err := mu.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	lines := fileLines(t, path)
	want := "- [x] Write docs [priority:: high] [due:: 2024-06-15] [completion:: 2024-05-20]"
	if lines[0] != want {
		t.Errorf("line = %q, want %q", lines[0], want)
	}
}

func TestUpdateTaskStaleLine(t *testing.T) {
	mu, m, path := mutatorFixture(t, "- [ ] Original line\n", dialectEmoji)

	task, _ := m.GetTaskByID(taskID(path, 0))

	// The file changes underneath the cached copy.
	if err := os.WriteFile(path, []byte("- [ ] Edited elsewhere\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	task.Completed = true
	err := mu.UpdateTask(context.Background(), task)
	var stale *StaleTaskError
	if !errors.As(err, &stale) {
		t.Fatalf("err = %v, want StaleTaskError", err)
	}

	// The conflicting edit must survive untouched.
	if lines := fileLines(t, path); lines[0] != "- [ ] Edited elsewhere" {
		t.Errorf("stale edit clobbered the file: %q", lines[0])
	}
}

func TestUpdateTaskUnknownID(t *testing.T) {
	mu, _, _ := mutatorFixture(t, "- [ ] A task\n", dialectEmoji)

	ghost := &Task{ID: "nowhere.md-L9", FilePath: "nowhere.md", Line: 9}
	var stale *StaleTaskError
	if err := mu.UpdateTask(context.Background(), ghost); !errors.As(err, &stale) {
		t.Errorf("err = %v, want StaleTaskError", err)
	}
}

func TestUpdateTaskRecurringInsertsNext(t *testing.T) {
	mu, m, path := mutatorFixture(t, "- [ ] Water plants 🔁 every week 📅 2024-06-01\nprose after\n", dialectEmoji)

	task, _ := m.GetTaskByID(taskID(path, 0))
	task.Completed = true
	if err := mu.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	lines := fileLines(t, path)
	if lines[0] != "- [x] Water plants 🔁 every week 📅 2024-06-01 ✅ 2024-05-20" {
		t.Errorf("completed line = %q", lines[0])
	}
	if lines[1] != "- [ ] Water plants 🔁 every week 📅 2024-06-08" {
		t.Errorf("inserted line = %q", lines[1])
	}
	if lines[2] != "prose after" {
		t.Errorf("following line displaced: %q", lines[2])
	}

	// Both lines land in the index from the single re-index pass.
	next, ok := m.GetTaskByID(taskID(path, 1))
	if !ok || next.Completed || next.Recurrence != "every week" {
		t.Errorf("next occurrence not indexed: %+v", next)
	}
}

func TestUpdateTaskRecurringIdempotent(t *testing.T) {
	mu, m, path := mutatorFixture(t, "- [ ] Water plants 🔁 every week 📅 2024-06-01\n", dialectEmoji)

	task, _ := m.GetTaskByID(taskID(path, 0))
	task.Completed = true
	if err := mu.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	// Completing the already-completed line again inserts nothing.
	again, _ := m.GetTaskByID(taskID(path, 0))
	if err := mu.UpdateTask(context.Background(), again); err != nil {
		t.Fatal(err)
	}

	if lines := fileLines(t, path); len(lines) != 3 { // two tasks + trailing newline
		t.Errorf("got %d lines, want 3: %q", len(lines), lines)
	}
}

func TestUpdateTaskRecurringScheduledDate(t *testing.T) {
	mu, m, path := mutatorFixture(t, "- [ ] Review inbox 🔁 every day ⏳ 2024-06-01\n", dialectEmoji)

	task, _ := m.GetTaskByID(taskID(path, 0))
	task.Completed = true
	if err := mu.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	lines := fileLines(t, path)
	if lines[1] != "- [ ] Review inbox 🔁 every day ⏳ 2024-06-02" {
		t.Errorf("inserted line = %q, want the scheduled slot advanced", lines[1])
	}
}

func TestUpdateTaskRecurringNumberedMarker(t *testing.T) {
	mu, m, path := mutatorFixture(t, "1. [ ] Pay rent 🔁 every month 📅 2024-06-01\n", dialectEmoji)

	task, _ := m.GetTaskByID(taskID(path, 0))
	task.Completed = true
	if err := mu.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	lines := fileLines(t, path)
	if !strings.HasPrefix(lines[1], "2. [ ] Pay rent") {
		t.Errorf("inserted line = %q, want incremented numeric marker", lines[1])
	}
}

func TestUpdateTaskExplicitStatus(t *testing.T) {
	mu, m, path := mutatorFixture(t, "- [ ] In flight\n", dialectEmoji)

	task, _ := m.GetTaskByID(taskID(path, 0))
	task.Status = "/"
	if err := mu.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	lines := fileLines(t, path)
	if lines[0] != "- [/] In flight" {
		t.Errorf("line = %q", lines[0])
	}
}

func TestUpdateTaskCancelledStatusCountsAsDone(t *testing.T) {
	mu, m, path := mutatorFixture(t, "- [ ] Abandoned plan\n", dialectEmoji)

	task, _ := m.GetTaskByID(taskID(path, 0))
	task.Status = "-"
	task.Completed = true
	if err := mu.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}

	lines := fileLines(t, path)
	if lines[0] != "- [-] Abandoned plan ✅ 2024-05-20" {
		t.Errorf("line = %q, '-' should complete with a date", lines[0])
	}
}

func TestUpdateTaskRepeatedEditIsNoOp(t *testing.T) {
	mu, m, path := mutatorFixture(t, "- [ ] Water plants 🔁 every week 📅 2024-06-01\n", dialectEmoji)

	task, _ := m.GetTaskByID(taskID(path, 0))
	task.Completed = true
	if err := mu.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	afterFirst, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// Re-applying the very same edit must change nothing: the completion
	// stays applied and no second occurrence line appears.
	if err := mu.UpdateTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	afterSecond, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(afterFirst) != string(afterSecond) {
		t.Errorf("second identical edit rewrote the file:\nfirst  = %q\nsecond = %q", afterFirst, afterSecond)
	}

	lines := fileLines(t, path)
	if lines[0] != "- [x] Water plants 🔁 every week 📅 2024-06-01 ✅ 2024-05-20" {
		t.Errorf("completed line reverted: %q", lines[0])
	}
	if len(lines) != 3 {
		t.Errorf("got %d lines, want completed + next + trailing", len(lines))
	}
}

func TestResolveStatusFlagGoverns(t *testing.T) {
	mu := NewMutator(nil, dialectEmoji, DefaultStatuses())

	tests := []struct {
		name     string
		original *Task
		updated  *Task
		want     string
	}{
		{"flag completes", &Task{Status: " "}, &Task{Status: " ", Completed: true}, "x"},
		{"flag uncompletes", &Task{Status: "x", Completed: true}, &Task{Status: "x"}, " "},
		{"stale status loses to matching disk state", &Task{Status: "x", Completed: true}, &Task{Status: " ", Completed: true}, "x"},
		{"consistent status edit wins", &Task{Status: " "}, &Task{Status: "/"}, "/"},
		{"cancelled with flag", &Task{Status: " "}, &Task{Status: "-", Completed: true}, "-"},
		{"no change", &Task{Status: " "}, &Task{Status: " "}, " "},
	}
	for _, tt := range tests {
		if got := mu.resolveStatus(tt.original, tt.updated); got != tt.want {
			t.Errorf("%s: resolveStatus = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestRenderLineProjectContext(t *testing.T) {
	task := &Task{
		Status:  " ",
		Content: "Plan sprint",
		Project: "platform",
		Context: "office",
		Tags:    []string{"#team"},
	}

	emoji := renderLine(task, nil, "", "-", dialectEmoji)
	if emoji != "- [ ] Plan sprint #team #project/platform @office" {
		t.Errorf("emoji line = %q", emoji)
	}

	dv := renderLine(task, nil, "", "-", dialectDataview)
	if dv != "- [ ] Plan sprint #team [project:: platform] [context:: office]" {
		t.Errorf("dataview line = %q", dv)
	}
}

func TestRenderLineRoundTrip(t *testing.T) {
	lines := []string{
		"- [ ] Buy milk #groceries 📅 2024-06-15",
		"- [x] Done thing ✅ 2024-05-01",
		"  * [ ] Indented ⏫ 🔁 every week ⏳ 2024-06-01",
		"- [ ] Everything #a @home 🔼 ➕ 2024-01-01 🛫 2024-02-01 ⏳ 2024-03-01 📅 2024-04-01",
	}
	for _, line := range lines {
		task := ParseLine("f.md", 0, line, testOpts())
		if task == nil {
			t.Fatalf("ParseLine(%q) = nil", line)
		}
		m := taskLineRe.FindStringSubmatch(line)
		got := renderLine(task, task, m[1], m[2], dialectEmoji)
		if got != line {
			t.Errorf("round trip of %q = %q", line, got)
		}
	}
}

func TestRenderLineLetterPriorityReemitted(t *testing.T) {
	// Legacy bracket-letter codes are read as priorities but never written
	// back; the canonical glyph replaces them.
	line := "- [ ] Legacy [#A] item"
	task := ParseLine("f.md", 0, line, testOpts())
	got := renderLine(task, task, "", "-", dialectEmoji)
	if strings.Contains(got, "[#A]") {
		t.Errorf("letter code survived rewrite: %q", got)
	}
	if !strings.Contains(got, "🔺") {
		t.Errorf("priority lost in rewrite: %q", got)
	}
}

func TestDedupTags(t *testing.T) {
	task := &Task{
		Project: "work",
		Context: "office",
		Tags:    []string{"#a", "#a", "#project/work", "@office", "#b"},
	}
	got := dedupTags(task)
	want := []string{"#a", "#b"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("dedupTags = %v, want %v", got, want)
	}
}
