package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultWindowHeight = 24
	defaultWindowWidth  = 80
	reservedUILines     = 4 // title(1) + newline(1) + help margin(1) + help(1)
	minVisibleHeight    = 3
)

// QuerySection is one ```tasks block's results for display.
type QuerySection struct {
	Name   string
	Query  *Query
	Groups []TaskGroup
	Tasks  []*Task
}

// buildSections runs every query against the index.
func buildSections(manager *IndexManager, queries []*Query, vaultPath string) []QuerySection {
	var sections []QuerySection
	for _, query := range queries {
		filtered := manager.QueryTasks(query.Filters, query.Sorts)
		sections = append(sections, QuerySection{
			Name:   query.Name,
			Query:  query,
			Groups: groupTasks(filtered, query.GroupBy, vaultPath),
			Tasks:  filtered,
		})
	}
	return sections
}

// cacheUpdatedMsg carries the snapshot from a cache-updated notification.
type cacheUpdatedMsg struct {
	snapshot *IndexSnapshot
}

// initDoneMsg is sent when the initial index build finishes.
type initDoneMsg struct {
	err error
}

type model struct {
	manager   *IndexManager
	mutator   *Mutator
	watcher   *Watcher
	debouncer *Debouncer
	queries   []*Query
	vaultPath string
	tabWidth  int

	sections []QuerySection
	tasks    []*Task // flat list for navigation
	cursor   int

	spinner      spinner.Model
	loading      bool
	statusMsg    string
	err          error
	quitting     bool
	windowHeight int
	windowWidth  int
}

func newModel(manager *IndexManager, mutator *Mutator, watcher *Watcher, debouncer *Debouncer, queries []*Query, vaultPath string, tabWidth int) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(accentColor)

	return model{
		manager:      manager,
		mutator:      mutator,
		watcher:      watcher,
		debouncer:    debouncer,
		queries:      queries,
		vaultPath:    vaultPath,
		tabWidth:     tabWidth,
		spinner:      s,
		loading:      true,
		windowHeight: defaultWindowHeight,
		windowWidth:  defaultWindowWidth,
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.spinner.Tick,
		tea.WindowSize(),
		func() tea.Msg {
			return initDoneMsg{err: m.manager.Initialize(context.Background())}
		},
	}
	if m.watcher != nil {
		cmds = append(cmds, m.watcher.WatchCmd())
	}
	return tea.Batch(cmds...)
}

// rebuild re-runs the queries against the current cache.
func (m *model) rebuild() {
	m.sections = buildSections(m.manager, m.queries, m.vaultPath)

	var tasks []*Task
	for _, s := range m.sections {
		for _, g := range s.Groups {
			tasks = append(tasks, g.Tasks...)
		}
	}
	m.tasks = tasks

	if m.cursor >= len(m.tasks) {
		m.cursor = len(m.tasks) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// toggle flips a task's completion through the mutation engine. A
// completed recurring task gets its next occurrence inserted by the
// engine before the cursor moves.
func (m *model) toggle(task *Task) {
	updated := task.Clone()
	updated.Completed = !task.Completed

	if err := m.mutator.UpdateTask(context.Background(), updated); err != nil {
		m.statusMsg = fmt.Sprintf("could not save this task edit: %v", err)
		return
	}
	m.statusMsg = ""
	m.rebuild()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.windowHeight = msg.Height
		m.windowWidth = msg.Width

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}

	case initDoneMsg:
		m.loading = false
		m.err = msg.err
		m.rebuild()

	case cacheUpdatedMsg:
		if m.debouncer != nil {
			m.debouncer.Trigger()
		} else {
			m.rebuild()
		}

	case DebouncedRefreshMsg:
		m.rebuild()

	case FileChangeMsg:
		path := msg.Path
		deleted := msg.Deleted
		go func() {
			if deleted {
				m.manager.RemoveFile(path)
				return
			}
			if err := m.manager.IndexFile(context.Background(), path); err != nil {
				log.Printf("taskdex: index %s: %v", path, err)
			}
		}()
		if m.watcher != nil {
			return m, m.watcher.WatchCmd()
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}

		case "down", "j":
			if m.cursor < len(m.tasks)-1 {
				m.cursor++
			}

		case "g":
			m.cursor = 0

		case "G":
			if len(m.tasks) > 0 {
				m.cursor = len(m.tasks) - 1
			}

		case "enter", " ", "x":
			if len(m.tasks) > 0 {
				m.toggle(m.tasks[m.cursor])
			}

		case "r":
			manager := m.manager
			go func() {
				if err := manager.ForceReindex(context.Background()); err != nil {
					log.Printf("taskdex: reindex: %v", err)
				}
			}()
		}
	}

	return m, nil
}

// taskMeta renders the compact metadata suffix for a task row.
func taskMeta(task *Task, now time.Time) string {
	var parts []string

	if task.Priority >= 1 && task.Priority <= 5 {
		parts = append(parts, glyphForPriority[task.Priority])
	}
	if task.DueDate != 0 {
		due := dateFromMillis(task.DueDate)
		label := relativeTime(due, now)
		switch {
		case due.Before(localMidnight(now)):
			label = overdueStyle.Render(label)
		case localMidnight(due).Equal(localMidnight(now)):
			label = dueSoonStyle.Render(label)
		}
		parts = append(parts, label)
	}
	if task.Recurrence != "" {
		parts = append(parts, "🔁")
	}

	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}

func (m model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder

	title := titleNameStyle.Render("taskdex") + titleStyle.Render(fmt.Sprintf(" %s", m.vaultPath))
	b.WriteString(title + "\n")

	if m.loading {
		b.WriteString(fmt.Sprintf("\n%s Indexing vault...\n", m.spinner.View()))
		return b.String()
	}

	if m.err != nil {
		b.WriteString("\n" + errorStyle.Render(fmt.Sprintf("Error: %v", m.err)) + "\n\nPress q to quit.")
		return b.String()
	}

	if len(m.tasks) == 0 {
		b.WriteString("\nNo tasks found.\n")
		b.WriteString("\n" + helpStyle.Render("r reindex • q quit"))
		return b.String()
	}

	now := time.Now()
	var lines []string
	cursorLine := 0
	taskIndex := 0

	for _, section := range m.sections {
		if section.Name != "" {
			count := countStyle.Render(fmt.Sprintf(" (%d)", len(section.Tasks)))
			lines = append(lines, sectionStyle.Render("## "+section.Name)+count)
		}

		for _, group := range section.Groups {
			if section.Query.GroupBy != "" && group.Name != "" {
				lines = append(lines, groupStyle.Render("  ### "+group.Name))
			}

			for _, task := range group.Tasks {
				cursor := "  "
				if m.cursor == taskIndex {
					cursor = cursorStyle.Render("> ")
					cursorLine = len(lines)
				}

				nesting := strings.Repeat("  ", indentLevel(task.OriginalMarkdown, m.tabWidth))
				checkbox := "[" + task.Status + "]"
				line := fmt.Sprintf("%s%s %s", nesting, checkbox, task.Content)
				if task.Completed {
					line = doneStyle.Render(line)
				}
				if m.cursor == taskIndex {
					line = selectedStyle.Render(line)
				}

				fileInfo := fileStyle.Render(fmt.Sprintf(" (%s:%d)", relPath(m.vaultPath, task.FilePath), task.Line+1))
				lines = append(lines, cursor+line+taskMeta(task, now)+fileInfo)
				taskIndex++
			}
		}
	}

	visible := m.windowHeight - reservedUILines
	if visible < minVisibleHeight {
		visible = minVisibleHeight
	}

	start := 0
	if cursorLine >= visible {
		start = cursorLine - visible + 1
	}
	end := min(start+visible, len(lines))

	for _, line := range lines[start:end] {
		b.WriteString(line + "\n")
	}

	helpText := "↑/k up • ↓/j down • space/enter toggle • r reindex • q quit"
	if m.statusMsg != "" {
		helpText = errorStyle.Render(m.statusMsg)
	}
	b.WriteString("\n" + helpStyle.Render(helpText))

	return b.String()
}
