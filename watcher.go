package main

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

// FileChangeMsg is sent when a watched markdown file changes. Deleted is
// set for removals and for the old path of a rename.
type FileChangeMsg struct {
	Path    string
	Deleted bool
}

// DebouncedRefreshMsg signals that file events have settled enough to
// refresh the view.
type DebouncedRefreshMsg struct{}

// Watcher wraps fsnotify to watch vault directories for changes.
type Watcher struct {
	watcher   *fsnotify.Watcher
	vaultPath string
}

// NewWatcher creates a file watcher over every non-hidden directory in
// the vault.
func NewWatcher(vaultPath string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	filepath.Walk(vaultPath, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") && path != vaultPath {
			return filepath.SkipDir
		}
		w.Add(path)
		return nil
	})

	return &Watcher{watcher: w, vaultPath: vaultPath}, nil
}

// WatchCmd returns a BubbleTea command that delivers the next change to a
// markdown file. New directories are added to the watch set as they
// appear so files created under them are seen too.
func (w *Watcher) WatchCmd() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return nil
				}

				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if !strings.HasPrefix(filepath.Base(event.Name), ".") {
							w.watcher.Add(event.Name)
						}
						continue
					}
				}

				if !strings.HasSuffix(strings.ToLower(event.Name), ".md") {
					continue
				}

				deleted := event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
				return FileChangeMsg{Path: event.Name, Deleted: deleted}

			case _, ok := <-w.watcher.Errors:
				if !ok {
					return nil
				}
				continue
			}
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Debouncer coalesces rapid cache-updated notifications into a single
// refresh callback: each Trigger restarts the timer, so the callback
// fires once per burst, after the burst settles.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
	notify   func()
}

// NewDebouncer creates a new debouncer with the given delay duration.
func NewDebouncer(d time.Duration) *Debouncer {
	return &Debouncer{duration: d}
}

// SetNotify sets the callback fired after events settle.
func (d *Debouncer) SetNotify(fn func()) {
	d.mu.Lock()
	d.notify = fn
	d.mu.Unlock()
}

// SetProgram routes settled events into a BubbleTea program as
// DebouncedRefreshMsg.
func (d *Debouncer) SetProgram(p *tea.Program) {
	d.SetNotify(func() {
		p.Send(DebouncedRefreshMsg{})
	})
}

// Trigger starts or resets the debounce timer.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.duration, func() {
		d.mu.Lock()
		fn := d.notify
		d.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
}
