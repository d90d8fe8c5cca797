package main

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestDebouncerCoalesces(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	var fires atomic.Int32
	d.SetNotify(func() { fires.Add(1) })

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fires.Load() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Give a straggler timer time to double-fire before counting.
	time.Sleep(100 * time.Millisecond)
	if n := fires.Load(); n != 1 {
		t.Errorf("burst fired %d times, want 1", n)
	}
}

func TestDebouncerFiresPerBurst(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var fires atomic.Int32
	d.SetNotify(func() { fires.Add(1) })

	d.Trigger()
	time.Sleep(100 * time.Millisecond)
	d.Trigger()
	time.Sleep(100 * time.Millisecond)

	if n := fires.Load(); n != 2 {
		t.Errorf("two separated bursts fired %d times, want 2", n)
	}
}

func TestDebouncerNoNotify(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.Trigger() // must not panic without a callback
	time.Sleep(50 * time.Millisecond)
}

func TestWatcherSeesMarkdownCreate(t *testing.T) {
	vault := t.TempDir()
	w, err := NewWatcher(vault)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	msgs := make(chan tea.Msg, 1)
	go func() { msgs <- w.WatchCmd()() }()

	// Let the watch goroutine settle before generating the event.
	time.Sleep(50 * time.Millisecond)
	path := filepath.Join(vault, "new.md")
	if err := os.WriteFile(path, []byte("- [ ] task\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-msgs:
		change, ok := msg.(FileChangeMsg)
		if !ok {
			t.Fatalf("msg = %T, want FileChangeMsg", msg)
		}
		if filepath.Base(change.Path) != "new.md" || change.Deleted {
			t.Errorf("change = %+v", change)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event for created markdown file")
	}
}

func TestWatcherIgnoresNonMarkdown(t *testing.T) {
	vault := t.TempDir()
	w, err := NewWatcher(vault)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	msgs := make(chan tea.Msg, 1)
	go func() { msgs <- w.WatchCmd()() }()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(vault, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(vault, "real.md"), []byte("- [ ] task\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-msgs:
		change, ok := msg.(FileChangeMsg)
		if !ok {
			t.Fatalf("msg = %T, want FileChangeMsg", msg)
		}
		if !strings.HasSuffix(change.Path, "real.md") {
			t.Errorf("first delivered change = %+v, want the markdown file", change)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no event for created markdown file")
	}
}
