package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"
)

// TaskIndex is the authoritative in-memory mapping of file → task ids and
// task id → Task. It is not safe for concurrent use; the IndexManager is
// its sole mutation surface.
type TaskIndex struct {
	files map[string]map[string]struct{}
	tasks map[string]*Task
}

// IndexSnapshot is a serializable copy of the whole index, used for
// cache-updated notifications and consolidated persistence.
type IndexSnapshot struct {
	Files map[string][]string `json:"files"`
	Tasks map[string]*Task    `json:"tasks"`
}

// NewTaskIndex creates an empty index.
func NewTaskIndex() *TaskIndex {
	return &TaskIndex{
		files: make(map[string]map[string]struct{}),
		tasks: make(map[string]*Task),
	}
}

// UpdateFile atomically replaces all entries for a file with the given
// tasks. An empty task list removes the file entry entirely.
func (ix *TaskIndex) UpdateFile(path string, tasks []*Task) {
	ix.RemoveFile(path)
	if len(tasks) == 0 {
		return
	}

	ids := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		ids[task.ID] = struct{}{}
		ix.tasks[task.ID] = task
	}
	ix.files[path] = ids
}

// RemoveFile drops a file and every task it owns.
func (ix *TaskIndex) RemoveFile(path string) {
	for id := range ix.files[path] {
		delete(ix.tasks, id)
	}
	delete(ix.files, path)
}

// Get returns the task with the given id.
func (ix *TaskIndex) Get(id string) (*Task, bool) {
	task, ok := ix.tasks[id]
	return task, ok
}

// Tasks returns every indexed task ordered by file path and line.
func (ix *TaskIndex) Tasks() []*Task {
	tasks := make([]*Task, 0, len(ix.tasks))
	for _, task := range ix.tasks {
		tasks = append(tasks, task)
	}
	slices.SortFunc(tasks, func(a, b *Task) int {
		if r := cmp.Compare(a.FilePath, b.FilePath); r != 0 {
			return r
		}
		return cmp.Compare(a.Line, b.Line)
	})
	return tasks
}

// Paths returns every indexed file path.
func (ix *TaskIndex) Paths() []string {
	paths := make([]string, 0, len(ix.files))
	for path := range ix.files {
		paths = append(paths, path)
	}
	return paths
}

// Count returns the number of indexed tasks.
func (ix *TaskIndex) Count() int {
	return len(ix.tasks)
}

// Reset clears both maps.
func (ix *TaskIndex) Reset() {
	ix.files = make(map[string]map[string]struct{})
	ix.tasks = make(map[string]*Task)
}

// Snapshot returns a deep copy of the index.
func (ix *TaskIndex) Snapshot() *IndexSnapshot {
	snap := &IndexSnapshot{
		Files: make(map[string][]string, len(ix.files)),
		Tasks: make(map[string]*Task, len(ix.tasks)),
	}
	for path, ids := range ix.files {
		list := make([]string, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		slices.Sort(list)
		snap.Files[path] = list
	}
	for id, task := range ix.tasks {
		snap.Tasks[id] = task.Clone()
	}
	return snap
}

// Hydrate bulk-replaces the index from a snapshot, dropping entries that
// violate the files/tasks consistency invariant.
func (ix *TaskIndex) Hydrate(snap *IndexSnapshot) {
	ix.Reset()
	for path, ids := range snap.Files {
		var tasks []*Task
		for _, id := range ids {
			task, ok := snap.Tasks[id]
			if !ok || task.FilePath != path {
				continue
			}
			tasks = append(tasks, task.Clone())
		}
		ix.UpdateFile(path, tasks)
	}
}

// Manager lifecycle states.
type managerState int

const (
	stateUninitialized managerState = iota
	stateInitializing
	stateInitialized
)

const (
	indexBatchSize = 32
	snapshotKey    = "consolidated"
)

// IndexManager owns the task index, its persistence and the parsing
// pipeline. All cache mutations flow through it, and every externally
// visible mutation fires exactly one cache-updated notification.
type IndexManager struct {
	vault  string
	opts   ParseOptions
	proc   TaskProcessor
	store  *Store // nil disables persistence
	notify func(*IndexSnapshot)

	mu       sync.Mutex
	index    *TaskIndex
	state    managerState
	initDone chan struct{}
	initErr  error
}

// NewIndexManager creates a manager over the given vault. store may be nil.
func NewIndexManager(vault string, proc TaskProcessor, store *Store, opts ParseOptions) *IndexManager {
	return &IndexManager{
		vault: vault,
		opts:  opts,
		proc:  proc,
		store: store,
		index: NewTaskIndex(),
	}
}

// OnUpdate registers the cache-updated notification callback. The callback
// receives a full snapshot and runs on the mutating goroutine.
func (m *IndexManager) OnUpdate(fn func(*IndexSnapshot)) {
	m.notify = fn
}

// Initialize builds the index from the vault, hydrating from persistence
// where records are still fresh. Concurrent calls while an initialization
// is in flight join it instead of duplicating work; exactly one
// cache-updated notification fires for the whole pass.
func (m *IndexManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case stateInitialized:
		m.mu.Unlock()
		return nil
	case stateInitializing:
		done := m.initDone
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		m.mu.Lock()
		err := m.initErr
		m.mu.Unlock()
		return err
	}
	m.state = stateInitializing
	m.initDone = make(chan struct{})
	m.mu.Unlock()

	err := m.buildIndex(ctx)

	m.mu.Lock()
	if err != nil {
		m.state = stateUninitialized
	} else {
		m.state = stateInitialized
	}
	m.initErr = err
	close(m.initDone)
	m.mu.Unlock()

	if err == nil {
		m.notifyUpdated()
	}
	return err
}

// buildIndex performs one full indexing pass: hydrate from the
// consolidated snapshot, reconcile every vault file against per-file
// records (re-parsing stale ones), prune files no longer on disk, and
// write both persistence layers back.
func (m *IndexManager) buildIndex(ctx context.Context) error {
	if m.store != nil {
		if snap := m.store.LoadSnapshot(snapshotKey); snap != nil {
			m.mu.Lock()
			m.index.Hydrate(snap)
			m.mu.Unlock()
		}
	}

	files, err := scanVault(m.vault)
	if err != nil {
		return fmt.Errorf("scan vault: %w", err)
	}

	if m.store != nil {
		if removed := m.store.Synchronize(files); len(removed) > 0 {
			log.Printf("taskdex: pruned %d stale cache entries", len(removed))
		}
	}

	onDisk := make(map[string]struct{}, len(files))
	for _, path := range files {
		onDisk[path] = struct{}{}
	}

	// Drop hydrated entries for files deleted while we were not running.
	m.mu.Lock()
	for _, path := range m.index.Paths() {
		if _, ok := onDisk[path]; !ok {
			m.index.RemoveFile(path)
		}
	}
	m.mu.Unlock()

	for start := 0; start < len(files); start += indexBatchSize {
		end := min(start+indexBatchSize, len(files))
		for _, path := range files[start:end] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := m.reindexFile(ctx, path); err != nil {
				log.Printf("taskdex: index %s: %v", path, err)
			}
		}
		// Keep the host loop responsive during large scans.
		runtime.Gosched()
	}

	if m.store != nil {
		m.store.StoreSnapshot(snapshotKey, m.snapshotLocked())
	}
	return nil
}

// reindexFile brings one file's index entries up to date, reusing the
// persisted record when it is still fresh.
func (m *IndexManager) reindexFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.mu.Lock()
			m.index.RemoveFile(path)
			m.mu.Unlock()
			if m.store != nil {
				m.store.RemoveFile(path)
			}
			return nil
		}
		return err
	}
	mtime := info.ModTime().UnixMilli()

	if m.store != nil {
		if rec := m.store.LoadFile(path); rec != nil && rec.Time >= mtime {
			m.mu.Lock()
			m.index.UpdateFile(path, rec.Data)
			m.mu.Unlock()
			return nil
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	tasks, err := m.proc.ProcessFile(ctx, path, string(content))
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.index.UpdateFile(path, tasks)
	m.mu.Unlock()

	if m.store != nil {
		m.store.StoreFile(path, mtime, tasks)
	}
	return nil
}

// IndexFile re-indexes a single file and fires one notification.
func (m *IndexManager) IndexFile(ctx context.Context, path string) error {
	if err := m.reindexFile(ctx, path); err != nil {
		return err
	}
	m.notifyUpdated()
	return nil
}

// RemoveFile drops a deleted file from the index and persistence.
func (m *IndexManager) RemoveFile(path string) {
	m.mu.Lock()
	m.index.RemoveFile(path)
	m.mu.Unlock()
	if m.store != nil {
		m.store.RemoveFile(path)
	}
	m.notifyUpdated()
}

// RenameFile moves a file's entries to its new path. Task ids embed the
// path, so the new path is fully re-derived.
func (m *IndexManager) RenameFile(ctx context.Context, oldPath, newPath string) error {
	m.mu.Lock()
	m.index.RemoveFile(oldPath)
	m.mu.Unlock()
	if m.store != nil {
		m.store.RemoveFile(oldPath)
	}
	if err := m.reindexFile(ctx, newPath); err != nil {
		m.notifyUpdated()
		return err
	}
	m.notifyUpdated()
	return nil
}

// ForceReindex clears all cache state and rebuilds from scratch. Safe to
// call while a prior pass is finishing: it waits the pass out, then
// supersedes it.
func (m *IndexManager) ForceReindex(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.state != stateInitializing {
			break
		}
		done := m.initDone
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.index.Reset()
	m.state = stateUninitialized
	m.mu.Unlock()

	if m.store != nil {
		m.store.Purge()
	}
	return m.Initialize(ctx)
}

// QueryTasks returns all cached tasks matching every filter, sorted by the
// given criteria. Before the first successful initialization it returns
// nothing and kicks off initialization in the background.
func (m *IndexManager) QueryTasks(filters []Filter, sorts []SortCriterion) []*Task {
	m.mu.Lock()
	ready := m.state == stateInitialized
	var tasks []*Task
	if ready {
		tasks = m.index.Tasks()
	}
	m.mu.Unlock()

	if !ready {
		go func() {
			if err := m.Initialize(context.Background()); err != nil {
				log.Printf("taskdex: initialize: %v", err)
			}
		}()
		return nil
	}

	return sortTasks(applyFilters(tasks, filters, time.Now()), sorts)
}

// GetTaskByID returns the indexed task with the given id.
func (m *IndexManager) GetTaskByID(id string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.index.Get(id)
	if !ok {
		return nil, false
	}
	return task.Clone(), true
}

// Snapshot returns a deep copy of the current cache.
func (m *IndexManager) Snapshot() *IndexSnapshot {
	return m.snapshotLocked()
}

func (m *IndexManager) snapshotLocked() *IndexSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index.Snapshot()
}

func (m *IndexManager) notifyUpdated() {
	if m.notify != nil {
		m.notify(m.Snapshot())
	}
}

// scanVault recursively finds all .md files in a directory, skipping
// hidden directories.
func scanVault(vaultPath string) ([]string, error) {
	var files []string

	err := filepath.Walk(vaultPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() && strings.HasPrefix(info.Name(), ".") && path != vaultPath {
			return filepath.SkipDir
		}

		if !info.IsDir() && strings.HasSuffix(strings.ToLower(info.Name()), ".md") {
			files = append(files, path)
		}

		return nil
	})

	return files, err
}
