package main

import (
	"database/sql"
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SnapshotVersion tags the consolidated cache format. A stored snapshot
// with any other version is treated as absent.
const SnapshotVersion = 2

// storeSchema holds per-file cache records plus consolidated snapshots.
// Writes are whole-value overwrites; there is no partial update.
const storeSchema = `
CREATE TABLE IF NOT EXISTS file_cache (
	path TEXT PRIMARY KEY,
	mtime INTEGER NOT NULL,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	key TEXT PRIMARY KEY,
	version INTEGER NOT NULL,
	data TEXT NOT NULL
);
`

// FileRecord is one persisted per-file cache entry. Time is the file's
// modification time (epoch millis) when the record was written; the record
// is usable only while Time >= the file's current mtime.
type FileRecord struct {
	Time int64   `json:"time"`
	Data []*Task `json:"data"`
}

// Store is the durable task-cache backing. Every operation degrades
// gracefully: storage failures log and read as cache misses, they never
// propagate into the indexer's control flow.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the cache database at path.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StoreFile persists a file's parsed tasks with its modification time.
func (s *Store) StoreFile(path string, mtime int64, tasks []*Task) {
	data, err := json.Marshal(FileRecord{Time: mtime, Data: tasks})
	if err != nil {
		log.Printf("taskdex: store %s: %v", path, err)
		return
	}
	if _, err := s.db.Exec(
		`INSERT INTO file_cache (path, mtime, data) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET mtime = excluded.mtime, data = excluded.data`,
		path, mtime, string(data),
	); err != nil {
		log.Printf("taskdex: store %s: %v", path, err)
	}
}

// LoadFile returns the persisted record for a file, or nil on miss or
// corruption. Staleness against the live file is the caller's check.
func (s *Store) LoadFile(path string) *FileRecord {
	var data string
	err := s.db.QueryRow(`SELECT data FROM file_cache WHERE path = ?`, path).Scan(&data)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		log.Printf("taskdex: load %s: %v", path, err)
		return nil
	}

	var rec FileRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		log.Printf("taskdex: load %s: corrupt record: %v", path, err)
		s.RemoveFile(path)
		return nil
	}
	return &rec
}

// HasFile reports whether a record exists for the path.
func (s *Store) HasFile(path string) bool {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM file_cache WHERE path = ?`, path).Scan(&one)
	return err == nil
}

// RemoveFile drops a file's record.
func (s *Store) RemoveFile(path string) {
	if _, err := s.db.Exec(`DELETE FROM file_cache WHERE path = ?`, path); err != nil {
		log.Printf("taskdex: remove %s: %v", path, err)
	}
}

// StoreSnapshot persists the consolidated cache under a key.
func (s *Store) StoreSnapshot(key string, snap *IndexSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("taskdex: store snapshot: %v", err)
		return
	}
	if _, err := s.db.Exec(
		`INSERT INTO snapshots (key, version, data) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET version = excluded.version, data = excluded.data`,
		key, SnapshotVersion, string(data),
	); err != nil {
		log.Printf("taskdex: store snapshot: %v", err)
	}
}

// LoadSnapshot returns the consolidated cache stored under key, or nil
// when missing, corrupt, or written by a different format version.
func (s *Store) LoadSnapshot(key string) *IndexSnapshot {
	var version int
	var data string
	err := s.db.QueryRow(`SELECT version, data FROM snapshots WHERE key = ?`, key).Scan(&version, &data)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		log.Printf("taskdex: load snapshot: %v", err)
		return nil
	}
	if version != SnapshotVersion {
		return nil
	}

	var snap IndexSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		log.Printf("taskdex: load snapshot: corrupt: %v", err)
		return nil
	}
	return &snap
}

// Synchronize drops per-file records whose path is not in the given list,
// returning the removed paths. Handles files deleted while the program
// was not running.
func (s *Store) Synchronize(currentPaths []string) []string {
	current := make(map[string]struct{}, len(currentPaths))
	for _, p := range currentPaths {
		current[p] = struct{}{}
	}

	rows, err := s.db.Query(`SELECT path FROM file_cache`)
	if err != nil {
		log.Printf("taskdex: synchronize: %v", err)
		return nil
	}
	defer rows.Close()

	var removed []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			log.Printf("taskdex: synchronize: %v", err)
			return removed
		}
		if _, ok := current[path]; !ok {
			removed = append(removed, path)
		}
	}
	if err := rows.Err(); err != nil {
		log.Printf("taskdex: synchronize: %v", err)
	}

	for _, path := range removed {
		s.RemoveFile(path)
	}
	return removed
}

// Purge drops every record and snapshot.
func (s *Store) Purge() {
	if _, err := s.db.Exec(`DELETE FROM file_cache`); err != nil {
		log.Printf("taskdex: purge: %v", err)
	}
	if _, err := s.db.Exec(`DELETE FROM snapshots`); err != nil {
		log.Printf("taskdex: purge: %v", err)
	}
}
