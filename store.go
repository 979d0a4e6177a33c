package main

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// FoundStore is a durable queue of filenames whose hash matched an unknown
// archive entry. Names stay pending until they have been reported.
type FoundStore struct {
	db *sql.DB
}

func OpenFoundStore(path string) (*FoundStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// in-memory databases are per connection
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS found(
			name TEXT PRIMARY KEY,
			found_at REAL NOT NULL,
			reported INTEGER NOT NULL DEFAULT 0
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating found table: %w", err)
	}

	return &FoundStore{db: db}, nil
}

// Record queues a filename. Recording a known name again is a no-op.
func (s *FoundStore) Record(name string) error {
	_, err := s.db.Exec("INSERT OR IGNORE INTO found(name, found_at, reported) VALUES(?, ?, 0)",
		name, float64(time.Now().UnixMilli())/1000.0)
	return err
}

// Pending returns unreported filenames in the order they were found.
func (s *FoundStore) Pending() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM found WHERE reported = 0 ORDER BY found_at, rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

func (s *FoundStore) MarkReported(names []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("UPDATE found SET reported = 1 WHERE name = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, name := range names {
		if _, err := stmt.Exec(name); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *FoundStore) Close() error {
	return s.db.Close()
}
