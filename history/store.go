// Package history keeps the shell's command history in a SQLite database.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"jobsh/parser"
)

// Session identifies one run of the shell.
type Session struct {
	ID        string
	StartTime time.Time
	UserID    int
	Hostname  string
}

// NewSession initializes a new session with current environmental data.
func NewSession() Session {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	return Session{
		ID:        uuid.New().String(),
		StartTime: time.Now(),
		UserID:    os.Geteuid(),
		Hostname:  hostname,
	}
}

// Entry is one recorded command line.
type Entry struct {
	ID         int64
	SessionID  string
	Line       string
	Dir        string
	ReturnCode int
	StartTime  time.Time
	Duration   time.Duration
}

// Store manages shell history in a single SQLite database.
type Store struct {
	db      *sql.DB
	lock    sync.RWMutex
	path    string
	session Session
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	start_time INTEGER NOT NULL,
	end_time INTEGER,
	user_id INTEGER NOT NULL,
	hostname TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS commands (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	cwd TEXT NOT NULL,
	line TEXT NOT NULL,
	base_command TEXT NOT NULL,
	start_time INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	return_code INTEGER NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(id)
);

CREATE TABLE IF NOT EXISTS arguments (
	base_command TEXT NOT NULL,
	text TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 1,
	last_used INTEGER NOT NULL,
	PRIMARY KEY (base_command, text)
);

CREATE INDEX IF NOT EXISTS idx_commands_session_id ON commands(session_id);
CREATE INDEX IF NOT EXISTS idx_commands_base_command ON commands(base_command);
`

// Open opens or creates the database at path and starts a new session in it.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for database: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	s := &Store{db: db, path: path, session: NewSession()}
	_, err = db.Exec(
		"INSERT INTO sessions (id, start_time, user_id, hostname) VALUES (?, ?, ?, ?)",
		s.session.ID, s.session.StartTime.Unix(), s.session.UserID, s.session.Hostname,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	return s, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Session returns the session this store records into.
func (s *Store) Session() Session { return s.session }

// Record adds a line run in dir that finished with returnCode, and counts
// the arguments of each stage for completion. Blank lines are ignored.
func (s *Store) Record(line, dir string, returnCode int, start time.Time, duration time.Duration) (err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	stages := splitStages(line)
	base := ""
	if len(stages) > 0 {
		base = stages[0][0]
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(
		`INSERT INTO commands
		(session_id, cwd, line, base_command, start_time, duration_ms, return_code)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.session.ID, dir, line, base, start.Unix(), duration.Milliseconds(), returnCode,
	)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	for _, words := range stages {
		for _, arg := range words[1:] {
			if arg == "" {
				continue
			}
			_, err = tx.Exec(
				`INSERT INTO arguments (base_command, text, last_used)
				VALUES (?, ?, ?)
				ON CONFLICT(base_command, text) DO UPDATE SET
				count=count+1, last_used=?`,
				words[0], arg, now, now,
			)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// splitStages returns the unquoted words of every stage in line. Lines that
// do not parse yield only their first field as a command name.
func splitStages(line string) [][]string {
	specs, err := parser.ParseLine(line)
	if err != nil {
		if fields := strings.Fields(line); len(fields) > 0 {
			return [][]string{{fields[0]}}
		}
		return nil
	}

	var stages [][]string
	for _, spec := range specs {
		for _, st := range spec.Stages {
			words := []string{st.Name.String()}
			for _, arg := range st.Args {
				words = append(words, arg.String())
			}
			stages = append(stages, words)
		}
	}
	return stages
}

// Arguments returns arguments previously given to command that start with
// prefix, most used first.
func (s *Store) Arguments(command, prefix string, limit int) ([]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	rows, err := s.db.Query(`
		SELECT text
		FROM arguments
		WHERE base_command = ? AND substr(text, 1, ?) = ?
		ORDER BY count DESC, last_used DESC
		LIMIT ?`, command, utf8.RuneCountInString(prefix), prefix, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	return out, rows.Err()
}

// Recent returns the last n lines, oldest first. n <= 0 returns everything.
func (s *Store) Recent(n int) ([]string, error) {
	entries, err := s.Entries("", n)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Line
	}
	return lines, nil
}

// Entries returns the last n entries, oldest first, optionally limited to one
// session.
func (s *Store) Entries(sessionID string, n int) ([]Entry, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	query := "SELECT id, session_id, cwd, line, return_code, start_time, duration_ms FROM commands"
	var args []any
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY id DESC"
	if n > 0 {
		query += " LIMIT ?"
		args = append(args, n)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var start, ms int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Dir, &e.Line, &e.ReturnCode, &start, &ms); err != nil {
			return nil, err
		}
		e.StartTime = time.Unix(start, 0)
		e.Duration = time.Duration(ms) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Clear removes every command and every finished session.
func (s *Store) Clear() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec("DELETE FROM arguments"); err != nil {
		return err
	}
	if _, err = tx.Exec("DELETE FROM commands"); err != nil {
		return err
	}
	if _, err = tx.Exec("DELETE FROM sessions WHERE id != ?", s.session.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// Close ends the session and closes the database.
func (s *Store) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, err := s.db.Exec("UPDATE sessions SET end_time = ? WHERE id = ?", time.Now().Unix(), s.session.ID)
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}
	return err
}
