// Package history persists the per-call conversation record spec.md 6
// describes ({call_id, agent_id, status, transcript, phone_number,
// started_at, ended_at}) to Postgres or SQLite, implementing
// call.HistoryStore. It is grounded on the teacher's
// internal/trace/store.go, which is the one place in the pack that
// actually drives jackc/pgx against an embedded-migration schema;
// that structure (embed.FS migrations, schema_version bookkeeping,
// database/sql over the registered driver) is reused here for a
// different table shape.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
	_ "github.com/mattn/go-sqlite3"    // registers "sqlite3" driver

	"github.com/hubenschmidt/voicecore/internal/call"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store implements call.HistoryStore over either Postgres (driver
// "pgx") or SQLite (driver "sqlite3"), selected by config.Config's
// HistoryDBDriver.
type Store struct {
	db     *sql.DB
	driver string
}

var _ call.HistoryStore = (*Store)(nil)

// Open connects to the database named by driver/dsn and runs any
// pending migrations. driver is "pgx" or "sqlite3".
func Open(driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping %s: %w", driver, err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS history_schema_version (version INTEGER NOT NULL)`); err != nil {
		return err
	}
	current := -1
	row := s.db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM history_schema_version`)
	if err := row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	for i := current + 1; i < len(entries); i++ {
		data, err := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if err != nil {
			return fmt.Errorf("read migration %d: %w", i, err)
		}
		if _, err := s.db.Exec(string(data)); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
		if _, err := s.db.Exec(s.q(`INSERT INTO history_schema_version (version) VALUES (?)`), i); err != nil {
			return fmt.Errorf("migration %d record: %w", i, err)
		}
	}
	return nil
}

// q rewrites '?' placeholders to Postgres's '$N' form when driver is
// pgx; sqlite3 accepts '?' as written.
func (s *Store) q(query string) string {
	if s.driver != "pgx" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// EnsureCall lazily creates the calls row for a session, called once
// at session start by the Session Controller's wiring. Idempotent.
func (s *Store) EnsureCall(ctx context.Context, callID, agentID, phoneNumber string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO calls (call_id, agent_id, phone_number, status, started_at)
		VALUES (?, ?, ?, 'in-progress', ?)
	`), callID, agentID, phoneNumber, time.Now().UTC())
	if err != nil && isDuplicateKey(err) {
		return nil
	}
	return err
}

// AppendTurn implements call.HistoryStore: records one (user,
// assistant) exchange.
func (s *Store) AppendTurn(ctx context.Context, callID, user, assistant string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO call_turns (id, call_id, user_text, assistant_text, at)
		VALUES (?, ?, ?, ?, ?)
	`), uuid.NewString(), callID, user, assistant, time.Now().UTC())
	return err
}

// Finalize implements call.HistoryStore: marks the call's terminal
// status and ended_at timestamp.
func (s *Store) Finalize(ctx context.Context, callID, status string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE calls SET status = ?, ended_at = ? WHERE call_id = ?
	`), status, time.Now().UTC(), callID)
	return err
}

// Transcript returns the full turn history for a call as call.Turn
// values, oldest first.
func (s *Store) Transcript(ctx context.Context, callID string) ([]call.Turn, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT user_text, assistant_text, tool_name, at FROM call_turns
		WHERE call_id = ? ORDER BY at ASC
	`), callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []call.Turn
	for rows.Next() {
		var t call.Turn
		if err := rows.Scan(&t.User, &t.Assistant, &t.ToolName, &t.At); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "duplicate key")
}
