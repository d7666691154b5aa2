// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package journal keeps finished refinement sessions in SQLite for audit and
// rollback: every draft, critique and editor note, with full-text search
// over briefs and final articles.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/newsdesk/pkg/types"
)

const dbFile = "journal.db"

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound means no session has the requested id.
var ErrNotFound = errors.New("session not found")

// Store manages the journal database.
type Store struct {
	db  *sql.DB
	dir string
}

// Open opens or creates dir/journal.db and its schema.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFile)+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dir: dir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the directory holding the database and exports.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			brief TEXT NOT NULL,
			state TEXT NOT NULL,
			final_text TEXT,
			final_score REAL,
			final_iteration INTEGER,
			cause TEXT,
			passages TEXT,
			started_at TEXT,
			finished_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS iterations (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			iteration INTEGER NOT NULL,
			text TEXT NOT NULL,
			passages TEXT,
			critique TEXT,
			human TEXT,
			created_at TEXT,
			PRIMARY KEY (session_id, iteration)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='sessions_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists > 0 {
		return nil
	}

	ftsStatements := []string{
		`CREATE VIRTUAL TABLE sessions_fts USING fts5(brief, final_text, content=sessions, content_rowid=rowid)`,
		`CREATE TRIGGER sessions_ai AFTER INSERT ON sessions BEGIN
			INSERT INTO sessions_fts(rowid, brief, final_text) VALUES (new.rowid, new.brief, new.final_text);
		END`,
		`CREATE TRIGGER sessions_ad AFTER DELETE ON sessions BEGIN
			INSERT INTO sessions_fts(sessions_fts, rowid, brief, final_text) VALUES('delete', old.rowid, old.brief, old.final_text);
		END`,
	}
	for _, stmt := range ftsStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating FTS infrastructure: %w", err)
		}
	}
	return nil
}

// Save records a finished session. Saving an id twice replaces the earlier
// record.
func (s *Store) Save(ctx context.Context, res types.SessionResult) error {
	if res.SessionID == "" {
		return errors.New("session id is required")
	}
	if !res.State.Terminal() {
		return fmt.Errorf("session %s is not finished (state %s)", res.SessionID, res.State)
	}

	passages, err := json.Marshal(res.Passages)
	if err != nil {
		return fmt.Errorf("encoding passages: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, res.SessionID); err != nil {
		return fmt.Errorf("replacing session: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, brief, state, final_text, final_score, final_iteration, cause, passages, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.SessionID, res.Brief, string(res.State), res.FinalText, res.FinalScore, res.FinalIteration,
		res.CauseMessage(), string(passages), formatTime(res.StartedAt), formatTime(res.FinishedAt),
	); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO iterations (session_id, iteration, text, passages, critique, human, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing iteration insert: %w", err)
	}
	defer stmt.Close()

	for _, it := range res.Iterations {
		ids, _ := json.Marshal(it.Candidate.Passages)
		crit, err := nullJSON(it.Critique)
		if err != nil {
			return fmt.Errorf("encoding critique %d: %w", it.Candidate.Iteration, err)
		}
		human, err := nullJSON(it.Human)
		if err != nil {
			return fmt.Errorf("encoding feedback %d: %w", it.Candidate.Iteration, err)
		}
		if _, err := stmt.ExecContext(ctx,
			res.SessionID, it.Candidate.Iteration, it.Candidate.Text, string(ids), crit, human,
			formatTime(it.Candidate.CreatedAt),
		); err != nil {
			return fmt.Errorf("inserting iteration %d: %w", it.Candidate.Iteration, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session: %w", err)
	}
	return nil
}

// Summary is one row of a session listing.
type Summary struct {
	ID         string             `json:"id" yaml:"id"`
	Brief      string             `json:"brief" yaml:"brief"`
	State      types.SessionState `json:"state" yaml:"state"`
	FinalScore float64            `json:"final_score" yaml:"final_score"`
	Drafts     int                `json:"drafts" yaml:"drafts"`
	FinishedAt time.Time          `json:"finished_at" yaml:"finished_at"`
}

// ListOptions filters a listing.
type ListOptions struct {
	// Query is an FTS5 search over briefs and final articles.
	Query string

	// State keeps only sessions that ended in this state.
	State types.SessionState

	// Limit caps the number of rows. Zero means 50.
	Limit int
}

// List returns matching sessions, best match first for full-text queries
// and most recent first otherwise.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Summary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(`SELECT s.id, s.brief, s.state, s.final_score, s.finished_at,
		(SELECT count(*) FROM iterations i WHERE i.session_id = s.id)`)
	if opts.Query != "" {
		qb.WriteString(` FROM sessions_fts JOIN sessions s ON s.rowid = sessions_fts.rowid WHERE sessions_fts MATCH ?`)
		args = append(args, opts.Query)
	} else {
		qb.WriteString(` FROM sessions s WHERE 1=1`)
	}
	if opts.State != "" {
		qb.WriteString(` AND s.state = ?`)
		args = append(args, string(opts.State))
	}
	if opts.Query != "" {
		qb.WriteString(` ORDER BY sessions_fts.rank`)
	} else {
		qb.WriteString(` ORDER BY s.finished_at DESC, s.rowid DESC`)
	}
	qb.WriteString(` LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum      Summary
			state    string
			score    sql.NullFloat64
			finished sql.NullString
		)
		if err := rows.Scan(&sum.ID, &sum.Brief, &state, &score, &finished, &sum.Drafts); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		sum.State = types.SessionState(state)
		sum.FinalScore = score.Float64
		sum.FinishedAt = parseTime(finished.String)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Get loads one session with its full iteration history.
func (s *Store) Get(ctx context.Context, id string) (types.SessionResult, error) {
	var (
		res               types.SessionResult
		state             string
		finalText, cause  sql.NullString
		passages          sql.NullString
		started, finished sql.NullString
		score             sql.NullFloat64
		finalIter         sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, brief, state, final_text, final_score, final_iteration, cause, passages, started_at, finished_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&res.SessionID, &res.Brief, &state, &finalText, &score, &finalIter, &cause, &passages, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return types.SessionResult{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return types.SessionResult{}, fmt.Errorf("querying session: %w", err)
	}

	res.State = types.SessionState(state)
	res.FinalText = finalText.String
	res.FinalScore = score.Float64
	res.FinalIteration = int(finalIter.Int64)
	if cause.String != "" {
		res.Cause = errors.New(cause.String)
	}
	if passages.Valid {
		if err := json.Unmarshal([]byte(passages.String), &res.Passages); err != nil {
			return types.SessionResult{}, fmt.Errorf("decoding passages: %w", err)
		}
	}
	res.StartedAt = parseTime(started.String)
	res.FinishedAt = parseTime(finished.String)

	rows, err := s.db.QueryContext(ctx,
		`SELECT iteration, text, passages, critique, human, created_at
		FROM iterations WHERE session_id = ? ORDER BY iteration`, id)
	if err != nil {
		return types.SessionResult{}, fmt.Errorf("querying iterations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it                   types.Iteration
			ids, crit, human, at sql.NullString
		)
		if err := rows.Scan(&it.Candidate.Iteration, &it.Candidate.Text, &ids, &crit, &human, &at); err != nil {
			return types.SessionResult{}, fmt.Errorf("scanning iteration: %w", err)
		}
		if ids.Valid {
			if err := json.Unmarshal([]byte(ids.String), &it.Candidate.Passages); err != nil {
				return types.SessionResult{}, fmt.Errorf("decoding passages of iteration %d: %w", it.Candidate.Iteration, err)
			}
		}
		if crit.Valid {
			it.Critique = &types.Critique{}
			if err := json.Unmarshal([]byte(crit.String), it.Critique); err != nil {
				return types.SessionResult{}, fmt.Errorf("decoding critique %d: %w", it.Candidate.Iteration, err)
			}
		}
		if human.Valid {
			it.Human = &types.HumanFeedback{}
			if err := json.Unmarshal([]byte(human.String), it.Human); err != nil {
				return types.SessionResult{}, fmt.Errorf("decoding feedback %d: %w", it.Candidate.Iteration, err)
			}
		}
		it.Candidate.CreatedAt = parseTime(at.String)
		res.Iterations = append(res.Iterations, it)
	}
	return res, rows.Err()
}

func nullJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}
