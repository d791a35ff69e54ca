// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package archive keeps finished research sessions in a SQLite database so
// earlier corpora can be listed, reopened, and searched.
package archive

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

	"github.com/pdiddy/research-agent/pkg/types"
)

// ErrNotFound is returned when no session matches an id.
var ErrNotFound = errors.New("session not found")

// Store manages the session archive database.
type Store struct {
	db *sql.DB
}

// Summary is one row of the session listing.
type Summary struct {
	ID          string      `json:"id" yaml:"id"`
	Topic       string      `json:"topic" yaml:"topic"`
	Stage       types.Stage `json:"stage" yaml:"stage"`
	Papers      int         `json:"papers" yaml:"papers"`
	Gaps        int         `json:"gaps" yaml:"gaps"`
	StartedAt   time.Time   `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time   `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// PaperHit is an archived paper matched by FindPapers.
type PaperHit struct {
	SessionID string  `json:"session_id" yaml:"session_id"`
	Topic     string  `json:"topic" yaml:"topic"`
	Rank      int     `json:"rank" yaml:"rank"`
	Title     string  `json:"title" yaml:"title"`
	Year      int     `json:"year,omitempty" yaml:"year,omitempty"`
	URL       string  `json:"url,omitempty" yaml:"url,omitempty"`
	Score     float64 `json:"score" yaml:"score"`
}

// Open opens or creates the archive at path and ensures the schema exists.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	s := &Store{db: db}
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

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			stage TEXT NOT NULL,
			failure_reason TEXT,
			paper_count INTEGER NOT NULL,
			gap_count INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			state TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at)`,
		`CREATE TABLE IF NOT EXISTS papers (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			rank INTEGER NOT NULL,
			title TEXT NOT NULL,
			norm_title TEXT NOT NULL,
			authors TEXT,
			year INTEGER,
			citations INTEGER,
			url TEXT,
			source TEXT,
			score REAL,
			PRIMARY KEY (session_id, rank)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_norm_title ON papers(norm_title)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save stores state, replacing any earlier snapshot of the same session.
func (s *Store) Save(ctx context.Context, state types.ResearchState) error {
	if state.ID == "" {
		return fmt.Errorf("saving session: empty id")
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, topic, stage, failure_reason, paper_count, gap_count, started_at, completed_at, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			topic = excluded.topic,
			stage = excluded.stage,
			failure_reason = excluded.failure_reason,
			paper_count = excluded.paper_count,
			gap_count = excluded.gap_count,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			state = excluded.state`,
		state.ID, state.Topic, string(state.Stage), state.FailureReason,
		len(state.Corpus), len(state.Gaps),
		formatTime(state.StartedAt), formatTime(state.CompletedAt), string(blob),
	); err != nil {
		return fmt.Errorf("upserting session %s: %w", state.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM papers WHERE session_id = ?`, state.ID); err != nil {
		return fmt.Errorf("clearing papers for %s: %w", state.ID, err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO papers (session_id, rank, title, norm_title, authors, year, citations, url, source, score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing paper insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range state.Corpus {
		rank := p.Rank
		if rank == 0 {
			rank = i + 1
		}
		var citations sql.NullInt64
		if c, ok := p.CitationCount(); ok {
			citations = sql.NullInt64{Int64: int64(c), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			state.ID, rank, p.Title, p.NormalizedTitle(),
			strings.Join(p.Authors, "; "), p.Year, citations, p.URL, p.Source, p.CompositeScore,
		); err != nil {
			return fmt.Errorf("inserting paper %q: %w", p.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session %s: %w", state.ID, err)
	}
	return nil
}

// List returns the most recent sessions first. A non-positive limit
// returns every session.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	q := `SELECT id, topic, stage, paper_count, gap_count, started_at, completed_at
		FROM sessions ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum                Summary
			stage              string
			started, completed sql.NullString
		)
		if err := rows.Scan(&sum.ID, &sum.Topic, &stage, &sum.Papers, &sum.Gaps, &started, &completed); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sum.Stage = types.Stage(stage)
		sum.StartedAt = parseTime(started.String)
		sum.CompletedAt = parseTime(completed.String)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Get loads a session by id or by a unique id prefix.
func (s *Store) Get(ctx context.Context, id string) (types.ResearchState, error) {
	if id == "" {
		return types.ResearchState{}, ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, state FROM sessions WHERE id = ? OR substr(id, 1, ?) = ? ORDER BY id = ? DESC LIMIT 2`,
		id, len(id), id, id)
	if err != nil {
		return types.ResearchState{}, fmt.Errorf("loading session %s: %w", id, err)
	}
	defer rows.Close()

	var matches []string
	var blob string
	for rows.Next() {
		var gotID, gotState string
		if err := rows.Scan(&gotID, &gotState); err != nil {
			return types.ResearchState{}, fmt.Errorf("scanning session: %w", err)
		}
		if gotID == id {
			matches, blob = []string{gotID}, gotState
			break
		}
		matches = append(matches, gotID)
		blob = gotState
	}
	if err := rows.Err(); err != nil {
		return types.ResearchState{}, err
	}
	switch len(matches) {
	case 0:
		return types.ResearchState{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case 1:
	default:
		return types.ResearchState{}, fmt.Errorf("session prefix %q is ambiguous", id)
	}

	var state types.ResearchState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return types.ResearchState{}, fmt.Errorf("decoding session %s: %w", matches[0], err)
	}
	return state, nil
}

// FindPapers returns archived papers whose title contains every word of
// text, best ranked first.
func (s *Store) FindPapers(ctx context.Context, text string, limit int) ([]PaperHit, error) {
	words := strings.Fields(types.NormalizeText(text))
	if len(words) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var qb strings.Builder
	qb.WriteString(`SELECT p.session_id, s.topic, p.rank, p.title, p.year, p.url, p.score
		FROM papers p JOIN sessions s ON s.id = p.session_id WHERE 1=1`)
	args := make([]any, 0, len(words)+1)
	for _, w := range words {
		qb.WriteString(` AND p.norm_title LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(w)+"%")
	}
	qb.WriteString(` ORDER BY p.score DESC, s.started_at DESC, p.rank LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("searching papers: %w", err)
	}
	defer rows.Close()

	var out []PaperHit
	for rows.Next() {
		var (
			h    PaperHit
			year sql.NullInt64
			url  sql.NullString
		)
		if err := rows.Scan(&h.SessionID, &h.Topic, &h.Rank, &h.Title, &year, &url, &h.Score); err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		h.Year = int(year.Int64)
		h.URL = url.String
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes sessions started before cutoff and returns how
// many were removed.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE started_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("pruning sessions: %w", err)
	}
	return res.RowsAffected()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// timeLayout keeps a fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
