// Package store keeps a SQLite ledger of finished runs: one row per run,
// one per question outcome and one per trial. Nothing in it is read back
// into a run.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"quizsolver/internal/logging"
	"quizsolver/internal/solver"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned when no run matches an id or id prefix.
var ErrRunNotFound = errors.New("run not found")

// ErrAmbiguousRun is returned when an id prefix matches several runs.
var ErrAmbiguousRun = errors.New("run id prefix is ambiguous")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	quiz_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	rounds INTEGER NOT NULL,
	attempt_limit INTEGER NOT NULL,
	stop_reason TEXT NOT NULL,
	score REAL,
	score_total REAL,
	passed INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

CREATE TABLE IF NOT EXISTS outcomes (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	question_id TEXT NOT NULL,
	status TEXT NOT NULL,
	final_choice INTEGER NOT NULL,
	choices INTEGER NOT NULL,
	token TEXT NOT NULL,
	label TEXT NOT NULL,
	PRIMARY KEY (run_id, question_id)
);

CREATE TABLE IF NOT EXISTS trials (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	question_id TEXT NOT NULL,
	round INTEGER NOT NULL,
	choice INTEGER NOT NULL,
	verdict TEXT NOT NULL,
	PRIMARY KEY (run_id, question_id, round)
);
`

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID           string
	QuizID       string
	SessionID    string
	StartedAt    time.Time
	FinishedAt   time.Time
	Rounds       int
	AttemptLimit int
	Stop         string
	Score        float64 // NaN when the scorer reported none
	ScoreTotal   float64
	Passed       bool
}

// OutcomeRecord is the final state of one question in a run.
type OutcomeRecord struct {
	QuestionID string
	Status     string
	Final      int
	Choices    int
	Token      string
	Label      string
}

// TrialRecord is one judged proposal.
type TrialRecord struct {
	QuestionID string
	Round      int
	Choice     int
	Verdict    string
}

// HistoryStore is the run ledger.
type HistoryStore struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// OpenHistory opens (creating if needed) the ledger at path.
func OpenHistory(path string, log *zap.Logger) (*HistoryStore, error) {
	log = logging.For(log, logging.CategoryStore)
	timer := logging.StartTimer(log, "open history")
	defer timer.Stop()

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Debug("history opened", zap.String("path", path))
	return &HistoryStore{db: db, path: path, log: log}, nil
}

// Close closes the database.
func (s *HistoryStore) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *HistoryStore) Path() string { return s.path }

// RecordRun stores a finished run in one transaction.
func (s *HistoryStore) RecordRun(ctx context.Context, r *solver.Report) error {
	if r == nil {
		return errors.New("nil report")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, quiz_id, session_id, started_at, finished_at, rounds, attempt_limit, stop_reason, score, score_total, passed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.QuizID, r.SessionID,
		r.StartedAt.UTC().Format(time.RFC3339Nano), r.FinishedAt.UTC().Format(time.RFC3339Nano),
		r.Rounds, r.AttemptLimit, string(r.Stop),
		nullable(r.Score), nullable(r.ScoreTotal), r.Passed,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	outcomeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outcomes (run_id, position, question_id, status, final_choice, choices, token, label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare outcomes: %w", err)
	}
	defer outcomeStmt.Close()

	trialStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trials (run_id, question_id, round, choice, verdict)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare trials: %w", err)
	}
	defer trialStmt.Close()

	trials := 0
	for i, q := range r.Questions {
		if _, err := outcomeStmt.ExecContext(ctx, r.RunID, i, q.QuestionID, q.Status.String(), q.Final, q.Choices, q.Token, q.Label); err != nil {
			return fmt.Errorf("insert outcome %s: %w", q.QuestionID, err)
		}
		for _, t := range q.Trials {
			if _, err := trialStmt.ExecContext(ctx, r.RunID, q.QuestionID, t.Round, t.Choice, t.Verdict.String()); err != nil {
				return fmt.Errorf("insert trial %s/%d: %w", q.QuestionID, t.Round, err)
			}
			trials++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.log.Debug("run recorded",
		zap.String("run", r.RunID),
		zap.Int("questions", len(r.Questions)),
		zap.Int("trials", trials),
	)
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 means all.
func (s *HistoryStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `SELECT id, quiz_id, session_id, started_at, finished_at, rounds, attempt_limit, stop_reason, score, score_total, passed
		FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetRun returns the run whose id equals or starts with idOrPrefix.
func (s *HistoryStore) GetRun(ctx context.Context, idOrPrefix string) (*RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, quiz_id, session_id, started_at, finished_at, rounds, attempt_limit, stop_reason, score, score_total, passed
		FROM runs WHERE id = ? OR substr(id, 1, length(?)) = ? ORDER BY (id = ?) DESC LIMIT 2`,
		idOrPrefix, idOrPrefix, idOrPrefix, idOrPrefix)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	var found []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, idOrPrefix)
	case found[0].ID == idOrPrefix, len(found) == 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRun, idOrPrefix)
	}
}

// Outcomes returns a run's question outcomes in catalog order.
func (s *HistoryStore) Outcomes(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question_id, status, final_choice, choices, token, label
		FROM outcomes WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var o OutcomeRecord
		if err := rows.Scan(&o.QuestionID, &o.Status, &o.Final, &o.Choices, &o.Token, &o.Label); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Trials returns a run's trials ordered by round, then question position.
func (s *HistoryStore) Trials(ctx context.Context, runID string) ([]TrialRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.question_id, t.round, t.choice, t.verdict
		FROM trials t JOIN outcomes o ON o.run_id = t.run_id AND o.question_id = t.question_id
		WHERE t.run_id = ? ORDER BY t.round, o.position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	var out []TrialRecord
	for rows.Next() {
		var t TrialRecord
		if err := rows.Scan(&t.QuestionID, &t.Round, &t.Choice, &t.Verdict); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var (
		rec               RunRecord
		started, finished string
		score, total      sql.NullFloat64
	)
	if err := row.Scan(&rec.ID, &rec.QuizID, &rec.SessionID, &started, &finished,
		&rec.Rounds, &rec.AttemptLimit, &rec.Stop, &score, &total, &rec.Passed); err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	rec.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	rec.Score = fromNullable(score)
	rec.ScoreTotal = fromNullable(total)
	return &rec, nil
}

// SQLite cannot hold NaN; it is stored as NULL.
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
