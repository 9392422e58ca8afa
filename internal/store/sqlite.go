package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/infernum/internal/model"

	_ "modernc.org/sqlite"
)

const createRecordsTable = `
CREATE TABLE IF NOT EXISTS records (
    id           TEXT PRIMARY KEY,
    request_id   INTEGER NOT NULL,
    model        TEXT NOT NULL,
    status       TEXT NOT NULL,
    prompt       TEXT NOT NULL,
    image_width  INTEGER NOT NULL,
    image_height INTEGER NOT NULL,
    response     TEXT NOT NULL DEFAULT '',
    error        TEXT NOT NULL DEFAULT '',
    duration_ms  INTEGER,
    created_at   DATETIME NOT NULL,
    started_at   DATETIME,
    finished_at  DATETIME
)`

const recordColumns = `id, request_id, model, status, prompt, image_width, image_height,
	response, error, duration_ms, created_at, started_at, finished_at`

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec(createRecordsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*model.Record, error) {
	r := &model.Record{}
	err := row.Scan(
		&r.ID, &r.RequestID, &r.Model, &r.Status, &r.Prompt, &r.ImageWidth, &r.ImageHeight,
		&r.Response, &r.Error, &r.DurationMS, &r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	)
	return r, err
}

// CreateRecord inserts a new record.
func (s *SQLiteStore) CreateRecord(ctx context.Context, r *model.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RequestID, r.Model, r.Status, r.Prompt, r.ImageWidth, r.ImageHeight,
		r.Response, r.Error, r.DurationMS, r.CreatedAt, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// GetRecord retrieves a record by ID.
func (s *SQLiteStore) GetRecord(ctx context.Context, id string) (*model.Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return r, nil
}

// ListRecords returns a paginated list of records ordered by created_at DESC,
// along with the total count of all records.
func (s *SQLiteStore) ListRecords(ctx context.Context, limit, offset int) ([]*model.Record, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []*model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate records: %w", err)
	}

	return records, total, nil
}

// FinishRecord moves a pending record to r.Status and stores the outcome
// fields. finished_at defaults to now when r.FinishedAt is nil.
func (s *SQLiteStore) FinishRecord(ctx context.Context, r *model.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM records WHERE id = ?", r.ID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get record status: %w", err)
	}
	if !model.ValidTransition(current, r.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, r.Status)
	}

	finishedAt := time.Now().UTC()
	if r.FinishedAt != nil {
		finishedAt = *r.FinishedAt
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET status = ?, response = ?, error = ?, duration_ms = ?,
			started_at = ?, finished_at = ? WHERE id = ?`,
		r.Status, r.Response, r.Error, r.DurationMS, r.StartedAt, finishedAt, r.ID,
	); err != nil {
		return fmt.Errorf("update record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AbandonPending marks every pending record as abandoned and returns how
// many were changed. It is called at startup: work queued by a previous
// process is never resumed.
func (s *SQLiteStore) AbandonPending(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE records SET status = ?, finished_at = ? WHERE status = ?",
		model.StatusAbandoned, time.Now().UTC(), model.StatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("abandon pending records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return int(n), nil
}

// GetRecordStats returns record counts by status and model and the average
// duration of finished records.
func (s *SQLiteStore) GetRecordStats(ctx context.Context) (*RecordStats, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	stats := &RecordStats{
		CountByStatus: make(map[string]int),
		CountByModel:  make(map[string]int),
	}

	if err := countBy(ctx, tx, "status", stats.CountByStatus); err != nil {
		return nil, err
	}
	if err := countBy(ctx, tx, "model", stats.CountByModel); err != nil {
		return nil, err
	}
	for _, n := range stats.CountByStatus {
		stats.Total += n
	}

	var avg sql.NullFloat64
	if err := tx.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM records WHERE duration_ms IS NOT NULL",
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}

	return stats, nil
}

// countBy fills into with COUNT(*) grouped by column. column is never user input.
func countBy(ctx context.Context, tx *sql.Tx, column string, into map[string]int) error {
	rows, err := tx.QueryContext(ctx, "SELECT "+column+", COUNT(*) FROM records GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan count by %s: %w", column, err)
		}
		into[key] = n
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate count by %s: %w", column, err)
	}
	return nil
}
