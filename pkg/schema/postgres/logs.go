package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/natserract/harmony/pkg/calllog"
	"go.uber.org/zap"
)

const recordColumns = `id, correlation_id, endpoint, method, status_code, status_message,
	header, request, response, uid, created`

// LogStore persists call records in harmony_call_logs
type LogStore struct {
	db     *DB
	logger *zap.Logger
}

// NewLogStore creates a call log store on db
func NewLogStore(db *DB, logger *zap.Logger) *LogStore {
	return &LogStore{db: db, logger: logger}
}

func (s *LogStore) Create(ctx context.Context, rec *calllog.Record) error {
	err := s.db.Pool().QueryRow(ctx, `
		INSERT INTO harmony_call_logs
			(correlation_id, endpoint, method, status_code, status_message, header, request, response, uid, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		rec.CorrelationID, rec.Endpoint, rec.Method, rec.StatusCode, rec.StatusMessage,
		rec.Headers, rec.Request, rec.Response, rec.ActorID, rec.CreatedAt,
	).Scan(&rec.ID)
	if err != nil {
		s.logger.Error("Failed to insert call record",
			zap.String("endpoint", rec.Endpoint),
			zap.Error(err))
		return fmt.Errorf("failed to insert call record: %w", err)
	}
	return nil
}

func (s *LogStore) Get(ctx context.Context, id int64) (*calllog.Record, error) {
	row := s.db.Pool().QueryRow(ctx, `SELECT `+recordColumns+` FROM harmony_call_logs WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, calllog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load call record %d: %w", id, err)
	}
	return rec, nil
}

func (s *LogStore) List(ctx context.Context, offset, limit int) ([]calllog.Record, int64, error) {
	var total int64
	if err := s.db.Pool().QueryRow(ctx, `SELECT count(*) FROM harmony_call_logs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count call records: %w", err)
	}

	rows, err := s.db.Pool().Query(ctx,
		`SELECT `+recordColumns+` FROM harmony_call_logs ORDER BY id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list call records: %w", err)
	}
	defer rows.Close()

	records := make([]calllog.Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan call record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list call records: %w", err)
	}
	return records, total, nil
}

// Clear truncates the table. The id sequence keeps counting.
func (s *LogStore) Clear(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// held from the count until commit, so the count matches what is truncated
	if _, err := tx.Exec(ctx, `LOCK TABLE harmony_call_logs IN ACCESS EXCLUSIVE MODE`); err != nil {
		return 0, fmt.Errorf("failed to lock call records: %w", err)
	}

	var n int64
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM harmony_call_logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count call records: %w", err)
	}
	if _, err := tx.Exec(ctx, `TRUNCATE harmony_call_logs`); err != nil {
		return 0, fmt.Errorf("failed to truncate call records: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Truncated call records", zap.Int64("count", n))
	return n, nil
}

func scanRecord(row pgx.Row) (*calllog.Record, error) {
	var rec calllog.Record
	err := row.Scan(&rec.ID, &rec.CorrelationID, &rec.Endpoint, &rec.Method, &rec.StatusCode,
		&rec.StatusMessage, &rec.Headers, &rec.Request, &rec.Response, &rec.ActorID, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
