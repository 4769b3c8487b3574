package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/natserract/harmony/pkg/calllog"
	"go.uber.org/zap"
)

// logRow mirrors harmony_call_logs; created is unix nanoseconds.
type logRow struct {
	ID            int64  `db:"id"`
	CorrelationID string `db:"correlation_id"`
	Endpoint      string `db:"endpoint"`
	Method        string `db:"method"`
	StatusCode    int    `db:"status_code"`
	StatusMessage string `db:"status_message"`
	Header        string `db:"header"`
	Request       string `db:"request"`
	Response      string `db:"response"`
	UID           string `db:"uid"`
	Created       int64  `db:"created"`
}

func (r logRow) record() calllog.Record {
	return calllog.Record{
		ID:            r.ID,
		CorrelationID: r.CorrelationID,
		Endpoint:      r.Endpoint,
		Method:        r.Method,
		StatusCode:    r.StatusCode,
		StatusMessage: r.StatusMessage,
		Headers:       r.Header,
		Request:       r.Request,
		Response:      r.Response,
		ActorID:       r.UID,
		CreatedAt:     time.Unix(0, r.Created).UTC(),
	}
}

// LogStore persists call records in harmony_call_logs
type LogStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func (s *LogStore) Create(ctx context.Context, rec *calllog.Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO harmony_call_logs
			(correlation_id, endpoint, method, status_code, status_message, header, request, response, uid, created)
		VALUES
			(:correlation_id, :endpoint, :method, :status_code, :status_message, :header, :request, :response, :uid, :created)`,
		logRow{
			CorrelationID: rec.CorrelationID,
			Endpoint:      rec.Endpoint,
			Method:        rec.Method,
			StatusCode:    rec.StatusCode,
			StatusMessage: rec.StatusMessage,
			Header:        rec.Headers,
			Request:       rec.Request,
			Response:      rec.Response,
			UID:           rec.ActorID,
			Created:       rec.CreatedAt.UnixNano(),
		})
	if err != nil {
		s.logger.Error("Failed to insert call record",
			zap.String("endpoint", rec.Endpoint),
			zap.Error(err))
		return fmt.Errorf("failed to insert call record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read call record id: %w", err)
	}
	rec.ID = id
	return nil
}

func (s *LogStore) Get(ctx context.Context, id int64) (*calllog.Record, error) {
	var row logRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM harmony_call_logs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, calllog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load call record %d: %w", id, err)
	}
	rec := row.record()
	return &rec, nil
}

func (s *LogStore) List(ctx context.Context, offset, limit int) ([]calllog.Record, int64, error) {
	var total int64
	if err := s.db.GetContext(ctx, &total, `SELECT count(*) FROM harmony_call_logs`); err != nil {
		return nil, 0, fmt.Errorf("failed to count call records: %w", err)
	}

	var rows []logRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM harmony_call_logs ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list call records: %w", err)
	}

	records := make([]calllog.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	return records, total, nil
}

// Clear deletes every record. AUTOINCREMENT keeps ids from being reused.
func (s *LogStore) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM harmony_call_logs`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear call records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared call records: %w", err)
	}
	s.logger.Info("Truncated call records", zap.Int64("count", n))
	return n, nil
}
