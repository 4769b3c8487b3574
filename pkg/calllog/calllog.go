// Package calllog records every outbound Epsilon Harmony call as an audit entry.
//
// Records are written once and never updated. The only way to remove them is
// Clear, which truncates the whole log.
package calllog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PageSize is the number of records per listing page.
const PageSize = 20

var ErrNotFound = errors.New("call record not found")

// Entry is the input for one call record.
type Entry struct {
	CorrelationID string
	Endpoint      string
	Method        string
	StatusCode    int
	StatusMessage string
	Headers       string
	Request       string
	Response      string
	ActorID       string
}

// Record is a persisted call.
type Record struct {
	ID            int64     `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Endpoint      string    `json:"endpoint"`
	Method        string    `json:"method"`
	StatusCode    int       `json:"status_code"`
	StatusMessage string    `json:"status_message"`
	Headers       string    `json:"header"`
	Request       string    `json:"request"`
	Response      string    `json:"response"`
	ActorID       string    `json:"uid"`
	CreatedAt     time.Time `json:"created"`
}

// Page is one listing page, newest first.
type Page struct {
	Items    []Record `json:"items"`
	Total    int64    `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// Store persists call records.
type Store interface {
	// Create assigns ID and CreatedAt (when zero) and saves the record.
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id int64) (*Record, error)
	// List returns records ordered by id descending.
	List(ctx context.Context, offset, limit int) ([]Record, int64, error)
	// Clear removes every record and returns how many were removed.
	Clear(ctx context.Context) (int64, error)
}

// Logger writes call records to a Store.
type Logger struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewLogger creates a call logger backed by store
func NewLogger(store Store, logger *zap.Logger) *Logger {
	return &Logger{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Log persists one call record. The actor is taken from ctx when the entry has none.
func (l *Logger) Log(ctx context.Context, e Entry) (*Record, error) {
	if e.ActorID == "" {
		e.ActorID = ActorFrom(ctx)
	}

	rec := &Record{
		CorrelationID: e.CorrelationID,
		Endpoint:      e.Endpoint,
		Method:        e.Method,
		StatusCode:    e.StatusCode,
		StatusMessage: e.StatusMessage,
		Headers:       e.Headers,
		Request:       e.Request,
		Response:      e.Response,
		ActorID:       e.ActorID,
		CreatedAt:     l.now().UTC(),
	}

	if err := l.store.Create(ctx, rec); err != nil {
		l.logger.Error("Failed to persist call record",
			zap.String("endpoint", e.Endpoint),
			zap.String("method", e.Method),
			zap.Error(err))
		return nil, fmt.Errorf("failed to persist call record: %w", err)
	}

	l.logger.Debug("Call record persisted",
		zap.Int64("log_id", rec.ID),
		zap.String("method", rec.Method),
		zap.Int("status_code", rec.StatusCode))

	return rec, nil
}

// Get returns one record by id.
func (l *Logger) Get(ctx context.Context, id int64) (*Record, error) {
	return l.store.Get(ctx, id)
}

// List returns the given 1-based page.
func (l *Logger) List(ctx context.Context, page int) (*Page, error) {
	if page <= 0 {
		page = 1
	}
	items, total, err := l.store.List(ctx, (page-1)*PageSize, PageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list call records: %w", err)
	}
	if items == nil {
		items = []Record{}
	}
	return &Page{Items: items, Total: total, Page: page, PageSize: PageSize}, nil
}

// Clear truncates the log.
func (l *Logger) Clear(ctx context.Context) (int64, error) {
	n, err := l.store.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to clear call records: %w", err)
	}
	l.logger.Info("Call records cleared", zap.Int64("deleted", n))
	return n, nil
}

// EncodeJSON serialises v for the headers/request/response columns.
// nil encodes to the empty string.
func EncodeJSON(v interface{}) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

type actorKey struct{}

// WithActor attaches the acting user id to ctx.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFrom returns the actor id stored in ctx, or "".
func ActorFrom(ctx context.Context) string {
	if v, ok := ctx.Value(actorKey{}).(string); ok {
		return v
	}
	return ""
}
