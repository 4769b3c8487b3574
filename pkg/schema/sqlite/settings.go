package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/natserract/harmony/pkg/config"
	"go.uber.org/zap"
)

// SettingsStore keeps the connection settings as key/value rows
type SettingsStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func (s *SettingsStore) Load(ctx context.Context) (config.Settings, error) {
	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value FROM harmony_settings`); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	settings := make(config.Settings, len(rows))
	for _, row := range rows {
		settings[row.Key] = row.Value
	}
	return settings, nil
}

func (s *SettingsStore) Save(ctx context.Context, settings config.Settings) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range settings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO harmony_settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		if err != nil {
			s.logger.Error("Failed to save setting", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("failed to save setting %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
