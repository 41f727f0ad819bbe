package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLiteStore reads the inbox rows (type 1) of the "sms" table of an Android
// telephony database (mmssms.db) or a copy of it. The file is opened
// read-only.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", strings.ReplaceAll(path, " ", "%20"))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to sqlite database: %w", err)
	}

	logger.Info("Opened sqlite message store", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Read(ctx context.Context, filter Filter) (Cursor, error) {
	query := `
		SELECT _id, address, body, date, type
		FROM sms
		WHERE type = 1 AND date > ?` + orderClause(filter, "date", "_id")
	args := []any{filter.After}
	if filter.LimitHint > 0 {
		query += " LIMIT ?"
		args = append(args, filter.LimitHint)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying sms: %w", err)
	}
	return &sqlCursor{rows: rows}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
