package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Table    string
}

func (c DatabaseConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// PostgresStore reads a server-side mirror of a device inbox. The table must
// expose id, address, body, date (ms) and type columns.
type PostgresStore struct {
	db    *sql.DB
	table string
}

func NewPostgresStore(config DatabaseConfig, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	table := config.Table
	if table == "" {
		table = "sms_inbox"
	}

	logger.Info("Connected to postgres message store",
		zap.String("host", config.Host),
		zap.String("dbname", config.DBName),
		zap.String("table", table))
	return &PostgresStore{db: db, table: table}, nil
}

func (s *PostgresStore) Read(ctx context.Context, filter Filter) (Cursor, error) {
	query, args := postgresReadQuery(s.table, filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	return &sqlCursor{rows: rows}, nil
}

func postgresReadQuery(table string, filter Filter) (string, []any) {
	query := fmt.Sprintf(`
		SELECT id, address, body, date, type
		FROM %s
		WHERE date > $1`, pq.QuoteIdentifier(table)) + orderClause(filter, "date", "id")
	args := []any{filter.After}
	if filter.LimitHint > 0 {
		query += " LIMIT $2"
		args = append(args, filter.LimitHint)
	}
	return query, args
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
