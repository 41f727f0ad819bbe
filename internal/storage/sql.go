package storage

import (
	"database/sql"
	"fmt"
	"strconv"
)

// sqlCursor adapts *sql.Rows selecting (id, address, body, date, type).
type sqlCursor struct {
	rows *sql.Rows
	row  Row
	err  error
}

func (c *sqlCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}

	var (
		id      int64
		address sql.NullString
		body    sql.NullString
		date    sql.NullInt64
		typ     sql.NullInt64
	)
	if err := c.rows.Scan(&id, &address, &body, &date, &typ); err != nil {
		c.err = fmt.Errorf("error scanning message: %w", err)
		return false
	}

	c.row = Row{
		ID:   strconv.FormatInt(id, 10),
		Date: date.Int64,
		Type: int(typ.Int64),
	}
	if address.Valid {
		c.row.Address = &address.String
	}
	if body.Valid {
		c.row.Body = &body.String
	}
	return true
}

func (c *sqlCursor) Row() Row { return c.row }

func (c *sqlCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *sqlCursor) Close() error { return c.rows.Close() }

func orderClause(filter Filter, dateColumn, idColumn string) string {
	if filter.NewestFirst {
		return fmt.Sprintf(" ORDER BY %s DESC, %s DESC", dateColumn, idColumn)
	}
	return fmt.Sprintf(" ORDER BY %s ASC, %s ASC", dateColumn, idColumn)
}
