package storage

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("storage: store is closed")

// Filter is the read contract the retrieval service issues. The store is
// trusted for the timestamp bound and the ordering only.
type Filter struct {
	After       int64 // exclusive lower bound on Date, in ms
	NewestFirst bool
	LimitHint   int // 0 means no hint
}

// Row is a raw inbox row. Address and Body are nil when the store has NULL.
type Row struct {
	ID      string
	Address *string
	Body    *string
	Date    int64
	Type    int
}

type Cursor interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// MessageStore is the platform's message repository. It is read, never
// written, by this module.
type MessageStore interface {
	Read(ctx context.Context, filter Filter) (Cursor, error)
	Close() error
}
