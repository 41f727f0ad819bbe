package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// MemoryStore keeps rows in memory. It stands in for the platform inbox in
// tests and in the demo CLI; Insert plays the role of the platform.
type MemoryStore struct {
	mu     sync.RWMutex
	rows   []Row
	nextID int64
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

// Insert appends a row and assigns it an id when it has none.
func (s *MemoryStore) Insert(row Row) Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row.ID == "" {
		row.ID = strconv.FormatInt(s.nextID, 10)
	}
	s.nextID++
	s.rows = append(s.rows, row)
	return row
}

// InsertMessage is a convenience for inbound rows with both fields present.
func (s *MemoryStore) InsertMessage(address, body string, date int64) Row {
	return s.Insert(Row{Address: &address, Body: &body, Date: date, Type: 1})
}

func (s *MemoryStore) Read(ctx context.Context, filter Filter) (Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	out := make([]Row, 0, len(s.rows))
	if filter.NewestFirst {
		// Walk backwards so equal dates come out newest insertion first.
		for i := len(s.rows) - 1; i >= 0; i-- {
			if s.rows[i].Date > filter.After {
				out = append(out, s.rows[i])
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	} else {
		for _, row := range s.rows {
			if row.Date > filter.After {
				out = append(out, row)
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	}

	if filter.LimitHint > 0 && len(out) > filter.LimitHint {
		out = out[:filter.LimitHint]
	}
	return &sliceCursor{rows: out, pos: -1}, nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type sliceCursor struct {
	rows []Row
	pos  int
}

func (c *sliceCursor) Next() bool {
	if c.pos+1 >= len(c.rows) {
		c.pos = len(c.rows)
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Row() Row     { return c.rows[c.pos] }
func (c *sliceCursor) Err() error   { return nil }
func (c *sliceCursor) Close() error { return nil }
