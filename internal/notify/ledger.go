package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/internal/models"
)

const (
	DefaultWindow    = 10 * time.Minute
	DefaultRetention = 24 * time.Hour
)

// Ledger remembers which messages were already reported so that a message
// announced by the live path is not announced again when the poller finds it
// in the store, and vice versa. Live timestamps (service-centre time) and
// store timestamps (receive time) differ, so two notifications with the same
// sender and body are the same message when their dates fall within window.
type Ledger struct {
	mu        sync.Mutex
	window    int64
	retention int64
	entries   map[string][]int64
	newest    int64
}

func NewLedger(window, retention time.Duration) *Ledger {
	if window <= 0 {
		window = DefaultWindow
	}
	if retention < window {
		retention = DefaultRetention
	}
	return &Ledger{
		window:    window.Milliseconds(),
		retention: retention.Milliseconds(),
		entries:   make(map[string][]int64),
	}
}

// Seen reports whether n duplicates an earlier notification and records it
// otherwise.
func (l *Ledger) Seen(n models.Notification) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := fingerprint(n)
	for _, date := range l.entries[key] {
		if abs(date-n.Date) <= l.window {
			return true
		}
	}

	l.entries[key] = append(l.entries[key], n.Date)
	if n.Date > l.newest {
		l.newest = n.Date
		l.prune()
	}
	return false
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, dates := range l.entries {
		n += len(dates)
	}
	return n
}

func (l *Ledger) prune() {
	cutoff := l.newest - l.retention
	for key, dates := range l.entries {
		kept := dates[:0]
		for _, date := range dates {
			if date >= cutoff {
				kept = append(kept, date)
			}
		}
		if len(kept) == 0 {
			delete(l.entries, key)
			continue
		}
		l.entries[key] = kept
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Dedup forwards a notification to next only the first time the ledger
// sees it.
type Dedup struct {
	ledger *Ledger
	next   Sink
	logger *zap.Logger
}

func NewDedup(ledger *Ledger, next Sink, logger *zap.Logger) *Dedup {
	return &Dedup{ledger: ledger, next: next, logger: logger}
}

func (d *Dedup) Notify(ctx context.Context, n models.Notification) error {
	if d.ledger.Seen(n) {
		d.logger.Debug("Dropping duplicate notification",
			zap.String("origin", string(n.Origin)),
			zap.String("address", n.Address),
			zap.Int64("date", n.Date))
		return nil
	}
	return d.next.Notify(ctx, n)
}
