package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/internal/classifier"
	"github.com/xaenox/bankwatch/internal/models"
	"github.com/xaenox/bankwatch/internal/storage"
)

// ============================================================================
// Test doubles
// ============================================================================

type fakeGate struct{ granted bool }

func (g fakeGate) Granted() bool { return g.granted }

// spyStore wraps a MemoryStore, records filters and can ignore the limit
// hint or fail.
type spyStore struct {
	*storage.MemoryStore
	reads       []storage.Filter
	ignoreLimit bool
	readErr     error
	cursorErr   error
}

func newSpyStore() *spyStore {
	return &spyStore{MemoryStore: storage.NewMemoryStore()}
}

func (s *spyStore) Read(ctx context.Context, filter storage.Filter) (storage.Cursor, error) {
	s.reads = append(s.reads, filter)
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.ignoreLimit {
		filter.LimitHint = 0
	}
	c, err := s.MemoryStore.Read(ctx, filter)
	if err != nil {
		return nil, err
	}
	if s.cursorErr != nil {
		return &failingCursor{Cursor: c, err: s.cursorErr}, nil
	}
	return c, nil
}

type failingCursor struct {
	storage.Cursor
	err    error
	closed bool
}

func (c *failingCursor) Next() bool   { return false }
func (c *failingCursor) Err() error   { return c.err }
func (c *failingCursor) Close() error { c.closed = true; return nil }

func newTestService(t *testing.T, store storage.MessageStore, granted bool) *Service {
	t.Helper()
	content, err := classifier.DefaultPatternSet().Retrieval()
	be.Err(t, err, nil)
	return NewService(store, fakeGate{granted: granted}, classifier.NewSenderClassifier(classifier.DefaultSenderTokens), content, zap.NewNop())
}

// ============================================================================
// Query
// ============================================================================

func TestQueryLimitAndOrder(t *testing.T) {
	store := newSpyStore()
	store.ignoreLimit = true
	for i := 1; i <= 10; i++ {
		store.InsertMessage("FRIEND", fmt.Sprintf("hello %d", i), int64(i*1000))
	}
	s := newTestService(t, store, true)

	got, err := s.Query(context.Background(), models.QueryParams{Limit: 5})
	be.Err(t, err, nil)
	be.Equal(t, len(got), 5)
	for i := 1; i < len(got); i++ {
		be.True(t, got[i-1].Date > got[i].Date)
	}
	be.Equal(t, got[0].Date, int64(10000))
	be.Equal(t, store.reads[0], storage.Filter{After: 0, NewestFirst: true, LimitHint: 5})
}

func TestQueryDefaultsLimit(t *testing.T) {
	store := newSpyStore()
	s := newTestService(t, store, true)

	_, err := s.Query(context.Background(), models.QueryParams{Limit: -3, Since: -5})
	be.Err(t, err, nil)
	be.Equal(t, store.reads[0].LimitHint, models.DefaultLimit)
	be.Equal(t, store.reads[0].After, int64(-5))
}

func TestQueryNegativeSinceKeepsZeroDates(t *testing.T) {
	store := newSpyStore()
	store.InsertMessage("A", "epoch", 0)
	s := newTestService(t, store, true)

	got, err := s.Query(context.Background(), models.QueryParams{Since: -1})
	be.Err(t, err, nil)
	be.Equal(t, len(got), 1)
	be.Equal(t, got[0].Body, "epoch")

	got, err = s.Query(context.Background(), models.QueryParams{Since: 0})
	be.Err(t, err, nil)
	be.Equal(t, len(got), 0)
}

func TestQuerySinceIsExclusive(t *testing.T) {
	store := newSpyStore()
	store.InsertMessage("A", "one", 1000)
	store.InsertMessage("A", "two", 2000)
	s := newTestService(t, store, true)

	got, err := s.Query(context.Background(), models.QueryParams{Since: 1000})
	be.Err(t, err, nil)
	be.Equal(t, len(got), 1)
	be.Equal(t, got[0].Body, "two")
}

func TestQueryBankOnly(t *testing.T) {
	store := newSpyStore()
	a := store.InsertMessage("HDFC-BANK", "Rs.500 debited", 1000)
	store.InsertMessage("FRIEND", "see you at 5", 2000)
	// Right sender, wrong content; right content, wrong sender.
	store.InsertMessage("HDFC-BANK", "Your OTP is 1234", 3000)
	store.InsertMessage("FRIEND", "I paid for dinner", 4000)
	s := newTestService(t, store, true)

	got, err := s.Query(context.Background(), models.QueryParams{BankOnly: true})
	be.Err(t, err, nil)
	be.Equal(t, got, []models.Message{{
		ID:      a.ID,
		Address: "HDFC-BANK",
		Body:    "Rs.500 debited",
		Date:    1000,
		Type:    models.DirectionInbound,
	}})
}

func TestQueryBankOnlyCapsAccepted(t *testing.T) {
	store := newSpyStore()
	store.ignoreLimit = true
	for i := 1; i <= 6; i++ {
		store.InsertMessage("AX-ICICIB", fmt.Sprintf("INR %d debited", i), int64(i))
		store.InsertMessage("FRIEND", "hi", int64(i))
	}
	s := newTestService(t, store, true)

	got, err := s.Query(context.Background(), models.QueryParams{Limit: 4, BankOnly: true})
	be.Err(t, err, nil)
	be.Equal(t, len(got), 4)
	for _, m := range got {
		be.Equal(t, m.Address, "AX-ICICIB")
	}
}

func TestQueryNormalizesNulls(t *testing.T) {
	store := newSpyStore()
	store.Insert(storage.Row{Date: 10, Type: 1})
	s := newTestService(t, store, true)

	got, err := s.Query(context.Background(), models.QueryParams{})
	be.Err(t, err, nil)
	be.Equal(t, len(got), 1)
	be.Equal(t, got[0].Address, "")
	be.Equal(t, got[0].Body, "")

	got, err = s.Query(context.Background(), models.QueryParams{BankOnly: true})
	be.Err(t, err, nil)
	be.Equal(t, len(got), 0)
}

func TestQueryPermissionDenied(t *testing.T) {
	store := newSpyStore()
	store.InsertMessage("HDFC", "Rs.1 debited", 1)
	s := newTestService(t, store, false)

	got, err := s.Query(context.Background(), models.QueryParams{})
	be.Err(t, err, ErrPermissionDenied)
	be.True(t, got == nil)
	be.Equal(t, len(store.reads), 0)
}

func TestQueryStoreUnavailable(t *testing.T) {
	store := newSpyStore()
	store.readErr = storage.ErrClosed
	s := newTestService(t, store, true)

	_, err := s.Query(context.Background(), models.QueryParams{})
	be.Err(t, err, ErrStoreUnavailable)
	be.Err(t, err, storage.ErrClosed)

	var storeErr *StoreError
	be.True(t, errors.As(err, &storeErr))
	be.Equal(t, storeErr.Op, "read")
	be.Equal(t, len(store.reads), 1)
}

func TestQueryCursorError(t *testing.T) {
	store := newSpyStore()
	store.cursorErr = errors.New("provider crashed")
	s := newTestService(t, store, true)

	_, err := s.Query(context.Background(), models.QueryParams{})
	be.Err(t, err, ErrStoreUnavailable)
	be.Err(t, err, "provider crashed")
}

func TestQueryClosedMemoryStore(t *testing.T) {
	store := storage.NewMemoryStore()
	store.Close()
	s := newTestService(t, store, true)

	_, err := s.Query(context.Background(), models.QueryParams{})
	be.Err(t, err, ErrStoreUnavailable)
}

// ============================================================================
// Host-facing helpers
// ============================================================================

func TestGetMessages(t *testing.T) {
	store := newSpyStore()
	s := newTestService(t, store, true)

	_, err := s.GetMessages(context.Background(), 7, 123)
	be.Err(t, err, nil)
	be.Equal(t, store.reads[0], storage.Filter{After: 123, NewestFirst: true, LimitHint: 7})
}

func TestGetBankMessagesWindow(t *testing.T) {
	now := time.UnixMilli(100 * models.DayMillis)
	store := newSpyStore()
	store.InsertMessage("VK-KOTAKB", "Rs.10 spent on card", now.UnixMilli()-2*models.DayMillis)
	store.InsertMessage("VK-KOTAKB", "Rs.20 spent on card", now.UnixMilli()-40*models.DayMillis)
	s := newTestService(t, store, true).WithClock(func() time.Time { return now })

	got, err := s.GetBankMessages(context.Background(), 0, 7)
	be.Err(t, err, nil)
	be.Equal(t, len(got), 1)
	be.Equal(t, store.reads[0].After, now.UnixMilli()-7*models.DayMillis)

	got, err = s.GetBankMessages(context.Background(), 0, 0)
	be.Err(t, err, nil)
	be.Equal(t, len(got), 1)
	be.Equal(t, store.reads[1].After, now.UnixMilli()-30*models.DayMillis)
}

func TestGetBankMessagesPermissionDenied(t *testing.T) {
	s := newTestService(t, newSpyStore(), false)
	_, err := s.GetBankMessages(context.Background(), 10, 30)
	be.Err(t, err, ErrPermissionDenied)
}
