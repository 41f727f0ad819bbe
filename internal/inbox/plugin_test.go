package inbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/internal/classifier"
	"github.com/xaenox/bankwatch/internal/models"
	"github.com/xaenox/bankwatch/internal/notify"
	"github.com/xaenox/bankwatch/internal/pdu"
	"github.com/xaenox/bankwatch/internal/permission"
	"github.com/xaenox/bankwatch/internal/retrieval"
	"github.com/xaenox/bankwatch/internal/source"
	"github.com/xaenox/bankwatch/internal/storage"
	"github.com/xaenox/bankwatch/internal/watcher"
)

type recorder struct {
	mu  sync.Mutex
	got []models.Notification
}

func (r *recorder) Notify(ctx context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type fixture struct {
	plugin *Plugin
	store  *storage.MemoryStore
	hub    *source.Hub
	sink   *recorder
	poller *retrieval.Poller
}

func newFixture(t *testing.T, perms *permission.Manager) fixture {
	t.Helper()
	logger := zap.NewNop()
	patterns := classifier.DefaultPatternSet()
	retrievalContent, err := patterns.Retrieval()
	be.Err(t, err, nil)
	liveContent, err := patterns.Live()
	be.Err(t, err, nil)

	store := storage.NewMemoryStore()
	hub := source.NewHub()
	sink := &recorder{}
	dedup := notify.NewDedup(notify.NewLedger(notify.DefaultWindow, notify.DefaultRetention), sink, logger)

	service := retrieval.NewService(store, perms, classifier.NewSenderClassifier(classifier.DefaultSenderTokens), retrievalContent, logger)
	poller := retrieval.NewPoller(service, dedup, retrieval.PollerConfig{Interval: time.Hour, Limit: 10}, logger)
	w := watcher.New(hub, liveContent, dedup, logger)

	return fixture{
		plugin: New(service, perms, w, poller, logger),
		store:  store,
		hub:    hub,
		sink:   sink,
		poller: poller,
	}
}

func TestGetMessages(t *testing.T) {
	f := newFixture(t, permission.NewManager(true, nil, zap.NewNop()))
	f.store.InsertMessage("FRIEND", "hi", 1000)
	f.store.InsertMessage("AD-HDFCBK", "Rs.5 debited", 2000)

	res, err := f.plugin.GetMessages(context.Background(), MessagesRequest{Limit: 10})
	be.Err(t, err, nil)
	be.Equal(t, len(res.Messages), 2)
	be.Equal(t, res.Messages[0].Address, "AD-HDFCBK")

	res, err = f.plugin.GetMessages(context.Background(), MessagesRequest{Since: 1000})
	be.Err(t, err, nil)
	be.Equal(t, len(res.Messages), 1)
}

func TestGetBankMessages(t *testing.T) {
	f := newFixture(t, permission.NewManager(true, nil, zap.NewNop()))
	now := time.Now().UnixMilli()
	f.store.InsertMessage("FRIEND", "paid you back", now-1000)
	f.store.InsertMessage("AD-HDFCBK", "Rs.5 debited", now-500)

	res, err := f.plugin.GetBankMessages(context.Background(), BankMessagesRequest{})
	be.Err(t, err, nil)
	be.Equal(t, len(res.Messages), 1)
	be.Equal(t, res.Messages[0].Body, "Rs.5 debited")
}

func TestQueriesRequirePermission(t *testing.T) {
	f := newFixture(t, permission.NewManager(false, nil, zap.NewNop()))

	_, err := f.plugin.GetMessages(context.Background(), MessagesRequest{})
	be.Err(t, err, retrieval.ErrPermissionDenied)
	_, err = f.plugin.GetBankMessages(context.Background(), BankMessagesRequest{})
	be.Err(t, err, retrieval.ErrPermissionDenied)
	be.Equal(t, f.plugin.CheckPermission(context.Background()), PermissionResult{Granted: false})
}

func TestRequestPermission(t *testing.T) {
	f := newFixture(t, permission.NewManager(false, permission.Static(true), zap.NewNop()))

	res, err := f.plugin.RequestPermission(context.Background())
	be.Err(t, err, nil)
	be.True(t, res.Granted)
	be.True(t, f.plugin.CheckPermission(context.Background()).Granted)

	_, err = f.plugin.GetMessages(context.Background(), MessagesRequest{})
	be.Err(t, err, nil)
}

func TestRequestPermissionCanceled(t *testing.T) {
	// A prompter that never answers.
	never := permission.PrompterFunc(func(func(bool)) {})
	f := newFixture(t, permission.NewManager(false, never, zap.NewNop()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.plugin.RequestPermission(ctx)
	be.Err(t, err, context.DeadlineExceeded)
}

func TestListening(t *testing.T) {
	f := newFixture(t, permission.NewManager(true, nil, zap.NewNop()))
	ctx := context.Background()

	res, err := f.plugin.StartListening(ctx)
	be.Err(t, err, nil)
	be.True(t, res.Success)
	res, err = f.plugin.StartListening(ctx)
	be.Err(t, err, nil)
	be.True(t, res.Success)
	be.True(t, f.plugin.Listening())
	be.True(t, f.poller.Running())
	be.Equal(t, f.hub.Subscribers(), 1)

	f.hub.Publish(source.Event{
		Format:    pdu.FormatJSON,
		Fragments: [][]byte{[]byte(`{"address":"AD-HDFCBK","body":"Rs.500 debited","timestamp":5000}`)},
	})

	be.True(t, f.plugin.StopListening().Success)
	be.True(t, f.plugin.StopListening().Success)
	be.True(t, !f.plugin.Listening())
	be.True(t, !f.poller.Running())
	be.Equal(t, f.sink.count(), 1)

	// The same transaction later lands in the store: the poller must not
	// report it again.
	f.store.InsertMessage("AD-HDFCBK", "Rs.500 debited", 5200)
	_, err = f.poller.Poll(ctx)
	be.Err(t, err, nil)
	be.Equal(t, f.sink.count(), 1)
}

func TestStartListeningSubscribeError(t *testing.T) {
	f := newFixture(t, permission.NewManager(true, nil, zap.NewNop()))
	f.hub.Close()

	res, err := f.plugin.StartListening(context.Background())
	be.Err(t, err, source.ErrClosed)
	be.True(t, !res.Success)
	be.True(t, !f.poller.Running())
}
