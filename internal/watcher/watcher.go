// Package watcher implements the live arrival path.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/internal/classifier"
	"github.com/xaenox/bankwatch/internal/notify"
	"github.com/xaenox/bankwatch/internal/pdu"
	"github.com/xaenox/bankwatch/internal/source"
)

type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Watcher reacts to arrival events: it decodes each fragment, classifies the
// body and forwards transaction messages to the sink without waiting for it.
type Watcher struct {
	source  source.EventSource
	content classifier.ContentMatcher
	sink    notify.Sink
	logger  *zap.Logger

	mu     sync.RWMutex
	state  State
	ctx    context.Context
	cancel func()
	wg     *conc.WaitGroup
}

func New(src source.EventSource, content classifier.ContentMatcher, sink notify.Sink, logger *zap.Logger) *Watcher {
	return &Watcher{
		source:  src,
		content: content,
		sink:    sink,
		logger:  logger,
	}
}

// Start subscribes to the event source. ctx is passed to the sink for every
// dispatch. Starting an active watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == Active {
		return nil
	}
	if w.source == nil {
		return errors.New("watcher: no event source")
	}

	w.ctx = ctx
	w.wg = conc.NewWaitGroup()
	cancel, err := w.source.Subscribe(w.Handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	w.cancel = cancel
	w.state = Active

	w.logger.Info("Watcher started")
	return nil
}

// Stop unsubscribes and waits for in-flight dispatches. Stopping an idle
// watcher is a no-op.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.state == Idle {
		w.mu.Unlock()
		return nil
	}
	w.state = Idle
	cancel, wg := w.cancel, w.wg
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	wg.Wait()

	w.logger.Info("Watcher stopped")
	return nil
}

func (w *Watcher) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Handle processes one arrival event. Malformed fragments are logged and
// skipped; the rest are classified and delivered independently in the
// background, so Handle returns once decoding is done. Events received while
// idle are ignored.
func (w *Watcher) Handle(e source.Event) {
	if w.State() != Active {
		w.logger.Debug("Event ignored while idle", zap.Int("fragments", len(e.Fragments)))
		return
	}

	fragments, errs := pdu.DecodeAll(e.Format, e.Fragments)
	for _, err := range errs {
		w.logger.Warn("Malformed fragment", zap.Error(err), zap.String("format", e.Format))
	}

	for _, f := range fragments {
		if f.Timestamp == 0 {
			f.Timestamp = e.ReceivedAt.UnixMilli()
		}
		w.dispatch(f)
	}
}

// dispatch classifies f and notifies the sink on a background goroutine.
func (w *Watcher) dispatch(f pdu.Fragment) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.state != Active {
		return
	}

	ctx := w.ctx
	w.wg.Go(func() {
		var pc panics.Catcher
		pc.Try(func() {
			if !w.content.IsTransactionMessage(f.Body) {
				return
			}
			n := notify.New(f.Address, f.Body, f.Timestamp)
			if err := w.sink.Notify(ctx, n); err != nil {
				w.logger.Error("Failed to deliver notification",
					zap.Error(err),
					zap.String("notification_id", n.ID),
					zap.String("address", n.Address))
			}
		})
		if r := pc.Recovered(); r != nil {
			w.logger.Error("Live dispatch panicked",
				zap.Error(r.AsError()),
				zap.String("address", f.Address))
		}
	})
}
