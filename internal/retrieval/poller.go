package retrieval

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/internal/models"
	"github.com/xaenox/bankwatch/internal/notify"
)

// maxPageGrowth bounds how far a poll widens its page while catching up.
const maxPageGrowth = 64

type PollerConfig struct {
	Interval time.Duration
	Limit    int
	// Replay delivers the messages found by the first poll instead of only
	// using them to place the watermark.
	Replay bool
}

// Poller periodically queries the store for transaction messages that
// arrived since the last poll and hands them to a sink. It is the pull-side
// counterpart of the live watcher; a shared notify.Dedup keeps the two from
// reporting the same message twice.
type Poller struct {
	service  *Service
	sink     notify.Sink
	interval time.Duration
	limit    int
	replay   bool
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	pollMu    sync.Mutex
	seeded    bool
	watermark int64
	atMark    map[string]struct{}
}

func NewPoller(service *Service, sink notify.Sink, config PollerConfig, logger *zap.Logger) *Poller {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.Limit <= 0 {
		config.Limit = models.DefaultLimit
	}
	return &Poller{
		service:  service,
		sink:     sink,
		interval: config.Interval,
		limit:    config.Limit,
		replay:   config.Replay,
		logger:   logger,
		atMark:   make(map[string]struct{}),
	}
}

// Start begins polling in the background. Starting a running poller is a
// no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)

	p.logger.Info("Poller started", zap.Duration("interval", p.interval), zap.Int("limit", p.limit))
}

// Stop halts polling and waits for an in-flight poll. Stopping a stopped
// poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("Poller stopped")
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("Poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll runs one query and delivers the new transaction messages, oldest
// first. It returns how many were delivered.
//
// Dates are not unique, so the query starts one millisecond below the
// watermark and the ids already seen at the watermark are skipped; a message
// stored later with the same date as the last one delivered is still found.
//
// Once seeded, a full page means the newest rows may hide older arrivals
// above the watermark, so the page is doubled and fetched again until it
// comes back short.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	messages, err := p.fetch(ctx)
	if err != nil {
		return 0, err
	}

	fresh := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		if m.Date < p.watermark {
			continue
		}
		if m.Date == p.watermark {
			if _, ok := p.atMark[m.ID]; ok {
				continue
			}
		}
		fresh = append(fresh, m)
	}
	p.advance(fresh)

	if !p.seeded {
		p.seeded = true
		if !p.replay {
			p.logger.Debug("Poller seeded", zap.Int64("watermark", p.watermark))
			return 0, nil
		}
	}

	delivered := 0
	for i := len(fresh) - 1; i >= 0; i-- {
		m := fresh[i]
		if !p.service.Matches(m) {
			continue
		}
		if err := p.sink.Notify(ctx, notify.FromMessage(m)); err != nil {
			p.logger.Error("Failed to deliver polled message",
				zap.Error(err),
				zap.String("message_id", m.ID))
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (p *Poller) fetch(ctx context.Context) ([]models.Message, error) {
	limit := p.limit
	for {
		messages, err := p.service.Query(ctx, models.QueryParams{
			Limit: limit,
			Since: p.watermark - 1,
		})
		if err != nil {
			return nil, err
		}
		if len(messages) < limit || !p.seeded {
			return messages, nil
		}
		if limit >= p.limit*maxPageGrowth {
			p.logger.Warn("Poll still full after widening, older arrivals may have been skipped",
				zap.Int("limit", limit),
				zap.Int64("watermark", p.watermark))
			return messages, nil
		}
		limit *= 2
		p.logger.Debug("Poll returned a full page, widening", zap.Int("limit", limit))
	}
}

func (p *Poller) advance(fresh []models.Message) {
	for _, m := range fresh {
		switch {
		case m.Date > p.watermark:
			p.watermark = m.Date
			p.atMark = map[string]struct{}{m.ID: {}}
		case m.Date == p.watermark:
			p.atMark[m.ID] = struct{}{}
		}
	}
}

func (p *Poller) Watermark() int64 {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()
	return p.watermark
}
