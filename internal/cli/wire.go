package cli

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/xaenox/bankwatch/internal/classifier"
	"github.com/xaenox/bankwatch/internal/inbox"
	"github.com/xaenox/bankwatch/internal/notify"
	"github.com/xaenox/bankwatch/internal/permission"
	"github.com/xaenox/bankwatch/internal/retrieval"
	"github.com/xaenox/bankwatch/internal/source"
	"github.com/xaenox/bankwatch/internal/storage"
	"github.com/xaenox/bankwatch/internal/watcher"
	"github.com/xaenox/bankwatch/pkg/config"
)

// pipeline is the assembled pipeline for one command run.
type pipeline struct {
	store   storage.MessageStore
	perms   *permission.Manager
	service *retrieval.Service
	plugin  *inbox.Plugin
}

func (p *pipeline) Close() error {
	return p.store.Close()
}

func openStore(cfg config.StoreConfig, logger *zap.Logger) (storage.MessageStore, error) {
	switch cfg.Driver {
	case "sqlite":
		logger.Info("Using SQLite message store", zap.String("path", cfg.Path))
		return storage.NewSQLiteStore(cfg.Path, logger)
	case "postgres":
		logger.Info("Using PostgreSQL message store", zap.String("host", cfg.Postgres.Host))
		return storage.NewPostgresStore(storage.DatabaseConfig{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			DBName:   cfg.Postgres.DBName,
			SSLMode:  cfg.Postgres.SSLMode,
			Table:    cfg.Postgres.Table,
		}, logger)
	case "memory", "":
		logger.Info("Using in-memory message store")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func patternSet(cfg config.ClassifierConfig) classifier.PatternSet {
	p := classifier.DefaultPatternSet()
	if len(cfg.Keywords) > 0 {
		p.Keywords = cfg.Keywords
	}
	if len(cfg.CurrencyMarkers) > 0 {
		p.CurrencyMarkers = cfg.CurrencyMarkers
	}
	p.RetrievalAmount = cfg.AmountHeuristic.Retrieval
	p.LiveAmount = cfg.AmountHeuristic.Live
	return p
}

type classifiers struct {
	sender    *classifier.SenderClassifier
	retrieval classifier.ContentMatcher
	live      classifier.ContentMatcher
}

func buildClassifiers(cfg *config.Config, logger *zap.Logger) (classifiers, error) {
	tokens := cfg.Classifier.SenderTokens
	if len(tokens) == 0 {
		tokens = classifier.DefaultSenderTokens
	}

	patterns := patternSet(cfg.Classifier)
	if patterns.Diverges() {
		logger.Warn("Retrieval and live paths classify with different patterns",
			zap.Bool("retrieval_amount", patterns.RetrievalAmount),
			zap.Bool("live_amount", patterns.LiveAmount))
	}

	retrievalContent, err := patterns.Retrieval()
	if err != nil {
		return classifiers{}, err
	}
	liveContent, err := patterns.Live()
	if err != nil {
		return classifiers{}, err
	}

	var live classifier.ContentMatcher = liveContent
	if cfg.OpenAI.Enabled {
		logger.Info("GPT assist enabled for live arrivals", zap.String("model", cfg.OpenAI.Model))
		live = classifier.NewGPTClassifier(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Timeout, liveContent, logger)
	}

	return classifiers{
		sender:    classifier.NewSenderClassifier(tokens),
		retrieval: retrievalContent,
		live:      live,
	}, nil
}

// newPermissions maps the configured mode onto a manager. prompter is only
// consulted in prompt mode.
func newPermissions(mode string, prompter permission.Prompter, logger *zap.Logger) *permission.Manager {
	switch mode {
	case config.PermissionGranted:
		return permission.NewManager(true, nil, logger)
	case config.PermissionDenied:
		return permission.NewManager(false, permission.Static(false), logger)
	default:
		return permission.NewManager(false, prompter, logger)
	}
}

// buildSinks fans notifications out to the log, out (if non-nil), Telegram
// (if tg is non-nil and a chat is configured) and email (if configured), all
// behind one dedup ledger.
func buildSinks(cfg *config.Config, out io.Writer, tg notify.TelegramSender, logger *zap.Logger) notify.Sink {
	sinks := notify.Multi{notify.NewLogSink(logger)}
	if out != nil {
		sinks = append(sinks, consoleSink{out: out})
	}
	if tg != nil && cfg.Telegram.ChatID != 0 {
		sinks = append(sinks, notify.NewTelegramSink(tg, cfg.Telegram.ChatID, logger))
	}
	if cfg.Email.Addr != "" && len(cfg.Email.To) > 0 {
		sinks = append(sinks, notify.NewEmailSink(notify.EmailConfig{
			Addr:     cfg.Email.Addr,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
		}, logger))
	}

	ledger := notify.NewLedger(cfg.Reconcile.Window, cfg.Reconcile.Retention)
	return notify.NewDedup(ledger, sinks, logger)
}

// eventSource watches the spool directory when one is configured. Without
// one, an idle in-process hub keeps the watcher subscribed.
func eventSource(cfg config.SpoolConfig, logger *zap.Logger) (source.EventSource, error) {
	if cfg.Dir == "" {
		logger.Warn("No spool directory configured; live arrivals are disabled")
		return source.NewHub(), nil
	}
	return source.NewSpoolSource(cfg.Dir, logger)
}

// assemble builds the whole pipeline. sink may be nil for query-only
// commands; the watcher then logs notifications only.
func (a *app) assemble(prompter permission.Prompter, sink notify.Sink) (*pipeline, error) {
	store, err := openStore(a.cfg.Store, a.logger)
	if err != nil {
		return nil, err
	}

	cls, err := buildClassifiers(a.cfg, a.logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	src, err := eventSource(a.cfg.Spool, a.logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	if sink == nil {
		sink = notify.NewLogSink(a.logger)
	}

	perms := newPermissions(a.cfg.Permission.Mode, prompter, a.logger)
	service := retrieval.NewService(store, perms, cls.sender, cls.retrieval, a.logger)
	w := watcher.New(src, cls.live, sink, a.logger)

	var poller *retrieval.Poller
	if a.cfg.Poller.Enabled {
		poller = retrieval.NewPoller(service, sink, retrieval.PollerConfig{
			Interval: a.cfg.Poller.Interval,
			Limit:    a.cfg.Poller.Limit,
			Replay:   a.cfg.Poller.Replay,
		}, a.logger)
	}

	return &pipeline{
		store:   store,
		perms:   perms,
		service: service,
		plugin:  inbox.New(service, perms, w, poller, a.logger),
	}, nil
}
