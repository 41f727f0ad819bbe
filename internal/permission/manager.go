package permission

import (
	"sync"

	"go.uber.org/zap"
)

// Prompter shows the platform's grant dialog. respond may be called any
// number of times, from any goroutine; only the first call counts.
type Prompter interface {
	Ask(respond func(granted bool))
}

type PrompterFunc func(respond func(granted bool))

func (f PrompterFunc) Ask(respond func(granted bool)) { f(respond) }

// Static answers every request with the same decision.
func Static(granted bool) Prompter {
	return PrompterFunc(func(respond func(bool)) { respond(granted) })
}

// Manager tracks whether message access has been granted and runs at most
// one grant dialog at a time.
type Manager struct {
	mu       sync.Mutex
	granted  bool
	pending  *Grant
	prompter Prompter
	logger   *zap.Logger
}

func NewManager(granted bool, prompter Prompter, logger *zap.Logger) *Manager {
	return &Manager{
		granted:  granted,
		prompter: prompter,
		logger:   logger,
	}
}

func (m *Manager) Granted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.granted
}

// Request returns a grant that resolves once the user has answered.
// Concurrent callers share the in-flight dialog.
func (m *Manager) Request() *Grant {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.granted {
		return resolvedGrant(true)
	}
	if m.pending != nil {
		return m.pending
	}
	if m.prompter == nil {
		m.logger.Warn("Permission requested but no prompter is configured")
		return resolvedGrant(false)
	}

	g := newGrant()
	m.pending = g
	m.logger.Info("Requesting message access permission")

	go m.prompter.Ask(func(granted bool) {
		// Only the answer that settles the grant updates the manager, under
		// the same lock Granted takes, so the two always agree.
		m.mu.Lock()
		settled := g.resolve(granted)
		if settled && m.pending == g {
			if granted {
				m.granted = true
			}
			m.pending = nil
		}
		m.mu.Unlock()

		if !settled {
			m.logger.Debug("Ignoring repeated permission answer", zap.Bool("granted", granted))
			return
		}
		m.logger.Info("Permission answered", zap.Bool("granted", granted))
	})
	return g
}

// Revoke withdraws a previous grant, as when the user flips the setting off.
func (m *Manager) Revoke() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.granted = false
}
