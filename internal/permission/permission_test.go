package permission

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"go.uber.org/zap"
)

func TestGrantResolvesOnce(t *testing.T) {
	g := newGrant()

	_, ok := g.Result()
	be.True(t, !ok)

	be.True(t, g.resolve(true))
	be.True(t, !g.resolve(false))

	granted, ok := g.Result()
	be.True(t, ok)
	be.True(t, granted)

	granted, err := g.Wait(context.Background())
	be.Err(t, err, nil)
	be.True(t, granted)
}

func TestGrantWaitContext(t *testing.T) {
	g := newGrant()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := g.Wait(ctx)
	be.Err(t, err, context.DeadlineExceeded)
}

func TestManagerAlreadyGranted(t *testing.T) {
	asked := false
	m := NewManager(true, PrompterFunc(func(respond func(bool)) { asked = true }), zap.NewNop())

	granted, err := m.Request().Wait(context.Background())
	be.Err(t, err, nil)
	be.True(t, granted)
	be.True(t, !asked)
}

func TestManagerNoPrompter(t *testing.T) {
	m := NewManager(false, nil, zap.NewNop())

	granted, err := m.Request().Wait(context.Background())
	be.Err(t, err, nil)
	be.True(t, !granted)
	be.True(t, !m.Granted())
}

func TestManagerRepeatedCallbacks(t *testing.T) {
	m := NewManager(false, PrompterFunc(func(respond func(bool)) {
		respond(true)
		respond(false)
		respond(true)
	}), zap.NewNop())

	granted, err := m.Request().Wait(context.Background())
	be.Err(t, err, nil)
	be.True(t, granted)
	be.True(t, m.Granted())
}

func TestManagerConcurrentAnswersAgree(t *testing.T) {
	for i := 0; i < 200; i++ {
		m := NewManager(false, PrompterFunc(func(respond func(bool)) {
			var wg sync.WaitGroup
			wg.Add(2)
			go func() { defer wg.Done(); respond(true) }()
			go func() { defer wg.Done(); respond(false) }()
			wg.Wait()
		}), zap.NewNop())

		granted, err := m.Request().Wait(context.Background())
		be.Err(t, err, nil)
		be.Equal(t, m.Granted(), granted)
	}
}

func TestManagerSharesPendingDialog(t *testing.T) {
	var (
		mu      sync.Mutex
		asks    int
		respond func(bool)
	)
	ready := make(chan struct{})
	m := NewManager(false, PrompterFunc(func(r func(bool)) {
		mu.Lock()
		asks++
		respond = r
		mu.Unlock()
		close(ready)
	}), zap.NewNop())

	first := m.Request()
	second := m.Request()
	be.True(t, first == second)

	<-ready
	mu.Lock()
	r := respond
	mu.Unlock()

	// Out-of-band answers: the dialog may report more than once.
	go r(false)
	go r(false)

	granted, err := first.Wait(context.Background())
	be.Err(t, err, nil)
	be.True(t, !granted)
	be.True(t, !m.Granted())

	mu.Lock()
	be.Equal(t, asks, 1)
	mu.Unlock()
}

func TestManagerRevoke(t *testing.T) {
	m := NewManager(false, Static(true), zap.NewNop())

	granted, err := m.Request().Wait(context.Background())
	be.Err(t, err, nil)
	be.True(t, granted)
	be.True(t, m.Granted())

	m.Revoke()
	be.True(t, !m.Granted())
}

func TestTerminalPrompter(t *testing.T) {
	cases := map[string]bool{
		"y\n":     true,
		"YES\n":   true,
		"n\n":     false,
		"\n":      false,
		"":        false,
		"maybe\n": false,
	}
	for input, want := range cases {
		var out bytes.Buffer
		var got bool
		TerminalPrompter{In: strings.NewReader(input), Out: &out}.Ask(func(g bool) { got = g })
		be.Equal(t, got, want)
		be.True(t, strings.Contains(out.String(), "[y/N]"))
	}
}
