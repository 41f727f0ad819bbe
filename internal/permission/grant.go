package permission

import (
	"context"
	"sync"
)

// Grant is the single-shot outcome of a permission request. It resolves
// exactly once; later answers from the platform are ignored.
type Grant struct {
	once    sync.Once
	done    chan struct{}
	granted bool
}

func newGrant() *Grant {
	return &Grant{done: make(chan struct{})}
}

func resolvedGrant(granted bool) *Grant {
	g := newGrant()
	g.resolve(granted)
	return g
}

// resolve reports whether this call was the one that settled the grant.
func (g *Grant) resolve(granted bool) bool {
	settled := false
	g.once.Do(func() {
		g.granted = granted
		close(g.done)
		settled = true
	})
	return settled
}

func (g *Grant) Done() <-chan struct{} {
	return g.done
}

// Wait blocks until the grant resolves or ctx ends.
func (g *Grant) Wait(ctx context.Context) (bool, error) {
	select {
	case <-g.done:
		return g.granted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Result returns the outcome without blocking; ok is false while pending.
func (g *Grant) Result() (granted bool, ok bool) {
	select {
	case <-g.done:
		return g.granted, true
	default:
		return false, false
	}
}
