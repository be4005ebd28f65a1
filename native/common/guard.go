package common

import "errors"

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// ReentrancyGuard is held by a component while it calls out to custody or
// pool collaborators. A nested entry while held fails with ErrReentrantCall.
// The zero value is ready to use. Not safe for concurrent use; callers are
// serialized by the executor.
type ReentrancyGuard struct {
	held bool
}

// Enter acquires the guard. The returned release func must be deferred and is
// idempotent.
func (g *ReentrancyGuard) Enter() (func(), error) {
	if g.held {
		return func() {}, ErrReentrantCall
	}
	g.held = true
	released := false
	return func() {
		if released {
			return
		}
		released = true
		g.held = false
	}, nil
}

// Held reports whether a call is currently outstanding.
func (g *ReentrancyGuard) Held() bool { return g.held }
