// Package guard rejects re-entrant calls into a guarded operation and
// serializes acquisition across callers.
//
// Enter marks the context it returns. Any call made with that context (or a
// context derived from it) while the guard is held is rejected immediately
// with CodeReentrancy. Independent callers queue on the Locker instead and
// fail with CodeTimeout if their context ends first.
package guard

import (
	"context"
	"errors"

	dErrors "fxsettle/pkg/domain-errors"
)

// Locker serializes holders of a named guard. Lock blocks until the lock is
// held or ctx ends, and returns the function that releases it.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// ErrLockTimeout is returned by lockers when ctx ends before acquisition.
var ErrLockTimeout = errors.New("lock acquisition timed out")

type markerKey struct{ g *Guard }

// Guard protects one operation. The zero value is not usable; use New.
type Guard struct {
	name   string
	locker Locker
}

// New creates a guard named for logs and lock keys.
func New(name string, locker Locker) *Guard {
	return &Guard{name: name, locker: locker}
}

func (g *Guard) Name() string { return g.name }

// Enter acquires the guard. The returned release must be called on every
// exit path, typically with defer; it is safe to call more than once.
func (g *Guard) Enter(ctx context.Context) (context.Context, func(), error) {
	if Held(ctx, g) {
		return ctx, func() {}, dErrors.New(dErrors.CodeReentrancy, "re-entrant call rejected by "+g.name)
	}
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, dErrors.Wrap(err, dErrors.CodeTimeout, "guard aborted: context cancelled")
	}

	unlock, err := g.locker.Lock(ctx)
	if err != nil {
		if errors.Is(err, ErrLockTimeout) || ctx.Err() != nil {
			return ctx, func() {}, dErrors.Wrap(err, dErrors.CodeTimeout, "timed out waiting for "+g.name)
		}
		return ctx, func() {}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to acquire "+g.name)
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		unlock()
	}
	return context.WithValue(ctx, markerKey{g}, true), release, nil
}

// Held reports whether ctx was produced by g.Enter.
func Held(ctx context.Context, g *Guard) bool {
	held, _ := ctx.Value(markerKey{g}).(bool)
	return held
}
