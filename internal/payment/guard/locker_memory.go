package guard

import (
	"context"
	"sync"
)

// MemoryLocker is a single-holder in-process lock that honors context
// cancellation while waiting.
type MemoryLocker struct {
	sem chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{sem: make(chan struct{}, 1)}
}

func (l *MemoryLocker) Lock(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ErrLockTimeout
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-l.sem })
	}, nil
}
