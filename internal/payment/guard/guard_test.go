package guard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "fxsettle/pkg/domain-errors"
)

func TestGuard_RejectsNestedEntry(t *testing.T) {
	g := New("submit", NewMemoryLocker())

	ctx, release, err := g.Enter(context.Background())
	require.NoError(t, err)
	defer release()

	_, nestedRelease, err := g.Enter(ctx)
	nestedRelease()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeReentrancy))
	assert.True(t, Held(ctx, g))
}

func TestGuard_ReleasedOnEveryPath(t *testing.T) {
	g := New("submit", NewMemoryLocker())

	for range 3 {
		_, release, err := g.Enter(context.Background())
		require.NoError(t, err)
		release()
		release() // idempotent
	}
}

func TestGuard_DistinctGuardsDoNotInterfere(t *testing.T) {
	a := New("a", NewMemoryLocker())
	b := New("b", NewMemoryLocker())

	ctx, releaseA, err := a.Enter(context.Background())
	require.NoError(t, err)
	defer releaseA()

	_, releaseB, err := b.Enter(ctx)
	require.NoError(t, err)
	releaseB()
}

func TestGuard_WaitingCallerTimesOut(t *testing.T) {
	g := New("submit", NewMemoryLocker())
	_, release, err := g.Enter(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = g.Enter(ctx)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestGuard_CancelledContext(t *testing.T) {
	g := New("submit", NewMemoryLocker())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := g.Enter(ctx)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestGuard_SerializesHolders(t *testing.T) {
	g := New("submit", NewMemoryLocker())
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, release, err := g.Enter(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			defer release()
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}
