package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireIndependentGroups(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	ctxA, releaseA, err := m.Acquire(ctx, 1, "pr-branch-a", true)
	require.NoError(t, err)
	defer releaseA()

	ctxB, releaseB, err := m.Acquire(ctx, 2, "pr-branch-b", true)
	require.NoError(t, err)
	defer releaseB()

	assert.NoError(t, ctxA.Err())
	assert.NoError(t, ctxB.Err())
}

func TestCancelInProgress(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	first, releaseFirst, err := m.Acquire(ctx, 1, "pr-main", true)
	require.NoError(t, err)

	// The newer run displaces the older one immediately.
	second, releaseSecond, err := m.Acquire(ctx, 2, "pr-main", true)
	require.NoError(t, err)

	select {
	case <-first.Done():
		assert.ErrorIs(t, context.Cause(first), ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("first run was not cancelled")
	}
	assert.NoError(t, second.Err())

	// The displaced run releasing later must not free the successor's slot.
	releaseFirst()
	third := make(chan struct{})
	go func() {
		_, release, err := m.Acquire(ctx, 3, "pr-main", false)
		require.NoError(t, err)
		release()
		close(third)
	}()

	select {
	case <-third:
		t.Fatal("third run acquired while second still live")
	case <-time.After(50 * time.Millisecond):
	}

	releaseSecond()
	select {
	case <-third:
	case <-time.After(time.Second):
		t.Fatal("third run never admitted after release")
	}
}

func TestWaitInLine(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	_, releaseFirst, err := m.Acquire(ctx, 1, "nightly", false)
	require.NoError(t, err)

	admitted := make(chan error, 1)
	go func() {
		_, release, err := m.Acquire(ctx, 2, "nightly", false)
		if err == nil {
			defer release()
		}
		admitted <- err
	}()

	select {
	case err := <-admitted:
		t.Fatalf("second run admitted while first still live: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	releaseFirst()
	select {
	case err := <-admitted:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second run never admitted")
	}
}

func TestNewerPendingReplacesOlder(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	_, releaseFirst, err := m.Acquire(ctx, 1, "nightly", false)
	require.NoError(t, err)

	older := make(chan error, 1)
	go func() {
		_, _, err := m.Acquire(ctx, 2, "nightly", false)
		older <- err
	}()

	// Give the older waiter time to park before displacing it.
	time.Sleep(50 * time.Millisecond)

	newer := make(chan error, 1)
	go func() {
		_, release, err := m.Acquire(ctx, 3, "nightly", false)
		if err == nil {
			defer release()
		}
		newer <- err
	}()

	select {
	case err := <-older:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("older pending run was not displaced")
	}

	releaseFirst()
	select {
	case err := <-newer:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("newer pending run never admitted")
	}
}

func TestHandoverAdmitsWaiterAtomically(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	_, releaseFirst, err := m.Acquire(ctx, 1, "pr-main", false)
	require.NoError(t, err)

	type admission struct {
		ctx     context.Context
		release func()
		err     error
	}
	second := make(chan admission, 1)
	go func() {
		c, release, err := m.Acquire(ctx, 2, "pr-main", false)
		second <- admission{c, release, err}
	}()

	// Give the second run time to park before freeing the slot.
	time.Sleep(50 * time.Millisecond)

	// The parked run owns the slot the instant it is freed, so a run
	// arriving right behind the release must displace it instead of
	// claiming a free group alongside it.
	releaseFirst()
	thirdCtx, releaseThird, err := m.Acquire(ctx, 3, "pr-main", true)
	require.NoError(t, err)
	defer releaseThird()

	got := <-second
	require.NoError(t, got.err)
	defer got.release()

	select {
	case <-got.ctx.Done():
		assert.ErrorIs(t, context.Cause(got.ctx), ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("handed-over run was not cancelled by the newer run")
	}
	assert.NoError(t, thirdCtx.Err())
}

func TestCancelByRunID(t *testing.T) {
	m := NewManager()
	ctx := context.Background()

	runCtx, release, err := m.Acquire(ctx, 7, "pr-main", true)
	require.NoError(t, err)
	defer release()

	cause := errors.New("cancelled via API")
	require.True(t, m.Cancel(7, cause))

	select {
	case <-runCtx.Done():
		assert.ErrorIs(t, context.Cause(runCtx), cause)
	case <-time.After(time.Second):
		t.Fatal("run context not cancelled")
	}

	assert.False(t, m.Cancel(999, cause))
}

func TestAcquireRespectsCallerContext(t *testing.T) {
	m := NewManager()

	_, release, err := m.Acquire(context.Background(), 1, "pr-main", false)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err = m.Acquire(ctx, 2, "pr-main", false)
	assert.Error(t, err)
}
