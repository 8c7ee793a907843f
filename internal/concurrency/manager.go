// Package concurrency enforces the per-group run policy: at most one run in
// progress per evaluated concurrency group, with either cancel-in-progress
// or wait-in-line semantics for the run that arrives second.
package concurrency

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is the cancellation cause handed to a run that was displaced
// by a newer run in the same group.
var ErrSuperseded = errors.New("superseded by a newer run in the same concurrency group")

// slot is the live run currently holding a group.
type slot struct {
	runID  int64
	cancel context.CancelCauseFunc
}

// waiter is a pending run parked behind a live one. At most one waiter per
// group is kept; a newer arrival displaces it. The waiter carries its run
// context and slot pre-built so the releasing run can install it as the
// group's live slot without leaving the lock.
type waiter struct {
	runID  int64
	ready  chan struct{}
	done   chan error
	runCtx context.Context
	slot   *slot
}

// Manager tracks live and pending runs per concurrency group.
type Manager struct {
	mu      sync.Mutex
	live    map[string]*slot
	pending map[string]*waiter
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{
		live:    make(map[string]*slot),
		pending: make(map[string]*waiter),
	}
}

// Acquire admits a run into its group and returns the context the run must
// execute under, plus a release function the caller must invoke when the
// run finishes.
//
// With cancelInProgress, any in-progress run in the group is cancelled and
// the new run starts immediately. Without it, the new run parks until the
// group frees up; if an even newer run arrives while parked, Acquire
// returns ErrSuperseded.
func (m *Manager) Acquire(ctx context.Context, runID int64, group string, cancelInProgress bool) (context.Context, func(), error) {
	m.mu.Lock()

	current, busy := m.live[group]
	if busy && cancelInProgress {
		current.cancel(ErrSuperseded)
		busy = false
	}

	if !busy {
		runCtx, cancel := context.WithCancelCause(ctx)
		s := &slot{runID: runID, cancel: cancel}
		m.live[group] = s
		m.mu.Unlock()
		return runCtx, m.releaseFunc(s, group), nil
	}

	// Park behind the live run, displacing any older parked run.
	runCtx, cancel := context.WithCancelCause(ctx)
	w := &waiter{
		runID:  runID,
		ready:  make(chan struct{}),
		done:   make(chan error, 1),
		runCtx: runCtx,
		slot:   &slot{runID: runID, cancel: cancel},
	}
	if old, ok := m.pending[group]; ok {
		old.done <- ErrSuperseded
	}
	m.pending[group] = w
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		err := context.Cause(ctx)
		w.slot.cancel(err)
		m.abandonWaiter(group, w)
		return nil, nil, err
	case err := <-w.done:
		w.slot.cancel(err)
		return nil, nil, err
	case <-w.ready:
		// The releasing run already installed our slot as live.
		return w.runCtx, m.releaseFunc(w.slot, group), nil
	}
}

// releaseFunc builds the function that frees a run's slot when it finishes.
func (m *Manager) releaseFunc(s *slot, group string) func() {
	return func() {
		s.cancel(nil)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.freeLocked(s, group)
	}
}

// freeLocked removes the slot and hands the group over to any parked waiter.
// The waiter's slot becomes live inside this same critical section, so a
// fresh Acquire can never slip into the group between release and wakeup.
// Caller holds the lock.
func (m *Manager) freeLocked(s *slot, group string) {
	// A cancel-in-progress successor may already own the slot.
	if m.live[group] != s {
		return
	}
	delete(m.live, group)

	if w, ok := m.pending[group]; ok {
		delete(m.pending, group)
		m.live[group] = w.slot
		close(w.ready)
	}
}

// abandonWaiter removes a parked run that gave up on its caller context. If
// the handover made it live in the meantime, the slot is freed as if the run
// had finished.
func (m *Manager) abandonWaiter(group string, w *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending[group] == w {
		delete(m.pending, group)
		return
	}
	m.freeLocked(w.slot, group)
}

// Cancel cancels the live run with the given ID, wherever it is. It reports
// whether a run was found.
func (m *Manager) Cancel(runID int64, cause error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.live {
		if s.runID == runID {
			s.cancel(cause)
			return true
		}
	}
	for group, w := range m.pending {
		if w.runID == runID {
			delete(m.pending, group)
			w.done <- cause
			return true
		}
	}
	return false
}
